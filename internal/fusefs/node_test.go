package fusefs

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/mufanc/fpatch/internal/metrics"
	"github.com/mufanc/fpatch/internal/patch"
)

func writeTarget(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestNewRoot_BuildsEntryTable(t *testing.T) {
	dir := t.TempDir()
	a := writeTarget(t, dir, "a.txt", "hello")
	b := writeTarget(t, dir, "b.txt", "world!!")

	records := []patch.Record{
		{Mode: patch.Prepend, Path: a, Content: []byte(">>")},
		{Mode: patch.Replace, Path: b, Content: []byte("xyz")},
	}

	root, err := NewRoot(records, nil)
	require.NoError(t, err)
	require.Len(t, root.entries, 2)

	byName := make(map[string]*entry, len(root.entries))
	for _, e := range root.entries {
		byName[e.name] = e
	}

	aEntry := byName[records[0].EntryName()]
	require.NotNil(t, aEntry)
	require.EqualValues(t, 7, aEntry.attr.Size) // len(">>") + len("hello")

	bEntry := byName[records[1].EntryName()]
	require.NotNil(t, bEntry)
	require.EqualValues(t, 3, bEntry.attr.Size) // Replace reports content length only
}

func TestNewRoot_InodeCollisionFallsBackToAssignedInode(t *testing.T) {
	dir := t.TempDir()
	a := writeTarget(t, dir, "a.txt", "hello")

	// Two patch records targeting the same underlying file share a real
	// inode; the second must fall back to a synthesized one rather than
	// silently aliasing the first entry.
	records := []patch.Record{
		{Mode: patch.Prepend, Path: a, Content: []byte(">>")},
		{Mode: patch.Append, Path: a, Content: []byte("!!")},
	}

	root, err := NewRoot(records, nil)
	require.NoError(t, err)
	require.Len(t, root.entries, 2)
	require.NotEqual(t, root.entries[0].ino, root.entries[1].ino)

	for _, e := range root.entries {
		got, ok := root.byIno[e.ino]
		require.True(t, ok)
		require.Same(t, e, got)
	}
}

func TestSynthFile_Read_IncrementsReadErrorsOnFailure(t *testing.T) {
	collector, err := metrics.NewCollector(&metrics.Config{Enabled: false})
	require.NoError(t, err)

	f := &SynthFile{
		entry: &entry{
			name:   "gone.txt",
			ino:    2,
			record: patch.Record{Mode: patch.Append, Path: "/nonexistent/definitely/missing", Content: []byte("x")},
			attr:   fuse.Attr{Size: 10},
		},
		metrics: collector,
	}

	_, errno := f.Read(context.Background(), nil, make([]byte, 10), 0)
	require.Equal(t, syscall.EIO, errno)
	require.Equal(t, float64(1), testutil.ToFloat64(collector.ReadErrors.WithLabelValues("READ_FAILED")))
}

func TestNewRoot_MissingTargetFails(t *testing.T) {
	records := []patch.Record{
		{Mode: patch.Append, Path: "/nonexistent/definitely/missing", Content: []byte("x")},
	}
	_, err := NewRoot(records, nil)
	require.Error(t, err)
}
