package fusefs

import (
	"context"
	"errors"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/sirupsen/logrus"

	fpatcherrors "github.com/mufanc/fpatch/pkg/errors"

	"github.com/mufanc/fpatch/internal/metrics"
	"github.com/mufanc/fpatch/internal/patch"
)

// entryTTL is how long the kernel is told to cache lookup/getattr replies.
const entryTTL = time.Second

// rootIno is the fixed inode number of the synthetic filesystem's root
// directory, checked by the publisher's readiness probe against the magic
// mount-point path.
const rootIno = 1

// entry pairs one patch.Record with the synthetic directory entry that
// represents it: its assigned inode and the attributes derived from the
// real target file at mount time.
type entry struct {
	name   string
	ino    uint64
	record patch.Record
	attr   fuse.Attr
}

// Root is the FUSE root directory node: a flat, fixed listing of one entry
// per configured patch. It never changes after construction — patch
// configuration changes are handled by restarting the whole FuseServer, not
// by mutating a running tree.
type Root struct {
	fs.Inode

	mu      sync.RWMutex
	entries []*entry
	byIno   map[uint64]*entry
	metrics *metrics.Collector
}

var (
	_ fs.NodeLookuper  = (*Root)(nil)
	_ fs.NodeReaddirer = (*Root)(nil)
	_ fs.NodeGetattrer = (*Root)(nil)
)

// NewRoot builds the Root node's entry table from the loaded patch records,
// statting each target file once to derive the synthetic attributes
// (inode, size, mode, timestamps) generate_attr computes in the reference
// implementation. m may be nil to disable read-error instrumentation.
func NewRoot(records []patch.Record, m *metrics.Collector) (*Root, error) {
	root := &Root{byIno: make(map[uint64]*entry, len(records)), metrics: m}

	used := map[uint64]bool{rootIno: true}
	nextIno := uint64(2)

	for _, rec := range records {
		attr, srcIno, err := statAttr(rec)
		if err != nil {
			return nil, err
		}

		ino := srcIno
		if ino == 0 || used[ino] {
			for used[nextIno] {
				nextIno++
			}
			ino = nextIno
		}
		used[ino] = true
		attr.Ino = ino

		e := &entry{name: rec.EntryName(), ino: ino, record: rec, attr: attr}
		root.entries = append(root.entries, e)
		root.byIno[ino] = e
	}

	return root, nil
}

// statAttr derives a synthetic file's fuse.Attr from the real target file's
// stat, overriding only size (per the virtual-size law) and leaving
// ownership/mode/timestamps copied from the target.
func statAttr(rec patch.Record) (fuse.Attr, uint64, error) {
	info, err := os.Stat(rec.Path)
	if err != nil {
		return fuse.Attr{}, 0, err
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return fuse.Attr{}, 0, nil
	}

	out := fuse.Attr{
		Ino:       st.Ino,
		Size:      uint64(virtualSize(rec.Mode, int(st.Size), len(rec.Content))),
		Blocks:    uint64(st.Blocks),
		Blksize:   uint32(st.Blksize),
		Atime:     uint64(st.Atim.Sec),
		Atimensec: uint32(st.Atim.Nsec),
		Mtime:     uint64(st.Mtim.Sec),
		Mtimensec: uint32(st.Mtim.Nsec),
		Ctime:     uint64(st.Ctim.Sec),
		Ctimensec: uint32(st.Ctim.Nsec),
		Mode:      st.Mode,
		Nlink:     uint32(st.Nlink),
		Rdev:      uint32(st.Rdev),
		Owner:     fuse.Owner{Uid: st.Uid, Gid: st.Gid},
	}

	return out, st.Ino, nil
}

// Lookup satisfies fs.NodeLookuper, linearly scanning the fixed entry table
// — the same approach the reference implementation uses, appropriate given
// the handful of patches a single host typically carries.
func (r *Root) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.name != name {
			continue
		}
		out.Attr = e.attr
		out.SetEntryTimeout(entryTTL)
		out.SetAttrTimeout(entryTTL)
		return r.NewInode(ctx, &SynthFile{entry: e, metrics: r.metrics}, fs.StableAttr{Mode: fuse.S_IFREG, Ino: e.ino}), 0
	}
	return nil, syscall.ENOENT
}

// Getattr satisfies fs.NodeGetattrer for the root directory itself.
func (r *Root) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Ino = rootIno
	out.Mode = fuse.S_IFDIR | 0o755
	out.SetTimeout(entryTTL)
	return 0
}

// Readdir satisfies fs.NodeReaddirer, listing every configured patch as a
// flat directory entry.
func (r *Root) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]fuse.DirEntry, 0, len(r.entries))
	for _, e := range r.entries {
		list = append(list, fuse.DirEntry{Name: e.name, Ino: e.ino, Mode: fuse.S_IFREG})
	}
	return fs.NewListDirStream(list), 0
}

// SynthFile is a single synthetic patched file: read-only, backed by the
// virtual byte stream computed from its patch.Record.
type SynthFile struct {
	fs.Inode
	entry   *entry
	metrics *metrics.Collector
}

var (
	_ fs.NodeGetattrer = (*SynthFile)(nil)
	_ fs.NodeOpener    = (*SynthFile)(nil)
	_ fs.NodeReader    = (*SynthFile)(nil)
)

func (f *SynthFile) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Attr = f.entry.attr
	out.SetTimeout(entryTTL)
	return 0
}

// Open always succeeds read-only; there is no file handle state to track
// since reads are served directly from disk plus the in-memory blob.
func (f *SynthFile) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	return nil, fuse.FOPEN_KEEP_CACHE, 0
}

func (f *SynthFile) Read(ctx context.Context, fh fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	data, err := readVirtual(f.entry.record, int(off), len(dest), int(f.entry.attr.Size))
	if err != nil {
		logrus.WithError(err).WithField("path", f.entry.record.Path).Warn("read failed")
		if f.metrics != nil {
			f.metrics.ReadErrors.WithLabelValues(readErrorCode(err)).Inc()
		}
		return nil, syscall.EIO
	}
	return fuse.ReadResultData(data), 0
}

// readErrorCode extracts the structured error code from err, if any, for the
// read_errors_total label; reads that fail for reasons outside the
// structured taxonomy (a raw os.PathError, for instance) fall back to a
// generic label rather than widening the metric's cardinality per error.
func readErrorCode(err error) string {
	var fpErr *fpatcherrors.Error
	if errors.As(err, &fpErr) {
		return string(fpErr.Code)
	}
	return "unknown"
}
