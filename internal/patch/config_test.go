package patch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "patches.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadConfig_AllSections(t *testing.T) {
	path := writeConfig(t, `
[[prepend]]
file = "/etc/motd"
content = "banner\n"

[[append]]
file = "/etc/hosts"
content = "127.0.0.1 extra\n"

[[replace]]
file = "/etc/issue"
content = "replaced\n"
`)

	records, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, records, 3)

	require.Equal(t, Prepend, records[0].Mode)
	require.Equal(t, "/etc/motd", records[0].Path)
	require.Equal(t, "banner\n", string(records[0].Content))

	require.Equal(t, Append, records[1].Mode)
	require.Equal(t, "/etc/hosts", records[1].Path)

	require.Equal(t, Replace, records[2].Mode)
	require.Equal(t, "/etc/issue", records[2].Path)
}

func TestLoadConfig_EmptySectionsYieldNoRecords(t *testing.T) {
	path := writeConfig(t, `
[[prepend]]
file = "/etc/motd"
content = "x"
`)
	records, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestLoadConfig_MalformedToml(t *testing.T) {
	path := writeConfig(t, "this is not [ valid toml")
	_, err := LoadConfig(path)
	require.Error(t, err)
}
