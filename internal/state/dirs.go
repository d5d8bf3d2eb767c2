// Package state resolves fpatch's on-disk state directory and enforces the
// preflight checks that must pass before the supervisor does anything else:
// the running binary must be the exact setuid-root executable the system
// expects, never an arbitrary copy.
package state

import (
	"os"
	"path/filepath"

	"github.com/mufanc/fpatch/internal/appinfo"
	"github.com/mufanc/fpatch/pkg/errors"
)

// expectedMode is the literal mode the original implementation checks:
// setuid bit set, owner rwx, group/other rx. Not just "setuid set and not
// world-writable" — the exact bit pattern.
const expectedMode = os.ModeSetuid | 0o755

// Dirs are the resolved paths fpatch reads and writes under $HOME.
type Dirs struct {
	Root       string // $HOME/.local/share/fpatch
	MountPoint string // Root/mp — the FUSE mount point
	ConfigFile string // Root/patches.toml
}

// Resolve computes Dirs from the current user's $HOME, without creating
// anything on disk.
func Resolve() (Dirs, error) {
	home := os.Getenv("HOME")
	if home == "" {
		return Dirs{}, errors.New(errors.ErrCodeNoHome, "HOME is not set")
	}

	root := filepath.Join(home, ".local/share", appinfo.Name)
	return Dirs{
		Root:       root,
		MountPoint: filepath.Join(root, "mp"),
		ConfigFile: filepath.Join(root, "patches.toml"),
	}, nil
}

// EnsureRoot creates the root state directory (and thus its parents) if it
// does not already exist.
func (d Dirs) EnsureRoot() error {
	if err := os.MkdirAll(d.Root, 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeStateDir, "create state dir", err).WithContext("dir", d.Root)
	}
	return nil
}

// EnsureMountPoint creates the FUSE mount point directory if it does not
// already exist.
func (d Dirs) EnsureMountPoint() error {
	if err := os.MkdirAll(d.MountPoint, 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeStateDir, "create mount point", err).WithContext("dir", d.MountPoint)
	}
	return nil
}

// CheckPermissions verifies the running binary (/proc/self/exe) carries the
// exact mode 0o104755 (regular file, setuid, rwxr-xr-x) and is owned by
// root. Both checks must pass; either failing aborts startup.
func CheckPermissions() error {
	return checkExePermissions(appinfo.SelfExe)
}

// checkExePermissions implements CheckPermissions against an arbitrary
// path, split out so tests can exercise the mode/owner comparison logic
// against a fixture file instead of the real running binary.
func checkExePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeBadPermissions, "stat self exe", err)
	}

	if !info.Mode().IsRegular() || info.Mode()&(os.ModeSetuid|os.ModePerm) != expectedMode {
		return errors.New(errors.ErrCodeBadPermissions, "binary permissions must be exactly 4755 (setuid, rwxr-xr-x)").
			WithContext("mode", info.Mode().String())
	}

	uid, err := ownerUID(info)
	if err != nil {
		return errors.Wrap(errors.ErrCodeBadPermissions, "determine binary owner", err)
	}
	if uid != 0 {
		return errors.New(errors.ErrCodeNotSUIDRoot, "binary must be owned by root")
	}

	return nil
}
