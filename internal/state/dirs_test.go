package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mufanc/fpatch/pkg/errors"
)

func TestResolve_UsesHome(t *testing.T) {
	t.Setenv("HOME", "/home/fixture")

	dirs, err := Resolve()
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if want := filepath.Join("/home/fixture", ".local/share", "fpatch"); dirs.Root != want {
		t.Errorf("Root = %q, want %q", dirs.Root, want)
	}
	if want := filepath.Join(dirs.Root, "mp"); dirs.MountPoint != want {
		t.Errorf("MountPoint = %q, want %q", dirs.MountPoint, want)
	}
	if want := filepath.Join(dirs.Root, "patches.toml"); dirs.ConfigFile != want {
		t.Errorf("ConfigFile = %q, want %q", dirs.ConfigFile, want)
	}
}

func TestResolve_NoHome(t *testing.T) {
	t.Setenv("HOME", "")

	_, err := Resolve()
	if err == nil {
		t.Fatal("expected error when HOME is unset")
	}
	var fpErr *errors.Error
	if !asError(err, &fpErr) || fpErr.Code != errors.ErrCodeNoHome {
		t.Errorf("error code = %v, want %v", err, errors.ErrCodeNoHome)
	}
}

func TestDirs_EnsureRootAndMountPoint(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "fpatch")
	dirs := Dirs{Root: root, MountPoint: filepath.Join(root, "mp")}

	if err := dirs.EnsureRoot(); err != nil {
		t.Fatalf("EnsureRoot() error = %v", err)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		t.Errorf("root dir not created: %v", err)
	}

	if err := dirs.EnsureMountPoint(); err != nil {
		t.Fatalf("EnsureMountPoint() error = %v", err)
	}
	if info, err := os.Stat(dirs.MountPoint); err != nil || !info.IsDir() {
		t.Errorf("mount point dir not created: %v", err)
	}
}

func TestCheckExePermissions_WrongMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fpatch")
	if err := os.WriteFile(path, []byte("binary"), 0o755); err != nil {
		t.Fatal(err)
	}

	err := checkExePermissions(path)
	if err == nil {
		t.Fatal("expected error for non-setuid binary")
	}
	var fpErr *errors.Error
	if !asError(err, &fpErr) || fpErr.Code != errors.ErrCodeBadPermissions {
		t.Errorf("error = %v, want code %v", err, errors.ErrCodeBadPermissions)
	}
}

func TestCheckExePermissions_SetuidButNotRootOwned(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fpatch")
	if err := os.WriteFile(path, []byte("binary"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, os.ModeSetuid|0o755); err != nil {
		t.Skipf("chmod setuid not permitted in this environment: %v", err)
	}

	// This test process is not root, so a setuid file it owns is never
	// root-owned: the owner check must reject it.
	err := checkExePermissions(path)
	if err == nil {
		t.Fatal("expected error for non-root-owned binary")
	}
	var fpErr *errors.Error
	if !asError(err, &fpErr) || fpErr.Code != errors.ErrCodeNotSUIDRoot {
		t.Errorf("error = %v, want code %v", err, errors.ErrCodeNotSUIDRoot)
	}
}

func TestCheckExePermissions_MissingFile(t *testing.T) {
	err := checkExePermissions(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func asError(err error, target **errors.Error) bool {
	if e, ok := err.(*errors.Error); ok {
		*target = e
		return true
	}
	return false
}
