// Package mountns implements the mount-namespace hop: entering another
// process's mount namespace just long enough to clone a detached reference
// to one of its mounts, then attaching that reference in the caller's own
// namespace with move_mount. This is what lets the Publisher carry FUSE
// entries out of the FuseServer's private namespace and onto real host
// paths without ever anchoring visibility to the FuseServer process.
package mountns

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/mufanc/fpatch/pkg/errors"
)

// Unshare puts the calling OS thread into a new mount namespace and flips
// "/" to MS_PRIVATE|MS_REC propagation, matching unshare(1)'s default so
// that subsequent mount point changes never leak back into the namespace
// this thread started in.
//
// Must be called after runtime.LockOSThread, and the thread should never be
// unlocked afterward: CLONE_NEWNS state cannot be undone on a shared
// thread.
func Unshare() error {
	if err := unix.Unshare(unix.CLONE_NEWNS); err != nil {
		return errors.Wrap(errors.ErrCodeUnshareFailed, "unshare mount namespace", err)
	}
	if err := unix.Mount("none", "/", "", unix.MS_REC|unix.MS_PRIVATE, ""); err != nil {
		return errors.Wrap(errors.ErrCodePropagationFlip, "flip / propagation to private", err)
	}
	return nil
}

// CurrentNS opens the calling thread's own mount namespace reference, for
// later use with RestoreNS.
func CurrentNS() (int, error) {
	fd, err := unix.Open("/proc/thread-self/ns/mnt", unix.O_RDONLY, 0)
	if err != nil {
		return -1, errors.Wrap(errors.ErrCodeSetnsFailed, "open current mount namespace", err)
	}
	return fd, nil
}

// EnterPID opens a pidfd for pid and setns(2)'s the calling thread's mount
// namespace to that process's, returning an fd for the namespace the
// thread was in before the switch so the caller can RestoreNS later.
//
// The caller must have already called runtime.LockOSThread: setns affects
// only the calling thread, and mount namespace membership cannot safely
// hop between goroutines scheduled onto different threads.
func EnterPID(pid int) (backupNS int, err error) {
	backupNS, err = CurrentNS()
	if err != nil {
		return -1, err
	}

	pidfd, err := unix.PidfdOpen(pid, 0)
	if err != nil {
		_ = unix.Close(backupNS)
		return -1, errors.Wrap(errors.ErrCodePidfdOpenFailed, "open pidfd", err).
			WithContext("pid", fmt.Sprint(pid))
	}
	defer unix.Close(pidfd)

	if err := unix.Setns(pidfd, unix.CLONE_NEWNS); err != nil {
		_ = unix.Close(backupNS)
		return -1, errors.Wrap(errors.ErrCodeSetnsFailed, "setns into target process", err).
			WithContext("pid", fmt.Sprint(pid))
	}

	return backupNS, nil
}

// RestoreNS switches the calling thread back to the mount namespace fd
// returned by EnterPID or CurrentNS, and closes it.
func RestoreNS(ns int) error {
	defer unix.Close(ns)
	if err := unix.Setns(ns, unix.CLONE_NEWNS); err != nil {
		return errors.Wrap(errors.ErrCodeSetnsFailed, "restore original mount namespace", err)
	}
	return nil
}

// OpenTreeClone opens a detached mount tree rooted at path: a reference to
// the mount that survives independently of any mount namespace until it is
// either attached with move_mount or closed.
func OpenTreeClone(path string) (int, error) {
	fd, err := unix.OpenTree(-1, path, unix.OPEN_TREE_CLONE)
	if err != nil {
		return -1, errors.Wrap(errors.ErrCodeOpenTreeFailed, "open_tree clone", err).
			WithContext("path", path)
	}
	return fd, nil
}

// MoveMountTo attaches a detached mount tree fd at target in the caller's
// current mount namespace.
func MoveMountTo(treeFd int, target string) error {
	if err := unix.MoveMount(treeFd, "", unix.AT_FDCWD, target, unix.MOVE_MOUNT_F_EMPTY_PATH); err != nil {
		return errors.Wrap(errors.ErrCodeMoveMountFailed, "move_mount", err).
			WithContext("target", target)
	}
	return nil
}

// WithLockedThread locks the calling goroutine to its OS thread for the
// duration of fn, which is required around any EnterPID/RestoreNS pair:
// mount namespace membership is per-thread, and the Go scheduler must not
// migrate this goroutine to a different thread mid-hop.
func WithLockedThread(fn func() error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	return fn()
}
