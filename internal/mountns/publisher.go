package mountns

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mufanc/fpatch/pkg/errors"
	"github.com/mufanc/fpatch/pkg/retry"
)

// readinessPollInterval is how often Publisher restats the magic readiness
// path before attempting to capture the mount point. spec §5 mandates no
// hard ceiling; cancellation is the caller's context (in practice: the
// supervisor killing this short-lived process).
const readinessPollInterval = time.Second

// rootIno is the FUSE root marker the readiness probe watches for.
const rootIno = 1

// PublishMountPoint runs the Publisher role's entire algorithm: open a
// retained reference to the caller's own mount namespace, setns into
// fusePID's namespace and wait for its FUSE mount to become ready, clone it
// as a detached mount, hop back via the retained reference, and attach the
// clone at the same path there — making the synthetic filesystem visible in
// the host namespace without ever mounting it there directly.
func PublishMountPoint(ctx context.Context, fusePID int, mountPoint string) error {
	var treeFd int

	err := WithLockedThread(func() error {
		backupNS, err := EnterPID(fusePID)
		if err != nil {
			return err
		}

		if err := waitReady(ctx, fusePID, mountPoint); err != nil {
			_ = RestoreNS(backupNS)
			return err
		}

		treeFd, err = OpenTreeClone(mountPoint)
		if err != nil {
			_ = RestoreNS(backupNS)
			return err
		}

		return RestoreNS(backupNS)
	})
	if err != nil {
		return err
	}
	defer closeFd(treeFd)

	if err := MoveMountTo(treeFd, mountPoint); err != nil {
		return err
	}

	logrus.WithField("mount_point", mountPoint).WithField("fuse_pid", fusePID).
		Info("published fuse mount point into host namespace")
	return nil
}

// waitReady polls the magic readiness path (valid only while the calling
// thread is inside fusePID's mount namespace) until its root inode is the
// FUSE marker (1).
func waitReady(ctx context.Context, fusePID int, mountPoint string) error {
	magicPath := fmt.Sprintf("/proc/%d/root%s", fusePID, mountPoint)

	err := retry.Poll(ctx, readinessPollInterval, 0, func() (bool, error) {
		info, statErr := os.Stat(magicPath)
		if statErr != nil {
			return false, nil
		}
		st, ok := info.Sys().(*syscall.Stat_t)
		return ok && st.Ino == rootIno, nil
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeNoSuchEntry, "wait for fuse mount readiness", err).
			WithContext("path", magicPath)
	}
	return nil
}

func closeFd(fd int) {
	if err := syscall.Close(fd); err != nil {
		logrus.WithError(err).Warn("failed to close detached mount fd")
	}
}

// HashEntries lists mountPoint (expected to already be host-visible) and
// returns a map from each entry's hash prefix (the part of its name before
// the first ':') to its full path, for the supervisor's per-target bind
// publication step.
func HashEntries(mountPoint string) (map[string]string, error) {
	entries, err := os.ReadDir(mountPoint)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNoSuchEntry, "list mount point", err).
			WithContext("mount_point", mountPoint)
	}

	out := make(map[string]string, len(entries))
	for _, e := range entries {
		name := e.Name()
		hash := name
		for i := 0; i < len(name); i++ {
			if name[i] == ':' {
				hash = name[:i]
				break
			}
		}
		out[hash] = filepath.Join(mountPoint, name)
	}
	return out, nil
}
