package fusefs

import (
	"syscall"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/sirupsen/logrus"

	"github.com/mufanc/fpatch/internal/appinfo"
	"github.com/mufanc/fpatch/internal/metrics"
	"github.com/mufanc/fpatch/internal/patch"
	"github.com/mufanc/fpatch/pkg/errors"
)

// Server owns the mounted synthetic filesystem's lifetime.
type Server struct {
	mount *fuse.Server
}

// Mount builds the Root node from records and mounts it read-only at
// mountPoint. Options mirror the reference implementation's
// AutoUnmount+AllowOther+RO: auto_unmount so a crashed FuseServer doesn't
// leave a stuck mount, AllowOther so the Publisher and host processes
// (running as different users/namespaces) can traverse it, and read-only
// enforced both by the "ro" mount option and by SynthFile never
// implementing a writer. m, if non-nil, is incremented on every read that
// fails and served back to the kernel as EIO.
func Mount(mountPoint string, records []patch.Record, m *metrics.Collector) (*Server, error) {
	root, err := NewRoot(records, m)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFuseMountFailed, "build synthetic filesystem", err)
	}

	opts := &gofuse.Options{
		MountOptions: fuse.MountOptions{
			FsName:     appinfo.Name,
			Name:       appinfo.Name,
			AllowOther: true,
			Options:    []string{"auto_unmount", "ro"},
		},
	}

	server, err := gofuse.Mount(mountPoint, root, opts)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFuseMountFailed, "mount synthetic filesystem", err).
			WithContext("mount_point", mountPoint)
	}

	logrus.WithField("mount_point", mountPoint).WithField("entries", len(records)).Info("fuse server mounted")

	return &Server{mount: server}, nil
}

// Wait blocks until the mount is torn down, by Unmount or by an external
// unmount (e.g. fusermount -u, or the kernel tearing it down on process exit).
func (s *Server) Wait() {
	s.mount.Wait()
}

// Unmount tears the mount down explicitly.
func (s *Server) Unmount() error {
	if err := s.mount.Unmount(); err != nil {
		return errors.Wrap(errors.ErrCodeUnmountFailed, "unmount fuse server", err)
	}
	return nil
}

// signalParentReady raises SIGUSR1 against the caller's parent process,
// mirroring fuse.rs::mount's use of this signal to tell the supervisor the
// mount point is live and safe to hand off to the Publisher.
func signalParentReady() error {
	ppid := syscall.Getppid()
	if err := syscall.Kill(ppid, syscall.SIGUSR1); err != nil {
		return errors.Wrap(errors.ErrCodeFuseMountFailed, "signal parent ready", err)
	}
	return nil
}

// SignalReady is the exported entry point cmd/fpatch's mount-fuse role calls
// once the mount is established and before blocking in Wait.
func SignalReady() error {
	return signalParentReady()
}
