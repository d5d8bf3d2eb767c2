package mountns

import (
	"bufio"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/mufanc/fpatch/internal/appinfo"
	"github.com/mufanc/fpatch/internal/patch"
	"github.com/mufanc/fpatch/pkg/errors"
)

// BindTarget clone-opens sourcePath (an entry inside the now host-visible
// mount point) and move-mounts it onto targetPath, both within the caller's
// current mount namespace — the supervisor's host-side bind publication
// step, run after Publisher has already made the mount point visible here.
func BindTarget(sourcePath, targetPath string) error {
	treeFd, err := OpenTreeClone(sourcePath)
	if err != nil {
		return err
	}
	defer closeFd(treeFd)

	return MoveMountTo(treeFd, targetPath)
}

// PublishAll binds every record's target path to its matching entry in
// entries (as built by HashEntries), skipping any record whose hash has no
// corresponding entry, or whose bind fails, rather than aborting the whole
// batch. It does no logging itself: it returns the target paths that were
// successfully bound, so the caller can detach exactly those on teardown,
// and one error per skipped record for the caller to report.
func PublishAll(records []patch.Record, entries map[string]string) (bound []string, errs []error) {
	for _, rec := range records {
		source, ok := entries[rec.Hash()]
		if !ok {
			errs = append(errs, errors.New(errors.ErrCodeNoSuchEntry, "no mount entry for target").
				WithContext("target", rec.Path).WithContext("hash", rec.Hash()))
			continue
		}
		if err := BindTarget(source, rec.Path); err != nil {
			errs = append(errs, err)
			continue
		}
		bound = append(bound, rec.Path)
	}
	return bound, errs
}

// DetachTarget unmounts targetPath with MNT_DETACH semantics: the mount
// disappears from the namespace's view immediately, while any processes
// still holding it open keep working until they close it.
func DetachTarget(targetPath string) error {
	if err := unix.Unmount(targetPath, unix.MNT_DETACH); err != nil {
		return errors.Wrap(errors.ErrCodeUnmountFailed, "detach target bind", err).
			WithContext("target", targetPath)
	}
	return nil
}

// Cleanup scans /proc/self/mounts for every mount whose source field is the
// application's identifier and detaches it. It is idempotent: a second run
// finds nothing left to do.
func Cleanup() error {
	f, err := os.Open("/proc/self/mounts")
	if err != nil {
		return errors.Wrap(errors.ErrCodeUnmountFailed, "open /proc/self/mounts", err)
	}
	defer f.Close()

	var targets []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		source, mountPoint := fields[0], fields[1]
		if source == appinfo.Name {
			targets = append(targets, mountPoint)
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(errors.ErrCodeUnmountFailed, "scan /proc/self/mounts", err)
	}

	var firstErr error
	for _, target := range targets {
		if err := DetachTarget(target); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
