// Command fpatch splices configured byte sequences into copy-on-read views
// of target files, publishing the result over the targets' own paths via a
// bind mount. With no arguments it runs the Supervisor role. Two hidden
// subcommands re-enter the same binary to run the other two roles:
// mount-fuse (FuseServer) and pipe-back (Publisher).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/mufanc/fpatch/internal/appinfo"
	"github.com/mufanc/fpatch/internal/fusefs"
	"github.com/mufanc/fpatch/internal/metrics"
	"github.com/mufanc/fpatch/internal/mountns"
	"github.com/mufanc/fpatch/internal/patch"
	"github.com/mufanc/fpatch/internal/state"
	"github.com/mufanc/fpatch/internal/supervisor"
)

func main() {
	configureLogging()

	ctx, stop := signalContext()
	defer stop()

	var err error
	switch {
	case len(os.Args) >= 2 && os.Args[1] == appinfo.RoleMountFuse:
		err = runFuseServer(ctx)
	case len(os.Args) >= 3 && os.Args[1] == appinfo.RolePipeBack:
		err = runPublisher(ctx, os.Args[2])
	case len(os.Args) == 1:
		err = runSupervisor(ctx)
	default:
		fmt.Fprintf(os.Stderr, "usage: %s [%s|%s <pid>]\n", os.Args[0], appinfo.RoleMountFuse, appinfo.RolePipeBack)
		os.Exit(2)
	}

	if err != nil {
		logrus.WithError(err).Error("exiting with error")
		os.Exit(1)
	}
}

// configureLogging sets up structured logging, honoring FPATCH_LOG for the
// level (defaulting to info) the way the daemon's other knobs are all
// environment-driven.
func configureLogging() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	level := os.Getenv("FPATCH_LOG")
	if level == "" {
		level = "info"
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logrus.SetLevel(parsed)
}

// signalContext returns a context canceled on SIGINT or SIGTERM, giving the
// Supervisor's loop a single cancellation point for shutdown.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}

// runSupervisor is the default, argument-less role: the long-lived process
// that owns the restart loop and the metrics endpoint.
func runSupervisor(ctx context.Context) error {
	collector, err := metrics.NewCollector(nil)
	if err != nil {
		return err
	}
	if err := collector.Start(ctx); err != nil {
		return err
	}

	sup, err := supervisor.New(collector)
	if err != nil {
		return err
	}

	return sup.Run(ctx)
}

// runFuseServer is the mount-fuse role: unshare into a private mount
// namespace, mount the synthetic filesystem, signal the parent, and block
// until torn down.
//
// LockOSThread is deliberately never paired with an Unlock: Unshare leaves
// this thread's mount namespace permanently diverged from every other
// thread's, and returning it to the Go scheduler's idle pool would let an
// unrelated goroutine inherit that private namespace, or let this
// goroutine's own later syscalls land on a different, un-unshared thread.
// The thread is held for the rest of the process's life.
func runFuseServer(ctx context.Context) error {
	runtime.LockOSThread()

	if err := mountns.Unshare(); err != nil {
		return err
	}

	dirs, err := state.Resolve()
	if err != nil {
		return err
	}
	if err := dirs.EnsureMountPoint(); err != nil {
		return err
	}

	records, err := patch.LoadConfig(dirs.ConfigFile)
	if err != nil {
		return err
	}

	collector, err := metrics.NewCollector(&metrics.Config{Enabled: true, Port: appinfo.FuseMetricsPort, Path: "/metrics"})
	if err != nil {
		return err
	}
	if err := collector.Start(ctx); err != nil {
		logrus.WithError(err).Warn("fuse server metrics endpoint unavailable")
	}

	server, err := fusefs.Mount(dirs.MountPoint, records, collector)
	if err != nil {
		return err
	}

	if err := fusefs.SignalReady(); err != nil {
		logrus.WithError(err).Warn("failed to signal readiness to parent")
	}

	go func() {
		<-ctx.Done()
		_ = server.Unmount()
	}()

	server.Wait()
	return nil
}

// runPublisher is the pipe-back role: given the FuseServer's pid, hop into
// its mount namespace long enough to clone the now-ready mount and attach it
// back in the caller's (the Supervisor's) namespace.
func runPublisher(ctx context.Context, pidArg string) error {
	pid, err := strconv.Atoi(pidArg)
	if err != nil {
		return fmt.Errorf("invalid fuse server pid %q: %w", pidArg, err)
	}

	dirs, err := state.Resolve()
	if err != nil {
		return err
	}

	return mountns.PublishMountPoint(ctx, pid, dirs.MountPoint)
}
