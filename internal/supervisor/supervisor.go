// Package supervisor implements the Supervisor role: the cooperative loop
// that spawns FuseServer and Publisher as child processes, performs
// host-side bind publication, restarts on crash or config change, and
// guarantees full teardown on exit.
package supervisor

import (
	"context"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mufanc/fpatch/internal/circuit"
	"github.com/mufanc/fpatch/internal/metrics"
	"github.com/mufanc/fpatch/internal/mountns"
	"github.com/mufanc/fpatch/internal/patch"
	"github.com/mufanc/fpatch/internal/state"
	"github.com/mufanc/fpatch/pkg/errors"
	"github.com/mufanc/fpatch/pkg/health"
)

// cooldown is the fixed delay between a failed/ended iteration and the
// next restart attempt.
const cooldown = 5 * time.Second

// Supervisor owns one run of the whole system: preflight, state directory
// setup, and the restart loop.
type Supervisor struct {
	dirs    state.Dirs
	health  *health.Tracker
	breaker *circuit.Breaker
	metrics *metrics.Collector
}

// New builds a Supervisor, resolving state directories but performing no
// I/O yet. metrics may be nil to disable instrumentation.
func New(m *metrics.Collector) (*Supervisor, error) {
	dirs, err := state.Resolve()
	if err != nil {
		return nil, err
	}

	tracker := health.NewTracker(health.DefaultConfig())
	tracker.Register("fuse_server")
	tracker.Register("publisher")
	tracker.OnStateChange(func(component string, from, to health.State, err error) {
		entry := logrus.WithField("component", component).WithField("from", from).WithField("to", to)
		if err != nil {
			entry = entry.WithError(err)
		}
		entry.Warn("component health state change")
	})

	if m != nil {
		m.SetHealthCheck(func() (bool, string) {
			overall := tracker.Overall()
			return overall != health.StateUnavailable, overall.String()
		})
	}

	breaker := circuit.New(circuit.Config{
		FailureThreshold: 5,
		OpenTimeout:      60 * time.Second,
		OnStateChange: func(from, to circuit.State) {
			logrus.WithField("from", from).WithField("to", to).Warn("restart circuit breaker state change")
			if m != nil && to == circuit.StateOpen {
				m.CircuitOpens.Inc()
			}
		},
	})

	return &Supervisor{dirs: dirs, health: tracker, breaker: breaker, metrics: m}, nil
}

// Run performs preflight, ensures the state directory layout, purges any
// stale mounts from a previous run, then loops iterate until ctx is
// canceled (SIGINT/SIGTERM).
func (s *Supervisor) Run(ctx context.Context) error {
	if err := state.CheckPermissions(); err != nil {
		return err
	}
	if err := s.dirs.EnsureRoot(); err != nil {
		return err
	}
	if err := s.dirs.EnsureMountPoint(); err != nil {
		return err
	}
	if err := mountns.Cleanup(); err != nil {
		logrus.WithError(err).Warn("startup cleanup encountered an error")
	}

	configChanged := make(chan struct{}, 1)
	if err := patch.WatchConfig(ctx, s.dirs.ConfigFile, configChanged); err != nil {
		logrus.WithError(err).Warn("config watch unavailable; restart-on-change disabled")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := s.breaker.Allow(); err != nil {
			logrus.WithError(err).Warn("circuit breaker open, waiting before next attempt")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(cooldown):
				continue
			}
		}

		outcome := s.iterate(ctx, configChanged)
		if s.metrics != nil {
			s.metrics.Iterations.WithLabelValues(outcome.label()).Inc()
		}

		if outcome.shutdown {
			return nil
		}

		if outcome.err != nil {
			s.breaker.RecordFailure()
		} else {
			s.breaker.RecordSuccess()
		}
		if s.metrics != nil {
			s.metrics.Restarts.Inc()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(cooldown):
		}
	}
}

// iterationOutcome summarizes why one iterate call returned.
type iterationOutcome struct {
	shutdown bool
	err      error
}

func (o iterationOutcome) label() string {
	switch {
	case o.shutdown:
		return "shutdown"
	case o.err != nil:
		return "failed"
	default:
		return "restarted"
	}
}

// iterate runs exactly one supervisor loop iteration: spawn FuseServer,
// wait for readiness (or crash), spawn Publisher, perform host-side bind
// publication, then serve until shutdown, config change, or FuseServer
// exit — tearing down fully before returning in every case.
func (s *Supervisor) iterate(ctx context.Context, configChanged <-chan struct{}) iterationOutcome {
	iterationID := uuid.New().String()
	log := logrus.WithField("iteration", iterationID)

	records, err := patch.LoadConfig(s.dirs.ConfigFile)
	if err != nil {
		log.WithError(err).Error("failed to load patch config")
		return iterationOutcome{err: err}
	}

	fuseCmd := fuseServerCommand()
	if err := fuseCmd.Start(); err != nil {
		log.WithError(err).Error("failed to start fuse server")
		s.health.RecordError("fuse_server", err)
		return iterationOutcome{err: err}
	}
	fusePID := fuseCmd.Process.Pid
	log = log.WithField("fuse_pid", fusePID)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGUSR1)
	defer signal.Stop(sigCh)

	exitCh := make(chan error, 1)
	go func() { exitCh <- fuseCmd.Wait() }()

	select {
	case <-ctx.Done():
		terminate(fuseCmd, exitCh)
		s.teardown(nil, log)
		return iterationOutcome{shutdown: true}
	case err := <-exitCh:
		log.WithError(err).Error("fuse server exited before signaling ready")
		s.health.RecordError("fuse_server", errors.Wrap(errors.ErrCodeFuseMountFailed, "fuse server exited early", err))
		s.logSnapshot(log, "fuse_server")
		s.teardown(nil, log)
		return iterationOutcome{err: err}
	case <-sigCh:
		log.Debug("fuse server signaled ready")
		s.health.RecordSuccess("fuse_server")
		log.WithField("state", s.health.State("fuse_server")).Debug("fuse server health state")
	}

	pubCmd := publisherCommand(fusePID)
	if err := pubCmd.Run(); err != nil {
		log.WithError(err).Error("publisher failed")
		s.health.RecordError("publisher", err)
		s.logSnapshot(log, "publisher")
		terminate(fuseCmd, exitCh)
		s.teardown(nil, log)
		return iterationOutcome{err: err}
	}
	s.health.RecordSuccess("publisher")

	entries, err := mountns.HashEntries(s.dirs.MountPoint)
	if err != nil {
		log.WithError(err).Error("failed to list mount point after publish")
		terminate(fuseCmd, exitCh)
		s.teardown(nil, log)
		return iterationOutcome{err: err}
	}

	bound, bindErrs := mountns.PublishAll(records, entries)
	for _, e := range bindErrs {
		log.WithError(e).Warn("failed to publish one patch target")
	}
	if s.metrics != nil {
		s.metrics.MountsActive.Set(float64(len(bound)))
	}
	log.WithField("published", len(bound)).Info("patches published")

	outcome := serveUntilChange(ctx, fuseCmd, exitCh, configChanged)

	s.teardown(bound, log)
	if s.metrics != nil {
		s.metrics.MountsActive.Set(0)
	}

	return outcome
}

// serveUntilChange blocks until shutdown, a config change, or FuseServer
// exiting on its own, terminating FuseServer first in the first two cases.
func serveUntilChange(ctx context.Context, fuseCmd *exec.Cmd, exitCh chan error, configChanged <-chan struct{}) iterationOutcome {
	select {
	case <-ctx.Done():
		terminate(fuseCmd, exitCh)
		return iterationOutcome{shutdown: true}
	case <-configChanged:
		logrus.Info("patch config changed, restarting")
		terminate(fuseCmd, exitCh)
		return iterationOutcome{}
	case err := <-exitCh:
		if err != nil {
			logrus.WithError(err).Warn("fuse server exited unexpectedly")
			return iterationOutcome{err: err}
		}
		return iterationOutcome{}
	}
}

// logSnapshot logs a component's full health detail after it errors, and
// the overall system state alongside it.
func (s *Supervisor) logSnapshot(log *logrus.Entry, component string) {
	snap, err := s.health.Snapshot(component)
	if err != nil {
		return
	}
	log.WithFields(logrus.Fields{
		"component":          component,
		"state":              snap.State,
		"consecutive_errors": snap.ConsecutiveErrors,
		"overall":            s.health.Overall(),
	}).Debug("component health snapshot")
}

// teardown detaches every bound target and sweeps for anything the
// per-target detach missed.
func (s *Supervisor) teardown(bound []string, log *logrus.Entry) {
	for _, target := range bound {
		if err := mountns.DetachTarget(target); err != nil {
			log.WithError(err).WithField("target", target).Warn("failed to detach target during teardown")
		}
	}
	if err := mountns.Cleanup(); err != nil {
		log.WithError(err).Warn("cleanup sweep encountered an error")
	}
}

// terminate sends SIGTERM to cmd's process and drains its exit result from
// exitCh, tolerating a process that has already exited.
func terminate(cmd *exec.Cmd, exitCh chan error) {
	if cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}
	select {
	case <-exitCh:
	case <-time.After(10 * time.Second):
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-exitCh
	}
}
