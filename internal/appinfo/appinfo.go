// Package appinfo holds the small set of identifiers shared across fpatch's
// roles: the supervisor, the FUSE server and the publisher.
package appinfo

// Name is fpatch's application identifier. It is used both as the FUSE
// filesystem's source/fsname (so published mounts are recognizable in
// /proc/self/mounts) and as the string cleanup scans for when sweeping
// leftover mounts from a previous, possibly crashed, run.
const Name = "fpatch"

// SelfExe is the path the supervisor re-execs to spawn its own FuseServer
// and Publisher roles, mirroring the original daemon's re-entry through
// /proc/self/exe rather than requiring the binary's own path on $PATH.
const SelfExe = "/proc/self/exe"

// RoleMountFuse is the subcommand that runs the FuseServer role.
const RoleMountFuse = "mount-fuse"

// RolePipeBack is the subcommand that runs the Publisher role; it takes a
// single positional PID argument naming the FuseServer to attach to.
const RolePipeBack = "pipe-back"

// FuseMetricsPort is the port the FuseServer role exposes its own metrics
// on. It runs as a separate process from the Supervisor (re-exec'd via
// SelfExe) and so cannot share the Supervisor's registry or :9090 listener;
// it gets its own.
const FuseMetricsPort = 9091
