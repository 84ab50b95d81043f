package sshpool

import (
	"context"
	"io"
	"time"
)

// Transport is a single authenticated remote-shell connection. The pool
// owns every Transport it hands out; callers borrow them through Acquire
// and must return them through Release or MarkUnhealthy.
type Transport interface {
	// Run executes a one-shot command and returns its stdout and stderr.
	// Cancellation of ctx aborts the command.
	Run(ctx context.Context, command string) (stdout, stderr string, err error)
	// StartProcess starts a long-running command whose stdin is never used.
	StartProcess(command string) (Process, error)
	Close() error
}

// Process is a running remote command started by Transport.StartProcess.
type Process interface {
	Stdout() io.Reader
	// Kill signals the remote process to terminate. Killing a process that
	// is already gone returns an error the caller may ignore.
	Kill() error
	// Wait blocks until the process exits or the timeout elapses.
	Wait(timeout time.Duration) error
}

// Dialer establishes a new Transport to host authenticated as user with
// the given password. The pool injects a connect timeout through ctx.
type Dialer func(ctx context.Context, host, user, password string) (Transport, error)
