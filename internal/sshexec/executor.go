// Package sshexec runs one-shot commands on a pooled SSH connection and
// renders every outcome as text the admin UI can display.
package sshexec

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jkeevk/aimlul-admin/internal/logutil"
	"github.com/jkeevk/aimlul-admin/internal/sshpool"
)

const (
	// DefaultTimeout applies to ordinary commands.
	DefaultTimeout = 10 * time.Second
	// DockerTimeout applies to docker commands, which are known slow.
	DockerTimeout = 30 * time.Second
)

// Run executes command on the transport with a timeout chosen by command
// class and returns combined stdout and stderr.
//
// Failures never propagate past this boundary as bare errors for the UI:
// the returned string is always renderable, including on timeout and
// transport failure. The error return mirrors transport-level failures so
// the caller can poison the pooled connection.
func Run(ctx context.Context, t sshpool.Transport, command string) (string, error) {
	return RunWithTimeout(ctx, t, command, commandTimeout(command))
}

// RunWithTimeout is Run with an explicit timeout.
func RunWithTimeout(ctx context.Context, t sshpool.Transport, command string, timeout time.Duration) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout, stderr, err := t.Run(runCtx, command)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Printf("[sshexec] command timeout: %s", logutil.SanitizeForLog(truncate(command, 50)))
			return fmt.Sprintf("Error: command timed out after %s", timeout), err
		}
		log.Printf("[sshexec] command failed: %v", err)
		return fmt.Sprintf("Error: %v", err), err
	}
	return stdout + stderr, nil
}

func commandTimeout(command string) time.Duration {
	if strings.HasPrefix(command, "docker") {
		return DockerTimeout
	}
	return DefaultTimeout
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
