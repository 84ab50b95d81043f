package sshexec

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jkeevk/aimlul-admin/internal/sshpool"
)

type stubTransport struct {
	stdout string
	stderr string
	err    error
	delay  time.Duration
}

func (t *stubTransport) Run(ctx context.Context, command string) (string, string, error) {
	if t.delay > 0 {
		select {
		case <-time.After(t.delay):
		case <-ctx.Done():
			return "", "", ctx.Err()
		}
	}
	return t.stdout, t.stderr, t.err
}

func (t *stubTransport) StartProcess(command string) (sshpool.Process, error) {
	return nil, errors.New("not implemented")
}

func (t *stubTransport) Close() error { return nil }

func TestRunCombinesOutput(t *testing.T) {
	tr := &stubTransport{stdout: "container up\n", stderr: "warning: deprecated flag\n"}
	out, err := Run(context.Background(), tr, "docker ps")
	if err != nil {
		t.Fatal(err)
	}
	want := "container up\nwarning: deprecated flag\n"
	if out != want {
		t.Errorf("out = %q, want %q", out, want)
	}
}

func TestRunTimeoutRendersError(t *testing.T) {
	tr := &stubTransport{delay: time.Second}
	out, err := RunWithTimeout(context.Background(), tr, "sleep 60", 10*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if !strings.HasPrefix(out, "Error: command timed out after ") {
		t.Errorf("out = %q, want timeout message", out)
	}
}

func TestRunFailureRendersError(t *testing.T) {
	tr := &stubTransport{err: errors.New("broken pipe")}
	out, err := Run(context.Background(), tr, "docker ps")
	if err == nil {
		t.Fatal("want error")
	}
	if out != "Error: broken pipe" {
		t.Errorf("out = %q", out)
	}
}

func TestCommandTimeoutClass(t *testing.T) {
	if got := commandTimeout("docker logs --tail 50 bot"); got != DockerTimeout {
		t.Errorf("docker command timeout = %v, want %v", got, DockerTimeout)
	}
	if got := commandTimeout("uptime"); got != DefaultTimeout {
		t.Errorf("plain command timeout = %v, want %v", got, DefaultTimeout)
	}
}
