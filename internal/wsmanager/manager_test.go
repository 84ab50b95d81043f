package wsmanager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jkeevk/aimlul-admin/internal/sshpool"
)

type fakeChannel struct {
	mu        sync.Mutex
	sends     []string
	failAfter int // fail once this many frames were sent; -1 means never
	closes    int
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{failAfter: -1}
}

func (c *fakeChannel) Send(ctx context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAfter >= 0 && len(c.sends) >= c.failAfter {
		return errors.New("client gone")
	}
	c.sends = append(c.sends, text)
	return nil
}

func (c *fakeChannel) Receive(ctx context.Context) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) frames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sends...)
}

func (c *fakeChannel) closeCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// lines returns the non-heartbeat frames sent after the history header.
func (c *fakeChannel) lines() []string {
	var out []string
	for _, f := range c.frames() {
		if f == "" || strings.HasPrefix(f, "=== ") {
			continue
		}
		out = append(out, f)
	}
	return out
}

type fakeProc struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu    sync.Mutex
	kills int
}

func newFakeProc() *fakeProc {
	r, w := io.Pipe()
	return &fakeProc{r: r, w: w}
}

func (p *fakeProc) Stdout() io.Reader { return p.r }

func (p *fakeProc) Kill() error {
	p.mu.Lock()
	p.kills++
	p.mu.Unlock()
	p.w.Close()
	return nil
}

func (p *fakeProc) Wait(timeout time.Duration) error { return nil }

func (p *fakeProc) killCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.kills
}

type fakeHostTransport struct {
	history string
	proc    *fakeProc
}

func (t *fakeHostTransport) Run(ctx context.Context, command string) (string, string, error) {
	return t.history, "", nil
}

func (t *fakeHostTransport) StartProcess(command string) (sshpool.Process, error) {
	return t.proc, nil
}

func (t *fakeHostTransport) Close() error { return nil }

func testManager(t *fakeHostTransport, dialErr error) (*Manager, *int) {
	dials := new(int)
	pool := sshpool.New(sshpool.Config{
		Dial: func(ctx context.Context, host, user, password string) (sshpool.Transport, error) {
			*dials++
			if dialErr != nil {
				return nil, dialErr
			}
			return t, nil
		},
	})
	m := New(pool)
	m.PollTimeout = 10 * time.Millisecond
	return m, dials
}

func validTarget() Target {
	return Target{Host: "10.0.0.1", Username: "root", Password: "secret", Container: "bot"}
}

func TestStreamOrderingAndCleanEnd(t *testing.T) {
	proc := newFakeProc()
	tr := &fakeHostTransport{history: "old line", proc: proc}
	m, _ := testManager(tr, nil)

	ch := newFakeChannel()
	id := m.Connect(ch)

	go func() {
		// Give the history header a moment, then stream and end.
		time.Sleep(20 * time.Millisecond)
		for i := 1; i <= 5; i++ {
			fmt.Fprintf(proc.w, "line %d\n", i)
		}
		proc.w.Close()
	}()

	if err := m.Stream(context.Background(), id, validTarget()); err != nil {
		t.Fatalf("stream: %v", err)
	}

	frames := ch.frames()
	if len(frames) == 0 || !strings.Contains(frames[0], "old line") {
		t.Fatalf("first frame = %q, want history header", frames)
	}
	if !strings.Contains(frames[0], "=== Live Stream Started ===") {
		t.Errorf("header missing stream marker: %q", frames[0])
	}

	got := ch.lines()
	want := []string{"line 1", "line 2", "line 3", "line 4", "line 5"}
	if len(got) != len(want) {
		t.Fatalf("lines = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}

	if m.Count() != 0 {
		t.Errorf("sessions = %d, want 0 after stream end", m.Count())
	}
	if ch.closeCalls() == 0 {
		t.Error("channel not closed after stream end")
	}
}

func TestStreamHeartbeat(t *testing.T) {
	proc := newFakeProc()
	tr := &fakeHostTransport{proc: proc}
	m, _ := testManager(tr, nil)
	m.HeartbeatInterval = 10 * time.Millisecond

	ch := newFakeChannel()
	id := m.Connect(ch)

	done := make(chan error, 1)
	go func() { done <- m.Stream(context.Background(), id, validTarget()) }()

	time.Sleep(80 * time.Millisecond)
	m.Disconnect(id)
	if err := <-done; err != nil {
		t.Fatalf("stream: %v", err)
	}

	beats := 0
	for _, f := range ch.frames() {
		if f == "" {
			beats++
		}
	}
	if beats == 0 {
		t.Error("no heartbeat frames sent on a quiet stream")
	}
}

func TestStreamClientDisconnect(t *testing.T) {
	proc := newFakeProc()
	tr := &fakeHostTransport{proc: proc}
	m, _ := testManager(tr, nil)

	ch := newFakeChannel()
	ch.failAfter = 1 // header goes through, first line send fails
	id := m.Connect(ch)

	done := make(chan error, 1)
	go func() { done <- m.Stream(context.Background(), id, validTarget()) }()

	time.Sleep(20 * time.Millisecond)
	fmt.Fprintln(proc.w, "line 1")

	// Client disconnect is a normal termination, not an error.
	if err := <-done; err != nil {
		t.Fatalf("stream: %v", err)
	}
	if got := proc.killCalls(); got != 1 {
		t.Errorf("kill calls = %d, want 1", got)
	}
	if m.Count() != 0 {
		t.Errorf("sessions = %d, want 0", m.Count())
	}
}

func TestStreamInvalidTarget(t *testing.T) {
	m, dials := testManager(&fakeHostTransport{}, nil)

	ch := newFakeChannel()
	id := m.Connect(ch)

	err := m.Stream(context.Background(), id, Target{Host: "10.0.0.1", Username: "root"})
	if err == nil {
		t.Fatal("want validation error")
	}
	if *dials != 0 {
		t.Errorf("dials = %d, want 0 for invalid target", *dials)
	}
	frames := ch.frames()
	if len(frames) != 1 || !strings.HasPrefix(frames[0], "ERROR: ") {
		t.Errorf("frames = %v, want single ERROR frame", frames)
	}
	if m.Count() != 0 {
		t.Errorf("sessions = %d, want 0", m.Count())
	}
}

func TestStreamConnectFailure(t *testing.T) {
	m, _ := testManager(nil, errors.New("connection refused"))

	ch := newFakeChannel()
	id := m.Connect(ch)

	err := m.Stream(context.Background(), id, validTarget())
	var connErr *sshpool.ConnectError
	if !errors.As(err, &connErr) {
		t.Fatalf("err = %v, want *ConnectError", err)
	}
	frames := ch.frames()
	if len(frames) != 1 || !strings.HasPrefix(frames[0], "ERROR: connection failed") {
		t.Errorf("frames = %v, want connection failed frame", frames)
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	m, _ := testManager(&fakeHostTransport{}, nil)

	ch := newFakeChannel()
	id := m.Connect(ch)
	m.Disconnect(id)
	m.Disconnect(id)
	m.Disconnect("no-such-session")

	if m.Count() != 0 {
		t.Errorf("sessions = %d, want 0", m.Count())
	}
	if ch.closeCalls() != 1 {
		t.Errorf("close calls = %d, want 1", ch.closeCalls())
	}
}

func TestCleanup(t *testing.T) {
	m, _ := testManager(&fakeHostTransport{}, nil)

	channels := make([]*fakeChannel, 3)
	for i := range channels {
		channels[i] = newFakeChannel()
		m.Connect(channels[i])
	}

	m.Cleanup()
	if m.Count() != 0 {
		t.Errorf("sessions = %d, want 0 after cleanup", m.Count())
	}
	for i, ch := range channels {
		if ch.closeCalls() == 0 {
			t.Errorf("channel %d not closed", i)
		}
	}
}

func TestTargetValidate(t *testing.T) {
	cases := []struct {
		name    string
		target  Target
		wantErr string
	}{
		{"valid", validTarget(), ""},
		{"missing host", Target{Username: "root", Container: "bot"}, "ip"},
		{"missing username", Target{Host: "h", Container: "bot"}, "username"},
		{"missing container", Target{Host: "h", Username: "root"}, "container"},
		{"shell metacharacters", Target{Host: "h", Username: "root", Container: "bot; rm -rf /"}, "invalid container name"},
		{"leading dash", Target{Host: "h", Username: "root", Container: "-f"}, "invalid container name"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.target.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tc.wantErr)
			}
		})
	}
}
