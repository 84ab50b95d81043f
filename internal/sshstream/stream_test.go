package sshstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jkeevk/aimlul-admin/internal/sshpool"
)

type fakeProcess struct {
	r io.Reader
	w *io.PipeWriter

	mu        sync.Mutex
	killCalls int
}

func newFakeProcess() *fakeProcess {
	r, w := io.Pipe()
	return &fakeProcess{r: r, w: w}
}

func (p *fakeProcess) Stdout() io.Reader { return p.r }

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	p.killCalls++
	p.mu.Unlock()
	p.w.Close()
	return nil
}

func (p *fakeProcess) Wait(timeout time.Duration) error { return nil }

func (p *fakeProcess) kills() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killCalls
}

type fakeStreamTransport struct {
	proc     *fakeProcess
	startErr error
}

func (t *fakeStreamTransport) Run(ctx context.Context, command string) (string, string, error) {
	return "", "", errors.New("not implemented")
}

func (t *fakeStreamTransport) StartProcess(command string) (sshpool.Process, error) {
	if t.startErr != nil {
		return nil, t.startErr
	}
	return t.proc, nil
}

func (t *fakeStreamTransport) Close() error { return nil }

func TestReadLineOrderAndEOF(t *testing.T) {
	proc := newFakeProcess()
	s, err := Open(&fakeStreamTransport{proc: proc}, "docker logs -f --tail 0 bot 2>&1")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	go func() {
		for i := 1; i <= 5; i++ {
			fmt.Fprintf(proc.w, "line %d\n", i)
		}
		proc.w.Close()
	}()

	for i := 1; i <= 5; i++ {
		line, err := s.ReadLine(time.Second)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if want := fmt.Sprintf("line %d", i); line != want {
			t.Errorf("line = %q, want %q", line, want)
		}
	}
	if _, err := s.ReadLine(time.Second); !errors.Is(err, io.EOF) {
		t.Errorf("after clean end err = %v, want io.EOF", err)
	}
}

func TestReadLineTimeout(t *testing.T) {
	proc := newFakeProcess()
	s, err := Open(&fakeStreamTransport{proc: proc}, "docker logs -f --tail 0 bot 2>&1")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, err := s.ReadLine(10 * time.Millisecond); !errors.Is(err, ErrReadTimeout) {
		t.Errorf("err = %v, want ErrReadTimeout", err)
	}
	// A timeout does not kill the stream.
	go fmt.Fprintln(proc.w, "still alive")
	line, err := s.ReadLine(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if line != "still alive" {
		t.Errorf("line = %q", line)
	}
}

func TestReadLineInterrupted(t *testing.T) {
	proc := newFakeProcess()
	s, err := Open(&fakeStreamTransport{proc: proc}, "docker logs -f --tail 0 bot 2>&1")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	proc.w.CloseWithError(errors.New("connection reset"))

	// The pump needs a moment to observe the failure.
	deadline := time.Now().Add(time.Second)
	for {
		_, err = s.ReadLine(50 * time.Millisecond)
		if !errors.Is(err, ErrReadTimeout) || time.Now().After(deadline) {
			break
		}
	}
	if !errors.Is(err, ErrInterrupted) {
		t.Errorf("err = %v, want ErrInterrupted", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	proc := newFakeProcess()
	s, err := Open(&fakeStreamTransport{proc: proc}, "docker logs -f --tail 0 bot 2>&1")
	if err != nil {
		t.Fatal(err)
	}

	s.Close()
	s.Close()
	if got := proc.kills(); got != 1 {
		t.Errorf("kill calls = %d, want 1", got)
	}
}

func TestOpenStartError(t *testing.T) {
	tr := &fakeStreamTransport{startErr: errors.New("session limit reached")}
	if _, err := Open(tr, "docker logs -f bot"); err == nil {
		t.Fatal("want error")
	}
}
