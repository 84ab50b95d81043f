// Package sshstream bridges a long-running remote process (typically a
// docker logs follow) to a consumable sequence of output lines.
package sshstream

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jkeevk/aimlul-admin/internal/sshpool"
)

var (
	// ErrReadTimeout reports that no line arrived within the poll window.
	// The stream is still alive; the caller decides whether to keep waiting.
	ErrReadTimeout = errors.New("sshstream: read timeout")
	// ErrInterrupted reports that the stream ended unexpectedly, e.g. the
	// underlying connection dropped mid-read.
	ErrInterrupted = errors.New("sshstream: stream interrupted")
)

const (
	lineBufferSize  = 100
	killWaitTimeout = 2 * time.Second
	maxLineSize     = 1024 * 1024
)

// Stream is a running remote process whose stdout is consumed line by
// line. The sequence is effectively infinite until the remote process
// ends or the caller closes the stream.
type Stream struct {
	proc  sshpool.Process
	lines chan string
	done  chan struct{}

	mu      sync.Mutex
	closed  bool
	readErr error
}

// Open starts command on the transport and begins pumping its output
// lines. The command's stdin is never used.
func Open(t sshpool.Transport, command string) (*Stream, error) {
	proc, err := t.StartProcess(command)
	if err != nil {
		return nil, fmt.Errorf("start remote process: %w", err)
	}
	s := &Stream{
		proc:  proc,
		lines: make(chan string, lineBufferSize),
		done:  make(chan struct{}),
	}
	go s.pump()
	return s, nil
}

// pump reads process stdout into the line channel until the process ends
// or the stream is closed.
func (s *Stream) pump() {
	defer close(s.lines)

	scanner := bufio.NewScanner(s.proc.Stdout())
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		select {
		case s.lines <- scanner.Text():
		case <-s.done:
			return
		}
	}

	if err := scanner.Err(); err != nil {
		s.mu.Lock()
		// A read error after Close is expected teardown noise, not an
		// interruption.
		if !s.closed {
			s.readErr = fmt.Errorf("%w: %v", ErrInterrupted, err)
		}
		s.mu.Unlock()
	}
}

// ReadLine waits up to timeout for the next output line. It returns
// ErrReadTimeout when the window elapses, io.EOF when the remote process
// ended cleanly, and ErrInterrupted when the stream died underneath.
func (s *Stream) ReadLine(timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case line, ok := <-s.lines:
		if !ok {
			s.mu.Lock()
			err := s.readErr
			s.mu.Unlock()
			if err != nil {
				return "", err
			}
			return "", io.EOF
		}
		return line, nil
	case <-timer.C:
		return "", ErrReadTimeout
	}
}

// Close terminates the remote process and waits briefly for it to exit.
// It is idempotent and silently absorbs "already gone" conditions.
func (s *Stream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	_ = s.proc.Kill()
	_ = s.proc.Wait(killWaitTimeout)
}
