// Package wsmanager maps each client-facing WebSocket connection to at
// most one live log stream over a pooled SSH connection.
//
// Each session runs a single forwarding loop: lines read from the
// streaming bridge are sent to the client in order, a heartbeat goroutine
// sends empty frames so intermediaries do not drop the socket, and a
// short poll timeout lets the loop notice client disconnects promptly
// instead of blocking on the remote side. Teardown of both sides is
// guaranteed on every exit path.
package wsmanager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jkeevk/aimlul-admin/internal/logutil"
	"github.com/jkeevk/aimlul-admin/internal/sshexec"
	"github.com/jkeevk/aimlul-admin/internal/sshpool"
	"github.com/jkeevk/aimlul-admin/internal/sshstream"
)

// Channel is the client-facing real-time connection. An empty Send frame
// is a heartbeat and carries no content.
type Channel interface {
	Send(ctx context.Context, text string) error
	Receive(ctx context.Context) (string, error)
	Close() error
}

// State is the lifecycle state of a session.
type State string

const (
	StateConnecting State = "connecting"
	StateStreaming  State = "streaming"
	StateClosing    State = "closing"
	StateClosed     State = "closed"
)

// session is one client connection and its associated streaming state.
// At most one stream per session; removing the session releases both the
// client channel and the remote process together.
type session struct {
	id        string
	channel   Channel
	stream    *sshstream.Stream
	cancel    context.CancelFunc
	state     State
	target    Target
	createdAt time.Time
	lastSeen  time.Time
}

// Manager owns the session table. Sessions are fully independent; the
// table is the only cross-session state and sits behind one mutex.
type Manager struct {
	pool *sshpool.Pool

	mu       sync.Mutex
	sessions map[string]*session

	// HeartbeatInterval is how often an empty keep-alive frame is sent.
	HeartbeatInterval time.Duration
	// PollTimeout bounds each wait for the next remote line, which also
	// bounds cancellation latency.
	PollTimeout time.Duration
	// HistoryLines is how many lines of log history are sent before the
	// live stream starts.
	HistoryLines int
}

// New creates a Manager streaming over connections from pool.
func New(pool *sshpool.Pool) *Manager {
	return &Manager{
		pool:              pool,
		sessions:          make(map[string]*session),
		HeartbeatInterval: 10 * time.Second,
		PollTimeout:       time.Second,
		HistoryLines:      50,
	}
}

// Connect registers a client channel and returns the new session ID.
func (m *Manager) Connect(ch Channel) string {
	s := &session{
		id:        uuid.New().String(),
		channel:   ch,
		state:     StateConnecting,
		createdAt: time.Now(),
		lastSeen:  time.Now(),
	}
	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	return s.id
}

// Stream runs the log streaming loop for the session until the client
// disconnects, the remote stream ends, or ctx is cancelled. It blocks for
// the lifetime of the stream and tears down both sides before returning.
func (m *Manager) Stream(ctx context.Context, sessionID string, target Target) error {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("session %q not found", sessionID)
	}
	streamCtx, cancel := context.WithCancel(ctx)
	sess.cancel = cancel
	sess.target = target
	m.mu.Unlock()
	defer cancel()

	ch := sess.channel

	if err := target.Validate(); err != nil {
		m.trySend(ch, "ERROR: "+err.Error())
		m.remove(sess)
		return err
	}

	conn, err := m.pool.Acquire(streamCtx, target.Host, target.Username, target.Password)
	if err != nil {
		log.Printf("[wsmanager] session %s: %v", sess.id, err)
		m.trySend(ch, "ERROR: connection failed: "+err.Error())
		m.remove(sess)
		return err
	}

	var stream *sshstream.Stream
	connLost := false
	defer func() {
		m.setState(sess, StateClosing)
		if stream != nil {
			stream.Close()
		}
		if connLost {
			m.pool.MarkUnhealthy(conn)
		} else {
			m.pool.Release(conn)
		}
		m.remove(sess)
	}()

	// History first, then the live stream.
	histCmd := fmt.Sprintf("docker logs --tail %d %s 2>&1", m.HistoryLines, target.Container)
	history, _ := sshexec.Run(streamCtx, conn.Transport(), histCmd)
	header := fmt.Sprintf("=== Last %d lines ===\n%s\n=== Live Stream Started ===\n", m.HistoryLines, history)
	if err := ch.Send(streamCtx, header); err != nil {
		// Client already gone; a normal termination path.
		return nil
	}

	followCmd := fmt.Sprintf("docker logs -f --tail 0 %s 2>&1", target.Container)
	stream, err = sshstream.Open(conn.Transport(), followCmd)
	if err != nil {
		connLost = true
		m.trySend(ch, "ERROR: "+err.Error())
		return err
	}

	m.mu.Lock()
	sess.stream = stream
	sess.state = StateStreaming
	m.mu.Unlock()
	log.Printf("[wsmanager] session %s streaming %s on %s", sess.id,
		logutil.SanitizeForLog(target.Container), logutil.SanitizeForLog(target.Host))

	// Keep-alive so proxies do not time out the socket between log lines.
	go func() {
		ticker := time.NewTicker(m.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-streamCtx.Done():
				return
			case <-ticker.C:
				if err := ch.Send(streamCtx, ""); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	for {
		if streamCtx.Err() != nil {
			return nil
		}
		line, err := stream.ReadLine(m.PollTimeout)
		switch {
		case errors.Is(err, sshstream.ErrReadTimeout):
			continue
		case errors.Is(err, io.EOF):
			// Remote process ended cleanly.
			return nil
		case err != nil:
			connLost = true
			log.Printf("[wsmanager] session %s: %v", sess.id, err)
			m.trySend(ch, "ERROR: log stream interrupted")
			return err
		}
		if line == "" {
			continue
		}
		m.touch(sess)
		if err := ch.Send(streamCtx, line); err != nil {
			// Client disconnect; the first detected cause wins and
			// secondary errors from the other side are absorbed.
			return nil
		}
	}
}

// Disconnect cancels the session's streaming loop, if any, and removes
// the session. Safe to call more than once.
func (m *Manager) Disconnect(sessionID string) {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return
	}
	if sess.cancel != nil {
		sess.cancel()
	}
	m.remove(sess)
}

// Cleanup force-terminates every remaining session: remote processes are
// killed and client channels closed, tolerating individual failures.
// Used at shutdown so no remote tail is left orphaned.
func (m *Manager) Cleanup() {
	type teardown struct {
		cancel  context.CancelFunc
		stream  *sshstream.Stream
		channel Channel
	}

	m.mu.Lock()
	pending := make([]teardown, 0, len(m.sessions))
	for _, s := range m.sessions {
		s.state = StateClosing
		pending = append(pending, teardown{cancel: s.cancel, stream: s.stream, channel: s.channel})
	}
	m.sessions = make(map[string]*session)
	m.mu.Unlock()

	for _, t := range pending {
		if t.cancel != nil {
			t.cancel()
		}
		if t.stream != nil {
			t.stream.Close()
		}
		_ = t.channel.Close()
	}
	if len(pending) > 0 {
		log.Printf("[wsmanager] cleaned up %d session(s)", len(pending))
	}
}

// Count returns the number of tracked sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// remove deletes the session record and closes the client channel.
// Already-closed channels are expected and silently absorbed.
func (m *Manager) remove(sess *session) {
	m.mu.Lock()
	delete(m.sessions, sess.id)
	sess.state = StateClosed
	m.mu.Unlock()
	_ = sess.channel.Close()
}

func (m *Manager) setState(sess *session, state State) {
	m.mu.Lock()
	sess.state = state
	m.mu.Unlock()
}

func (m *Manager) touch(sess *session) {
	m.mu.Lock()
	sess.lastSeen = time.Now()
	m.mu.Unlock()
}

// trySend is a best-effort send used on error paths where the channel may
// already be gone.
func (m *Manager) trySend(ch Channel, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = ch.Send(ctx, text)
}
