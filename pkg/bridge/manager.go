// Package bridge routes platform connections to per-call sessions.
//
// The Manager owns the process-wide call-id→Session map. The map is
// guarded per id: concurrent connect/disconnect on the same call id
// serialize, while operations on different call ids never contend and
// never wait on another call's in-flight generation.
package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/telavoice/callbridge/pkg/inference"
	"github.com/telavoice/callbridge/pkg/metrics"
	"github.com/telavoice/callbridge/pkg/protocol"
	"github.com/telavoice/callbridge/pkg/session"
)

// Manager tracks live sessions keyed by call id.
type Manager struct {
	provider   inference.Provider
	sessionCfg session.Config
	logger     *slog.Logger
	metrics    *metrics.Metrics

	mu       sync.Mutex
	sessions map[string]*tracked
	locks    map[string]*sync.Mutex
	wg       sync.WaitGroup
}

// tracked pairs a session and its connection sink with one-shot teardown.
type tracked struct {
	sess *session.Session
	sink session.Sink
	once sync.Once
}

// NewManager creates a connection manager. The session config is applied
// to every call; metrics may be nil.
func NewManager(provider inference.Provider, sessionCfg session.Config, logger *slog.Logger, m *metrics.Metrics) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		provider:   provider,
		sessionCfg: sessionCfg,
		logger:     logger.With("component", "bridge"),
		metrics:    m,
		sessions:   make(map[string]*tracked),
		locks:      make(map[string]*sync.Mutex),
	}
}

// Connect creates a session for the given call id bound to the given
// connection sink, and returns it attached (greeting already emitted).
// Fails with *DuplicateSessionError if a live session holds the id.
func (m *Manager) Connect(callID string, sink session.Sink) (*session.Session, error) {
	lock := m.lockFor(callID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	if _, exists := m.sessions[callID]; exists {
		m.mu.Unlock()
		m.metrics.DuplicateConnection()
		return nil, &DuplicateSessionError{CallID: callID}
	}

	cfg := m.sessionCfg
	cfg.Logger = m.logger
	cfg.Metrics = m.metrics
	sess := session.New(callID, m.provider, sink, cfg)
	entry := &tracked{sess: sess, sink: sink}
	m.sessions[callID] = entry
	m.wg.Add(1)
	m.mu.Unlock()
	m.metrics.SessionOpened()

	sess.OnIdle(func() { m.Disconnect(callID) })

	if err := sess.Attach(); err != nil {
		m.teardown(callID, entry)
		return nil, err
	}

	m.logger.Info("call connected", "call_id", callID)
	return sess, nil
}

// Dispatch decodes a raw inbound frame and routes it to the session.
// Malformed frames return *protocol.MalformedMessageError; the caller
// drops them and keeps the connection open. A call_end event returns
// ErrCallEnded so the read loop can close the connection.
func (m *Manager) Dispatch(sess *session.Session, raw []byte) error {
	event, err := protocol.Decode(raw)
	if err != nil {
		m.metrics.MalformedMessage()
		m.logger.Warn("dropping malformed frame", "call_id", sess.CallID(), "error", err)
		return err
	}

	switch msg := event.(type) {
	case protocol.CallerUtterance:
		return sess.HandleCallerUpdate(msg.Text, msg.IsFinal)
	case protocol.Interruption:
		return sess.HandleInterruption()
	case protocol.PingPong:
		return sess.HandlePing(msg.Timestamp)
	case protocol.CallEnd:
		m.Disconnect(sess.CallID())
		return ErrCallEnded
	default:
		return &protocol.MalformedMessageError{Reason: "unhandled event"}
	}
}

// ErrCallEnded signals a clean platform-initiated call end.
var ErrCallEnded = errors.New("bridge: call ended")

// Route dispatches a raw frame by call id, for inbound events that
// arrive without a bound session. Unknown ids fail with
// *SessionNotFoundError.
func (m *Manager) Route(callID string, raw []byte) error {
	m.mu.Lock()
	entry, ok := m.sessions[callID]
	m.mu.Unlock()
	if !ok {
		m.logger.Warn("dropping event for unknown call", "call_id", callID)
		return &SessionNotFoundError{CallID: callID}
	}
	return m.Dispatch(entry.sess, raw)
}

// Disconnect tears down the session for the given call id: cancels any
// live generation and removes the id from the map. Calling it twice has
// the same observable effect as once.
func (m *Manager) Disconnect(callID string) {
	lock := m.lockFor(callID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	entry, ok := m.sessions[callID]
	if !ok {
		delete(m.locks, callID)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.teardown(callID, entry)
}

// Session returns the live session for a call id, if any.
func (m *Manager) Session(callID string) (*session.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.sessions[callID]
	if !ok {
		return nil, false
	}
	return entry.sess, true
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseAll tears down every live session and waits for teardown to
// finish or ctx to expire. Returns false on timeout.
func (m *Manager) CloseAll(ctx context.Context) bool {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Disconnect(id)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// teardown removes and closes a tracked session exactly once. The
// connection sink is closed too, so a server-side teardown (idle timer,
// shutdown) unblocks the connection's read loop instead of leaving the
// platform a dead socket.
func (m *Manager) teardown(callID string, entry *tracked) {
	entry.once.Do(func() {
		m.mu.Lock()
		if m.sessions[callID] == entry {
			delete(m.sessions, callID)
		}
		delete(m.locks, callID)
		m.mu.Unlock()

		_ = entry.sess.Close()
		if closer, ok := entry.sink.(io.Closer); ok {
			_ = closer.Close()
		}
		m.metrics.SessionClosed()
		m.logger.Info("call disconnected", "call_id", callID)
		m.wg.Done()
	})
}

// lockFor returns the per-id lock, creating it on first use.
func (m *Manager) lockFor(callID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[callID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[callID] = lock
	}
	return lock
}
