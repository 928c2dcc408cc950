// Package session owns the conversation loop for one phone call.
//
// A Session receives decoded platform events in arrival order, mutates
// its transcript, and drives streaming completions against the upstream
// provider. At most one generation is in flight per session; starting a
// new one (or an explicit interruption) cancels the previous generation
// before any further output is emitted. Cancellation is cooperative and
// strictly ordered: once a generation is observed as cancelled, no chunk
// for its turn reaches the connection.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/telavoice/callbridge/pkg/inference"
	"github.com/telavoice/callbridge/pkg/protocol"
	"github.com/telavoice/callbridge/pkg/transcript"
)

// ErrSessionClosed is returned when an event reaches a torn-down session.
var ErrSessionClosed = errors.New("session: closed")

// Sink delivers outbound protocol events to the platform connection.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(event any) error
}

// State is the call lifecycle phase.
type State int

const (
	// StateConnecting is the phase before the connection is attached.
	StateConnecting State = iota

	// StateActive means the session is processing inbound events.
	StateActive

	// StateGenerating means a completion stream is in flight.
	StateGenerating

	// StateIdle means no generation is in flight and the idle timer runs.
	StateIdle

	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateGenerating:
		return "generating"
	case StateIdle:
		return "idle"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// generation is one in-flight streaming completion.
type generation struct {
	id      string
	turnID  string
	ctx     context.Context
	cancel  context.CancelFunc
	started time.Time

	// canceled and finished are guarded by the session mutex.
	canceled bool
	finished bool
}

// Session is the per-call state machine.
type Session struct {
	callID   string
	provider inference.Provider
	sink     Sink
	cfg      Config
	logger   *slog.Logger

	mu         sync.Mutex
	state      State
	transcript *transcript.Transcript
	gen        *generation
	idleTimer  *time.Timer
	onIdle     func()
	closed     bool

	wg sync.WaitGroup
}

// New creates a session for the given call id. The session does not
// emit anything until Attach is called with a live connection sink.
func New(callID string, provider inference.Provider, sink Sink, cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		callID:     callID,
		provider:   provider,
		sink:       sink,
		cfg:        cfg,
		logger:     logger.With("component", "session", "call_id", callID),
		state:      StateConnecting,
		transcript: transcript.New(),
	}
}

// CallID returns the opaque call identifier.
func (s *Session) CallID() string {
	return s.callID
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transcript returns a copy of the conversation turns so far.
func (s *Session) Transcript() []transcript.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.Turns()
}

// OnIdle sets the callback invoked when the idle timeout fires.
// Must be set before Attach.
func (s *Session) OnIdle(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onIdle = fn
}

// Attach transitions the session to active and speaks the configured
// greeting as a complete agent turn.
func (s *Session) Attach() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.state = StateActive
	s.resetIdleLocked()

	if s.cfg.Greeting == "" {
		return nil
	}
	turn := s.transcript.AppendOrUpdateTurn(transcript.RoleAgent, s.cfg.Greeting)
	s.transcript.CompleteTurn(turn.ID)
	s.sendLocked(protocol.NewResponseChunk(turn.ID, s.cfg.Greeting))
	s.sendLocked(protocol.NewResponseEnd(turn.ID))
	return nil
}

// HandleCallerUpdate records incremental caller speech. Non-final text
// replaces the trailing partial caller turn; a final update completes
// the turn and begins a response generation.
func (s *Session) HandleCallerUpdate(text string, isFinal bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.resetIdleLocked()

	turn := s.transcript.AppendOrUpdateTurn(transcript.RoleCaller, text)
	if !isFinal {
		s.state = StateActive
		return nil
	}

	s.transcript.CompleteTurn(turn.ID)
	s.beginGenerationLocked()
	return nil
}

// HandleInterruption cancels any in-flight generation immediately.
// The interrupted agent turn is closed with only the content streamed so
// far, keeping the transcript consistent with what was actually spoken.
func (s *Session) HandleInterruption() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.resetIdleLocked()

	if s.gen != nil {
		s.logger.Debug("interruption, cancelling generation", "generation_id", s.gen.id)
		s.cancelGenerationLocked()
		s.cfg.Metrics.GenerationInterrupted()
	}
	s.state = StateActive
	return nil
}

// HandlePing echoes a keep-alive frame back with the same timestamp.
func (s *Session) HandlePing(timestamp int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.resetIdleLocked()
	s.sendLocked(protocol.NewPingPong(timestamp))
	return nil
}

// Close tears the session down: cancels any live generation, stops the
// idle timer, and waits for the generation goroutine to exit. Closing an
// already-closed session is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.state = StateClosed
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
	if s.gen != nil {
		s.gen.canceled = true
		s.gen.cancel()
		s.transcript.CompleteTurn(s.gen.turnID)
		s.gen = nil
	}
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// beginGenerationLocked starts a streaming completion for the current
// transcript. A live generation is cancelled first (barge-in).
func (s *Session) beginGenerationLocked() {
	if s.gen != nil {
		s.logger.Debug("barge-in, cancelling previous generation", "generation_id", s.gen.id)
		s.cancelGenerationLocked()
		s.cfg.Metrics.GenerationInterrupted()
	}

	ctx := context.Background()
	var cancel context.CancelFunc
	if s.cfg.GenerationTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.cfg.GenerationTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	turn := s.transcript.AppendOrUpdateTurn(transcript.RoleAgent, "")
	gen := &generation{
		id:      uuid.NewString(),
		turnID:  turn.ID,
		ctx:     ctx,
		cancel:  cancel,
		started: time.Now(),
	}
	s.gen = gen
	s.state = StateGenerating
	s.cfg.Metrics.GenerationStarted()

	messages := s.promptLocked()

	s.wg.Add(1)
	go s.run(gen, messages)
}

// promptLocked builds the completion request context from the
// transcript snapshot.
func (s *Session) promptLocked() []inference.Message {
	entries := s.transcript.SnapshotForPrompt(s.cfg.HistoryLimit)
	messages := make([]inference.Message, 0, len(entries)+1)
	if s.cfg.SystemPrompt != "" {
		messages = append(messages, inference.NewSystemMessage(s.cfg.SystemPrompt))
	}
	for _, e := range entries {
		if e.Role == transcript.RoleAgent {
			messages = append(messages, inference.NewAssistantMessage(e.Content))
		} else {
			messages = append(messages, inference.NewUserMessage(e.Content))
		}
	}
	return messages
}

// run drives one streaming completion to the sink. Runs on its own
// goroutine; every emission re-checks cancellation under the session
// mutex so nothing is written after the generation is cancelled.
func (s *Session) run(gen *generation, messages []inference.Message) {
	defer s.wg.Done()
	defer gen.cancel()

	stream, err := s.provider.Stream(gen.ctx, &inference.ChatRequest{Messages: messages})
	if err != nil {
		if s.wasCanceled(gen) {
			return
		}
		s.finishWithError(gen, err)
		return
	}
	defer stream.Close()

	firstToken := true
	for {
		chunk, err := stream.Recv()
		if err != nil {
			if s.wasCanceled(gen) {
				return
			}
			s.finishWithError(gen, err)
			return
		}
		if chunk.Delta != "" {
			if firstToken {
				firstToken = false
				s.cfg.Metrics.FirstToken(time.Since(gen.started))
			}
			if !s.emitChunk(gen, chunk.Delta) {
				return
			}
		}
		if chunk.Done {
			s.finishComplete(gen)
			return
		}
	}
}

// emitChunk appends streamed text to the agent turn and forwards it to
// the connection. Returns false once the generation is cancelled or
// finished, after which no further chunk is emitted.
func (s *Session) emitChunk(gen *generation, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen.canceled || gen.finished || s.closed {
		return false
	}
	if err := s.transcript.AppendContent(gen.turnID, text); err != nil {
		return false
	}
	s.sendLocked(protocol.NewResponseChunk(gen.turnID, text))
	s.cfg.Metrics.ChunkStreamed()
	return true
}

// finishComplete closes the agent turn after a natural end of stream.
func (s *Session) finishComplete(gen *generation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen.canceled || gen.finished || s.closed {
		return
	}
	gen.finished = true
	s.transcript.CompleteTurn(gen.turnID)
	s.sendLocked(protocol.NewResponseEnd(gen.turnID))
	s.clearGenerationLocked(gen)
}

// finishWithError closes the agent turn after an upstream failure. The
// caller hears the fallback utterance instead of a hanging response, and
// the session stays usable for the next utterance.
func (s *Session) finishWithError(gen *generation, err error) {
	ue := inference.AsUpstream(err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen.canceled || gen.finished || s.closed {
		return
	}
	gen.finished = true

	s.logger.Warn("generation failed",
		"generation_id", gen.id,
		"reason", string(ue.Reason),
		"error", err,
	)
	s.cfg.Metrics.UpstreamError(string(ue.Reason))

	s.sendLocked(protocol.NewError(string(ue.Reason)))
	if s.cfg.FallbackUtterance != "" {
		if appendErr := s.transcript.AppendContent(gen.turnID, s.cfg.FallbackUtterance); appendErr == nil {
			s.sendLocked(protocol.NewResponseChunk(gen.turnID, s.cfg.FallbackUtterance))
		}
	}
	s.transcript.CompleteTurn(gen.turnID)
	s.sendLocked(protocol.NewResponseEnd(gen.turnID))
	s.clearGenerationLocked(gen)
}

// cancelGenerationLocked cancels the live generation and closes its
// turn with whatever content has streamed so far.
func (s *Session) cancelGenerationLocked() {
	gen := s.gen
	gen.canceled = true
	gen.cancel()
	s.transcript.CompleteTurn(gen.turnID)
	s.sendLocked(protocol.NewResponseEnd(gen.turnID))
	s.gen = nil
}

// clearGenerationLocked resets state after a generation ends.
func (s *Session) clearGenerationLocked(gen *generation) {
	if s.gen == gen {
		s.gen = nil
	}
	if s.state == StateGenerating {
		s.state = StateIdle
	}
	s.resetIdleLocked()
}

func (s *Session) wasCanceled(gen *generation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen.canceled || s.closed
}

// sendLocked writes an outbound event, logging but not propagating
// write failures; a dying connection is detected by the read loop.
func (s *Session) sendLocked(event any) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Send(event); err != nil {
		s.logger.Debug("outbound send failed", "error", err)
	}
}

// resetIdleLocked restarts the idle teardown timer.
func (s *Session) resetIdleLocked() {
	if s.cfg.IdleTimeout <= 0 || s.closed {
		return
	}
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	s.idleTimer = time.AfterFunc(s.cfg.IdleTimeout, s.idleExpired)
}

// idleExpired fires on the timer goroutine. A session with a live
// generation is not idle; the timer restarts when that generation ends.
func (s *Session) idleExpired() {
	s.mu.Lock()
	if s.closed || s.gen != nil {
		s.mu.Unlock()
		return
	}
	onIdle := s.onIdle
	s.mu.Unlock()

	s.logger.Info("session idle timeout")
	if onIdle != nil {
		onIdle()
	}
}
