package inference

import (
	"context"
	"sync"
	"time"
)

// Mock implements Provider for testing.
type Mock struct {
	// ChatFunc is called when Chat is invoked.
	ChatFunc func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// StreamFunc is called when Stream is invoked.
	StreamFunc func(ctx context.Context, req *ChatRequest) (Stream, error)

	// HealthFunc is called when Health is invoked.
	HealthFunc func(ctx context.Context) error

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Time   time.Time
}

// NewMock creates a new mock provider with sensible defaults.
// Stream yields the words of a canned response as separate chunks.
func NewMock() *Mock {
	m := &Mock{
		ChatFunc: func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			return &ChatResponse{
				Message:      NewAssistantMessage("Mock response"),
				FinishReason: "stop",
				Usage:        Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
			}, nil
		},
		HealthFunc: func(ctx context.Context) error {
			return nil
		},
	}
	m.StreamFunc = func(ctx context.Context, req *ChatRequest) (Stream, error) {
		return NewMockStream(ctx, []string{"Mock ", "response"}), nil
	}
	return m
}

// NewScriptedMock creates a mock whose streams replay the given chunks
// with an optional delay between them.
func NewScriptedMock(chunks []string, delay time.Duration) *Mock {
	m := NewMock()
	m.StreamFunc = func(ctx context.Context, req *ChatRequest) (Stream, error) {
		s := NewMockStream(ctx, chunks)
		s.Delay = delay
		return s, nil
	}
	return m
}

// Chat calls ChatFunc and records the call.
func (m *Mock) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	m.record("Chat")
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	return nil, WrapError("mock", ErrProviderUnavailable)
}

// Stream calls StreamFunc and records the call.
func (m *Mock) Stream(ctx context.Context, req *ChatRequest) (Stream, error) {
	m.record("Stream")
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, req)
	}
	return nil, WrapError("mock", ErrProviderUnavailable)
}

// Health calls HealthFunc and records the call.
func (m *Mock) Health(ctx context.Context) error {
	m.record("Health")
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// Close calls CloseFunc and records the call.
func (m *Mock) Close() error {
	m.record("Close")
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// CallCount returns how many times a method was invoked.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// Calls returns all recorded invocations.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *Mock) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Time: time.Now()})
}

// MockStream replays scripted chunks, observing ctx cancellation
// between chunks like the real client stream.
type MockStream struct {
	// Delay is slept before each chunk is returned.
	Delay time.Duration

	// Err, if set, is returned after the scripted chunks run out
	// instead of a Done chunk.
	Err error

	ctx    context.Context
	chunks []string
	next   int
	closed bool
	mu     sync.Mutex
}

// NewMockStream creates a stream that yields the given chunks in order.
func NewMockStream(ctx context.Context, chunks []string) *MockStream {
	if ctx == nil {
		ctx = context.Background()
	}
	return &MockStream{ctx: ctx, chunks: chunks}
}

// Recv returns the next scripted chunk.
func (s *MockStream) Recv() (*StreamChunk, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrStreamClosed
	}

	if s.Delay > 0 {
		select {
		case <-s.ctx.Done():
			return nil, s.ctx.Err()
		case <-time.After(s.Delay):
		}
	}

	if err := s.ctx.Err(); err != nil {
		return nil, err
	}

	if s.next >= len(s.chunks) {
		if s.Err != nil {
			return nil, s.Err
		}
		return &StreamChunk{FinishReason: "stop", Done: true}, nil
	}

	chunk := &StreamChunk{Delta: s.chunks[s.next]}
	s.next++
	return chunk, nil
}

// Close marks the stream closed.
func (s *MockStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Verify Mock implements Provider at compile time.
var _ Provider = (*Mock)(nil)
var _ Stream = (*MockStream)(nil)
