package web

import (
	"errors"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/telavoice/callbridge/internal/log"
	"github.com/telavoice/callbridge/pkg/bridge"
	"github.com/telavoice/callbridge/pkg/protocol"
)

// wsSink serializes outbound writes to one platform connection.
// Chunks arrive from the generation goroutine while pong echoes come
// from the read loop; gofiber's WriteJSON is not safe for concurrent
// callers.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newWSSink(conn *websocket.Conn) *wsSink {
	return &wsSink{conn: conn}
}

// Send implements session.Sink.
func (s *wsSink) Send(event any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(event)
}

// Close shuts the underlying connection, unblocking the read loop.
// Called by the bridge when a session is torn down server-side, so an
// idle-expired call does not linger as a silently dead connection.
func (s *wsSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// handleHealth reports liveness and the current session count.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "ok",
		"service":  "callbridge",
		"sessions": s.manager.Count(),
	})
}

// handleCall owns one platform connection for its whole lifetime: it
// binds the call id to a session, then pumps inbound frames until the
// platform hangs up or sends call_end.
func (s *Server) handleCall(c *websocket.Conn) {
	callID := c.Params("id")
	logger := log.With("component", "web", "call_id", callID)

	sink := newWSSink(c)
	sess, err := s.manager.Connect(callID, sink)
	if err != nil {
		var dup *bridge.DuplicateSessionError
		if errors.As(err, &dup) {
			logger.Warn("rejecting duplicate connection")
			_ = sink.Send(protocol.NewError("duplicate_session"))
		} else {
			logger.Error("connect failed", "error", err)
		}
		_ = c.Close()
		return
	}
	defer s.manager.Disconnect(callID)

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			logger.Debug("connection closed", "error", err)
			return
		}

		if err := s.manager.Dispatch(sess, raw); err != nil {
			if errors.Is(err, bridge.ErrCallEnded) {
				logger.Info("call ended by platform")
				return
			}
			var malformed *protocol.MalformedMessageError
			if errors.As(err, &malformed) {
				continue
			}
			logger.Warn("dispatch failed", "error", err)
		}
	}
}
