package inference

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/telavoice/callbridge/internal/httpc"
)

// Stream returns a streaming chat response.
//
// The streaming path never retries, even on 429 or 5xx: a silently
// retried call would stall the caller's turn-taking timing. Failures are
// returned as *UpstreamError with a reason code so the caller can decide.
func (c *Client) Stream(ctx context.Context, req *ChatRequest) (Stream, error) {
	model := req.Model
	if model == "" {
		model = c.config.Model
	}

	payload := c.buildChatPayload(req, model, true)

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(providerClient, fmt.Errorf("marshal payload: %w", err))
	}

	url := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(providerClient, fmt.Errorf("create request: %w", err))
	}

	c.setHeaders(httpReq)

	// Use stream timeout
	client := httpc.NewClient(c.config.StreamTimeout)
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, AsUpstream(err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, AsUpstream(c.parseError(resp))
	}

	return &clientStream{
		ctx:    ctx,
		reader: bufio.NewReader(resp.Body),
		body:   resp.Body,
	}, nil
}

// clientStream implements Stream for SSE responses.
type clientStream struct {
	ctx    context.Context
	reader *bufio.Reader
	body   io.ReadCloser
	closed bool
}

// Recv returns the next stream chunk. Cancellation is observed between
// successive chunks: once ctx is done, Recv returns the cancellation
// error and never another chunk.
func (s *clientStream) Recv() (*StreamChunk, error) {
	if s.closed {
		return nil, ErrStreamClosed
	}

	for {
		if err := s.ctx.Err(); err != nil {
			return nil, err
		}

		line, err := s.reader.ReadString('\n')
		if err == io.EOF {
			return &StreamChunk{Done: true}, nil
		}
		if err != nil {
			// The transport surfaces ctx cancellation as a read error
			// on the body; report the cancellation itself.
			if ctxErr := s.ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, AsUpstream(fmt.Errorf("read stream: %w", err))
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return &StreamChunk{Done: true}, nil
		}

		var event streamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			// Skip malformed events
			continue
		}

		if len(event.Choices) == 0 {
			continue
		}

		choice := event.Choices[0]
		return &StreamChunk{
			Delta:        choice.Delta.Content,
			FinishReason: choice.FinishReason,
			Done:         choice.FinishReason != "",
		}, nil
	}
}

// Close stops the stream.
func (s *clientStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}

// streamEvent is the SSE event format.
type streamEvent struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
			Role    string `json:"role"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}
