// Package inference provides a streaming chat-completion client for
// OpenAI-compatible APIs (Groq, OpenAI, Ollama, vLLM, Together, and others).
//
// The package abstracts completions behind a single Provider interface so
// the serving layer can swap the real client for a mock in tests.
//
// Example usage:
//
//	client, _ := inference.NewClient(
//	    inference.WithAPIKey(os.Getenv("GROQ_API_KEY")),
//	    inference.WithModel("llama-3.1-8b-instant"),
//	)
//	defer client.Close()
//
//	stream, _ := client.Stream(ctx, &inference.ChatRequest{
//	    Messages: []inference.Message{
//	        {Role: inference.RoleUser, Content: "Hello!"},
//	    },
//	})
//	defer stream.Close()
//
//	for {
//	    chunk, err := stream.Recv()
//	    if err != nil || chunk.Done {
//	        break
//	    }
//	    fmt.Print(chunk.Delta)
//	}
package inference

import "context"

// Provider is the unified inference interface.
// All implementations must satisfy this interface.
type Provider interface {
	// Chat generates a complete response from a sequence of messages.
	// The call-serving path uses Stream exclusively; Chat backs
	// one-shot diagnostic tooling.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Stream generates a streaming response for real-time output.
	// The stream stops producing as soon as ctx is cancelled or the
	// upstream stream ends. Stream never retries: retry policy, if
	// any, belongs to the caller.
	Stream(ctx context.Context, req *ChatRequest) (Stream, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// Stream is a streaming response for real-time output. The sequence of
// chunks is finite and not restartable.
type Stream interface {
	// Recv returns the next chunk. A chunk with Done set marks the end
	// of the stream.
	Recv() (*StreamChunk, error)

	// Close stops the stream and releases resources.
	Close() error
}

// StreamChunk is a piece of a streaming response.
type StreamChunk struct {
	// Delta is the incremental text content.
	Delta string

	// FinishReason indicates why generation stopped (stop, length).
	FinishReason string

	// Done is true when the stream is complete.
	Done bool
}

// ChatRequest for chat completions.
type ChatRequest struct {
	// Messages is the conversation history.
	Messages []Message

	// Model overrides the default model.
	Model string

	// MaxTokens limits the response length.
	MaxTokens int

	// Temperature controls randomness (0.0-2.0).
	Temperature float64

	// TopP controls nucleus sampling.
	TopP float64

	// Stop sequences that halt generation.
	Stop []string
}

// ChatResponse from chat completion.
type ChatResponse struct {
	// Message is the assistant's response.
	Message Message

	// FinishReason indicates why generation stopped.
	FinishReason string

	// Usage tracks token consumption.
	Usage Usage

	// Model used for generation.
	Model string

	// LatencyMs is the response time in milliseconds.
	LatencyMs int64
}

// Usage tracks token consumption for billing and limits.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
