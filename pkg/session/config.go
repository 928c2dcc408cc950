package session

import (
	"log/slog"
	"time"

	"github.com/telavoice/callbridge/pkg/metrics"
)

// Config controls per-call session behavior.
type Config struct {
	// SystemPrompt seeds every completion request.
	SystemPrompt string

	// Greeting is spoken by the agent as soon as the call connects.
	// Empty disables the greeting turn.
	Greeting string

	// FallbackUtterance is spoken when the upstream completion fails
	// mid-turn, so the caller never hears a hanging response.
	FallbackUtterance string

	// HistoryLimit truncates prompt context to the most recent N turns.
	// Zero means the full transcript is sent.
	HistoryLimit int

	// IdleTimeout tears the session down when no inbound event arrives
	// and no generation is in flight for this long. Zero disables it.
	IdleTimeout time.Duration

	// GenerationTimeout cancels a generation exceeding this duration;
	// the failure is treated as an upstream timeout. Zero disables it.
	GenerationTimeout time.Duration

	// Logger is the structured logger; defaults to slog.Default().
	Logger *slog.Logger

	// Metrics is optional instrumentation; nil records nothing.
	Metrics *metrics.Metrics
}

// DefaultConfig returns sensible session defaults.
func DefaultConfig() Config {
	return Config{
		SystemPrompt:      "You are a helpful assistant.",
		Greeting:          "Hey there, how can I help you today?",
		FallbackUtterance: "I'm sorry, I'm having trouble hearing you. Could you say that again?",
		HistoryLimit:      6,
		IdleTimeout:       2 * time.Minute,
		GenerationTimeout: 30 * time.Second,
	}
}
