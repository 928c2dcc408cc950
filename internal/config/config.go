// Package config provides configuration helpers for callbridge commands.
// All configuration is read from environment variables once at process
// start and is read-only thereafter.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults for the server configuration.
const (
	DefaultPort              = "8080"
	DefaultModel             = "llama-3.1-8b-instant"
	DefaultBaseURL           = "https://api.groq.com/openai/v1"
	DefaultMaxTokens         = 150
	DefaultTemperature       = 0.6
	DefaultHistoryLimit      = 6
	DefaultIdleTimeout       = 2 * time.Minute
	DefaultGenerationTimeout = 30 * time.Second
	DefaultSystemPromptFile  = "system_prompt.txt"
	DefaultSystemPrompt      = "You are a helpful assistant."
	DefaultGreeting          = "Hey there, how can I help you today?"
)

// Config holds the callbridge server configuration.
type Config struct {
	// Port is the HTTP listen port.
	Port string

	// APIKey authenticates against the upstream completion API.
	APIKey string

	// BaseURL is the upstream OpenAI-compatible API base URL.
	BaseURL string

	// Model is the completion model identifier.
	Model string

	// MaxTokens caps response length. Kept small for voice latency.
	MaxTokens int

	// Temperature controls sampling randomness.
	Temperature float64

	// SystemPrompt seeds every completion request.
	SystemPrompt string

	// Greeting is the agent's opening line on a new call.
	Greeting string

	// HistoryLimit truncates prompt context to the most recent N turns.
	// Zero means no truncation.
	HistoryLimit int

	// IdleTimeout tears down a session with no inbound events and no
	// in-flight generation.
	IdleTimeout time.Duration

	// GenerationTimeout cancels a generation that runs too long.
	GenerationTimeout time.Duration

	// LogLevel is the slog level name (debug, info, warn, error).
	LogLevel string
}

// Load reads configuration from the environment, applying defaults
// for anything unset.
func Load() Config {
	return Config{
		Port:              getenv("CALLBRIDGE_PORT", DefaultPort),
		APIKey:            os.Getenv("GROQ_API_KEY"),
		BaseURL:           getenv("CALLBRIDGE_BASE_URL", DefaultBaseURL),
		Model:             getenv("CALLBRIDGE_MODEL", DefaultModel),
		MaxTokens:         getenvInt("CALLBRIDGE_MAX_TOKENS", DefaultMaxTokens),
		Temperature:       getenvFloat("CALLBRIDGE_TEMPERATURE", DefaultTemperature),
		SystemPrompt:      loadSystemPrompt(getenv("CALLBRIDGE_SYSTEM_PROMPT_FILE", DefaultSystemPromptFile)),
		Greeting:          getenv("CALLBRIDGE_GREETING", DefaultGreeting),
		HistoryLimit:      getenvInt("CALLBRIDGE_HISTORY_LIMIT", DefaultHistoryLimit),
		IdleTimeout:       getenvDuration("CALLBRIDGE_IDLE_TIMEOUT", DefaultIdleTimeout),
		GenerationTimeout: getenvDuration("CALLBRIDGE_GENERATION_TIMEOUT", DefaultGenerationTimeout),
		LogLevel:          getenv("LOG_LEVEL", "info"),
	}
}

// APIKeyRequired returns the upstream API key from GROQ_API_KEY.
// Exits with a usage hint if not set.
func APIKeyRequired() string {
	key := os.Getenv("GROQ_API_KEY")
	if key == "" {
		fmt.Fprintln(os.Stderr, "Error: GROQ_API_KEY environment variable is required")
		fmt.Fprintln(os.Stderr, "Usage: GROQ_API_KEY=gsk_... go run ./cmd/callbridge")
		os.Exit(1)
	}
	return key
}

// loadSystemPrompt reads the system prompt from a file, falling back to
// the built-in default when the file is missing or empty.
func loadSystemPrompt(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultSystemPrompt
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return DefaultSystemPrompt
	}
	return prompt
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getenvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
