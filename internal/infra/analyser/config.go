package analyser

import (
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/sashabaranov/go-openai"

	pkgconfig "traceback-analyser/pkg/config"
)

// Supported providers.
const (
	ProviderOpenAI = "openai"
	ProviderClaude = "claude"
	ProviderNoOp   = "noop"
)

const (
	DefaultInputMaxTokens    = 2000
	DefaultOutputMaxTokens   = 1000
	DefaultTimeout           = 30 * time.Second
	DefaultRequestsPerSecond = 5.0
	DefaultBurst             = 10
)

// Config holds the settings shared by all providers.
type Config struct {
	Provider string
	APIKey   string
	Model    string

	// InputMaxTokens bounds the prompt (instruction plus trace).
	InputMaxTokens  int
	OutputMaxTokens int

	Timeout     time.Duration
	Temperature float64

	// Outbound request rate towards the provider.
	RequestsPerSecond float64
	Burst             int
}

// DefaultConfig returns the defaults for provider with no API key.
func DefaultConfig(provider string) Config {
	return Config{
		Provider:          provider,
		Model:             defaultModel(provider),
		InputMaxTokens:    DefaultInputMaxTokens,
		OutputMaxTokens:   DefaultOutputMaxTokens,
		Timeout:           DefaultTimeout,
		RequestsPerSecond: DefaultRequestsPerSecond,
		Burst:             DefaultBurst,
	}
}

func defaultModel(provider string) string {
	switch provider {
	case ProviderClaude:
		return string(anthropic.ModelClaudeSonnet4_5_20250929)
	case ProviderOpenAI:
		return openai.GPT3Dot5Turbo
	default:
		return ProviderNoOp
	}
}

// LoadConfig reads the ANALYSER_* variables. The API key comes from
// OPENAI_API_KEY or ANTHROPIC_API_KEY depending on the provider.
func LoadConfig() Config {
	provider := pkgconfig.GetEnvString("ANALYSER_PROVIDER", ProviderOpenAI)
	cfg := DefaultConfig(provider)

	switch provider {
	case ProviderOpenAI:
		cfg.APIKey = pkgconfig.GetEnvString("OPENAI_API_KEY", "")
	case ProviderClaude:
		cfg.APIKey = pkgconfig.GetEnvString("ANTHROPIC_API_KEY", "")
	}

	cfg.Model = pkgconfig.GetEnvString("ANALYSER_MODEL", cfg.Model)
	cfg.InputMaxTokens = pkgconfig.GetEnvInt("ANALYSER_INPUT_MAX_TOKENS", cfg.InputMaxTokens)
	cfg.OutputMaxTokens = pkgconfig.GetEnvInt("ANALYSER_OUTPUT_MAX_TOKENS", cfg.OutputMaxTokens)
	cfg.Timeout = pkgconfig.GetEnvDuration("ANALYSER_TIMEOUT", cfg.Timeout)
	cfg.Temperature = pkgconfig.GetEnvFloat("ANALYSER_TEMPERATURE", cfg.Temperature)
	cfg.RequestsPerSecond = pkgconfig.GetEnvFloat("ANALYSER_REQUESTS_PER_SECOND", cfg.RequestsPerSecond)
	cfg.Burst = pkgconfig.GetEnvInt("ANALYSER_BURST", cfg.Burst)
	return cfg
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderClaude:
		if c.APIKey == "" {
			return fmt.Errorf("analyser: API key is required for provider %q", c.Provider)
		}
	case ProviderNoOp:
	default:
		return fmt.Errorf("analyser: unknown provider %q", c.Provider)
	}
	if c.Model == "" {
		return errors.New("analyser: model is required")
	}
	if err := pkgconfig.ValidateRange(c.InputMaxTokens, 1, 128000); err != nil {
		return fmt.Errorf("analyser: input max tokens: %w", err)
	}
	if err := pkgconfig.ValidateRange(c.OutputMaxTokens, 1, 32000); err != nil {
		return fmt.Errorf("analyser: output max tokens: %w", err)
	}
	if err := pkgconfig.ValidatePositiveDuration(c.Timeout); err != nil {
		return fmt.Errorf("analyser: timeout: %w", err)
	}
	if err := pkgconfig.ValidateRange(c.Temperature, 0, 2); err != nil {
		return fmt.Errorf("analyser: temperature: %w", err)
	}
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("analyser: requests per second must be positive, got %v", c.RequestsPerSecond)
	}
	if err := pkgconfig.ValidateMin(c.Burst, 1); err != nil {
		return fmt.Errorf("analyser: burst: %w", err)
	}
	return nil
}
