package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Transcription and dialogue provider names
const (
	ProviderGroq     = "groq"
	ProviderDeepgram = "deepgram"
	ProviderArk      = "ark"
)

// Config holds all configuration for the calorie tracker service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Groq serves both Whisper transcription and chat completions
	GroqAPIKey  string `envconfig:"GROQ_API_KEY" required:"true"`
	GroqBaseURL string `envconfig:"GROQ_BASE_URL" default:"https://api.groq.com/openai/v1"`

	// Transcription configuration
	TranscriptionProvider string  `envconfig:"TRANSCRIPTION_PROVIDER" default:"groq"` // groq, deepgram
	TranscriptionModel    string  `envconfig:"TRANSCRIPTION_MODEL" default:"whisper-large-v3-turbo"`
	NoSpeechThreshold     float64 `envconfig:"NO_SPEECH_THRESHOLD" default:"0.7"` // First-segment no_speech_prob above this is silence

	// Deepgram prerecorded STT (only when TRANSCRIPTION_PROVIDER=deepgram)
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`

	// Dialogue configuration
	DialogueProvider string `envconfig:"DIALOGUE_PROVIDER" default:"groq"` // groq, ark
	DialogueModel    string `envconfig:"DIALOGUE_MODEL" default:"llama-3.2-11b-vision-preview"`

	// Volcengine Ark chat model (only when DIALOGUE_PROVIDER=ark)
	ArkAPIKey  string `envconfig:"ARK_API_KEY" default:""`
	ArkModel   string `envconfig:"ARK_MODEL" default:""`
	ArkBaseURL string `envconfig:"ARK_BASE_URL" default:"https://ark.cn-beijing.volces.com/api/v3"`
	ArkRegion  string `envconfig:"ARK_REGION" default:"cn-beijing"`

	// Cartesia TTS API configuration
	CartesiaAPIKey  string `envconfig:"CARTESIA_API_KEY" required:"true"`
	CartesiaBaseURL string `envconfig:"CARTESIA_BASE_URL" default:"https://api.cartesia.ai"`
	CartesiaVersion string `envconfig:"CARTESIA_VERSION" default:"2024-06-30"`
	CartesiaModelID string `envconfig:"CARTESIA_MODEL_ID" default:"sonic-english"`
	CartesiaVoiceID string `envconfig:"CARTESIA_VOICE_ID" default:"79a125e8-cd45-4c13-8a67-188112f4dd22"`

	// Turn processing
	RemoteCallTimeout    int     `envconfig:"REMOTE_CALL_TIMEOUT" default:"30"`        // seconds, per remote call
	TempDir              string  `envconfig:"TEMP_DIR" default:""`                     // Empty means os.TempDir()
	MaxRecordingBytes    int64   `envconfig:"MAX_RECORDING_BYTES" default:"26214400"`  // 25 MiB upload limit
	SilenceGateThreshold float64 `envconfig:"SILENCE_GATE_THRESHOLD" default:"0"`      // RMS below this skips transcription; 0 disables

	// Live socket endpointing
	VADEnergyThreshold float64 `envconfig:"VAD_ENERGY_THRESHOLD" default:"500.0"` // RMS energy threshold for VAD
	VADSilenceFrames   int     `envconfig:"VAD_SILENCE_FRAMES" default:"25"`      // 20ms frames of silence to mark speech end

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	DialogueMaxAttempts        int `envconfig:"DIALOGUE_MAX_ATTEMPTS" default:"2"`          // One retry on retryable dialogue failures
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"250"`        // Initial backoff in milliseconds

	// Observability configuration
	LogLevel          string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty         bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled    bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
	GRPCHealthEnabled bool   `envconfig:"GRPC_HEALTH_ENABLED" default:"false"`
	GRPCHealthPort    string `envconfig:"GRPC_HEALTH_PORT" default:"9090"`
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks required credentials and provider selections
func (c *Config) Validate() error {
	if strings.TrimSpace(c.GroqAPIKey) == "" {
		return fmt.Errorf("GROQ_API_KEY is required")
	}
	if strings.TrimSpace(c.CartesiaAPIKey) == "" {
		return fmt.Errorf("CARTESIA_API_KEY is required")
	}

	switch c.TranscriptionProvider {
	case ProviderGroq:
	case ProviderDeepgram:
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required when TRANSCRIPTION_PROVIDER=deepgram")
		}
	default:
		return fmt.Errorf("unknown TRANSCRIPTION_PROVIDER %q", c.TranscriptionProvider)
	}

	switch c.DialogueProvider {
	case ProviderGroq:
	case ProviderArk:
		if c.ArkAPIKey == "" || c.ArkModel == "" {
			return fmt.Errorf("ARK_API_KEY and ARK_MODEL are required when DIALOGUE_PROVIDER=ark")
		}
	default:
		return fmt.Errorf("unknown DIALOGUE_PROVIDER %q", c.DialogueProvider)
	}

	if c.NoSpeechThreshold < 0 || c.NoSpeechThreshold > 1 {
		return fmt.Errorf("NO_SPEECH_THRESHOLD must be within [0, 1], got %v", c.NoSpeechThreshold)
	}
	if c.RemoteCallTimeout <= 0 {
		return fmt.Errorf("REMOTE_CALL_TIMEOUT must be positive, got %d", c.RemoteCallTimeout)
	}
	if c.DialogueMaxAttempts < 1 {
		return fmt.Errorf("DIALOGUE_MAX_ATTEMPTS must be at least 1, got %d", c.DialogueMaxAttempts)
	}

	return nil
}

// CallTimeout returns the per-call bound applied to every remote request
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.RemoteCallTimeout) * time.Second
}

// BreakerResetTimeout returns the circuit breaker recovery window
func (c *Config) BreakerResetTimeout() time.Duration {
	return time.Duration(c.CircuitBreakerResetTimeout) * time.Second
}

// RetryBackoff returns the initial dialogue retry backoff
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.RetryInitialBackoff) * time.Millisecond
}

// TempDirectory returns the directory used for per-turn recordings
func (c *Config) TempDirectory() string {
	if c.TempDir != "" {
		return c.TempDir
	}
	return os.TempDir()
}
