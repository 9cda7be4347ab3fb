package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/radicai/ad-agent-api/pkg/models"
	"github.com/rs/zerolog/log"
)

// Config holds all configuration for the ad planner service.
type Config struct {
	Port    int
	Version string

	KnowledgeBasePath   string
	ScoringPolicyPath   string
	GuardrailPolicyPath string

	CORSAllowOrigin string
	APIKeys         []string
	HistorySize     int

	LLM       LLMConfig
	Telemetry TelemetryConfig
	Log       LogConfig
}

// LLMConfig selects the primary and fallback generation providers.
type LLMConfig struct {
	Provider         string
	FallbackProvider string
	FallbackModel    string
	Temperature      float64
	Timeout          time.Duration

	GroqAPIKey  string
	GroqModel   string
	GroqBaseURL string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
	Version      string
	SampleRatio  float64
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables with sensible
// defaults. A .env file in the working directory is loaded first; it never
// overrides variables already set.
func Load() *Config {
	LoadDotEnv(".env")

	version := envStr("ADPLANNER_VERSION", "0.1.0")
	return &Config{
		Port:    envInt("ADPLANNER_PORT", 8080),
		Version: version,

		KnowledgeBasePath:   envStr("KNOWLEDGE_BASE_PATH", "data/knowledge-base.json"),
		ScoringPolicyPath:   envStr("SCORING_POLICY_PATH", ""),
		GuardrailPolicyPath: envStr("GUARDRAIL_POLICY_PATH", ""),

		CORSAllowOrigin: envStr("CORS_ALLOW_ORIGIN", "*"),
		APIKeys:         envList("ADPLANNER_API_KEYS"),
		HistorySize:     envInt("METRICS_HISTORY_SIZE", 200),

		LLM: LLMConfig{
			Provider:         envStr("LLM_PROVIDER", "groq"),
			FallbackProvider: envStr("LLM_FALLBACK_PROVIDER", "openai"),
			FallbackModel:    envStr("LLM_FALLBACK_MODEL", ""),
			Temperature:      envFloat("LLM_TEMPERATURE", 0.3),
			Timeout:          envDuration("LLM_TIMEOUT", 60*time.Second),

			GroqAPIKey:  envStr("GROQ_API_KEY", ""),
			GroqModel:   envStr("GROQ_MODEL", "openai/gpt-oss-120b"),
			GroqBaseURL: envStr("GROQ_BASE_URL", ""),

			OpenAIAPIKey:  envStr("OPENAI_API_KEY", ""),
			OpenAIModel:   envStr("OPENAI_MODEL", "gpt-4o-mini"),
			OpenAIBaseURL: envStr("OPENAI_BASE_URL", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "ad-agent-api"),
			Version:      version,
			SampleRatio:  envFloat("OTEL_SAMPLE_RATIO", 1),
		},
		Log: LogConfig{
			Level:  envStr("LOG_LEVEL", "info"),
			Format: envStr("LOG_FORMAT", "console"),
		},
	}
}

// LoadDotEnv loads path into the environment if it exists.
func LoadDotEnv(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to load env file")
	}
}

// Providers returns the configured generation backends. Both are always
// registered; a missing API key fails at call time.
func (c LLMConfig) Providers() []models.ModelProvider {
	return []models.ModelProvider{
		{Name: "groq", Kind: "groq", Endpoint: c.GroqBaseURL, APIKey: c.GroqAPIKey, DefaultModel: c.GroqModel},
		{Name: "openai", Kind: "openai", Endpoint: c.OpenAIBaseURL, APIKey: c.OpenAIAPIKey, DefaultModel: c.OpenAIModel},
	}
}

// DefaultModel returns the configured model for a provider name.
func (c LLMConfig) DefaultModel(provider string) string {
	for _, p := range c.Providers() {
		if p.Name == provider {
			return p.DefaultModel
		}
	}
	return ""
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// envList splits a comma-separated variable, dropping blanks.
func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
