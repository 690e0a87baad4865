package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the top-level strided configuration.
type Config struct {
	Service   ServiceConfig             `json:"service"`
	Providers map[string]ProviderConfig `json:"providers"`
	Analyzer  AnalyzerConfig            `json:"analyzer"`
	Decision  DecisionConfig            `json:"decision"`
	Kafka     *KafkaConfig              `json:"kafka,omitempty"`
	API       APIConfig                 `json:"api"`
}

// ServiceConfig holds service-level settings.
type ServiceConfig struct {
	ID            string `json:"id"`
	DataDir       string `json:"data_dir"`
	PolicyFile    string `json:"policy_file,omitempty"` // empty = built-in table
	SweepSchedule string `json:"sweep_schedule,omitempty"`
	SessionTTLMin int    `json:"session_ttl_minutes,omitempty"`
}

// ProviderConfig holds LLM provider settings.
type ProviderConfig struct {
	Type    string `json:"type,omitempty"` // "openai" (default) or "anthropic"
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model"`
}

// AnalyzerConfig bounds the signal extraction boundary.
type AnalyzerConfig struct {
	TimeoutSeconds   int     `json:"timeout_seconds,omitempty"`    // per LLM call, default 20
	MaxInflight      int     `json:"max_inflight,omitempty"`       // concurrent LLM calls, default 8
	QueueWaitSeconds int     `json:"queue_wait_seconds,omitempty"` // max wait for a slot, default 5
	MinConfidence    float64 `json:"min_confidence,omitempty"`     // below this the signal is ambiguous, default 0.35
}

// DecisionConfig tunes the arbitration stage.
type DecisionConfig struct {
	MaxTurns           int     `json:"max_turns,omitempty"`           // clarification turns per session, default 3
	AmbiguityThreshold float64 `json:"ambiguity_threshold,omitempty"` // default 0.65
}

// KafkaConfig enables outcome event publishing when present.
type KafkaConfig struct {
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic"`
}

// APIConfig holds REST API server settings.
type APIConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	Key  string `json:"api_key"`
}

// Load reads configuration from a JSON file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv builds a minimal config from environment variables with the
// STRIDE_ prefix.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			ID:      getenv("STRIDE_SERVICE_ID", "stride"),
			DataDir: getenv("STRIDE_DATA_DIR", "/data"),
		},
		Providers: make(map[string]ProviderConfig),
		API: APIConfig{
			Host: getenv("STRIDE_API_HOST", "0.0.0.0"),
			Port: getenvInt("STRIDE_API_PORT", 8080),
			Key:  os.Getenv("STRIDE_API_KEY"),
		},
	}

	if apiKey := os.Getenv("STRIDE_ANTHROPIC_API_KEY"); apiKey != "" {
		cfg.Providers["default"] = ProviderConfig{
			Type:   "anthropic",
			APIKey: apiKey,
			Model:  getenv("STRIDE_MODEL", "claude-sonnet-4-20250514"),
		}
	} else if apiKey := os.Getenv("STRIDE_OPENAI_API_KEY"); apiKey != "" {
		cfg.Providers["default"] = ProviderConfig{
			Type:    "openai",
			APIKey:  apiKey,
			BaseURL: os.Getenv("STRIDE_OPENAI_BASE_URL"),
			Model:   getenv("STRIDE_MODEL", "gpt-4o"),
		}
	}

	cfg.Service.PolicyFile = os.Getenv("STRIDE_POLICY_FILE")

	if brokers := os.Getenv("STRIDE_KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka = &KafkaConfig{
			Brokers: splitList(brokers),
			Topic:   getenv("STRIDE_KAFKA_TOPIC", "stride-outcomes"),
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Analyzer.TimeoutSeconds <= 0 {
		c.Analyzer.TimeoutSeconds = 20
	}
	if c.Analyzer.MaxInflight <= 0 {
		c.Analyzer.MaxInflight = 8
	}
	if c.Analyzer.QueueWaitSeconds <= 0 {
		c.Analyzer.QueueWaitSeconds = 5
	}
	if c.Analyzer.MinConfidence <= 0 {
		c.Analyzer.MinConfidence = 0.35
	}
	if c.Decision.MaxTurns <= 0 {
		c.Decision.MaxTurns = 3
	}
	if c.Decision.AmbiguityThreshold <= 0 {
		c.Decision.AmbiguityThreshold = 0.65
	}
	if c.Service.SweepSchedule == "" {
		c.Service.SweepSchedule = "@every 10m"
	}
	if c.Service.SessionTTLMin <= 0 {
		c.Service.SessionTTLMin = 30
	}
}

// Validate checks for required fields.
func (c *Config) Validate() error {
	var errs []string

	if c.Service.ID == "" {
		errs = append(errs, "service.id is required")
	}
	if c.Service.DataDir == "" {
		errs = append(errs, "service.data_dir is required")
	}

	if len(c.Providers) == 0 {
		errs = append(errs, "at least one provider is required")
	}
	for name, p := range c.Providers {
		if p.APIKey == "" {
			errs = append(errs, fmt.Sprintf("providers.%s.api_key is required", name))
		}
		if p.Model == "" {
			errs = append(errs, fmt.Sprintf("providers.%s.model is required", name))
		}
	}

	if c.Decision.AmbiguityThreshold > 1 {
		errs = append(errs, "decision.ambiguity_threshold must be in (0, 1]")
	}
	if c.Analyzer.MinConfidence > 1 {
		errs = append(errs, "analyzer.min_confidence must be in (0, 1]")
	}

	if c.Kafka != nil {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, "kafka.brokers is required when kafka is configured")
		}
		if c.Kafka.Topic == "" {
			errs = append(errs, "kafka.topic is required when kafka is configured")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
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

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
