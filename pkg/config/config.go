// Package config provides configuration loading and validation for the
// content pipeline orchestrator. Configuration comes from a YAML file with
// environment variable overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default budgets. Iteration counts are deliberately small: the quality loop
// must converge or abort, never grind.
const (
	DefaultMaxIterations = 3
	DefaultMaxSteps      = 60

	DefaultCompressionThreshold = 15
	DefaultRecentTail           = 4

	DefaultQualityThreshold = 0.6

	DefaultToolTimeout    = 60 * time.Second
	DefaultToolMaxRetries = 2

	DefaultMaxGuidanceLen = 500
)

// ModelCfg holds LLM client settings shared by all stages.
type ModelCfg struct {
	Provider         string  `yaml:"provider"` // "anthropic", "openai", "ollama"
	Name             string  `yaml:"name"`
	APIKeyEnv        string  `yaml:"api_key_env"`
	MaxContextTokens int     `yaml:"max_context_tokens"`
	MaxReplyTokens   int     `yaml:"max_reply_tokens"`
	CompactionBuffer int     `yaml:"compaction_buffer"`
	Temperature      float32 `yaml:"temperature"`
}

// APIKey resolves the provider API key from the configured environment
// variable. Empty is valid for local providers (ollama).
func (m *ModelCfg) APIKey() string {
	if m.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(m.APIKeyEnv)
}

// WorkflowCfg bounds a single workflow run.
type WorkflowCfg struct {
	MaxIterations        int `yaml:"max_iterations"`
	MaxSteps             int `yaml:"max_steps"`
	CompressionThreshold int `yaml:"compression_threshold"`
	RecentTail           int `yaml:"recent_tail"`
	MaxGuidanceLen       int `yaml:"max_guidance_len"`
	// NonInteractive drops operator questions instead of pausing; stages
	// take their default path. For batch and CI runs.
	NonInteractive bool `yaml:"non_interactive"`
}

// QualityCfg holds the review-gate thresholds, 0-1 scale. A missing
// per-dimension entry falls back to Default.
type QualityCfg struct {
	Default    float64            `yaml:"default"`
	Dimensions map[string]float64 `yaml:"dimensions"`
}

// Threshold returns the effective threshold for a quality dimension.
func (q *QualityCfg) Threshold(dimension string) float64 {
	if v, ok := q.Dimensions[dimension]; ok {
		return v
	}
	if q.Default > 0 {
		return q.Default
	}
	return DefaultQualityThreshold
}

// ToolsCfg bounds tool execution.
type ToolsCfg struct {
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// ImageCfg configures the image generation backend.
type ImageCfg struct {
	Provider  string `yaml:"provider"` // "genai" or "stub"
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// MetricsCfg configures Prometheus exposition and querying.
type MetricsCfg struct {
	ListenAddr    string `yaml:"listen_addr"`
	PrometheusURL string `yaml:"prometheus_url"`
}

// Config is the root configuration for the orchestrator.
type Config struct {
	Model        ModelCfg    `yaml:"model"`
	Workflow     WorkflowCfg `yaml:"workflow"`
	Quality      QualityCfg  `yaml:"quality"`
	Tools        ToolsCfg    `yaml:"tools"`
	Image        ImageCfg    `yaml:"image"`
	Metrics      MetricsCfg  `yaml:"metrics"`
	CheckpointDB string      `yaml:"checkpoint_db"`
	AssetsDir    string      `yaml:"assets_dir"`
	EventLogDir  string      `yaml:"event_log_dir"`
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns a config populated with usable defaults. Callers without a
// config file (tests, embedded use) can start from here.
func Default() *Config {
	return &Config{
		Model: ModelCfg{
			Provider:         "anthropic",
			MaxContextTokens: 100000,
			MaxReplyTokens:   4096,
			CompactionBuffer: 2000,
			Temperature:      0.7,
		},
		Workflow: WorkflowCfg{
			MaxIterations:        DefaultMaxIterations,
			MaxSteps:             DefaultMaxSteps,
			CompressionThreshold: DefaultCompressionThreshold,
			RecentTail:           DefaultRecentTail,
			MaxGuidanceLen:       DefaultMaxGuidanceLen,
		},
		Quality: QualityCfg{
			Default: DefaultQualityThreshold,
		},
		Tools: ToolsCfg{
			Timeout:    DefaultToolTimeout,
			MaxRetries: DefaultToolMaxRetries,
		},
		Image: ImageCfg{
			Provider: "stub",
		},
		CheckpointDB: "contentflow.db",
		AssetsDir:    "assets",
		EventLogDir:  "logs",
	}
}

// Validate checks invariants that would otherwise surface as runtime bugs.
func (c *Config) Validate() error {
	if c.Workflow.MaxIterations <= 0 {
		return fmt.Errorf("workflow.max_iterations must be positive, got %d", c.Workflow.MaxIterations)
	}
	if c.Workflow.MaxSteps <= 0 {
		return fmt.Errorf("workflow.max_steps must be positive, got %d", c.Workflow.MaxSteps)
	}
	if c.Workflow.RecentTail <= 0 {
		return fmt.Errorf("workflow.recent_tail must be positive, got %d", c.Workflow.RecentTail)
	}
	if c.Workflow.CompressionThreshold <= c.Workflow.RecentTail {
		return fmt.Errorf("workflow.compression_threshold (%d) must exceed recent_tail (%d)",
			c.Workflow.CompressionThreshold, c.Workflow.RecentTail)
	}
	for dim, v := range c.Quality.Dimensions {
		if v < 0 || v > 1 {
			return fmt.Errorf("quality threshold for %s out of range [0,1]: %f", dim, v)
		}
	}
	if c.Tools.MaxRetries < 0 {
		return fmt.Errorf("tools.max_retries must be non-negative, got %d", c.Tools.MaxRetries)
	}
	switch c.Model.Provider {
	case "anthropic", "openai", "ollama", "mock":
	default:
		return fmt.Errorf("unknown model provider %q", c.Model.Provider)
	}
	return nil
}
