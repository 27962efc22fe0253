// Package config loads and validates the llmguardian configuration tree.
// The YAML file roots all keys under "llmguardian:"; accessors hand out the
// parsed tree with defaults applied.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Config is the llmguardian.* configuration tree.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	PII           PIIConfig           `yaml:"pii"`
	Cache         CacheConfig         `yaml:"cache"`
	Optimization  OptimizationConfig  `yaml:"optimization"`
	Routing       RoutingConfig       `yaml:"routing"`
	Provider      ProviderConfig      `yaml:"provider"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port                int `yaml:"port"`
	MetricsPort         int `yaml:"metricsPort"`
	ReadTimeoutSeconds  int `yaml:"readTimeoutSeconds"`
	WriteTimeoutSeconds int `yaml:"writeTimeoutSeconds"`
	IdleTimeoutSeconds  int `yaml:"idleTimeoutSeconds"`
}

// PIIConfig groups detection, redaction, and audit settings.
type PIIConfig struct {
	Detection DetectionConfig `yaml:"detection"`
	Redaction RedactionConfig `yaml:"redaction"`
	Audit     AuditConfig     `yaml:"audit"`
}

// DetectionConfig controls which sensitive-value kinds are scanned for.
type DetectionConfig struct {
	Enabled bool `yaml:"enabled"`
	// Patterns overrides the per-kind default-enabled flag, keyed by kind
	// name (e.g. EMAIL, SSN).
	Patterns       map[string]bool `yaml:"patterns"`
	CustomPatterns []CustomPattern `yaml:"customPatterns"`
}

// CustomPattern is a user-defined sensitive-value kind.
type CustomPattern struct {
	Name    string `yaml:"name"`
	Regex   string `yaml:"regex"`
	Region  string `yaml:"region"`
	Enabled bool   `yaml:"enabled"`
}

// RedactionConfig controls token generation.
type RedactionConfig struct {
	// TokenGeneration is "random" (hex ids) or "sequential" (counter ids).
	TokenGeneration string `yaml:"tokenGeneration"`
	TokenLength     int    `yaml:"tokenLength"`
}

// AuditConfig controls the asynchronous audit sink.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
	// Level is one of none, minimal, standard, detailed.
	Level         string `yaml:"level"`
	RetentionDays int    `yaml:"retentionDays"`
	DBPath        string `yaml:"dbPath"`
	QueueSize     int    `yaml:"queueSize"`
	Workers       int    `yaml:"workers"`
}

// CacheConfig holds both cache tiers.
type CacheConfig struct {
	L1 L1CacheConfig `yaml:"l1"`
	L2 L2CacheConfig `yaml:"l2"`
}

// L1CacheConfig is the in-process tier.
type L1CacheConfig struct {
	MaxSize    int `yaml:"maxSize"`
	TTLMinutes int `yaml:"ttlMinutes"`
}

// L2CacheConfig is the Redis-backed tier.
type L2CacheConfig struct {
	Enabled    bool   `yaml:"enabled"`
	TTLMinutes int    `yaml:"ttlMinutes"`
	KeyPrefix  string `yaml:"keyPrefix"`
	Address    string `yaml:"address"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	PoolSize   int    `yaml:"poolSize"`
}

// OptimizationConfig controls prompt optimization.
type OptimizationConfig struct {
	Enabled         bool             `yaml:"enabled"`
	MinPromptLength int              `yaml:"minPromptLength"`
	TargetReduction int              `yaml:"targetReduction"`
	Strategies      StrategiesConfig `yaml:"strategies"`
	Stopwords       StopwordsConfig  `yaml:"stopwords"`
}

// StrategiesConfig toggles individual optimization passes.
type StrategiesConfig struct {
	RemoveRedundancy   bool `yaml:"removeRedundancy"`
	RemoveFillerWords  bool `yaml:"removeFillerWords"`
	SimplifyLanguage   bool `yaml:"simplifyLanguage"`
	CompressWhitespace bool `yaml:"compressWhitespace"`
}

// StopwordsConfig controls filler-word removal.
type StopwordsConfig struct {
	Enabled     bool     `yaml:"enabled"`
	CustomWords []string `yaml:"customWords"`
}

// RoutingConfig selects the default strategy and optional profile overrides.
type RoutingConfig struct {
	// DefaultStrategy is one of complexity, cost, performance, balanced.
	DefaultStrategy string `yaml:"defaultStrategy"`
	// Models replaces the built-in profiles entirely when non-empty.
	Models []ModelProfileConfig `yaml:"models"`
}

// ModelProfileConfig describes one model profile in config form.
type ModelProfileConfig struct {
	ModelID          string  `yaml:"modelId"`
	DisplayName      string  `yaml:"displayName"`
	Provider         string  `yaml:"provider"`
	InputCostPer1K   float64 `yaml:"inputCostPer1k"`
	OutputCostPer1K  float64 `yaml:"outputCostPer1k"`
	MaxContextTokens int     `yaml:"maxContextTokens"`
	// Capability is one of basic, standard, advanced.
	Capability string `yaml:"capability"`
	Enabled    bool   `yaml:"enabled"`
}

// ProviderConfig holds upstream provider settings.
type ProviderConfig struct {
	OpenAI OpenAIConfig `yaml:"openai"`
}

// OpenAIConfig configures the OpenAI-compatible provider client.
type OpenAIConfig struct {
	// APIKey supports ${VAR} expansion; when empty the OPENAI_API_KEY
	// environment variable is used.
	APIKey               string `yaml:"apiKey"`
	OrganizationID       string `yaml:"organizationId"`
	BaseURL              string `yaml:"baseUrl"`
	TimeoutSeconds       int    `yaml:"timeoutSeconds"`
	MaxRetries           int    `yaml:"maxRetries"`
	RetryDelayMs         int    `yaml:"retryDelayMs"`
	DefaultModel         string `yaml:"defaultModel"`
	MaxRequestsPerMinute int    `yaml:"maxRequestsPerMinute"`
	MaxIdleConns         int    `yaml:"maxIdleConns"`
	MaxIdleConnsPerHost  int    `yaml:"maxIdleConnsPerHost"`
}

// ObservabilityConfig groups metrics and tracing settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled *bool `yaml:"enabled"`
}

// TracingConfig configures the OpenTelemetry exporter.
type TracingConfig struct {
	Enabled          bool    `yaml:"enabled"`
	ExporterType     string  `yaml:"exporterType"`
	ExporterEndpoint string  `yaml:"exporterEndpoint"`
	ExporterInsecure bool    `yaml:"exporterInsecure"`
	SamplingType     string  `yaml:"samplingType"`
	SamplingRate     float64 `yaml:"samplingRate"`
}

// MetricsEnabled reports whether the metrics endpoint should be served.
// Unset means enabled.
func (o ObservabilityConfig) MetricsEnabled() bool {
	if o.Metrics.Enabled == nil {
		return true
	}
	return *o.Metrics.Enabled
}

// ResolvedAPIKey returns the provider API key with environment expansion
// applied. An empty configured key falls back to OPENAI_API_KEY.
func (c OpenAIConfig) ResolvedAPIKey() string {
	key := strings.TrimSpace(c.APIKey)
	if key == "" {
		return os.Getenv("OPENAI_API_KEY")
	}
	return os.Expand(key, os.Getenv)
}

// Kind names must stay within the token alphabet so redaction tokens
// remain recognizable on restore.
var kindNameRe = regexp.MustCompile(`^[A-Z][A-Z_]*$`)

// applyDefaults fills zero values with the documented defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9190
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 30
	}
	if cfg.Server.WriteTimeoutSeconds == 0 {
		// Must cover the full provider retry budget.
		cfg.Server.WriteTimeoutSeconds = 180
	}
	if cfg.Server.IdleTimeoutSeconds == 0 {
		cfg.Server.IdleTimeoutSeconds = 120
	}

	if cfg.PII.Redaction.TokenGeneration == "" {
		cfg.PII.Redaction.TokenGeneration = "random"
	}
	if cfg.PII.Redaction.TokenLength == 0 {
		cfg.PII.Redaction.TokenLength = 6
	}
	if cfg.PII.Audit.Level == "" {
		cfg.PII.Audit.Level = "standard"
	}
	if cfg.PII.Audit.RetentionDays == 0 {
		cfg.PII.Audit.RetentionDays = 90
	}
	if cfg.PII.Audit.DBPath == "" {
		cfg.PII.Audit.DBPath = "data/audit.db"
	}
	if cfg.PII.Audit.QueueSize == 0 {
		cfg.PII.Audit.QueueSize = 256
	}
	if cfg.PII.Audit.Workers == 0 {
		cfg.PII.Audit.Workers = 2
	}

	if cfg.Cache.L1.MaxSize == 0 {
		cfg.Cache.L1.MaxSize = 1000
	}
	if cfg.Cache.L1.TTLMinutes == 0 {
		cfg.Cache.L1.TTLMinutes = 60
	}
	if cfg.Cache.L2.TTLMinutes == 0 {
		cfg.Cache.L2.TTLMinutes = 24 * 60
	}
	if cfg.Cache.L2.KeyPrefix == "" {
		cfg.Cache.L2.KeyPrefix = "llm"
	}
	if cfg.Cache.L2.Address == "" {
		cfg.Cache.L2.Address = "localhost:6379"
	}
	if cfg.Cache.L2.PoolSize == 0 {
		cfg.Cache.L2.PoolSize = 10
	}

	if cfg.Optimization.MinPromptLength == 0 {
		cfg.Optimization.MinPromptLength = 50
	}
	if cfg.Optimization.TargetReduction == 0 {
		cfg.Optimization.TargetReduction = 30
	}

	if cfg.Routing.DefaultStrategy == "" {
		cfg.Routing.DefaultStrategy = "complexity"
	}

	if cfg.Provider.OpenAI.BaseURL == "" {
		cfg.Provider.OpenAI.BaseURL = "https://api.openai.com"
	}
	if cfg.Provider.OpenAI.TimeoutSeconds == 0 {
		cfg.Provider.OpenAI.TimeoutSeconds = 30
	}
	if cfg.Provider.OpenAI.MaxRetries == 0 {
		cfg.Provider.OpenAI.MaxRetries = 3
	}
	if cfg.Provider.OpenAI.RetryDelayMs == 0 {
		cfg.Provider.OpenAI.RetryDelayMs = 1000
	}
	if cfg.Provider.OpenAI.DefaultModel == "" {
		cfg.Provider.OpenAI.DefaultModel = "gpt-4o-mini"
	}
	if cfg.Provider.OpenAI.MaxIdleConns == 0 {
		cfg.Provider.OpenAI.MaxIdleConns = 50
	}
	if cfg.Provider.OpenAI.MaxIdleConnsPerHost == 0 {
		cfg.Provider.OpenAI.MaxIdleConnsPerHost = 20
	}

	if cfg.Observability.Tracing.ExporterType == "" {
		cfg.Observability.Tracing.ExporterType = "stdout"
	}
	if cfg.Observability.Tracing.SamplingType == "" {
		cfg.Observability.Tracing.SamplingType = "always_on"
	}
}

// validate rejects configurations the components cannot run with.
func validate(cfg *Config) error {
	switch cfg.PII.Redaction.TokenGeneration {
	case "random", "sequential":
	default:
		return fmt.Errorf("pii.redaction.tokenGeneration must be random or sequential, got %q", cfg.PII.Redaction.TokenGeneration)
	}
	if cfg.PII.Redaction.TokenLength < 4 || cfg.PII.Redaction.TokenLength > 32 {
		return fmt.Errorf("pii.redaction.tokenLength must be in [4,32], got %d", cfg.PII.Redaction.TokenLength)
	}
	switch cfg.PII.Audit.Level {
	case "none", "minimal", "standard", "detailed":
	default:
		return fmt.Errorf("pii.audit.level must be one of none, minimal, standard, detailed, got %q", cfg.PII.Audit.Level)
	}
	if cfg.PII.Audit.RetentionDays < 1 {
		return fmt.Errorf("pii.audit.retentionDays must be positive, got %d", cfg.PII.Audit.RetentionDays)
	}

	for _, cp := range cfg.PII.Detection.CustomPatterns {
		if cp.Name == "" {
			return fmt.Errorf("pii.detection.customPatterns: name is required")
		}
		if !kindNameRe.MatchString(cp.Name) {
			return fmt.Errorf("pii.detection.customPatterns: name %q must be uppercase letters and underscore", cp.Name)
		}
		if _, err := regexp.Compile(cp.Regex); err != nil {
			return fmt.Errorf("pii.detection.customPatterns: pattern %q has invalid regex: %w", cp.Name, err)
		}
	}

	if cfg.Cache.L1.MaxSize < 1 {
		return fmt.Errorf("cache.l1.maxSize must be positive, got %d", cfg.Cache.L1.MaxSize)
	}
	if cfg.Cache.L2.DB < 0 || cfg.Cache.L2.DB > 15 {
		return fmt.Errorf("cache.l2.db must be in [0,15], got %d", cfg.Cache.L2.DB)
	}

	switch cfg.Routing.DefaultStrategy {
	case "complexity", "cost", "performance", "balanced":
	default:
		return fmt.Errorf("routing.defaultStrategy must be one of complexity, cost, performance, balanced, got %q", cfg.Routing.DefaultStrategy)
	}
	for _, m := range cfg.Routing.Models {
		if m.ModelID == "" {
			return fmt.Errorf("routing.models: modelId is required")
		}
		switch m.Capability {
		case "basic", "standard", "advanced":
		default:
			return fmt.Errorf("routing.models: model %q capability must be basic, standard, or advanced, got %q", m.ModelID, m.Capability)
		}
	}

	if cfg.Provider.OpenAI.MaxRetries < 0 {
		return fmt.Errorf("provider.openai.maxRetries must not be negative, got %d", cfg.Provider.OpenAI.MaxRetries)
	}
	if cfg.Provider.OpenAI.TimeoutSeconds < 1 {
		return fmt.Errorf("provider.openai.timeoutSeconds must be positive, got %d", cfg.Provider.OpenAI.TimeoutSeconds)
	}

	switch cfg.Observability.Tracing.ExporterType {
	case "otlp", "stdout":
	default:
		return fmt.Errorf("observability.tracing.exporterType must be otlp or stdout, got %q", cfg.Observability.Tracing.ExporterType)
	}

	return nil
}
