package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lamim/quizforge/internal/planner"
	"github.com/lamim/quizforge/pkg/models"
)

// Config represents the complete application configuration
type Config struct {
	Generation      GenerationConfig       `toml:"generation"`
	Planner         PlannerConfig          `toml:"planner"`
	Generator       GeneratorConfig        `toml:"generator"`
	Models          map[string]ModelConfig `toml:"models"`
	Store           StoreConfig            `toml:"store"`
	Mirror          MirrorConfig           `toml:"mirror"`
	Retrieval       RetrievalConfig        `toml:"retrieval"`
	Server          ServerConfig           `toml:"server"`
	Sessions        SessionsConfig         `toml:"sessions"`
	Output          OutputConfig           `toml:"output"`
	Catalog         CatalogConfig          `toml:"catalog"`
	PromptTemplates PromptTemplates        `toml:"prompt_templates"`
}

// GenerationConfig holds pool and deduplication settings
type GenerationConfig struct {
	CodingWorkers          int      `toml:"coding_workers"`           // Pool size for coding sessions (default 3)
	NonCodingWorkers       int      `toml:"non_coding_workers"`       // Pool size for non-coding sessions (default 6)
	DefaultWorkers         int      `toml:"default_workers"`          // Pool size for anything else (default 4)
	MaxWorkers             int      `toml:"max_workers"`              // Upper bound for per-request overrides (default 8)
	RequestTimeoutSeconds  int      `toml:"request_timeout_seconds"`  // Per generation call (default 120)
	Difficulties           []string `toml:"difficulties"`             // Used when a request names none
	NearDuplicateThreshold float64  `toml:"near_duplicate_threshold"` // Jaccard threshold (default 0.8)
	DuplicateWindow        int      `toml:"duplicate_window"`         // Stored texts compared per task (default 200)
}

// PlannerConfig holds combination planning settings
type PlannerConfig struct {
	MaxGroupSize    int                     `toml:"max_group_size"`
	MaxCombinations int                     `toml:"max_combinations"`
	Rules           map[string]planner.Rule `toml:"rules"`
}

// GeneratorConfig selects the generation backend
type GeneratorConfig struct {
	Provider             string   `toml:"provider"`    // "openai" or "gemini"
	Model                string   `toml:"model"`       // Key into [models] for the openai provider (default "main")
	GeminiModel          string   `toml:"gemini_model"`
	CodingTemperature    *float64 `toml:"coding_temperature"`     // Default 0.0
	NonCodingTemperature *float64 `toml:"non_coding_temperature"` // Default 0.5
}

// ModelConfig represents configuration for a single OpenAI-compatible endpoint
type ModelConfig struct {
	BaseURL            string  `toml:"base_url"`
	ModelName          string  `toml:"model_name"`
	Temperature        float64 `toml:"temperature"`
	TopP               float64 `toml:"top_p"`
	MaxOutputTokens    int     `toml:"max_output_tokens"`
	ContextSize        int     `toml:"context_size"`
	RateLimitPerMinute int     `toml:"rate_limit_per_minute"`
	MaxRetries         int     `toml:"max_retries"`          // Optional: max retry attempts (default 3)
	HTTPTimeoutSeconds int     `toml:"http_timeout_seconds"` // Optional: HTTP request timeout (default 120)
	UseJSONMode        bool    `toml:"use_json_mode"`        // Request response_format json_object
}

// StoreConfig selects the item store
type StoreConfig struct {
	Driver   string `toml:"driver"` // "sqlite" or "postgres"
	Path     string `toml:"path"`
	MaxConns int    `toml:"max_conns"`
}

// MirrorConfig configures the audit sinks
type MirrorConfig struct {
	JSONLDir       string `toml:"jsonl_dir"` // Empty disables the file export
	NATS           bool   `toml:"nats"`      // Publish to JetStream at NATS_URL
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// RetrievalConfig configures the context source
type RetrievalConfig struct {
	ContentDir      string `toml:"content_dir"`
	MaxBytes        int    `toml:"max_bytes"`
	CacheTTLMinutes int    `toml:"cache_ttl_minutes"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr                   string `toml:"addr"`
	ReadTimeoutSeconds     int    `toml:"read_timeout_seconds"`
	WriteTimeoutSeconds    int    `toml:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int    `toml:"shutdown_timeout_seconds"`
}

// SessionsConfig configures session retention and the archive
type SessionsConfig struct {
	RetentionHours       int    `toml:"retention_hours"`
	SweepIntervalMinutes int    `toml:"sweep_interval_minutes"`
	ArchiveDir           string `toml:"archive_dir"`
}

// OutputConfig configures where run logs go
type OutputConfig struct {
	Dir string `toml:"dir"`
}

// CatalogConfig lists the groups requests may target
type CatalogConfig struct {
	Groups []models.ScopeGroup `toml:"groups"`
}

// PromptTemplates holds all customizable prompt templates
type PromptTemplates struct {
	SystemPrompt        string `toml:"system_prompt"`
	CodingGeneration    string `toml:"coding_generation"`
	NonCodingGeneration string `toml:"non_coding_generation"`
}

// Secrets holds sensitive credentials loaded from environment variables
type Secrets struct {
	APIKeys      map[string]string
	GeminiAPIKey string
	DatabaseURL  string
	NATSURL      string
}

const (
	// MaxPoolSize bounds every configured pool
	MaxPoolSize = 64
	// MinRequestTimeout and MaxRequestTimeout bound the per-call timeout
	MinRequestTimeout = 5
	MaxRequestTimeout = 600
)

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	g := c.Generation
	pools := []struct {
		key  string
		size int
	}{
		{"generation.coding_workers", g.CodingWorkers},
		{"generation.non_coding_workers", g.NonCodingWorkers},
		{"generation.default_workers", g.DefaultWorkers},
		{"generation.max_workers", g.MaxWorkers},
	}
	for _, p := range pools {
		if p.size < 1 {
			return fmt.Errorf("%s must be at least 1", p.key)
		}
		if p.size > MaxPoolSize {
			return fmt.Errorf("%s must not exceed %d (got %d)", p.key, MaxPoolSize, p.size)
		}
	}
	if g.RequestTimeoutSeconds < MinRequestTimeout || g.RequestTimeoutSeconds > MaxRequestTimeout {
		return fmt.Errorf("generation.request_timeout_seconds must be between %d and %d (got %d)",
			MinRequestTimeout, MaxRequestTimeout, g.RequestTimeoutSeconds)
	}
	if len(g.Difficulties) == 0 {
		return fmt.Errorf("generation.difficulties must not be empty")
	}
	if g.NearDuplicateThreshold <= 0 || g.NearDuplicateThreshold > 1 {
		return fmt.Errorf("generation.near_duplicate_threshold must be in (0, 1] (got %.2f)", g.NearDuplicateThreshold)
	}
	if g.DuplicateWindow < 0 {
		return fmt.Errorf("generation.duplicate_window must not be negative")
	}

	if c.Planner.MaxGroupSize < 1 || c.Planner.MaxGroupSize > 3 {
		return fmt.Errorf("planner.max_group_size must be between 1 and 3 (got %d)", c.Planner.MaxGroupSize)
	}
	if c.Planner.MaxCombinations < 1 {
		return fmt.Errorf("planner.max_combinations must be at least 1")
	}
	for name, r := range c.Planner.Rules {
		if r.SameParentPairs < 0 || r.CrossParentPairs < 0 || r.MaxTriples < 0 {
			return fmt.Errorf("planner.rules.%s limits must not be negative", name)
		}
	}

	if err := c.validateGenerator(); err != nil {
		return err
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite driver")
		}
	case "postgres":
	default:
		return fmt.Errorf("store.driver must be one of: sqlite, postgres (got %s)", c.Store.Driver)
	}

	if c.Sessions.RetentionHours < 1 {
		return fmt.Errorf("sessions.retention_hours must be at least 1")
	}
	if c.Sessions.SweepIntervalMinutes < 1 {
		return fmt.Errorf("sessions.sweep_interval_minutes must be at least 1")
	}

	seen := make(map[int64]bool, len(c.Catalog.Groups))
	for _, grp := range c.Catalog.Groups {
		if grp.ID <= 0 {
			return fmt.Errorf("catalog.groups: id must be positive (group %q)", grp.Name)
		}
		if seen[grp.ID] {
			return fmt.Errorf("catalog.groups: duplicate id %d", grp.ID)
		}
		seen[grp.ID] = true
	}

	if c.PromptTemplates.CodingGeneration == "" {
		return fmt.Errorf("prompt_templates.coding_generation is required")
	}
	if c.PromptTemplates.NonCodingGeneration == "" {
		return fmt.Errorf("prompt_templates.non_coding_generation is required")
	}

	return nil
}

func (c *Config) validateGenerator() error {
	for _, t := range []struct {
		key string
		v   *float64
	}{
		{"generator.coding_temperature", c.Generator.CodingTemperature},
		{"generator.non_coding_temperature", c.Generator.NonCodingTemperature},
	} {
		if t.v != nil && (*t.v < 0 || *t.v > 2) {
			return fmt.Errorf("%s must be between 0 and 2", t.key)
		}
	}

	switch c.Generator.Provider {
	case "openai":
		mc, ok := c.Models[c.Generator.Model]
		if !ok {
			return fmt.Errorf("models.%s is required for the openai provider", c.Generator.Model)
		}
		return validateModelConfig(c.Generator.Model, mc)
	case "gemini":
		if c.Generator.GeminiModel == "" {
			return fmt.Errorf("generator.gemini_model is required for the gemini provider")
		}
		return nil
	default:
		return fmt.Errorf("generator.provider must be one of: openai, gemini (got %s)", c.Generator.Provider)
	}
}

func validateModelConfig(name string, mc ModelConfig) error {
	if mc.BaseURL == "" {
		return fmt.Errorf("models.%s.base_url is required", name)
	}
	if mc.ModelName == "" {
		return fmt.Errorf("models.%s.model_name is required", name)
	}
	if mc.Temperature < 0 || mc.Temperature > 2 {
		return fmt.Errorf("models.%s.temperature must be between 0 and 2", name)
	}
	if mc.TopP < 0 || mc.TopP > 1 {
		return fmt.Errorf("models.%s.top_p must be between 0 and 1", name)
	}
	if mc.MaxOutputTokens < 1 {
		return fmt.Errorf("models.%s.max_output_tokens must be at least 1", name)
	}
	if mc.ContextSize < 1 {
		return fmt.Errorf("models.%s.context_size must be at least 1", name)
	}
	if mc.RateLimitPerMinute < 1 {
		return fmt.Errorf("models.%s.rate_limit_per_minute must be at least 1", name)
	}
	if mc.MaxOutputTokens > mc.ContextSize {
		return fmt.Errorf("models.%s.max_output_tokens (%d) must not exceed context_size (%d)", name, mc.MaxOutputTokens, mc.ContextSize)
	}
	return nil
}

// PoolSize returns the configured pool size for a category
func (g GenerationConfig) PoolSize(category models.Category) int {
	switch category {
	case models.CategoryCoding:
		return g.CodingWorkers
	case models.CategoryNonCoding:
		return g.NonCodingWorkers
	default:
		return g.DefaultWorkers
	}
}

// RequestTimeout returns the per-call timeout
func (g GenerationConfig) RequestTimeout() time.Duration {
	return time.Duration(g.RequestTimeoutSeconds) * time.Second
}

// Temperature returns the sampling temperature for a category
func (g GeneratorConfig) Temperature(category models.Category) float64 {
	if category == models.CategoryCoding {
		if g.CodingTemperature != nil {
			return *g.CodingTemperature
		}
		return DefaultCodingTemperature
	}
	if g.NonCodingTemperature != nil {
		return *g.NonCodingTemperature
	}
	return DefaultNonCodingTemperature
}

// LoadSecrets loads sensitive credentials from environment variables
func LoadSecrets() (*Secrets, error) {
	secrets := &Secrets{
		APIKeys: make(map[string]string),
	}

	// Generic key for any OpenAI-compatible provider
	if key := os.Getenv("API_KEY"); key != "" {
		secrets.APIKeys["generic"] = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		secrets.APIKeys["openai"] = key
	}
	if key := os.Getenv("TOGETHER_API_KEY"); key != "" {
		secrets.APIKeys["together"] = key
	}

	secrets.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	secrets.DatabaseURL = os.Getenv("QUIZFORGE_DATABASE_URL")
	secrets.NATSURL = os.Getenv("NATS_URL")

	return secrets, nil
}

// GetAPIKey returns the API key for a given base URL
func (s *Secrets) GetAPIKey(baseURL string) string {
	if strings.Contains(baseURL, "openai.com") {
		if key := s.APIKeys["openai"]; key != "" {
			return key
		}
	}
	if strings.Contains(baseURL, "together.xyz") || strings.Contains(baseURL, "together.ai") {
		if key := s.APIKeys["together"]; key != "" {
			return key
		}
	}

	// Fall back to generic API_KEY for any OpenAI-compatible provider
	if key := s.APIKeys["generic"]; key != "" {
		return key
	}

	// Local servers may run without auth
	return ""
}
