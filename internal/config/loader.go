package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Load reads and parses the configuration file and environment variables
func Load(configPath string) (*Config, *Secrets, error) {
	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, nil, err
	}

	// Load secrets from environment
	secrets, err := LoadSecrets()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load secrets: %w", err)
	}

	if cfg.Store.Driver == "postgres" && secrets.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("QUIZFORGE_DATABASE_URL is required for the postgres store")
	}
	if cfg.Mirror.NATS && secrets.NATSURL == "" {
		return nil, nil, fmt.Errorf("NATS_URL is required when mirror.nats is enabled")
	}

	return cfg, secrets, nil
}

// Parse decodes TOML, applies defaults and validates the result
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply defaults
	applyDefaults(&cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Additional input security validation
	if err := cfg.ValidateInputs(); err != nil {
		return nil, fmt.Errorf("input validation failed: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	// Generation defaults
	g := &cfg.Generation
	if g.CodingWorkers == 0 {
		g.CodingWorkers = 3
	}
	if g.NonCodingWorkers == 0 {
		g.NonCodingWorkers = 6
	}
	if g.DefaultWorkers == 0 {
		g.DefaultWorkers = 4
	}
	if g.MaxWorkers == 0 {
		g.MaxWorkers = 8
	}
	if g.RequestTimeoutSeconds == 0 {
		g.RequestTimeoutSeconds = 120
	}
	if len(g.Difficulties) == 0 {
		g.Difficulties = []string{"easy", "intermediate", "advanced", "master"}
	}
	if g.NearDuplicateThreshold == 0 {
		g.NearDuplicateThreshold = 0.8
	}
	if g.DuplicateWindow == 0 {
		g.DuplicateWindow = 200
	}

	// Planner defaults
	if cfg.Planner.MaxGroupSize == 0 {
		cfg.Planner.MaxGroupSize = 3
	}
	if cfg.Planner.MaxCombinations == 0 {
		cfg.Planner.MaxCombinations = 50
	}

	// Generator defaults
	if cfg.Generator.Provider == "" {
		cfg.Generator.Provider = "openai"
	}
	if cfg.Generator.Model == "" {
		cfg.Generator.Model = "main"
	}
	if cfg.Generator.GeminiModel == "" {
		cfg.Generator.GeminiModel = DefaultGeminiModel
	}

	// Apply defaults for each model
	for name, model := range cfg.Models {
		if model.Temperature == 0 {
			model.Temperature = 0.7
		}
		if model.TopP == 0 {
			model.TopP = 1.0
		}
		if model.MaxOutputTokens == 0 {
			model.MaxOutputTokens = 4096
		}
		if model.ContextSize == 0 {
			model.ContextSize = 16384
		}
		if model.RateLimitPerMinute == 0 {
			model.RateLimitPerMinute = 60
		}
		// NOTE: In TOML, we can't distinguish 0 from unset, so unset defaults to 3
		if model.MaxRetries == 0 {
			model.MaxRetries = 3
		}
		if model.HTTPTimeoutSeconds == 0 {
			model.HTTPTimeoutSeconds = 120
		}
		cfg.Models[name] = model
	}

	// Store defaults
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "sqlite"
	}
	if cfg.Store.Driver == "sqlite" && cfg.Store.Path == "" {
		cfg.Store.Path = "quizforge.db"
	}

	if cfg.Mirror.TimeoutSeconds == 0 {
		cfg.Mirror.TimeoutSeconds = 5
	}
	if cfg.Retrieval.MaxBytes == 0 {
		cfg.Retrieval.MaxBytes = 8000
	}
	if cfg.Retrieval.CacheTTLMinutes == 0 {
		cfg.Retrieval.CacheTTLMinutes = 30
	}

	// Server defaults
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 15
	}
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = 30
	}
	if cfg.Server.ShutdownTimeoutSeconds == 0 {
		cfg.Server.ShutdownTimeoutSeconds = 30
	}

	// Session defaults
	if cfg.Sessions.RetentionHours == 0 {
		cfg.Sessions.RetentionHours = 24
	}
	if cfg.Sessions.SweepIntervalMinutes == 0 {
		cfg.Sessions.SweepIntervalMinutes = 10
	}
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "output"
	}
	if cfg.Sessions.ArchiveDir == "" {
		cfg.Sessions.ArchiveDir = filepath.Join(cfg.Output.Dir, "sessions")
	}

	// Apply default templates if not provided
	if cfg.PromptTemplates.SystemPrompt == "" {
		cfg.PromptTemplates.SystemPrompt = GetDefaultSystemPrompt()
	}
	if cfg.PromptTemplates.CodingGeneration == "" {
		cfg.PromptTemplates.CodingGeneration = GetDefaultCodingTemplate()
	}
	if cfg.PromptTemplates.NonCodingGeneration == "" {
		cfg.PromptTemplates.NonCodingGeneration = GetDefaultNonCodingTemplate()
	}
}
