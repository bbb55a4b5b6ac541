package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lamim/quizforge/pkg/models"
)

const minimalConfig = `
[generator]
provider = "openai"

[models.main]
base_url = "https://api.openai.com/v1"
model_name = "gpt-4o-mini"

[[catalog.groups]]
id = 1
name = "Loops"
parent_id = 10
parent = "Control Flow"

[[catalog.groups]]
id = 2
name = "Conditionals"
parent_id = 10
parent = "Control Flow"
`

func validConfig() Config {
	var cfg Config
	cfg.Models = map[string]ModelConfig{
		"main": {
			BaseURL:   "https://api.example.com/v1",
			ModelName: "test-model",
		},
	}
	applyDefaults(&cfg)
	return cfg
}

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Generation.CodingWorkers != 3 || cfg.Generation.NonCodingWorkers != 6 {
		t.Errorf("Expected pool sizes 3/6, got %d/%d", cfg.Generation.CodingWorkers, cfg.Generation.NonCodingWorkers)
	}
	if cfg.Generation.NearDuplicateThreshold != 0.8 {
		t.Errorf("Expected threshold 0.8, got %.2f", cfg.Generation.NearDuplicateThreshold)
	}
	if cfg.Planner.MaxCombinations != 50 || cfg.Planner.MaxGroupSize != 3 {
		t.Errorf("Expected planner defaults 50/3, got %d/%d", cfg.Planner.MaxCombinations, cfg.Planner.MaxGroupSize)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.Path != "quizforge.db" {
		t.Errorf("Expected sqlite store default, got %+v", cfg.Store)
	}
	if cfg.Models["main"].RateLimitPerMinute != 60 {
		t.Errorf("Expected rpm default 60, got %d", cfg.Models["main"].RateLimitPerMinute)
	}
	if !strings.Contains(cfg.PromptTemplates.CodingGeneration, "{{.Quota}}") {
		t.Error("Expected default coding template")
	}
	if len(cfg.Catalog.Groups) != 2 || cfg.Catalog.Groups[0].ParentName != "Control Flow" {
		t.Errorf("Expected catalog groups with parent names, got %+v", cfg.Catalog.Groups)
	}
}

func TestParsePlannerRules(t *testing.T) {
	data := minimalConfig + `
[planner.rules.expert]
include_individuals = false
same_parent_pairs = 6
max_triples = 1
same_parent_triples = true
`
	cfg, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	r, ok := cfg.Planner.Rules["expert"]
	if !ok {
		t.Fatal("Expected expert rule")
	}
	if r.SameParentPairs != 6 || !r.SameParentTriples || r.MaxTriples != 1 {
		t.Errorf("Unexpected rule %+v", r)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid config", func(*Config) {}, ""},
		{"zero coding workers", func(c *Config) { c.Generation.CodingWorkers = -1 }, "generation.coding_workers"},
		{"huge pool", func(c *Config) { c.Generation.NonCodingWorkers = MaxPoolSize + 1 }, "must not exceed"},
		{"timeout too small", func(c *Config) { c.Generation.RequestTimeoutSeconds = 1 }, "request_timeout_seconds"},
		{"threshold above one", func(c *Config) { c.Generation.NearDuplicateThreshold = 1.5 }, "near_duplicate_threshold"},
		{"group size four", func(c *Config) { c.Planner.MaxGroupSize = 4 }, "planner.max_group_size"},
		{"unknown provider", func(c *Config) { c.Generator.Provider = "bard" }, "generator.provider"},
		{"missing model", func(c *Config) { c.Generator.Model = "other" }, "models.other"},
		{"bad temperature", func(c *Config) {
			v := 3.0
			c.Generator.CodingTemperature = &v
		}, "coding_temperature"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mysql" }, "store.driver"},
		{"duplicate group", func(c *Config) {
			c.Catalog.Groups = []models.ScopeGroup{{ID: 1}, {ID: 1}}
		}, "duplicate id"},
		{"output over context", func(c *Config) {
			m := c.Models["main"]
			m.MaxOutputTokens = m.ContextSize + 1
			c.Models["main"] = m
		}, "must not exceed context_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Config.Validate() unexpected error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Config.Validate() error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestGeminiProviderNeedsNoModelSection(t *testing.T) {
	var cfg Config
	cfg.Generator.Provider = "gemini"
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected gemini config to validate, got %v", err)
	}
	if cfg.Generator.GeminiModel != DefaultGeminiModel {
		t.Errorf("Expected default gemini model, got %s", cfg.Generator.GeminiModel)
	}
}

func TestTemperatureAndPoolSize(t *testing.T) {
	var g GeneratorConfig
	if got := g.Temperature(models.CategoryCoding); got != DefaultCodingTemperature {
		t.Errorf("Expected coding default %.1f, got %.1f", DefaultCodingTemperature, got)
	}
	if got := g.Temperature(models.CategoryNonCoding); got != DefaultNonCodingTemperature {
		t.Errorf("Expected non-coding default %.1f, got %.1f", DefaultNonCodingTemperature, got)
	}
	v := 0.3
	g.CodingTemperature = &v
	if got := g.Temperature(models.CategoryCoding); got != 0.3 {
		t.Errorf("Expected override 0.3, got %.1f", got)
	}

	gen := GenerationConfig{CodingWorkers: 3, NonCodingWorkers: 6, DefaultWorkers: 4}
	tests := []struct {
		category models.Category
		want     int
	}{
		{models.CategoryCoding, 3},
		{models.CategoryNonCoding, 6},
		{models.Category("other"), 4},
	}
	for _, tt := range tests {
		if got := gen.PoolSize(tt.category); got != tt.want {
			t.Errorf("PoolSize(%s) = %d, want %d", tt.category, got, tt.want)
		}
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(minimalConfig), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OPENAI_API_KEY", "test-key-123")

	cfg, secrets, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Generator.Provider != "openai" {
		t.Errorf("Expected openai provider, got %s", cfg.Generator.Provider)
	}
	if got := secrets.GetAPIKey(cfg.Models["main"].BaseURL); got != "test-key-123" {
		t.Errorf("Expected OpenAI key, got %q", got)
	}

	if _, _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestLoadRequiresDatabaseURLForPostgres(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := minimalConfig + "\n[store]\ndriver = \"postgres\"\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("QUIZFORGE_DATABASE_URL", "")

	if _, _, err := Load(path); err == nil || !strings.Contains(err.Error(), "QUIZFORGE_DATABASE_URL") {
		t.Errorf("Expected database url error, got %v", err)
	}
}

func TestLoadSecrets(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key-123")
	t.Setenv("GEMINI_API_KEY", "gemini-key")
	t.Setenv("NATS_URL", "nats://localhost:4222")

	secrets, err := LoadSecrets()
	if err != nil {
		t.Fatalf("LoadSecrets() error = %v", err)
	}

	if secrets.APIKeys["openai"] != "test-key-123" {
		t.Errorf("Expected OpenAI key to be 'test-key-123', got %s", secrets.APIKeys["openai"])
	}
	if secrets.GeminiAPIKey != "gemini-key" {
		t.Errorf("Expected Gemini key, got %s", secrets.GeminiAPIKey)
	}
	if secrets.NATSURL != "nats://localhost:4222" {
		t.Errorf("Expected NATS url, got %s", secrets.NATSURL)
	}
}

func TestGetAPIKey(t *testing.T) {
	secrets := &Secrets{
		APIKeys: map[string]string{
			"openai":   "openai-key",
			"together": "together-key",
		},
	}

	tests := []struct {
		name    string
		baseURL string
		want    string
	}{
		{
			name:    "OpenAI URL",
			baseURL: "https://api.openai.com/v1",
			want:    "openai-key",
		},
		{
			name:    "Together URL",
			baseURL: "https://api.together.xyz/v1",
			want:    "together-key",
		},
		{
			name:    "Unknown URL",
			baseURL: "https://unknown.com/v1",
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := secrets.GetAPIKey(tt.baseURL)
			if got != tt.want {
				t.Errorf("GetAPIKey() = %v, want %v", got, tt.want)
			}
		})
	}

	secrets.APIKeys["generic"] = "generic-key"
	if got := secrets.GetAPIKey("http://localhost:8000/v1"); got != "generic-key" {
		t.Errorf("Expected generic fallback, got %q", got)
	}
}
