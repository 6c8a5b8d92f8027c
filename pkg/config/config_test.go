package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Search.MaxTotal != 80 || cfg.Search.MaxPerChapter != 6 {
		t.Errorf("unexpected caps: %d/%d", cfg.Search.MaxTotal, cfg.Search.MaxPerChapter)
	}
	if cfg.Search.SnippetLength != 240 {
		t.Errorf("expected snippet length 240, got %d", cfg.Search.SnippetLength)
	}
	if cfg.Search.Debounce != 80*time.Millisecond {
		t.Errorf("expected 80ms debounce, got %v", cfg.Search.Debounce)
	}
	if cfg.Index.DefaultLang != "it" || !cfg.Index.HasLanguage("en") {
		t.Errorf("unexpected languages: %v default %q", cfg.Index.Languages, cfg.Index.DefaultLang)
	}
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlData := `
index:
  baseUrl: https://book.example.org
  basePath: /manuale
  languages: [it, en, fr]
  defaultLang: fr
search:
  maxTotal: 20
  maxPerChapter: 3
  snippetLength: 120
`
	if err := os.WriteFile(path, []byte(yamlData), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TS_SEARCH_MAX_PER_CHAPTER", "4")
	t.Setenv("TS_LOGGING_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Index.BaseURL != "https://book.example.org" || cfg.Index.BasePath != "/manuale" {
		t.Errorf("index config not loaded: %+v", cfg.Index)
	}
	if cfg.Index.DefaultLang != "fr" {
		t.Errorf("expected default lang fr, got %q", cfg.Index.DefaultLang)
	}
	if cfg.Search.MaxTotal != 20 {
		t.Errorf("expected maxTotal 20, got %d", cfg.Search.MaxTotal)
	}
	if cfg.Search.MaxPerChapter != 4 {
		t.Errorf("expected env override 4, got %d", cfg.Search.MaxPerChapter)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %q", cfg.Logging.Level)
	}
	// untouched defaults survive a partial file
	if cfg.Search.Debounce != 80*time.Millisecond {
		t.Errorf("expected default debounce, got %v", cfg.Search.Debounce)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no languages", func(c *Config) { c.Index.Languages = nil }},
		{"default not listed", func(c *Config) { c.Index.DefaultLang = "de" }},
		{"zero max total", func(c *Config) { c.Search.MaxTotal = 0 }},
		{"zero per chapter", func(c *Config) { c.Search.MaxPerChapter = 0 }},
		{"zero snippet", func(c *Config) { c.Search.SnippetLength = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}
