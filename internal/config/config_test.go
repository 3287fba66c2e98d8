package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != "8080" {
		t.Errorf("port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.Extract.MinCharsPerPage != 200 {
		t.Errorf("min_chars_per_page = %d, want 200", cfg.Extract.MinCharsPerPage)
	}
	if cfg.Extract.LowConfidenceThreshold != 70 {
		t.Errorf("low_confidence_threshold = %d, want 70", cfg.Extract.LowConfidenceThreshold)
	}
	if cfg.OCR.Provider != "openai" {
		t.Errorf("provider = %q, want openai", cfg.OCR.Provider)
	}
	p, ok := cfg.OCR.Providers["openai"]
	if !ok {
		t.Fatal("expected openai provider config")
	}
	if p.Type != "openai-vision" || !p.Enabled {
		t.Errorf("provider = %+v", p)
	}
	if cfg.Stories.HeadlineSimilarity != 0.5 {
		t.Errorf("headline_similarity = %v", cfg.Stories.HeadlineSimilarity)
	}
	if cfg.Search.MaxLimit != 100 {
		t.Errorf("max_limit = %d", cfg.Search.MaxLimit)
	}
	if cfg.Archive.Auto {
		t.Error("auto archive should default to off")
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Setenv("BROADSHEET_TEST_KEY", "sk-secret")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain value", "literal-key", "literal-key"},
		{"env reference", "${BROADSHEET_TEST_KEY}", "sk-secret"},
		{"embedded", "prefix-${BROADSHEET_TEST_KEY}-suffix", "prefix-sk-secret-suffix"},
		{"unset expands empty", "${BROADSHEET_TEST_UNSET_VAR}", ""},
		{"no braces untouched", "$BROADSHEET_TEST_KEY", "$BROADSHEET_TEST_KEY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveEnvVars(tt.in); got != tt.want {
				t.Errorf("ResolveEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestToOCRRegistryConfig(t *testing.T) {
	t.Setenv("TEST_OCR_KEY", "resolved-key")

	cfg := DefaultConfig()
	cfg.OCR.Providers["openai"] = OCRProviderCfg{
		Type:           "openai-vision",
		Model:          "gpt-4o-mini",
		APIKey:         "${TEST_OCR_KEY}",
		RateLimit:      2.0,
		MaxRetries:     3,
		TimeoutSeconds: 120,
		Enabled:        true,
	}

	out, active := cfg.ToOCRRegistryConfig()
	if active != "openai" {
		t.Errorf("active = %q", active)
	}
	p := out["openai"]
	if p.APIKey != "resolved-key" {
		t.Errorf("api_key = %q, want resolved env value", p.APIKey)
	}
	if p.Timeout != 120*time.Second {
		t.Errorf("timeout = %v", p.Timeout)
	}
	if p.MaxRetries != 3 || p.RateLimit != 2.0 {
		t.Errorf("config = %+v", p)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("wrote empty config")
	}

	// Refuses to clobber an existing file.
	if err := WriteDefault(path); err == nil {
		t.Error("expected error overwriting existing config")
	}
}
