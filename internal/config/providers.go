package config

import (
	"time"

	"github.com/broadsheet-archive/broadsheet/internal/providers"
)

// ToOCRRegistryConfig converts the OCR section into provider registry
// configuration, resolving ${ENV_VAR} references in API keys.
func (c *Config) ToOCRRegistryConfig() (map[string]providers.Config, string) {
	out := make(map[string]providers.Config, len(c.OCR.Providers))
	for name, p := range c.OCR.Providers {
		out[name] = providers.Config{
			Type:       p.Type,
			Model:      p.Model,
			APIKey:     ResolveEnvVars(p.APIKey),
			RateLimit:  p.RateLimit,
			MaxRetries: p.MaxRetries,
			Timeout:    time.Duration(p.TimeoutSeconds) * time.Second,
			Enabled:    p.Enabled,
		}
	}
	return out, c.OCR.Provider
}
