package config

// DefaultConfig returns the built-in configuration defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "",
		Server: ServerCfg{
			Host: "127.0.0.1",
			Port: "8080",
		},
		Extract: ExtractCfg{
			MinCharsPerPage:        200,
			RenderDPI:              300,
			LowConfidenceThreshold: 70,
		},
		OCR: OCRCfg{
			Provider: "openai",
			Providers: map[string]OCRProviderCfg{
				"openai": {
					Type:           "openai-vision",
					Model:          "gpt-4o-mini",
					APIKey:         "${OPENAI_API_KEY}",
					RateLimit:      2.0,
					MaxRetries:     3,
					TimeoutSeconds: 120,
					Enabled:        true,
				},
			},
		},
		Layout: LayoutCfg{
			HeadlineFontScale:     1.4,
			ClassifiedMaxFontSize: 8.0,
		},
		Stories: StoriesCfg{
			HeadlineSimilarity: 0.5,
			ExcerptLength:      280,
		},
		Classify: ClassifyCfg{
			CategoryThreshold: 30,
		},
		Search: SearchCfg{
			MaxLimit:      100,
			SnippetRadius: 90,
		},
		Archive: ArchiveCfg{
			Auto:    false,
			Backend: "archive",
		},
	}
}
