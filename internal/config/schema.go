package config

// Config holds broadsheet configuration.
// Loaded from config.yaml with BROADSHEET_ environment overrides.
type Config struct {
	DataDir  string      `mapstructure:"data_dir" yaml:"data_dir"`
	Server   ServerCfg   `mapstructure:"server" yaml:"server"`
	Extract  ExtractCfg  `mapstructure:"extract" yaml:"extract"`
	OCR      OCRCfg      `mapstructure:"ocr" yaml:"ocr"`
	Layout   LayoutCfg   `mapstructure:"layout" yaml:"layout"`
	Stories  StoriesCfg  `mapstructure:"stories" yaml:"stories"`
	Classify ClassifyCfg `mapstructure:"classify" yaml:"classify"`
	Search   SearchCfg   `mapstructure:"search" yaml:"search"`
	Archive  ArchiveCfg  `mapstructure:"archive" yaml:"archive"`
}

// ServerCfg holds HTTP server settings.
type ServerCfg struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port string `mapstructure:"port" yaml:"port"`
}

// ExtractCfg holds page extraction settings.
type ExtractCfg struct {
	// MinCharsPerPage is the native text-layer character count below which a
	// page is considered scanned and falls back to OCR.
	MinCharsPerPage int `mapstructure:"min_chars_per_page" yaml:"min_chars_per_page"`
	// RenderDPI is the resolution used when rendering pages for OCR.
	RenderDPI int `mapstructure:"render_dpi" yaml:"render_dpi"`
	// LowConfidenceThreshold marks OCR'd pages below this confidence for review.
	LowConfidenceThreshold int `mapstructure:"low_confidence_threshold" yaml:"low_confidence_threshold"`
}

// OCRCfg selects and configures OCR providers.
type OCRCfg struct {
	// Provider is the name of the provider to use from Providers.
	Provider  string                    `mapstructure:"provider" yaml:"provider"`
	Providers map[string]OCRProviderCfg `mapstructure:"providers" yaml:"providers"`
}

// OCRProviderCfg configures a single OCR provider.
type OCRProviderCfg struct {
	Type           string  `mapstructure:"type" yaml:"type"`             // "openai-vision", "mock"
	Model          string  `mapstructure:"model" yaml:"model"`           // vision model name
	APIKey         string  `mapstructure:"api_key" yaml:"api_key"`       // supports ${ENV_VAR} syntax
	RateLimit      float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // requests per second
	MaxRetries     int     `mapstructure:"max_retries" yaml:"max_retries"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	Enabled        bool    `mapstructure:"enabled" yaml:"enabled"`
}

// LayoutCfg holds segmentation heuristics thresholds.
type LayoutCfg struct {
	// HeadlineFontScale: a block whose font size is at least this multiple of
	// the page median starts a new story.
	HeadlineFontScale float64 `mapstructure:"headline_font_scale" yaml:"headline_font_scale"`
	// ClassifiedMaxFontSize: blocks at or below this size in multi-column
	// runs are treated as classifieds.
	ClassifiedMaxFontSize float64 `mapstructure:"classified_max_font_size" yaml:"classified_max_font_size"`
}

// StoriesCfg holds continuation-grouping thresholds.
type StoriesCfg struct {
	// HeadlineSimilarity is the minimum token overlap (0-1) for linking
	// same-headline items on consecutive pages.
	HeadlineSimilarity float64 `mapstructure:"headline_similarity" yaml:"headline_similarity"`
	// ExcerptLength is the number of characters kept in a group excerpt.
	ExcerptLength int `mapstructure:"excerpt_length" yaml:"excerpt_length"`
}

// ClassifyCfg holds classification settings.
type ClassifyCfg struct {
	// CategoryThreshold is the minimum confidence (0-100) for an automatic
	// category assignment.
	CategoryThreshold int `mapstructure:"category_threshold" yaml:"category_threshold"`
}

// SearchCfg holds search settings.
type SearchCfg struct {
	// MaxLimit caps the page size of search results.
	MaxLimit int `mapstructure:"max_limit" yaml:"max_limit"`
	// SnippetRadius is the number of characters of context kept around the
	// first matched term in a snippet.
	SnippetRadius int `mapstructure:"snippet_radius" yaml:"snippet_radius"`
}

// ArchiveCfg holds archival policy.
type ArchiveCfg struct {
	// Auto schedules archival automatically once an edition reaches READY.
	Auto bool `mapstructure:"auto" yaml:"auto"`
	// Backend is the blob backend archived editions are copied to.
	Backend string `mapstructure:"backend" yaml:"backend"`
}
