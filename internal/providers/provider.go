// Package providers implements OCR engines behind a common interface.
package providers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// OCRResult is the outcome of OCR on a single page image.
type OCRResult struct {
	// Text is the recognized page text.
	Text string `json:"text"`
	// Confidence is the engine's own 0-100 estimate of recognition quality.
	Confidence int `json:"confidence"`
	// Engine identifies the provider and model that produced the result.
	Engine string `json:"engine"`
	// Duration is the wall time of the call including retries.
	Duration time.Duration `json:"-"`
}

// OCRProvider handles image-to-text extraction.
type OCRProvider interface {
	// Name returns the provider identifier (e.g. "openai").
	Name() string

	// ProcessImage extracts text from a rendered page image.
	ProcessImage(ctx context.Context, image []byte, pageNum int) (*OCRResult, error)

	// Rate limiting properties
	RequestsPerSecond() float64
	MaxRetries() int
	RetryDelayBase() time.Duration
}

// Config configures one OCR provider instance.
type Config struct {
	Type       string // "openai-vision", "mock"
	Model      string
	APIKey     string
	RateLimit  float64
	MaxRetries int
	Timeout    time.Duration
	Enabled    bool
}

// Registry holds configured OCR providers and survives config hot reloads.
type Registry struct {
	mu          sync.RWMutex
	providers   map[string]OCRProvider
	defaultName string
	logger      *slog.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]OCRProvider)}
}

// SetLogger sets the logger used for reload reporting.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Reload replaces the registry contents from configuration. Disabled
// entries are skipped; unknown types are logged and skipped.
func (r *Registry) Reload(cfgs map[string]Config, defaultName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers = make(map[string]OCRProvider, len(cfgs))
	r.defaultName = defaultName

	for name, cfg := range cfgs {
		if !cfg.Enabled {
			continue
		}
		var p OCRProvider
		switch cfg.Type {
		case "openai-vision":
			p = NewOpenAIVisionClient(OpenAIVisionConfig{
				APIKey:     cfg.APIKey,
				Model:      cfg.Model,
				RateLimit:  cfg.RateLimit,
				MaxRetries: cfg.MaxRetries,
				Timeout:    cfg.Timeout,
			})
		case "mock":
			p = NewMockOCRProvider(name)
		default:
			if r.logger != nil {
				r.logger.Warn("unknown OCR provider type", "name", name, "type", cfg.Type)
			}
			continue
		}
		r.providers[name] = p
	}
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (OCRProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("OCR provider not configured: %s", name)
	}
	return p, nil
}

// Default returns the provider selected by configuration.
func (r *Registry) Default() (OCRProvider, error) {
	r.mu.RLock()
	name := r.defaultName
	r.mu.RUnlock()
	if name == "" {
		return nil, fmt.Errorf("no default OCR provider configured")
	}
	return r.Get(name)
}

// Names returns the configured provider names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// rateGate enforces a minimum interval between calls to one provider.
type rateGate struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

func newRateGate(requestsPerSecond float64) *rateGate {
	if requestsPerSecond <= 0 {
		return &rateGate{}
	}
	return &rateGate{interval: time.Duration(float64(time.Second) / requestsPerSecond)}
}

// wait blocks until the next call is allowed or the context is done.
func (g *rateGate) wait(ctx context.Context) error {
	g.mu.Lock()
	nowT := time.Now()
	next := g.last.Add(g.interval)
	if next.Before(nowT) {
		next = nowT
	}
	g.last = next
	g.mu.Unlock()

	d := time.Until(next)
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
