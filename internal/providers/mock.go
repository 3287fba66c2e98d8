package providers

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockOCRProvider is a test double that returns canned results.
type MockOCRProvider struct {
	name string

	mu sync.Mutex
	// Results maps page number to canned result; pages without an entry get
	// a generated placeholder.
	Results map[int]*OCRResult
	// Err, when set, is returned from every ProcessImage call.
	Err error
	// Calls records the page numbers processed, in order.
	Calls []int
}

// NewMockOCRProvider creates a mock provider with the given name.
func NewMockOCRProvider(name string) *MockOCRProvider {
	if name == "" {
		name = "mock"
	}
	return &MockOCRProvider{
		name:    name,
		Results: make(map[int]*OCRResult),
	}
}

// Name returns the provider identifier.
func (m *MockOCRProvider) Name() string { return m.name }

// RequestsPerSecond returns an effectively unlimited rate for tests.
func (m *MockOCRProvider) RequestsPerSecond() float64 { return 1000 }

// MaxRetries returns a single attempt.
func (m *MockOCRProvider) MaxRetries() int { return 1 }

// RetryDelayBase returns a negligible delay.
func (m *MockOCRProvider) RetryDelayBase() time.Duration { return time.Millisecond }

// ProcessImage returns the canned result for pageNum.
func (m *MockOCRProvider) ProcessImage(ctx context.Context, image []byte, pageNum int) (*OCRResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, pageNum)
	if m.Err != nil {
		return nil, m.Err
	}
	if r, ok := m.Results[pageNum]; ok {
		out := *r
		if out.Engine == "" {
			out.Engine = m.name
		}
		return &out, nil
	}
	return &OCRResult{
		Text:       fmt.Sprintf("mock ocr text for page %d", pageNum),
		Confidence: 85,
		Engine:     m.name,
	}, nil
}
