package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	OpenAIVisionName         = "openai"
	openAIVisionDefaultModel = "gpt-4o-mini"
)

const ocrPrompt = `You are an OCR engine for scanned newspaper pages. Transcribe ALL text
visible on the page image, preserving reading order (column by column) and
line breaks between blocks. Do not translate, summarize, or correct the text.

Respond with JSON only:
{"text": "<full transcription>", "confidence": <0-100 integer estimate of transcription quality>}`

// OpenAIVisionConfig holds configuration for the OpenAI vision OCR client.
type OpenAIVisionConfig struct {
	APIKey     string
	Model      string        // vision-capable chat model
	RateLimit  float64       // requests per second
	MaxRetries int           // attempts for transient failures
	RetryDelay time.Duration // base delay for backoff
	Timeout    time.Duration // HTTP timeout
	BaseURL    string        // optional (tests)
	HTTPClient *http.Client  // optional (tests)
}

// OpenAIVisionClient implements OCRProvider using a vision-capable chat model
// through the official OpenAI SDK.
type OpenAIVisionClient struct {
	model      string
	rateLimit  float64
	maxRetries int
	retryDelay time.Duration
	gate       *rateGate
	client     openai.Client
}

// NewOpenAIVisionClient creates a new OpenAI vision OCR client.
func NewOpenAIVisionClient(cfg OpenAIVisionConfig) *OpenAIVisionClient {
	if cfg.Model == "" {
		cfg.Model = openAIVisionDefaultModel
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 2.0
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIVisionClient{
		model:      cfg.Model,
		rateLimit:  cfg.RateLimit,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		gate:       newRateGate(cfg.RateLimit),
		client:     openai.NewClient(opts...),
	}
}

// Name returns the provider identifier.
func (c *OpenAIVisionClient) Name() string {
	return OpenAIVisionName
}

// RequestsPerSecond returns the configured rate limit.
func (c *OpenAIVisionClient) RequestsPerSecond() float64 {
	return c.rateLimit
}

// MaxRetries returns the maximum retry attempts.
func (c *OpenAIVisionClient) MaxRetries() int {
	return c.maxRetries
}

// RetryDelayBase returns the base delay for exponential backoff.
func (c *OpenAIVisionClient) RetryDelayBase() time.Duration {
	return c.retryDelay
}

// ProcessImage transcribes one rendered page image.
func (c *OpenAIVisionClient) ProcessImage(ctx context.Context, image []byte, pageNum int) (*OCRResult, error) {
	start := time.Now()
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(image)

	var result *OCRResult
	err := retry.Do(
		func() error {
			if err := c.gate.wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
				Model: openai.ChatModel(c.model),
				Messages: []openai.ChatCompletionMessageParamUnion{
					openai.SystemMessage(ocrPrompt),
					openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
						openai.TextContentPart(fmt.Sprintf("Page %d. Transcribe this newspaper page.", pageNum)),
						openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
							URL: dataURL,
						}),
					}),
				},
			})
			if err != nil {
				return fmt.Errorf("vision request failed: %w", err)
			}
			if len(resp.Choices) == 0 {
				return fmt.Errorf("vision response had no choices")
			}

			parsed, err := parseOCRPayload(resp.Choices[0].Message.Content)
			if err != nil {
				// Malformed model output is retryable: the next attempt
				// usually produces valid JSON.
				return err
			}
			result = parsed
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries)),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}

	result.Engine = fmt.Sprintf("%s/%s", OpenAIVisionName, c.model)
	result.Duration = time.Since(start)
	return result, nil
}

// parseOCRPayload extracts and validates the structured OCR JSON from the
// model response, tolerating markdown code fences around the payload.
func parseOCRPayload(content string) (*OCRResult, error) {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		trimmed = strings.TrimSpace(trimmed)
	}

	if err := ValidateOCRPayload([]byte(trimmed)); err != nil {
		return nil, err
	}

	var result OCRResult
	if err := json.Unmarshal([]byte(trimmed), &result); err != nil {
		return nil, fmt.Errorf("failed to parse OCR payload: %w", err)
	}
	return &result, nil
}
