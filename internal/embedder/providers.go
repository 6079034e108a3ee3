package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"
)

// Provider configuration
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	EnvProvider     = "SEMINDEX_EMBEDDING_PROVIDER"
	EnvJinaAPIKey   = "JINA_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"

	// Default models
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultLocalModel  = "hash-bow"

	DefaultJinaURL   = "https://api.jina.ai/v1/embeddings"
	DefaultOpenAIURL = "https://api.openai.com/v1/embeddings"

	LocalDimension = 384

	// Batch limits
	JinaMaxBatchSize   = 64
	OpenAIMaxBatchSize = 100
	LocalMaxBatchSize  = 256

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0

	maxResponseBytes = 64 << 20
)

// knownDimensions lists output sizes of hosted models.
var knownDimensions = map[string]int{
	"text-embedding-3-small":       1536,
	"text-embedding-3-large":       3072,
	"text-embedding-ada-002":       1536,
	"jina-embeddings-v3":           1024,
	"jina-embeddings-v2-base-en":   768,
	"jina-embeddings-v2-small-en":  512,
	"jina-embeddings-v2-base-code": 768,
}

// ProviderOptions configures a hosted provider.
type ProviderOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	Dimensions int // requested output size, 0 for the model default
	Timeout    time.Duration
	Retry      *RetryConfig
	Cache      *Cache
}

// httpProvider holds what the hosted providers share: a JSON POST with
// classified failures, retry, and an optional cache.
type httpProvider struct {
	id         string
	model      string
	endpoint   string
	apiKey     string
	dimensions int
	httpClient *http.Client
	retry      RetryConfig
	cache      *Cache
}

func newHTTPProvider(id, defaultModel, defaultURL, envKey string, opts ProviderOptions) (*httpProvider, error) {
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(envKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, envKey)
	}

	p := &httpProvider{
		id:         id,
		model:      opts.Model,
		endpoint:   opts.BaseURL,
		apiKey:     apiKey,
		dimensions: opts.Dimensions,
		httpClient: &http.Client{Timeout: opts.Timeout},
		retry:      DefaultRetryConfig(),
		cache:      opts.Cache,
	}
	if p.model == "" {
		p.model = defaultModel
	}
	if p.endpoint == "" {
		p.endpoint = defaultURL
	}
	if p.httpClient.Timeout <= 0 {
		p.httpClient.Timeout = 30 * time.Second
	}
	if opts.Retry != nil {
		p.retry = *opts.Retry
	}
	return p, nil
}

func (h *httpProvider) ID() string {
	return h.id
}

func (h *httpProvider) Model() string {
	return h.model
}

func (h *httpProvider) ExpectedDimension() int {
	if h.dimensions > 0 {
		return h.dimensions
	}
	return knownDimensions[h.model]
}

func (h *httpProvider) ScreenContent(text string) (bool, []string) {
	return ScreenText(text)
}

func (h *httpProvider) RiskSignals(text string) []string {
	return DetectRiskSignals(text)
}

func (h *httpProvider) Close() error {
	h.httpClient.CloseIdleConnections()
	return nil
}

// generate serves cached vectors and sends the rest through build.
func (h *httpProvider) generate(ctx context.Context, texts []string, opts GenerateOptions, build func([]string) map[string]interface{}) ([][]float32, error) {
	if err := ValidateTexts(texts); err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	var missing []int
	for i, text := range texts {
		if h.cache != nil {
			if vec, ok := h.cache.Get(CacheKey(h.model, opts.InputType, text)); ok {
				out[i] = vec
				continue
			}
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	pending := make([]string, len(missing))
	for i, idx := range missing {
		pending[i] = texts[idx]
	}

	attempt := 0
	vectors, err := retryWithBackoff(ctx, h.retry, func() ([][]float32, error) {
		if attempt > 0 && opts.Admit != nil {
			if err := opts.Admit(ctx); err != nil {
				return nil, err
			}
		}
		attempt++
		return h.callAPI(ctx, build(pending), len(pending))
	})
	if err != nil {
		return nil, err
	}

	for i, idx := range missing {
		out[idx] = vectors[i]
		if h.cache != nil {
			h.cache.Set(CacheKey(h.model, opts.InputType, texts[idx]), vectors[i])
		}
	}
	return out, nil
}

func (h *httpProvider) callAPI(ctx context.Context, payload map[string]interface{}, expected int) ([][]float32, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.apiKey)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, Classify(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, Classify(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, FromHTTPStatus(resp.StatusCode, raw, resp.Header.Get("Retry-After"))
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		if !json.Valid(bytes.TrimSpace(raw)) {
			return nil, &ProviderError{
				Code:      CodeUnexpectedResponse,
				Status:    resp.StatusCode,
				Message:   "response is not JSON",
				Transient: true,
				NonJSON:   true,
				Err:       err,
			}
		}
		return nil, &ProviderError{Code: CodeInvalidResponse, Status: resp.StatusCode, Message: "decode response", Err: err}
	}

	if len(apiResp.Data) != expected {
		return nil, &ProviderError{
			Code:    CodeInvalidResponse,
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("expected %d embeddings, got %d", expected, len(apiResp.Data)),
		}
	}

	sort.SliceStable(apiResp.Data, func(i, j int) bool {
		return apiResp.Data[i].Index < apiResp.Data[j].Index
	})
	vectors := make([][]float32, len(apiResp.Data))
	for i, data := range apiResp.Data {
		if len(data.Embedding) == 0 {
			return nil, &ProviderError{Code: CodeInvalidResponse, Status: resp.StatusCode, Message: fmt.Sprintf("empty embedding at index %d", i)}
		}
		vectors[i] = data.Embedding
	}
	return vectors, nil
}

// JinaProvider implements Provider using the Jina AI API
type JinaProvider struct {
	*httpProvider
}

// NewJinaProvider creates a new Jina AI provider
func NewJinaProvider(opts ProviderOptions) (*JinaProvider, error) {
	base, err := newHTTPProvider(ProviderJina, DefaultJinaModel, DefaultJinaURL, EnvJinaAPIKey, opts)
	if err != nil {
		return nil, err
	}
	return &JinaProvider{httpProvider: base}, nil
}

func (j *JinaProvider) MaxBatchSize() int {
	return JinaMaxBatchSize
}

func (j *JinaProvider) GenerateEmbeddings(ctx context.Context, texts []string, opts GenerateOptions) ([][]float32, error) {
	if len(texts) > JinaMaxBatchSize {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, JinaMaxBatchSize)
	}
	return j.generate(ctx, texts, opts, func(pending []string) map[string]interface{} {
		payload := map[string]interface{}{
			"input": pending,
			"model": j.model,
		}
		if strings.HasPrefix(j.model, "jina-embeddings-v3") {
			payload["task"] = "retrieval.passage"
			if opts.InputType == InputQuery {
				payload["task"] = "retrieval.query"
			}
		}
		if j.dimensions > 0 {
			payload["dimensions"] = j.dimensions
		}
		return payload
	})
}

// OpenAIProvider implements Provider using the OpenAI API
type OpenAIProvider struct {
	*httpProvider
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(opts ProviderOptions) (*OpenAIProvider, error) {
	base, err := newHTTPProvider(ProviderOpenAI, DefaultOpenAIModel, DefaultOpenAIURL, EnvOpenAIAPIKey, opts)
	if err != nil {
		return nil, err
	}
	return &OpenAIProvider{httpProvider: base}, nil
}

func (o *OpenAIProvider) MaxBatchSize() int {
	return OpenAIMaxBatchSize
}

func (o *OpenAIProvider) GenerateEmbeddings(ctx context.Context, texts []string, opts GenerateOptions) ([][]float32, error) {
	if len(texts) > OpenAIMaxBatchSize {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, OpenAIMaxBatchSize)
	}
	return o.generate(ctx, texts, opts, func(pending []string) map[string]interface{} {
		payload := map[string]interface{}{
			"input":           pending,
			"model":           o.model,
			"encoding_format": "float",
		}
		if o.dimensions > 0 {
			payload["dimensions"] = o.dimensions
		}
		return payload
	})
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity).
// A zero vector is returned unchanged.
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}

	if sum == 0 {
		return v
	}

	norm := math.Sqrt(sum)
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = float32(float64(val) / norm)
	}

	return result
}
