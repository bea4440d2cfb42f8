package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"clustermatch/internal/domain"
	"clustermatch/internal/port"
)

// OpenAI embedding models.
const (
	ModelTextEmbedding3Large = "text-embedding-3-large"
	ModelTextEmbedding3Small = "text-embedding-3-small"
)

// ErrEmptyInput is returned when the text is empty after trimming.
var ErrEmptyInput = errors.New("embedding: empty input")

// Options configures an OpenAIEmbedder.
type Options struct {
	Model      string
	Dimension  int
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
}

func (o *Options) setDefaults() {
	if o.Model == "" {
		o.Model = ModelTextEmbedding3Large
	}
	if o.Dimension <= 0 {
		o.Dimension = 3072
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}
}

// OpenAIEmbedder implements port.Embedder using the OpenAI embeddings API.
// It also works against any OpenAI-compatible endpoint via Options.BaseURL.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
	timeout   time.Duration
}

var _ port.Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an embedder bound to apiKey.
func NewOpenAIEmbedder(apiKey string, opts Options) (*OpenAIEmbedder, error) {
	if domain.Credential(apiKey).Empty() {
		return nil, &domain.ProviderError{
			Kind: domain.ProviderMissingCredential,
			Err:  errors.New("no API key supplied"),
		}
	}
	opts.setDefaults()

	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(opts.HTTPClient),
		option.WithMaxRetries(opts.MaxRetries),
		option.WithRequestTimeout(opts.Timeout),
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := openai.NewClient(clientOpts...)

	return &OpenAIEmbedder{
		client:    &client,
		model:     opts.Model,
		dimension: opts.Dimension,
		timeout:   opts.Timeout,
	}, nil
}

// Embed returns the embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	params := openai.EmbeddingNewParams{
		Model:          e.model,
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
		Dimensions:     openai.Int(int64(e.dimension)),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, classifyError(err)
	}
	if len(resp.Data) == 0 {
		return nil, &domain.ProviderError{
			Kind: domain.ProviderRejected,
			Err:  errors.New("response contained no embeddings"),
		}
	}

	vec := float64sToFloat32s(resp.Data[0].Embedding)
	if len(vec) != e.dimension {
		return nil, &domain.ProviderError{
			Kind: domain.ProviderRejected,
			Err:  fmt.Errorf("dimension mismatch: expected %d, got %d", e.dimension, len(vec)),
		}
	}
	return vec, nil
}

// Dimension returns the configured vector dimensionality.
func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

// ModelName returns the embedding model identifier.
func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

// classifyError maps an openai-go failure onto a ProviderError kind.
func classifyError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		kind := domain.ProviderRejected
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized, apiErr.StatusCode == http.StatusForbidden:
			kind = domain.ProviderAuth
		case apiErr.StatusCode == http.StatusTooManyRequests:
			kind = domain.ProviderRateLimit
		case apiErr.StatusCode >= 500:
			kind = domain.ProviderTransient
		}
		return &domain.ProviderError{Kind: kind, HTTPStatus: apiErr.StatusCode, Err: err}
	}
	// No HTTP response: network failure, deadline or cancellation.
	return &domain.ProviderError{Kind: domain.ProviderTransient, Err: err}
}

func float64sToFloat32s(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
