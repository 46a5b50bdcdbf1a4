package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/calebwren/rapport/internal/config"
	"github.com/calebwren/rapport/internal/logger"
)

const (
	jinaEndpoint = "https://api.jina.ai/v1/embeddings"

	providerJina   = "jina"
	providerOpenAI = "openai"
)

// Embedder generates one embedding per text. The workflow, persona seeding
// and tests depend on this interface rather than the HTTP client.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// EmbeddingService handles text embedding generation against a jina or
// OpenAI-compatible embeddings endpoint. Vectors come back at the provider's
// native dimension and are padded or truncated to the index dimension.
type EmbeddingService struct {
	client    *resty.Client
	provider  string
	endpoint  string
	model     string
	nativeDim int
	targetDim int
}

// NewEmbeddingService creates a new embedding service
func NewEmbeddingService(cfg *config.EmbeddingConfig) *EmbeddingService {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client.SetTimeout(timeout)

	provider := cfg.Provider
	if provider == "" {
		provider = providerJina
	}
	endpoint := jinaEndpoint
	if provider == providerOpenAI {
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		endpoint = baseURL + "/embeddings"
	}

	targetDim := cfg.Dimension
	if targetDim <= 0 {
		targetDim = 1536
	}
	nativeDim := cfg.NativeDimension
	if nativeDim <= 0 {
		nativeDim = targetDim
	}

	return &EmbeddingService{
		client:    client,
		provider:  provider,
		endpoint:  endpoint,
		model:     cfg.Model,
		nativeDim: nativeDim,
		targetDim: targetDim,
	}
}

// GetModel returns the model name being used
func (s *EmbeddingService) GetModel() string {
	return s.model
}

// Dimension returns the index dimension vectors are fitted to.
func (s *EmbeddingService) Dimension() int {
	return s.targetDim
}

// Jina API request/response structures
type jinaRequest struct {
	Model         string   `json:"model"`
	Task          string   `json:"task,omitempty"`
	Dimensions    int      `json:"dimensions,omitempty"`
	Input         []string `json:"input"`
	EmbeddingType string   `json:"embedding_type,omitempty"`
}

// OpenAI-compatible embeddings request
type openAIEmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Detail string `json:"detail,omitempty"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed generates an embedding for a single text, fitted to the index
// dimension.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("empty text")
	}

	var body interface{}
	if s.provider == providerOpenAI {
		body = openAIEmbeddingRequest{Model: s.model, Input: []string{text}}
	} else {
		body = jinaRequest{
			Model:         s.model,
			Task:          "retrieval.passage",
			Dimensions:    s.nativeDim,
			Input:         []string{text},
			EmbeddingType: "float",
		}
	}

	var resp embeddingResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&resp).
		Post(s.endpoint)

	if err != nil {
		return nil, fmt.Errorf("failed to call embedding API: %w", err)
	}
	if httpResp.StatusCode() != 200 {
		if resp.Detail != "" {
			return nil, fmt.Errorf("embedding API error: %s", resp.Detail)
		}
		if resp.Error != nil && resp.Error.Message != "" {
			return nil, fmt.Errorf("embedding API error: %s", resp.Error.Message)
		}
		return nil, fmt.Errorf("embedding API error: status %d", httpResp.StatusCode())
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}

	return fitDimension(resp.Data[0].Embedding, s.targetDim), nil
}

// fitDimension pads with zeros or truncates so the vector matches the index.
func fitDimension(vec []float32, dim int) []float32 {
	if len(vec) == dim {
		return vec
	}
	fitted := make([]float32, dim)
	copy(fitted, vec)
	return fitted
}

// EmbedOrZero returns the embedding for text, or the zero vector when the
// text is empty or the provider call fails. Failures are logged, never
// propagated: a missing embedding degrades fusion instead of failing the
// pipeline.
func EmbedOrZero(ctx context.Context, e Embedder, text string) []float32 {
	if text == "" {
		return make([]float32, e.Dimension())
	}
	vec, err := e.Embed(ctx, text)
	if err != nil {
		logger.CtxWarn(ctx, "embedding failed, substituting zero vector: %v", err)
		return make([]float32, e.Dimension())
	}
	return vec
}
