package storage

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"videoAsk/config"
	"videoAsk/core"
)

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	oa    *openai.Client
	model string
	dim   int
}

func NewOpenAIEmbedder() (*OpenAIEmbedder, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &OpenAIEmbedder{
		oa:    OpenAIClient(),
		model: cfg.EmbeddingModel,
		dim:   cfg.EmbeddingDim,
	}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: []string{text},
	}
	resp, err := e.oa.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, &core.EmbeddingError{Err: err}
	}
	if len(resp.Data) == 0 {
		return nil, &core.EmbeddingError{Err: fmt.Errorf("no embeddings returned")}
	}
	vec := resp.Data[0].Embedding
	if len(vec) != e.dim {
		return nil, &core.EmbeddingError{Err: fmt.Errorf("unexpected embedding dimension %d, want %d", len(vec), e.dim)}
	}
	return vec, nil
}

// OpenAIClient builds a client from the global config, honoring the
// BaseURL override for OpenAI-compatible providers.
func OpenAIClient() *openai.Client {
	cfg, err := config.LoadConfig()
	if err != nil {
		return openai.NewClient("")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientConfig)
}
