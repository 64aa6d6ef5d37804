// Package embedding converts text into fixed-dimension vectors through
// an external model provider behind the Gateway interface.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"docqa/internal/config"
)

var (
	// ErrEmbedding marks an unreachable gateway or malformed output.
	ErrEmbedding = errors.New("embedding failed")
	// ErrGatewayTimeout marks an embedding call that exceeded its deadline.
	ErrGatewayTimeout = errors.New("embedding gateway timeout")
)

// Gateway converts text into embedding vectors. All vectors produced by
// one Gateway share the same dimension.
type Gateway interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type langchainGateway struct {
	embedder *embeddings.EmbedderImpl
}

// New builds a Gateway for the configured provider.
func New(cfg *config.LLMConfig) (Gateway, error) {
	var (
		embedder *embeddings.EmbedderImpl
		err      error
	)
	switch cfg.Provider {
	case "ollama":
		embedder, err = newOllamaEmbedder(cfg)
	case "openai":
		embedder, err = newOpenAIEmbedder(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown llm provider %q", config.ErrConfig, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	return &langchainGateway{embedder: embedder}, nil
}

func newOpenAIEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.EmbeddingModel),
		openai.WithEmbeddingModel(cfg.EmbeddingModel),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}
	return embeddings.NewEmbedder(llm)
}

func newOllamaEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	opts := []ollama.Option{ollama.WithModel(cfg.EmbeddingModel)}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, err
	}
	return embeddings.NewEmbedder(llm)
}

func (g *langchainGateway) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := g.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, wrapErr(err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: provider returned an empty vector", ErrEmbedding)
	}
	return vec, nil
}

func (g *langchainGateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := g.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, wrapErr(err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: provider returned %d vectors for %d texts", ErrEmbedding, len(vecs), len(texts))
	}
	return vecs, nil
}

func wrapErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrGatewayTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrEmbedding, err)
}
