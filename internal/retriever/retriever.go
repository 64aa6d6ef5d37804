// Package retriever turns a question into the top-k grounded passages
// of the active document.
package retriever

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"docqa/internal/embedding"
	"docqa/internal/models"
	"docqa/internal/vectorindex"
)

// retryBackoff is the pause before the single embedding retry.
const retryBackoff = 500 * time.Millisecond

type Config struct {
	TopK         int
	MinScore     float32
	EmbedTimeout time.Duration
}

type Retriever struct {
	gateway embedding.Gateway
	index   vectorindex.Index
	cfg     Config
}

func New(gateway embedding.Gateway, index vectorindex.Index, cfg Config) *Retriever {
	return &Retriever{gateway: gateway, index: index, cfg: cfg}
}

// Retrieve embeds the query, searches the index and drops results below
// the score floor, preserving the index ordering. An empty result means
// no passage was relevant enough; it is not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]models.RetrievedPassage, error) {
	vec, err := r.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	results, err := r.index.Search(ctx, vec, r.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	passages := make([]models.RetrievedPassage, 0, len(results))
	for _, res := range results {
		if res.Score < r.cfg.MinScore {
			continue
		}
		passages = append(passages, models.RetrievedPassage{
			ChunkID: res.ChunkID,
			Page:    res.Page,
			Text:    res.Text,
			Score:   res.Score,
		})
	}
	log.Debug().
		Int("hits", len(results)).
		Int("above_floor", len(passages)).
		Msg("retrieved passages")
	return passages, nil
}

// embedQuery calls the gateway with a bounded timeout and retries once
// after a short backoff. Failures propagate; there is no endless retry.
func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	vec, err := r.embedOnce(ctx, query)
	if err == nil {
		return vec, nil
	}
	log.Warn().Err(err).Msg("query embedding failed, retrying once")

	select {
	case <-time.After(retryBackoff):
	case <-ctx.Done():
		return nil, fmt.Errorf("embed query: %w", ctx.Err())
	}

	vec, retryErr := r.embedOnce(ctx, query)
	if retryErr != nil {
		return nil, fmt.Errorf("embed query: %w", retryErr)
	}
	return vec, nil
}

func (r *Retriever) embedOnce(ctx context.Context, query string) ([]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.EmbedTimeout)
	defer cancel()
	return r.gateway.Embed(callCtx, query)
}
