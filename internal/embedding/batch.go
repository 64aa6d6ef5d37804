package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"docqa/internal/models"
)

// BatchChunks embeds every chunk with at most concurrency in-flight
// gateway calls, each bounded by timeout. The result is all-or-nothing:
// any failure cancels the remaining work and no partial slice is
// returned, so a caller never indexes a half-embedded document.
func BatchChunks(ctx context.Context, gw Gateway, chunks []models.Chunk, concurrency int, timeout time.Duration) ([]models.Chunk, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	started := time.Now()
	out := make([]models.Chunk, len(chunks))
	copy(out, chunks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := range out {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()
			vec, err := gw.Embed(callCtx, out[i].Text)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", out[i].ID, err)
			}
			out[i].Embedding = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Debug().
		Int("chunks", len(out)).
		Dur("elapsed", time.Since(started)).
		Msg("embedded document chunks")
	return out, nil
}
