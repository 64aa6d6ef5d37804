// Package vectorindex stores chunk embeddings for one document and
// answers k-nearest-neighbor queries by cosine similarity. Vectors are
// L2-normalized on the way in, so similarity reduces to a dot product
// and scores fall in [-1, 1] with higher meaning closer.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"docqa/internal/models"
)

var (
	// ErrDimensionMismatch marks vectors of inconsistent dimension, a
	// programming or configuration inconsistency. Not retried.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrEmptyIndex marks a build with no chunks when the caller
	// required at least one.
	ErrEmptyIndex = errors.New("no chunks to index")
)

// Result is one search hit with the chunk payload attached.
type Result struct {
	ChunkID int
	Page    int
	Text    string
	Score   float32
}

// Index answers similarity queries over the chunks of one document.
// Results are ordered by descending score, ties broken by ascending
// chunk id. k is clamped to the index size; searching an empty index
// returns no results rather than an error.
type Index interface {
	Search(ctx context.Context, query []float32, k int) ([]Result, error)
	Len() int
}

// Options controls index construction.
type Options struct {
	// AllowEmpty permits building an index over zero chunks; searches
	// on it return empty results.
	AllowEmpty bool
}

type entry struct {
	chunkID int
	page    int
	text    string
	vec     []float32
}

// BruteForce is an exact-search index. At single-document scale (tens
// to low hundreds of chunks) a linear scan is both simplest and fast
// enough; approximate structures can replace it behind Index.
type BruteForce struct {
	dim     int
	entries []entry
}

// Build normalizes the chunk embeddings and indexes them.
func Build(chunks []models.Chunk, opts Options) (*BruteForce, error) {
	dim, err := checkDimensions(chunks, opts)
	if err != nil {
		return nil, err
	}
	idx := &BruteForce{dim: dim, entries: make([]entry, 0, len(chunks))}
	for _, c := range chunks {
		idx.entries = append(idx.entries, entry{
			chunkID: c.ID,
			page:    c.Page,
			text:    c.Text,
			vec:     Normalize(c.Embedding),
		})
	}
	return idx, nil
}

func (idx *BruteForce) Len() int { return len(idx.entries) }

func (idx *BruteForce) Search(_ context.Context, query []float32, k int) ([]Result, error) {
	if len(idx.entries) == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != idx.dim {
		return nil, fmt.Errorf("%w: query has dimension %d, index has %d", ErrDimensionMismatch, len(query), idx.dim)
	}
	q := Normalize(query)

	results := make([]Result, 0, len(idx.entries))
	for _, e := range idx.entries {
		results = append(results, Result{
			ChunkID: e.chunkID,
			Page:    e.page,
			Text:    e.text,
			Score:   dot(q, e.vec),
		})
	}
	sortResults(results)
	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

// checkDimensions validates that every chunk carries an embedding of
// one consistent, non-zero dimension.
func checkDimensions(chunks []models.Chunk, opts Options) (int, error) {
	if len(chunks) == 0 {
		if !opts.AllowEmpty {
			return 0, ErrEmptyIndex
		}
		return 0, nil
	}
	dim := len(chunks[0].Embedding)
	if dim == 0 {
		return 0, fmt.Errorf("%w: chunk %d has no embedding", ErrDimensionMismatch, chunks[0].ID)
	}
	for _, c := range chunks[1:] {
		if len(c.Embedding) != dim {
			return 0, fmt.Errorf("%w: chunk %d has dimension %d, want %d", ErrDimensionMismatch, c.ID, len(c.Embedding), dim)
		}
	}
	return dim, nil
}

func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
}

// Normalize returns v scaled to unit length. The zero vector is
// returned as a copy unchanged.
func Normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if norm == 0 {
		copy(out, v)
		return out
	}
	scale := 1 / math.Sqrt(norm)
	for i, x := range v {
		out[i] = float32(float64(x) * scale)
	}
	return out
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
