package vectorindex

import (
	"context"
	"fmt"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"

	"docqa/internal/models"
)

const chromemCollection = "active-document"

// ChromemIndex backs the Index contract with an in-memory chromem-go
// collection. One collection holds exactly one document's chunks and is
// discarded with the index.
type ChromemIndex struct {
	collection *chromem.Collection
	dim        int
	size       int
}

// BuildChromem indexes the chunks in a fresh chromem collection.
func BuildChromem(ctx context.Context, chunks []models.Chunk, opts Options) (*ChromemIndex, error) {
	dim, err := checkDimensions(chunks, opts)
	if err != nil {
		return nil, err
	}

	db := chromem.NewDB()
	collection, err := db.GetOrCreateCollection(chromemCollection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create chromem collection: %w", err)
	}
	idx := &ChromemIndex{collection: collection, dim: dim, size: len(chunks)}
	if len(chunks) == 0 {
		return idx, nil
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:        strconv.Itoa(c.ID),
			Content:   c.Text,
			Metadata:  map[string]string{"page": strconv.Itoa(c.Page)},
			Embedding: Normalize(c.Embedding),
		}
	}
	if err := collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("add documents to chromem: %w", err)
	}
	return idx, nil
}

func (idx *ChromemIndex) Len() int { return idx.size }

func (idx *ChromemIndex) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	if idx.size == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != idx.dim {
		return nil, fmt.Errorf("%w: query has dimension %d, index has %d", ErrDimensionMismatch, len(query), idx.dim)
	}
	if k > idx.size {
		k = idx.size
	}

	// fetch the whole collection: chromem's own cutoff leaves ties
	// unspecified, so truncating to k must happen after the sort below.
	// One collection holds one document, full fetch stays cheap.
	hits, err := idx.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: Normalize(query),
		NResults:       idx.size,
	})
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		chunkID, err := strconv.Atoi(h.ID)
		if err != nil {
			return nil, fmt.Errorf("chromem returned malformed chunk id %q", h.ID)
		}
		page, _ := strconv.Atoi(h.Metadata["page"])
		results = append(results, Result{
			ChunkID: chunkID,
			Page:    page,
			Text:    h.Content,
			Score:   h.Similarity,
		})
	}
	sortResults(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}
