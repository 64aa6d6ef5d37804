// Package session holds the process-wide state of the question-answering
// pipeline: at most one active document and its vector index. It is the
// only place the pipeline's state machine lives.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"docqa/internal/config"
	"docqa/internal/embedding"
	"docqa/internal/models"
	"docqa/internal/retriever"
	"docqa/internal/segmenter"
	"docqa/internal/synth"
	"docqa/internal/vectorindex"
)

var (
	// ErrNoDocument marks an Ask against an empty session.
	ErrNoDocument = errors.New("no document loaded")
	// ErrEmptyQuestion marks an Ask with a blank question.
	ErrEmptyQuestion = errors.New("question is empty")
)

// State is the session lifecycle state.
type State int

const (
	StateEmpty State = iota
	StateIndexed
)

func (s State) String() string {
	if s == StateIndexed {
		return "indexed"
	}
	return "empty"
}

// Document is the active document's identity and chunks.
type Document struct {
	ID       string
	Filename string
	Pages    int
	Chunks   []models.Chunk
}

// UploadInput is the extracted form of an uploaded document.
type UploadInput struct {
	Filename string
	Pages    []models.Page
}

// Session transitions between empty and indexed. Upload and Reset are
// mutually exclusive with each other and with Ask; concurrent Asks
// share a read lock and always observe a fully built index. A Reset
// issued during an in-flight Ask blocks until the Ask finishes.
type Session struct {
	mu    sync.RWMutex
	state State
	doc   *Document
	index vectorindex.Index

	turnsMu sync.Mutex
	turns   []models.ConversationTurn

	gateway embedding.Gateway
	gen     synth.Generator
	cfg     *config.Config
}

func New(gateway embedding.Gateway, gen synth.Generator, cfg *config.Config) *Session {
	return &Session{gateway: gateway, gen: gen, cfg: cfg}
}

// Upload replaces the active document. The previous document is torn
// down first; segmentation, embedding and index build must all succeed
// before the session becomes indexed again, so a failure mid-way leaves
// it empty rather than half-built.
func (s *Session) Upload(ctx context.Context, in UploadInput) (models.UploadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()

	text, boundaries := segmenter.JoinPages(in.Pages)
	chunks, err := segmenter.Segment(text, boundaries, segmenter.Config{
		MaxChunkSize: s.cfg.RAG.ChunkSize,
		Overlap:      s.cfg.RAG.ChunkOverlap,
	})
	if err != nil {
		return models.UploadResult{}, fmt.Errorf("segment document: %w", err)
	}

	embedded, err := embedding.BatchChunks(ctx, s.gateway, chunks,
		s.cfg.RAG.EmbedConcurrency, s.embedTimeout())
	if err != nil {
		return models.UploadResult{}, fmt.Errorf("embed document: %w", err)
	}

	index, err := s.buildIndex(ctx, embedded)
	if err != nil {
		return models.UploadResult{}, fmt.Errorf("build index: %w", err)
	}

	s.doc = &Document{
		ID:       uuid.NewString(),
		Filename: in.Filename,
		Pages:    len(in.Pages),
		Chunks:   embedded,
	}
	s.index = index
	s.state = StateIndexed

	log.Info().
		Str("filename", in.Filename).
		Int("pages", len(in.Pages)).
		Int("chunks", len(embedded)).
		Str("backend", s.cfg.Index.Backend).
		Msg("document indexed")
	return models.UploadResult{
		Filename: in.Filename,
		Pages:    len(in.Pages),
		Chunks:   len(embedded),
	}, nil
}

// Ask retrieves passages for the question and synthesizes an answer
// grounded in them. It never mutates the document state. When no
// passage clears the score floor the fixed insufficient-context answer
// is returned and the generator is not invoked.
func (s *Session) Ask(ctx context.Context, question string) (models.AskResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return models.AskResult{}, ErrEmptyQuestion
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateIndexed {
		return models.AskResult{}, ErrNoDocument
	}

	r := retriever.New(s.gateway, s.index, retriever.Config{
		TopK:         s.cfg.RAG.TopK,
		MinScore:     s.cfg.RAG.MinScore,
		EmbedTimeout: s.embedTimeout(),
	})
	passages, err := r.Retrieve(ctx, question)
	if err != nil {
		return models.AskResult{}, fmt.Errorf("retrieve passages: %w", err)
	}

	if len(passages) == 0 {
		s.recordTurn(question, nil, models.InsufficientContextAnswer)
		return models.AskResult{
			Answer:  models.InsufficientContextAnswer,
			Sources: []models.Source{},
		}, nil
	}

	genCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.LLM.GenerateTimeoutSecs)*time.Second)
	defer cancel()
	gen, err := s.gen.Generate(genCtx, question, passages)
	if err != nil {
		return models.AskResult{}, fmt.Errorf("synthesize answer: %w", err)
	}

	cited := validateCitations(gen.CitedIDs, passages)
	sources := make([]models.Source, 0, len(cited))
	for _, p := range cited {
		sources = append(sources, models.Source{Page: p.Page, Content: p.Text})
	}

	s.recordTurn(question, passages, gen.Answer)
	return models.AskResult{Answer: gen.Answer, Sources: sources}, nil
}

// Reset clears the document, index and conversation turns. Resetting an
// empty session is a no-op success.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	log.Debug().Msg("session reset")
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// ActiveDocument returns the filename of the active document, if any.
func (s *Session) ActiveDocument() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateIndexed {
		return "", false
	}
	return s.doc.Filename, true
}

// Turns returns a copy of the recorded conversation turns.
func (s *Session) Turns() []models.ConversationTurn {
	s.turnsMu.Lock()
	defer s.turnsMu.Unlock()
	out := make([]models.ConversationTurn, len(s.turns))
	copy(out, s.turns)
	return out
}

func (s *Session) clearLocked() {
	s.doc = nil
	s.index = nil
	s.state = StateEmpty

	s.turnsMu.Lock()
	s.turns = nil
	s.turnsMu.Unlock()
}

func (s *Session) buildIndex(ctx context.Context, chunks []models.Chunk) (vectorindex.Index, error) {
	opts := vectorindex.Options{AllowEmpty: true}
	if s.cfg.Index.Backend == "chromem" {
		return vectorindex.BuildChromem(ctx, chunks, opts)
	}
	return vectorindex.Build(chunks, opts)
}

func (s *Session) embedTimeout() time.Duration {
	return time.Duration(s.cfg.LLM.EmbedTimeoutSecs) * time.Second
}

func (s *Session) recordTurn(question string, passages []models.RetrievedPassage, answer string) {
	s.turnsMu.Lock()
	defer s.turnsMu.Unlock()
	s.turns = append(s.turns, models.ConversationTurn{
		Question: question,
		Passages: passages,
		Answer:   answer,
		AskedAt:  time.Now(),
	})
}

// validateCitations keeps only cited ids that refer to supplied
// passages, in retrieval order. A generator citing nothing valid falls
// back to all retrieved passages, so answers always carry grounding.
func validateCitations(citedIDs []int, passages []models.RetrievedPassage) []models.RetrievedPassage {
	supplied := make(map[int]bool, len(passages))
	for _, p := range passages {
		supplied[p.ChunkID] = true
	}
	valid := make(map[int]bool, len(citedIDs))
	for _, id := range citedIDs {
		if supplied[id] {
			valid[id] = true
		} else {
			log.Warn().Int("chunk_id", id).Msg("generator cited an unknown passage, dropping")
		}
	}
	if len(valid) == 0 {
		return passages
	}
	cited := make([]models.RetrievedPassage, 0, len(valid))
	for _, p := range passages {
		if valid[p.ChunkID] {
			cited = append(cited, p)
		}
	}
	return cited
}
