// Package synth produces a natural-language answer grounded in
// retrieved passages, through an external chat model behind the
// Generator interface.
package synth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"docqa/internal/config"
	"docqa/internal/models"
)

// ErrSynthesis marks a generator failure or malformed output.
var ErrSynthesis = errors.New("answer synthesis failed")

// Generation is the parsed output of one generator call.
type Generation struct {
	Answer   string
	CitedIDs []int
}

// Generator answers a question using only the supplied passages.
type Generator interface {
	Generate(ctx context.Context, question string, passages []models.RetrievedPassage) (Generation, error)
}

type llmGenerator struct {
	model llms.Model
	name  string
}

// NewLLM builds a Generator for the configured chat provider.
func NewLLM(cfg *config.LLMConfig) (Generator, error) {
	var (
		model llms.Model
		err   error
	)
	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.InferenceModel),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.InferenceModel)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		model, err = ollama.New(opts...)
	default:
		return nil, fmt.Errorf("%w: unknown llm provider %q", config.ErrConfig, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init chat model: %w", err)
	}
	return &llmGenerator{model: model, name: cfg.InferenceModel}, nil
}

func (g *llmGenerator) Generate(ctx context.Context, question string, passages []models.RetrievedPassage) (Generation, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, models.AnswerSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, BuildPrompt(question, passages)),
	}
	resp, err := g.model.GenerateContent(ctx, messages)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Generation{}, fmt.Errorf("%w: generator timed out: %v", ErrSynthesis, err)
		}
		return Generation{}, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	if len(resp.Choices) == 0 {
		return Generation{}, fmt.Errorf("%w: empty response from %s", ErrSynthesis, g.name)
	}
	answer := strings.TrimSpace(resp.Choices[0].Content)
	if answer == "" {
		return Generation{}, fmt.Errorf("%w: blank answer from %s", ErrSynthesis, g.name)
	}
	return Generation{Answer: answer, CitedIDs: ParseCitations(answer)}, nil
}

// BuildPrompt renders the passages as numbered blocks in retrieval
// order, followed by the question. The output is deterministic for a
// given input, so an answer can be reproduced from its turn record.
func BuildPrompt(question string, passages []models.RetrievedPassage) string {
	var ctxBlock strings.Builder
	for _, p := range passages {
		fmt.Fprintf(&ctxBlock, "[%d] (page %d)\n%s\n---\n", p.ChunkID, p.Page, p.Text)
	}
	return fmt.Sprintf(models.AnswerPromptTemplate, ctxBlock.String(), question)
}

var citationRe = regexp.MustCompile(`\[(\d+)\]`)

// ParseCitations extracts the bracketed passage ids from an answer, in
// first-appearance order without duplicates.
func ParseCitations(answer string) []int {
	var ids []int
	seen := map[int]bool{}
	for _, m := range citationRe.FindAllStringSubmatch(answer, -1) {
		id, err := strconv.Atoi(m[1])
		if err != nil || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}
