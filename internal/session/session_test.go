package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"docqa/internal/config"
	"docqa/internal/embedding"
	"docqa/internal/models"
	"docqa/internal/synth"
)

// keywordGateway embeds by topic keyword so retrieval is predictable:
// cat texts and dog texts are orthogonal, anything else scores zero.
type keywordGateway struct {
	mu     sync.Mutex
	calls  int
	failOn string
}

func (g *keywordGateway) Embed(ctx context.Context, text string) ([]float32, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.failOn != "" && strings.Contains(strings.ToLower(text), g.failOn) {
		return nil, fmt.Errorf("%w: provider unavailable", embedding.ErrEmbedding)
	}
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "cat"):
		return []float32{1, 0}, nil
	case strings.Contains(t, "dog"):
		return []float32{0, 1}, nil
	default:
		return []float32{0, 0}, nil
	}
}

func (g *keywordGateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := g.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

type fakeGenerator struct {
	mu       sync.Mutex
	answer   string
	cite     []int
	err      error
	calls    int
	received []models.RetrievedPassage
}

func (g *fakeGenerator) Generate(ctx context.Context, question string, passages []models.RetrievedPassage) (synth.Generation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.received = passages
	if g.err != nil {
		return synth.Generation{}, g.err
	}
	return synth.Generation{Answer: g.answer, CitedIDs: g.cite}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		RAG: config.RAGConfig{
			ChunkSize:        200,
			ChunkOverlap:     20,
			TopK:             3,
			MinScore:         0.3,
			EmbedConcurrency: 2,
		},
		LLM:   config.LLMConfig{Provider: "openai", EmbedTimeoutSecs: 5, GenerateTimeoutSecs: 5},
		Index: config.IndexConfig{Backend: "memory"},
	}
}

func catDogPages() []models.Page {
	return []models.Page{
		{Number: 1, Text: "Cats are small domestic felines. A cat sleeps most of the day.\n"},
		{Number: 2, Text: "Dogs are loyal companions. A dog needs daily walks.\n"},
		{Number: 3, Text: "Cats and cats again: a second cat page for good measure.\n"},
	}
}

func newTestSession(gw embedding.Gateway, gen synth.Generator) *Session {
	return New(gw, gen, testConfig())
}

func TestAsk_NoDocument(t *testing.T) {
	gw := &keywordGateway{}
	s := newTestSession(gw, &fakeGenerator{answer: "never"})

	_, err := s.Ask(context.Background(), "What is a cat?")
	require.ErrorIs(t, err, ErrNoDocument)
	require.Equal(t, 0, gw.calls, "no gateway or index access before a document exists")
	require.Equal(t, StateEmpty, s.State())
}

func TestAsk_EmptyQuestion(t *testing.T) {
	s := newTestSession(&keywordGateway{}, &fakeGenerator{})
	_, err := s.Ask(context.Background(), "   ")
	require.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestUpload_TransitionsToIndexed(t *testing.T) {
	s := newTestSession(&keywordGateway{}, &fakeGenerator{answer: "ok"})

	res, err := s.Upload(context.Background(), UploadInput{Filename: "pets.pdf", Pages: catDogPages()})
	require.NoError(t, err)
	require.Equal(t, 3, res.Pages)
	require.Greater(t, res.Chunks, 0)
	require.Equal(t, "pets.pdf", res.Filename)
	require.Equal(t, StateIndexed, s.State())

	name, ok := s.ActiveDocument()
	require.True(t, ok)
	require.Equal(t, "pets.pdf", name)
}

func TestUpload_ZeroChunksIsSuccess(t *testing.T) {
	s := newTestSession(&keywordGateway{}, &fakeGenerator{})

	res, err := s.Upload(context.Background(), UploadInput{
		Filename: "blank.txt",
		Pages:    []models.Page{{Number: 1, Text: "   \n"}},
	})
	require.NoError(t, err, "an empty document is a valid upload, not an error")
	require.Equal(t, 1, res.Pages)
	require.Equal(t, 0, res.Chunks)
	require.Equal(t, StateIndexed, s.State())

	ask, err := s.Ask(context.Background(), "anything about cats?")
	require.NoError(t, err)
	require.Equal(t, models.InsufficientContextAnswer, ask.Answer)
	require.Empty(t, ask.Sources)
}

func TestUpload_FailureLeavesSessionEmpty(t *testing.T) {
	gw := &keywordGateway{failOn: "dog"}
	s := newTestSession(gw, &fakeGenerator{})

	_, err := s.Upload(context.Background(), UploadInput{Filename: "pets.pdf", Pages: catDogPages()})
	require.ErrorIs(t, err, embedding.ErrEmbedding)
	require.Equal(t, StateEmpty, s.State())

	_, err = s.Ask(context.Background(), "What is a cat?")
	require.ErrorIs(t, err, ErrNoDocument)
}

func TestAsk_ReturnsGroundedAnswer(t *testing.T) {
	gen := &fakeGenerator{answer: "Cats sleep most of the day [0]."}
	s := newTestSession(&keywordGateway{}, gen)

	_, err := s.Upload(context.Background(), UploadInput{Filename: "pets.pdf", Pages: catDogPages()})
	require.NoError(t, err)

	res, err := s.Ask(context.Background(), "What does a cat do all day?")
	require.NoError(t, err)
	require.Equal(t, gen.answer, res.Answer)
	require.Equal(t, 1, gen.calls)
	require.NotEmpty(t, gen.received, "generator must receive the retrieved passages")
	require.NotEmpty(t, res.Sources)
	for _, src := range res.Sources {
		require.Contains(t, strings.ToLower(src.Content), "cat")
	}
}

func TestAsk_InsufficientContextSkipsGenerator(t *testing.T) {
	gen := &fakeGenerator{answer: "should never be used"}
	s := newTestSession(&keywordGateway{}, gen)

	_, err := s.Upload(context.Background(), UploadInput{Filename: "pets.pdf", Pages: catDogPages()})
	require.NoError(t, err)

	// "zebra" embeds to the zero vector, every score is below the floor
	res, err := s.Ask(context.Background(), "Tell me about zebras")
	require.NoError(t, err)
	require.Equal(t, models.InsufficientContextAnswer, res.Answer)
	require.Empty(t, res.Sources)
	require.Equal(t, 0, gen.calls)
}

func TestAsk_DropsUnknownCitations(t *testing.T) {
	gen := &fakeGenerator{answer: "Cats sleep a lot [0] [99]."}
	s := newTestSession(&keywordGateway{}, gen)

	_, err := s.Upload(context.Background(), UploadInput{Filename: "pets.pdf", Pages: catDogPages()})
	require.NoError(t, err)

	res, err := s.Ask(context.Background(), "What does a cat do?")
	require.NoError(t, err)
	require.Len(t, res.Sources, 1, "the fabricated citation [99] must be dropped")
}

func TestAsk_NoCitationsFallsBackToAllPassages(t *testing.T) {
	gen := &fakeGenerator{answer: "Cats sleep a lot."}
	s := newTestSession(&keywordGateway{}, gen)

	_, err := s.Upload(context.Background(), UploadInput{Filename: "pets.pdf", Pages: catDogPages()})
	require.NoError(t, err)

	res, err := s.Ask(context.Background(), "What does a cat do?")
	require.NoError(t, err)
	require.Len(t, res.Sources, len(gen.received))
}

func TestAsk_GeneratorFailure(t *testing.T) {
	gen := &fakeGenerator{err: fmt.Errorf("%w: model exploded", synth.ErrSynthesis)}
	s := newTestSession(&keywordGateway{}, gen)

	_, err := s.Upload(context.Background(), UploadInput{Filename: "pets.pdf", Pages: catDogPages()})
	require.NoError(t, err)

	_, err = s.Ask(context.Background(), "What does a cat do?")
	require.ErrorIs(t, err, synth.ErrSynthesis)
	require.Equal(t, StateIndexed, s.State(), "a failed ask must not change session state")
}

func TestReset_Idempotent(t *testing.T) {
	s := newTestSession(&keywordGateway{}, &fakeGenerator{answer: "ok"})

	_, err := s.Upload(context.Background(), UploadInput{Filename: "pets.pdf", Pages: catDogPages()})
	require.NoError(t, err)
	require.Equal(t, StateIndexed, s.State())

	s.Reset()
	require.Equal(t, StateEmpty, s.State())
	s.Reset() // second reset is a no-op success
	require.Equal(t, StateEmpty, s.State())

	_, err = s.Ask(context.Background(), "What is a cat?")
	require.ErrorIs(t, err, ErrNoDocument)
}

func TestReupload_ReplacesDocumentCompletely(t *testing.T) {
	gen := &fakeGenerator{answer: "Dogs need walks."}
	s := newTestSession(&keywordGateway{}, gen)

	_, err := s.Upload(context.Background(), UploadInput{Filename: "cats.txt", Pages: []models.Page{
		{Number: 1, Text: "Cats are felines. Cats purr. Cats nap in the sun all afternoon.\n"},
	}})
	require.NoError(t, err)

	_, err = s.Upload(context.Background(), UploadInput{Filename: "dogs.txt", Pages: []models.Page{
		{Number: 1, Text: "Dogs are canines. Dogs bark. Dogs fetch sticks in the park.\n"},
	}})
	require.NoError(t, err)

	name, _ := s.ActiveDocument()
	require.Equal(t, "dogs.txt", name)

	res, err := s.Ask(context.Background(), "Tell me about dogs")
	require.NoError(t, err)
	for _, src := range res.Sources {
		require.NotContains(t, strings.ToLower(src.Content), "cat",
			"passages from the replaced document must be gone")
	}

	// the old document's topic no longer matches anything
	res, err = s.Ask(context.Background(), "Tell me about cats")
	require.NoError(t, err)
	require.Equal(t, models.InsufficientContextAnswer, res.Answer)
}

func TestTurns_RecordedAndClearedOnReset(t *testing.T) {
	s := newTestSession(&keywordGateway{}, &fakeGenerator{answer: "answer"})

	_, err := s.Upload(context.Background(), UploadInput{Filename: "pets.pdf", Pages: catDogPages()})
	require.NoError(t, err)

	_, err = s.Ask(context.Background(), "first cat question")
	require.NoError(t, err)
	_, err = s.Ask(context.Background(), "second cat question")
	require.NoError(t, err)

	turns := s.Turns()
	require.Len(t, turns, 2)
	require.Equal(t, "first cat question", turns[0].Question)

	s.Reset()
	require.Empty(t, s.Turns())
}

func TestConcurrentAsksDuringUploadAndReset(t *testing.T) {
	gen := &fakeGenerator{answer: "Cats sleep most of the day [0]."}
	s := newTestSession(&keywordGateway{}, gen)

	_, err := s.Upload(context.Background(), UploadInput{Filename: "pets.pdf", Pages: catDogPages()})
	require.NoError(t, err)

	// every Ask must see either no document at all or a fully built
	// index: a grounded answer or the insufficient-context fallback,
	// never a partial state
	const askers = 4
	stop := make(chan struct{})
	errCh := make(chan error, 128)
	var wg sync.WaitGroup
	for i := 0; i < askers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				res, err := s.Ask(context.Background(), "What does a cat do all day?")
				switch {
				case err == nil:
					if res.Answer != gen.answer && res.Answer != models.InsufficientContextAnswer {
						select {
						case errCh <- fmt.Errorf("unexpected answer %q", res.Answer):
						default:
						}
					}
				case errors.Is(err, ErrNoDocument):
				default:
					select {
					case errCh <- fmt.Errorf("unexpected ask error: %w", err):
					default:
					}
				}
			}
		}()
	}

	for i := 0; i < 20; i++ {
		_, err := s.Upload(context.Background(), UploadInput{Filename: "pets.pdf", Pages: catDogPages()})
		require.NoError(t, err)
		s.Reset()
	}
	close(stop)
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}
	require.Equal(t, StateEmpty, s.State())
}

func TestUpload_ChromemBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Index.Backend = "chromem"
	gen := &fakeGenerator{answer: "Cats purr [0]."}
	s := New(&keywordGateway{}, gen, cfg)

	_, err := s.Upload(context.Background(), UploadInput{Filename: "cats.txt", Pages: []models.Page{
		{Number: 1, Text: "Cats are felines. Cats purr when content.\n"},
		{Number: 2, Text: "Dogs are canines. Dogs bark at strangers.\n"},
	}})
	require.NoError(t, err)
	require.Equal(t, StateIndexed, s.State())

	res, err := s.Ask(context.Background(), "Why do cats purr?")
	require.NoError(t, err)
	require.Equal(t, gen.answer, res.Answer)
	require.NotEmpty(t, res.Sources)
}
