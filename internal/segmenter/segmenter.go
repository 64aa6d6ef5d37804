// Package segmenter splits extracted document text into overlapping
// chunks along paragraph and sentence boundaries, tagging each chunk
// with its character span and source page.
package segmenter

import (
	"fmt"
	"strings"

	"docqa/internal/config"
	"docqa/internal/models"
)

type Config struct {
	MaxChunkSize int // max chunk length in characters
	Overlap      int // characters shared between consecutive chunks
}

// Segment chunks text greedily up to cfg.MaxChunkSize, preferring to cut
// at paragraph, then sentence, then word boundaries. Each chunk after the
// first starts cfg.Overlap characters before the previous chunk's end,
// clipped forward to the nearest breakpoint. Chunk spans cover the input
// without gaps, so the original text is reconstructible from them.
// Whitespace-only input produces zero chunks.
func Segment(text string, boundaries []models.PageBoundary, cfg Config) ([]models.Chunk, error) {
	if cfg.MaxChunkSize <= 0 {
		return nil, fmt.Errorf("%w: max chunk size must be positive, got %d", config.ErrConfig, cfg.MaxChunkSize)
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.MaxChunkSize {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, max chunk size)", config.ErrConfig, cfg.Overlap)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	var chunks []models.Chunk
	start := 0
	for start < len(text) {
		end := start + cfg.MaxChunkSize
		if end >= len(text) {
			end = len(text)
		} else {
			end = clipEnd(text, start, end)
		}

		chunks = append(chunks, models.Chunk{
			ID:    len(chunks),
			Page:  majorityPage(boundaries, start, end),
			Start: start,
			End:   end,
			Text:  text[start:end],
		})
		if end == len(text) {
			break
		}
		next := nextStart(text, end, cfg.Overlap)
		if next <= start {
			// overlap close to the chunk size after a heavy clip; force
			// progress over preserving the full overlap
			next = start + 1
		}
		start = next
	}
	return chunks, nil
}

// JoinPages concatenates page texts into a single document string and
// returns the offset of each page start. Pages are normalized to end
// with a newline so page boundaries are also chunk breakpoints.
func JoinPages(pages []models.Page) (string, []models.PageBoundary) {
	var b strings.Builder
	boundaries := make([]models.PageBoundary, 0, len(pages))
	for _, p := range pages {
		boundaries = append(boundaries, models.PageBoundary{Start: b.Len(), Page: p.Number})
		b.WriteString(p.Text)
		if !strings.HasSuffix(p.Text, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String(), boundaries
}

// lookbackFraction bounds how far clipEnd searches for a natural cut.
const lookbackFraction = 5

// clipEnd moves a raw chunk end back to the best breakpoint within the
// lookback window: paragraph break first, then sentence end, then any
// whitespace. Falls back to the raw end (a mid-word split) when the
// window holds no break at all.
func clipEnd(text string, start, rawEnd int) int {
	window := (rawEnd - start) / lookbackFraction
	limit := rawEnd - window
	if limit <= start {
		limit = start + 1
	}

	for i := rawEnd; i > limit; i-- {
		if strings.HasPrefix(text[i-1:], "\n\n") {
			return i
		}
	}
	for i := rawEnd; i > limit; i-- {
		if isSentenceEnd(text, i) {
			return i
		}
	}
	for i := rawEnd; i > limit; i-- {
		if isSpace(text[i-1]) {
			return i
		}
	}
	return rawEnd
}

// nextStart returns where the chunk after one ending at end begins: the
// raw offset end-overlap, clipped forward to the nearest breakpoint that
// does not pass end itself.
func nextStart(text string, end, overlap int) int {
	raw := end - overlap
	if raw < 0 {
		raw = 0
	}
	for i := raw; i < end; i++ {
		if i == 0 || isSpace(text[i-1]) {
			return i
		}
	}
	return raw
}

// isSentenceEnd reports whether position i sits right after a sentence
// terminator followed by whitespace (or at a line break).
func isSentenceEnd(text string, i int) bool {
	if i < 2 || i >= len(text) {
		return false
	}
	if text[i-1] == '\n' {
		return true
	}
	switch text[i-1] {
	case '.', '!', '?':
		return isSpace(text[i])
	}
	return false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// majorityPage attributes a span to the page containing most of its
// characters. With no boundary information every chunk is page 1.
func majorityPage(boundaries []models.PageBoundary, start, end int) int {
	if len(boundaries) == 0 {
		return 1
	}
	bestPage := boundaries[0].Page
	bestCover := -1
	for i, b := range boundaries {
		pageEnd := int(^uint(0) >> 1) // last page extends to the end
		if i+1 < len(boundaries) {
			pageEnd = boundaries[i+1].Start
		}
		cover := overlapLen(start, end, b.Start, pageEnd)
		if cover > bestCover {
			bestCover = cover
			bestPage = b.Page
		}
	}
	return bestPage
}

func overlapLen(aStart, aEnd, bStart, bEnd int) int {
	lo := aStart
	if bStart > lo {
		lo = bStart
	}
	hi := aEnd
	if bEnd < hi {
		hi = bEnd
	}
	if hi < lo {
		return 0
	}
	return hi - lo
}
