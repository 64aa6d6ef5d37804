package models

import "time"

// Page is one page of extracted document text, in document order.
type Page struct {
	Number int
	Text   string
}

// PageBoundary maps a character offset in the joined document text to the
// page starting at that offset.
type PageBoundary struct {
	Start int
	Page  int
}

// Chunk is a bounded, overlapping segment of document text, the unit of
// embedding and retrieval. ID is the insertion order within the document.
type Chunk struct {
	ID        int
	Page      int
	Start     int
	End       int
	Text      string
	Embedding []float32
}

// RetrievedPassage is a query-scoped view of a chunk with its similarity
// score. It is never persisted.
type RetrievedPassage struct {
	ChunkID int
	Page    int
	Text    string
	Score   float32
}

// ConversationTurn records one question, the passages retrieved for it,
// and the synthesized answer. Turns do not influence later retrieval.
type ConversationTurn struct {
	Question string
	Passages []RetrievedPassage
	Answer   string
	AskedAt  time.Time
}

// UploadResult is returned to the caller after a successful upload.
type UploadResult struct {
	Filename string `json:"filename"`
	Pages    int    `json:"pages"`
	Chunks   int    `json:"chunks"`
}

// Source is one cited passage in an answer.
type Source struct {
	Page    int    `json:"page"`
	Content string `json:"content"`
}

// AskResult is the answer to a question plus the passages that ground it.
type AskResult struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}
