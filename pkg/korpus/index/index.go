// Package index defines the sentence-index write contract. The pipeline
// only ever creates-or-overwrites documents under deterministic ids, so
// resubmitting after a partial failure is always safe.
package index

import (
	"context"
	"fmt"

	"github.com/cognicore/korpus/pkg/korpus/annotate"
)

// SentenceDocument is the unit persisted to the sink: one quality sentence
// of one article, with its annotation payload.
type SentenceDocument struct {
	ID            string            `json:"sentence_id"`
	Title         string            `json:"title"`
	SentenceIndex int               `json:"-"`
	Text          string            `json:"sentence_text"`
	Tokens        annotate.Sentence `json:"tokens"`
}

// DocID derives the deterministic document id for a title and sentence
// position. Re-indexing the same pair overwrites rather than duplicates.
func DocID(title string, sentenceIndex int) string {
	return fmt.Sprintf("%s_%04d", title, sentenceIndex)
}

// NewSentenceDocument assembles a document with its deterministic id.
func NewSentenceDocument(title string, sentenceIndex int, sentence annotate.Sentence) SentenceDocument {
	return SentenceDocument{
		ID:            DocID(title, sentenceIndex),
		Title:         title,
		SentenceIndex: sentenceIndex,
		Text:          sentence.Text(),
		Tokens:        sentence,
	}
}

// ItemError describes one document the sink rejected during a bulk commit.
type ItemError struct {
	ID     string
	Reason string
}

// BulkResult is the per-item outcome of one bulk commit. Items without an
// explicit failure are successes.
type BulkResult struct {
	Indexed int
	Failed  []ItemError
}

// FailedIDs returns just the ids of the failed items.
func (r BulkResult) FailedIDs() []string {
	ids := make([]string, len(r.Failed))
	for i, f := range r.Failed {
		ids[i] = f.ID
	}
	return ids
}

// Index is the destination sentence index. Implementations must give
// BulkUpsert upsert semantics keyed on SentenceDocument.ID and must report
// per-item failures without aborting the batch. Retry policy belongs to
// the caller, not here.
type Index interface {
	// Ping verifies the sink is reachable. Used at startup; failure there
	// is fatal to the run.
	Ping(ctx context.Context) error

	// EnsureIndex creates the destination collection if absent, never
	// touching existing data.
	EnsureIndex(ctx context.Context) error

	// DeleteIndex drops the collection and its data. Only the
	// force-recreate path calls this.
	DeleteIndex(ctx context.Context) error

	// Count returns the number of stored sentence documents.
	Count(ctx context.Context) (int64, error)

	// BulkUpsert writes the batch in one call and reports per-item
	// results. The returned error covers whole-call failures only.
	BulkUpsert(ctx context.Context, docs []SentenceDocument) (BulkResult, error)

	// Titles exports the distinct article titles currently present, used
	// once at startup as the dedup snapshot.
	Titles(ctx context.Context) (map[string]struct{}, error)

	Close() error
}
