// Package annotate defines the linguistic annotation contract and the
// chunking adapter that keeps requests within the engine's input budget.
package annotate

import (
	"context"
	"strings"
)

// Token is one annotated token as produced by the external engine. The
// pipeline passes these fields through opaquely; head references id within
// the same sentence and is trusted, not validated.
type Token struct {
	ID        int    `json:"id"`
	Text      string `json:"text"`
	Lemma     string `json:"lemma"`
	UPOS      string `json:"upos"`
	XPOS      string `json:"xpos"`
	Feats     string `json:"feats"`
	Head      int    `json:"head"`
	Deprel    string `json:"deprel"`
	StartChar int    `json:"start_char"`
	EndChar   int    `json:"end_char"`
}

// Sentence is an ordered token sequence.
type Sentence []Token

// Text reconstructs the sentence surface form by joining token texts.
func (s Sentence) Text() string {
	parts := make([]string, len(s))
	for i, tok := range s {
		parts[i] = tok.Text
	}
	return strings.Join(parts, " ")
}

// Engine annotates bounded-length plain text into ordered sentences of
// ordered tokens. Implementations may reject malformed input with an error.
type Engine interface {
	Annotate(ctx context.Context, text string) ([]Sentence, error)
}
