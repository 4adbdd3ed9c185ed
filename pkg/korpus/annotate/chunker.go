package annotate

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Chunker wraps an Engine with a character budget. Long documents are split
// on paragraph boundaries -- falling back to sentence boundaries, then to a
// hard cut -- and each chunk is annotated independently. Results concatenate
// in document order. Sentences are not given cross-chunk context; that is
// an accepted approximation, not a defect.
type Chunker struct {
	engine Engine
	budget int
	logger *zap.Logger
}

// NewChunker creates a Chunker. budget is the maximum characters per
// engine call.
func NewChunker(engine Engine, budget int, logger *zap.Logger) *Chunker {
	return &Chunker{engine: engine, budget: budget, logger: logger}
}

// Annotate satisfies Engine. A failed chunk is logged and skipped; the
// document still counts as processed with whatever chunks succeeded.
func (c *Chunker) Annotate(ctx context.Context, text string) ([]Sentence, error) {
	if len(text) <= c.budget {
		return c.engine.Annotate(ctx, text)
	}

	var out []Sentence
	for i, chunk := range Split(text, c.budget) {
		sentences, err := c.engine.Annotate(ctx, chunk)
		if err != nil {
			c.logger.Warn("annotation chunk failed, skipping",
				zap.Int("chunk", i), zap.Int("chars", len(chunk)), zap.Error(err))
			continue
		}
		out = append(out, sentences...)
	}
	return out, nil
}

// Split breaks text into chunks of at most budget bytes, preferring
// paragraph boundaries, then sentence-terminal boundaries inside oversized
// paragraphs. Order is preserved; concatenating the chunks reproduces the
// document's prose order.
func Split(text string, budget int) []string {
	var chunks []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, para := range strings.Split(text, "\n\n") {
		if para == "" {
			continue
		}

		if len(para) > budget {
			// A single paragraph over budget: pack its sentences instead.
			flush()
			for _, piece := range splitSentences(para, budget) {
				if current.Len() > 0 && current.Len()+len(piece)+1 > budget {
					flush()
				}
				if current.Len() > 0 {
					current.WriteByte(' ')
				}
				current.WriteString(piece)
			}
			flush()
			continue
		}

		if current.Len() > 0 && current.Len()+len(para)+2 > budget {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	return chunks
}

// splitSentences cuts a paragraph after sentence-terminal characters. A
// single run longer than the budget (no terminals at all) is hard-cut.
func splitSentences(para string, budget int) []string {
	var pieces []string
	start := 0
	for i := 0; i < len(para); i++ {
		switch para[i] {
		case '.', '!', '?':
			// Cut after the terminal plus any immediately following quote.
			end := i + 1
			for end < len(para) && (para[end] == '"' || para[end] == '\'') {
				end++
			}
			if piece := strings.TrimSpace(para[start:end]); piece != "" {
				pieces = append(pieces, piece)
			}
			start = end
			i = end - 1
		}
	}
	if piece := strings.TrimSpace(para[start:]); piece != "" {
		pieces = append(pieces, piece)
	}

	// Hard-cut any piece that still exceeds the budget. The cut backs off
	// to a rune boundary so no chunk carries a torn UTF-8 sequence.
	var out []string
	for _, piece := range pieces {
		for len(piece) > budget {
			cut := budget
			for cut > 0 && !utf8.RuneStart(piece[cut]) {
				cut--
			}
			if cut == 0 {
				_, cut = utf8.DecodeRuneInString(piece)
			}
			out = append(out, piece[:cut])
			piece = piece[cut:]
		}
		if piece != "" {
			out = append(out, piece)
		}
	}
	return out
}
