// Package sqlite is a file-backed implementation of the index contract,
// for offline runs and tests where no search cluster is available.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/cognicore/korpus/pkg/korpus/annotate"
	"github.com/cognicore/korpus/pkg/korpus/index"
)

type sqliteIndex struct {
	db *sql.DB
}

// Open opens (or creates) the sentence index at path with WAL mode enabled.
func Open(ctx context.Context, path string) (index.Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteIndex{db: db}, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS sentences (
	sentence_id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	sentence_index INTEGER NOT NULL,
	sentence_text TEXT NOT NULL,
	tokens TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sentences_title ON sentences(title);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

func (s *sqliteIndex) Close() error { return s.db.Close() }

func (s *sqliteIndex) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureIndex is satisfied by the schema created at Open.
func (s *sqliteIndex) EnsureIndex(ctx context.Context) error {
	return initSchema(ctx, s.db)
}

func (s *sqliteIndex) DeleteIndex(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sentences"); err != nil {
		return fmt.Errorf("delete index: %w", err)
	}
	return nil
}

func (s *sqliteIndex) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sentences").Scan(&n)
	return n, err
}

// BulkUpsert writes the batch in one transaction. A document the database
// rejects is reported as a per-item failure; the rest of the batch still
// commits.
func (s *sqliteIndex) BulkUpsert(ctx context.Context, docs []index.SentenceDocument) (index.BulkResult, error) {
	if len(docs) == 0 {
		return index.BulkResult{}, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return index.BulkResult{}, fmt.Errorf("bulk upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO sentences (sentence_id, title, sentence_index, sentence_text, tokens)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(sentence_id) DO UPDATE SET
	title = excluded.title,
	sentence_index = excluded.sentence_index,
	sentence_text = excluded.sentence_text,
	tokens = excluded.tokens`)
	if err != nil {
		return index.BulkResult{}, fmt.Errorf("bulk upsert: %w", err)
	}
	defer stmt.Close()

	var result index.BulkResult
	for _, doc := range docs {
		tokens, err := json.Marshal(doc.Tokens)
		if err != nil {
			result.Failed = append(result.Failed, index.ItemError{ID: doc.ID, Reason: err.Error()})
			continue
		}
		if _, err := stmt.ExecContext(ctx, doc.ID, doc.Title, doc.SentenceIndex, doc.Text, string(tokens)); err != nil {
			result.Failed = append(result.Failed, index.ItemError{ID: doc.ID, Reason: err.Error()})
			continue
		}
		result.Indexed++
	}

	if err := tx.Commit(); err != nil {
		return index.BulkResult{}, fmt.Errorf("bulk upsert commit: %w", err)
	}
	return result, nil
}

func (s *sqliteIndex) Titles(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT title FROM sentences")
	if err != nil {
		return nil, fmt.Errorf("title export: %w", err)
	}
	defer rows.Close()

	titles := make(map[string]struct{})
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("title export: %w", err)
		}
		titles[title] = struct{}{}
	}
	return titles, rows.Err()
}

// Sentences returns all documents for a title ordered by sentence index.
// Mainly for tests and local inspection.
func (s *sqliteIndex) Sentences(ctx context.Context, title string) ([]index.SentenceDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT sentence_id, title, sentence_index, sentence_text, tokens
FROM sentences WHERE title = ? ORDER BY sentence_index`, title)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []index.SentenceDocument
	for rows.Next() {
		var doc index.SentenceDocument
		var tokens string
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.SentenceIndex, &doc.Text, &tokens); err != nil {
			return nil, err
		}
		var sent annotate.Sentence
		if err := json.Unmarshal([]byte(tokens), &sent); err != nil {
			return nil, err
		}
		doc.Tokens = sent
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}
