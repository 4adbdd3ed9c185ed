// Package memindex is an in-memory implementation of index.Index for tests.
package memindex

import (
	"context"
	"sync"

	"github.com/cognicore/korpus/pkg/korpus/index"
)

// Index stores documents in a map. It can be told to fail individual
// document ids or to refuse whole bulk calls, to exercise partial and
// total commit failure paths.
type Index struct {
	mu   sync.RWMutex
	docs map[string]index.SentenceDocument

	// FailIDs lists document ids that every BulkUpsert reports as failed.
	FailIDs map[string]string
	// BulkErr, when set, makes BulkUpsert fail as a whole.
	BulkErr error
	// PingErr, when set, is returned by Ping.
	PingErr error

	bulkCalls int
}

// New creates an empty in-memory index.
func New() *Index {
	return &Index{
		docs:    make(map[string]index.SentenceDocument),
		FailIDs: make(map[string]string),
	}
}

func (m *Index) Close() error { return nil }

func (m *Index) Ping(ctx context.Context) error { return m.PingErr }

func (m *Index) EnsureIndex(ctx context.Context) error { return nil }

func (m *Index) DeleteIndex(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = make(map[string]index.SentenceDocument)
	return nil
}

func (m *Index) Count(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.docs)), nil
}

func (m *Index) BulkUpsert(ctx context.Context, docs []index.SentenceDocument) (index.BulkResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.bulkCalls++
	if m.BulkErr != nil {
		return index.BulkResult{}, m.BulkErr
	}

	var result index.BulkResult
	for _, doc := range docs {
		if reason, ok := m.FailIDs[doc.ID]; ok {
			result.Failed = append(result.Failed, index.ItemError{ID: doc.ID, Reason: reason})
			continue
		}
		m.docs[doc.ID] = doc
		result.Indexed++
	}
	return result, nil
}

func (m *Index) Titles(ctx context.Context) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	titles := make(map[string]struct{}, len(m.docs))
	for _, doc := range m.docs {
		titles[doc.Title] = struct{}{}
	}
	return titles, nil
}

// Doc returns the stored document for id, if any.
func (m *Index) Doc(id string) (index.SentenceDocument, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	return doc, ok
}

// BulkCalls reports how many BulkUpsert calls were made.
func (m *Index) BulkCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bulkCalls
}
