// Package cache persists the terminal outcome of every title the pipeline
// has decided, so a restarted run can skip work that is already committed.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
)

// Outcome is the terminal classification of a title. A title has at most
// one outcome; once recorded it never changes within a run lineage.
type Outcome string

const (
	Indexed  Outcome = "indexed"
	Rejected Outcome = "rejected"
	Similar  Outcome = "similar"
	Errored  Outcome = "errored"
)

// Outcomes lists all categories in stable order.
var Outcomes = []Outcome{Indexed, Rejected, Similar, Errored}

// blobVersion is the on-disk schema version. Bump when the layout changes
// and migrate in load().
const blobVersion = 1

type blob struct {
	Version  int      `json:"version"`
	Indexed  []string `json:"indexed"`
	Rejected []string `json:"rejected"`
	Similar  []string `json:"similar"`
	Errored  []string `json:"errored"`
}

// Cache maps titles to outcomes and checkpoints to a single JSON file.
// It is not safe for concurrent use; the orchestrator goroutine owns it.
type Cache struct {
	path    string
	entries map[string]Outcome
	logger  *zap.Logger
}

// Load reads the cache file at path. A missing, unreadable or unparseable
// file degrades to an empty cache with a warning -- corruption costs redone
// work, never a failed startup.
func Load(path string, logger *zap.Logger) *Cache {
	c := &Cache{
		path:    path,
		entries: make(map[string]Outcome),
		logger:  logger,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("cache unreadable, starting fresh",
				zap.String("path", path), zap.Error(err))
		}
		return c
	}

	var b blob
	if err := json.Unmarshal(data, &b); err != nil {
		logger.Warn("cache corrupted, starting fresh",
			zap.String("path", path), zap.Error(err))
		return c
	}
	if b.Version != blobVersion {
		logger.Warn("cache schema version mismatch, starting fresh",
			zap.Int("got", b.Version), zap.Int("want", blobVersion))
		return c
	}

	for outcome, titles := range map[Outcome][]string{
		Indexed: b.Indexed, Rejected: b.Rejected, Similar: b.Similar, Errored: b.Errored,
	} {
		for _, title := range titles {
			c.entries[title] = outcome
		}
	}

	logger.Info("cache loaded",
		zap.String("path", path), zap.Int("titles", len(c.entries)))
	return c
}

// Lookup returns the recorded outcome for a title, if any.
func (c *Cache) Lookup(title string) (Outcome, bool) {
	o, ok := c.entries[title]
	return o, ok
}

// Record stores a terminal outcome for a title. Recording a title twice is
// a no-op warning: categories are mutually exclusive and terminal.
func (c *Cache) Record(title string, outcome Outcome) {
	if prev, ok := c.entries[title]; ok {
		c.logger.Warn("title already recorded, keeping first outcome",
			zap.String("title", title),
			zap.String("existing", string(prev)),
			zap.String("ignored", string(outcome)))
		return
	}
	c.entries[title] = outcome
}

// Checkpoint atomically replaces the cache file: write to a temp file in
// the same directory, then rename over the target. A kill mid-write leaves
// the previous checkpoint intact.
func (c *Cache) Checkpoint() error {
	b := blob{Version: blobVersion}
	for title, outcome := range c.entries {
		switch outcome {
		case Indexed:
			b.Indexed = append(b.Indexed, title)
		case Rejected:
			b.Rejected = append(b.Rejected, title)
		case Similar:
			b.Similar = append(b.Similar, title)
		case Errored:
			b.Errored = append(b.Errored, title)
		}
	}
	sort.Strings(b.Indexed)
	sort.Strings(b.Rejected)
	sort.Strings(b.Similar)
	sort.Strings(b.Errored)

	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".cache-*")
	if err != nil {
		return fmt.Errorf("checkpoint cache: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("checkpoint cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("checkpoint cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("checkpoint cache: %w", err)
	}
	return nil
}

// Clear removes the cache file and empties the in-memory state.
func (c *Cache) Clear() error {
	c.entries = make(map[string]Outcome)
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// Len returns the number of decided titles.
func (c *Cache) Len() int { return len(c.entries) }

// Counts returns the per-outcome sizes for the run summary.
func (c *Cache) Counts() map[Outcome]int {
	counts := make(map[Outcome]int, len(Outcomes))
	for _, o := range Outcomes {
		counts[o] = 0
	}
	for _, o := range c.entries {
		counts[o]++
	}
	return counts
}
