package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func tempCachePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "titles.json")
}

func TestRecordAndLookup(t *testing.T) {
	c := Load(tempCachePath(t), zap.NewNop())

	c.Record("Berlin", Indexed)
	c.Record("Hamburg", Rejected)

	if o, ok := c.Lookup("Berlin"); !ok || o != Indexed {
		t.Errorf("Lookup(Berlin) = %v, %v", o, ok)
	}
	if _, ok := c.Lookup("München"); ok {
		t.Error("undecided title should not be found")
	}
}

func TestRecordIsIdempotent(t *testing.T) {
	c := Load(tempCachePath(t), zap.NewNop())

	c.Record("Berlin", Indexed)
	c.Record("Berlin", Errored) // no-op, first outcome wins

	if o, _ := c.Lookup("Berlin"); o != Indexed {
		t.Errorf("outcome changed on re-record: %v", o)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", c.Len())
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	path := tempCachePath(t)

	c := Load(path, zap.NewNop())
	c.Record("Berlin", Indexed)
	c.Record("berlin (Begriffsklärung)", Similar)
	c.Record("Liste", Rejected)
	c.Record("Kaputt", Errored)
	if err := c.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	reloaded := Load(path, zap.NewNop())
	if reloaded.Len() != 4 {
		t.Fatalf("expected 4 entries after reload, got %d", reloaded.Len())
	}
	for title, want := range map[string]Outcome{
		"Berlin":                   Indexed,
		"berlin (Begriffsklärung)": Similar,
		"Liste":                    Rejected,
		"Kaputt":                   Errored,
	} {
		if got, ok := reloaded.Lookup(title); !ok || got != want {
			t.Errorf("Lookup(%q) = %v, %v; want %v", title, got, ok, want)
		}
	}

	counts := reloaded.Counts()
	for _, o := range Outcomes {
		if counts[o] != 1 {
			t.Errorf("Counts()[%s] = %d, want 1", o, counts[o])
		}
	}
}

func TestCorruptedCacheDegradesToEmpty(t *testing.T) {
	path := tempCachePath(t)
	if err := os.WriteFile(path, []byte("not json {"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	c := Load(path, zap.NewNop())
	if c.Len() != 0 {
		t.Errorf("corrupted cache should load empty, got %d entries", c.Len())
	}
}

func TestVersionMismatchDegradesToEmpty(t *testing.T) {
	path := tempCachePath(t)
	if err := os.WriteFile(path, []byte(`{"version":99,"indexed":["Berlin"]}`), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	c := Load(path, zap.NewNop())
	if c.Len() != 0 {
		t.Errorf("future schema should load empty, got %d entries", c.Len())
	}
}

func TestCheckpointLeavesNoTempFiles(t *testing.T) {
	path := tempCachePath(t)
	c := Load(path, zap.NewNop())
	c.Record("Berlin", Indexed)
	if err := c.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".cache-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestClear(t *testing.T) {
	path := tempCachePath(t)
	c := Load(path, zap.NewNop())
	c.Record("Berlin", Indexed)
	if err := c.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if c.Len() != 0 {
		t.Error("entries should be empty after Clear")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("cache file should be removed")
	}

	// Clearing again is fine even though the file is gone.
	if err := c.Clear(); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
}
