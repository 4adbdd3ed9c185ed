package quality

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func germanFilter() *Filter {
	return NewFilter(DefaultConfig(), "de")
}

func TestAcceptsWellFormedSentence(t *testing.T) {
	f := germanFilter()
	if !f.IsQuality("Berlin ist die Hauptstadt von Deutschland.") {
		t.Error("well-formed sentence should pass")
	}
}

func TestRejectsWikiArtifactPhrase(t *testing.T) {
	f := germanFilter()
	if f.IsQuality("Siehe auch Berlin") {
		t.Error("wiki artifact phrase should fail")
	}
}

func TestRejectsStructuralFragments(t *testing.T) {
	f := germanFilter()
	fragments := []string{
		"1871.",
		"Geschichte:",
		"(gegründet im Jahr 1237",
		"- Einwohnerzahl steigt weiter an.",
		"* Liste der Bezirke von Berlin.",
		"Die Stadt wuchs schnell ...",
		"und dann ging es weiter bis zum Ende.", // lowercase start
	}
	for _, s := range fragments {
		if f.IsQuality(s) {
			t.Errorf("fragment should fail: %q", s)
		}
	}
}

func TestRejectsLengthAndWordBounds(t *testing.T) {
	f := germanFilter()

	if f.IsQuality("Kurz.") {
		t.Error("too-short sentence should fail")
	}
	long := "Berlin hat " + strings.Repeat("sehr ", 60) + "viele Einwohner."
	if f.IsQuality(long) {
		t.Error("too-many-words sentence should fail")
	}
}

func TestLengthBoundCountsCharactersNotBytes(t *testing.T) {
	f := germanFilter()

	// 495 characters but 540 bytes: umlauts must not push a sentence over
	// the 500-character bound.
	s := strings.Repeat("Türenbauer ", 44) + "Türenbauer."
	if len([]rune(s)) > DefaultConfig().MaxLength {
		t.Fatalf("test sentence too long: %d chars", len([]rune(s)))
	}

	r := f.Report(s)
	if !r.Checks["length"] {
		t.Errorf("length rule rejected a %d-character sentence: failed=%v", len([]rune(s)), r.Failed)
	}
	if !r.Passes {
		t.Errorf("sentence should pass, failed=%v", r.Failed)
	}
}

func TestRejectsMonocase(t *testing.T) {
	f := germanFilter()
	if f.IsQuality("BERLIN IST DIE HAUPTSTADT VON DEUTSCHLAND.") {
		t.Error("all-caps should fail")
	}
}

func TestRejectsNumberHeavySentences(t *testing.T) {
	f := germanFilter()
	if f.IsQuality("Berlin zählte 1871 826000 und 1900 1888000 und 1925 4024000 Einwohner.") {
		t.Error("statistics row should fail")
	}
}

func TestRejectsExcessivePunctuation(t *testing.T) {
	f := germanFilter()
	if f.IsQuality("Berlin (((Hauptstadt))) -- Deutschland ??!!;;;;;;;;!!!?!?!?!") {
		t.Error("punctuation-heavy string should fail")
	}
}

func TestCapsRuleOnlyForConfiguredLanguages(t *testing.T) {
	// Almost no capitalized words: fails the German rule, passes without it.
	s := "Wir gehen zusammen weiter und reden oft darüber, was uns hier gefällt."

	en := NewFilter(DefaultConfig(), "en")
	if !en.IsQuality(s) {
		t.Error("caps rule should not apply to en")
	}
}

func TestReportNamesFailedChecks(t *testing.T) {
	f := germanFilter()
	r := f.Report("siehe auch")
	if r.Passes {
		t.Fatal("report should fail")
	}
	var found bool
	for _, name := range r.Failed {
		if name == "artifacts" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected artifacts among failures, got %v", r.Failed)
	}
}

func TestIsQualityIsDeterministic(t *testing.T) {
	f := germanFilter()
	s := "Berlin ist die Hauptstadt von Deutschland."
	first := f.IsQuality(s)
	for i := 0; i < 10; i++ {
		if f.IsQuality(s) != first {
			t.Fatal("verdict changed between calls")
		}
	}
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("min_words: 5\nmax_length: 200\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.MinWords != 5 || cfg.MaxLength != 200 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.MinLength != 10 {
		t.Errorf("defaults lost: %+v", cfg)
	}
}
