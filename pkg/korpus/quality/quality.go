// Package quality holds the deterministic sentence-acceptance predicate.
// Scraped wiki markup leaks structural artifacts -- table rows, bullet
// fragments, headers -- that look sentence-shaped but are useless as
// example sentences; this gate keeps them out of the index.
package quality

import (
	"os"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Config are the tunable bounds of the predicate. Zero values are never
// valid; start from DefaultConfig.
type Config struct {
	MinLength      int     `yaml:"min_length"`
	MaxLength      int     `yaml:"max_length"`
	MinWords       int     `yaml:"min_words"`
	MaxWords       int     `yaml:"max_words"`
	MaxNumberRatio float64 `yaml:"max_number_ratio"` // digit groups per word
	MaxPunctRatio  float64 `yaml:"max_punct_ratio"`  // punctuation runes per rune
	MinAlphaRatio  float64 `yaml:"min_alpha_ratio"`  // letters+spaces per rune
	MinCapsRatio   float64 `yaml:"min_caps_ratio"`   // capitalized words per word
	// CapitalizedLangs are language codes where the capitalized-word rule
	// applies (languages that capitalize nouns, like German).
	CapitalizedLangs []string `yaml:"capitalized_langs"`
}

// DefaultConfig returns the bounds the corpus was originally built with.
func DefaultConfig() Config {
	return Config{
		MinLength:        10,
		MaxLength:        500,
		MinWords:         3,
		MaxWords:         50,
		MaxNumberRatio:   0.3,
		MaxPunctRatio:    0.2,
		MinAlphaRatio:    0.5,
		MinCapsRatio:     0.1,
		CapitalizedLangs: []string{"de"},
	}
}

// LoadConfig reads a Config from a YAML file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Patterns that mark a string as a structural fragment rather than a
// sentence: bare numbers, lone words, unbalanced parentheses, dashes at
// either end, bullet markers, ellipsis runs, a lowercase sentence start.
var incompletePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*\d+\.?\s*$`),
	regexp.MustCompile(`^\s*[A-Z][a-z]*:?\s*$`),
	regexp.MustCompile(`^\s*\([^)]*$`),
	regexp.MustCompile(`^[^(]*\)\s*$`),
	regexp.MustCompile(`^\s*[-–—]\s*`),
	regexp.MustCompile(`\s[-–—]\s*$`),
	regexp.MustCompile(`^\s*\*`),
	regexp.MustCompile(`^\s*[•·▪▫]\s*`),
	regexp.MustCompile(`\.{3,}`),
	regexp.MustCompile(`^[^A-ZÄÖÜ]`),
}

// Substrings that betray leaked wiki syntax. Checked case-insensitively.
var wikiArtifacts = []string{
	"siehe auch",
	"see also",
	"category:",
	"kategorie:",
	"thumb|",
	"px|",
	"left|",
	"right|",
	"center|",
	"{{",
	"}}",
	"[[",
	"]]",
	"file:",
	"image:",
	"datei:",
	"bild:",
}

var (
	numberGroupRe = regexp.MustCompile(`\d+`)
	terminals     = ".!?:;"
)

// Filter applies the full rule set for one language. It is pure: the same
// sentence always yields the same verdict, across processes and runs.
type Filter struct {
	cfg      Config
	lang     string
	capsRule bool
}

// NewFilter builds a Filter for the given language code.
func NewFilter(cfg Config, lang string) *Filter {
	f := &Filter{cfg: cfg, lang: lang}
	for _, l := range cfg.CapitalizedLangs {
		if l == lang {
			f.capsRule = true
			break
		}
	}
	return f
}

// IsQuality reports whether a sentence passes every rule.
func (f *Filter) IsQuality(sentence string) bool {
	r := f.Report(sentence)
	return r.Passes
}

// Report is the per-rule breakdown for a sentence, mainly for diagnostics
// and tests.
type Report struct {
	Passes bool
	Checks map[string]bool
	Failed []string
}

// Report evaluates every rule and returns the detailed result.
func (f *Filter) Report(sentence string) Report {
	sentence = strings.TrimSpace(sentence)
	if sentence == "" {
		return Report{Checks: map[string]bool{"non_empty": false}, Failed: []string{"non_empty"}}
	}

	words := strings.Fields(sentence)
	runes := []rune(sentence)

	checks := map[string]bool{
		// Length bounds are in characters, not bytes; umlauts count once.
		"length":        len(runes) >= f.cfg.MinLength && len(runes) <= f.cfg.MaxLength,
		"word_count":    len(words) >= f.cfg.MinWords && len(words) <= f.cfg.MaxWords,
		"ending":        strings.ContainsRune(terminals, runes[len(runes)-1]),
		"structure":     !hasIncompletePattern(sentence),
		"numbers":       !tooManyNumbers(sentence, len(words), f.cfg.MaxNumberRatio),
		"punctuation":   !tooMuchPunctuation(runes, f.cfg.MaxPunctRatio),
		"alpha_content": alphaRatio(runes) >= f.cfg.MinAlphaRatio,
		"casing":        !isMonocase(sentence),
		"artifacts":     !hasWikiArtifact(sentence),
	}
	if f.capsRule {
		checks["capitalized_words"] = capitalizedRatio(words) >= f.cfg.MinCapsRatio
	}

	r := Report{Passes: true, Checks: checks}
	for name, ok := range checks {
		if !ok {
			r.Passes = false
			r.Failed = append(r.Failed, name)
		}
	}
	sort.Strings(r.Failed)
	return r
}

func hasIncompletePattern(s string) bool {
	for _, re := range incompletePatterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// tooManyNumbers counts digit groups (years, measurements, table data)
// against the word count. A sentence that is mostly figures is statistics,
// not prose.
func tooManyNumbers(s string, words int, maxRatio float64) bool {
	groups := len(numberGroupRe.FindAllString(s, -1))
	return float64(groups) > float64(words)*maxRatio
}

func tooMuchPunctuation(runes []rune, maxRatio float64) bool {
	var punct int
	for _, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) && r != '_' {
			punct++
		}
	}
	return float64(punct) > float64(len(runes))*maxRatio
}

func alphaRatio(runes []rune) float64 {
	if len(runes) == 0 {
		return 0
	}
	var alpha int
	for _, r := range runes {
		if unicode.IsLetter(r) || unicode.IsSpace(r) {
			alpha++
		}
	}
	return float64(alpha) / float64(len(runes))
}

// isMonocase rejects shouting and fragments with no casing signal at all.
// Only sentences that contain cased letters can be monocase.
func isMonocase(s string) bool {
	var hasUpper, hasLower bool
	for _, r := range s {
		if unicode.IsUpper(r) {
			hasUpper = true
		} else if unicode.IsLower(r) {
			hasLower = true
		}
	}
	return (hasUpper && !hasLower) || (hasLower && !hasUpper)
}

func capitalizedRatio(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	var caps int
	for _, w := range words {
		runes := []rune(w)
		if len(runes) >= 2 && unicode.IsUpper(runes[0]) && unicode.IsLower(runes[1]) {
			caps++
		}
	}
	return float64(caps) / float64(len(words))
}

func hasWikiArtifact(s string) bool {
	lower := strings.ToLower(s)
	for _, a := range wikiArtifacts {
		if strings.Contains(lower, a) {
			return true
		}
	}
	return false
}
