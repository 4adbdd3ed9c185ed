package dedup

import "testing"

func set(titles ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(titles))
	for _, t := range titles {
		s[t] = struct{}{}
	}
	return s
}

func TestCaseVariantIsDuplicate(t *testing.T) {
	e := New(0.9)

	dup, match := e.IsDuplicate("berlin", set("Berlin"), nil)
	if !dup {
		t.Fatal("berlin should duplicate Berlin at threshold 0.9")
	}
	if match != "Berlin" {
		t.Errorf("matched title = %q, want Berlin", match)
	}

	if dup, _ := e.IsDuplicate("Munich", set("Berlin"), nil); dup {
		t.Error("Munich should not duplicate Berlin")
	}
}

func TestExternalPassRuns(t *testing.T) {
	e := New(0.9)

	dup, match := e.IsDuplicate("Hamburg", nil, set("hamburg"))
	if !dup || match != "hamburg" {
		t.Errorf("expected external match, got %v %q", dup, match)
	}
}

func TestRatioBounds(t *testing.T) {
	cases := []struct {
		a, b string
		want float64
	}{
		{"Berlin", "Berlin", 1.0},
		{"Berlin", "berlin", 1.0},
		{"", "", 1.0},
		{"abc", "xyz", 0.0},
	}
	for _, c := range cases {
		if got := Ratio(c.a, c.b); got != c.want {
			t.Errorf("Ratio(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestRatioIsSymmetric(t *testing.T) {
	if Ratio("Berlin", "Bern") != Ratio("Bern", "Berlin") {
		t.Error("ratio should be symmetric")
	}
}

// A stricter (higher) threshold must never reject a title that a looser
// threshold accepted: the accepted set at T2 > T1 is a superset.
func TestThresholdMonotonicity(t *testing.T) {
	existing := set("Berlin", "Hamburg", "München", "Frankfurt am Main")
	candidates := []string{
		"berlin", "Berlin-Mitte", "Bärlin", "Köln", "Frankfurt", "Hamburg-Altona",
	}

	loose := New(0.6)
	strict := New(0.9)

	for _, c := range candidates {
		looseDup, _ := loose.IsDuplicate(c, nil, existing)
		strictDup, _ := strict.IsDuplicate(c, nil, existing)
		if strictDup && !looseDup {
			t.Errorf("%q duplicate at 0.9 but not at 0.6", c)
		}
	}
}
