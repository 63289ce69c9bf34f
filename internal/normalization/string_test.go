package normalization

import "testing"

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"Machine Learning":  "machine-learning",
		"C++":               "c",
		"Node.js":           "node-js",
		"  São Paulo  ":     "s-o-paulo",
		"data//engineering": "data-engineering",
		"":                  "",
		"---":               "",
	}
	for in, want := range cases {
		if got := Slug(in); got != want {
			t.Fatalf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsBlank(t *testing.T) {
	for _, in := range []string{"", "  ", "NaN", "null", "None", "N/A", "na", "-"} {
		if !IsBlank(in) {
			t.Fatalf("IsBlank(%q) should be true", in)
		}
	}
	for _, in := range []string{"0", "value", "nope"} {
		if IsBlank(in) {
			t.Fatalf("IsBlank(%q) should be false", in)
		}
	}
}

func TestParseBool(t *testing.T) {
	for _, in := range []string{"1", "true", "True", "t", "YES", "y"} {
		if !ParseBool(in) {
			t.Fatalf("ParseBool(%q) should be true", in)
		}
	}
	for _, in := range []string{"", "0", "false", "no", "nan"} {
		if ParseBool(in) {
			t.Fatalf("ParseBool(%q) should be false", in)
		}
	}
}
