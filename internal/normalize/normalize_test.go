package normalize_test

import (
	"testing"

	"github.com/shpitdev/unusual-requirements/internal/normalize"
)

func TestCleanHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "plain", in: "Хотим отель у моря", want: "Хотим отель у моря"},
		{name: "simple_tags", in: "<p>текст</p>", want: "текст"},
		{name: "tag_between_words", in: "a<br>b", want: "a b"},
		{name: "nested_tags", in: "<div><b>вид на море</b></div>", want: "вид на море"},
		{name: "unclosed_tag_passes_through", in: "a <b c", want: "a <b c"},
		{name: "non_greedy_per_occurrence", in: "<a>x<b>y", want: "x y"},
		{name: "attributes", in: `<a href="x">link</a>`, want: "link"},
		{name: "leading_trailing_space", in: "  до моря  ", want: "до моря"},
		{name: "newline_inside_tag_not_matched", in: "a <b\n> c", want: "a <b\n> c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalize.CleanHTML(tt.in); got != tt.want {
				t.Fatalf("CleanHTML(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// The double-space collapse is one pass, so normalization is not idempotent:
// a tag flanked by double spaces leaves a run that shrinks again on re-apply.
func TestCleanHTML_NotIdempotent(t *testing.T) {
	in := "a  <b>  c"

	first := normalize.CleanHTML(in)
	if first != "a   c" {
		t.Fatalf("first pass: got %q, want %q", first, "a   c")
	}

	second := normalize.CleanHTML(first)
	if second != "a  c" {
		t.Fatalf("second pass: got %q, want %q", second, "a  c")
	}
	if second == first {
		t.Fatalf("expected second pass to differ from first")
	}
}

func TestCleanHTML_CollapsesPairsOnly(t *testing.T) {
	// Five spaces collapse pairwise to three, never to one.
	if got := normalize.CleanHTML("a     b"); got != "a   b" {
		t.Fatalf("got %q, want %q", got, "a   b")
	}
}
