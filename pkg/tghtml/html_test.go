package tghtml

import "testing"

func TestEscapedConstructors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		got  H
		want string
	}{
		{"esc", Esc(`<b>&"`), "&lt;b&gt;&amp;&#34;"},
		{"bold", B("a<b"), "<b>a&lt;b</b>"},
		{"italic", I("x&y"), "<i>x&amp;y</i>"},
		{"code", Code("a<b>"), "<code>a&lt;b&gt;</code>"},
		{"link", Link(`t"x`, `https://e.example/?a=1&b=2`), `<a href="https://e.example/?a=1&amp;b=2">t&#34;x</a>`},
		{"raw passthrough", Raw("<b>keep</b>"), "<b>keep</b>"},
		{"join skips blanks", JoinH(" | ", B("a"), Raw("  "), B("b")), "<b>a</b> | <b>b</b>"},
		{"join empty", JoinH(", "), ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.got.String() != tt.want {
				t.Fatalf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestTruncRunes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"shorter than limit", "abc", 5, "abc"},
		{"exactly limit", "abcde", 5, "abcde"},
		{"truncated", "abcdef", 3, "abc…"},
		{"multibyte", "héllö wörld", 5, "héllö…"},
		{"zero", "abc", 0, ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := TruncRunes(tt.in, tt.n); got != tt.want {
				t.Fatalf("TruncRunes(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
		})
	}
}
