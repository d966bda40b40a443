package utils

import "testing"

func TestSafeTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"empty", "", 10, ""},
		{"zero max", "abc", 0, ""},
		{"fits", "abc", 5, "abc"},
		{"exact", "abcde", 5, "abcde"},
		{"truncated", "abcdefgh", 6, "abc..."},
		{"tiny max keeps one rune", "abcdef", 2, "a"},
		{"multibyte not split", "日本語のテキストです", 6, "日本語..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeTruncate(tt.input, tt.maxLen); got != tt.want {
				t.Fatalf("SafeTruncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestSanitizeOutput(t *testing.T) {
	in := "plain \x1b[31mred\x1b[0m text\x07 with\tcontrol\nchars"
	got := SanitizeOutput(in)
	want := "plain red text with\tcontrol\nchars"
	if got != want {
		t.Fatalf("SanitizeOutput() = %q, want %q", got, want)
	}
}
