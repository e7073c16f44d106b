package search

import "testing"

func TestContainsPatternEscapesWildcards(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{text: "login", want: `%login%`},
		{text: "100%", want: `%100\%%`},
		{text: "snake_case", want: `%snake\_case%`},
		{text: `C:\tmp`, want: `%C:\\tmp%`},
		{text: `\%_`, want: `%\\\%\_%`},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := containsPattern(tt.text); got != tt.want {
				t.Fatalf("containsPattern(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}
