package logutil

import "testing"

func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "web-server", "web-server"},
		{"newline", "a\nfake log line", "a fake log line"},
		{"carriage return", "a\rb", "a b"},
		{"tab", "a\tb", "a b"},
		{"control chars", "a\x00\x1bb", "ab"},
		{"empty", "", ""},
		{"unicode preserved", "hést", "hést"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeForLog(tt.input); got != tt.want {
				t.Errorf("SanitizeForLog(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
