package logsanitize

import "testing"

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain text", input: "forgot to clock out", want: "forgot to clock out"},
		{name: "newline injection", input: "user\nlevel=ERROR forged", want: "user_level=ERROR forged"},
		{name: "carriage return", input: "a\rb", want: "a_b"},
		{name: "tab preserved", input: "a\tb", want: "a\tb"},
		{name: "DEL stripped", input: "a\x7fb", want: "a_b"},
		{name: "C1 control stripped", input: "a\u0085b", want: "a_b"},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRedactToken(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "long token", input: "ASP.NET_SessionId_abcdef123456", want: "ASP.****"},
		{name: "short token", input: "abc", want: "****"},
		{name: "exactly four", input: "abcd", want: "****"},
		{name: "empty", input: "", want: "****"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RedactToken(tt.input); got != tt.want {
				t.Errorf("RedactToken(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
