package logger

import "testing"

func TestSanitizedEmail(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"student@umak.edu.ph", "s******@****.edu.ph"},
		{"a@b.com", "a@*.com"},
		{"not-an-email", "[invalid-email]"},
		{"", "[invalid-email]"},
	}

	for _, tt := range tests {
		if got := SanitizedEmail(tt.input); got != tt.want {
			t.Errorf("SanitizedEmail(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSanitizeQueryString(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"password=hunter2", true},
		{"code=123456", true},
		{"email=student@example.com", true},
		{"session=abc", true},
		{"page=2&limit=10", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := SanitizeQueryString(tt.query); got != tt.want {
			t.Errorf("SanitizeQueryString(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}
