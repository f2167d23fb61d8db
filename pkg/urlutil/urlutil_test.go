package urlutil

import (
	"testing"
)

func TestCanonicalizeTemplate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "query parameters removed",
			input:    "https://host.example/v3/{z}/{x}/{y}.pbf?key=abc123",
			expected: "https://host.example/v3/{z}/{x}/{y}.pbf",
		},
		{
			name:     "fragment removed",
			input:    "https://host.example/{z}/{x}/{y}.png#frag",
			expected: "https://host.example/{z}/{x}/{y}.png",
		},
		{
			name:     "uppercase placeholders unified",
			input:    "https://host.example/{Z}/{X}/{Y}.pbf",
			expected: "https://host.example/{z}/{x}/{y}.pbf",
		},
		{
			name:     "scheme and host lowercased",
			input:    "HTTPS://TILES.Example.COM/{z}/{x}/{y}.pbf",
			expected: "https://tiles.example.com/{z}/{x}/{y}.pbf",
		},
		{
			name:     "path case preserved",
			input:    "https://host.example/Styles/Dark/{z}/{x}/{y}.png",
			expected: "https://host.example/Styles/Dark/{z}/{x}/{y}.png",
		},
		{
			name:     "trailing slash removed",
			input:    "https://host.example/tiles/",
			expected: "https://host.example/tiles",
		},
		{
			name:     "already canonical stays same",
			input:    "https://host.example/v3/{z}/{x}/{y}.pbf",
			expected: "https://host.example/v3/{z}/{x}/{y}.pbf",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CanonicalizeTemplate(tt.input)
			if result != tt.expected {
				t.Errorf("CanonicalizeTemplate(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestCanonicalizeTemplate_Idempotent(t *testing.T) {
	inputs := []string{
		"https://host.example/v3/{Z}/{X}/{Y}.pbf?key=x",
		"HTTP://Host.example/{z}/{x}/{y}.png/",
		"not a url at all",
	}

	for _, input := range inputs {
		once := CanonicalizeTemplate(input)
		twice := CanonicalizeTemplate(once)
		if once != twice {
			t.Errorf("not idempotent for %q: %q != %q", input, once, twice)
		}
	}
}

func TestHost(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain url",
			input:    "https://tiles.example.com/v3/tiles.json?key=x",
			expected: "tiles.example.com",
		},
		{
			name:     "port stripped",
			input:    "http://localhost:8080/{z}/{x}/{y}.png",
			expected: "localhost",
		},
		{
			name:     "host lowercased",
			input:    "https://TILES.Example.COM/a",
			expected: "tiles.example.com",
		},
		{
			name:     "unparseable input",
			input:    "http://bad host/%zz",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Host(tt.input)
			if result != tt.expected {
				t.Errorf("Host(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
