package storage

import "testing"

var matchTestCases = []struct {
	name     string
	str      string
	pattern  string
	expected bool
}{
	// Empty patterns
	{"empty pattern, empty string", "", "", true},
	{"empty pattern, non-empty string", "test", "", false},
	{"non-empty pattern, empty string", "", "test", false},

	// Exact matches
	{"exact match", "hello", "hello", true},
	{"exact match case sensitive", "Hello", "hello", false},

	// Wildcards
	{"single wildcard, non-empty string", "test", "*", true},
	{"single wildcard, empty string", "", "*", true},
	{"prefix match", "hello world", "hello*", true},
	{"prefix no match", "hi world", "hello*", false},
	{"suffix match", "hello world", "*world", true},
	{"middle wildcard empty middle", "helloworld", "hello*world", true},
	{"multiple wildcards", "hello world test", "hello*world*", true},
	{"only stars", "anything", "***", true},

	// Single character wildcard (?)
	{"single char wildcard", "hello", "hell?", true},
	{"single char wildcard no match", "hello", "hell??", false},
	{"mixed wildcards", "hello world", "h?llo*", true},

	// Character classes
	{"class match", "hallo", "h[ae]llo", true},
	{"class no match", "hillo", "h[ae]llo", false},
	{"negated class", "hillo", "h[^ae]llo", true},
	{"range class", "key7", "key[0-9]", true},
	{"range class no match", "keyx", "key[0-9]", false},
	{"reversed range", "key7", "key[9-0]", true},

	// Escapes
	{"escaped star literal", "a*b", `a\*b`, true},
	{"escaped star no wildcard", "axb", `a\*b`, false},
	{"escaped question mark", "what?", `what\?`, true},

	// Real-world key patterns
	{"key prefix", "user:123:profile", "user:*", true},
	{"key middle", "user:123:profile", "user:*:profile", true},
	{"key with slash", "path/to/key", "path/*", true},
}

func TestMatchPattern(t *testing.T) {
	for _, tc := range matchTestCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := matchPattern(tc.str, tc.pattern); got != tc.expected {
				t.Errorf("matchPattern(%q, %q) = %v, want %v", tc.str, tc.pattern, got, tc.expected)
			}
		})
	}
}

func BenchmarkMatchPattern(b *testing.B) {
	patterns := []string{"user:*", "*:profile", "user:*:profile", "user:[0-9]*"}
	for _, p := range patterns {
		b.Run(p, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				matchPattern("user:12345:profile", p)
			}
		})
	}
}
