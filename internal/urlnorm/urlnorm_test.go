package urlnorm

import "testing"

func TestCanonical(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "lowercases scheme and host",
			in:   "HTTPS://Example.COM/Path",
			want: "https://example.com/Path",
		},
		{
			name: "strips default https port",
			in:   "https://example.com:443/a",
			want: "https://example.com/a",
		},
		{
			name: "strips default http port",
			in:   "http://example.com:80/a",
			want: "http://example.com/a",
		},
		{
			name: "keeps non-default port",
			in:   "http://example.com:8080/a",
			want: "http://example.com:8080/a",
		},
		{
			name: "trims trailing slash",
			in:   "https://example.com/docs/",
			want: "https://example.com/docs",
		},
		{
			name: "trims bare root slash",
			in:   "https://example.com/",
			want: "https://example.com",
		},
		{
			name: "strips utm parameters",
			in:   "https://example.com/a?utm_source=x&utm_medium=y&q=go",
			want: "https://example.com/a?q=go",
		},
		{
			name: "strips fbclid and gclid",
			in:   "https://example.com/a?fbclid=abc&gclid=def",
			want: "https://example.com/a",
		},
		{
			name: "strips mailchimp ids",
			in:   "https://example.com/a?mc_cid=1&mc_eid=2&page=3",
			want: "https://example.com/a?page=3",
		},
		{
			name: "drops fragment",
			in:   "https://example.com/a#section-2",
			want: "https://example.com/a",
		},
		{
			name: "preserves remaining parameter order",
			in:   "https://example.com/a?b=2&utm_campaign=z&a=1",
			want: "https://example.com/a?b=2&a=1",
		},
		{
			name: "malformed url returned trimmed",
			in:   "  not a url  ",
			want: "not a url",
		},
		{
			name: "empty input",
			in:   "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Canonical(tt.in); got != tt.want {
				t.Errorf("Canonical(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCanonicalDedupEquivalence(t *testing.T) {
	// URLs differing only in tracking parameters must share one key.
	variants := []string{
		"https://example.com/article?utm_source=a",
		"https://example.com/article?utm_source=b",
		"https://example.com/article/",
		"HTTPS://EXAMPLE.com/article",
	}

	want := Canonical("https://example.com/article")
	for _, v := range variants {
		if got := Canonical(v); got != want {
			t.Errorf("Canonical(%q) = %q, want %q", v, got, want)
		}
	}
}
