package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractURL(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		wantText string
		wantURL  string
	}{
		{
			name:     "trailing url",
			input:    "check this out https://example.com/post",
			wantText: "check this out",
			wantURL:  "https://example.com/post",
		},
		{
			name:     "url in the middle",
			input:    "before https://example.com after",
			wantText: "before  after",
			wantURL:  "https://example.com",
		},
		{
			name:     "no url",
			input:    "plain text only",
			wantText: "plain text only",
			wantURL:  "",
		},
		{
			name:     "http scheme",
			input:    "legacy http://example.org/page",
			wantText: "legacy",
			wantURL:  "http://example.org/page",
		},
		{
			name:     "only first url extracted",
			input:    "https://a.example https://b.example",
			wantText: "https://b.example",
			wantURL:  "https://a.example",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			text, url := ExtractURL(tc.input)
			assert.Equal(t, tc.wantText, text)
			assert.Equal(t, tc.wantURL, url)
		})
	}
}

func TestRuneLength(t *testing.T) {
	assert.Equal(t, 5, RuneLength("hello"))
	assert.Equal(t, 3, RuneLength("あいう"))
	assert.Equal(t, 0, RuneLength(""))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", Truncate("hello", 10))
	assert.Equal(t, "hel...", Truncate("hello", 3))
	assert.Equal(t, "あい...", Truncate("あいうえお", 2))
	assert.Equal(t, "hello", Truncate("hello", 0))
}
