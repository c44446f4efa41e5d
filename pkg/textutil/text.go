package textutil

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// ExtractURL splits the first URL out of a post text so it can be sent
// as a link attachment instead of inline. The remaining text is trimmed.
func ExtractURL(text string) (string, string) {
	url := urlPattern.FindString(text)
	if url == "" {
		return text, ""
	}

	withoutURL := strings.TrimSpace(strings.Replace(text, url, "", 1))
	return withoutURL, url
}

// RuneLength counts characters the way the posting platform does,
// by code point rather than byte.
func RuneLength(text string) int {
	return utf8.RuneCountInString(text)
}

// Truncate shortens text to at most limit runes, appending an ellipsis
// when anything was cut. Used for log previews.
func Truncate(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}

	runes := []rune(text)
	return string(runes[:limit]) + "..."
}
