package adapter

import (
	"html"
	"regexp"
	"strings"
)

var (
	htmlTagRegex  = regexp.MustCompile(`<[^>]*>`)
	blockTagRegex  = regexp.MustCompile(`(?i)</?(p|br|li|ul|ol|div|h[1-6])[^>]*>`)
)

// extractText turns board HTML into plain text. Greenhouse double-encodes
// its content, so entities are unescaped before tags are stripped. Block
// tags become spaces so adjacent paragraphs do not run together.
func extractText(content string) string {
	unescaped := html.UnescapeString(content)
	spaced := blockTagRegex.ReplaceAllString(unescaped, " ")
	plain := htmlTagRegex.ReplaceAllString(spaced, "")
	return strings.Join(strings.Fields(plain), " ")
}
