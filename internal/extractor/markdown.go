package extractor

import (
	"regexp"
	"strings"
)

var (
	reHeading  = regexp.MustCompile(`(?m)^#{1,6}\s+\S`)
	reListItem = regexp.MustCompile(`(?m)^[\-\*]\s+\S`)
	reMDLink   = regexp.MustCompile(`\[.+?\]\(.+?\)`)
)

// looksLikeHTML checks if content appears to be an HTML document.
func looksLikeHTML(content string) bool {
	lower := strings.ToLower(strings.TrimSpace(content))
	return strings.HasPrefix(lower, "<!doctype") ||
		strings.HasPrefix(lower, "<html") ||
		strings.HasPrefix(lower, "<head") ||
		strings.HasPrefix(lower, "<body")
}

// isMarkdownContent uses heuristics to detect content that is already
// markdown or structured plain text, which skips the HTML cleaning pass.
func isMarkdownContent(content string) bool {
	if content == "" {
		return false
	}

	trimmed := strings.TrimSpace(content)
	if looksLikeHTML(trimmed) {
		return false
	}

	return reHeading.MatchString(trimmed) ||
		reListItem.MatchString(trimmed) ||
		reMDLink.MatchString(trimmed)
}
