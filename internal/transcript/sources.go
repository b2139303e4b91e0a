package transcript

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/studytutor/chat-client/internal/model"
)

var (
	// sourcesBlockRe matches a trailing horizontal rule followed by a bold
	// Sources label and the remainder of the text.
	sourcesBlockRe = regexp.MustCompile(`(?s)---\s*\n\*\*Sources:\*\*\s*\n(.*)$`)

	// sourceLineRe matches one markdown link entry with an optional dash
	// separated description.
	sourceLineRe = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)(?:\s*[—–-]\s*(.+))?`)

	numberedRe = regexp.MustCompile(`^\d+\.`)
)

// ParseSources extracts the trailing citation block from finalized assistant
// text. Without a block it returns no citations and the text unchanged; with
// one it returns the citations in file order and the text with the block
// stripped. Malformed entries are skipped, never fatal, and the parse is
// idempotent over its own display text.
func ParseSources(text string) ([]model.Citation, string) {
	m := sourcesBlockRe.FindStringSubmatchIndex(text)
	if m == nil {
		return nil, text
	}

	display := strings.TrimSpace(text[:m[0]])
	block := text[m[2]:m[3]]

	var citations []model.Citation
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "-") && !numberedRe.MatchString(line) {
			continue
		}
		lm := sourceLineRe.FindStringSubmatch(line)
		if lm == nil {
			continue
		}
		citations = append(citations, model.Citation{
			Title:       lm[1],
			URL:         lm[2],
			Description: strings.TrimSpace(lm[3]),
			Domain:      extractDomain(lm[2]),
		})
	}

	return citations, display
}

// extractDomain pulls the host out of a URL, dropping a www. prefix. A URL
// that fails to parse falls back to the raw string.
func extractDomain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
