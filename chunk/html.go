package chunk

import (
	"html"
	"regexp"
	"strings"
)

var (
	scriptRe     = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	styleRe      = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style>`)
	tagRe        = regexp.MustCompile(`<[^>]*>`)
	blankRunRe   = regexp.MustCompile(`\n[ \t]*\n[\s]*`)
	horizontalRe = regexp.MustCompile(`[ \t]+`)
)

// ExtractText strips an HTML document down to its readable text. Script
// and style elements are removed entirely, remaining tags are dropped,
// entities are decoded and whitespace is normalized. Paragraph breaks
// collapse to a single blank line so downstream chunking can still
// prefer them as boundaries.
func ExtractText(htmlContent string) string {
	text := scriptRe.ReplaceAllString(htmlContent, " ")
	text = styleRe.ReplaceAllString(text, " ")
	text = tagRe.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)
	text = horizontalRe.ReplaceAllString(text, " ")
	text = blankRunRe.ReplaceAllString(text, "\n\n")

	// Trim trailing spaces left on each line by tag removal.
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = blankRunRe.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}
