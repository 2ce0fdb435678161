package platform

import (
	"strings"
	"unicode/utf8"
)

const ellipsis = "..."

// Truncate shortens s to at most limit runes, replacing the tail with "..."
// when it has to cut.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	if limit <= len(ellipsis) {
		return string([]rune(s)[:limit])
	}
	return string([]rune(s)[:limit-len(ellipsis)]) + ellipsis
}

// ComposeText appends the hashtags to the text after a blank line.
func ComposeText(text string, hashtags []string) string {
	text = strings.TrimSpace(text)
	tags := make([]string, 0, len(hashtags))
	for _, tag := range hashtags {
		tag = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(tag), "#"))
		if tag == "" {
			continue
		}
		tags = append(tags, "#"+strings.ReplaceAll(tag, " ", ""))
	}
	if len(tags) == 0 {
		return text
	}
	if text == "" {
		return strings.Join(tags, " ")
	}
	return text + "\n\n" + strings.Join(tags, " ")
}

// normalizedText is the text every adapter sends: hashtags appended, then cut to the limit.
func normalizedText(c Content, limit int) string {
	return Truncate(ComposeText(c.Text, c.Hashtags), limit)
}
