// Package tasks runs background workflows triggered by chat commands.
package tasks

import (
	"regexp"
	"strings"
)

// commandPatterns match chat text that requests an image generation. Each
// pattern captures the free-text prompt. Matching is case-insensitive and
// applied to whitespace-trimmed text.
var commandPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^/imagine\s+(.+)$`),
	regexp.MustCompile(`(?i)^generate\s+(.+)$`),
	regexp.MustCompile(`(?i)^draw\s+(.+)$`),
	regexp.MustCompile(`(?i)^create\s+an\s+image\s+of\s+(.+)$`),
}

// ExtractPrompt returns the generation prompt embedded in a chat message,
// if any.
func ExtractPrompt(text string) (string, bool) {
	text = strings.TrimSpace(text)
	for _, pattern := range commandPatterns {
		if m := pattern.FindStringSubmatch(text); m != nil {
			prompt := strings.TrimSpace(m[1])
			if prompt != "" {
				return prompt, true
			}
		}
	}
	return "", false
}
