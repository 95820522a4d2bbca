package llm

import "strings"

// CleanCompletion strips the markdown code fences some models wrap JSON
// responses in and trims surrounding whitespace. Content without fences
// passes through unchanged.
func CleanCompletion(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
