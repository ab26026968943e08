package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var citationPattern = regexp.MustCompile(`(?i)\barticle\s+(\d+[A-Za-z0-9/-]*)`)

// ScanCitations returns "Article <number>" for every citation in text, in
// first occurrence order with duplicates kept
func ScanCitations(text string) []string {
	matches := citationPattern.FindAllStringSubmatch(text, -1)
	citations := make([]string, 0, len(matches))
	for _, m := range matches {
		citations = append(citations, "Article "+m[1])
	}
	return citations
}

// stripCodeFence removes a surrounding ``` block if the text starts with one
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	var lines []string
	inBlock := false
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inBlock = !inBlock
			continue
		}
		if inBlock {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func extractBetween(text string, open, close string) (string, error) {
	text = stripCodeFence(text)
	start := strings.Index(text, open)
	end := strings.LastIndex(text, close)
	if start == -1 || end == -1 || start >= end {
		return "", fmt.Errorf("%w: no JSON %s%s found", ErrMalformedResponse, open, close)
	}
	return text[start : end+1], nil
}

// DecodeJSONObject decodes the span between the first '{' and the last '}'
// of text into v
func DecodeJSONObject(text string, v any) error {
	raw, err := extractBetween(text, "{", "}")
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// DecodeJSONArray decodes the span between the first '[' and the last ']'
// of text into v
func DecodeJSONArray(text string, v any) error {
	raw, err := extractBetween(text, "[", "]")
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// truncatePrompt cuts prompt to at most limit bytes on a rune boundary and
// marks the cut
func truncatePrompt(prompt string, limit int) string {
	if len(prompt) <= limit {
		return prompt
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(prompt[cut]) {
		cut--
	}
	return prompt[:cut] + "\n\n[Content truncated due to length...]"
}
