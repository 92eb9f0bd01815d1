package llm

import (
	"regexp"
	"strings"
)

var (
	codeFenceRe   = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	labelPrefixRe = regexp.MustCompile(`(?i)^\s*(raw json|title|badge|json)\s*:\s*`)
	firstObjectRe = regexp.MustCompile(`(?s)\{.*\}`)
)

// cleanJSON strips the common ways a model wraps a JSON object in prose:
// Markdown code fences, a leading label like "RAW JSON:", and (as a last
// resort) anything outside the first {...} block.
func cleanJSON(raw string) string {
	text := strings.TrimSpace(raw)

	if m := codeFenceRe.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}

	text = labelPrefixRe.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "{") && strings.HasSuffix(text, "}") {
		return text
	}

	if m := firstObjectRe.FindString(text); m != "" {
		return m
	}
	return text
}

// cleanPlainText strips code fences and a leading label from a
// free-text (non-JSON) model response.
func cleanPlainText(raw string) string {
	text := strings.TrimSpace(raw)
	if m := codeFenceRe.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	text = labelPrefixRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
