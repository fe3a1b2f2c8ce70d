package rules

import (
	"strings"
	"unicode/utf8"
)

const (
	maxEvidence       = 2048
	contextRadius     = 100
	maxRequestSnippet = 500
)

// truncate cuts value to at most max characters.
func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	count := 0
	for i := range value {
		if count == max {
			return value[:i]
		}
		count++
	}
	return value
}

// contextSnippet returns the match with up to contextRadius characters either side.
func contextSnippet(text string, start, end int) string {
	from := start
	for i := 0; i < contextRadius && from > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(text[:from])
		from -= size
	}
	to := end
	for i := 0; i < contextRadius && to < len(text); i++ {
		_, size := utf8.DecodeRuneInString(text[to:])
		to += size
	}
	return text[from:to]
}

func requestSnippet(req Request) string {
	line := strings.TrimSpace(req.Method + " " + req.URL)
	body := requestBodyText(req)
	if body == "" {
		return line
	}
	return line + "\n" + truncate(body, maxRequestSnippet)
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
