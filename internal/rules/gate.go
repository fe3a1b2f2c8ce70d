package rules

import (
	"strings"
	"unicode"
)

// Gate names reported when a match is suppressed.
const (
	GateContext       = "context"
	GateBinary        = "binary_content"
	GateMinifiedJS    = "minified_js"
	GateMinified      = "minified"
	GateErrorStatus   = "error_status"
	GateRedirect      = "redirect"
	GateSize          = "size"
	GateUserInput     = "xss_user_input"
	GateSQLKeyword    = "sql_keyword"
	GatePathTraversal = "path_traversal"
	GateError         = "error"
)

const (
	maxMatchLen      = 1000
	alnumRunCutoff   = 100
	maxFieldLen      = 1_000_000
	maxUserInputLen  = 200
	maxSpecialRatio  = 0.5
	minifiedMinLen   = 1000
	minWhitespace    = 0.01
	minifiedMinLines = 10
	minifiedLineLen  = 200
)

type categorySet struct {
	xss       bool
	sql       bool
	traversal bool
}

var (
	categoryKeywords  = mustAho("xss", "cross-site", "sql", "injection", "path", "traversal")
	traversalLiterals = mustAho("../", `..\`)

	genericSQLKeywords = map[string]struct{}{
		"SELECT": {}, "INSERT": {}, "UPDATE": {}, "DELETE": {}, "WHERE": {}, "FROM": {},
	}

	binaryContentTypes = []string{"image/", "video/", "audio/"}
)

func categorize(id, title string) categorySet {
	found := categoryKeywords.FindAll(strings.ToLower(id + " " + title))
	return categorySet{
		xss:       found["xss"] || found["cross-site"],
		sql:       found["sql"] || found["injection"],
		traversal: found["path"] || found["traversal"],
	}
}

// shouldReport runs the match gate and returns the name of the first gate that
// rejects the match, or "" when the match may be reported.
func shouldReport(rule *Rule, h hit, res Response) string {
	g := rule.Gates

	if g.ContextGate && implausibleMatch(h.matched) {
		return GateContext
	}

	if g.ContentTypeGate {
		ct := contentType(res)
		if isBinaryContentType(ct) && !g.AllowBinaryContent {
			return GateBinary
		}
		if strings.Contains(ct, "javascript") && !g.AllowMinifiedJS && IsMinified(res.Body) {
			return GateMinifiedJS
		}
	}

	if g.MinifiedGate && !g.AllowMinifiedContent && IsMinified(h.field) {
		return GateMinified
	}

	if g.StatusGate {
		if res.Status >= 400 && !g.AllowErrorResponses {
			return GateErrorStatus
		}
		if res.Status >= 300 && res.Status < 400 && !g.AllowRedirects {
			return GateRedirect
		}
	}

	if runeLen(h.field) > maxFieldLen && !g.AllowLargeResponses {
		return GateSize
	}

	if rule.categories.xss && !looksLikeUserInput(h.matched) {
		return GateUserInput
	}
	if rule.categories.sql && isGenericSQLKeyword(h.matched) {
		return GateSQLKeyword
	}
	if rule.categories.traversal {
		if found, _ := traversalLiterals.Match(h.matched); !found {
			return GatePathTraversal
		}
	}

	return ""
}

func implausibleMatch(m string) bool {
	n := runeLen(m)
	if n > maxMatchLen {
		return true
	}
	if n > alnumRunCutoff && isAlnum(strings.ReplaceAll(m, " ", "")) {
		return true
	}
	return hashShaped(m)
}

// hashShaped matches UUIDs and MD5/SHA1/SHA256-length tokens.
func hashShaped(m string) bool {
	stripped := strings.ReplaceAll(m, "-", "")
	if len(stripped) == 32 && isHex(stripped) {
		return true
	}
	n := runeLen(m)
	return (n == 40 || n == 64) && isAlnum(m)
}

func looksLikeUserInput(m string) bool {
	n := runeLen(m)
	if n == 0 || n > maxUserInputLen {
		return false
	}
	if isDigits(m) || hashShaped(m) {
		return false
	}
	special := 0
	for _, r := range m {
		if isAlnumRune(r) || strings.ContainsRune(" -_", r) {
			continue
		}
		special++
	}
	return float64(special)/float64(n) <= maxSpecialRatio
}

func isGenericSQLKeyword(m string) bool {
	_, ok := genericSQLKeywords[strings.ToUpper(m)]
	return ok
}

func isBinaryContentType(ct string) bool {
	if strings.HasPrefix(ct, "application/octet-stream") || strings.HasPrefix(ct, "application/pdf") {
		return true
	}
	for _, prefix := range binaryContentTypes {
		if strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	return false
}

// IsMinified reports whether text looks like dense machine-generated content.
func IsMinified(text string) bool {
	n := runeLen(text)
	if n < minifiedMinLen {
		return false
	}

	spaces := 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			spaces++
		}
	}
	if float64(spaces)/float64(n) < minWhitespace {
		return true
	}

	lines := strings.Split(text, "\n")
	if len(lines) <= minifiedMinLines {
		return false
	}
	total := 0
	for _, line := range lines {
		total += runeLen(line)
	}
	return float64(total)/float64(len(lines)) > minifiedLineLen
}

func isAlnumRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isAlnum(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !isAlnumRune(r) {
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func isHex(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}
