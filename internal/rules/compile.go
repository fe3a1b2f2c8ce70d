package rules

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// BuildRule validates and compiles a raw rule using the engine's regex cache.
// It returns the validation problems when the rule cannot be loaded.
func (e *Engine) BuildRule(raw RawRule, pack PackInfo) (*Rule, []string) {
	if problems := ValidateRule(raw); len(problems) > 0 {
		return nil, problems
	}
	regex, _ := raw.str("regex")
	re, err := e.cache.compile(regex)
	if err != nil {
		return nil, []string{fmt.Sprintf("regex invalid: %v", err)}
	}
	return buildRule(raw, re, pack), nil
}

func buildRule(raw RawRule, re *regexp.Regexp, pack PackInfo) *Rule {
	regex, _ := raw.str("regex")
	title, _ := raw.str("title")

	rule := &Rule{
		ID:          strings.TrimSpace(raw.ID()),
		Title:       strings.TrimSpace(title),
		Regex:       regex,
		Where:       whereList(raw),
		Confidence:  DefaultConfidence,
		Enabled:     true,
		PackName:    pack.Name,
		PackVersion: pack.Version,
		PackPath:    pack.Path,
		PackType:    pack.Type,
		compiled:    re,
	}

	if s, ok := raw.str("severity"); ok {
		rule.Severity, _ = ParseSeverity(s)
	}
	if raw.present("confidence") {
		if c, ok := toNumber(raw["confidence"]); ok {
			rule.Confidence = clampInt(int(c), 0, 100)
		}
	}
	if raw.present("cwe") {
		rule.CWE, _ = normalizeCWE(raw["cwe"])
	}
	if raw.present("cvss") {
		if c, ok := toNumber(raw["cvss"]); ok {
			cvss := math.Min(math.Max(c, 0), 10)
			rule.CVSS = &cvss
		}
	}
	if tags, ok := raw.stringList("tags"); ok {
		rule.Tags = uniqueStrings(tags)
	}

	defaults := DefaultGates()
	rule.Gates = Gates{
		ContextGate:          raw.flag("context_gate", defaults.ContextGate),
		ContentTypeGate:      raw.flag("content_type_gate", defaults.ContentTypeGate),
		MinifiedGate:         raw.flag("minified_gate", defaults.MinifiedGate),
		StatusGate:           raw.flag("status_gate", defaults.StatusGate),
		AllowErrorResponses:  raw.flag("allow_error_responses", false),
		AllowRedirects:       raw.flag("allow_redirects", false),
		AllowBinaryContent:   raw.flag("allow_binary_content", false),
		AllowMinifiedContent: raw.flag("allow_minified_content", false),
		AllowMinifiedJS:      raw.flag("allow_minified_js", false),
		AllowLargeResponses:  raw.flag("allow_large_responses", false),
	}
	rule.categories = categorize(rule.ID, rule.Title)

	return rule
}

func whereList(raw RawRule) []string {
	where, _ := raw.stringList("where")
	out := make([]string, 0, len(where))
	for _, loc := range where {
		loc = strings.TrimSpace(loc)
		if loc != "" {
			out = append(out, loc)
		}
	}
	if len(out) == 0 {
		return []string{LocResponseBody}
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
