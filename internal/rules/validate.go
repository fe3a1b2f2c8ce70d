package rules

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	cwePattern    = regexp.MustCompile(`(?i)^CWE-\d+$`)
	digitsPattern = regexp.MustCompile(`^\d+$`)
)

// ValidateRule checks a raw rule against the pack schema. An empty result means
// the rule can be compiled and loaded.
func ValidateRule(raw RawRule) []string {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	regex, ok := raw.str("regex")
	switch {
	case !raw.present("regex"):
		add("regex is required")
	case !ok:
		add("regex must be a string")
	case strings.TrimSpace(regex) == "":
		add("regex is required")
	default:
		if _, err := regexp.Compile(caseInsensitive(regex)); err != nil {
			add("regex invalid: %v", err)
		}
	}

	title, ok := raw.str("title")
	switch {
	case !raw.present("title"):
		add("title is required")
	case !ok:
		add("title must be a string")
	case strings.TrimSpace(title) == "":
		add("title is required")
	}

	if raw.present("confidence") {
		if c, ok := toNumber(raw["confidence"]); !ok {
			add("confidence must be a number")
		} else if c < 0 || c > 100 {
			add("confidence must be between 0 and 100")
		}
	}

	if raw.present("cwe") {
		if _, ok := normalizeCWE(raw["cwe"]); !ok {
			add("cwe must look like CWE-<id> or a bare number, got %v", raw["cwe"])
		}
	}

	if raw.present("cvss") {
		if c, ok := toNumber(raw["cvss"]); !ok {
			add("cvss must be a number")
		} else if c < 0 || c > 10 {
			add("cvss must be between 0.0 and 10.0")
		}
	}

	if raw.present("severity") {
		s, ok := raw.str("severity")
		if !ok {
			add("severity must be a string")
		} else if _, ok := ParseSeverity(s); !ok {
			add("severity must be critical|high|medium|low|info, got %q", s)
		}
	}

	if _, ok := raw.stringList("where"); !ok {
		add("where must be a string or a list of strings")
	}
	if _, ok := raw.stringList("tags"); !ok {
		add("tags must be a list of strings")
	}

	return problems
}
