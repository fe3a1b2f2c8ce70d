package rules

import (
	"strings"
	"testing"
)

func TestValidateRule(t *testing.T) {
	cases := []struct {
		name    string
		raw     RawRule
		problem string
	}{
		{"valid", RawRule{"title": "t", "regex": "a+", "cwe": "CWE-79", "cvss": 5.0, "severity": "medium", "confidence": 70.0}, ""},
		{"numeric cwe", RawRule{"title": "t", "regex": "a", "cwe": 89.0}, ""},
		{"bare digit cwe", RawRule{"title": "t", "regex": "a", "cwe": "22"}, ""},
		{"missing regex", RawRule{"title": "t"}, "regex is required"},
		{"blank title", RawRule{"title": "  ", "regex": "a"}, "title is required"},
		{"bad regex", RawRule{"title": "t", "regex": "(unclosed"}, "regex invalid"},
		{"confidence type", RawRule{"title": "t", "regex": "a", "confidence": "high"}, "confidence must be a number"},
		{"confidence range", RawRule{"title": "t", "regex": "a", "confidence": 101.0}, "between 0 and 100"},
		{"cwe format", RawRule{"title": "t", "regex": "a", "cwe": "XSS"}, "cwe must look like"},
		{"cvss range", RawRule{"title": "t", "regex": "a", "cvss": 10.5}, "between 0.0 and 10.0"},
		{"severity enum", RawRule{"title": "t", "regex": "a", "severity": "urgent"}, "severity must be"},
		{"where type", RawRule{"title": "t", "regex": "a", "where": 3.0}, "where must be"},
		{"tags type", RawRule{"title": "t", "regex": "a", "tags": []any{1.0}}, "tags must be"},
	}
	for _, tt := range cases {
		problems := ValidateRule(tt.raw)
		if tt.problem == "" {
			if len(problems) != 0 {
				t.Fatalf("%s: expected valid, got %v", tt.name, problems)
			}
			continue
		}
		found := false
		for _, p := range problems {
			if strings.Contains(p, tt.problem) {
				found = true
			}
		}
		if !found {
			t.Fatalf("%s: expected problem containing %q, got %v", tt.name, tt.problem, problems)
		}
	}
}

func TestBuildRuleClampsAndNormalizes(t *testing.T) {
	rule := mustRule(t, RawRule{
		"id": " r1 ", "title": "t", "regex": "a", "cwe": "cwe-200", "confidence": 72.9,
		"tags": []any{"b", "a", "b", " "}, "where": []any{},
	})
	if rule.ID != "r1" {
		t.Fatalf("expected trimmed id, got %q", rule.ID)
	}
	if rule.CWE != "CWE-200" {
		t.Fatalf("expected CWE-200, got %q", rule.CWE)
	}
	if rule.Confidence != 72 {
		t.Fatalf("expected truncated confidence 72, got %d", rule.Confidence)
	}
	if len(rule.Tags) != 2 || rule.Tags[0] != "b" || rule.Tags[1] != "a" {
		t.Fatalf("expected deduplicated tags, got %v", rule.Tags)
	}
	if len(rule.Where) != 1 || rule.Where[0] != LocResponseBody {
		t.Fatalf("expected empty where to default, got %v", rule.Where)
	}
	if !rule.Pattern().MatchString("AAA") {
		t.Fatalf("expected case-insensitive pattern")
	}
}
