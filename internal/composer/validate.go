package composer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rulescan/rulescan/internal/rules"
)

const lowConfidence = 30

// ValidatePattern is the import-time validator. Errors reject the rule;
// warnings are advisory.
func ValidatePattern(raw rules.RawRule) (errs []string, warnings []string) {
	errs = rules.ValidateRule(raw)

	switch id := raw["id"].(type) {
	case nil:
		errs = append(errs, "id is required")
	case string:
		if strings.TrimSpace(id) == "" {
			errs = append(errs, "id is required")
		}
	default:
		errs = append(errs, "id must be a string")
	}
	if len(errs) > 0 {
		return errs, nil
	}

	where, _ := raw["where"].([]any)
	if s, ok := raw["where"].(string); ok {
		where = []any{s}
	}
	for _, loc := range where {
		if s, _ := loc.(string); !rules.IsKnownLocation(strings.TrimSpace(s)) {
			warnings = append(warnings, fmt.Sprintf("unknown where location %q", s))
		}
	}

	if raw["cwe"] == nil {
		warnings = append(warnings, "cwe is not set")
	}
	if raw["severity"] == nil && raw["cvss"] == nil {
		warnings = append(warnings, "neither severity nor cvss is set; severity will be info")
	}
	if regex, ok := raw["regex"].(string); ok {
		if re, err := regexp.Compile("(?i)" + regex); err == nil && re.MatchString("") {
			warnings = append(warnings, "regex matches the empty string")
		}
	}
	if c, ok := number(raw["confidence"]); ok && c < lowConfidence {
		warnings = append(warnings, fmt.Sprintf("confidence %v is below %d", c, lowConfidence))
	}
	if !hasTags(raw["tags"]) {
		warnings = append(warnings, "no tags")
	}
	return errs, warnings
}

func number(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

func hasTags(value any) bool {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v) != ""
	case []string:
		return len(v) > 0
	case []any:
		return len(v) > 0
	default:
		return false
	}
}
