package rules

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// RawRule is a rule object as decoded from a pack, an import file, or an adapter,
// before validation.
type RawRule map[string]any

// RuleSpec is the serialized Rule-JSON shape written by exports and pack files.
type RuleSpec struct {
	ID         string   `json:"id" yaml:"id"`
	Title      string   `json:"title" yaml:"title"`
	Regex      string   `json:"regex" yaml:"regex"`
	Where      []string `json:"where" yaml:"where"`
	Severity   string   `json:"severity,omitempty" yaml:"severity,omitempty"`
	Confidence int      `json:"confidence" yaml:"confidence"`
	CWE        string   `json:"cwe,omitempty" yaml:"cwe,omitempty"`
	CVSS       *float64 `json:"cvss,omitempty" yaml:"cvss,omitempty"`
	Tags       []string `json:"tags" yaml:"tags"`
	Enabled    bool     `json:"enabled" yaml:"enabled"`

	ContextGate          bool `json:"context_gate" yaml:"context_gate"`
	ContentTypeGate      bool `json:"content_type_gate" yaml:"content_type_gate"`
	MinifiedGate         bool `json:"minified_gate" yaml:"minified_gate"`
	StatusGate           bool `json:"status_gate" yaml:"status_gate"`
	AllowErrorResponses  bool `json:"allow_error_responses" yaml:"allow_error_responses"`
	AllowRedirects       bool `json:"allow_redirects" yaml:"allow_redirects"`
	AllowBinaryContent   bool `json:"allow_binary_content" yaml:"allow_binary_content"`
	AllowMinifiedContent bool `json:"allow_minified_content" yaml:"allow_minified_content"`
	AllowMinifiedJS      bool `json:"allow_minified_js" yaml:"allow_minified_js"`
	AllowLargeResponses  bool `json:"allow_large_responses" yaml:"allow_large_responses"`

	PackName    string `json:"pack_name,omitempty" yaml:"pack_name,omitempty"`
	PackVersion string `json:"pack_version,omitempty" yaml:"pack_version,omitempty"`
	PackPath    string `json:"pack_path,omitempty" yaml:"pack_path,omitempty"`
	PackType    string `json:"pack_type,omitempty" yaml:"pack_type,omitempty"`
}

// PackFile is the on-disk rule pack.
type PackFile struct {
	Name        string     `json:"name"`
	Version     string     `json:"version,omitempty"`
	Description string     `json:"description,omitempty"`
	Rules       []RuleSpec `json:"rules"`
}

func (r *Rule) Spec() RuleSpec {
	return RuleSpec{
		ID:                   r.ID,
		Title:                r.Title,
		Regex:                r.Regex,
		Where:                append([]string(nil), r.Where...),
		Severity:             string(r.Severity),
		Confidence:           r.Confidence,
		CWE:                  r.CWE,
		CVSS:                 r.Clone().CVSS,
		Tags:                 append([]string{}, r.Tags...),
		Enabled:              r.Enabled,
		ContextGate:          r.Gates.ContextGate,
		ContentTypeGate:      r.Gates.ContentTypeGate,
		MinifiedGate:         r.Gates.MinifiedGate,
		StatusGate:           r.Gates.StatusGate,
		AllowErrorResponses:  r.Gates.AllowErrorResponses,
		AllowRedirects:       r.Gates.AllowRedirects,
		AllowBinaryContent:   r.Gates.AllowBinaryContent,
		AllowMinifiedContent: r.Gates.AllowMinifiedContent,
		AllowMinifiedJS:      r.Gates.AllowMinifiedJS,
		AllowLargeResponses:  r.Gates.AllowLargeResponses,
		PackName:             r.PackName,
		PackVersion:          r.PackVersion,
		PackPath:             r.PackPath,
		PackType:             string(r.PackType),
	}
}

// Raw converts a spec back into the loose form accepted by the validators.
func (s RuleSpec) Raw() RawRule {
	data, err := json.Marshal(s)
	if err != nil {
		return RawRule{}
	}
	var raw RawRule
	if err := json.Unmarshal(data, &raw); err != nil {
		return RawRule{}
	}
	return raw
}

func (r RawRule) ID() string {
	if id, ok := r["id"].(string); ok {
		return id
	}
	if r["id"] != nil {
		return fmt.Sprint(r["id"])
	}
	return ""
}

func (r RawRule) present(key string) bool {
	v, ok := r[key]
	return ok && v != nil
}

func (r RawRule) str(key string) (string, bool) {
	v, ok := r[key].(string)
	return v, ok
}

func (r RawRule) flag(key string, def bool) bool {
	if v, ok := r[key].(bool); ok {
		return v
	}
	return def
}

// ExplicitlyDisabled reports whether the rule carries enabled: false.
func (r RawRule) ExplicitlyDisabled() bool {
	v, ok := r["enabled"].(bool)
	return ok && !v
}

func (r RawRule) stringList(key string) ([]string, bool) {
	switch v := r[key].(type) {
	case nil:
		return nil, true
	case string:
		return []string{v}, true
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, !math.IsNaN(v)
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// normalizeCWE formats "79", "cwe-79" or 79 as "CWE-79".
func normalizeCWE(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		s := strings.TrimSpace(v)
		if cwePattern.MatchString(s) {
			return "CWE-" + s[strings.Index(s, "-")+1:], true
		}
		if digitsPattern.MatchString(s) {
			return "CWE-" + s, true
		}
		return "", false
	default:
		f, ok := toNumber(v)
		if !ok || f < 0 || f != math.Trunc(f) {
			return "", false
		}
		return "CWE-" + strconv.FormatInt(int64(f), 10), true
	}
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
