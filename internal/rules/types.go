package rules

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

type Severity string

type PackType string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

const (
	PackBuiltin   PackType = "builtin"
	PackProject   PackType = "project"
	PackCommunity PackType = "community"
	PackImported  PackType = "imported"
)

const (
	LocRequestBody     = "request.body"
	LocRequestHeaders  = "request.headers"
	LocRequestURL      = "request.url"
	LocRequestQuery    = "request.query"
	LocRequestCookies  = "request.cookies"
	LocResponseBody    = "response.body"
	LocResponseHeaders = "response.headers"
)

const DefaultConfidence = 60

var ErrRuleNotFound = errors.New("rule not found")

var knownLocations = map[string]struct{}{
	LocRequestBody:     {},
	LocRequestHeaders:  {},
	LocRequestURL:      {},
	LocRequestQuery:    {},
	LocRequestCookies:  {},
	LocResponseBody:    {},
	LocResponseHeaders: {},
}

// IsKnownLocation reports whether loc names a text field extracted from an exchange.
func IsKnownLocation(loc string) bool {
	_, ok := knownLocations[loc]
	return ok
}

func ParseSeverity(value string) (Severity, bool) {
	switch s := Severity(strings.ToLower(strings.TrimSpace(value))); s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return s, true
	default:
		return "", false
	}
}

// SeverityFromCVSS maps a CVSS base score onto the severity scale.
func SeverityFromCVSS(cvss *float64) Severity {
	if cvss == nil {
		return SeverityInfo
	}
	switch score := *cvss; {
	case score >= 9.0:
		return SeverityCritical
	case score >= 7.0:
		return SeverityHigh
	case score >= 4.0:
		return SeverityMedium
	case score > 0.0:
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// Gates holds the false-positive gate switches and their per-rule overrides.
type Gates struct {
	ContextGate     bool
	ContentTypeGate bool
	MinifiedGate    bool
	StatusGate      bool

	AllowErrorResponses  bool
	AllowRedirects       bool
	AllowBinaryContent   bool
	AllowMinifiedContent bool
	AllowMinifiedJS      bool
	AllowLargeResponses  bool
}

func DefaultGates() Gates {
	return Gates{
		ContextGate:     true,
		ContentTypeGate: true,
		MinifiedGate:    true,
		StatusGate:      true,
	}
}

// PackInfo is the provenance stamped onto every rule loaded from a pack.
type PackInfo struct {
	Name    string
	Version string
	Path    string
	Type    PackType
}

type Rule struct {
	ID         string
	Title      string
	Regex      string
	Where      []string
	Severity   Severity
	Confidence int
	CWE        string
	CVSS       *float64
	Tags       []string
	Enabled    bool
	Gates      Gates

	PackName    string
	PackVersion string
	PackPath    string
	PackType    PackType

	compiled   *regexp.Regexp
	categories categorySet
}

// EffectiveSeverity returns the declared severity, or the CVSS-derived one when unset.
func (r *Rule) EffectiveSeverity() Severity {
	if r.Severity != "" {
		return r.Severity
	}
	return SeverityFromCVSS(r.CVSS)
}

func (r *Rule) Pattern() *regexp.Regexp {
	return r.compiled
}

func (r *Rule) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone copies the rule, sharing the compiled pattern.
func (r *Rule) Clone() *Rule {
	out := *r
	out.Where = append([]string(nil), r.Where...)
	out.Tags = append([]string(nil), r.Tags...)
	if r.CVSS != nil {
		cvss := *r.CVSS
		out.CVSS = &cvss
	}
	return &out
}

type Request struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Cookies map[string]string `json:"cookies"`
	Query   map[string]any    `json:"query"`
	JSON    any               `json:"json,omitempty"`
	Data    any               `json:"data,omitempty"`
}

type Response struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

type Exchange struct {
	Request  Request  `json:"request"`
	Response Response `json:"response"`
}

type Finding struct {
	ID         string      `json:"id"`
	DetectedAt time.Time   `json:"detected_at"`
	DetectorID string      `json:"detector_id"`
	Title      string      `json:"title"`
	Severity   Severity    `json:"severity"`
	Confidence int         `json:"confidence"`
	CWE        string      `json:"cwe,omitempty"`
	CVSS       *float64    `json:"cvss,omitempty"`
	Evidence   string      `json:"evidence"`
	Tags       []string    `json:"tags"`
	Meta       FindingMeta `json:"meta"`
}

type FindingMeta struct {
	Where           string `json:"where"`
	Regex           string `json:"regex"`
	PackName        string `json:"pack_name"`
	PackVersion     string `json:"pack_version,omitempty"`
	PackPath        string `json:"pack_path"`
	PatternID       string `json:"pattern_id"`
	MatchedFragment string `json:"matched_fragment"`
	ContextSnippet  string `json:"context_snippet"`
	RequestSnippet  string `json:"request_snippet"`
	MatchPosition   int    `json:"match_position"`
	MatchLength     int    `json:"match_length"`
	ResponseStatus  int    `json:"response_status"`
	ContentType     string `json:"content_type"`
	RequestMethod   string `json:"request_method"`
	RequestURL      string `json:"request_url"`
}

// TextMatch is an ungated hit produced by DetectText.
type TextMatch struct {
	RuleID   string   `json:"rule_id"`
	Title    string   `json:"title"`
	Severity Severity `json:"severity"`
	Match    string   `json:"match"`
	Position int      `json:"position"`
}

type Stats struct {
	Total      int              `json:"total"`
	Enabled    int              `json:"enabled"`
	Disabled   int              `json:"disabled"`
	ByPack     map[string]int   `json:"by_pack"`
	BySeverity map[Severity]int `json:"by_severity"`
	ByCWE      map[string]int   `json:"by_cwe"`
	CacheSize  int              `json:"cache_size"`
	LastReload time.Time        `json:"last_reload"`
}
