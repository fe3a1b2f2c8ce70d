package composer

import (
	"strings"

	"github.com/rulescan/rulescan/internal/rules"
)

// Filter selects rules. Zero-valued criteria are ignored; all others must hold.
type Filter struct {
	Severity      rules.Severity
	CWE           string
	ConfidenceMin *int
	ConfidenceMax *int
	// Tags matches rules carrying any of the listed tags.
	Tags     []string
	PackType rules.PackType
	// PackName is a case-insensitive substring.
	PackName string
}

func (f Filter) matches(rule *rules.Rule) bool {
	if f.Severity != "" && rule.EffectiveSeverity() != f.Severity {
		return false
	}
	if f.CWE != "" && !strings.EqualFold(rule.CWE, f.CWE) {
		return false
	}
	if f.ConfidenceMin != nil && rule.Confidence < *f.ConfidenceMin {
		return false
	}
	if f.ConfidenceMax != nil && rule.Confidence > *f.ConfidenceMax {
		return false
	}
	if len(f.Tags) > 0 && !hasAnyTag(rule, f.Tags) {
		return false
	}
	if f.PackType != "" && rule.PackType != f.PackType {
		return false
	}
	if f.PackName != "" && !strings.Contains(strings.ToLower(rule.PackName), strings.ToLower(f.PackName)) {
		return false
	}
	return true
}

func hasAnyTag(rule *rules.Rule, tags []string) bool {
	for _, tag := range tags {
		if rule.HasTag(tag) {
			return true
		}
	}
	return false
}

func (c *Composer) Filter(f Filter) []*rules.Rule {
	var out []*rules.Rule
	for _, rule := range c.engine.Rules() {
		if f.matches(rule) {
			out = append(out, rule)
		}
	}
	return out
}

type TierTotals struct {
	Builtin   int `json:"builtin"`
	Project   int `json:"project"`
	Community int `json:"community"`
	Imported  int `json:"imported"`
}

type AdvancedStats struct {
	rules.Stats
	ByPackType   map[rules.PackType]int `json:"by_pack_type"`
	ByConfidence map[string]int         `json:"by_confidence"`
	ByTag        map[string]int         `json:"by_tag"`
	Tiers        TierTotals             `json:"tiers"`
}

var confidenceBuckets = []struct {
	label  string
	lo, hi int
}{
	{"0-49", 0, 49},
	{"50-69", 50, 69},
	{"70-89", 70, 89},
	{"90-100", 90, 100},
}

func confidenceBucket(confidence int) string {
	for _, b := range confidenceBuckets {
		if confidence >= b.lo && confidence <= b.hi {
			return b.label
		}
	}
	return confidenceBuckets[0].label
}

func (c *Composer) AdvancedStats() AdvancedStats {
	stats := AdvancedStats{
		Stats:        c.engine.Stats(),
		ByPackType:   map[rules.PackType]int{},
		ByConfidence: map[string]int{},
		ByTag:        map[string]int{},
	}
	for _, b := range confidenceBuckets {
		stats.ByConfidence[b.label] = 0
	}

	for _, rule := range c.engine.Rules() {
		stats.ByPackType[rule.PackType]++
		stats.ByConfidence[confidenceBucket(rule.Confidence)]++
		for _, tag := range rule.Tags {
			stats.ByTag[tag]++
		}
		switch rule.PackType {
		case rules.PackBuiltin:
			stats.Tiers.Builtin++
		case rules.PackProject:
			stats.Tiers.Project++
		case rules.PackCommunity:
			stats.Tiers.Community++
		case rules.PackImported:
			stats.Tiers.Imported++
		}
	}
	return stats
}
