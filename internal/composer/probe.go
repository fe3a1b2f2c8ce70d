package composer

import (
	"fmt"

	"github.com/rulescan/rulescan/internal/rules"
)

type Span struct {
	Start  int      `json:"start"`
	End    int      `json:"end"`
	Text   string   `json:"text"`
	Groups []string `json:"groups,omitempty"`
}

// LocationResult holds the ungated matches of one where location.
type LocationResult struct {
	Where   string `json:"where"`
	Matched bool   `json:"matched"`
	Matches []Span `json:"matches,omitempty"`
}

// TestPattern runs the addressed rule's regex against text once per where
// location, without gates or scoring.
func (c *Composer) TestPattern(id, text string) ([]LocationResult, error) {
	rule, ok := c.engine.Rule(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", rules.ErrRuleNotFound, id)
	}

	results := make([]LocationResult, 0, len(rule.Where))
	for _, where := range rule.Where {
		result := LocationResult{Where: where}
		for _, loc := range rule.Pattern().FindAllStringSubmatchIndex(text, -1) {
			span := Span{Start: loc[0], End: loc[1], Text: text[loc[0]:loc[1]]}
			for g := 2; g+1 < len(loc); g += 2 {
				if loc[g] < 0 {
					span.Groups = append(span.Groups, "")
					continue
				}
				span.Groups = append(span.Groups, text[loc[g]:loc[g+1]])
			}
			result.Matches = append(result.Matches, span)
		}
		result.Matched = len(result.Matches) > 0
		results = append(results, result)
	}
	return results, nil
}
