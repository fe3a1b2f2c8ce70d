package rules

import "strings"

const (
	shortMatchLen      = 50
	longMatchLen       = 200
	denseFieldLen      = 1000
	denseFieldMinWords = 50
)

// enhancedConfidence adjusts a rule's base confidence using properties of the
// match and the exchange it came from.
func enhancedConfidence(rule *Rule, h hit, req Request, res Response) int {
	confidence := rule.Confidence

	switch n := runeLen(h.matched); {
	case n < shortMatchLen:
		confidence += 10
	case n > longMatchLen:
		confidence -= 15
	}

	if reflectedInQuery(h.matched, req.Query) {
		confidence += 15
	}
	if reflectedInBody(h.matched, requestBody(req)) {
		confidence += 15
	}

	switch {
	case res.Status >= 200 && res.Status < 300:
		confidence += 5
	case res.Status >= 400:
		confidence -= 10
	}

	ct := contentType(res)
	if strings.Contains(ct, "application/json") {
		confidence += 5
	}
	if strings.Contains(ct, "text/html") {
		confidence -= 5
	}

	if runeLen(h.field) > denseFieldLen && len(strings.Fields(h.field)) < denseFieldMinWords {
		confidence -= 20
	}

	return clampInt(confidence, 0, 100)
}

func reflectedInQuery(matched string, query map[string]any) bool {
	for _, value := range query {
		for _, s := range queryValues(value) {
			if strings.Contains(s, matched) {
				return true
			}
		}
	}
	return false
}

func reflectedInBody(matched string, body any) bool {
	obj, ok := body.(map[string]any)
	if !ok {
		return false
	}
	for _, value := range obj {
		if s, ok := value.(string); ok && strings.Contains(s, matched) {
			return true
		}
	}
	return false
}
