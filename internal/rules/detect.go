package rules

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type hit struct {
	where   string
	field   string
	matched string
	start   int
	end     int
}

func (e *Engine) DetectExchange(ex Exchange) []Finding {
	return e.Detect(ex.Request, ex.Response)
}

// Detect evaluates every enabled rule against one exchange. Each rule reports
// at most once: the first where-location that matches is gated, and a rejected
// match is not retried against later locations.
func (e *Engine) Detect(req Request, res Response) []Finding {
	started := time.Now()
	defer func() { e.observer.DetectObserved(time.Since(started)) }()

	fields := extractFields(req, res)
	var findings []Finding
	for _, rule := range e.rules {
		if !rule.Enabled {
			continue
		}
		h, ok := firstHit(rule, fields)
		if !ok {
			continue
		}
		finding, ok := e.evaluate(rule, h, req, res)
		if !ok {
			continue
		}
		e.observer.FindingEmitted(finding)
		findings = append(findings, finding)
	}
	return findings
}

func firstHit(rule *Rule, fields map[string]string) (hit, bool) {
	for _, where := range rule.Where {
		text := fields[where]
		if text == "" {
			continue
		}
		start, end, ok := locate(rule.compiled, text)
		if !ok {
			continue
		}
		return hit{where: where, field: text, matched: text[start:end], start: start, end: end}, true
	}
	return hit{}, false
}

func (e *Engine) evaluate(rule *Rule, h hit, req Request, res Response) (finding Finding, ok bool) {
	logger := e.log.WithFields(logrus.Fields{"rule_id": rule.ID, "where": h.where})
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", fmt.Sprint(r)).Error("match evaluation failed; finding suppressed")
			e.observer.MatchRejected(rule.ID, GateError)
			finding, ok = Finding{}, false
		}
	}()

	if gate := shouldReport(rule, h, res); gate != "" {
		logger.WithField("gate", gate).Debug("match rejected by gate")
		e.observer.MatchRejected(rule.ID, gate)
		return Finding{}, false
	}

	return e.newFinding(rule, h, enhancedConfidence(rule, h, req, res), req, res), true
}

func (e *Engine) newFinding(rule *Rule, h hit, confidence int, req Request, res Response) Finding {
	var cvss *float64
	if rule.CVSS != nil {
		v := *rule.CVSS
		cvss = &v
	}
	return Finding{
		ID:         uuid.NewString(),
		DetectedAt: e.now().UTC(),
		DetectorID: rule.ID,
		Title:      rule.Title,
		Severity:   rule.EffectiveSeverity(),
		Confidence: confidence,
		CWE:        rule.CWE,
		CVSS:       cvss,
		Evidence:   truncate(h.matched, maxEvidence),
		Tags:       append([]string{}, rule.Tags...),
		Meta: FindingMeta{
			Where:           h.where,
			Regex:           rule.Regex,
			PackName:        rule.PackName,
			PackVersion:     rule.PackVersion,
			PackPath:        rule.PackPath,
			PatternID:       rule.ID,
			MatchedFragment: truncate(h.matched, maxEvidence),
			ContextSnippet:  contextSnippet(h.field, h.start, h.end),
			RequestSnippet:  requestSnippet(req),
			MatchPosition:   h.start,
			MatchLength:     h.end - h.start,
			ResponseStatus:  res.Status,
			ContentType:     contentType(res),
			RequestMethod:   req.Method,
			RequestURL:      req.URL,
		},
	}
}
