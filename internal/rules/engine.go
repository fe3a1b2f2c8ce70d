package rules

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// Engine loads rule packs from a directory and evaluates them against HTTP
// exchanges. It performs no locking: Reload, Detect and TogglePattern on the
// same instance must be serialized by the caller.
type Engine struct {
	dir        string
	rules      []*Rule
	cache      *regexCache
	log        logrus.FieldLogger
	observer   Observer
	now        func() time.Time
	lastReload time.Time
}

type Option func(*Engine)

func WithLogger(logger logrus.FieldLogger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.log = logger
		}
	}
}

func WithObserver(observer Observer) Option {
	return func(e *Engine) {
		if observer != nil {
			e.observer = observer
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func NewEngine(dir string, opts ...Option) *Engine {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	e := &Engine{
		dir:      dir,
		cache:    newRegexCache(),
		log:      quiet,
		observer: nopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Dir() string {
	return e.dir
}

func (e *Engine) Logger() logrus.FieldLogger {
	return e.log
}

// Reload rebuilds the rule set from the pack directory and swaps it in. The
// previous set and the regex cache are discarded. Later duplicates of a rule id
// are dropped.
func (e *Engine) Reload() error {
	e.cache.reset()

	loaded, err := e.LoadDir(e.dir, PackBuiltin)

	seen := make(map[string]struct{}, len(loaded))
	next := make([]*Rule, 0, len(loaded))
	for _, rule := range loaded {
		if rule.ID != "" {
			if _, dup := seen[rule.ID]; dup {
				e.log.WithFields(logrus.Fields{"rule_id": rule.ID, "pack": rule.PackName}).Warn("dropping duplicate rule id")
				e.observer.RuleSkipped(SkipDuplicate)
				continue
			}
			seen[rule.ID] = struct{}{}
		}
		next = append(next, rule)
	}

	e.rules = next
	e.lastReload = e.now()
	e.observer.Reloaded()
	e.observer.RulesInstalled(next)
	e.log.WithFields(logrus.Fields{"dir": e.dir, "rules": len(next)}).Info("rule packs reloaded")

	return err
}

// Replace installs an already-compiled rule set, as assembled by a composer.
func (e *Engine) Replace(rules []*Rule) {
	e.rules = append([]*Rule(nil), rules...)
	e.observer.RulesInstalled(e.rules)
}

func (e *Engine) Rules() []*Rule {
	return append([]*Rule(nil), e.rules...)
}

func (e *Engine) Rule(id string) (*Rule, bool) {
	if id == "" {
		return nil, false
	}
	for _, rule := range e.rules {
		if rule.ID == id {
			return rule, true
		}
	}
	return nil, false
}

// TogglePattern enables or disables a loaded rule in place.
func (e *Engine) TogglePattern(id string, enabled bool) bool {
	rule, ok := e.Rule(id)
	if !ok {
		return false
	}
	rule.Enabled = enabled
	return true
}

func (e *Engine) LastReload() time.Time {
	return e.lastReload
}

func (e *Engine) CacheSize() int {
	return e.cache.len()
}

func (e *Engine) Stats() Stats {
	stats := Stats{
		ByPack:     map[string]int{},
		BySeverity: map[Severity]int{},
		ByCWE:      map[string]int{},
		CacheSize:  e.cache.len(),
		LastReload: e.lastReload,
	}
	for _, rule := range e.rules {
		stats.Total++
		if rule.Enabled {
			stats.Enabled++
		} else {
			stats.Disabled++
		}
		stats.ByPack[rule.PackName]++
		stats.BySeverity[rule.EffectiveSeverity()]++
		cwe := rule.CWE
		if cwe == "" {
			cwe = "unknown"
		}
		stats.ByCWE[cwe]++
	}
	return stats
}

// DetectText runs every enabled rule against text without gating or scoring.
func (e *Engine) DetectText(text string) []TextMatch {
	var out []TextMatch
	for _, rule := range e.rules {
		if !rule.Enabled {
			continue
		}
		start, end, ok := locate(rule.compiled, text)
		if !ok {
			continue
		}
		out = append(out, TextMatch{
			RuleID:   rule.ID,
			Title:    rule.Title,
			Severity: rule.EffectiveSeverity(),
			Match:    truncate(text[start:end], maxEvidence),
			Position: start,
		})
	}
	return out
}
