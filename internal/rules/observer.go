package rules

import "time"

const (
	SkipInvalid   = "invalid"
	SkipDuplicate = "duplicate"
)

// Observer receives engine events. observability.Metrics implements it.
type Observer interface {
	Reloaded()
	RulesInstalled(rules []*Rule)
	RuleSkipped(reason string)
	PackSkipped(path string)
	MatchRejected(ruleID, gate string)
	FindingEmitted(f Finding)
	DetectObserved(d time.Duration)
}

type nopObserver struct{}

func (nopObserver) Reloaded()                    {}
func (nopObserver) RulesInstalled([]*Rule)       {}
func (nopObserver) RuleSkipped(string)           {}
func (nopObserver) PackSkipped(string)           {}
func (nopObserver) MatchRejected(string, string) {}
func (nopObserver) FindingEmitted(Finding)       {}
func (nopObserver) DetectObserved(time.Duration) {}
