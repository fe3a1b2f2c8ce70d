package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rulescan/rulescan/internal/rules"
)

// Metrics implements rules.Observer and records proxy traffic.
type Metrics struct {
	findingsTotal       *prometheus.CounterVec
	gateRejectionsTotal *prometheus.CounterVec
	rulesLoaded         *prometheus.GaugeVec
	reloadsTotal        prometheus.Counter
	ruleErrorsTotal     *prometheus.CounterVec
	detectDuration      prometheus.Histogram
	exchangesTotal      *prometheus.CounterVec
}

var _ rules.Observer = (*Metrics)(nil)

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		findingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "rulescan_findings_total", Help: "Total findings emitted"},
			[]string{"rule_id", "severity"},
		),
		gateRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "rulescan_gate_rejections_total", Help: "Matches suppressed by a gate"},
			[]string{"gate"},
		),
		rulesLoaded: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "rulescan_rules_loaded", Help: "Rules currently installed"},
			[]string{"project", "pack_type"},
		),
		reloadsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "rulescan_reloads_total", Help: "Total rule pack reloads"},
		),
		ruleErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "rulescan_rule_errors_total", Help: "Rules or packs skipped while loading"},
			[]string{"kind"},
		),
		detectDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rulescan_detect_duration_seconds",
				Help:    "Time spent evaluating one exchange",
				Buckets: prometheus.DefBuckets,
			},
		),
		exchangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "rulescan_exchanges_total", Help: "Exchanges captured by the proxy"},
			[]string{"project", "code"},
		),
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.findingsTotal,
		m.gateRejectionsTotal,
		m.rulesLoaded,
		m.reloadsTotal,
		m.ruleErrorsTotal,
		m.detectDuration,
		m.exchangesTotal,
	)

	return m
}

func (m *Metrics) Handler(reg *prometheus.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func (m *Metrics) Reloaded() {
	if m == nil {
		return
	}
	m.reloadsTotal.Inc()
}

func (m *Metrics) RulesInstalled(ruleset []*rules.Rule) {
	m.rulesInstalled("", ruleset)
}

func (m *Metrics) rulesInstalled(project string, ruleset []*rules.Rule) {
	if m == nil {
		return
	}
	counts := map[rules.PackType]int{}
	for _, rule := range ruleset {
		counts[rule.PackType]++
	}
	m.rulesLoaded.DeletePartialMatch(prometheus.Labels{"project": project})
	for packType, n := range counts {
		m.rulesLoaded.WithLabelValues(project, string(packType)).Set(float64(n))
	}
}

// Project returns an observer that labels installed rule counts with project.
func (m *Metrics) Project(project string) rules.Observer {
	return projectObserver{Metrics: m, project: project}
}

type projectObserver struct {
	*Metrics
	project string
}

func (o projectObserver) RulesInstalled(ruleset []*rules.Rule) {
	o.rulesInstalled(o.project, ruleset)
}

func (m *Metrics) RuleSkipped(reason string) {
	if m == nil {
		return
	}
	m.ruleErrorsTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) PackSkipped(string) {
	if m == nil {
		return
	}
	m.ruleErrorsTotal.WithLabelValues("pack").Inc()
}

func (m *Metrics) MatchRejected(_ string, gate string) {
	if m == nil {
		return
	}
	m.gateRejectionsTotal.WithLabelValues(gate).Inc()
}

func (m *Metrics) FindingEmitted(f rules.Finding) {
	if m == nil {
		return
	}
	m.findingsTotal.WithLabelValues(f.DetectorID, string(f.Severity)).Inc()
}

func (m *Metrics) DetectObserved(d time.Duration) {
	if m == nil {
		return
	}
	m.detectDuration.Observe(d.Seconds())
}

func (m *Metrics) ExchangeCaptured(project string, status int) {
	if m == nil {
		return
	}
	m.exchangesTotal.WithLabelValues(project, strconv.Itoa(status)).Inc()
}
