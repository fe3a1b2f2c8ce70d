package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rulescan/rulescan/internal/rules"
)

func TestMetricsObserveEngineEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	engine := rules.NewEngine(t.TempDir(), rules.WithObserver(metrics.Project("shop")))
	if err := engine.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	rule, problems := engine.BuildRule(rules.RawRule{"id": "pw", "title": "Password", "regex": "password"}, rules.PackInfo{Type: rules.PackCommunity})
	if len(problems) > 0 {
		t.Fatalf("build rule: %v", problems)
	}
	engine.Replace([]*rules.Rule{rule})

	engine.Detect(rules.Request{}, rules.Response{Status: 200, Body: "password"})
	engine.Detect(rules.Request{}, rules.Response{Status: 500, Body: "password"})
	metrics.RuleSkipped(rules.SkipInvalid)
	metrics.PackSkipped("broken.json")
	metrics.ExchangeCaptured("shop", 200)
	metrics.DetectObserved(time.Millisecond)

	if got := testutil.ToFloat64(metrics.reloadsTotal); got != 1 {
		t.Fatalf("expected 1 reload, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.findingsTotal.WithLabelValues("pw", "info")); got != 1 {
		t.Fatalf("expected 1 finding, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.gateRejectionsTotal.WithLabelValues(rules.GateErrorStatus)); got != 1 {
		t.Fatalf("expected 1 error_status rejection, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.rulesLoaded.WithLabelValues("shop", "community")); got != 1 {
		t.Fatalf("expected 1 community rule, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.ruleErrorsTotal.WithLabelValues("pack")); got != 1 {
		t.Fatalf("expected 1 pack error, got %v", got)
	}
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("expected metrics gather to succeed: %v", err)
	}
}

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	metrics.Reloaded()

	rec := httptest.NewRecorder()
	metrics.Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "rulescan_reloads_total 1") {
		t.Fatalf("expected reload counter in exposition, got %s", body)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var metrics *Metrics
	metrics.Reloaded()
	metrics.FindingEmitted(rules.Finding{})
	metrics.ExchangeCaptured("p", 200)
}
