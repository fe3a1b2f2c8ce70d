package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rulescan/rulescan/internal/logging"
	"github.com/rulescan/rulescan/internal/rules"
)

func record(ts int64, id string, sev rules.Severity, confidence int, cwe, project string, tags ...string) logging.FindingRecord {
	return logging.FindingRecord{
		Finding: rules.Finding{
			DetectedAt: time.Unix(ts, 0).UTC(),
			DetectorID: id,
			Severity:   sev,
			Confidence: confidence,
			CWE:        cwe,
			Tags:       tags,
		},
		Project: project,
	}
}

func TestSummarize(t *testing.T) {
	records := []logging.FindingRecord{
		record(2, "r1", rules.SeverityHigh, 80, "CWE-79", "shop", "xss"),
		record(0, "r1", rules.SeverityHigh, 90, "CWE-79", "shop", "xss", "reflected"),
		record(1, "r2", rules.SeverityInfo, 40, "", "admin"),
	}

	summary := Summarize(records)
	if summary.Total != 3 {
		t.Fatalf("expected total 3, got %d", summary.Total)
	}
	if summary.HighConfidence != 2 {
		t.Fatalf("expected 2 high confidence findings, got %d", summary.HighConfidence)
	}
	if summary.AverageConfidence != 70 {
		t.Fatalf("expected average 70, got %v", summary.AverageConfidence)
	}
	if !summary.Start.Equal(time.Unix(0, 0)) || !summary.End.Equal(time.Unix(2, 0)) {
		t.Fatalf("unexpected window %s - %s", summary.Start, summary.End)
	}
	if len(summary.BySeverity) != 2 || summary.BySeverity[0].Key != "high" || summary.BySeverity[1].Key != "info" {
		t.Fatalf("unexpected severity order %v", summary.BySeverity)
	}
	if len(summary.TopRules) != 2 || summary.TopRules[0].Key != "r1" || summary.TopRules[0].Count != 2 {
		t.Fatalf("expected top rule r1, got %v", summary.TopRules)
	}
	if len(summary.TopCWEs) != 1 || summary.TopCWEs[0].Key != "CWE-79" {
		t.Fatalf("expected only CWE-79, got %v", summary.TopCWEs)
	}
	if len(summary.TopTags) != 2 || summary.TopTags[0].Key != "xss" {
		t.Fatalf("unexpected tags %v", summary.TopTags)
	}
	if summary.TopProjects[0].Key != "shop" {
		t.Fatalf("unexpected projects %v", summary.TopProjects)
	}

	text := RenderText(summary)
	if !strings.Contains(text, "- high: 2") || !strings.Contains(text, "Average confidence: 70.0") {
		t.Fatalf("unexpected text render:\n%s", text)
	}
	if md := RenderMarkdown(summary); !strings.HasPrefix(md, "# Rulescan Report") {
		t.Fatalf("unexpected markdown render:\n%s", md)
	}
}

func TestReaderFiltersSince(t *testing.T) {
	path := filepath.Join(t.TempDir(), "findings.jsonl")
	logger, closeFn, err := logging.OpenFindingLog(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	for _, rec := range []logging.FindingRecord{
		record(100, "old", rules.SeverityLow, 50, "", ""),
		record(200, "new", rules.SeverityLow, 50, "", ""),
	} {
		if err := logger.Write(rec); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reader := Reader{Since: time.Unix(150, 0)}
	records, err := reader.Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(records) != 1 || records[0].DetectorID != "new" {
		t.Fatalf("expected only the newer record, got %v", records)
	}

	if err := os.WriteFile(path, []byte("{not json}\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := reader.Read(path); err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Fatalf("expected line error, got %v", err)
	}
}

func TestRenderEmpty(t *testing.T) {
	if _, err := RenderJSON(Summary{}); err != nil {
		t.Fatalf("expected json render ok: %v", err)
	}
	if text := RenderText(Summarize(nil)); !strings.Contains(text, "Top rules: none") {
		t.Fatalf("expected empty sections, got:\n%s", text)
	}
}
