package report

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rulescan/rulescan/internal/logging"
	"github.com/rulescan/rulescan/internal/rules"
)

const highConfidence = 70

type Summary struct {
	Total             int         `json:"total"`
	HighConfidence    int         `json:"high_confidence"`
	AverageConfidence float64     `json:"average_confidence"`
	Start             time.Time   `json:"start"`
	End               time.Time   `json:"end"`
	BySeverity        []CountItem `json:"by_severity"`
	TopRules          []CountItem `json:"top_rules"`
	TopCWEs           []CountItem `json:"top_cwes"`
	TopTags           []CountItem `json:"top_tags"`
	TopProjects       []CountItem `json:"top_projects"`
}

type CountItem struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

var severityOrder = []rules.Severity{
	rules.SeverityCritical,
	rules.SeverityHigh,
	rules.SeverityMedium,
	rules.SeverityLow,
	rules.SeverityInfo,
}

type Reader struct {
	Since time.Time
}

func (r *Reader) Read(path string) ([]logging.FindingRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var records []logging.FindingRecord
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec logging.FindingRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if !r.Since.IsZero() && rec.DetectedAt.Before(r.Since) {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func Summarize(records []logging.FindingRecord) Summary {
	var summary Summary
	if len(records) == 0 {
		return summary
	}

	summary.Start = records[0].DetectedAt
	summary.End = records[0].DetectedAt

	severityCounts := map[rules.Severity]int{}
	ruleCounts := map[string]int{}
	cweCounts := map[string]int{}
	tagCounts := map[string]int{}
	projectCounts := map[string]int{}
	confidenceSum := 0

	for _, rec := range records {
		summary.Total++
		if rec.DetectedAt.Before(summary.Start) {
			summary.Start = rec.DetectedAt
		}
		if rec.DetectedAt.After(summary.End) {
			summary.End = rec.DetectedAt
		}

		confidenceSum += rec.Confidence
		if rec.Confidence >= highConfidence {
			summary.HighConfidence++
		}

		severityCounts[rec.Severity]++
		ruleCounts[rec.DetectorID]++
		if rec.CWE != "" {
			cweCounts[rec.CWE]++
		}
		for _, tag := range rec.Tags {
			tagCounts[tag]++
		}
		if rec.Project != "" {
			projectCounts[rec.Project]++
		}
	}

	summary.AverageConfidence = float64(confidenceSum) / float64(summary.Total)
	for _, sev := range severityOrder {
		if n := severityCounts[sev]; n > 0 {
			summary.BySeverity = append(summary.BySeverity, CountItem{Key: string(sev), Count: n})
		}
	}
	summary.TopRules = topCounts(ruleCounts, 5)
	summary.TopCWEs = topCounts(cweCounts, 5)
	summary.TopTags = topCounts(tagCounts, 5)
	summary.TopProjects = topCounts(projectCounts, 5)

	return summary
}

func topCounts(counts map[string]int, n int) []CountItem {
	items := make([]CountItem, 0, len(counts))
	for key, count := range counts {
		items = append(items, CountItem{Key: key, Count: count})
	}
	if len(items) == 0 {
		return nil
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Count == items[j].Count {
			return items[i].Key < items[j].Key
		}
		return items[i].Count > items[j].Count
	})

	if len(items) > n {
		items = items[:n]
	}
	return items
}

func RenderText(summary Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Findings: %d\n", summary.Total)
	fmt.Fprintf(&b, "High confidence (>=%d): %d\n", highConfidence, summary.HighConfidence)
	fmt.Fprintf(&b, "Average confidence: %.1f\n", summary.AverageConfidence)

	writeCounts(&b, "By severity", summary.BySeverity)
	writeCounts(&b, "Top rules", summary.TopRules)
	writeCounts(&b, "Top CWEs", summary.TopCWEs)
	writeCounts(&b, "Top tags", summary.TopTags)
	writeCounts(&b, "Top projects", summary.TopProjects)

	return b.String()
}

func RenderMarkdown(summary Summary) string {
	var b strings.Builder
	b.WriteString("# Rulescan Report\n\n")
	b.WriteString("## Totals\n\n")
	fmt.Fprintf(&b, "- Findings: %d\n", summary.Total)
	fmt.Fprintf(&b, "- High confidence (>=%d): %d\n", highConfidence, summary.HighConfidence)
	fmt.Fprintf(&b, "- Average confidence: %.1f\n", summary.AverageConfidence)
	if !summary.Start.IsZero() {
		fmt.Fprintf(&b, "- Window: %s to %s\n", summary.Start.Format(time.RFC3339), summary.End.Format(time.RFC3339))
	}
	b.WriteString("\n")

	writeCountsMarkdown(&b, "By severity", summary.BySeverity)
	writeCountsMarkdown(&b, "Top rules", summary.TopRules)
	writeCountsMarkdown(&b, "Top CWEs", summary.TopCWEs)
	writeCountsMarkdown(&b, "Top tags", summary.TopTags)
	writeCountsMarkdown(&b, "Top projects", summary.TopProjects)

	return b.String()
}

func RenderJSON(summary Summary) ([]byte, error) {
	return json.MarshalIndent(summary, "", "  ")
}

func writeCounts(b *strings.Builder, title string, items []CountItem) {
	if len(items) == 0 {
		fmt.Fprintf(b, "%s: none\n", title)
		return
	}
	fmt.Fprintf(b, "%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s: %d\n", item.Key, item.Count)
	}
}

func writeCountsMarkdown(b *strings.Builder, title string, items []CountItem) {
	b.WriteString("## ")
	b.WriteString(title)
	b.WriteString("\n\n")
	if len(items) == 0 {
		b.WriteString("- none\n\n")
		return
	}
	for _, item := range items {
		fmt.Fprintf(b, "- %s: %d\n", item.Key, item.Count)
	}
	b.WriteString("\n")
}

func WriteOutput(path string, content []byte) error {
	if path == "" {
		_, err := io.Copy(os.Stdout, bytes.NewReader(content))
		return err
	}
	return os.WriteFile(path, content, 0o600)
}
