package composer

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/rulescan/rulescan/internal/adapter"
	"github.com/rulescan/rulescan/internal/rules"
)

const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatCSV  = "csv"
)

var csvHeader = []string{"ID", "Title", "Regex", "Severity", "Confidence", "CWE", "CVSS", "Tags", "Where", "Pack Name", "Pack Type", "Enabled"}

type ExportInfo struct {
	Timestamp     string `json:"timestamp" yaml:"timestamp"`
	TotalPatterns int    `json:"total_patterns" yaml:"total_patterns"`
	ProjectID     string `json:"project_id" yaml:"project_id"`
}

// ExportDocument is the JSON and YAML export schema.
type ExportDocument struct {
	Info     ExportInfo       `json:"export_info" yaml:"export_info"`
	Patterns []rules.RuleSpec `json:"patterns" yaml:"patterns"`
}

type importDocument struct {
	Patterns []map[string]any `json:"patterns" yaml:"patterns"`
	Rules    []map[string]any `json:"rules" yaml:"rules"`
}

// FormatFromPath guesses the transfer format from a file extension.
func FormatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".csv":
		return FormatCSV
	default:
		return FormatJSON
	}
}

// Export writes every composed rule to path. Failures are reported, not returned as errors.
func (c *Composer) Export(path, format string) (bool, []string) {
	ruleset := c.engine.Rules()
	specs := make([]rules.RuleSpec, 0, len(ruleset))
	for _, rule := range ruleset {
		specs = append(specs, rule.Spec())
	}

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(format) {
	case FormatJSON, FormatYAML:
		doc := ExportDocument{
			Info: ExportInfo{
				Timestamp:     time.Now().UTC().Format(time.RFC3339),
				TotalPatterns: len(specs),
				ProjectID:     c.projectID,
			},
			Patterns: specs,
		}
		if strings.EqualFold(format, FormatJSON) {
			data, err = json.MarshalIndent(doc, "", "  ")
		} else {
			data, err = yaml.Marshal(doc)
		}
	case FormatCSV:
		data, err = encodeCSV(specs)
	default:
		return false, []string{fmt.Sprintf("unsupported export format %q", format)}
	}
	if err != nil {
		return false, []string{fmt.Sprintf("encode %s: %v", format, err)}
	}

	if err := writeFile(path, data); err != nil {
		c.log.WithFields(logrus.Fields{"file": path, "error": err}).Error("export failed")
		return false, []string{fmt.Sprintf("write %s: %v", path, err)}
	}
	c.log.WithFields(logrus.Fields{"file": path, "format": format, "rules": len(specs)}).Info("rules exported")
	return true, nil
}

// Import merges the rules in path as imported rules. Rules that fail validation
// or reuse a loaded id are reported; the rest are admitted, so a partially
// valid file still returns false.
func (c *Composer) Import(path, format string) (bool, []string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, []string{fmt.Sprintf("read %s: %v", path, err)}
	}

	var entries []map[string]any
	switch strings.ToLower(format) {
	case FormatJSON:
		var doc importDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return false, []string{fmt.Sprintf("parse json: %v", err)}
		}
		entries = doc.entries()
	case FormatYAML:
		var doc importDocument
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return false, []string{fmt.Sprintf("parse yaml: %v", err)}
		}
		entries = doc.entries()
	case FormatCSV:
		entries, err = decodeCSV(data)
		if err != nil {
			return false, []string{fmt.Sprintf("parse csv: %v", err)}
		}
	default:
		return false, []string{fmt.Sprintf("unsupported import format %q", format)}
	}

	raws, errs := normalizeAll(entries)
	pack := rules.PackInfo{
		Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Path: path,
		Type: rules.PackImported,
	}
	errs = append(errs, c.admit(raws, pack, nil)...)
	return len(errs) == 0, errs
}

// ImportFromAdapter converts an external artifact and admits its rules the
// same way Import does.
func (c *Composer) ImportFromAdapter(src adapter.Source, artifact []byte) (bool, []string) {
	converted, err := src.Convert(artifact)
	if err != nil {
		return false, []string{fmt.Sprintf("%s: %v", src.Name(), err)}
	}

	entries := make([]map[string]any, 0, len(converted))
	for _, raw := range converted {
		entries = append(entries, raw)
	}
	raws, errs := normalizeAll(entries)
	pack := rules.PackInfo{Name: src.Name(), Path: "adapter:" + src.Name(), Type: rules.PackImported}
	errs = append(errs, c.admit(raws, pack, adapter.CheckCanonical)...)
	return len(errs) == 0, errs
}

func (c *Composer) admit(raws []rules.RawRule, pack rules.PackInfo, check func(rules.RawRule) []string) []string {
	seen := map[string]struct{}{}
	for _, rule := range c.engine.Rules() {
		seen[rule.ID] = struct{}{}
	}

	var errs []string
	admitted := 0
	for i, raw := range raws {
		if raw == nil {
			continue
		}
		id := strings.TrimSpace(raw.ID())
		label := fmt.Sprintf("pattern %d", i)
		if id != "" {
			label += " (" + id + ")"
		}
		logger := c.log.WithFields(logrus.Fields{"pack": pack.Name, "file": pack.Path, "rule_id": id})

		problems, warnings := ValidatePattern(raw)
		if check != nil {
			problems = mergeProblems(check(raw), problems)
		}
		if len(problems) > 0 {
			logger.WithField("errors", problems).Warn("rejecting imported rule")
			errs = append(errs, fmt.Sprintf("%s: %s", label, strings.Join(problems, "; ")))
			continue
		}
		if len(warnings) > 0 {
			logger.WithField("warnings", warnings).Info("imported rule has warnings")
		}
		if _, dup := seen[id]; dup {
			logger.Warn("rejecting imported rule: id already loaded")
			errs = append(errs, fmt.Sprintf("%s: id already loaded", label))
			continue
		}

		rulePack := pack
		if name, ok := raw["pack_name"].(string); ok && strings.TrimSpace(name) != "" {
			rulePack.Name = name
		}
		if version, ok := raw["pack_version"].(string); ok {
			rulePack.Version = version
		}
		rule, problems := c.engine.BuildRule(raw, rulePack)
		if len(problems) > 0 {
			logger.WithField("errors", problems).Warn("rejecting imported rule")
			errs = append(errs, fmt.Sprintf("%s: %s", label, strings.Join(problems, "; ")))
			continue
		}
		rule.Enabled = !raw.ExplicitlyDisabled()

		seen[id] = struct{}{}
		c.imported = append(c.imported, rule)
		admitted++
	}

	if admitted > 0 {
		c.install()
	}
	c.log.WithFields(logrus.Fields{"pack": pack.Name, "admitted": admitted, "rejected": len(errs)}).Info("rules imported")
	return errs
}

func (d importDocument) entries() []map[string]any {
	if len(d.Patterns) > 0 {
		return d.Patterns
	}
	return d.Rules
}

// normalizeAll round-trips entries through JSON so YAML and CSV input carries
// the same value types as a JSON pack.
func normalizeAll(entries []map[string]any) ([]rules.RawRule, []string) {
	out := make([]rules.RawRule, len(entries))
	var errs []string
	for i, entry := range entries {
		data, err := json.Marshal(entry)
		if err == nil {
			err = json.Unmarshal(data, &out[i])
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("pattern %d: %v", i, err))
			out[i] = nil
		}
	}
	return out, errs
}

func mergeProblems(a, b []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, p := range append(a, b...) {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func encodeCSV(specs []rules.RuleSpec) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, s := range specs {
		cvss := ""
		if s.CVSS != nil {
			cvss = strconv.FormatFloat(*s.CVSS, 'f', -1, 64)
		}
		record := []string{
			s.ID, s.Title, s.Regex, s.Severity, strconv.Itoa(s.Confidence), s.CWE, cvss,
			strings.Join(s.Tags, ","), strings.Join(s.Where, ","),
			s.PackName, s.PackType, strconv.FormatBool(s.Enabled),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func decodeCSV(data []byte) ([]map[string]any, error) {
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("missing header")
	}

	columns := map[string]int{}
	for i, name := range records[0] {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"id", "title", "regex"} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("header missing column %q", required)
		}
	}

	var out []map[string]any
	for _, record := range records[1:] {
		verbatim := func(name string) string {
			if i, ok := columns[name]; ok && i < len(record) {
				return record[i]
			}
			return ""
		}
		cell := func(name string) string {
			return strings.TrimSpace(verbatim(name))
		}

		// Whitespace is significant in a regex and kept as written in titles.
		entry := map[string]any{
			"id":    cell("id"),
			"title": verbatim("title"),
			"regex": verbatim("regex"),
		}
		if v := cell("severity"); v != "" {
			entry["severity"] = v
		}
		if v := cell("confidence"); v != "" {
			entry["confidence"] = numberOrText(v)
		}
		if v := cell("cwe"); v != "" {
			entry["cwe"] = v
		}
		if v := cell("cvss"); v != "" {
			entry["cvss"] = numberOrText(v)
		}
		if tags := splitList(cell("tags")); len(tags) > 0 {
			entry["tags"] = tags
		}
		if where := splitList(cell("where")); len(where) > 0 {
			entry["where"] = where
		}
		if v := cell("pack name"); v != "" {
			entry["pack_name"] = v
		}
		if enabled, err := strconv.ParseBool(cell("enabled")); err == nil {
			entry["enabled"] = enabled
		}
		out = append(out, entry)
	}
	return out, nil
}

// numberOrText keeps unparsable values as text so validation can report them.
func numberOrText(v string) any {
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
