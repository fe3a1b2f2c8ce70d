package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// LoadDir loads every *.json pack in dir, in filename order, stamping each rule
// with packType. Unreadable or malformed packs are logged and skipped. A missing
// directory yields no rules.
func (e *Engine) LoadDir(dir string, packType PackType) ([]*Rule, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			e.log.WithField("dir", dir).Debug("pack directory does not exist")
			return nil, nil
		}
		return nil, fmt.Errorf("read pack directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var out []*Rule
	for _, name := range names {
		path := filepath.Join(dir, name)
		loaded, err := e.LoadPackFile(path, packType)
		if err != nil {
			e.log.WithFields(logrus.Fields{"file": path, "error": err}).Warn("skipping rule pack")
			e.observer.PackSkipped(path)
			continue
		}
		out = append(out, loaded...)
	}
	return out, nil
}

// LoadPackFile parses one pack file. Rule-level problems are logged and the
// offending rule skipped; only file-level failures are returned.
func (e *Engine) LoadPackFile(path string, packType PackType) ([]*Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pack: %w", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse pack: %w", err)
	}

	pack := PackInfo{
		Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Path: path,
		Type: packType,
	}
	if name, ok := doc["name"].(string); ok && strings.TrimSpace(name) != "" {
		pack.Name = name
	}
	if version, ok := doc["version"]; ok && version != nil {
		pack.Version = fmt.Sprint(version)
	}

	entries, ok := doc["rules"].([]any)
	if !ok {
		entries, _ = doc["patterns"].([]any)
	}

	logger := e.log.WithFields(logrus.Fields{"pack": pack.Name, "file": path})
	out := make([]*Rule, 0, len(entries))
	for i, entry := range entries {
		obj, ok := entry.(map[string]any)
		if !ok {
			logger.WithField("index", i).Warn("skipping rule: not an object")
			e.observer.RuleSkipped(SkipInvalid)
			continue
		}
		raw := RawRule(obj)
		if raw.ExplicitlyDisabled() {
			logger.WithField("rule_id", raw.ID()).Debug("skipping disabled rule")
			continue
		}
		rule, problems := e.BuildRule(raw, pack)
		if len(problems) > 0 {
			logger.WithFields(logrus.Fields{
				"index":   i,
				"rule_id": raw.ID(),
				"errors":  problems,
			}).Warn("skipping invalid rule")
			e.observer.RuleSkipped(SkipInvalid)
			continue
		}
		out = append(out, rule)
	}

	logger.WithField("rules", len(out)).Debug("loaded rule pack")
	return out, nil
}
