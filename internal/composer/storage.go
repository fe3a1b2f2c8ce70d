package composer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rulescan/rulescan/internal/rules"
)

// writeFile replaces path atomically by renaming a temp file from the same directory.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// SavePack writes ruleset as a pack file loadable by any tier.
func SavePack(path, name string, ruleset []*rules.Rule) error {
	if name == "" {
		return fmt.Errorf("pack name is required")
	}
	pack := rules.PackFile{Name: name, Rules: make([]rules.RuleSpec, 0, len(ruleset))}
	for _, rule := range ruleset {
		spec := rule.Spec()
		spec.PackName, spec.PackVersion, spec.PackPath, spec.PackType = "", "", "", ""
		pack.Rules = append(pack.Rules, spec)
	}

	data, err := json.MarshalIndent(pack, "", "  ")
	if err != nil {
		return err
	}
	return writeFile(path, data)
}
