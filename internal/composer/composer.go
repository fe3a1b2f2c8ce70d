// Package composer layers project, community and imported rule packs on top
// of the built-in packs loaded by a rules.Engine.
package composer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rulescan/rulescan/internal/rules"
)

type Option = rules.Option

// Composer owns a rules.Engine and installs the merged rule set into it. Like
// the engine it does no locking.
type Composer struct {
	baseDir   string
	projectID string
	engine    *rules.Engine
	log       logrus.FieldLogger

	tiered   []*rules.Rule
	imported []*rules.Rule
}

// New builds the composed rule set from baseDir. The project tier is skipped
// when projectID is empty.
func New(baseDir, projectID string, opts ...Option) (*Composer, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID != "" && (!filepath.IsLocal(projectID) || strings.ContainsAny(projectID, `/\`)) {
		return nil, fmt.Errorf("invalid project id %q", projectID)
	}

	engine := rules.NewEngine(filepath.Join(baseDir, "patterns"), opts...)
	c := &Composer{
		baseDir:   baseDir,
		projectID: projectID,
		engine:    engine,
		log:       engine.Logger().WithField("project", projectID),
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Composer) Engine() *rules.Engine {
	return c.engine
}

func (c *Composer) ProjectID() string {
	return c.projectID
}

func (c *Composer) PatternsDir() string {
	return c.engine.Dir()
}

func (c *Composer) ProjectDir() string {
	if c.projectID == "" {
		return ""
	}
	return filepath.Join(c.PatternsDir(), "projects", c.projectID)
}

func (c *Composer) CommunityDir() string {
	return filepath.Join(c.PatternsDir(), "community")
}

// Reload reloads the built-in tier, merges the project and community tiers
// over it, then re-merges previously imported rules.
func (c *Composer) Reload() error {
	if err := c.engine.Reload(); err != nil {
		return fmt.Errorf("load builtin packs: %w", err)
	}

	tiered := c.engine.Rules()
	seen := make(map[string]struct{}, len(tiered))
	for _, rule := range tiered {
		if rule.ID != "" {
			seen[rule.ID] = struct{}{}
		}
	}

	if dir := c.ProjectDir(); dir != "" {
		loaded, err := c.engine.LoadDir(dir, rules.PackProject)
		if err != nil {
			return fmt.Errorf("load project packs: %w", err)
		}
		tiered = c.merge(tiered, loaded, seen)
	}

	packs, err := communityPacks(c.CommunityDir())
	if err != nil {
		return fmt.Errorf("list community packs: %w", err)
	}
	for _, dir := range packs {
		loaded, err := c.engine.LoadDir(dir, rules.PackCommunity)
		if err != nil {
			return fmt.Errorf("load community packs: %w", err)
		}
		tiered = c.merge(tiered, loaded, seen)
	}

	c.tiered = tiered
	c.imported = c.merge(nil, c.imported, seen)
	c.install()

	c.log.WithFields(logrus.Fields{
		"tiered":   len(c.tiered),
		"imported": len(c.imported),
	}).Info("rule tiers composed")
	return nil
}

// merge appends rules whose ids are not yet in seen. The first tier to load an
// id keeps it.
func (c *Composer) merge(dst, src []*rules.Rule, seen map[string]struct{}) []*rules.Rule {
	for _, rule := range src {
		if rule.ID != "" {
			if _, dup := seen[rule.ID]; dup {
				c.log.WithFields(logrus.Fields{
					"rule_id":   rule.ID,
					"pack":      rule.PackName,
					"pack_type": rule.PackType,
				}).Debug("rule id already loaded by an earlier tier")
				continue
			}
			seen[rule.ID] = struct{}{}
		}
		dst = append(dst, rule)
	}
	return dst
}

func (c *Composer) install() {
	composed := make([]*rules.Rule, 0, len(c.tiered)+len(c.imported))
	composed = append(composed, c.tiered...)
	composed = append(composed, c.imported...)
	c.engine.Replace(composed)
}

func communityPacks(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, entry := range entries {
		if entry.IsDir() {
			out = append(out, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

func (c *Composer) Rules() []*rules.Rule {
	return c.engine.Rules()
}

func (c *Composer) Rule(id string) (*rules.Rule, bool) {
	return c.engine.Rule(id)
}

func (c *Composer) Detect(req rules.Request, res rules.Response) []rules.Finding {
	return c.engine.Detect(req, res)
}

func (c *Composer) DetectExchange(ex rules.Exchange) []rules.Finding {
	return c.engine.DetectExchange(ex)
}

func (c *Composer) DetectText(text string) []rules.TextMatch {
	return c.engine.DetectText(text)
}

func (c *Composer) TogglePattern(id string, enabled bool) bool {
	return c.engine.TogglePattern(id, enabled)
}

func (c *Composer) Stats() rules.Stats {
	return c.engine.Stats()
}
