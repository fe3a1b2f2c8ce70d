// Package adapter defines the contract for converting third-party rule
// artifacts (scanner templates, WAF rule files) into canonical rules.
package adapter

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rulescan/rulescan/internal/rules"
)

// Source converts one external artifact into zero or more canonical rules.
// Only id, title, regex and where are required; the rest is best effort.
type Source interface {
	Name() string
	Convert(artifact []byte) ([]rules.RawRule, error)
}

type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

func NewRegistry(sources ...Source) *Registry {
	r := &Registry{sources: map[string]Source{}}
	for _, src := range sources {
		_ = r.Register(src)
	}
	return r
}

func (r *Registry) Register(src Source) error {
	if src == nil {
		return fmt.Errorf("adapter is nil")
	}
	name := strings.ToLower(strings.TrimSpace(src.Name()))
	if name == "" {
		return fmt.Errorf("adapter name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sources[name]; exists {
		return fmt.Errorf("adapter %q already registered", name)
	}
	r.sources[name] = src
	return nil
}

func (r *Registry) Lookup(name string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.sources[strings.ToLower(strings.TrimSpace(name))]
	return src, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var canonicalFields = []string{"id", "title", "regex", "where"}

// CheckCanonical reports the required fields an adapter left missing or empty.
func CheckCanonical(raw rules.RawRule) []string {
	var problems []string
	for _, field := range canonicalFields {
		if empty(raw[field]) {
			problems = append(problems, fmt.Sprintf("%s is required", field))
		}
	}
	return problems
}

func empty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []string:
		return len(v) == 0
	case []any:
		return len(v) == 0
	default:
		return false
	}
}
