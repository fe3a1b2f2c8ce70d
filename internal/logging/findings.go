package logging

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"unicode/utf8"

	"github.com/rulescan/rulescan/internal/rules"
)

const maxEvidence = 2048

// FindingRecord is written as a single JSON object per finding.
type FindingRecord struct {
	rules.Finding
	Project string `json:"project,omitempty"`
	Host    string `json:"host,omitempty"`
}

// FindingLogger appends findings as JSON lines. It is safe for concurrent use.
type FindingLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func NewFindingLogger(w io.Writer) *FindingLogger {
	return &FindingLogger{w: w}
}

func OpenFindingLog(path string) (*FindingLogger, func() error, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, err
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return NewFindingLogger(file), file.Close, nil
}

func (l *FindingLogger) Write(record FindingRecord) error {
	record.Evidence = clip(record.Evidence)
	record.Meta.MatchedFragment = clip(record.Meta.MatchedFragment)

	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.w.Write(append(data, '\n'))
	return err
}

func (l *FindingLogger) WriteAll(project, host string, findings []rules.Finding) error {
	for _, f := range findings {
		if err := l.Write(FindingRecord{Finding: f, Project: project, Host: host}); err != nil {
			return err
		}
	}
	return nil
}

// clip truncates to maxEvidence characters, the same bound the engine applies.
func clip(s string) string {
	if utf8.RuneCountInString(s) <= maxEvidence {
		return s
	}
	count := 0
	for i := range s {
		if count == maxEvidence {
			return s[:i]
		}
		count++
	}
	return s
}
