package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rulescan/rulescan/internal/logging"
	"github.com/rulescan/rulescan/internal/report"
	"github.com/rulescan/rulescan/internal/rules"
)

func newScanCmd(opts *globalOptions) *cobra.Command {
	var inputPath string
	var format string
	var outPath string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan captured exchanges and print findings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if inputPath == "" {
				return errors.New("input path is required")
			}
			env, err := opts.env()
			if err != nil {
				return err
			}

			data, err := os.ReadFile(inputPath)
			if err != nil {
				return err
			}
			exchanges, err := decodeExchanges(data)
			if err != nil {
				return fmt.Errorf("parse exchanges: %w", err)
			}

			project := env.cfg.Patterns.ProjectID
			c, err := env.composer(project)
			if err != nil {
				return err
			}

			var records []logging.FindingRecord
			for _, ex := range exchanges {
				for _, f := range c.DetectExchange(ex) {
					records = append(records, logging.FindingRecord{Finding: f, Project: project})
				}
			}
			env.log.WithField("exchanges", len(exchanges)).WithField("findings", len(records)).Info("scan complete")

			if env.cfg.Findings.Log != "" {
				if err := appendFindings(env.cfg.ResolvePath(env.cfg.Findings.Log), records); err != nil {
					return err
				}
			}

			out, err := renderFindings(records, format)
			if err != nil {
				return err
			}
			return writeOutput(cmd, outPath, out)
		},
	}

	cmd.Flags().StringVar(&inputPath, "in", "", "Exchange JSON file (one object or an array)")
	cmd.Flags().StringVar(&format, "format", "json", "Output format: json|jsonl")
	cmd.Flags().StringVar(&outPath, "out", "", "Output file path (default stdout)")

	return cmd
}

func decodeExchanges(data []byte) ([]rules.Exchange, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var many []rules.Exchange
		if err := json.Unmarshal(data, &many); err != nil {
			return nil, err
		}
		return many, nil
	}
	var one rules.Exchange
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, err
	}
	return []rules.Exchange{one}, nil
}

func renderFindings(records []logging.FindingRecord, format string) ([]byte, error) {
	switch format {
	case "", "json":
		if records == nil {
			records = []logging.FindingRecord{}
		}
		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case "jsonl":
		var buf bytes.Buffer
		logger := logging.NewFindingLogger(&buf)
		for _, rec := range records {
			if err := logger.Write(rec); err != nil {
				return nil, err
			}
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

func appendFindings(path string, records []logging.FindingRecord) error {
	logger, closer, err := logging.OpenFindingLog(path)
	if err != nil {
		return err
	}
	defer func() { _ = closer() }()
	for _, rec := range records {
		if err := logger.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

// writeOutput writes to path, or to the command's stdout when path is empty.
func writeOutput(cmd *cobra.Command, path string, content []byte) error {
	if path == "" {
		_, err := cmd.OutOrStdout().Write(content)
		return err
	}
	return report.WriteOutput(path, content)
}
