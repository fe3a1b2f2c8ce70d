package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rulescan/rulescan/internal/composer"
	"github.com/rulescan/rulescan/internal/rules"
)

func newPacksCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "packs [dir]",
		Short: "Check every rule pack under a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			} else {
				cfg, err := opts.load()
				if err != nil {
					return err
				}
				dir = filepath.Join(cfg.PatternsBase(), "patterns")
			}

			invalid, err := lintPacks(dir, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if invalid > 0 {
				return fmt.Errorf("%d invalid rule(s)", invalid)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "packs ok")
			return err
		},
	}
}

// lintPacks reports per-rule errors and warnings for every *.json pack below
// dir and returns the number of rules that would be skipped.
func lintPacks(dir string, w io.Writer) (int, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".json") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	sort.Strings(files)

	invalid := 0
	seen := map[string]string{}
	for _, path := range files {
		entries, err := readPackEntries(path)
		if err != nil {
			fmt.Fprintf(w, "%s: error: %v\n", path, err)
			invalid++
			continue
		}
		for i, entry := range entries {
			raw, ok := entry.(map[string]any)
			if !ok {
				fmt.Fprintf(w, "%s#%d: error: not an object\n", path, i)
				invalid++
				continue
			}
			rule := rules.RawRule(raw)
			label := fmt.Sprintf("%s#%d (%s)", path, i, rule.ID())

			errs, warnings := composer.ValidatePattern(rule)
			for _, msg := range errs {
				fmt.Fprintf(w, "%s: error: %s\n", label, msg)
			}
			if len(errs) > 0 {
				invalid++
				continue
			}
			for _, msg := range warnings {
				fmt.Fprintf(w, "%s: warning: %s\n", label, msg)
			}
			if first, dup := seen[rule.ID()]; dup {
				fmt.Fprintf(w, "%s: warning: id also defined in %s; the first loaded wins\n", label, first)
			} else {
				seen[rule.ID()] = path
			}
		}
	}
	return invalid, nil
}

func readPackEntries(path string) ([]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if entries, ok := doc["rules"].([]any); ok {
		return entries, nil
	}
	if entries, ok := doc["patterns"].([]any); ok {
		return entries, nil
	}
	return nil, errors.New("no rules array")
}

func newStatsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print statistics for the composed rule set",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := opts.env()
			if err != nil {
				return err
			}
			c, err := env.composer(env.cfg.Patterns.ProjectID)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), c.AdvancedStats())
		},
	}
}

func newExportCmd(opts *globalOptions) *cobra.Command {
	var outPath string
	var format string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the composed rule set as json, yaml or csv",
		RunE: func(cmd *cobra.Command, args []string) error {
			if outPath == "" {
				return errors.New("output path is required")
			}
			env, err := opts.env()
			if err != nil {
				return err
			}
			c, err := env.composer(env.cfg.Patterns.ProjectID)
			if err != nil {
				return err
			}
			if format == "" {
				format = composer.FormatFromPath(outPath)
			}
			if ok, errs := c.Export(outPath, format); !ok {
				return transferError("export", errs)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "exported %d rules to %s\n", len(c.Rules()), outPath)
			return err
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "", "Output file path")
	cmd.Flags().StringVar(&format, "format", "", "json|yaml|csv (default from file extension)")

	return cmd
}

func newImportCmd(opts *globalOptions) *cobra.Command {
	var inputPath string
	var format string
	var save string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Validate and import rules from json, yaml or csv",
		RunE: func(cmd *cobra.Command, args []string) error {
			if inputPath == "" {
				return errors.New("input path is required")
			}
			env, err := opts.env()
			if err != nil {
				return err
			}
			c, err := env.composer(env.cfg.Patterns.ProjectID)
			if err != nil {
				return err
			}
			if format == "" {
				format = composer.FormatFromPath(inputPath)
			}

			ok, errs := c.Import(inputPath, format)
			for _, msg := range errs {
				fmt.Fprintln(cmd.ErrOrStderr(), msg)
			}
			imported := c.Filter(composer.Filter{PackType: rules.PackImported})
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d rules\n", len(imported))

			if save != "" && len(imported) > 0 {
				dir := c.ProjectDir()
				if dir == "" {
					return errors.New("--save requires a project id")
				}
				target := filepath.Join(dir, save+".json")
				if err := composer.SavePack(target, save, imported); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "saved to %s\n", target)
			}
			if !ok {
				return transferError("import", errs)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&inputPath, "in", "", "Input file path")
	cmd.Flags().StringVar(&format, "format", "", "json|yaml|csv (default from file extension)")
	cmd.Flags().StringVar(&save, "save", "", "Save accepted rules as this pack name in the project tier")

	return cmd
}

func newTestCmd(opts *globalOptions) *cobra.Command {
	var ruleID string
	var text string
	var textFile string

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run one rule, or all rules, against text without gates",
		RunE: func(cmd *cobra.Command, args []string) error {
			if textFile != "" {
				data, err := os.ReadFile(textFile)
				if err != nil {
					return err
				}
				text = string(data)
			}
			env, err := opts.env()
			if err != nil {
				return err
			}
			c, err := env.composer(env.cfg.Patterns.ProjectID)
			if err != nil {
				return err
			}

			if ruleID == "" {
				matches := c.DetectText(text)
				if matches == nil {
					matches = []rules.TextMatch{}
				}
				return writeJSON(cmd.OutOrStdout(), matches)
			}
			results, err := c.TestPattern(ruleID, text)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), results)
		},
	}

	cmd.Flags().StringVar(&ruleID, "rule", "", "Rule id (default: every enabled rule)")
	cmd.Flags().StringVar(&text, "text", "", "Text to test")
	cmd.Flags().StringVar(&textFile, "text-file", "", "Read the text from a file")

	return cmd
}

func writeJSON(w io.Writer, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

func transferError(op string, errs []string) error {
	if len(errs) == 0 {
		return fmt.Errorf("%s failed", op)
	}
	return fmt.Errorf("%s failed: %d problem(s)", op, len(errs))
}
