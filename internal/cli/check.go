package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/git-pkgs/pubcheck/internal/core"
)

var checkOutput string

var checkCmd = &cobra.Command{
	Use:   "check [package-dir...]",
	Short: "Check packages for version conflicts with the registry",
	Long: `Check every workspace package, or only the given package directories,
against the npm registry. Exits non-zero unless every package can be published.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVarP(&checkOutput, "output", "o", "text", "output format: text, json or yaml")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	switch checkOutput {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q", checkOutput)
	}

	found, err := targets(args)
	if err != nil {
		return err
	}

	reg := newRegistry()
	defer reg.Close()

	batch := newAnalyzer(reg).AnalyzeMultiple(cmd.Context(), found)
	if err := cmd.Context().Err(); err != nil {
		return err
	}

	if err := writeBatch(cmd.OutOrStdout(), batch); err != nil {
		return err
	}
	if batch.Recommendation != core.BatchCanPublish {
		return ErrNotPublishable
	}
	return nil
}

// writeBatch prints the batch summary to stderr for text output, or the full
// analysis to w for json and yaml.
func writeBatch(w io.Writer, batch core.BatchAnalysis) error {
	switch checkOutput {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(batch)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(batch); err != nil {
			return err
		}
		return enc.Close()
	default:
		printer.BatchSummary(batch)
		return nil
	}
}
