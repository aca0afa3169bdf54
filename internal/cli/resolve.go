package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/git-pkgs/pubcheck/internal/prompt"
	"github.com/git-pkgs/pubcheck/internal/resolver"
)

var (
	resolveYes    bool
	resolveDryRun bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [package-dir...]",
	Short: "Bump conflicting versions in package.json",
	Long: `Check packages against the registry, then resolve every version conflict.
Suggested bumps are confirmed in one step; conflicts without a safe suggestion
are resolved one package at a time. Nothing is written when the run is
cancelled or --dry-run is set.`,
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().BoolVarP(&resolveYes, "yes", "y", false, "accept suggested version bumps without asking")
	resolveCmd.Flags().BoolVar(&resolveDryRun, "dry-run", false, "show resolutions without writing package.json")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	found, err := targets(args)
	if err != nil {
		return err
	}

	reg := newRegistry()
	defer reg.Close()

	ctx := cmd.Context()
	batch := newAnalyzer(reg).AnalyzeMultiple(ctx, found)
	if err := ctx.Err(); err != nil {
		return err
	}
	printer.BatchSummary(batch)

	r := resolver.New(resolver.Options{
		DryRun:    resolveDryRun,
		AssumeYes: resolveYes,
		Prompter:  prompt.NewTerminal(cmd.InOrStdin(), cmd.ErrOrStderr()),
		Reporter:  printer,
		Logger:    logger.Named("resolver"),
	})
	report, err := r.Resolve(ctx, batch)
	if err != nil {
		return err
	}

	logger.Debug("resolution finished",
		zap.Int("auto", report.AutoResolved),
		zap.Int("manual", report.ManuallyResolved),
		zap.Int("skipped", report.Skipped))
	printer.ResolveSummary(report)
	return nil
}
