package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/git-pkgs/pubcheck/client"
	"github.com/git-pkgs/pubcheck/internal/core"
	"github.com/git-pkgs/pubcheck/internal/semver"
	"github.com/git-pkgs/pubcheck/internal/ui"
)

var versionsURLs bool

var versionsCmd = &cobra.Command{
	Use:   "versions <package>",
	Short: "List the published versions of a package",
	Args:  cobra.ExactArgs(1),
	RunE:  runVersions,
}

func init() {
	versionsCmd.Flags().BoolVar(&versionsURLs, "urls", false, "also print registry, download and website URLs for the latest version")
	rootCmd.AddCommand(versionsCmd)
}

func runVersions(cmd *cobra.Command, args []string) error {
	name := args[0]

	reg := newRegistry()
	defer reg.Close()

	list, err := reg.GetAllVersions(cmd.Context(), name)
	if err != nil {
		return err
	}
	if !list.Known() {
		return fmt.Errorf("listing versions of %s: %w", name, core.ErrIndeterminate)
	}

	out := cmd.OutOrStdout()
	latest := semver.Latest(list.Versions)
	ui.NewWithWriter(out).Versions(list, latest)

	if versionsURLs {
		urls := client.BuildURLs(reg.URLs(), name, latest)
		keys := make([]string, 0, len(urls))
		for k := range urls {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "%-9s %s\n", k+":", urls[k])
		}
	}
	return nil
}
