package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/git-pkgs/pubcheck/internal/core"
	"github.com/git-pkgs/pubcheck/internal/resolver"
	"github.com/git-pkgs/pubcheck/internal/semver"
)

var suggestPackage string

var suggestCmd = &cobra.Command{
	Use:   "suggest <version> [published...]",
	Short: "Print the next version that does not collide with published ones",
	Long: `Print the next patch, minor or major version after <version> that is not
in the published list. With --package the published list is fetched from the
registry instead.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSuggest,
}

func init() {
	suggestCmd.Flags().StringVarP(&suggestPackage, "package", "p", "", "fetch published versions of this package from the registry")
	rootCmd.AddCommand(suggestCmd)
}

func runSuggest(cmd *cobra.Command, args []string) error {
	current := args[0]
	if !semver.Valid(current) {
		return errors.New(resolver.InvalidVersionMessage)
	}
	published := args[1:]

	if suggestPackage != "" {
		reg := newRegistry()
		defer reg.Close()

		list, err := reg.GetAllVersions(cmd.Context(), suggestPackage)
		if err != nil {
			return err
		}
		if !list.Known() {
			return fmt.Errorf("listing versions of %s: %w", suggestPackage, core.ErrIndeterminate)
		}
		published = append(published, list.Versions...)
	}

	fmt.Fprintln(cmd.OutOrStdout(), semver.SuggestNext(current, published))
	return nil
}
