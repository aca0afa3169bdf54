package cli

import (
	"errors"

	"go.uber.org/zap"

	"github.com/git-pkgs/pubcheck/client"
	"github.com/git-pkgs/pubcheck/internal/analyzer"
	"github.com/git-pkgs/pubcheck/internal/core"
	"github.com/git-pkgs/pubcheck/internal/npm"
	"github.com/git-pkgs/pubcheck/internal/oracle"
	"github.com/git-pkgs/pubcheck/internal/workspace"
)

// newRunner builds the runner used to invoke the npm CLI. Tests replace it.
var newRunner = func() npm.Runner { return npm.ExecRunner{} }

// registry is a registry oracle together with the HTTP client it owns.
type registry struct {
	*npm.Oracle
	http *client.Client
}

func newRegistry() *registry {
	r := cfg.Registry
	httpClient := client.NewClient(
		client.WithTimeout(r.HTTPTimeout),
		client.WithUserAgent(r.UserAgent),
		client.WithBreakerThreshold(r.BreakerThreshold),
	)
	o := npm.New(npm.Options{
		CLIPath:     r.CLI,
		CLITimeout:  r.CLITimeout,
		HTTPTimeout: r.HTTPTimeout,
		CacheTTL:    r.CacheTTL,
		RegistryURL: r.URL,
		Runner:      newRunner(),
		HTTP:        httpClient,
		Logger:      logger.Named("npm"),
	})
	return &registry{Oracle: o, http: httpClient}
}

func (r *registry) Close() error {
	if states := r.http.BreakerStates(); len(states) > 0 {
		logger.Debug("circuit breakers", zap.Any("states", states))
	}
	return errors.Join(r.Oracle.Close(), r.http.Close())
}

func newAnalyzer(reg analyzer.RegistryOracle) *analyzer.Analyzer {
	return analyzer.New(reg,
		analyzer.WithOracles(oracle.Defaults(cfg.Oracles.BuildDirs)...),
		analyzer.WithWarningThreshold(cfg.Oracles.WarningThreshold),
		analyzer.WithReporter(printer),
		analyzer.WithLogger(logger.Named("analyzer")),
	)
}

// targets loads the packages named by paths, or discovers the workspace when
// no paths are given.
func targets(paths []string) ([]core.PackageTarget, error) {
	var (
		found []core.PackageTarget
		err   error
	)
	if len(paths) > 0 {
		found, err = workspace.FromPaths(paths)
	} else {
		found, err = workspace.Discover(cfg.Workspace.Root, cfg.Workspace.Patterns)
	}
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, errors.New("no publishable packages found")
	}
	logger.Debug("packages found", zap.Int("count", len(found)))
	return found, nil
}
