package pubcheck_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/git-pkgs/pubcheck"
	"github.com/git-pkgs/pubcheck/internal/npm"
)

// flakyCLI times out for "taken" so its answers come from the HTTP fallback,
// and reports every other package as never published.
type flakyCLI struct{}

func (flakyCLI) Run(ctx context.Context, name string, args ...string) (npm.Result, error) {
	if strings.HasPrefix(args[1], "taken") {
		return npm.Result{ExitCode: 1, Stderr: []byte("npm ERR! code ETIMEDOUT")}, nil
	}
	return npm.Result{ExitCode: 1, Stderr: []byte("npm ERR! code E404")}, nil
}

func newRegistryServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/taken":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"name":"taken","versions":{"1.0.0":{},"1.0.1":{}}}`))
		case "/taken/1.0.0", "/taken/1.0.1":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func writePackage(t *testing.T, root, dir, name, version string) {
	t.Helper()
	path := filepath.Join(root, dir)
	if err := os.MkdirAll(filepath.Join(path, "dist"), 0755); err != nil {
		t.Fatal(err)
	}
	content := `{"name": "` + name + `", "version": "` + version + `"}`
	if err := os.WriteFile(filepath.Join(path, "package.json"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestEndToEnd(t *testing.T) {
	server := newRegistryServer(t)
	root := t.TempDir()
	writePackage(t, root, "packages/fresh", "fresh", "0.1.0")
	writePackage(t, root, "packages/taken", "taken", "1.0.0")

	targets, err := pubcheck.Discover(root, nil)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(targets))
	}

	reg := pubcheck.NewRegistryOracle(pubcheck.RegistryOptions{
		RegistryURL: server.URL,
		Runner:      flakyCLI{},
	})
	defer reg.Close()

	batch := pubcheck.NewAnalyzer(reg).AnalyzeMultiple(context.Background(), targets)
	if batch.Recommendation != pubcheck.BatchResolveConflicts {
		t.Errorf("expected %q, got %q", pubcheck.BatchResolveConflicts, batch.Recommendation)
	}

	byName := map[string]pubcheck.PackageAnalysis{}
	for _, a := range batch.Packages {
		byName[a.PackageName] = a
	}
	if got := byName["fresh"].OverallStatus; got != pubcheck.StatusSafe {
		t.Errorf("fresh: expected %q, got %q", pubcheck.StatusSafe, got)
	}
	taken := byName["taken"]
	if taken.OverallStatus != pubcheck.StatusConflict {
		t.Fatalf("taken: expected %q, got %q", pubcheck.StatusConflict, taken.OverallStatus)
	}
	rec, ok := taken.SuggestedVersion()
	if !ok {
		t.Fatal("expected an auto-resolvable suggestion")
	}
	if rec.SuggestedVersion != "1.1.0" {
		t.Errorf("expected suggestion 1.1.0, got %q", rec.SuggestedVersion)
	}

	cats := pubcheck.Categorize(batch)
	if len(cats.Conflicts) != 1 || len(cats.ReadyToPublish) != 1 {
		t.Errorf("unexpected categories: %d conflicts, %d ready", len(cats.Conflicts), len(cats.ReadyToPublish))
	}

	report, err := pubcheck.NewResolver(pubcheck.ResolverOptions{AssumeYes: true}).Resolve(context.Background(), batch)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if report.AutoResolved != 1 {
		t.Errorf("expected 1 auto resolution, got %d", report.AutoResolved)
	}

	updated, err := pubcheck.FromPaths(filepath.Join(root, "packages/taken"))
	if err != nil {
		t.Fatalf("FromPaths failed: %v", err)
	}
	if updated[0].Version != "1.1.0" {
		t.Errorf("expected package.json at 1.1.0, got %q", updated[0].Version)
	}
}

func TestSuggestNext(t *testing.T) {
	tests := []struct {
		current   string
		published []string
		want      string
	}{
		{"1.0.0", nil, "1.0.1"},
		{"1.0.0", []string{"1.0.1"}, "1.1.0"},
		{"1.0.0", []string{"1.0.1", "1.1.0"}, "2.0.0"},
	}

	for _, tt := range tests {
		if got := pubcheck.SuggestNext(tt.current, tt.published); got != tt.want {
			t.Errorf("SuggestNext(%q, %v) = %q, want %q", tt.current, tt.published, got, tt.want)
		}
	}
}

func TestBuildURLs(t *testing.T) {
	reg := pubcheck.NewRegistryOracle(pubcheck.RegistryOptions{})
	defer reg.Close()

	urls := pubcheck.BuildURLs(reg, "@scope/pkg", "2.0.0")
	want := map[string]string{
		"registry": "https://registry.npmjs.org/@scope%2Fpkg/2.0.0",
		"download": "https://registry.npmjs.org/@scope/pkg/-/pkg-2.0.0.tgz",
		"website":  "https://www.npmjs.com/package/@scope/pkg/v/2.0.0",
	}
	for k, v := range want {
		if urls[k] != v {
			t.Errorf("%s: expected %q, got %q", k, v, urls[k])
		}
	}
	if p := urls["purl"]; !strings.HasPrefix(p, "pkg:npm/") || !strings.HasSuffix(p, "/pkg@2.0.0") {
		t.Errorf("unexpected purl %q", p)
	}
}
