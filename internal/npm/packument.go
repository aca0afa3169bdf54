package npm

import (
	"sort"

	"github.com/git-pkgs/pubcheck/internal/semver"
)

// packument is the subset of the registry's package document we read.
type packument struct {
	ID       string                 `json:"_id"`
	Name     string                 `json:"name"`
	Versions map[string]versionInfo `json:"versions"`
	DistTags map[string]string      `json:"dist-tags"`
}

type versionInfo struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	Deprecated string `json:"deprecated"`
}

// versionNumbers returns every published version sorted by precedence.
func (p *packument) versionNumbers() []string {
	versions := make([]string, 0, len(p.Versions))
	for num := range p.Versions {
		versions = append(versions, num)
	}
	sortVersions(versions)
	return versions
}

// deprecated lists versions the maintainers marked as deprecated.
func (p *packument) deprecated() []string {
	var out []string
	for num, v := range p.Versions {
		if v.Deprecated != "" {
			out = append(out, num)
		}
	}
	sortVersions(out)
	return out
}

func sortVersions(versions []string) {
	sort.SliceStable(versions, func(i, j int) bool {
		return semver.Compare(versions[i], versions[j]) < 0
	})
}
