package client

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/git-pkgs/pubcheck/internal/core"
)

// DefaultRegistryURL is the public npm registry.
const DefaultRegistryURL = "https://registry.npmjs.org"

// URLs builds npm registry and website URLs for a package.
type URLs struct {
	baseURL string
}

// NewURLs returns a builder for the registry at baseURL, or the public
// registry when baseURL is empty.
func NewURLs(baseURL string) *URLs {
	if baseURL == "" {
		baseURL = DefaultRegistryURL
	}
	return &URLs{baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Base returns the registry base URL without a trailing slash.
func (u *URLs) Base() string {
	return u.baseURL
}

// Packument is the full metadata document listing every published version.
func (u *URLs) Packument(name string) string {
	return fmt.Sprintf("%s/%s", u.baseURL, url.PathEscape(name))
}

// Version is the metadata document for a single published version.
func (u *URLs) Version(name, version string) string {
	return fmt.Sprintf("%s/%s/%s", u.baseURL, url.PathEscape(name), url.PathEscape(version))
}

// Tarball is the download URL npm assigns to a published version.
func (u *URLs) Tarball(name, version string) string {
	if version == "" {
		return ""
	}
	_, shortName := core.SplitScope(name)
	return fmt.Sprintf("%s/%s/-/%s-%s.tgz", u.baseURL, name, shortName, version)
}

// Website is the npmjs.com page for the package or one of its versions.
func (u *URLs) Website(name, version string) string {
	if version != "" {
		return fmt.Sprintf("https://www.npmjs.com/package/%s/v/%s", name, version)
	}
	return fmt.Sprintf("https://www.npmjs.com/package/%s", name)
}

// PURL is the package URL for the package or one of its versions.
func (u *URLs) PURL(name, version string) string {
	return core.NPMPackageURL(name, version)
}

// BuildURLs returns a map of all non-empty URLs for a package.
// Keys are "registry", "download", "website", and "purl".
func BuildURLs(u *URLs, name, version string) map[string]string {
	result := make(map[string]string)
	if version != "" {
		result["registry"] = u.Version(name, version)
	} else {
		result["registry"] = u.Packument(name)
	}
	if v := u.Tarball(name, version); v != "" {
		result["download"] = v
	}
	result["website"] = u.Website(name, version)
	result["purl"] = u.PURL(name, version)
	return result
}
