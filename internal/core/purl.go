package core

import (
	"strings"

	packageurl "github.com/package-url/packageurl-go"
)

// SplitScope separates an npm scope from the bare package name.
// "@babel/core" yields ("@babel", "core"); "lodash" yields ("", "lodash").
func SplitScope(name string) (scope, bare string) {
	if strings.HasPrefix(name, "@") && strings.Contains(name, "/") {
		parts := strings.SplitN(name, "/", 2)
		return parts[0], parts[1]
	}
	return "", name
}

// NPMPackageURL builds the package URL for an npm package, with or without version.
func NPMPackageURL(name, version string) string {
	scope, bare := SplitScope(name)
	return packageurl.NewPackageURL(packageurl.TypeNPM, scope, bare, version, nil, "").ToString()
}

// ParseNPMPackageURL parses an npm PURL into a full package name and version.
func ParseNPMPackageURL(purl string) (name, version string, err error) {
	p, err := packageurl.FromString(purl)
	if err != nil {
		return "", "", err
	}
	if p.Type != packageurl.TypeNPM {
		return "", "", &NotFoundError{Name: purl}
	}
	name = p.Name
	if p.Namespace != "" {
		name = p.Namespace + "/" + p.Name
	}
	return name, p.Version, nil
}

// PURL returns the package URL identifying the target.
func (t PackageTarget) PURL() string {
	return NPMPackageURL(t.Name, t.Version)
}

// String renders the target as name@version.
func (t PackageTarget) String() string {
	return t.Name + "@" + t.Version
}
