// Package manifest reads package.json files and rewrites their version field.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/git-pkgs/pubcheck/internal/core"
)

// FileName is the manifest file looked up in each package directory.
const FileName = "package.json"

// ErrNotFound is returned by Read when the directory has no manifest.
var ErrNotFound = core.ErrNotFound

// ErrNoVersion is returned by WriteVersion when the manifest has no
// top-level string "version" field to rewrite.
var ErrNoVersion = errors.New("manifest has no version field")

// Manifest holds the package.json fields pubcheck cares about.
type Manifest struct {
	Path    string
	Name    string
	Version string
	Private bool
	License string
	Raw     []byte
}

type rawManifest struct {
	Name    string          `json:"name"`
	Version string          `json:"version"`
	Private bool            `json:"private"`
	License json.RawMessage `json:"license"`
}

// Path returns the manifest path for a package directory.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Read loads the manifest in dir.
func Read(dir string) (Manifest, error) {
	path := Path(dir)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Manifest{}, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("reading manifest: %w", err)
	}

	var raw rawManifest
	if err := json.Unmarshal(data, &raw); err != nil {
		return Manifest{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	return Manifest{
		Path:    path,
		Name:    raw.Name,
		Version: raw.Version,
		Private: raw.Private,
		License: licenseID(raw.License),
		Raw:     data,
	}, nil
}

// licenseID accepts both "MIT" and the legacy {"type": "MIT"} form.
func licenseID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Type
	}
	return ""
}

// WriteVersion sets the top-level version of the manifest in dir. Only the
// bytes of the version value change; key order and formatting are kept. The
// file is replaced atomically and an unchanged version is not rewritten.
func WriteVersion(dir, version string) error {
	path := Path(dir)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("stat manifest: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading manifest: %w", err)
	}

	updated, changed, err := replaceVersion(data, version)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if !changed {
		return nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".package.json-*")
	if err != nil {
		return fmt.Errorf("creating temp manifest: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(updated); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing temp manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing temp manifest: %w", err)
	}
	if err := os.Chmod(tmpName, info.Mode().Perm()); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("setting manifest permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("renaming manifest: %w", err)
	}
	return nil
}

// replaceVersion swaps the value of the first top-level "version" key.
func replaceVersion(data []byte, version string) ([]byte, bool, error) {
	start, end, current, err := locateVersion(data)
	if err != nil {
		return nil, false, err
	}
	if current == version {
		return data, false, nil
	}

	encoded, err := json.Marshal(version)
	if err != nil {
		return nil, false, err
	}

	out := make([]byte, 0, len(data)-(end-start)+len(encoded))
	out = append(out, data[:start]...)
	out = append(out, encoded...)
	out = append(out, data[end:]...)
	return out, true, nil
}

// locateVersion returns the byte range of the top-level version string
// literal, quotes included.
func locateVersion(data []byte) (start, end int, current string, err error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	depth := 0
	expectKey := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return 0, 0, "", ErrNoVersion
		}
		if err != nil {
			return 0, 0, "", fmt.Errorf("parsing manifest: %w", err)
		}

		if delim, ok := tok.(json.Delim); ok {
			switch delim {
			case '{', '[':
				if depth == 0 && delim != '{' {
					return 0, 0, "", errors.New("manifest is not a JSON object")
				}
				depth++
				if depth == 1 {
					expectKey = true
				}
			case '}', ']':
				depth--
				if depth == 0 {
					return 0, 0, "", ErrNoVersion
				}
				if depth == 1 {
					expectKey = true
				}
			}
			continue
		}

		if depth != 1 {
			continue
		}
		if !expectKey {
			expectKey = true
			continue
		}

		expectKey = false
		if key, _ := tok.(string); key != "version" {
			continue
		}

		keyEnd := int(dec.InputOffset())
		val, err := dec.Token()
		if err != nil {
			return 0, 0, "", fmt.Errorf("parsing manifest: %w", err)
		}
		s, ok := val.(string)
		if !ok {
			return 0, 0, "", fmt.Errorf("%w: version is not a string", ErrNoVersion)
		}
		end = int(dec.InputOffset())
		start = bytes.IndexByte(data[keyEnd:end], '"')
		if start < 0 {
			return 0, 0, "", fmt.Errorf("%w: malformed version value", ErrNoVersion)
		}
		return keyEnd + start, end, s, nil
	}
}
