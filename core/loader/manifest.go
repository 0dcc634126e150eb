// Package loader implements spec.md §4.8's manifest pipeline: read sources,
// validate, lower, typecheck, encode, hash, and produce a runtime call
// facade backed by core/engine. Grounded on
// original_source/vm_py/runtime/loader.py's load()/Contract class.
package loader

import (
	"encoding/json"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/animica-labs/pyvm/core/vmerrors"
)

// Manifest is the subset of manifest fields the core consumes (SPEC_FULL.md
// §6's manifest schema). Unknown fields are ignored.
type Manifest struct {
	Name      string          `json:"name" yaml:"name"`
	Version   string          `json:"version" yaml:"version"`
	Language  string          `json:"language" yaml:"language"`
	Entry     string          `json:"entry" yaml:"entry"`
	Source    string          `json:"source" yaml:"source"`
	Sources   []string        `json:"sources" yaml:"sources"`
	Code      string          `json:"code" yaml:"code"`
	Exports   []string        `json:"exports" yaml:"exports"`
	ABI       json.RawMessage `json:"abi" yaml:"-"`
	Resources ResourceSection `json:"resources" yaml:"resources"`
}

// ResourceSection mirrors core/resource.FromManifest's expected shape.
type ResourceSection struct {
	Caps   []string          `json:"caps" yaml:"caps"`
	Limits map[string]uint64 `json:"limits" yaml:"limits"`
}

func mErr(msg string, ctx map[string]any) error {
	return vmerrors.New(vmerrors.CodeValidationGeneric, msg, ctx)
}

// LoadManifest reads a manifest from disk. JSON is the default; files named
// .yaml or .yml are parsed with gopkg.in/yaml.v3, matching the teacher's
// dual JSON/YAML manifest convention.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, vmerrors.Wrap(vmerrors.CodeValidationGeneric, "read manifest", err)
	}
	return ParseManifest(data, path)
}

// ParseManifest parses raw manifest bytes, selecting YAML when hint ends in
// .yaml/.yml and JSON otherwise.
func ParseManifest(data []byte, hint string) (*Manifest, error) {
	var m Manifest
	if strings.HasSuffix(hint, ".yaml") || strings.HasSuffix(hint, ".yml") {
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, vmerrors.Wrap(vmerrors.CodeValidationGeneric, "parse yaml manifest", err)
		}
	} else if err := json.Unmarshal(data, &m); err != nil {
		return nil, vmerrors.Wrap(vmerrors.CodeValidationGeneric, "parse json manifest", err)
	}
	if m.Name == "" {
		return nil, mErr("manifest missing required field: name", nil)
	}
	if m.Source == "" && len(m.Sources) == 0 && m.Code == "" {
		return nil, mErr("manifest declares no source (source, sources, or code required)", nil)
	}
	return &m, nil
}

// assembleSource concatenates the manifest's declared sources in order,
// inserting a file-marker comment between multiple files (step 2).
func assembleSource(m *Manifest, baseDir string) (string, error) {
	if m.Code != "" {
		return m.Code, nil
	}
	files := m.Sources
	if len(files) == 0 {
		files = []string{m.Source}
	}
	var parts []string
	for _, f := range files {
		path := f
		if baseDir != "" && !strings.HasPrefix(f, "/") {
			path = baseDir + "/" + f
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", vmerrors.Wrap(vmerrors.CodeValidationGeneric, "read source file", err)
		}
		if len(files) > 1 {
			parts = append(parts, "# --- file: "+f+" ---\n"+string(data))
		} else {
			parts = append(parts, string(data))
		}
	}
	return strings.Join(parts, "\n\n"), nil
}
