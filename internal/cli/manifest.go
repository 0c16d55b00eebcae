package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

// Manifest is one YAML document describing a resource to create.
type Manifest struct {
	Kind string         `yaml:"kind"`
	Spec map[string]any `yaml:"spec"`
	// JSON is the spec encoded once at parse time; create posts it as is.
	JSON json.RawMessage `yaml:"-"`
}

// LoadManifests parses a file containing one or more YAML documents, each
// with a kind and a spec. Documents are returned in file order.
func LoadManifests(filename string) ([]Manifest, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return ParseManifests(data)
}

// ParseManifests parses manifest documents from byte data.
func ParseManifests(data []byte) ([]Manifest, error) {
	data = replaceTabsWithSpaces(data)

	content := strings.TrimSpace(string(data))
	if len(content) == 0 || strings.Trim(content, "- \n\t") == "" {
		return []Manifest{}, nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	var manifests []Manifest

	for {
		var m Manifest
		if err := decoder.Decode(&m); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to decode YAML: %w", err)
		}
		// Skip empty documents (common with trailing ---)
		if m.Kind == "" && len(m.Spec) == 0 {
			continue
		}
		if m.Kind == "" {
			return nil, fmt.Errorf("manifest document %d is missing a kind", len(manifests)+1)
		}
		if _, err := MapKindToURL(m.Kind); err != nil {
			return nil, err
		}

		jsonData, err := jsoniter.Marshal(m.Spec)
		if err != nil {
			return nil, fmt.Errorf("unable to convert spec to JSON: %w", err)
		}
		m.JSON = jsonData
		manifests = append(manifests, m)
	}

	return manifests, nil
}

// replaceTabsWithSpaces replaces leading tabs so hand-edited files with
// stray tabs still parse as YAML.
func replaceTabsWithSpaces(data []byte) []byte {
	lines := bytes.Split(data, []byte("\n"))
	for i, line := range lines {
		n := 0
		for n < len(line) && line[n] == '\t' {
			n++
		}
		if n > 0 {
			lines[i] = append(bytes.Repeat([]byte("  "), n), line[n:]...)
		}
	}
	return bytes.Join(lines, []byte("\n"))
}

// name returns a human label for a manifest, preferring the spec title.
func (m Manifest) name() string {
	for _, key := range []string{"title", "name"} {
		if v, ok := m.Spec[key].(string); ok && v != "" {
			return v
		}
	}
	return "(unnamed)"
}
