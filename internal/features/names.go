package features

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// LoadNames reads the ordered feature-name list at path. JSON and YAML
// files hold a sequence of strings; any other file is one name per line
// with blank lines and # comments skipped.
func LoadNames(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "features: read %s", path)
	}

	names, err := ParseNames(data, filepath.Ext(path))
	if err != nil {
		return nil, eris.Wrapf(err, "features: parse %s", path)
	}
	return names, nil
}

// ParseNames decodes a feature-name list. ext selects the format
// (".json", ".yaml", ".yml"; anything else is plain text).
func ParseNames(data []byte, ext string) ([]string, error) {
	var names []string
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(data, &names); err != nil {
			return nil, eris.Wrap(err, "features: decode json")
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &names); err != nil {
			return nil, eris.Wrap(err, "features: decode yaml")
		}
	default:
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			names = append(names, line)
		}
	}

	if len(names) == 0 {
		return nil, eris.New("features: feature-name list is empty")
	}
	for i, n := range names {
		if n == "" {
			return nil, eris.Errorf("features: feature name %d is empty", i)
		}
	}
	return names, nil
}
