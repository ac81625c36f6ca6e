package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFile is read when no file is named on the command line.
const DefaultFile = ".env"

// LoadFile reads a key/value file. Files ending in .yaml or .yml are parsed
// as a flat YAML mapping after environment expansion; anything else is
// parsed as a dotenv file. The process environment is never modified.
// When optional is set a missing file yields an empty source.
func LoadFile(path string, optional bool) (Values, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return Values{}, nil
		}
		return nil, &ConfigurationError{Key: "config file", Value: path, Reason: err.Error()}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return parseYAML(path, data)
	default:
		m, err := godotenv.UnmarshalBytes(data)
		if err != nil {
			return nil, &ConfigurationError{Key: "config file", Value: path, Reason: fmt.Sprintf("parse dotenv: %v", err)}
		}
		return normalise(m), nil
	}
}

func parseYAML(path string, data []byte) (Values, error) {
	expanded := os.ExpandEnv(string(data))

	var raw map[string]any
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, &ConfigurationError{Key: "config file", Value: path, Reason: fmt.Sprintf("parse yaml: %v", err)}
	}

	m := make(map[string]string, len(raw))
	for k, v := range raw {
		switch v.(type) {
		case map[string]any, []any:
			// only flat scalars map onto settings
			continue
		case nil:
			m[k] = ""
		default:
			m[k] = fmt.Sprint(v)
		}
	}
	return normalise(m), nil
}

func normalise(m map[string]string) Values {
	v := make(Values, len(m))
	for k, val := range m {
		v[strings.ToUpper(strings.TrimSpace(k))] = val
	}
	return v
}

// FromEnviron picks the known keys out of an os.Environ style slice.
func FromEnviron(environ []string) Values {
	v := make(Values)
	for _, kv := range environ {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || !IsKnownKey(key) {
			continue
		}
		v[key] = val
	}
	return v
}
