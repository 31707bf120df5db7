package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// yamlToJSON re-encodes a .yaml/.yml file as JSON so one strict decoder
// serves both formats. Any other extension is passed through as JSON.
//
// The file must hold at most one document; an empty one is an empty config.
func yamlToJSON(path string, data []byte) ([]byte, string, error) {
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".yaml" && ext != ".yml" {
		return data, "json", nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	var doc any
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, "yaml", fmt.Errorf("yaml unmarshal: %w", err)
	}
	var next any
	if err := dec.Decode(&next); !errors.Is(err, io.EOF) {
		return nil, "yaml", errors.New("yaml: expected a single document")
	}

	tree, err := jsonTree("", doc)
	if err != nil {
		return nil, "yaml", err
	}
	if tree == nil {
		tree = map[string]any{}
	}
	j, err := json.Marshal(tree)
	if err != nil {
		return nil, "yaml", fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, "yaml", nil
}

// jsonTree returns a copy of a decoded YAML value with every mapping keyed by
// string. Scalar keys are formatted; collection keys are an error. in is not
// modified.
func jsonTree(at string, in any) (any, error) {
	switch x := in.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, v := range x {
			c, err := jsonTree(join(at, k), v)
			if err != nil {
				return nil, err
			}
			out[k] = c
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, v := range x {
			key, err := scalarKey(at, k)
			if err != nil {
				return nil, err
			}
			c, err := jsonTree(join(at, key), v)
			if err != nil {
				return nil, err
			}
			out[key] = c
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, v := range x {
			c, err := jsonTree(at+"["+strconv.Itoa(i)+"]", v)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	default:
		return in, nil
	}
}

func scalarKey(at string, k any) (string, error) {
	switch k.(type) {
	case string, bool, int, int64, uint64, float64, nil:
		return fmt.Sprint(k), nil
	}
	if at == "" {
		at = "<root>"
	}
	return "", fmt.Errorf("yaml: %s: unsupported %T mapping key", at, k)
}

func join(at, key string) string {
	if at == "" {
		return key
	}
	return at + "." + key
}
