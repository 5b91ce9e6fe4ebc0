package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

// ReadConfig reads name and merges "<name>.local.<ext>" over it. It returns
// os.ErrNotExist when neither file exists.
func ReadConfig[T any](name string) (T, error) {
	var out T
	found := false

	ext := filepath.Ext(name)
	local := strings.TrimSuffix(name, ext) + ".local" + ext

	data, err := os.ReadFile(name)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(data) > 0 {
		if err := json5.Unmarshal(data, &out); err != nil {
			return out, fmt.Errorf("%s: %w", name, err)
		}
		found = true
	}

	data, err = os.ReadFile(local)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(data) > 0 {
		var override T
		if err := json5.Unmarshal(data, &override); err != nil {
			return out, fmt.Errorf("%s: %w", local, err)
		}
		if err := mergo.Merge(&out, override, mergo.WithOverride); err != nil {
			return out, err
		}
		found = true
	}

	if !found {
		return out, os.ErrNotExist
	}
	return out, nil
}
