/*
Copyright 2025 The fleetform contributors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package helm

import (
	"fmt"
	"os"

	"dario.cat/mergo"
	goyaml "gopkg.in/yaml.v3"
)

// MergeValuesFiles reads any number of YAML values files and merges them
// left to right, later files overriding earlier ones.
func MergeValuesFiles(filenames []string) (map[string]any, error) {
	merged := make(map[string]any)

	for _, filename := range filenames {
		if filename == "" {
			continue
		}

		content, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", filename, err)
		}

		current := make(map[string]any)
		if err := goyaml.Unmarshal(content, &current); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", filename, err)
		}

		// mergo.WithOverride ensures that values from "current"
		// overwrite existing values in "merged"
		if err := mergo.Merge(&merged, current, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge values from %s: %w", filename, err)
		}
	}

	return merged, nil
}

// MergeValues overlays the given values files on top of computed default
// values, so operator-provided files win over fleetform's defaults.
func MergeValues(defaults map[string]any, filenames []string) (map[string]any, error) {
	overrides, err := MergeValuesFiles(filenames)
	if err != nil {
		return nil, err
	}

	if err := mergo.Merge(&defaults, overrides, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge values files: %w", err)
	}

	return defaults, nil
}
