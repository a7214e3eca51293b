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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeValuesFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	filename := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(filename, []byte(content), 0644))

	return filename
}

func TestMergeValuesFiles(t *testing.T) {
	dir := t.TempDir()

	base := writeValuesFile(t, dir, "base.yaml", `
replicas: 2
controller:
  resources:
    requests:
      cpu: 500m
      memory: 512Mi
settings:
  clusterName: demo
`)

	override := writeValuesFile(t, dir, "override.yaml", `
replicas: 3
controller:
  resources:
    requests:
      cpu: 1
`)

	merged, err := MergeValuesFiles([]string{base, override})
	require.NoError(t, err)

	assert.Equal(t, 3, merged["replicas"])

	controller, ok := merged["controller"].(map[string]any)
	require.True(t, ok)
	resources, ok := controller["resources"].(map[string]any)
	require.True(t, ok)
	requests, ok := resources["requests"].(map[string]any)
	require.True(t, ok)

	assert.Equal(t, 1, requests["cpu"])
	assert.Equal(t, "512Mi", requests["memory"])

	settings, ok := merged["settings"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "demo", settings["clusterName"])
}

func TestMergeValuesFilesEmptyList(t *testing.T) {
	merged, err := MergeValuesFiles(nil)
	require.NoError(t, err)
	assert.Empty(t, merged)
}

func TestMergeValuesOverridesDefaults(t *testing.T) {
	dir := t.TempDir()

	override := writeValuesFile(t, dir, "override.yaml", `
settings:
  clusterName: other
`)

	defaults := map[string]any{
		"replicas": 2,
		"settings": map[string]any{
			"clusterName":       "demo",
			"interruptionQueue": "demo-queue",
		},
	}

	merged, err := MergeValues(defaults, []string{override})
	require.NoError(t, err)

	assert.Equal(t, 2, merged["replicas"])

	settings, ok := merged["settings"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "other", settings["clusterName"])
	assert.Equal(t, "demo-queue", settings["interruptionQueue"])
}

func TestMergeValuesFilesInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	broken := writeValuesFile(t, dir, "broken.yaml", "replicas: [unclosed")

	_, err := MergeValuesFiles([]string{broken})
	assert.Error(t, err)
}
