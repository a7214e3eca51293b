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

package argocd

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
)

//go:embed manifests/root-app.yaml
var manifestFS embed.FS

type rootAppData struct {
	RepoURL        string
	TargetRevision string
	Path           string
}

// rootAppManifest renders the app-of-apps Application pointing at the
// fleet configuration repository.
func rootAppManifest(repoURL, revision, path string) ([]byte, error) {
	if revision == "" {
		revision = "HEAD"
	}
	if path == "" {
		path = "."
	}

	content, err := manifestFS.ReadFile("manifests/root-app.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded manifest: %w", err)
	}

	tmpl, err := template.New("root-app").Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse root application template: %w", err)
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, rootAppData{
		RepoURL:        repoURL,
		TargetRevision: revision,
		Path:           path,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render root application: %w", err)
	}

	return buf.Bytes(), nil
}
