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

package karpenter

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
)

//go:embed manifests/*.yaml
var manifestFS embed.FS

type manifestData struct {
	ClusterName string
	NodeRole    string
	Replicas    int
}

func renderManifest(name string, data manifestData) ([]byte, error) {
	content, err := manifestFS.ReadFile("manifests/" + name)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded manifest %s: %w", name, err)
	}

	tmpl, err := template.New(name).Option("missingkey=error").Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render manifest %s: %w", name, err)
	}

	return buf.Bytes(), nil
}

// defaultNodeResources renders the NodePool and EC2NodeClass applied after
// the controller is up. The node role name follows the naming of the
// Karpenter Terraform module with name prefixes disabled.
func defaultNodeResources(clusterName string) ([]byte, error) {
	data := manifestData{
		ClusterName: clusterName,
		NodeRole:    "Karpenter-" + clusterName,
	}

	nodePool, err := renderManifest("nodepool.yaml", data)
	if err != nil {
		return nil, err
	}

	nodeClass, err := renderManifest("ec2nodeclass.yaml", data)
	if err != nil {
		return nil, err
	}

	return append(append(nodePool, []byte("---\n")...), nodeClass...), nil
}

func inflateManifest(replicas int) ([]byte, error) {
	return renderManifest("inflate.yaml", manifestData{Replicas: replicas})
}
