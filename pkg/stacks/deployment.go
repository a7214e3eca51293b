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

package stacks

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

// Deployment is a read-only view of one per-region deployment block.
type Deployment struct {
	Name        string
	Region      string
	ClusterName string
	Destroy     bool
	File        string
}

// Deployments lists all deployment blocks in file order.
func (s *Source) Deployments() ([]Deployment, error) {
	var deployments []Deployment

	for _, f := range s.deploymentFiles() {
		body, content, err := syntaxBody(f)
		if err != nil {
			return nil, err
		}

		for _, block := range body.Blocks {
			if block.Type != "deployment" || len(block.Labels) == 0 {
				continue
			}

			d := Deployment{
				Name: block.Labels[0],
				File: f.path,
			}

			if attr, ok := block.Body.Attributes["inputs"]; ok {
				if object, ok := attr.Expr.(*hclsyntax.ObjectConsExpr); ok {
					readDeploymentInputs(&d, object, content)
				}
			}

			// teardown is a block-level argument, separate from the inputs
			if attr, ok := block.Body.Attributes["destroy"]; ok {
				val, diags := attr.Expr.Value(nil)
				if !diags.HasErrors() && val.Type() == cty.Bool {
					d.Destroy = val.True()
				}
			}

			deployments = append(deployments, d)
		}
	}

	return deployments, nil
}

// Deployment returns the deployment with the given name.
func (s *Source) Deployment(name string) (Deployment, error) {
	deployments, err := s.Deployments()
	if err != nil {
		return Deployment{}, err
	}

	for _, d := range deployments {
		if d.Name == name {
			return d, nil
		}
	}

	return Deployment{}, fmt.Errorf("%w: %s", ErrDeploymentNotFound, name)
}

// SetDeploymentDestroy toggles the deployment's destroy argument. It is a
// block-level argument of the deployment, not an input: the remote runner
// plans a full teardown of the deployment when it is true.
func (s *Source) SetDeploymentDestroy(name string, destroy bool) error {
	_, block := findBlock(s.deploymentFiles(), "deployment", name)
	if block == nil {
		return fmt.Errorf("%w: %s", ErrDeploymentNotFound, name)
	}

	block.Body().SetAttributeValue("destroy", cty.BoolVal(destroy))

	return nil
}

// SetDeploymentInput sets one input expression of a deployment.
func (s *Source) SetDeploymentInput(name, key, value string) error {
	f, block := findBlock(s.deploymentFiles(), "deployment", name)
	if block == nil {
		return fmt.Errorf("%w: %s", ErrDeploymentNotFound, name)
	}

	return setObjectEntry(f, "deployment", name, "inputs", key, value)
}

func readDeploymentInputs(d *Deployment, object *hclsyntax.ObjectConsExpr, content []byte) {
	for _, item := range object.Items {
		key := keyName(exprText(item.KeyExpr, content))

		val, diags := item.ValueExpr.Value(nil)
		if diags.HasErrors() {
			continue
		}

		switch key {
		case "region":
			if val.Type() == cty.String {
				d.Region = val.AsString()
			}
		case "cluster_name":
			if val.Type() == cty.String {
				d.ClusterName = val.AsString()
			}
		}
	}

	// cluster names commonly default to the deployment name
	if d.ClusterName == "" {
		d.ClusterName = strings.ReplaceAll(d.Name, "_", "-")
	}
}
