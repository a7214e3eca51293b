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
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testComponents = `component "vpc" {
  source  = "terraform-aws-modules/vpc/aws"
  version = "~> 5.13"

  inputs = {
    name = var.cluster_name
    cidr = var.vpc_cidr
  }

  providers = {
    aws = provider.aws.this
  }
}

component "eks" {
  source  = "terraform-aws-modules/eks/aws"
  version = "~> 20.24"

  inputs = {
    cluster_name = var.cluster_name
    vpc_id       = component.vpc.vpc_id
  }

  providers = {
    aws = provider.aws.this
  }
}

variable "enable_karpenter" {
  type    = bool
  default = false
}
`

const testDeployments = `deployment "us_east_1" {
  inputs = {
    region       = "us-east-1"
    cluster_name = "fleet-us-east-1"
    vpc_cidr     = "10.0.0.0/16"
  }
}

deployment "eu_west_1" {
  inputs = {
    region       = "eu-west-1"
    cluster_name = "fleet-eu-west-1"
    vpc_cidr     = "10.1.0.0/16"
  }
}
`

func writeTestStack(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "components"+ComponentFileSuffix), []byte(testComponents), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "deployments"+DeploymentFileSuffix), []byte(testDeployments), 0o644))

	return dir
}

func TestLoadListsComponents(t *testing.T) {
	src, err := Load(writeTestStack(t))
	require.NoError(t, err)

	components, err := src.Components()
	require.NoError(t, err)
	require.Len(t, components, 2)

	require.Equal(t, "vpc", components[0].Name)
	require.Equal(t, "terraform-aws-modules/vpc/aws", components[0].Source)
	require.Equal(t, "~> 5.13", components[0].Version)
	require.Equal(t, "eks", components[1].Name)
}

func TestLoadRejectsBrokenHCL(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken"+ComponentFileSuffix), []byte(`component "x" {`), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
}

func TestDisableComponentInsertsRemovedBlock(t *testing.T) {
	src, err := Load(writeTestStack(t))
	require.NoError(t, err)

	require.NoError(t, src.DisableComponent("eks"))
	require.False(t, src.HasComponent("eks"))
	require.True(t, src.IsComponentRemoved("eks"))

	written, err := src.Save()
	require.NoError(t, err)
	require.Len(t, written, 1)

	content, err := os.ReadFile(written[0])
	require.NoError(t, err)
	require.Contains(t, string(content), "removed {")
	require.Contains(t, string(content), "from = component.eks")
	// source and provider wiring must survive into the removed block
	require.Contains(t, string(content), `source = "terraform-aws-modules/eks/aws"`)
	require.Contains(t, string(content), "aws = provider.aws.this")
}

func TestDisableComponentIsIdempotent(t *testing.T) {
	src, err := Load(writeTestStack(t))
	require.NoError(t, err)

	require.NoError(t, src.DisableComponent("vpc"))
	_, err = src.Save()
	require.NoError(t, err)

	// a second disable run must not produce any further diff
	err = src.DisableComponent("vpc")
	require.True(t, errors.Is(err, ErrComponentRemoved))
	require.Empty(t, src.Changes())
}

func TestDisableUnknownComponent(t *testing.T) {
	src, err := Load(writeTestStack(t))
	require.NoError(t, err)

	err = src.DisableComponent("karpenter")
	require.True(t, errors.Is(err, ErrComponentNotFound))
}

func TestEnableComponentAfterDisable(t *testing.T) {
	src, err := Load(writeTestStack(t))
	require.NoError(t, err)

	require.NoError(t, src.DisableComponent("eks"))
	_, err = src.Save()
	require.NoError(t, err)

	def := ComponentDef{
		Name:    "eks",
		Source:  "terraform-aws-modules/eks/aws",
		Version: "~> 20.24",
		Inputs: map[string]string{
			"cluster_name": "var.cluster_name",
		},
		Providers: map[string]string{
			"aws": "provider.aws.this",
		},
	}

	require.NoError(t, src.EnableComponent(def))
	require.True(t, src.HasComponent("eks"))
	require.False(t, src.IsComponentRemoved("eks"), "stale removed block must be dropped")

	err = src.EnableComponent(def)
	require.True(t, errors.Is(err, ErrComponentExists))
}

func TestMutationKeepsUntouchedBlocksVerbatim(t *testing.T) {
	dir := writeTestStack(t)

	src, err := Load(dir)
	require.NoError(t, err)

	require.NoError(t, src.EnableComponent(ComponentDef{
		Name:   "karpenter",
		Source: "terraform-aws-modules/eks/aws//modules/karpenter",
		Inputs: map[string]string{"cluster_name": "component.eks.cluster_name"},
	}))

	_, err = src.Save()
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dir, "components"+ComponentFileSuffix))
	require.NoError(t, err)

	// the original declarations must survive byte for byte
	require.True(t, strings.HasPrefix(string(content), testComponents))
}

func TestSetComponentInput(t *testing.T) {
	dir := writeTestStack(t)

	src, err := Load(dir)
	require.NoError(t, err)

	require.NoError(t, src.SetComponentInput("eks", "cluster_version", `"1.31"`))
	require.Len(t, src.Changes(), 1)

	_, err = src.Save()
	require.NoError(t, err)

	// setting the same expression again must be a no-op
	require.NoError(t, src.SetComponentInput("eks", "cluster_version", `"1.31"`))
	require.Empty(t, src.Changes())

	text, err := objectEntryText(src.componentFiles()[0], "component", "eks", "inputs", "vpc_id")
	require.NoError(t, err)
	require.Equal(t, "component.vpc.vpc_id", text, "sibling entries must keep their expressions")
}
