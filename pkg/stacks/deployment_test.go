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
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestDeployments(t *testing.T) {
	src, err := Load(writeTestStack(t))
	require.NoError(t, err)

	deployments, err := src.Deployments()
	require.NoError(t, err)
	require.Len(t, deployments, 2)

	require.Equal(t, "us_east_1", deployments[0].Name)
	require.Equal(t, "us-east-1", deployments[0].Region)
	require.Equal(t, "fleet-us-east-1", deployments[0].ClusterName)
	require.False(t, deployments[0].Destroy)

	require.Equal(t, "eu_west_1", deployments[1].Name)
	require.Equal(t, "eu-west-1", deployments[1].Region)
}

func TestSetDeploymentDestroy(t *testing.T) {
	dir := writeTestStack(t)

	src, err := Load(dir)
	require.NoError(t, err)

	require.NoError(t, src.SetDeploymentDestroy("us_east_1", true))
	require.Len(t, src.Changes(), 1)

	_, err = src.Save()
	require.NoError(t, err)

	d, err := src.Deployment("us_east_1")
	require.NoError(t, err)
	require.True(t, d.Destroy)

	// the sibling deployment must be untouched
	other, err := src.Deployment("eu_west_1")
	require.NoError(t, err)
	require.False(t, other.Destroy)

	content, err := os.ReadFile(filepath.Join(dir, "deployments"+DeploymentFileSuffix))
	require.NoError(t, err)
	require.Contains(t, string(content), `region       = "eu-west-1"`)

	// the flag must be an argument of the deployment block itself; an
	// entry in the inputs object would not trigger a remote teardown
	require.Contains(t, string(content), "destroy = true")

	f, _ := findBlock(src.deploymentFiles(), "deployment", "us_east_1")
	require.NotNil(t, f)

	entry, err := objectEntryText(f, "deployment", "us_east_1", "inputs", "destroy")
	require.NoError(t, err)
	require.Empty(t, entry, "destroy must not be written into the inputs")
}

func TestSetDeploymentDestroyIsIdempotent(t *testing.T) {
	src, err := Load(writeTestStack(t))
	require.NoError(t, err)

	require.NoError(t, src.SetDeploymentDestroy("us_east_1", true))
	_, err = src.Save()
	require.NoError(t, err)

	require.NoError(t, src.SetDeploymentDestroy("us_east_1", true))
	require.Empty(t, src.Changes(), "second toggle must not produce a diff")

	// re-deploying flips the flag back
	require.NoError(t, src.SetDeploymentDestroy("us_east_1", false))
	_, err = src.Save()
	require.NoError(t, err)

	d, err := src.Deployment("us_east_1")
	require.NoError(t, err)
	require.False(t, d.Destroy)
}

func TestSetDeploymentDestroyUnknownDeployment(t *testing.T) {
	src, err := Load(writeTestStack(t))
	require.NoError(t, err)

	err = src.SetDeploymentDestroy("ap_south_1", true)
	require.True(t, errors.Is(err, ErrDeploymentNotFound))
}

func TestVariableDefaultRoundTrip(t *testing.T) {
	src, err := Load(writeTestStack(t))
	require.NoError(t, err)

	val, err := src.VariableDefault("enable_karpenter")
	require.NoError(t, err)
	require.Equal(t, cty.False, val)

	require.NoError(t, src.SetVariableDefault("enable_karpenter", cty.True))
	require.Len(t, src.Changes(), 1)

	_, err = src.Save()
	require.NoError(t, err)

	val, err = src.VariableDefault("enable_karpenter")
	require.NoError(t, err)
	require.Equal(t, cty.True, val)

	// same value again must not dirty the source
	require.NoError(t, src.SetVariableDefault("enable_karpenter", cty.True))
	require.Empty(t, src.Changes())
}

func TestSetVariableDefaultUnknownVariable(t *testing.T) {
	src, err := Load(writeTestStack(t))
	require.NoError(t, err)

	err = src.SetVariableDefault("enable_argocd", cty.True)
	require.True(t, errors.Is(err, ErrVariableNotFound))
}
