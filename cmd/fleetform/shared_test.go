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

package main

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func TestEnvFallbackPreRun(t *testing.T) {
	t.Setenv("CLUSTER_NAME", "fleet-prod")
	t.Setenv("REGION", "us-east-1")
	t.Setenv("KUBECONFIG", "/tmp/kubeconfig")
	t.Setenv("TFE_ORGANIZATION", "acme")
	t.Setenv("TFE_STACK", "fleet")

	// a flag given explicitly must not be overwritten by the environment
	opt := clusterOptions{Region: "eu-west-1"}
	envFallbackPreRun(&opt)(nil, nil)

	require.Equal(t, "fleet-prod", opt.ClusterName)
	require.Equal(t, "eu-west-1", opt.Region)
	require.Equal(t, "/tmp/kubeconfig", opt.Kubeconfig)
	require.Equal(t, "acme", opt.Organization)
	require.Equal(t, "fleet", opt.Stack)
}

func TestLeafCommandsResolveEnvBeforeRunning(t *testing.T) {
	logger := logrus.New()

	leaves := []*cobra.Command{
		DeployCommand(logger),
		DestroyCommand(logger),
		VerifyCommand(logger),
	}
	for _, group := range []*cobra.Command{KarpenterCommand(logger), ArgoCDCommand(logger)} {
		leaves = append(leaves, group.Commands()...)
	}

	for _, cmd := range leaves {
		require.NotNilf(t, cmd.PreRun, "command %q must resolve environment fallbacks in a PreRun hook", cmd.Use)
	}
}
