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
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fleetform/fleetform/pkg/install/layer/karpenter"
)

func KarpenterCommand(logger *logrus.Logger) *cobra.Command {
	opt := clusterOptions{Timeout: 15 * time.Minute}

	cmd := &cobra.Command{
		Use:   "karpenter",
		Short: "Manage Karpenter autoscaling for a fleet member",
	}

	addPublishFlags(cmd, &opt)
	addClusterFlags(cmd, &opt)
	cmd.PersistentFlags().BoolVar(&opt.Direct, "direct", false, "install the Helm chart directly instead of going through the stack configuration")
	cmd.PersistentFlags().StringSliceVar(&opt.Values, "values", nil, "additional Helm values files for --direct installs (can be given multiple times)")

	enable := &cobra.Command{
		Use:          "enable",
		Short:        "Enable Karpenter and apply the default NodePool",
		PreRun:       envFallbackPreRun(&opt),
		RunE:         karpenterFunc(logger, &opt, true),
		SilenceUsage: true,
	}

	disable := &cobra.Command{
		Use:          "disable",
		Short:        "Remove Karpenter and drain the nodes it provisioned",
		PreRun:       envFallbackPreRun(&opt),
		RunE:         karpenterFunc(logger, &opt, false),
		SilenceUsage: true,
	}
	disable.PersistentFlags().BoolVar(&opt.CleanupCRDs, "cleanup-crds", false, "also delete the Karpenter CRDs")
	disable.PersistentFlags().BoolVar(&opt.SkipCleanup, "skip-cleanup", false, "leave NodePools and provisioned nodes behind")

	cmd.AddCommand(enable, disable)

	return cmd
}

func karpenterFunc(logger *logrus.Logger, opt *clusterOptions, enable bool) cobraFuncE {
	return handleErrors(logger, func(cmd *cobra.Command, args []string) error {
		lopt, err := buildLayerOptions(cmd.Context(), logger, opt, karpenter.DirectNamespace)
		if err != nil {
			return err
		}

		return runLayer(cmd.Context(), karpenter.NewLayer(), lopt, enable)
	})
}
