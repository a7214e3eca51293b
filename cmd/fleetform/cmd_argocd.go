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

	"github.com/fleetform/fleetform/pkg/install/layer/argocd"
)

type ArgoCDOptions struct {
	clusterOptions

	AppRepoURL  string
	AppPath     string
	AppRevision string
}

func ArgoCDCommand(logger *logrus.Logger) *cobra.Command {
	opt := ArgoCDOptions{clusterOptions: clusterOptions{Timeout: 15 * time.Minute}}

	cmd := &cobra.Command{
		Use:   "argocd",
		Short: "Manage Argo CD GitOps delivery for a fleet member",
	}

	addPublishFlags(cmd, &opt.clusterOptions)
	addClusterFlags(cmd, &opt.clusterOptions)
	cmd.PersistentFlags().BoolVar(&opt.Direct, "direct", false, "install the Helm chart directly instead of going through the stack configuration")
	cmd.PersistentFlags().StringSliceVar(&opt.Values, "values", nil, "additional Helm values files for --direct installs (can be given multiple times)")

	enable := &cobra.Command{
		Use:          "enable",
		Short:        "Enable Argo CD and seed the root application",
		PreRun:       envFallbackPreRun(&opt.clusterOptions),
		RunE:         argocdFunc(logger, &opt, true),
		SilenceUsage: true,
	}
	enable.PersistentFlags().StringVar(&opt.AppRepoURL, "app-repo", "", "repository the root application syncs from (defaults to the stack repository's remote)")
	enable.PersistentFlags().StringVar(&opt.AppPath, "app-path", "apps", "path within the application repository")
	enable.PersistentFlags().StringVar(&opt.AppRevision, "app-revision", "HEAD", "revision the root application tracks")

	disable := &cobra.Command{
		Use:          "disable",
		Short:        "Remove Argo CD and the root application",
		PreRun:       envFallbackPreRun(&opt.clusterOptions),
		RunE:         argocdFunc(logger, &opt, false),
		SilenceUsage: true,
	}
	disable.PersistentFlags().BoolVar(&opt.SkipCleanup, "skip-cleanup", false, "leave the root application behind")

	cmd.AddCommand(enable, disable)

	return cmd
}

func argocdFunc(logger *logrus.Logger, opt *ArgoCDOptions, enable bool) cobraFuncE {
	return handleErrors(logger, func(cmd *cobra.Command, args []string) error {
		lopt, err := buildLayerOptions(cmd.Context(), logger, &opt.clusterOptions, argocd.Namespace)
		if err != nil {
			return err
		}

		lopt.AppRepoURL = opt.AppRepoURL
		lopt.AppPath = opt.AppPath
		lopt.AppRevision = opt.AppRevision

		// without an explicit application repository, point the root
		// application at the stack repository itself
		if enable && lopt.AppRepoURL == "" && lopt.Publisher != nil {
			if url, err := lopt.Publisher.RemoteURL(); err == nil {
				lopt.AppRepoURL = url
			}
		}

		return runLayer(cmd.Context(), argocd.NewLayer(), lopt, enable)
	})
}
