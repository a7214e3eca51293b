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
	"bufio"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fleetform/fleetform/pkg/install/layer"
)

type DestroyOptions struct {
	clusterOptions

	Force bool
}

func DestroyCommand(logger *logrus.Logger) *cobra.Command {
	opt := DestroyOptions{clusterOptions: clusterOptions{Timeout: 45 * time.Minute}}

	cmd := &cobra.Command{
		Use:          "destroy [region…]",
		Short:        "Tear down the fleet, or a subset of regions, through HCP Terraform",
		PreRun:       envFallbackPreRun(&opt.clusterOptions),
		RunE:         DestroyFunc(logger, &opt),
		SilenceUsage: true,
	}

	addPublishFlags(cmd, &opt.clusterOptions)
	cmd.PersistentFlags().BoolVar(&opt.Force, "force", false, "do not ask for confirmation")

	return cmd
}

func DestroyFunc(logger *logrus.Logger, opt *DestroyOptions) cobraFuncE {
	return handleErrors(logger, func(cmd *cobra.Command, args []string) error {
		lopt, err := buildPublishOptions(logger, &opt.clusterOptions)
		if err != nil {
			return err
		}

		targets, err := selectDeployments(lopt.Source, args)
		if err != nil {
			return err
		}

		if !opt.Force && !opt.DryRun {
			if !confirmDestroy(cmd, deploymentList(targets)) {
				logger.Info("Aborted.")
				return nil
			}
		}

		logger.Infof("💣 Destroying %d deployment(s)…", len(targets))

		for _, target := range targets {
			if err := lopt.Source.SetDeploymentDestroy(target.Name, true); err != nil {
				return err
			}
		}

		message := "Destroy " + deploymentList(targets)
		if err := layer.PublishAndConverge(cmd.Context(), lopt, message); err != nil {
			return err
		}

		if !opt.DryRun {
			logger.Info("✅ Destruction has been applied.")
		}

		return nil
	})
}

func confirmDestroy(cmd *cobra.Command, names string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "This will destroy the deployments %s and everything running in them.\nType 'yes' to continue: ", names)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	if !scanner.Scan() {
		return false
	}

	return strings.TrimSpace(scanner.Text()) == "yes"
}
