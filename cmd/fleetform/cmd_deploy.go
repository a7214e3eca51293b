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
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fleetform/fleetform/pkg/awsfleet"
	"github.com/fleetform/fleetform/pkg/install/layer"
	"github.com/fleetform/fleetform/pkg/stacks"
)

func DeployCommand(logger *logrus.Logger) *cobra.Command {
	opt := clusterOptions{Timeout: 45 * time.Minute}

	cmd := &cobra.Command{
		Use:          "deploy [region…]",
		Short:        "Roll out the fleet, or a subset of regions, through HCP Terraform",
		PreRun:       envFallbackPreRun(&opt),
		RunE:         DeployFunc(logger, &opt),
		SilenceUsage: true,
	}

	addPublishFlags(cmd, &opt)

	return cmd
}

func DeployFunc(logger *logrus.Logger, opt *clusterOptions) cobraFuncE {
	return handleErrors(logger, func(cmd *cobra.Command, args []string) error {
		lopt, err := buildPublishOptions(logger, opt)
		if err != nil {
			return err
		}

		targets, err := selectDeployments(lopt.Source, args)
		if err != nil {
			return err
		}

		logger.Infof("🚀 Deploying %d deployment(s)…", len(targets))

		for _, target := range targets {
			if err := lopt.Source.SetDeploymentDestroy(target.Name, false); err != nil {
				return err
			}
		}

		// fail on bad AWS credentials before kicking off a long remote apply
		if !opt.DryRun && !opt.SkipPush && !opt.NoWait && len(targets) > 0 {
			cs, err := awsfleet.GetClientSet(cmd.Context(), targets[0].Region)
			if err != nil {
				return fmt.Errorf("failed to create AWS clients for %s: %w", targets[0].Region, err)
			}

			identity, err := cs.CallerIdentity(cmd.Context())
			if err != nil {
				return fmt.Errorf("AWS credentials are not usable: %w", err)
			}

			logger.WithField("identity", identity).Debug("AWS credentials verified.")
		}

		message := "Deploy " + deploymentList(targets)
		if err := layer.PublishAndConverge(cmd.Context(), lopt, message); err != nil {
			return err
		}

		if opt.DryRun || opt.SkipPush || opt.NoWait {
			return nil
		}

		// HCP Terraform reports convergence once the apply is done, the
		// control planes still take a moment to report ACTIVE.
		for _, target := range targets {
			cs, err := awsfleet.GetClientSet(cmd.Context(), target.Region)
			if err != nil {
				return fmt.Errorf("failed to create AWS clients for %s: %w", target.Region, err)
			}

			if err := cs.WaitForControlPlane(cmd.Context(), logger.WithField("cluster", target.ClusterName), target.ClusterName, opt.Timeout); err != nil {
				return err
			}
		}

		logger.Info("✅ All deployments are up.")

		return nil
	})
}

// selectDeployments resolves region arguments to deployments, defaulting
// to the whole fleet.
func selectDeployments(source *stacks.Source, regions []string) ([]stacks.Deployment, error) {
	all, err := source.Deployments()
	if err != nil {
		return nil, err
	}

	if len(regions) == 0 {
		return all, nil
	}

	byName := map[string]stacks.Deployment{}
	for _, deployment := range all {
		byName[deployment.Name] = deployment
	}

	var selected []stacks.Deployment

	for _, region := range regions {
		name := stacks.DeploymentName(region)

		deployment, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("no deployment for region %s", region)
		}

		selected = append(selected, deployment)
	}

	return selected, nil
}

func deploymentList(deployments []stacks.Deployment) string {
	names := make([]string, len(deployments))
	for i, deployment := range deployments {
		names[i] = deployment.Name
	}

	return strings.Join(names, ", ")
}
