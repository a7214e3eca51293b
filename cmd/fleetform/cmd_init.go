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
	"errors"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fleetform/fleetform/pkg/stacks"
)

type InitOptions struct {
	Fleet             string
	Regions           []string
	KubernetesVersion string
	RoleARN           string
	Force             bool
}

func InitCommand(logger *logrus.Logger) *cobra.Command {
	opt := InitOptions{}

	cmd := &cobra.Command{
		Use:          "init",
		Short:        "Generate a fresh multi-region stack configuration",
		RunE:         InitFunc(logger, &opt),
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opt.Fleet, "fleet", "", "name prefix for all clusters in the fleet")
	cmd.PersistentFlags().StringSliceVar(&opt.Regions, "regions", nil, "comma-separated AWS regions, one deployment each")
	cmd.PersistentFlags().StringVar(&opt.KubernetesVersion, "kubernetes-version", "", "EKS control plane version")
	cmd.PersistentFlags().StringVar(&opt.RoleARN, "role-arn", "", "IAM role assumed by HCP Terraform through OIDC federation")
	cmd.PersistentFlags().BoolVar(&opt.Force, "force", false, "overwrite an existing configuration")

	return cmd
}

func InitFunc(logger *logrus.Logger, opt *InitOptions) cobraFuncE {
	return handleErrors(logger, func(cmd *cobra.Command, args []string) error {
		if opt.Fleet == "" {
			return errors.New("no fleet name given (--fleet)")
		}
		if len(opt.Regions) == 0 {
			return errors.New("no regions given (--regions)")
		}

		logger.WithField("dir", options.Directory).Info("🚀 Generating stack configuration…")

		files, err := stacks.Scaffold(options.Directory, stacks.ScaffoldOptions{
			Fleet:             opt.Fleet,
			Regions:           opt.Regions,
			KubernetesVersion: opt.KubernetesVersion,
			RoleARN:           opt.RoleARN,
			Force:             opt.Force,
		})
		if err != nil {
			return err
		}

		for _, file := range files {
			logger.WithField("file", filepath.Base(file)).Info("Created.")
		}

		logger.Info("✅ Done. Commit the configuration and connect the repository to an HCP Terraform stack.")

		return nil
	})
}
