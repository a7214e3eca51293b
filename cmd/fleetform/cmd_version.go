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

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fleetform/fleetform/pkg/version"
)

func VersionCommand(logger *logrus.Logger, versions version.Versions) *cobra.Command {
	return &cobra.Command{
		Use:          "version",
		Short:        "Print the version of this tool",
		SilenceUsage: true,
		RunE: handleErrors(logger, func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "fleetform %s\n", versions.String())
			if versions.Tag != "" && versions.Commit != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "commit %s\n", versions.Commit)
			}

			return nil
		}),
	}
}
