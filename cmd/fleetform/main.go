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
	"os"

	"github.com/go-logr/zapr"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fleetform/fleetform/pkg/log"
	"github.com/fleetform/fleetform/pkg/version"

	ctrlruntimelog "sigs.k8s.io/controller-runtime/pkg/log"
)

// Options are the global flags shared by every command.
type Options struct {
	// Directory contains the stack configuration.
	Directory string
	Verbose   bool
}

var options Options

func main() {
	logger := log.NewLogrus()
	versions := version.NewDefaultVersions()

	// controller-runtime logs through logr, anything it emits lands in
	// the zap logger instead of being dropped
	ctrlruntimelog.SetLogger(zapr.NewLogger(log.NewDefault().Desugar()))

	rootCmd := &cobra.Command{
		Use:           "fleetform",
		Short:         "Manages a multi-region EKS fleet through Terraform Stacks",
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if options.Verbose {
				logger.SetLevel(logrus.DebugLevel)
			}

			if options.Directory == "" {
				options.Directory = os.Getenv("FLEETFORM_DIR")
			}
			if options.Directory == "" {
				options.Directory = "."
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&options.Directory, "dir", "d", "", "directory containing the stack configuration (defaults to $FLEETFORM_DIR or the current directory)")
	rootCmd.PersistentFlags().BoolVarP(&options.Verbose, "verbose", "v", false, "enable more verbose output")

	rootCmd.AddCommand(
		InitCommand(logger),
		DeployCommand(logger),
		DestroyCommand(logger),
		KarpenterCommand(logger),
		ArgoCDCommand(logger),
		VerifyCommand(logger),
		VersionCommand(logger, versions),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
