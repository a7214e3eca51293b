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
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fleetform/fleetform/pkg/awsfleet"
	"github.com/fleetform/fleetform/pkg/install/helm"
	"github.com/fleetform/fleetform/pkg/install/layer"
	"github.com/fleetform/fleetform/pkg/kube"
	"github.com/fleetform/fleetform/pkg/publish"
	"github.com/fleetform/fleetform/pkg/stacks"
	"github.com/fleetform/fleetform/pkg/tfc"

	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

type cobraFuncE func(cmd *cobra.Command, args []string) error

func handleErrors(logger *logrus.Logger, action cobraFuncE) cobraFuncE {
	return func(cmd *cobra.Command, args []string) error {
		err := action(cmd, args)
		if err != nil {
			logger.Errorf("❌ Operation failed: %v.", err)
		}

		return err
	}
}

// clusterOptions are the flags shared by the commands that talk to a
// single fleet member and/or HCP Terraform.
type clusterOptions struct {
	ClusterName string
	Region      string
	Kubeconfig  string

	Organization string
	Stack        string

	DryRun      bool
	SkipPush    bool
	NoWait      bool
	Direct      bool
	Values      []string
	CleanupCRDs bool
	SkipCleanup bool

	Timeout time.Duration
}

func addPublishFlags(cmd *cobra.Command, opt *clusterOptions) {
	cmd.PersistentFlags().BoolVar(&opt.DryRun, "dry-run", false, "show pending changes without committing, pushing or touching the cluster")
	cmd.PersistentFlags().BoolVar(&opt.SkipPush, "skip-push", false, "commit configuration changes locally but do not push them")
	cmd.PersistentFlags().BoolVar(&opt.NoWait, "no-wait", false, "do not wait for HCP Terraform to converge")
	cmd.PersistentFlags().StringVar(&opt.Organization, "organization", "", "HCP Terraform organization name (defaults to $TFE_ORGANIZATION)")
	cmd.PersistentFlags().StringVar(&opt.Stack, "stack", "", "HCP Terraform stack name (defaults to $TFE_STACK)")
	cmd.PersistentFlags().DurationVar(&opt.Timeout, "timeout", opt.Timeout, "time to wait for long-running operations to finish")
}

func addClusterFlags(cmd *cobra.Command, opt *clusterOptions) {
	cmd.PersistentFlags().StringVar(&opt.ClusterName, "cluster", "", "name of the EKS cluster (defaults to $CLUSTER_NAME)")
	cmd.PersistentFlags().StringVar(&opt.Region, "region", "", "AWS region of the cluster (defaults to $REGION)")
	cmd.PersistentFlags().StringVar(&opt.Kubeconfig, "kubeconfig", "", "kubeconfig to use instead of EKS token authentication (defaults to $KUBECONFIG)")
}

// envFallbackPreRun hooks applyEnvFallbacks into a command, so flags are
// fully resolved before its RunE executes.
func envFallbackPreRun(opt *clusterOptions) func(*cobra.Command, []string) {
	return func(*cobra.Command, []string) {
		applyEnvFallbacks(opt)
	}
}

// applyEnvFallbacks fills unset flags from the environment, in the same
// spirit as passing them on the command line.
func applyEnvFallbacks(opt *clusterOptions) {
	if opt.ClusterName == "" {
		opt.ClusterName = os.Getenv("CLUSTER_NAME")
	}
	if opt.Region == "" {
		opt.Region = os.Getenv("REGION")
	}
	if opt.Kubeconfig == "" {
		opt.Kubeconfig = os.Getenv("KUBECONFIG")
	}
	if opt.Organization == "" {
		opt.Organization = os.Getenv("TFE_ORGANIZATION")
	}
	if opt.Stack == "" {
		opt.Stack = os.Getenv("TFE_STACK")
	}
}

func loadSource(logger *logrus.Logger) (*stacks.Source, error) {
	source, err := stacks.Load(options.Directory)
	if err != nil {
		return nil, fmt.Errorf("failed to load stack configuration from %s: %w", options.Directory, err)
	}

	logger.WithField("dir", options.Directory).Debug("Loaded stack configuration.")

	return source, nil
}

func newTFCClient(logger *logrus.Logger, opt *clusterOptions) (*tfc.Client, error) {
	return tfc.NewClient(tfc.Config{
		Address:      os.Getenv("TFE_ADDRESS"),
		Token:        os.Getenv("TFE_TOKEN"),
		Organization: opt.Organization,
		Stack:        opt.Stack,
	}, logger)
}

// restConfigFor prefers an explicit kubeconfig and falls back to EKS
// token authentication through the AWS credentials.
func restConfigFor(ctx context.Context, cs *awsfleet.ClientSet, opt *clusterOptions) (*rest.Config, error) {
	if opt.Kubeconfig != "" {
		config, err := clientcmd.BuildConfigFromFlags("", opt.Kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("failed to load kubeconfig %s: %w", opt.Kubeconfig, err)
		}

		return config, nil
	}

	if cs == nil {
		return nil, fmt.Errorf("no kubeconfig given and no AWS region configured")
	}

	return cs.RESTConfig(ctx, opt.ClusterName)
}

// buildPublishOptions wires up the configuration-side half of an
// operation: stack source, git publisher and the HCP Terraform client.
func buildPublishOptions(logger *logrus.Logger, opt *clusterOptions) (layer.Options, error) {
	lopt := layer.Options{
		Logger:      logrus.NewEntry(logger),
		ClusterName: opt.ClusterName,
		Region:      opt.Region,
		DryRun:      opt.DryRun,
		SkipPush:    opt.SkipPush,
		NoWait:      opt.NoWait,
		Direct:      opt.Direct,
		ValuesFiles: opt.Values,
		CleanupCRDs: opt.CleanupCRDs,
		SkipCleanup: opt.SkipCleanup,
		PushToken:   os.Getenv("GITHUB_TOKEN"),
		Timeout:     opt.Timeout,
	}

	if opt.Direct {
		return lopt, nil
	}

	source, err := loadSource(logger)
	if err != nil {
		return lopt, err
	}
	lopt.Source = source

	if !opt.DryRun {
		publisher, err := publish.Open(options.Directory, logger)
		if err != nil {
			return lopt, err
		}
		lopt.Publisher = publisher
	}

	if !opt.NoWait && !opt.DryRun && !opt.SkipPush {
		client, err := newTFCClient(logger, opt)
		if err != nil {
			return lopt, err
		}
		lopt.TFC = client
	}

	return lopt, nil
}

// buildLayerOptions wires up everything a layer operation needs. Missing
// cluster access is tolerated unless the command runs in direct mode,
// because stack-mode enable/disable can meaningfully run before the
// cluster exists.
func buildLayerOptions(ctx context.Context, logger *logrus.Logger, opt *clusterOptions, helmNamespace string) (layer.Options, error) {
	lopt, err := buildPublishOptions(logger, opt)
	if err != nil {
		return lopt, err
	}

	if opt.Region != "" {
		cs, err := awsfleet.GetClientSet(ctx, opt.Region)
		if err != nil {
			return lopt, fmt.Errorf("failed to create AWS clients: %w", err)
		}
		lopt.AWS = cs
	}

	restConfig, err := restConfigFor(ctx, lopt.AWS, opt)
	if err != nil {
		if opt.Direct {
			return lopt, fmt.Errorf("direct mode requires cluster access: %w", err)
		}

		logger.WithError(err).Debug("No cluster access, in-cluster steps will be skipped.")

		return lopt, nil
	}

	kubeClient, err := kube.NewClient(restConfig)
	if err != nil {
		return lopt, fmt.Errorf("failed to create Kubernetes client: %w", err)
	}
	lopt.KubeClient = kubeClient

	if opt.Direct {
		helmClient, err := helm.NewClient(restConfig, helmNamespace, opt.Timeout, logger)
		if err != nil {
			return lopt, fmt.Errorf("failed to create Helm client: %w", err)
		}
		lopt.HelmClient = helmClient
	}

	return lopt, nil
}

// runLayer is the common enable/disable driver: validate, then act.
func runLayer(ctx context.Context, l layer.Layer, lopt layer.Options, enable bool) error {
	if failures := l.ValidateState(ctx, lopt); len(failures) > 0 {
		for _, failure := range failures {
			lopt.Logger.Errorf("precondition failed: %v", failure)
		}

		return fmt.Errorf("%s is not ready to be reconfigured", l.Name())
	}

	if enable {
		return l.Enable(ctx, lopt)
	}

	return l.Disable(ctx, lopt)
}
