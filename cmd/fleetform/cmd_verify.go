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
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fleetform/fleetform/pkg/awsfleet"
	"github.com/fleetform/fleetform/pkg/install/layer"
	"github.com/fleetform/fleetform/pkg/install/layer/argocd"
	"github.com/fleetform/fleetform/pkg/install/layer/karpenter"
	"github.com/fleetform/fleetform/pkg/kube"
)

func VerifyCommand(logger *logrus.Logger) *cobra.Command {
	opt := clusterOptions{Timeout: 15 * time.Minute}

	cmd := &cobra.Command{
		Use:          "verify [cluster|karpenter|argocd|all]",
		Short:        "Check that a fleet member and its layers actually work",
		Args:         cobra.MaximumNArgs(1),
		PreRun:       envFallbackPreRun(&opt),
		RunE:         VerifyFunc(logger, &opt),
		SilenceUsage: true,
	}

	addClusterFlags(cmd, &opt)
	cmd.PersistentFlags().BoolVar(&opt.Direct, "direct", false, "the layers were installed directly via Helm")
	cmd.PersistentFlags().BoolVar(&opt.SkipCleanup, "skip-cleanup", false, "leave verification probes behind")
	cmd.PersistentFlags().DurationVar(&opt.Timeout, "timeout", opt.Timeout, "time to wait for long-running operations to finish")

	return cmd
}

func VerifyFunc(logger *logrus.Logger, opt *clusterOptions) cobraFuncE {
	return handleErrors(logger, func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		target := "all"
		if len(args) > 0 {
			target = args[0]
		}

		lopt := layer.Options{
			Logger:      logrus.NewEntry(logger),
			ClusterName: opt.ClusterName,
			Region:      opt.Region,
			Direct:      opt.Direct,
			SkipCleanup: opt.SkipCleanup,
			Timeout:     opt.Timeout,
		}

		if opt.Region != "" {
			cs, err := awsfleet.GetClientSet(ctx, opt.Region)
			if err != nil {
				return fmt.Errorf("failed to create AWS clients: %w", err)
			}
			lopt.AWS = cs
		}

		restConfig, err := restConfigFor(ctx, lopt.AWS, opt)
		if err != nil {
			return fmt.Errorf("failed to build cluster access: %w", err)
		}

		kubeClient, err := kube.NewClient(restConfig)
		if err != nil {
			return fmt.Errorf("failed to create Kubernetes client: %w", err)
		}
		lopt.KubeClient = kubeClient

		switch target {
		case "cluster":
			return verifyCluster(ctx, logger, lopt)
		case "karpenter":
			return karpenter.NewLayer().Verify(ctx, lopt)
		case "argocd":
			return argocd.NewLayer().Verify(ctx, lopt)
		case "all":
			if err := verifyCluster(ctx, logger, lopt); err != nil {
				return err
			}
			if err := karpenter.NewLayer().Verify(ctx, lopt); err != nil {
				return err
			}
			return argocd.NewLayer().Verify(ctx, lopt)
		default:
			return fmt.Errorf("unknown verification target %q", target)
		}
	})
}

// verifyCluster checks the control plane and basic cluster health, which
// is the level the regular deployments provide without any layers.
func verifyCluster(ctx context.Context, logger *logrus.Logger, lopt layer.Options) error {
	log := lopt.Logger
	log.Info("Verifying cluster…")

	if lopt.AWS != nil {
		if err := lopt.AWS.WaitForControlPlane(ctx, log, lopt.ClusterName, 5*time.Minute); err != nil {
			return err
		}
		log.Info("Control plane is active.")
	}

	nodes, err := kube.CountNodes(ctx, lopt.KubeClient, nil)
	if err != nil {
		return fmt.Errorf("failed to list nodes: %w", err)
	}
	if nodes == 0 {
		return fmt.Errorf("cluster has no nodes")
	}
	log.Infof("Cluster has %d node(s).", nodes)

	dns, err := kube.CountRunningPods(ctx, lopt.KubeClient, "kube-system", map[string]string{"k8s-app": "kube-dns"})
	if err != nil {
		return fmt.Errorf("failed to list CoreDNS pods: %w", err)
	}
	if dns == 0 {
		return fmt.Errorf("no running CoreDNS pods")
	}
	log.Info("CoreDNS is running.")

	log.Info("Cluster verification succeeded.")

	return nil
}
