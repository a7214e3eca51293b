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

// Package karpenter switches cluster autoscaling on and off for a fleet
// member. The default path adds a component to the stack configuration and
// lets HCP Terraform install the controller; the direct path installs the
// Helm chart straight into the cluster.
package karpenter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zclconf/go-cty/cty"

	"github.com/fleetform/fleetform/pkg/install/helm"
	"github.com/fleetform/fleetform/pkg/install/layer"
	"github.com/fleetform/fleetform/pkg/kube"
	"github.com/fleetform/fleetform/pkg/log"
	"github.com/fleetform/fleetform/pkg/stacks"
	"github.com/fleetform/fleetform/pkg/util/wait"

	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	ctrlruntimeclient "sigs.k8s.io/controller-runtime/pkg/client"
)

const (
	ComponentName  = "karpenter"
	ControllerName = "karpenter"

	// StackNamespace is where the Terraform module installs the
	// controller, DirectNamespace where the plain Helm chart does.
	StackNamespace  = "kube-system"
	DirectNamespace = "karpenter"

	ChartRepository = "oci://public.ecr.aws/karpenter"
	ChartName       = "karpenter"
	ChartVersion    = "1.1.1"

	NodePoolCRDName     = "nodepools.karpenter.sh"
	NodeClaimCRDName    = "nodeclaims.karpenter.sh"
	EC2NodeClassCRDName = "ec2nodeclasses.karpenter.k8s.aws"
)

var (
	nodePoolGVK = schema.GroupVersionKind{
		Group:   "karpenter.sh",
		Version: "v1",
		Kind:    "NodePool",
	}
	ec2NodeClassGVK = schema.GroupVersionKind{
		Group:   "karpenter.k8s.aws",
		Version: "v1",
		Kind:    "EC2NodeClass",
	}
)

type Karpenter struct{}

func NewLayer() layer.Layer {
	return &Karpenter{}
}

var _ layer.Layer = &Karpenter{}

func (*Karpenter) Name() string {
	return "Karpenter autoscaling"
}

func controllerNamespace(opt layer.Options) string {
	if opt.Direct {
		return DirectNamespace
	}

	return StackNamespace
}

func (*Karpenter) ValidateState(ctx context.Context, opt layer.Options) []error {
	var failures []error

	if opt.Direct {
		if opt.HelmClient == nil {
			failures = append(failures, errors.New("direct mode requires cluster access for Helm"))
		}
	} else {
		if opt.Source == nil {
			failures = append(failures, errors.New("no stack configuration loaded"))
		}
		if opt.Publisher == nil && !opt.DryRun {
			failures = append(failures, errors.New("stack directory is not a git repository"))
		}
	}

	if opt.ClusterName == "" {
		failures = append(failures, errors.New("no cluster name given"))
	}

	return failures
}

func (k *Karpenter) Enable(ctx context.Context, opt layer.Options) error {
	logger := opt.Logger
	logger.Info("Enabling Karpenter…")

	if opt.Direct {
		if err := k.enableDirect(ctx, opt); err != nil {
			return err
		}
	} else {
		if err := k.enableStack(ctx, opt); err != nil {
			return err
		}
	}

	if opt.DryRun {
		return nil
	}

	if !opt.Direct && opt.NoWait {
		logger.Info("Skipping in-cluster setup, re-run once the stack has converged.")
		return nil
	}

	if opt.KubeClient == nil {
		logger.Warn("No cluster access, skipping default NodePool setup.")
		return nil
	}

	namespace := controllerNamespace(opt)
	sublogger := log.Prefix(logger, "   ")

	if err := kube.WaitForDeploymentRollout(ctx, sublogger, opt.KubeClient, namespace, ControllerName, opt.Timeout); err != nil {
		return fmt.Errorf("controller did not become ready: %w", err)
	}

	for _, crd := range []string{NodePoolCRDName, EC2NodeClassCRDName} {
		if err := kube.WaitForCRDEstablished(ctx, sublogger, opt.KubeClient, crd, 2*time.Minute); err != nil {
			return fmt.Errorf("CRD %s was not established: %w", crd, err)
		}
	}

	manifests, err := defaultNodeResources(opt.ClusterName)
	if err != nil {
		return err
	}

	if err := kube.ApplyManifests(ctx, sublogger, opt.KubeClient, manifests, "fleetform"); err != nil {
		return fmt.Errorf("failed to apply default node resources: %w", err)
	}

	logger.Info("Karpenter is enabled.")

	return nil
}

func (*Karpenter) enableStack(ctx context.Context, opt layer.Options) error {
	err := opt.Source.EnableComponent(stacks.KarpenterComponent())
	if err != nil && !errors.Is(err, stacks.ErrComponentExists) {
		return fmt.Errorf("failed to add karpenter component: %w", err)
	}
	if errors.Is(err, stacks.ErrComponentExists) {
		opt.Logger.Info("Karpenter component is already present.")
	}

	if err := opt.Source.SetVariableDefault("enable_karpenter", cty.True); err != nil && !errors.Is(err, stacks.ErrVariableNotFound) {
		return fmt.Errorf("failed to set enable_karpenter: %w", err)
	}

	return layer.PublishAndConverge(ctx, opt, "Enable Karpenter autoscaling")
}

func (*Karpenter) enableDirect(ctx context.Context, opt layer.Options) error {
	if opt.DryRun {
		opt.Logger.Infof("Would install chart %s/%s %s", ChartRepository, ChartName, ChartVersion)
		return nil
	}

	values, err := helm.MergeValues(map[string]any{
		"settings": map[string]any{
			"clusterName": opt.ClusterName,
		},
	}, opt.ValuesFiles)
	if err != nil {
		return err
	}

	return opt.HelmClient.InstallOrUpgrade(ctx, ControllerName, helm.ChartSpec{
		RepoURL: ChartRepository,
		Name:    ChartName,
		Version: ChartVersion,
	}, values)
}

func (k *Karpenter) Disable(ctx context.Context, opt layer.Options) error {
	logger := opt.Logger
	logger.Info("Disabling Karpenter…")

	if opt.SkipCleanup {
		logger.Info("Skipping in-cluster cleanup.")
	} else if err := k.cleanupCluster(ctx, opt); err != nil {
		return err
	}

	if opt.Direct {
		if opt.DryRun {
			logger.Infof("Would uninstall release %s", ControllerName)
			return nil
		}

		if err := opt.HelmClient.Uninstall(ControllerName); err != nil {
			return err
		}

		logger.Info("Karpenter is disabled.")

		return nil
	}

	err := opt.Source.DisableComponent(ComponentName)
	switch {
	case errors.Is(err, stacks.ErrComponentRemoved), errors.Is(err, stacks.ErrComponentNotFound):
		logger.Info("Karpenter component is already disabled.")
	case err != nil:
		return fmt.Errorf("failed to remove karpenter component: %w", err)
	}

	if err := opt.Source.SetVariableDefault("enable_karpenter", cty.False); err != nil && !errors.Is(err, stacks.ErrVariableNotFound) {
		return fmt.Errorf("failed to set enable_karpenter: %w", err)
	}

	if err := layer.PublishAndConverge(ctx, opt, "Disable Karpenter autoscaling"); err != nil {
		return err
	}

	logger.Info("Karpenter is disabled.")

	return nil
}

// cleanupCluster removes the node resources before the controller goes
// away, so that Karpenter itself can still drain and terminate the nodes
// it provisioned.
func (k *Karpenter) cleanupCluster(ctx context.Context, opt layer.Options) error {
	logger := opt.Logger

	if opt.KubeClient == nil {
		logger.Warn("No cluster access, skipping in-cluster cleanup.")
		return nil
	}

	if opt.DryRun {
		logger.Info("Would delete all NodePools and EC2NodeClasses.")
		return nil
	}

	for _, gvk := range []schema.GroupVersionKind{nodePoolGVK, ec2NodeClassGVK} {
		obj := &unstructured.Unstructured{}
		obj.SetGroupVersionKind(gvk)

		// Tolerate clusters that never had the controller installed.
		err := opt.KubeClient.DeleteAllOf(ctx, obj)
		if err != nil && !apierrors.IsNotFound(err) && !meta.IsNoMatchError(err) && !runtime.IsNotRegisteredError(err) {
			return fmt.Errorf("failed to delete %s resources: %w", gvk.Kind, err)
		}
	}

	if opt.AWS != nil {
		// Draining is best effort. Nodes that linger past the timeout
		// will be cleaned up when the stack destroys the node role.
		err := wait.PollLog(ctx, logger, 15*time.Second, opt.Timeout, func() (error, error) {
			count, err := opt.AWS.CountKarpenterInstances(ctx, opt.ClusterName)
			if err != nil {
				return nil, err
			}
			if count > 0 {
				return fmt.Errorf("%d Karpenter nodes still running", count), nil
			}

			return nil, nil
		})
		if err != nil {
			logger.Warnf("Not all Karpenter nodes drained in time: %v", err)
		}
	}

	if opt.CleanupCRDs {
		for _, name := range []string{NodePoolCRDName, NodeClaimCRDName, EC2NodeClassCRDName} {
			crd := &apiextensionsv1.CustomResourceDefinition{
				ObjectMeta: metav1.ObjectMeta{Name: name},
			}

			if err := opt.KubeClient.Delete(ctx, crd); err != nil && !apierrors.IsNotFound(err) {
				return fmt.Errorf("failed to delete CRD %s: %w", name, err)
			}
		}
	}

	return nil
}

// provisionedNodeCount counts nodes in the cluster that Karpenter
// registered, used by Verify when EC2 visibility is not available.
func provisionedNodeCount(ctx context.Context, client ctrlruntimeclient.Client) (int, error) {
	return kube.CountNodes(ctx, client, map[string]string{"karpenter.sh/registered": "true"})
}
