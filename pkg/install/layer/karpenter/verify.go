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

package karpenter

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetform/fleetform/pkg/install/layer"
	"github.com/fleetform/fleetform/pkg/kube"
	"github.com/fleetform/fleetform/pkg/util/wait"

	appsv1 "k8s.io/api/apps/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"
	ctrlruntimeclient "sigs.k8s.io/controller-runtime/pkg/client"
)

const (
	probeName      = "inflate"
	probeNamespace = "default"
	probeReplicas  = 5

	scaleUpTimeout     = 10 * time.Minute
	consolidateTimeout = 15 * time.Minute
)

// Verify checks that Karpenter actually provisions and consolidates
// capacity, not merely that its Deployment exists. It inflates a pause
// workload until new nodes appear, then scales it back down and watches
// the nodes go away again.
func (k *Karpenter) Verify(ctx context.Context, opt layer.Options) error {
	logger := opt.Logger
	logger.Info("Verifying Karpenter…")

	if opt.KubeClient == nil {
		return fmt.Errorf("cluster access is required for verification")
	}

	namespace := controllerNamespace(opt)

	controller := &appsv1.Deployment{}
	key := types.NamespacedName{Namespace: namespace, Name: ControllerName}
	if err := opt.KubeClient.Get(ctx, key, controller); err != nil {
		return fmt.Errorf("failed to get controller Deployment: %w", err)
	}
	if !kube.IsDeploymentReady(controller) {
		return fmt.Errorf("controller Deployment %s/%s is not ready", namespace, ControllerName)
	}
	logger.Info("Controller is ready.")

	for _, crd := range []string{NodePoolCRDName, EC2NodeClassCRDName} {
		if err := kube.WaitForCRDEstablished(ctx, logger, opt.KubeClient, crd, time.Minute); err != nil {
			return fmt.Errorf("CRD %s is not established: %w", crd, err)
		}
	}
	logger.Info("CRDs are established.")

	if err := k.runScaleProbe(ctx, opt); err != nil {
		return err
	}

	logger.Info("Karpenter verification succeeded.")

	return nil
}

func (k *Karpenter) runScaleProbe(ctx context.Context, opt layer.Options) error {
	logger := opt.Logger
	logger.Infof("Scaling a probe workload to %d replicas…", probeReplicas)

	if !opt.SkipCleanup {
		defer func() {
			if err := deleteProbe(context.Background(), opt.KubeClient); err != nil {
				logger.Warnf("Failed to remove probe workload: %v", err)
			}
		}()
	}

	if err := applyProbe(ctx, opt, probeReplicas); err != nil {
		return err
	}

	err := wait.PollImmediateLog(ctx, logger, 15*time.Second, scaleUpTimeout, func() (error, error) {
		running, err := kube.CountRunningPods(ctx, opt.KubeClient, probeNamespace, map[string]string{"app": probeName})
		if err != nil {
			return nil, err
		}

		nodes, err := k.nodeCount(ctx, opt)
		if err != nil {
			return nil, err
		}

		if running < probeReplicas {
			return fmt.Errorf("%d of %d probe pods running", running, probeReplicas), nil
		}
		if nodes == 0 {
			return fmt.Errorf("all probe pods running but no provisioned node yet"), nil
		}

		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("scale-up probe failed: %w", err)
	}

	logger.Info("Scale-up succeeded, waiting for consolidation…")

	if err := applyProbe(ctx, opt, 0); err != nil {
		return err
	}

	err = wait.PollLog(ctx, logger, 30*time.Second, consolidateTimeout, func() (error, error) {
		nodes, err := k.nodeCount(ctx, opt)
		if err != nil {
			return nil, err
		}
		if nodes > 0 {
			return fmt.Errorf("%d provisioned nodes remaining", nodes), nil
		}

		return nil, nil
	})
	if err != nil {
		// Slow consolidation is not a failure of the controller, spot
		// capacity in particular can take a while to wind down.
		logger.Warnf("Consolidation did not finish in time: %v", err)
	}

	return nil
}

func (k *Karpenter) nodeCount(ctx context.Context, opt layer.Options) (int, error) {
	if opt.AWS != nil {
		return opt.AWS.CountKarpenterInstances(ctx, opt.ClusterName)
	}

	return provisionedNodeCount(ctx, opt.KubeClient)
}

func applyProbe(ctx context.Context, opt layer.Options, replicas int) error {
	manifest, err := inflateManifest(replicas)
	if err != nil {
		return err
	}

	return kube.ApplyManifests(ctx, opt.Logger, opt.KubeClient, manifest, "fleetform")
}

func deleteProbe(ctx context.Context, client ctrlruntimeclient.Client) error {
	probe := &appsv1.Deployment{}
	probe.Name = probeName
	probe.Namespace = probeNamespace

	if err := client.Delete(ctx, probe); err != nil && !apierrors.IsNotFound(err) {
		return err
	}

	return nil
}
