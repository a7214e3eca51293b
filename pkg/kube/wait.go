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

package kube

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"
	ctrlruntimeclient "sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/fleetform/fleetform/pkg/util/wait"
)

// IsDeploymentReady reports whether all desired replicas are updated and
// ready at the current generation.
func IsDeploymentReady(deployment *appsv1.Deployment) bool {
	desired := int32(1)
	if deployment.Spec.Replicas != nil {
		desired = *deployment.Spec.Replicas
	}

	return deployment.Status.ObservedGeneration >= deployment.Generation &&
		deployment.Status.UpdatedReplicas == desired &&
		deployment.Status.ReadyReplicas == desired
}

// WaitForDeploymentRollout polls until the deployment exists and has been
// fully rolled out, or until the timeout is reached.
func WaitForDeploymentRollout(ctx context.Context, log logrus.FieldLogger, client ctrlruntimeclient.Client, namespace, name string, timeout time.Duration) error {
	return wait.PollImmediateLog(ctx, log, 5*time.Second, timeout, func() (transient error, terminal error) {
		deployment := &appsv1.Deployment{}

		if err := client.Get(ctx, types.NamespacedName{Namespace: namespace, Name: name}, deployment); err != nil {
			if apierrors.IsNotFound(err) {
				return fmt.Errorf("deployment %s/%s does not exist yet", namespace, name), nil
			}

			return nil, err
		}

		if !IsDeploymentReady(deployment) {
			return fmt.Errorf("deployment %s/%s has %d replicas ready", namespace, name, deployment.Status.ReadyReplicas), nil
		}

		return nil, nil
	})
}

// WaitForCRDEstablished polls until the CustomResourceDefinition exists and
// reports the Established condition.
func WaitForCRDEstablished(ctx context.Context, log logrus.FieldLogger, client ctrlruntimeclient.Client, name string, timeout time.Duration) error {
	return wait.PollImmediateLog(ctx, log, 5*time.Second, timeout, func() (transient error, terminal error) {
		crd := &apiextensionsv1.CustomResourceDefinition{}

		if err := client.Get(ctx, types.NamespacedName{Name: name}, crd); err != nil {
			if apierrors.IsNotFound(err) {
				return fmt.Errorf("CRD %s is not registered yet", name), nil
			}

			return nil, err
		}

		for _, cond := range crd.Status.Conditions {
			if cond.Type == apiextensionsv1.Established && cond.Status == apiextensionsv1.ConditionTrue {
				return nil, nil
			}
		}

		return fmt.Errorf("CRD %s is not established yet", name), nil
	})
}

// CountNodes returns how many nodes match the given label selector.
func CountNodes(ctx context.Context, client ctrlruntimeclient.Client, selector map[string]string) (int, error) {
	nodes := &corev1.NodeList{}

	if err := client.List(ctx, nodes, ctrlruntimeclient.MatchingLabels(selector)); err != nil {
		return 0, fmt.Errorf("failed to list nodes: %w", err)
	}

	return len(nodes.Items), nil
}

// CountRunningPods returns how many pods of the given selector are in the
// Running phase.
func CountRunningPods(ctx context.Context, client ctrlruntimeclient.Client, namespace string, selector map[string]string) (int, error) {
	pods := &corev1.PodList{}

	if err := client.List(ctx, pods, ctrlruntimeclient.InNamespace(namespace), ctrlruntimeclient.MatchingLabels(selector)); err != nil {
		return 0, fmt.Errorf("failed to list pods: %w", err)
	}

	running := 0
	for _, pod := range pods.Items {
		if pod.Status.Phase == corev1.PodRunning {
			running++
		}
	}

	return running, nil
}
