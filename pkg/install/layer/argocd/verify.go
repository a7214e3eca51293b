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

package argocd

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetform/fleetform/pkg/install/layer"
	"github.com/fleetform/fleetform/pkg/kube"
	"github.com/fleetform/fleetform/pkg/util/wait"

	appsv1 "k8s.io/api/apps/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
	ctrlruntimeclient "sigs.k8s.io/controller-runtime/pkg/client"
)

const syncTimeout = 5 * time.Minute

// Verify checks that Argo CD is serving and that the root application
// has synced its children successfully.
func (a *ArgoCD) Verify(ctx context.Context, opt layer.Options) error {
	logger := opt.Logger
	logger.Info("Verifying Argo CD…")

	if opt.KubeClient == nil {
		return fmt.Errorf("cluster access is required for verification")
	}

	server := &appsv1.Deployment{}
	key := types.NamespacedName{Namespace: Namespace, Name: ServerDeployment}
	if err := opt.KubeClient.Get(ctx, key, server); err != nil {
		return fmt.Errorf("failed to get server Deployment: %w", err)
	}
	if !kube.IsDeploymentReady(server) {
		return fmt.Errorf("server Deployment %s/%s is not ready", Namespace, ServerDeployment)
	}
	logger.Info("Server is ready.")

	err := wait.PollImmediateLog(ctx, logger, 10*time.Second, syncTimeout, func() (error, error) {
		return rootAppState(ctx, opt.KubeClient)
	})
	if err != nil {
		return fmt.Errorf("root application is not healthy: %w", err)
	}

	logger.Info("Root application is synced and healthy.")

	return nil
}

// rootAppState reads the root application's aggregated status. A missing
// application is terminal, an unsynced or degraded one is transient
// because the controller may still be working on it.
func rootAppState(ctx context.Context, client ctrlruntimeclient.Client) (transient error, terminal error) {
	app := &unstructured.Unstructured{}
	app.SetGroupVersionKind(applicationGVK)

	key := types.NamespacedName{Namespace: Namespace, Name: RootAppName}
	if err := client.Get(ctx, key, app); err != nil {
		return nil, fmt.Errorf("failed to get root application: %w", err)
	}

	syncStatus, _, err := unstructured.NestedString(app.Object, "status", "sync", "status")
	if err != nil {
		return nil, err
	}

	healthStatus, _, err := unstructured.NestedString(app.Object, "status", "health", "status")
	if err != nil {
		return nil, err
	}

	if syncStatus != "Synced" {
		return fmt.Errorf("sync status is %q", syncStatus), nil
	}
	if healthStatus != "Healthy" {
		return fmt.Errorf("health status is %q", healthStatus), nil
	}

	return nil, nil
}
