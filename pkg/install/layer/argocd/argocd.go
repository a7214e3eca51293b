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

// Package argocd turns GitOps delivery on and off for a fleet member. The
// controller itself is installed by the cluster addons component (or the
// argo-cd Helm chart in direct mode); this package toggles that and seeds
// the app-of-apps root Application.
package argocd

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

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
)

const (
	Namespace = "argocd"

	ServerDeployment     = "argocd-server"
	RepoServerDeployment = "argocd-repo-server"

	ChartRepository = "https://argoproj.github.io/argo-helm"
	ChartName       = "argo-cd"
	ChartVersion    = "7.7.7"
	ReleaseName     = "argocd"

	RootAppName = "root"
)

var applicationGVK = schema.GroupVersionKind{
	Group:   "argoproj.io",
	Version: "v1alpha1",
	Kind:    "Application",
}

type ArgoCD struct{}

func NewLayer() layer.Layer {
	return &ArgoCD{}
}

var _ layer.Layer = &ArgoCD{}

func (*ArgoCD) Name() string {
	return "Argo CD GitOps"
}

func (*ArgoCD) ValidateState(ctx context.Context, opt layer.Options) []error {
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

	return failures
}

func (a *ArgoCD) Enable(ctx context.Context, opt layer.Options) error {
	logger := opt.Logger
	logger.Info("Enabling Argo CD…")

	if opt.Direct {
		if err := a.enableDirect(ctx, opt); err != nil {
			return err
		}
	} else {
		if err := a.enableStack(ctx, opt); err != nil {
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
		logger.Warn("No cluster access, skipping root application setup.")
		return nil
	}

	if err := waitForWorkloads(ctx, opt); err != nil {
		return err
	}

	if opt.AppRepoURL == "" {
		logger.Info("No application repository configured, not creating a root application.")
		return nil
	}

	manifest, err := rootAppManifest(opt.AppRepoURL, opt.AppRevision, opt.AppPath)
	if err != nil {
		return err
	}

	if err := kube.ApplyManifests(ctx, logger, opt.KubeClient, manifest, "fleetform"); err != nil {
		return fmt.Errorf("failed to apply root application: %w", err)
	}

	logger.Info("Argo CD is enabled.")

	return nil
}

func (*ArgoCD) enableStack(ctx context.Context, opt layer.Options) error {
	if err := opt.Source.SetVariableDefault("enable_argocd", cty.True); err != nil {
		return fmt.Errorf("failed to set enable_argocd: %w", err)
	}

	// make sure the addons component actually consumes the toggle
	err := opt.Source.SetComponentInput("addons", "enable_argocd", "var.enable_argocd")
	if err != nil && !errors.Is(err, stacks.ErrComponentNotFound) {
		return fmt.Errorf("failed to wire enable_argocd into the addons component: %w", err)
	}

	return layer.PublishAndConverge(ctx, opt, "Enable Argo CD")
}

func (*ArgoCD) enableDirect(ctx context.Context, opt layer.Options) error {
	if opt.DryRun {
		opt.Logger.Infof("Would install chart %s/%s %s", ChartRepository, ChartName, ChartVersion)
		return nil
	}

	values, err := helm.MergeValues(map[string]any{
		"configs": map[string]any{
			"params": map[string]any{
				// the AWS load balancer terminates TLS
				"server.insecure": true,
			},
		},
	}, opt.ValuesFiles)
	if err != nil {
		return err
	}

	return opt.HelmClient.InstallOrUpgrade(ctx, ReleaseName, helm.ChartSpec{
		RepoURL: ChartRepository,
		Name:    ChartName,
		Version: ChartVersion,
	}, values)
}

func (a *ArgoCD) Disable(ctx context.Context, opt layer.Options) error {
	logger := opt.Logger
	logger.Info("Disabling Argo CD…")

	if opt.SkipCleanup {
		logger.Info("Skipping in-cluster cleanup.")
	} else if err := a.deleteRootApp(ctx, opt); err != nil {
		return err
	}

	if opt.Direct {
		if opt.DryRun {
			logger.Infof("Would uninstall release %s", ReleaseName)
			return nil
		}

		if err := opt.HelmClient.Uninstall(ReleaseName); err != nil {
			return err
		}

		logger.Info("Argo CD is disabled.")

		return nil
	}

	if err := opt.Source.SetVariableDefault("enable_argocd", cty.False); err != nil {
		return fmt.Errorf("failed to set enable_argocd: %w", err)
	}

	if err := layer.PublishAndConverge(ctx, opt, "Disable Argo CD"); err != nil {
		return err
	}

	logger.Info("Argo CD is disabled.")

	return nil
}

// deleteRootApp removes the app-of-apps and waits until it is gone, so
// that pruning of child applications happens while the controller is
// still running.
func (a *ArgoCD) deleteRootApp(ctx context.Context, opt layer.Options) error {
	logger := opt.Logger

	if opt.KubeClient == nil {
		logger.Warn("No cluster access, skipping in-cluster cleanup.")
		return nil
	}

	if opt.DryRun {
		logger.Infof("Would delete Application %s/%s", Namespace, RootAppName)
		return nil
	}

	app := &unstructured.Unstructured{}
	app.SetGroupVersionKind(applicationGVK)
	app.SetNamespace(Namespace)
	app.SetName(RootAppName)

	err := opt.KubeClient.Delete(ctx, app)
	if apierrors.IsNotFound(err) || meta.IsNoMatchError(err) || runtime.IsNotRegisteredError(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete root application: %w", err)
	}

	key := types.NamespacedName{Namespace: Namespace, Name: RootAppName}

	err = wait.PollLog(ctx, logger, 5*time.Second, opt.Timeout, func() (error, error) {
		current := &unstructured.Unstructured{}
		current.SetGroupVersionKind(applicationGVK)

		getErr := opt.KubeClient.Get(ctx, key, current)
		if apierrors.IsNotFound(getErr) {
			return nil, nil
		}
		if getErr != nil {
			return nil, getErr
		}

		return errors.New("root application still exists"), nil
	})
	if err != nil {
		logger.Warnf("Root application was not fully removed: %v", err)
	}

	return nil
}

func waitForWorkloads(ctx context.Context, opt layer.Options) error {
	sublogger := log.Prefix(opt.Logger, "   ")

	for _, name := range []string{ServerDeployment, RepoServerDeployment} {
		if err := kube.WaitForDeploymentRollout(ctx, sublogger, opt.KubeClient, Namespace, name, opt.Timeout); err != nil {
			return fmt.Errorf("%s did not become ready: %w", name, err)
		}
	}

	// the application controller ships as a StatefulSet, checking its
	// pods directly keeps this independent of the workload kind
	err := wait.PollImmediateLog(ctx, sublogger, 10*time.Second, opt.Timeout, func() (error, error) {
		running, err := kube.CountRunningPods(ctx, opt.KubeClient, Namespace, map[string]string{
			"app.kubernetes.io/name": "argocd-application-controller",
		})
		if err != nil {
			return nil, err
		}
		if running == 0 {
			return errors.New("application controller has no running pods"), nil
		}

		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("application controller did not become ready: %w", err)
	}

	return nil
}
