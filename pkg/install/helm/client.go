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

// Package helm installs addon charts directly into a cluster. This is the
// fallback delivery path for operators without write access to the stack
// repository; the default path lets HCP Terraform install the same charts.
package helm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	semverlib "github.com/Masterminds/semver/v3"
	"github.com/sirupsen/logrus"
	"helm.sh/helm/v3/pkg/action"
	"helm.sh/helm/v3/pkg/chart"
	"helm.sh/helm/v3/pkg/chart/loader"
	"helm.sh/helm/v3/pkg/cli"
	"helm.sh/helm/v3/pkg/registry"
	"helm.sh/helm/v3/pkg/storage/driver"

	"k8s.io/client-go/rest"
)

// secretStorageDriver stores release information in Secrets in the release
// namespace.
const secretStorageDriver = "secret"

// ChartSpec identifies a chart in a remote repository.
type ChartSpec struct {
	RepoURL string
	Name    string
	// Version must be a valid semver version or constraint.
	Version string
}

// Client wraps the Helm action API for a single target namespace.
type Client struct {
	config    *action.Configuration
	settings  *cli.EnvSettings
	namespace string
	timeout   time.Duration
	log       logrus.FieldLogger
}

// NewClient builds a Helm client talking to the cluster behind restConfig.
func NewClient(restConfig *rest.Config, namespace string, timeout time.Duration, log logrus.FieldLogger) (*Client, error) {
	if namespace == "" {
		return nil, errors.New("no release namespace given")
	}

	config := new(action.Configuration)
	getter := newRESTClientGetter(restConfig, namespace)

	if err := config.Init(getter, namespace, secretStorageDriver, log.Debugf); err != nil {
		return nil, fmt.Errorf("failed to initialize Helm action configuration: %w", err)
	}

	registryClient, err := registry.NewClient()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OCI registry client: %w", err)
	}
	config.RegistryClient = registryClient

	return &Client{
		config:    config,
		settings:  cli.New(),
		namespace: namespace,
		timeout:   timeout,
		log:       log,
	}, nil
}

// InstallOrUpgrade installs the chart as releaseName, or upgrades the
// release if it already exists. The call blocks until the release's
// workloads are ready.
func (c *Client) InstallOrUpgrade(ctx context.Context, releaseName string, spec ChartSpec, values map[string]any) error {
	if _, err := semverlib.NewConstraint(spec.Version); err != nil {
		return fmt.Errorf("invalid chart version %q: %w", spec.Version, err)
	}

	loadedChart, err := c.loadChart(spec)
	if err != nil {
		return err
	}

	exists, err := c.releaseExists(releaseName)
	if err != nil {
		return err
	}

	logger := c.log.WithField("release", releaseName).WithField("chart", spec.Name)

	if exists {
		logger.Info("Upgrading Helm release…")

		upgrade := action.NewUpgrade(c.config)
		upgrade.Namespace = c.namespace
		upgrade.Wait = true
		upgrade.Timeout = c.timeout

		if _, err := upgrade.RunWithContext(ctx, releaseName, loadedChart, values); err != nil {
			return fmt.Errorf("failed to upgrade release %s: %w", releaseName, err)
		}

		return nil
	}

	logger.Info("Installing Helm release…")

	install := action.NewInstall(c.config)
	install.ReleaseName = releaseName
	install.Namespace = c.namespace
	install.CreateNamespace = true
	install.Wait = true
	install.Timeout = c.timeout

	if _, err := install.RunWithContext(ctx, loadedChart, values); err != nil {
		return fmt.Errorf("failed to install release %s: %w", releaseName, err)
	}

	return nil
}

// Uninstall removes the release. A release that does not exist is not an
// error, so teardown stays idempotent.
func (c *Client) Uninstall(releaseName string) error {
	uninstall := action.NewUninstall(c.config)
	uninstall.Timeout = c.timeout

	_, err := uninstall.Run(releaseName)
	if err != nil && !errors.Is(err, driver.ErrReleaseNotFound) {
		return fmt.Errorf("failed to uninstall release %s: %w", releaseName, err)
	}

	if errors.Is(err, driver.ErrReleaseNotFound) {
		c.log.WithField("release", releaseName).Info("Release does not exist, nothing to uninstall.")
	}

	return nil
}

func (c *Client) releaseExists(releaseName string) (bool, error) {
	history := action.NewHistory(c.config)
	history.Max = 1

	_, err := history.Run(releaseName)
	if err != nil {
		if errors.Is(err, driver.ErrReleaseNotFound) {
			return false, nil
		}

		return false, fmt.Errorf("failed to check release %s: %w", releaseName, err)
	}

	return true, nil
}

func (c *Client) loadChart(spec ChartSpec) (*chart.Chart, error) {
	pathOptions := action.ChartPathOptions{
		Version: spec.Version,
	}

	// OCI references carry the chart name in the reference itself.
	name := spec.Name
	if registry.IsOCI(spec.RepoURL) {
		name = strings.TrimSuffix(spec.RepoURL, "/") + "/" + spec.Name
	} else {
		pathOptions.RepoURL = spec.RepoURL
	}

	path, err := pathOptions.LocateChart(name, c.settings)
	if err != nil {
		return nil, fmt.Errorf("failed to locate chart %s: %w", spec.Name, err)
	}

	loadedChart, err := loader.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load chart %s: %w", spec.Name, err)
	}

	return loadedChart, nil
}
