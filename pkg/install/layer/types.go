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

package layer

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fleetform/fleetform/pkg/awsfleet"
	"github.com/fleetform/fleetform/pkg/install/helm"
	"github.com/fleetform/fleetform/pkg/publish"
	"github.com/fleetform/fleetform/pkg/stacks"
	"github.com/fleetform/fleetform/pkg/tfc"

	ctrlruntimeclient "sigs.k8s.io/controller-runtime/pkg/client"
)

// Options bundles everything a layer needs to change the fleet
// configuration and observe the result in the target cluster.
type Options struct {
	Logger *logrus.Entry

	Source    *stacks.Source
	Publisher *publish.Publisher
	TFC       *tfc.Client
	AWS       *awsfleet.ClientSet

	KubeClient ctrlruntimeclient.Client
	HelmClient *helm.Client

	ClusterName string
	Region      string

	// DryRun reports what would change without committing, pushing or
	// touching the cluster.
	DryRun bool
	// SkipPush commits configuration changes locally only.
	SkipPush bool
	// NoWait skips waiting for HCP Terraform to converge after a push.
	NoWait bool
	// Direct installs the controller's Helm chart straight into the
	// cluster instead of going through the stack configuration.
	Direct bool
	// ValuesFiles overlay the chart's computed values in direct mode.
	ValuesFiles []string
	// CleanupCRDs also removes the controller's CRDs on disable.
	CleanupCRDs bool
	// SkipCleanup leaves in-cluster resources behind on disable and
	// keeps verification probes around after a verify run.
	SkipCleanup bool

	// PushToken authenticates HTTPS git remotes.
	PushToken string

	// AppRepoURL, AppPath and AppRevision describe where the GitOps
	// root application finds its manifests. An empty repo URL skips
	// creating the root application.
	AppRepoURL  string
	AppPath     string
	AppRevision string

	Timeout time.Duration
}

// Layer is a unit of optional fleet functionality that can be switched
// on and off and independently verified.
type Layer interface {
	Name() string

	// ValidateState checks the preconditions for Enable/Disable and
	// returns all problems found, not just the first.
	ValidateState(ctx context.Context, opt Options) []error

	Enable(ctx context.Context, opt Options) error
	Disable(ctx context.Context, opt Options) error

	// Verify checks that the layer is actually functional in the target
	// cluster, beyond the configuration merely being present.
	Verify(ctx context.Context, opt Options) error
}
