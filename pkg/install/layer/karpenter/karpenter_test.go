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
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetform/fleetform/pkg/install/layer"
	"github.com/fleetform/fleetform/pkg/kube"
	"github.com/fleetform/fleetform/pkg/stacks"

	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
)

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	return logrus.NewEntry(logger)
}

func testScheme(t *testing.T) *runtime.Scheme {
	t.Helper()

	scheme := runtime.NewScheme()
	require.NoError(t, clientgoscheme.AddToScheme(scheme))
	require.NoError(t, apiextensionsv1.AddToScheme(scheme))

	return scheme
}

func scaffoldSource(t *testing.T) *stacks.Source {
	t.Helper()

	dir := t.TempDir()
	_, err := stacks.Scaffold(dir, stacks.ScaffoldOptions{
		Fleet:   "demo",
		Regions: []string{"eu-west-1"},
	})
	require.NoError(t, err)

	source, err := stacks.Load(dir)
	require.NoError(t, err)

	return source
}

func TestDefaultNodeResources(t *testing.T) {
	manifests, err := defaultNodeResources("fleet-eu-west-1")
	require.NoError(t, err)

	objects, err := kube.DecodeManifests(manifests)
	require.NoError(t, err)
	require.Len(t, objects, 2)

	assert.Equal(t, "NodePool", objects[0].GetKind())
	assert.Equal(t, "EC2NodeClass", objects[1].GetKind())

	rendered := string(manifests)
	assert.Contains(t, rendered, "karpenter.sh/discovery: fleet-eu-west-1")
	assert.Contains(t, rendered, "role: Karpenter-fleet-eu-west-1")
}

func TestInflateManifest(t *testing.T) {
	manifest, err := inflateManifest(5)
	require.NoError(t, err)

	objects, err := kube.DecodeManifests(manifest)
	require.NoError(t, err)
	require.Len(t, objects, 1)

	replicas, found, err := unstructured.NestedInt64(objects[0].Object, "spec", "replicas")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(5), replicas)
}

func TestEnableStackIsIdempotent(t *testing.T) {
	source := scaffoldSource(t)
	k := &Karpenter{}

	opt := layer.Options{
		Logger:      testLogger(),
		Source:      source,
		ClusterName: "demo-eu-west-1",
		DryRun:      true,
		Timeout:     time.Minute,
	}

	require.NoError(t, k.enableStack(context.Background(), opt))
	assert.True(t, source.HasComponent(ComponentName))

	// a second enable must not fail or change anything further
	require.NoError(t, k.enableStack(context.Background(), opt))
}

func TestDisableTogglesComponent(t *testing.T) {
	source := scaffoldSource(t)
	k := &Karpenter{}

	opt := layer.Options{
		Logger:      testLogger(),
		Source:      source,
		ClusterName: "demo-eu-west-1",
		DryRun:      true,
		SkipCleanup: true,
		Timeout:     time.Minute,
	}

	require.NoError(t, k.enableStack(context.Background(), opt))
	require.NoError(t, k.Disable(context.Background(), opt))

	assert.False(t, source.HasComponent(ComponentName))
	assert.True(t, source.IsComponentRemoved(ComponentName))

	// disabling twice is fine
	require.NoError(t, k.Disable(context.Background(), opt))
}

func TestValidateState(t *testing.T) {
	k := &Karpenter{}

	failures := k.ValidateState(context.Background(), layer.Options{Direct: true})
	assert.Len(t, failures, 2) // no helm client, no cluster name

	failures = k.ValidateState(context.Background(), layer.Options{
		Source:      scaffoldSource(t),
		ClusterName: "demo",
		DryRun:      true,
	})
	assert.Empty(t, failures)
}

func TestCleanupClusterDeletesCRDs(t *testing.T) {
	crd := &apiextensionsv1.CustomResourceDefinition{
		ObjectMeta: metav1.ObjectMeta{Name: NodePoolCRDName},
	}

	client := fake.NewClientBuilder().
		WithScheme(testScheme(t)).
		WithObjects(crd).
		Build()

	k := &Karpenter{}
	opt := layer.Options{
		Logger:      testLogger(),
		KubeClient:  client,
		ClusterName: "demo",
		CleanupCRDs: true,
		Timeout:     time.Second,
	}

	require.NoError(t, k.cleanupCluster(context.Background(), opt))

	err := client.Get(context.Background(), types.NamespacedName{Name: NodePoolCRDName}, &apiextensionsv1.CustomResourceDefinition{})
	assert.True(t, apierrors.IsNotFound(err))
}

func TestDeleteProbeIsIdempotent(t *testing.T) {
	client := fake.NewClientBuilder().WithScheme(testScheme(t)).Build()

	require.NoError(t, deleteProbe(context.Background(), client))
}

func TestLayerName(t *testing.T) {
	var l layer.Layer = NewLayer()
	assert.True(t, strings.Contains(l.Name(), "Karpenter"))
}
