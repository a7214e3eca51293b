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

// Package kube contains the Kubernetes plumbing shared by the addon layers
// and the verification suites.
package kube

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/yaml"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	ctrlruntimeclient "sigs.k8s.io/controller-runtime/pkg/client"
)

// NewClient builds a controller-runtime client with the core and
// apiextensions types registered. Everything else (Karpenter and ArgoCD
// custom resources) is handled as unstructured objects.
func NewClient(config *rest.Config) (ctrlruntimeclient.Client, error) {
	sc := runtime.NewScheme()

	if err := scheme.AddToScheme(sc); err != nil {
		return nil, fmt.Errorf("failed to register core types: %w", err)
	}
	if err := apiextensionsv1.AddToScheme(sc); err != nil {
		return nil, fmt.Errorf("failed to register apiextensions types: %w", err)
	}

	client, err := ctrlruntimeclient.New(config, ctrlruntimeclient.Options{Scheme: sc})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes client: %w", err)
	}

	return client, nil
}

// DecodeManifests splits a multi-document YAML stream into unstructured
// objects, skipping empty documents.
func DecodeManifests(manifests []byte) ([]*unstructured.Unstructured, error) {
	decoder := yaml.NewYAMLOrJSONDecoder(bytes.NewReader(manifests), 1024)

	var objects []*unstructured.Unstructured

	for {
		obj := &unstructured.Unstructured{}

		if err := decoder.Decode(obj); err != nil {
			if err == io.EOF {
				break
			}

			return nil, fmt.Errorf("failed to decode manifest: %w", err)
		}

		if len(obj.Object) == 0 {
			continue
		}

		objects = append(objects, obj)
	}

	return objects, nil
}

// ApplyManifests server-side-applies all objects in the given YAML stream.
func ApplyManifests(ctx context.Context, log logrus.FieldLogger, client ctrlruntimeclient.Client, manifests []byte, fieldOwner string) error {
	objects, err := DecodeManifests(manifests)
	if err != nil {
		return err
	}

	for _, obj := range objects {
		log.WithField("kind", obj.GetKind()).WithField("name", obj.GetName()).Debug("Applying manifest…")

		err := client.Patch(ctx, obj, ctrlruntimeclient.Apply, ctrlruntimeclient.ForceOwnership, ctrlruntimeclient.FieldOwner(fieldOwner))
		if err != nil {
			return fmt.Errorf("failed to apply %s %s: %w", obj.GetKind(), obj.GetName(), err)
		}
	}

	return nil
}
