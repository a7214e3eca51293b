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

package awsfleet

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	ekstypes "github.com/aws/aws-sdk-go-v2/service/eks/types"

	"k8s.io/client-go/rest"
	"sigs.k8s.io/aws-iam-authenticator/pkg/token"
)

// RESTConfig builds a Kubernetes client configuration for an EKS cluster,
// using the same presigned STS token mechanism as aws-iam-authenticator.
// The token is valid for roughly 15 minutes, which comfortably covers a
// verification run.
func (cs *ClientSet) RESTConfig(ctx context.Context, clusterName string) (*rest.Config, error) {
	cluster, err := cs.DescribeCluster(ctx, clusterName)
	if err != nil {
		return nil, err
	}
	if cluster == nil {
		return nil, fmt.Errorf("cluster %s does not exist in %s", clusterName, cs.Region)
	}

	if cluster.Status != ekstypes.ClusterStatusActive {
		return nil, fmt.Errorf("cluster %s is not active (status %s)", clusterName, cluster.Status)
	}

	caData, err := base64.StdEncoding.DecodeString(aws.ToString(cluster.CertificateAuthority.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode cluster CA data: %w", err)
	}

	generator, err := token.NewGenerator(false, false)
	if err != nil {
		return nil, fmt.Errorf("failed to create token generator: %w", err)
	}

	tok, err := generator.GetWithOptions(&token.GetTokenOptions{
		ClusterID: clusterName,
		Region:    cs.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create cluster token: %w", err)
	}

	return &rest.Config{
		Host:        aws.ToString(cluster.Endpoint),
		BearerToken: tok.Token,
		TLSClientConfig: rest.TLSClientConfig{
			CAData: caData,
		},
	}, nil
}
