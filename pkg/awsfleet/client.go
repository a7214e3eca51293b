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

// Package awsfleet provides read access to the AWS side of the fleet:
// control plane state, Karpenter-provisioned instances and cluster
// credentials. All resources are created remotely by HCP Terraform; this
// package never mutates anything in AWS.
package awsfleet

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	ekstypes "github.com/aws/aws-sdk-go-v2/service/eks/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
)

// ClientSet bundles the AWS service clients for one region.
type ClientSet struct {
	EKS *eks.Client
	EC2 *ec2.Client
	STS *sts.Client

	Region string
}

// GetClientSet builds service clients from the ambient credential chain
// (env, shared config, IMDS) for the given region.
func GetClientSet(ctx context.Context, region string) (*ClientSet, error) {
	if region == "" {
		return nil, fmt.Errorf("no region given")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	return &ClientSet{
		EKS:    eks.NewFromConfig(cfg),
		EC2:    ec2.NewFromConfig(cfg),
		STS:    sts.NewFromConfig(cfg),
		Region: region,
	}, nil
}

// CallerIdentity returns the ARN of the active credentials. Used as a
// preflight so later polling does not fail with confusing auth errors.
func (cs *ClientSet) CallerIdentity(ctx context.Context) (string, error) {
	out, err := cs.STS.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to get caller identity: %w", err)
	}

	return aws.ToString(out.Arn), nil
}

// DescribeCluster returns the EKS cluster or nil if it does not exist.
func (cs *ClientSet) DescribeCluster(ctx context.Context, name string) (*ekstypes.Cluster, error) {
	out, err := cs.EKS.DescribeCluster(ctx, &eks.DescribeClusterInput{Name: aws.String(name)})
	if err != nil {
		var notFound *ekstypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to describe cluster %s: %w", name, err)
	}

	return out.Cluster, nil
}

// CountKarpenterInstances returns the number of running EC2 instances that
// Karpenter provisioned for the given cluster.
func (cs *ClientSet) CountKarpenterInstances(ctx context.Context, clusterName string) (int, error) {
	input := &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{
				Name:   aws.String("instance-state-name"),
				Values: []string{"pending", "running"},
			},
			{
				Name:   aws.String("tag-key"),
				Values: []string{"karpenter.sh/nodepool"},
			},
			{
				Name:   aws.String("tag:kubernetes.io/cluster/" + clusterName),
				Values: []string{"owned"},
			},
		},
	}

	count := 0

	paginator := ec2.NewDescribeInstancesPaginator(cs.EC2, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to list Karpenter instances: %w", err)
		}

		for _, reservation := range page.Reservations {
			count += len(reservation.Instances)
		}
	}

	return count, nil
}

// IsAuthError reports whether an AWS API error means the credentials are
// missing or not allowed to perform the call.
func IsAuthError(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}

	switch apiErr.ErrorCode() {
	case "AccessDenied", "AccessDeniedException", "UnauthorizedOperation", "AuthFailure", "ExpiredToken":
		return true
	default:
		return false
	}
}
