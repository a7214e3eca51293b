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
	"fmt"
	"time"

	ekstypes "github.com/aws/aws-sdk-go-v2/service/eks/types"
	"github.com/sirupsen/logrus"

	"github.com/fleetform/fleetform/pkg/util/wait"
)

// WaitForControlPlane polls the EKS API until the cluster reports ACTIVE.
// A FAILED control plane and auth errors are terminal; everything else,
// including "cluster does not exist yet", keeps the poll going.
func (cs *ClientSet) WaitForControlPlane(ctx context.Context, log logrus.FieldLogger, clusterName string, timeout time.Duration) error {
	return wait.PollImmediateLog(ctx, log, 10*time.Second, timeout, func() (transient error, terminal error) {
		cluster, err := cs.DescribeCluster(ctx, clusterName)
		if err != nil {
			if IsAuthError(err) {
				return nil, err
			}

			return err, nil
		}

		if cluster == nil {
			return fmt.Errorf("cluster %s does not exist yet", clusterName), nil
		}

		switch cluster.Status {
		case ekstypes.ClusterStatusActive:
			return nil, nil
		case ekstypes.ClusterStatusFailed:
			return nil, fmt.Errorf("cluster %s ended up in status FAILED", clusterName)
		default:
			return fmt.Errorf("cluster %s is %s", clusterName, cluster.Status), nil
		}
	})
}
