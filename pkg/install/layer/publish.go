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
	"fmt"

	"github.com/fleetform/fleetform/pkg/publish"
)

// PublishAndConverge writes pending configuration changes to disk, commits
// and pushes them, and then waits for HCP Terraform to pick them up and
// converge. It is a no-op when the configuration is already in the desired
// state, which is what makes enable/disable idempotent end to end.
func PublishAndConverge(ctx context.Context, opt Options, message string) error {
	changes := opt.Source.Changes()
	if len(changes) == 0 {
		opt.Logger.Info("Configuration is already up to date.")
		return nil
	}

	if opt.DryRun {
		for _, file := range changes {
			opt.Logger.Infof("Would update %s", file)
		}
		opt.Logger.Infof("Would commit: %s", message)

		return nil
	}

	files, err := opt.Source.Save()
	if err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	result, err := opt.Publisher.Publish(ctx, files, message, publish.Options{
		SkipPush: opt.SkipPush,
		Token:    opt.PushToken,
	})
	if err != nil {
		return fmt.Errorf("failed to publish configuration: %w", err)
	}

	if !result.Pushed {
		opt.Logger.Warn("Changes were committed but not pushed, skipping the convergence wait.")
		return nil
	}

	if opt.NoWait || opt.TFC == nil {
		return nil
	}

	opt.Logger.Info("Waiting for HCP Terraform to converge…")

	if err := opt.TFC.WaitForConvergence(ctx, opt.Timeout); err != nil {
		return fmt.Errorf("stack did not converge: %w", err)
	}

	return nil
}
