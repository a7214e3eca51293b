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

// Package tfc talks to HCP Terraform, which runs the actual plans and
// applies for the stack. fleetform never applies Terraform itself; it only
// pushes configuration and then observes the remote runs from here.
package tfc

import (
	"context"
	"fmt"
	"time"

	tfe "github.com/hashicorp/go-tfe"
	"github.com/sirupsen/logrus"

	"github.com/fleetform/fleetform/pkg/util/wait"
)

// Config identifies the remote stack.
type Config struct {
	// Address of the HCP Terraform instance, empty for the public one.
	Address string
	// Token authenticates API calls (usually from TFE_TOKEN).
	Token string
	// Organization and Stack name the pushed configuration belongs to.
	Organization string
	Stack        string
}

// Client observes stack runs in HCP Terraform.
type Client struct {
	tfe *tfe.Client
	cfg Config
	log logrus.FieldLogger

	pollInterval time.Duration
}

func NewClient(cfg Config, log logrus.FieldLogger) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("no HCP Terraform token given (set TFE_TOKEN)")
	}
	if cfg.Organization == "" || cfg.Stack == "" {
		return nil, fmt.Errorf("organization and stack name must be configured")
	}

	client, err := tfe.NewClient(&tfe.Config{
		Address:           cfg.Address,
		Token:             cfg.Token,
		RetryServerErrors: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create HCP Terraform client: %w", err)
	}

	return &Client{
		tfe:          client,
		cfg:          cfg,
		log:          log,
		pollInterval: 15 * time.Second,
	}, nil
}

// FindStack resolves the configured stack name within the organization.
func (c *Client) FindStack(ctx context.Context) (*tfe.Stack, error) {
	// SearchByName filters server-side, so stacks beyond the first page
	// of the listing still resolve.
	list, err := c.tfe.Stacks.List(ctx, c.cfg.Organization, &tfe.StackListOptions{
		SearchByName: c.cfg.Stack,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list stacks in organization %s: %w", c.cfg.Organization, err)
	}

	for _, stack := range list.Items {
		if stack.Name == c.cfg.Stack {
			return stack, nil
		}
	}

	return nil, fmt.Errorf("stack %q not found in organization %s", c.cfg.Stack, c.cfg.Organization)
}

// WaitForConvergence polls the stack until its latest configuration has
// converged, i.e. every deployment has been planned and applied. Plan or
// apply failures are terminal.
func (c *Client) WaitForConvergence(ctx context.Context, timeout time.Duration) error {
	stack, err := c.FindStack(ctx)
	if err != nil {
		return err
	}

	c.log.WithField("stack", stack.Name).Info("Waiting for HCP Terraform to converge the stack…")

	return wait.PollImmediateLog(ctx, c.log, c.pollInterval, timeout, func() (transient error, terminal error) {
		// without the include, the API only returns the relationship
		// stub and the configuration status stays empty
		current, err := c.tfe.Stacks.Read(ctx, stack.ID, &tfe.StackReadOptions{
			Include: []tfe.StackIncludeOpt{tfe.StackIncludeLatestStackConfiguration},
		})
		if err != nil {
			// API hiccups are retried until the timeout strikes
			return fmt.Errorf("failed to read stack: %w", err), nil
		}

		if current.LatestStackConfiguration == nil {
			return fmt.Errorf("stack has no configuration yet"), nil
		}

		return convergenceState(current.LatestStackConfiguration.Status)
	})
}

// convergenceState maps a stack configuration status onto the poll
// contract: done, still converging, or failed for good.
func convergenceState(status string) (transient error, terminal error) {
	switch status {
	case "converged":
		return nil, nil
	case "errored", "canceled":
		return nil, fmt.Errorf("stack configuration ended in status %q", status)
	default:
		return fmt.Errorf("stack configuration is %q", status), nil
	}
}
