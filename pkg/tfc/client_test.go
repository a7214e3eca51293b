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

package tfc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestConvergenceState(t *testing.T) {
	testcases := []struct {
		status string
		done   bool
		failed bool
	}{
		{status: "converged", done: true},
		{status: "converging"},
		{status: "pending"},
		{status: "enqueueing"},
		{status: "errored", failed: true},
		{status: "canceled", failed: true},
	}

	for _, tc := range testcases {
		t.Run(tc.status, func(t *testing.T) {
			transient, terminal := convergenceState(tc.status)

			if tc.failed {
				require.Error(t, terminal)
				return
			}

			require.NoError(t, terminal)

			if tc.done {
				require.NoError(t, transient)
			} else {
				require.Error(t, transient)
			}
		})
	}
}

// newFakeStackAPI simulates the relevant slice of the HCP Terraform API:
// stacks are only listed when the client filters by name, and the latest
// configuration is only sideloaded when the client asks for it, exactly
// like the JSON:API backend behaves.
func newFakeStackAPI(t *testing.T, configStatus string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("/api/v2/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/api/v2/organizations/acme/stacks", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.api+json")

		// if the client does not filter server-side, it only sees a
		// page full of unrelated stacks
		if r.URL.Query().Get("search[name]") != "fleet" {
			fmt.Fprint(w, `{"data": [{"type": "stacks", "id": "st-other", "attributes": {"name": "other"}}]}`)
			return
		}

		fmt.Fprint(w, `{
			"data": [
				{
					"type": "stacks",
					"id": "st-fleet",
					"attributes": {"name": "fleet"},
					"relationships": {
						"latest-stack-configuration": {"data": {"type": "stack-configurations", "id": "sc-1"}}
					}
				}
			]
		}`)
	})

	mux.HandleFunc("/api/v2/stacks/st-fleet", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.api+json")

		body := `{
			"data": {
				"type": "stacks",
				"id": "st-fleet",
				"attributes": {"name": "fleet"},
				"relationships": {
					"latest-stack-configuration": {"data": {"type": "stack-configurations", "id": "sc-1"}}
				}
			}%s
		}`

		// without the include parameter only the relationship stub is
		// returned and the configuration status stays empty
		included := ""
		if strings.Contains(r.URL.Query().Get("include"), "latest_stack_configuration") {
			included = fmt.Sprintf(`,
			"included": [
				{"type": "stack-configurations", "id": "sc-1", "attributes": {"status": %q}}
			]`, configStatus)
		}

		fmt.Fprintf(w, body, included)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server
}

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	client, err := NewClient(Config{
		Address:      server.URL,
		Token:        "test-token",
		Organization: "acme",
		Stack:        "fleet",
	}, logger)
	require.NoError(t, err)

	client.pollInterval = 10 * time.Millisecond

	return client
}

func TestFindStack(t *testing.T) {
	client := newTestClient(t, newFakeStackAPI(t, "converged"))

	stack, err := client.FindStack(context.Background())
	require.NoError(t, err)
	require.Equal(t, "st-fleet", stack.ID)
}

func TestWaitForConvergenceSucceeds(t *testing.T) {
	client := newTestClient(t, newFakeStackAPI(t, "converged"))

	err := client.WaitForConvergence(context.Background(), 2*time.Second)
	require.NoError(t, err)
}

func TestWaitForConvergenceFailedConfiguration(t *testing.T) {
	client := newTestClient(t, newFakeStackAPI(t, "errored"))

	err := client.WaitForConvergence(context.Background(), 2*time.Second)
	require.Error(t, err)
	require.Contains(t, err.Error(), "errored")
}

func TestNewClientValidation(t *testing.T) {
	log := logrus.New()

	_, err := NewClient(Config{Organization: "org", Stack: "stack"}, log)
	require.Error(t, err, "missing token must be rejected")

	_, err = NewClient(Config{Token: "token"}, log)
	require.Error(t, err, "missing organization/stack must be rejected")
}
