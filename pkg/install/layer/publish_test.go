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
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetform/fleetform/pkg/publish"
	"github.com/fleetform/fleetform/pkg/stacks"
)

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	return logrus.NewEntry(logger)
}

// newTestStack scaffolds a configuration inside a fresh git repository
// with everything committed, so changes made through the source show up
// as pending.
func newTestStack(t *testing.T) (*stacks.Source, *publish.Publisher) {
	t.Helper()

	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	files, err := stacks.Scaffold(dir, stacks.ScaffoldOptions{
		Fleet:   "demo",
		Regions: []string{"eu-west-1"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, files)

	wt, err := repo.Worktree()
	require.NoError(t, err)

	require.NoError(t, wt.AddGlob("."))

	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	source, err := stacks.Load(dir)
	require.NoError(t, err)

	publisher, err := publish.Open(dir, testLogger())
	require.NoError(t, err)

	return source, publisher
}

func TestPublishAndConvergeNoChanges(t *testing.T) {
	source, publisher := newTestStack(t)

	opt := Options{
		Logger:    testLogger(),
		Source:    source,
		Publisher: publisher,
		SkipPush:  true,
		Timeout:   time.Minute,
	}

	require.NoError(t, PublishAndConverge(context.Background(), opt, "noop"))
}

func TestPublishAndConvergeCommitsChanges(t *testing.T) {
	source, publisher := newTestStack(t)

	require.NoError(t, source.SetDeploymentDestroy("eu_west_1", true))
	require.NotEmpty(t, source.Changes())

	opt := Options{
		Logger:    testLogger(),
		Source:    source,
		Publisher: publisher,
		SkipPush:  true,
		Timeout:   time.Minute,
	}

	require.NoError(t, PublishAndConverge(context.Background(), opt, "destroy eu-west-1"))

	// saved and committed, nothing pending anymore
	reloaded, err := stacks.Load(source.Dir())
	require.NoError(t, err)
	assert.Empty(t, reloaded.Changes())

	pending, err := publisher.PendingChanges(source.Changes())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPublishAndConvergeDryRun(t *testing.T) {
	source, publisher := newTestStack(t)

	require.NoError(t, source.SetDeploymentDestroy("eu_west_1", true))

	opt := Options{
		Logger:    testLogger(),
		Source:    source,
		Publisher: publisher,
		DryRun:    true,
		Timeout:   time.Minute,
	}

	require.NoError(t, PublishAndConverge(context.Background(), opt, "destroy eu-west-1"))

	// nothing was written to disk
	reloaded, err := stacks.Load(source.Dir())
	require.NoError(t, err)

	deployment, err := reloaded.Deployment("eu_west_1")
	require.NoError(t, err)
	assert.False(t, deployment.Destroy)
}
