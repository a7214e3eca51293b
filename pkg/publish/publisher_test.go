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

package publish

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) (string, *git.Repository) {
	t.Helper()

	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	path := filepath.Join(dir, "stack", "components.tfcomponent.hcl")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("component \"vpc\" {\n}\n"), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)

	_, err = wt.Add("stack/components.tfcomponent.hcl")
	require.NoError(t, err)

	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	return dir, repo
}

func testLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.PanicLevel)

	return logger
}

func TestPublishCleanWorktree(t *testing.T) {
	dir, _ := newTestRepo(t)

	p, err := Open(filepath.Join(dir, "stack"), testLogger())
	require.NoError(t, err)

	result, err := p.Publish(context.Background(), []string{filepath.Join(dir, "stack", "components.tfcomponent.hcl")}, "noop", Options{SkipPush: true})
	require.NoError(t, err)
	require.Empty(t, result.Files)
	require.Empty(t, result.Commit)
}

func TestPublishCommitsModifiedFiles(t *testing.T) {
	dir, repo := newTestRepo(t)
	path := filepath.Join(dir, "stack", "components.tfcomponent.hcl")

	require.NoError(t, os.WriteFile(path, []byte("component \"vpc\" {\n  source = \"x\"\n}\n"), 0o644))

	p, err := Open(filepath.Join(dir, "stack"), testLogger())
	require.NoError(t, err)

	result, err := p.Publish(context.Background(), []string{path}, "enable vpc", Options{SkipPush: true})
	require.NoError(t, err)
	require.Equal(t, []string{"stack/components.tfcomponent.hcl"}, result.Files)
	require.NotEmpty(t, result.Commit)
	require.False(t, result.Pushed)

	head, err := repo.Head()
	require.NoError(t, err)

	commit, err := repo.CommitObject(head.Hash())
	require.NoError(t, err)
	require.Equal(t, "enable vpc", commit.Message)
}

func TestPublishDryRunTouchesNothing(t *testing.T) {
	dir, repo := newTestRepo(t)
	path := filepath.Join(dir, "stack", "components.tfcomponent.hcl")

	before, err := repo.Head()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("component \"vpc\" {\n  source = \"y\"\n}\n"), 0o644))

	p, err := Open(filepath.Join(dir, "stack"), testLogger())
	require.NoError(t, err)

	result, err := p.Publish(context.Background(), []string{path}, "dry", Options{DryRun: true})
	require.NoError(t, err)
	require.Equal(t, []string{"stack/components.tfcomponent.hcl"}, result.Files)
	require.Empty(t, result.Commit)

	after, err := repo.Head()
	require.NoError(t, err)
	require.Equal(t, before.Hash(), after.Hash(), "dry run must not move HEAD")
}

func TestPendingChangesDetectsUntrackedFiles(t *testing.T) {
	dir, _ := newTestRepo(t)
	path := filepath.Join(dir, "stack", "deployments.tfdeploy.hcl")

	require.NoError(t, os.WriteFile(path, []byte("deployment \"us_east_1\" {\n}\n"), 0o644))

	p, err := Open(filepath.Join(dir, "stack"), testLogger())
	require.NoError(t, err)

	pending, err := p.PendingChanges([]string{path})
	require.NoError(t, err)
	require.Equal(t, []string{"stack/deployments.tfdeploy.hcl"}, pending)
}
