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

// Package publish pushes mutated stack sources to the git remote that the
// remote Terraform runner watches. A push is what actually triggers plans
// and applies; everything in this package is therefore the last local step
// of every state-changing command.
package publish

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/sirupsen/logrus"
)

const (
	defaultRemote      = "origin"
	fallbackAuthorName = "fleetform"
	fallbackAuthorMail = "fleetform@localhost"
)

// Options controls how far a publish run goes.
type Options struct {
	// DryRun reports pending changes without committing or pushing.
	DryRun bool
	// SkipPush commits locally but does not contact the remote.
	SkipPush bool
	// Token authenticates HTTPS remotes; SSH remotes use the ambient agent.
	Token string
}

// Result describes what a publish run did.
type Result struct {
	// Files are the worktree-relative paths that were staged.
	Files []string
	// Commit is the hash of the created commit, empty for dry runs.
	Commit string
	// Pushed is true if the remote accepted the commit.
	Pushed bool
}

// Publisher wraps a git worktree containing the stack configuration.
type Publisher struct {
	repo *git.Repository
	log  logrus.FieldLogger
}

// Open locates the repository containing dir, searching upwards like the
// git CLI does.
func Open(dir string, log logrus.FieldLogger) (*Publisher, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open git repository at %s: %w", dir, err)
	}

	return &Publisher{repo: repo, log: log}, nil
}

// RemoteURL returns the first URL of the default remote, which is what
// consumers of the published configuration clone from.
func (p *Publisher) RemoteURL() (string, error) {
	remote, err := p.repo.Remote(git.DefaultRemoteName)
	if err != nil {
		return "", fmt.Errorf("failed to get remote %s: %w", git.DefaultRemoteName, err)
	}

	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", fmt.Errorf("remote %s has no URL", git.DefaultRemoteName)
	}

	return urls[0], nil
}

// PendingChanges returns the worktree-relative paths of the given files
// that differ from HEAD. Unknown or unchanged paths are skipped.
func (p *Publisher) PendingChanges(paths []string) ([]string, error) {
	wt, err := p.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree status: %w", err)
	}

	var pending []string

	for _, path := range paths {
		rel, err := p.worktreeRel(wt, path)
		if err != nil {
			return nil, err
		}

		// a path missing from the status map is clean
		st, ok := status[rel]
		if !ok || (st.Worktree == git.Unmodified && st.Staging == git.Unmodified) {
			continue
		}

		pending = append(pending, rel)
	}

	return pending, nil
}

// Publish stages the given files, commits them and pushes the commit. A
// clean worktree is not an error: the returned result simply has no files.
func (p *Publisher) Publish(ctx context.Context, paths []string, message string, opt Options) (*Result, error) {
	pending, err := p.PendingChanges(paths)
	if err != nil {
		return nil, err
	}

	result := &Result{Files: pending}

	if len(pending) == 0 {
		p.log.Info("Nothing to publish, worktree is clean.")
		return result, nil
	}

	if opt.DryRun {
		for _, rel := range pending {
			p.log.WithField("file", rel).Info("Would commit")
		}

		return result, nil
	}

	wt, err := p.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}

	for _, rel := range pending {
		if _, err := wt.Add(rel); err != nil {
			return nil, fmt.Errorf("failed to stage %s: %w", rel, err)
		}
	}

	commit, err := wt.Commit(message, &git.CommitOptions{
		Author: p.author(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	result.Commit = commit.String()
	p.log.WithField("commit", commit.String()[:12]).Info("Created commit.")

	if opt.SkipPush {
		p.log.Info("Skipping push as requested.")
		return result, nil
	}

	pushOpts := &git.PushOptions{RemoteName: defaultRemote}
	if opt.Token != "" {
		pushOpts.Auth = &http.BasicAuth{Username: "git", Password: opt.Token}
	}

	if err := p.repo.PushContext(ctx, pushOpts); err != nil {
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			p.log.Info("Remote is already up to date.")
		} else {
			return result, fmt.Errorf("failed to push to %s: %w", defaultRemote, err)
		}
	}

	result.Pushed = true

	return result, nil
}

// author prefers the user's git identity and falls back to a static one so
// that automation also works in bare CI environments.
func (p *Publisher) author() *object.Signature {
	sig := &object.Signature{
		Name:  fallbackAuthorName,
		Email: fallbackAuthorMail,
		When:  time.Now(),
	}

	cfg, err := p.repo.ConfigScoped(config.SystemScope)
	if err != nil {
		return sig
	}

	if cfg.User.Name != "" {
		sig.Name = cfg.User.Name
	}
	if cfg.User.Email != "" {
		sig.Email = cfg.User.Email
	}

	return sig
}

func (p *Publisher) worktreeRel(wt *git.Worktree, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(wt.Filesystem.Root(), abs)
	if err != nil {
		return "", fmt.Errorf("%s is outside the repository: %w", path, err)
	}

	return filepath.ToSlash(rel), nil
}
