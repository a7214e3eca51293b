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

// Package stacks provides a typed, mutation-capable model of a Terraform
// Stacks configuration directory. All mutations operate on the HCL syntax
// tree, never on raw text, and are idempotent: re-applying a mutation that
// already took effect leaves the sources byte-identical.
package stacks

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
)

const (
	// ComponentFileSuffix marks files declaring components, variables and
	// providers of the stack.
	ComponentFileSuffix = ".tfcomponent.hcl"
	// DeploymentFileSuffix marks files declaring per-region deployments.
	DeploymentFileSuffix = ".tfdeploy.hcl"
)

var (
	ErrComponentNotFound  = errors.New("component not found")
	ErrComponentExists    = errors.New("component already declared")
	ErrComponentRemoved   = errors.New("component already marked as removed")
	ErrDeploymentNotFound = errors.New("deployment not found")
	ErrVariableNotFound   = errors.New("variable not found")
	ErrNoComponentFile    = errors.New("no component file in stack directory")
)

type sourceFile struct {
	path     string
	file     *hclwrite.File
	original []byte
}

func (f *sourceFile) rendered() []byte {
	return hclwrite.Format(f.file.Bytes())
}

func (f *sourceFile) dirty() bool {
	return !bytes.Equal(f.original, f.rendered())
}

// Source is a loaded Terraform Stacks configuration directory.
type Source struct {
	dir   string
	files []*sourceFile
}

// Load reads all Stacks HCL files from dir. Files that fail to parse abort
// the load with their diagnostics.
func Load(dir string) (*Source, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read stack directory: %w", err)
	}

	src := &Source{dir: dir}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ComponentFileSuffix) && !strings.HasSuffix(name, DeploymentFileSuffix)) {
			continue
		}

		path := filepath.Join(dir, name)

		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}

		parsed, diags := hclwrite.ParseConfig(content, name, hcl.InitialPos)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse %s: %w", name, diags)
		}

		src.files = append(src.files, &sourceFile{
			path:     path,
			file:     parsed,
			original: content,
		})
	}

	sort.Slice(src.files, func(i, j int) bool {
		return src.files[i].path < src.files[j].path
	})

	return src, nil
}

// Dir returns the stack directory this source was loaded from.
func (s *Source) Dir() string {
	return s.dir
}

// Changes returns the paths of all files whose rendered content differs
// from what was loaded from disk.
func (s *Source) Changes() []string {
	var changed []string

	for _, f := range s.files {
		if f.dirty() {
			changed = append(changed, f.path)
		}
	}

	return changed
}

// Save writes all modified files back to disk and returns the paths that
// were written. Untouched files are left alone.
func (s *Source) Save() ([]string, error) {
	var written []string

	for _, f := range s.files {
		if !f.dirty() {
			continue
		}

		if err := os.WriteFile(f.path, f.rendered(), 0o644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", f.path, err)
		}

		f.original = f.rendered()
		written = append(written, f.path)
	}

	return written, nil
}

// componentFiles returns all files that may declare components.
func (s *Source) componentFiles() []*sourceFile {
	var files []*sourceFile
	for _, f := range s.files {
		if strings.HasSuffix(f.path, ComponentFileSuffix) {
			files = append(files, f)
		}
	}

	return files
}

func (s *Source) deploymentFiles() []*sourceFile {
	var files []*sourceFile
	for _, f := range s.files {
		if strings.HasSuffix(f.path, DeploymentFileSuffix) {
			files = append(files, f)
		}
	}

	return files
}

// findBlock locates the first block of the given type whose first label (if
// any is expected) matches.
func findBlock(files []*sourceFile, typeName, label string) (*sourceFile, *hclwrite.Block) {
	for _, f := range files {
		for _, block := range f.file.Body().Blocks() {
			if block.Type() != typeName {
				continue
			}

			if label == "" || (len(block.Labels()) > 0 && block.Labels()[0] == label) {
				return f, block
			}
		}
	}

	return nil, nil
}

// syntaxBody re-parses the current (possibly mutated) content of a file and
// returns its syntax tree along with the exact bytes it was parsed from.
// The syntax tree is used for evaluated reads, which hclwrite cannot do.
func syntaxBody(f *sourceFile) (*hclsyntax.Body, []byte, error) {
	content := f.file.Bytes()

	parsed, diags := hclparse.NewParser().ParseHCL(content, f.path)
	if diags.HasErrors() {
		return nil, nil, fmt.Errorf("failed to re-parse %s: %w", f.path, diags)
	}

	body, ok := parsed.Body.(*hclsyntax.Body)
	if !ok {
		return nil, nil, fmt.Errorf("unexpected body type %T in %s", parsed.Body, f.path)
	}

	return body, content, nil
}
