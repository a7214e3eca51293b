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

package stacks

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2/hclwrite"
)

// ComponentDef describes a component block to be inserted into the stack.
// Inputs and Providers hold raw HCL expressions, e.g. "var.cluster_name"
// or "provider.aws.this".
type ComponentDef struct {
	Name      string
	Source    string
	Version   string
	Inputs    map[string]string
	Providers map[string]string
}

// Component is a read-only view of a declared component.
type Component struct {
	Name    string
	Source  string
	Version string
	File    string
}

// Components lists all declared components in file order.
func (s *Source) Components() ([]Component, error) {
	var components []Component

	for _, f := range s.componentFiles() {
		body, content, err := syntaxBody(f)
		if err != nil {
			return nil, err
		}

		for _, block := range body.Blocks {
			if block.Type != "component" || len(block.Labels) == 0 {
				continue
			}

			c := Component{
				Name: block.Labels[0],
				File: f.path,
			}

			if attr, ok := block.Body.Attributes["source"]; ok {
				c.Source = literalString(attr, content)
			}
			if attr, ok := block.Body.Attributes["version"]; ok {
				c.Version = literalString(attr, content)
			}

			components = append(components, c)
		}
	}

	return components, nil
}

// HasComponent reports whether a component block with the given name exists.
func (s *Source) HasComponent(name string) bool {
	_, block := findBlock(s.componentFiles(), "component", name)
	return block != nil
}

// IsComponentRemoved reports whether a "removed" block targeting the given
// component exists.
func (s *Source) IsComponentRemoved(name string) bool {
	_, block := s.findRemovedBlock(name)
	return block != nil
}

// EnableComponent inserts a component block built from def. A stale
// "removed" block for the same component is dropped. If the component is
// already declared, ErrComponentExists is returned and nothing changes.
func (s *Source) EnableComponent(def ComponentDef) error {
	if def.Name == "" {
		return fmt.Errorf("component definition has no name")
	}

	if s.HasComponent(def.Name) {
		return fmt.Errorf("%w: %s", ErrComponentExists, def.Name)
	}

	target := s.chooseComponentFile(def.Name)
	if target == nil {
		return ErrNoComponentFile
	}

	// A leftover removed block from a previous disable cycle would conflict
	// with the new component declaration.
	if f, removed := s.findRemovedBlock(def.Name); removed != nil {
		f.file.Body().RemoveBlock(removed)
		target = f
	}

	body := target.file.Body()
	body.AppendNewline()

	block := body.AppendNewBlock("component", []string{def.Name})
	blockBody := block.Body()
	blockBody.SetAttributeRaw("source", rawTokens(fmt.Sprintf("%q", def.Source)))

	if def.Version != "" {
		blockBody.SetAttributeRaw("version", rawTokens(fmt.Sprintf("%q", def.Version)))
	}

	if len(def.Inputs) > 0 {
		blockBody.SetAttributeRaw("inputs", objectTokens(def.Inputs))
	}

	if len(def.Providers) > 0 {
		blockBody.SetAttributeRaw("providers", objectTokens(def.Providers))
	}

	return nil
}

// DisableComponent replaces the component's declaration with a "removed"
// block so the remote runner destroys its resources while keeping the
// configuration valid. Disabling an already-removed component returns
// ErrComponentRemoved, which callers treat as "nothing to do".
func (s *Source) DisableComponent(name string) error {
	f, block := findBlock(s.componentFiles(), "component", name)
	if block == nil {
		if s.IsComponentRemoved(name) {
			return fmt.Errorf("%w: %s", ErrComponentRemoved, name)
		}

		return fmt.Errorf("%w: %s", ErrComponentNotFound, name)
	}

	// The removed block must keep the component's source and provider
	// wiring so the destroy plan can still be built.
	sourceTokens := attributeTokens(block, "source")
	providerTokens := attributeTokens(block, "providers")

	body := f.file.Body()
	body.RemoveBlock(block)
	body.AppendNewline()

	removed := body.AppendNewBlock("removed", nil)
	removedBody := removed.Body()
	removedBody.SetAttributeRaw("from", rawTokens("component."+name))

	if sourceTokens != nil {
		removedBody.SetAttributeRaw("source", sourceTokens)
	}
	if providerTokens != nil {
		removedBody.SetAttributeRaw("providers", providerTokens)
	}

	return nil
}

// SetComponentInput sets a single key inside the component's inputs object,
// leaving all other entries byte-identical. The value is a raw expression.
func (s *Source) SetComponentInput(name, key, value string) error {
	f, block := findBlock(s.componentFiles(), "component", name)
	if block == nil {
		return fmt.Errorf("%w: %s", ErrComponentNotFound, name)
	}

	return setObjectEntry(f, "component", name, "inputs", key, value)
}

func (s *Source) findRemovedBlock(component string) (*sourceFile, *hclwrite.Block) {
	want := "component." + component

	for _, f := range s.componentFiles() {
		for _, block := range f.file.Body().Blocks() {
			if block.Type() != "removed" {
				continue
			}

			attr := block.Body().GetAttribute("from")
			if attr == nil {
				continue
			}

			expr := strings.TrimSpace(string(attr.Expr().BuildTokens(nil).Bytes()))
			if expr == want {
				return f, block
			}
		}
	}

	return nil, nil
}

// chooseComponentFile picks the file a new component block is appended to:
// a file already named after the component, otherwise the first component
// file of the stack.
func (s *Source) chooseComponentFile(component string) *sourceFile {
	files := s.componentFiles()
	if len(files) == 0 {
		return nil
	}

	for _, f := range files {
		if strings.HasSuffix(f.path, "/"+component+ComponentFileSuffix) || strings.HasSuffix(f.path, component+ComponentFileSuffix) {
			return f
		}
	}

	return files[0]
}

func attributeTokens(block *hclwrite.Block, name string) hclwrite.Tokens {
	attr := block.Body().GetAttribute(name)
	if attr == nil {
		return nil
	}

	return attr.Expr().BuildTokens(nil)
}
