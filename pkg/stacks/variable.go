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

	"github.com/zclconf/go-cty/cty"
)

// VariableDefault returns the default value of a variable block, or
// cty.NilVal if the variable has no (constant) default.
func (s *Source) VariableDefault(name string) (cty.Value, error) {
	f, block := findBlock(s.componentFiles(), "variable", name)
	if block == nil {
		return cty.NilVal, fmt.Errorf("%w: %s", ErrVariableNotFound, name)
	}

	body, _, err := syntaxBody(f)
	if err != nil {
		return cty.NilVal, err
	}

	syntaxBlock := findSyntaxBlock(body, "variable", name)
	if syntaxBlock == nil {
		return cty.NilVal, fmt.Errorf("%w: %s", ErrVariableNotFound, name)
	}

	attr, ok := syntaxBlock.Body.Attributes["default"]
	if !ok {
		return cty.NilVal, nil
	}

	val, diags := attr.Expr.Value(nil)
	if diags.HasErrors() {
		return cty.NilVal, nil
	}

	return val, nil
}

// SetVariableDefault sets the default of a variable block. Setting the
// value it already has leaves the file untouched.
func (s *Source) SetVariableDefault(name string, value cty.Value) error {
	_, block := findBlock(s.componentFiles(), "variable", name)
	if block == nil {
		return fmt.Errorf("%w: %s", ErrVariableNotFound, name)
	}

	current, err := s.VariableDefault(name)
	if err == nil && !current.IsNull() && current.RawEquals(value) {
		return nil
	}

	block.Body().SetAttributeValue("default", value)

	return nil
}
