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

	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// setObjectEntry updates a single key inside an object-valued attribute
// (e.g. the "inputs" map of a component or deployment block) while keeping
// every other entry's original source text. If the entry already has the
// wanted expression, nothing is modified at all.
func setObjectEntry(f *sourceFile, blockType, label, attrName, key, value string) error {
	body, content, err := syntaxBody(f)
	if err != nil {
		return err
	}

	block := findSyntaxBlock(body, blockType, label)
	if block == nil {
		return fmt.Errorf("block %s %q not found in %s", blockType, label, f.path)
	}

	items := []hclwrite.ObjectAttrTokens{}
	replaced := false

	if attr, ok := block.Body.Attributes[attrName]; ok {
		object, ok := attr.Expr.(*hclsyntax.ObjectConsExpr)
		if !ok {
			return fmt.Errorf("attribute %q of %s %q is not an object", attrName, blockType, label)
		}

		for _, item := range object.Items {
			keyText := exprText(item.KeyExpr, content)
			valueText := exprText(item.ValueExpr, content)

			if keyName(keyText) == key {
				if strings.TrimSpace(valueText) == strings.TrimSpace(value) {
					// already the wanted expression, leave the file alone
					return nil
				}

				valueText = value
				replaced = true
			}

			items = append(items, hclwrite.ObjectAttrTokens{
				Name:  rawTokens(keyText),
				Value: rawTokens(valueText),
			})
		}
	}

	if !replaced {
		items = append(items, hclwrite.ObjectAttrTokens{
			Name:  rawTokens(key),
			Value: rawTokens(value),
		})
	}

	_, writeBlock := findBlock([]*sourceFile{f}, blockType, label)
	if writeBlock == nil {
		return fmt.Errorf("block %s %q not found in %s", blockType, label, f.path)
	}

	writeBlock.Body().SetAttributeRaw(attrName, hclwrite.TokensForObject(items))

	return nil
}

// objectEntryText returns the original source text of one entry of an
// object-valued attribute, or "" if the entry does not exist.
func objectEntryText(f *sourceFile, blockType, label, attrName, key string) (string, error) {
	body, content, err := syntaxBody(f)
	if err != nil {
		return "", err
	}

	block := findSyntaxBlock(body, blockType, label)
	if block == nil {
		return "", fmt.Errorf("block %s %q not found in %s", blockType, label, f.path)
	}

	attr, ok := block.Body.Attributes[attrName]
	if !ok {
		return "", nil
	}

	object, ok := attr.Expr.(*hclsyntax.ObjectConsExpr)
	if !ok {
		return "", fmt.Errorf("attribute %q of %s %q is not an object", attrName, blockType, label)
	}

	for _, item := range object.Items {
		if keyName(exprText(item.KeyExpr, content)) == key {
			return strings.TrimSpace(exprText(item.ValueExpr, content)), nil
		}
	}

	return "", nil
}

func findSyntaxBlock(body *hclsyntax.Body, blockType, label string) *hclsyntax.Block {
	for _, block := range body.Blocks {
		if block.Type != blockType {
			continue
		}

		if label == "" || (len(block.Labels) > 0 && block.Labels[0] == label) {
			return block
		}
	}

	return nil
}

// exprText slices the original source text of an expression out of the file
// content, so untouched expressions survive mutations verbatim.
func exprText(expr hclsyntax.Expression, content []byte) string {
	rng := expr.Range()
	if rng.Start.Byte < 0 || rng.End.Byte > len(content) || rng.Start.Byte > rng.End.Byte {
		return ""
	}

	return string(content[rng.Start.Byte:rng.End.Byte])
}

// keyName normalizes an object key's source text to its bare name.
func keyName(text string) string {
	return strings.Trim(strings.TrimSpace(text), `"`)
}

// literalString evaluates an attribute that is expected to hold a constant
// string; non-constant expressions are returned as their source text.
func literalString(attr *hclsyntax.Attribute, content []byte) string {
	val, diags := attr.Expr.Value(nil)
	if !diags.HasErrors() && val.Type() == cty.String {
		return val.AsString()
	}

	return strings.TrimSpace(exprText(attr.Expr, content))
}
