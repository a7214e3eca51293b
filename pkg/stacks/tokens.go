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
	"sort"

	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
)

// rawTokens renders an arbitrary expression verbatim. hclwrite treats a
// single ident token as opaque text, which is exactly what we need for
// references like "var.cluster_name" or "provider.aws.this". The final
// output is normalized by hclwrite.Format before it reaches disk.
func rawTokens(expr string) hclwrite.Tokens {
	return hclwrite.Tokens{
		{
			Type:  hclsyntax.TokenIdent,
			Bytes: []byte(expr),
		},
	}
}

// objectTokens builds an object constructor expression from raw expression
// strings, with keys in deterministic order.
func objectTokens(attrs map[string]string) hclwrite.Tokens {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	items := make([]hclwrite.ObjectAttrTokens, 0, len(keys))
	for _, k := range keys {
		items = append(items, hclwrite.ObjectAttrTokens{
			Name:  hclwrite.TokensForIdentifier(k),
			Value: rawTokens(attrs[k]),
		})
	}

	return hclwrite.TokensForObject(items)
}
