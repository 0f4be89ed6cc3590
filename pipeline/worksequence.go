// Copyright 2025 Vectral Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package pipeline

import "github.com/vectral/normpipe/core"

// extractWorkSequence collects the ordered work steps of a process document:
// every list item of the markup tree, in reading order. Pre-order traversal
// preserves the sequencing of nested sub-steps under their parent step.
func extractWorkSequence(tree *core.MarkupTree) []string {
	if tree == nil {
		return nil
	}
	var steps []string
	tree.Walk(func(idx, depth int) bool {
		node := tree.Node(idx)
		if node.Kind == core.KindListItem && node.Text != "" {
			steps = append(steps, node.Text)
		}
		return true
	})
	return steps
}
