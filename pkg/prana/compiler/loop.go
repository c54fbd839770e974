// Copyright 2025 Tom Barlow
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

package compiler

import (
	"sort"
	"strconv"

	"github.com/bluzky/prana/pkg/prana/model"
)

// loopInfo is one detected loop: a strongly connected component with
// more than one node, or a single node with a self-edge.
type loopInfo struct {
	id    string
	nodes map[string]struct{}
}

// annotateLoops runs Tarjan's SCC algorithm over the workflow's
// adjacency and writes loop_level/loop_ids/loop_role into each node's
// metadata, per the compiler's loop detection design.
func annotateLoops(wf *model.Workflow, nodeMap map[string]*model.Node, connectionMap map[model.ConnectionKey][]model.Connection) {
	adj := buildAdjacency(wf, connectionMap)
	sccs := tarjanSCCs(wf, adj)

	var loops []loopInfo
	n := 0
	for _, scc := range sccs {
		if len(scc) > 1 || hasSelfEdge(scc, adj) {
			n++
			set := make(map[string]struct{}, len(scc))
			for _, k := range scc {
				set[k] = struct{}{}
			}
			loops = append(loops, loopInfo{id: loopIDFor(n), nodes: set})
		}
	}

	for _, node := range wf.Nodes {
		var participating []loopInfo
		for _, l := range loops {
			if _, ok := l.nodes[node.Key]; ok {
				participating = append(participating, l)
			}
		}
		if len(participating) == 0 {
			continue
		}

		level := 0
		var deepest loopInfo
		deepestSize := -1
		for _, l := range participating {
			lvl := 1
			for _, other := range loops {
				if other.id == l.id {
					continue
				}
				if strictSuperset(other.nodes, l.nodes) {
					lvl++
				}
			}
			if lvl > level {
				level = lvl
			}
			if len(l.nodes) > deepestSize {
				deepestSize = len(l.nodes)
				deepest = l
			}
		}

		ids := make([]string, 0, len(participating))
		for _, l := range participating {
			ids = append(ids, l.id)
		}
		sort.Strings(ids)

		if node.Metadata == nil {
			nm := nodeMap[node.Key]
			nm.Metadata = make(map[string]interface{})
		}
		target := nodeMap[node.Key]
		target.Metadata["loop_level"] = level
		target.Metadata["loop_ids"] = ids
		target.Metadata["loop_role"] = string(loopRoleFor(target.Key, deepest))
	}
}

func loopIDFor(n int) string {
	return "loop_" + strconv.Itoa(n)
}

func strictSuperset(a, b map[string]struct{}) bool {
	if len(a) <= len(b) {
		return false
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			return false
		}
	}
	return true
}

// loopRoleFor applies the lexicographic node-key heuristic within the
// deepest loop a node participates in: the first key sorted
// lexicographically is start_loop, the last is end_loop, the rest
// in_loop. This ordering is documented as a heuristic only; the
// scheduler never depends on it for correctness.
func loopRoleFor(nodeKey string, loop loopInfo) model.LoopRole {
	keys := make([]string, 0, len(loop.nodes))
	for k := range loop.nodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return model.LoopRoleNone
	}
	switch nodeKey {
	case keys[0]:
		return model.LoopRoleStart
	case keys[len(keys)-1]:
		return model.LoopRoleEnd
	default:
		return model.LoopRoleIn
	}
}

func buildAdjacency(wf *model.Workflow, connectionMap map[model.ConnectionKey][]model.Connection) map[string][]string {
	adj := make(map[string][]string, len(wf.Nodes))
	for _, n := range wf.Nodes {
		adj[n.Key] = nil
	}
	for key, conns := range connectionMap {
		for _, c := range conns {
			adj[key.NodeKey] = append(adj[key.NodeKey], c.To)
		}
	}
	return adj
}

func hasSelfEdge(scc []string, adj map[string][]string) bool {
	if len(scc) != 1 {
		return false
	}
	node := scc[0]
	for _, t := range adj[node] {
		if t == node {
			return true
		}
	}
	return false
}

// tarjanSCCs returns the strongly connected components of the
// workflow's node graph, in an arbitrary but deterministic order (nodes
// visited in workflow definition order).
func tarjanSCCs(wf *model.Workflow, adj map[string][]string) [][]string {
	index := 0
	indices := make(map[string]int)
	lowlink := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string
	var result [][]string

	var strongConnect func(v string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adj[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if indices[w] < lowlink[v] {
					lowlink[v] = indices[w]
				}
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			result = append(result, scc)
		}
	}

	for _, n := range wf.Nodes {
		if _, visited := indices[n.Key]; !visited {
			strongConnect(n.Key)
		}
	}
	return result
}
