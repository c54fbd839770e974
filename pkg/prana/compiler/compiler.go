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

// Package compiler validates a Workflow definition and compiles it into
// an ExecutionGraph, including strongly-connected-component loop
// detection.
package compiler

import (
	"fmt"
	"sort"

	"github.com/bluzky/prana/internal/util"
	praerrors "github.com/bluzky/prana/pkg/errors"
	"github.com/bluzky/prana/pkg/prana/model"
	"github.com/bluzky/prana/pkg/prana/registry"
)

// Compile validates wf against the action registry and produces an
// ExecutionGraph, or a *praerrors.ValidationError naming one of:
// duplicate_node_key, no_trigger, multiple_triggers, dangling_connection,
// unknown_port.
func Compile(wf *model.Workflow, reg *registry.Registry) (*model.ExecutionGraph, error) {
	if err := checkDuplicateKeys(wf); err != nil {
		return nil, err
	}

	nodeMap := make(map[string]*model.Node, len(wf.Nodes))
	for i := range wf.Nodes {
		nodeMap[wf.Nodes[i].Key] = &wf.Nodes[i]
	}

	connectionMap := make(map[model.ConnectionKey][]model.Connection)
	reverseMap := make(map[string][]model.Connection)

	for _, conns := range wf.Connections {
		for _, list := range conns {
			for _, c := range list {
				if err := validateEndpoint(nodeMap, reg, c); err != nil {
					return nil, err
				}
				key := model.ConnectionKey{NodeKey: c.From, Port: c.FromPort}
				connectionMap[key] = append(connectionMap[key], c)
				reverseMap[c.To] = append(reverseMap[c.To], c)
			}
		}
	}

	trigger, err := findTrigger(wf, reverseMap)
	if err != nil {
		return nil, err
	}

	depGraph := buildDependencyGraph(wf, reverseMap)

	annotateLoops(wf, nodeMap, connectionMap)

	return &model.ExecutionGraph{
		WorkflowID:           wf.ID,
		TriggerNodeKey:       trigger,
		NodeMap:              nodeMap,
		ConnectionMap:         connectionMap,
		ReverseConnectionMap: reverseMap,
		DependencyGraph:      depGraph,
		Variables:            wf.Variables,
	}, nil
}

func checkDuplicateKeys(wf *model.Workflow) error {
	seen := make(map[string]struct{}, len(wf.Nodes))
	for _, n := range wf.Nodes {
		if _, ok := seen[n.Key]; ok {
			return &praerrors.ValidationError{
				Field:   "nodes",
				Message: fmt.Sprintf("duplicate_node_key: %s", n.Key),
			}
		}
		seen[n.Key] = struct{}{}
	}
	return nil
}

func validateEndpoint(nodeMap map[string]*model.Node, reg *registry.Registry, c model.Connection) error {
	from, ok := nodeMap[c.From]
	if !ok {
		return &praerrors.ValidationError{
			Field:   "connections",
			Message: fmt.Sprintf("dangling_connection: source node %q does not exist", c.From),
		}
	}
	to, ok := nodeMap[c.To]
	if !ok {
		return &praerrors.ValidationError{
			Field:   "connections",
			Message: fmt.Sprintf("dangling_connection: target node %q does not exist", c.To),
		}
	}

	if reg != nil {
		if d, err := reg.GetActionByType(from.Type); err == nil {
			if !d.HasDynamicOutputPorts() && !util.Contains(d.OutputPorts, c.FromPort) {
				return &praerrors.ValidationError{
					Field:   "connections",
					Message: fmt.Sprintf("unknown_port: %s does not declare output port %q", from.Type, c.FromPort),
				}
			}
		}
		if d, err := reg.GetActionByType(to.Type); err == nil {
			if !d.HasDynamicInputPorts() && !util.Contains(d.InputPorts, c.ToPort) {
				return &praerrors.ValidationError{
					Field:   "connections",
					Message: fmt.Sprintf("unknown_port: %s does not declare input port %q", to.Type, c.ToPort),
				}
			}
		}
	}
	return nil
}

func findTrigger(wf *model.Workflow, reverseMap map[string][]model.Connection) (string, error) {
	var triggers []string
	for _, n := range wf.Nodes {
		if len(reverseMap[n.Key]) == 0 {
			triggers = append(triggers, n.Key)
		}
	}
	switch len(triggers) {
	case 0:
		return "", &praerrors.ValidationError{Field: "nodes", Message: "no_trigger: every node has an inbound connection"}
	case 1:
		return triggers[0], nil
	default:
		sort.Strings(triggers)
		return "", &praerrors.ValidationError{
			Field:   "nodes",
			Message: fmt.Sprintf("multiple_triggers: %v have no inbound connections", triggers),
		}
	}
}

func buildDependencyGraph(wf *model.Workflow, reverseMap map[string][]model.Connection) map[string]map[string]struct{} {
	deps := make(map[string]map[string]struct{}, len(wf.Nodes))
	for _, n := range wf.Nodes {
		set := make(map[string]struct{})
		for _, c := range reverseMap[n.Key] {
			set[c.From] = struct{}{}
		}
		deps[n.Key] = set
	}
	return deps
}
