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

// Package model holds the immutable workflow definition types and the
// compiled ExecutionGraph they produce.
package model

// DefaultPort is the implicit port name used when a connection or action
// result does not name one.
const DefaultPort = "main"

// LoopRole classifies a node's position within the deepest loop it
// participates in, per the compiler's lexicographic heuristic.
type LoopRole string

const (
	LoopRoleStart  LoopRole = "start_loop"
	LoopRoleIn     LoopRole = "in_loop"
	LoopRoleEnd    LoopRole = "end_loop"
	LoopRoleNone   LoopRole = ""
)

// NodeSettings controls a node's retry behavior. Failures are converted
// into a retry suspension by the NodeExecutor when RetryOnFailed is set.
type NodeSettings struct {
	RetryOnFailed bool `json:"retry_on_failed" yaml:"retry_on_failed"`
	// MaxRetries is clamped to [1, 10] by NodeSettings.Normalize.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
	// RetryDelayMs is clamped to [0, 60000] by NodeSettings.Normalize.
	RetryDelayMs int `json:"retry_delay_ms" yaml:"retry_delay_ms"`
	// ResponseTransform is an optional jq expression applied to a
	// successful action's output_data before it is stored on the
	// NodeExecution. Empty means no transform.
	ResponseTransform string `json:"response_transform,omitempty" yaml:"response_transform,omitempty"`
}

// Normalize applies the defaults and clamps described in the data model:
// retry_on_failed defaults to false, max_retries defaults to 1 and is
// clamped to [1,10], retry_delay_ms defaults to 1000 and is clamped to
// [0,60000].
func (s *NodeSettings) Normalize() {
	if s.MaxRetries == 0 {
		s.MaxRetries = 1
	}
	if s.MaxRetries < 1 {
		s.MaxRetries = 1
	}
	if s.MaxRetries > 10 {
		s.MaxRetries = 10
	}
	if s.RetryDelayMs == 0 {
		s.RetryDelayMs = 1000
	}
	if s.RetryDelayMs < 0 {
		s.RetryDelayMs = 0
	}
	if s.RetryDelayMs > 60000 {
		s.RetryDelayMs = 60000
	}
}

// Node is one vertex of a Workflow. Type is an action type id looked up
// in the integration registry at compile/execution time.
type Node struct {
	Key      string                 `json:"key" yaml:"key"`
	Name     string                 `json:"name,omitempty" yaml:"name,omitempty"`
	Type     string                 `json:"type" yaml:"type"`
	Params   map[string]interface{} `json:"params,omitempty" yaml:"params,omitempty"`
	Settings NodeSettings           `json:"settings,omitempty" yaml:"settings,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Connection is a directed edge between two nodes, labeled by source and
// target port. Empty port names default to DefaultPort at load time.
type Connection struct {
	From     string `json:"from" yaml:"from"`
	FromPort string `json:"from_port,omitempty" yaml:"from_port,omitempty"`
	To       string `json:"to" yaml:"to"`
	ToPort   string `json:"to_port,omitempty" yaml:"to_port,omitempty"`
}

// Normalize fills in default port names.
func (c *Connection) Normalize() {
	if c.FromPort == "" {
		c.FromPort = DefaultPort
	}
	if c.ToPort == "" {
		c.ToPort = DefaultPort
	}
}

// Workflow is an immutable workflow definition: an ordered set of nodes
// and the connections between them.
type Workflow struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Version     int    `json:"version" yaml:"version"`

	Nodes []Node `json:"nodes" yaml:"nodes"`

	// Connections maps source node key -> port name -> outgoing connections.
	Connections map[string]map[string][]Connection `json:"connections" yaml:"connections"`

	Variables map[string]interface{} `json:"variables,omitempty" yaml:"variables,omitempty"`
}

// Normalize fills in connection port defaults and node setting defaults
// in place. Call once after parsing, before Compile.
func (w *Workflow) Normalize() {
	for i := range w.Nodes {
		w.Nodes[i].Settings.Normalize()
	}
	for _, byPort := range w.Connections {
		for port, conns := range byPort {
			for i := range conns {
				conns[i].Normalize()
			}
			byPort[port] = conns
		}
	}
}

// NodeByKey returns the node with the given key, or false if absent.
func (w *Workflow) NodeByKey(key string) (*Node, bool) {
	for i := range w.Nodes {
		if w.Nodes[i].Key == key {
			return &w.Nodes[i], true
		}
	}
	return nil, false
}

// AllConnections flattens Connections into a single slice, useful for
// validation passes that need to visit every edge once.
func (w *Workflow) AllConnections() []Connection {
	var out []Connection
	for _, byPort := range w.Connections {
		for _, conns := range byPort {
			out = append(out, conns...)
		}
	}
	return out
}
