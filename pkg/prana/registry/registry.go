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

// Package registry implements the process-wide integration registry:
// the mapping from action type ids to action descriptors, and the
// Action contract those descriptors expose.
package registry

import (
	"fmt"
	"sync"

	praerrors "github.com/bluzky/prana/pkg/errors"
	"github.com/bluzky/prana/internal/util"
)

// ActionKind classifies what role an action plays in a workflow.
type ActionKind string

const (
	ActionKindTrigger ActionKind = "trigger"
	ActionKindAction  ActionKind = "action"
	ActionKindLogic   ActionKind = "logic"
	ActionKindWait    ActionKind = "wait"
)

// DynamicPort is the wildcard output/input port declaration meaning "any
// port name is accepted", used by actions whose ports aren't known
// statically.
const DynamicPort = "*"

// ResultStatus discriminates the Action.Execute/Resume return tuple.
type ResultStatus string

const (
	ResultOK      ResultStatus = "ok"
	ResultErr     ResultStatus = "err"
	ResultSuspend ResultStatus = "suspend"
)

// Result is the tagged union an action's Execute/Resume return:
// ok(data[, port][, state_updates]), err(error[, port]), or
// suspend(type, data).
type Result struct {
	Status ResultStatus

	Data interface{}
	Port string

	// StateUpdates may carry the reserved key "node_context" plus
	// arbitrary other keys. The NodeExecutor does not apply them: neither
	// the node's context bag nor the workflow-shared state changes when a
	// result carries StateUpdates.
	StateUpdates map[string]interface{}

	Err error

	SuspensionType string
	SuspensionData map[string]interface{}
}

// OK builds a successful result on the default port with no state updates.
func OK(data interface{}) Result { return Result{Status: ResultOK, Data: data} }

// OKPort builds a successful result on an explicit port.
func OKPort(data interface{}, port string) Result {
	return Result{Status: ResultOK, Data: data, Port: port}
}

// OKWithState builds a successful default-port result carrying state updates.
func OKWithState(data interface{}, updates map[string]interface{}) Result {
	return Result{Status: ResultOK, Data: data, StateUpdates: updates}
}

// OKPortWithState builds a successful result with both an explicit port
// and state updates.
func OKPortWithState(data interface{}, port string, updates map[string]interface{}) Result {
	return Result{Status: ResultOK, Data: data, Port: port, StateUpdates: updates}
}

// Err builds a failure result on the default error port.
func Err(err error) Result { return Result{Status: ResultErr, Err: err} }

// ErrPort builds a failure result on an explicit port.
func ErrPort(err error, port string) Result { return Result{Status: ResultErr, Err: err, Port: port} }

// Suspend builds a suspension result.
func Suspend(suspensionType string, data map[string]interface{}) Result {
	return Result{Status: ResultSuspend, SuspensionType: suspensionType, SuspensionData: data}
}

// Action is the contract every integration action implements. All five
// methods are called by the engine; embed BaseAction to get defaults for
// everything but Execute.
type Action interface {
	// Execute runs the action given rendered params and the expression
	// context map built by the NodeExecutor.
	Execute(params map[string]interface{}, ctx map[string]interface{}) Result

	// Resume continues a suspended action given the resume payload. An
	// action that never suspends may return a not-supported error.
	Resume(params map[string]interface{}, ctx map[string]interface{}, resumeData map[string]interface{}) Result

	// ParamsSchema describes the action's expected params, or nil.
	ParamsSchema() map[string]interface{}

	// ValidateParams checks params before scheduling; returns nil if ok.
	ValidateParams(params map[string]interface{}) error

	// Prepare runs before scheduling to mint webhook URLs, resume ids,
	// etc. Returns preparation data merged into
	// WorkflowExecution.PreparationData[node.Key].
	Prepare(node interface{}) (map[string]interface{}, error)
}

// BaseAction gives zero-value implementations of every optional Action
// method; concrete actions embed it and override what they need, the
// way the teacher's smaller tool/provider implementations only
// override what differs from a sensible default.
type BaseAction struct{}

func (BaseAction) Resume(map[string]interface{}, map[string]interface{}, map[string]interface{}) Result {
	return Err(&praerrors.ActionError{Kind: praerrors.ActionKindResumeFailed, Message: "resume not supported by this action"})
}
func (BaseAction) ParamsSchema() map[string]interface{}             { return nil }
func (BaseAction) ValidateParams(map[string]interface{}) error      { return nil }
func (BaseAction) Prepare(interface{}) (map[string]interface{}, error) { return nil, nil }

// Descriptor is a registered action: its identity, declared ports, and
// the Action implementation itself.
type Descriptor struct {
	Name         string // namespaced action type id, e.g. "http.request"
	DisplayName  string
	Integration  string
	Kind         ActionKind
	InputPorts   []string
	OutputPorts  []string
	ParamsSchema map[string]interface{}
	Action       Action
}

// HasDynamicOutputPorts reports whether d declares a wildcard output port.
func (d *Descriptor) HasDynamicOutputPorts() bool {
	return util.Contains(d.OutputPorts, DynamicPort)
}

// HasDynamicInputPorts reports whether d declares a wildcard input port.
func (d *Descriptor) HasDynamicInputPorts() bool {
	return util.Contains(d.InputPorts, DynamicPort)
}

// Integration groups a named set of action descriptors registered together.
type Integration struct {
	Name    string
	Actions []Descriptor
}

// Registry is the process-wide integration registry. Lookups are
// concurrent-safe; mutation is exclusive, mirroring the teacher's
// compiled-expression cache locking discipline.
type Registry struct {
	mu           sync.RWMutex
	integrations map[string]Integration
	actions      map[string]Descriptor // keyed by action type id
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		integrations: make(map[string]Integration),
		actions:      make(map[string]Descriptor),
	}
}

// Register adds an integration's actions to the registry. It fails with
// duplicate_integration if the integration name is already registered.
func (r *Registry) Register(integration Integration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.integrations[integration.Name]; exists {
		return &praerrors.ValidationError{
			Field:   "integration",
			Message: fmt.Sprintf("duplicate_integration: %s is already registered", integration.Name),
		}
	}

	for _, d := range integration.Actions {
		if _, exists := r.actions[d.Name]; exists {
			return &praerrors.ValidationError{
				Field:   "action",
				Message: fmt.Sprintf("duplicate_integration: action type %s is already registered", d.Name),
			}
		}
	}

	r.integrations[integration.Name] = integration
	for _, d := range integration.Actions {
		d.Integration = integration.Name
		r.actions[d.Name] = d
	}
	return nil
}

// Unregister removes an integration and all of its actions.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	integ, exists := r.integrations[name]
	if !exists {
		return &praerrors.NotFoundError{Resource: "integration", ID: name}
	}
	for _, d := range integ.Actions {
		delete(r.actions, d.Name)
	}
	delete(r.integrations, name)
	return nil
}

// GetActionByType looks up an action descriptor by its type id. Returns
// an action_not_found error if absent.
func (r *Registry) GetActionByType(actionType string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.actions[actionType]
	if !ok {
		return nil, &praerrors.NotFoundError{Resource: "action_not_found", ID: actionType}
	}
	return &d, nil
}

// ListIntegrations returns every registered integration name.
func (r *Registry) ListIntegrations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.integrations))
	for name := range r.integrations {
		out = append(out, name)
	}
	return out
}

// ListActions returns the action descriptors of one integration.
func (r *Registry) ListActions(integrationName string) ([]Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	integ, ok := r.integrations[integrationName]
	if !ok {
		return nil, &praerrors.NotFoundError{Resource: "integration", ID: integrationName}
	}
	return integ.Actions, nil
}

// HealthCheck reports whether the registry holds at least one action;
// it has no per-execution state to verify beyond its own bookkeeping.
func (r *Registry) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.actions) == 0 {
		return &praerrors.ValidationError{Field: "registry", Message: "no actions registered"}
	}
	return nil
}
