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

// Package store defines the storage adapter contract the engine treats
// as an injected blind sink, plus an in-memory reference implementation
// for tests and embedders that don't need real persistence.
package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bluzky/prana/internal/util"
	praerrors "github.com/bluzky/prana/pkg/errors"
	"github.com/bluzky/prana/pkg/prana/model"
)

// WorkflowFilter narrows List's results. Zero values mean "no filter".
type WorkflowFilter struct {
	Status        string
	Tags          []string // membership: workflow must carry every listed tag
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	NameContains  string // case-insensitive substring
}

// WorkflowRecord wraps a Workflow with the bookkeeping fields the store
// contract needs but the execution engine's data model doesn't: a status
// label, tags, and timestamps. The engine never reads these fields; only
// the storage adapter and its callers do.
type WorkflowRecord struct {
	Workflow  *model.Workflow
	Status    string
	Tags      []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is the storage adapter contract: every method is idempotent, and
// every lookup failure returns a *praerrors.NotFoundError.
type Store interface {
	CreateWorkflow(ctx context.Context, rec *WorkflowRecord) error
	GetWorkflow(ctx context.Context, id string) (*WorkflowRecord, error)
	UpdateWorkflow(ctx context.Context, rec *WorkflowRecord) error
	DeleteWorkflow(ctx context.Context, id string) error
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*WorkflowRecord, error)

	CreateExecution(ctx context.Context, exec *model.WorkflowExecution) error
	GetExecution(ctx context.Context, id string) (*model.WorkflowExecution, error)
	UpdateExecution(ctx context.Context, exec *model.WorkflowExecution) error
	ListExecutions(ctx context.Context, workflowID string) ([]*model.WorkflowExecution, error)

	CreateNodeExecution(ctx context.Context, executionID string, ne *model.NodeExecution) error
	UpdateNodeExecution(ctx context.Context, executionID string, ne *model.NodeExecution) error
	GetNodeExecutions(ctx context.Context, executionID string) (map[string][]*model.NodeExecution, error)

	SuspendExecution(ctx context.Context, id, resumeToken string) error
	ResumeExecution(ctx context.Context, id string) error
	GetSuspendedExecutions(ctx context.Context) ([]*model.WorkflowExecution, error)

	HealthCheck(ctx context.Context) error
}

// Memory is an in-memory Store, thread-safe and suitable for tests or
// single-instance embedders.
type Memory struct {
	mu sync.RWMutex

	workflows      map[string]*WorkflowRecord
	executions     map[string]*model.WorkflowExecution
	execByWorkflow map[string][]string
	nodeExecutions map[string]map[string][]*model.NodeExecution
	resumeTokens   map[string]string
}

// NewMemory builds an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		workflows:      make(map[string]*WorkflowRecord),
		executions:     make(map[string]*model.WorkflowExecution),
		execByWorkflow: make(map[string][]string),
		nodeExecutions: make(map[string]map[string][]*model.NodeExecution),
		resumeTokens:   make(map[string]string),
	}
}

func (s *Memory) CreateWorkflow(_ context.Context, rec *WorkflowRecord) error {
	if rec == nil || rec.Workflow == nil || rec.Workflow.ID == "" {
		return &praerrors.ValidationError{Field: "workflow", Message: "workflow and workflow.id are required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workflows[rec.Workflow.ID]; exists {
		return &praerrors.ValidationError{Field: "id", Message: "duplicate: workflow " + rec.Workflow.ID + " already exists"}
	}

	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	s.workflows[rec.Workflow.ID] = copyWorkflowRecord(rec)
	return nil
}

func (s *Memory) GetWorkflow(_ context.Context, id string) (*WorkflowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.workflows[id]
	if !ok {
		return nil, &praerrors.NotFoundError{Resource: "workflow", ID: id}
	}
	return copyWorkflowRecord(rec), nil
}

func (s *Memory) UpdateWorkflow(_ context.Context, rec *WorkflowRecord) error {
	if rec == nil || rec.Workflow == nil || rec.Workflow.ID == "" {
		return &praerrors.ValidationError{Field: "workflow", Message: "workflow and workflow.id are required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[rec.Workflow.ID]; !ok {
		return &praerrors.NotFoundError{Resource: "workflow", ID: rec.Workflow.ID}
	}
	rec.UpdatedAt = time.Now()
	s.workflows[rec.Workflow.ID] = copyWorkflowRecord(rec)
	return nil
}

func (s *Memory) DeleteWorkflow(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[id]; !ok {
		return &praerrors.NotFoundError{Resource: "workflow", ID: id}
	}
	delete(s.workflows, id)
	return nil
}

func (s *Memory) ListWorkflows(_ context.Context, filter WorkflowFilter) ([]*WorkflowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*WorkflowRecord
	for _, rec := range s.workflows {
		if matchesFilter(rec, filter) {
			out = append(out, copyWorkflowRecord(rec))
		}
	}
	return out, nil
}

func matchesFilter(rec *WorkflowRecord, filter WorkflowFilter) bool {
	if filter.Status != "" && rec.Status != filter.Status {
		return false
	}
	for _, tag := range filter.Tags {
		if !util.Contains(rec.Tags, tag) {
			return false
		}
	}
	if filter.CreatedAfter != nil && rec.CreatedAt.Before(*filter.CreatedAfter) {
		return false
	}
	if filter.CreatedBefore != nil && rec.CreatedAt.After(*filter.CreatedBefore) {
		return false
	}
	if filter.NameContains != "" && !strings.Contains(strings.ToLower(rec.Workflow.Name), strings.ToLower(filter.NameContains)) {
		return false
	}
	return true
}

func (s *Memory) CreateExecution(_ context.Context, exec *model.WorkflowExecution) error {
	if exec == nil || exec.ID == "" {
		return &praerrors.ValidationError{Field: "execution", Message: "execution and execution.id are required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.executions[exec.ID]; exists {
		return &praerrors.ValidationError{Field: "id", Message: "duplicate: execution " + exec.ID + " already exists"}
	}
	s.executions[exec.ID] = exec
	s.execByWorkflow[exec.WorkflowID] = append(s.execByWorkflow[exec.WorkflowID], exec.ID)
	return nil
}

func (s *Memory) GetExecution(_ context.Context, id string) (*model.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exec, ok := s.executions[id]
	if !ok {
		return nil, &praerrors.NotFoundError{Resource: "execution", ID: id}
	}
	return exec, nil
}

func (s *Memory) UpdateExecution(_ context.Context, exec *model.WorkflowExecution) error {
	if exec == nil || exec.ID == "" {
		return &praerrors.ValidationError{Field: "execution", Message: "execution and execution.id are required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.executions[exec.ID]; !ok {
		return &praerrors.NotFoundError{Resource: "execution", ID: exec.ID}
	}
	s.executions[exec.ID] = exec
	return nil
}

func (s *Memory) ListExecutions(_ context.Context, workflowID string) ([]*model.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.execByWorkflow[workflowID]
	out := make([]*model.WorkflowExecution, 0, len(ids))
	for _, id := range ids {
		if exec, ok := s.executions[id]; ok {
			out = append(out, exec)
		}
	}
	return out, nil
}

func (s *Memory) CreateNodeExecution(_ context.Context, executionID string, ne *model.NodeExecution) error {
	if ne == nil || ne.NodeKey == "" {
		return &praerrors.ValidationError{Field: "node_execution", Message: "node_execution and node_key are required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nodeExecutions[executionID] == nil {
		s.nodeExecutions[executionID] = make(map[string][]*model.NodeExecution)
	}
	s.nodeExecutions[executionID][ne.NodeKey] = append(s.nodeExecutions[executionID][ne.NodeKey], ne)
	return nil
}

func (s *Memory) UpdateNodeExecution(_ context.Context, executionID string, ne *model.NodeExecution) error {
	if ne == nil || ne.NodeKey == "" {
		return &praerrors.ValidationError{Field: "node_execution", Message: "node_execution and node_key are required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	attempts, ok := s.nodeExecutions[executionID][ne.NodeKey]
	if !ok || len(attempts) == 0 {
		return &praerrors.NotFoundError{Resource: "node_execution", ID: executionID + "/" + ne.NodeKey}
	}
	attempts[len(attempts)-1] = ne
	return nil
}

func (s *Memory) GetNodeExecutions(_ context.Context, executionID string) (map[string][]*model.NodeExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byNode, ok := s.nodeExecutions[executionID]
	if !ok {
		return nil, &praerrors.NotFoundError{Resource: "node_executions", ID: executionID}
	}
	out := make(map[string][]*model.NodeExecution, len(byNode))
	for k, v := range byNode {
		out[k] = v
	}
	return out, nil
}

func (s *Memory) SuspendExecution(_ context.Context, id, resumeToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exec, ok := s.executions[id]
	if !ok {
		return &praerrors.NotFoundError{Resource: "execution", ID: id}
	}
	exec.Status = model.ExecutionSuspended
	s.resumeTokens[id] = resumeToken
	return nil
}

func (s *Memory) ResumeExecution(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exec, ok := s.executions[id]
	if !ok {
		return &praerrors.NotFoundError{Resource: "execution", ID: id}
	}
	exec.Status = model.ExecutionRunning
	delete(s.resumeTokens, id)
	return nil
}

func (s *Memory) GetSuspendedExecutions(_ context.Context) ([]*model.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.WorkflowExecution
	for _, exec := range s.executions {
		if exec.Status == model.ExecutionSuspended {
			out = append(out, exec)
		}
	}
	return out, nil
}

func (s *Memory) HealthCheck(_ context.Context) error {
	return nil
}

func copyWorkflowRecord(rec *WorkflowRecord) *WorkflowRecord {
	if rec == nil {
		return nil
	}
	cp := *rec
	cp.Tags = append([]string(nil), rec.Tags...)
	return &cp
}
