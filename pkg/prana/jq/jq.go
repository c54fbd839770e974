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

// Package jq applies a node's optional response_transform jq expression
// to an action's successful output_data before it is stored on the
// NodeExecution.
package jq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	praerrors "github.com/bluzky/prana/pkg/errors"
	"github.com/itchyny/gojq"
)

const (
	// DefaultTimeout bounds how long a single transform may run.
	DefaultTimeout = 1 * time.Second

	// DefaultMaxInputSize bounds the JSON-marshaled size of the data a
	// transform may run against.
	DefaultMaxInputSize = 10 * 1024 * 1024
)

// Transformer runs response_transform expressions with a timeout and an
// input-size ceiling, so one misbehaving expression can't stall or blow
// up the scheduler loop.
type Transformer struct {
	Timeout      time.Duration
	MaxInputSize int64
}

// New builds a Transformer with the given limits; zero values fall back
// to the package defaults.
func New(timeout time.Duration, maxInputSize int64) *Transformer {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if maxInputSize == 0 {
		maxInputSize = DefaultMaxInputSize
	}
	return &Transformer{Timeout: timeout, MaxInputSize: maxInputSize}
}

// Apply runs expression against data. An empty expression is a no-op
// that returns data unchanged, so nodes that don't set response_transform
// pay nothing.
func (t *Transformer) Apply(ctx context.Context, expression string, data interface{}) (interface{}, error) {
	if expression == "" {
		return data, nil
	}

	if err := t.checkInputSize(data); err != nil {
		return nil, err
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, &praerrors.ValidationError{Field: "response_transform", Message: "invalid jq expression: " + err.Error()}
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, &praerrors.ValidationError{Field: "response_transform", Message: "jq compilation failed: " + err.Error()}
	}

	runCtx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	type outcome struct {
		value interface{}
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		iter := code.Run(data)
		var results []interface{}
		for {
			v, ok := iter.Next()
			if !ok {
				break
			}
			if err, isErr := v.(error); isErr {
				done <- outcome{err: err}
				return
			}
			results = append(results, v)
		}
		switch len(results) {
		case 0:
			done <- outcome{value: nil}
		case 1:
			done <- outcome{value: results[0]}
		default:
			done <- outcome{value: results}
		}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return nil, &praerrors.ValidationError{Field: "response_transform", Message: "jq evaluation failed: " + o.err.Error()}
		}
		return o.value, nil
	case <-runCtx.Done():
		return nil, &praerrors.TimeoutError{Operation: "response_transform", Duration: t.Timeout}
	}
}

// Validate compiles expression without running it, for use during
// workflow validation so syntax errors surface before execution.
func (t *Transformer) Validate(expression string) error {
	if expression == "" {
		return nil
	}
	query, err := gojq.Parse(expression)
	if err != nil {
		return &praerrors.ValidationError{Field: "response_transform", Message: "invalid jq expression: " + err.Error()}
	}
	if _, err := gojq.Compile(query); err != nil {
		return &praerrors.ValidationError{Field: "response_transform", Message: "jq compilation failed: " + err.Error()}
	}
	return nil
}

func (t *Transformer) checkInputSize(data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return &praerrors.ValidationError{Field: "response_transform", Message: "failed to marshal data: " + err.Error()}
	}
	if int64(len(raw)) > t.MaxInputSize {
		return &praerrors.ValidationError{
			Field:   "response_transform",
			Message: fmt.Sprintf("data size (%d bytes) exceeds maximum (%d bytes)", len(raw), t.MaxInputSize),
		}
	}
	return nil
}
