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

// Package builtin holds the small set of reference actions that exercise
// the Action contract end-to-end: wait, a logic gate, sub-workflow
// coordination, and a data echo (set_data). They are minimal stand-ins for what a real integration
// would do, named distinctly so nothing mistakes them for one.
package builtin

import (
	"fmt"
	"os"
	"time"

	praerrors "github.com/bluzky/prana/pkg/errors"
	"github.com/bluzky/prana/pkg/prana/model"
	"github.com/bluzky/prana/pkg/prana/registry"
	"github.com/bluzky/prana/pkg/prana/webhook"
)

// shortWaitThreshold is the policy boundary between sleeping in place and
// suspending: below it the cost of a timer/resume round trip outweighs
// just blocking the scheduler goroutine for the duration.
const shortWaitThreshold = 60 * time.Second

// WaitMode selects how wait.wait waits.
const (
	WaitModeInterval = "interval"
	WaitModeSchedule = "schedule"
	WaitModeWebhook  = "webhook"
)

// Wait implements wait.wait: pause a workflow for a duration, until a
// schedule, or until an external webhook call resumes it.
type Wait struct {
	registry.BaseAction

	// Clock is overridable in tests; defaults to time.Now.
	Clock func() time.Time
}

func (w *Wait) clock() time.Time {
	if w.Clock != nil {
		return w.Clock()
	}
	return time.Now()
}

func (w *Wait) Execute(params map[string]interface{}, _ map[string]interface{}) registry.Result {
	mode, _ := params["mode"].(string)
	switch mode {
	case WaitModeInterval, "":
		return w.executeInterval(params)
	case WaitModeSchedule:
		runAt, ok := params["run_at"].(time.Time)
		if s, isStr := params["run_at"].(string); isStr {
			parsed, err := time.Parse(time.RFC3339, s)
			runAt, ok = parsed, err == nil
		}
		if !ok {
			return registry.Err(&praerrors.ValidationError{Field: "run_at", Message: "schedule mode requires a run_at time"})
		}
		return registry.Suspend(string(model.SuspensionSchedule), map[string]interface{}{"resume_at": runAt})
	case WaitModeWebhook:
		resumeID, _ := params["resume_id"].(string)
		if resumeID == "" {
			return registry.Err(&praerrors.ValidationError{Field: "resume_id", Message: "webhook mode requires a prepared resume_id"})
		}
		return registry.Suspend(string(model.SuspensionWebhook), map[string]interface{}{"resume_id": resumeID})
	default:
		return registry.Err(&praerrors.ValidationError{Field: "mode", Message: fmt.Sprintf("unknown wait mode %q", mode)})
	}
}

func (w *Wait) executeInterval(params map[string]interface{}) registry.Result {
	durationMs, err := toInt64(params["duration"])
	if err != nil {
		return registry.Err(&praerrors.ValidationError{Field: "duration", Message: err.Error()})
	}
	duration := time.Duration(durationMs) * time.Millisecond

	if duration < shortWaitThreshold {
		time.Sleep(duration)
		return registry.OK(map[string]interface{}{"waited_ms": durationMs})
	}

	resumeAt := w.clock().Add(duration)
	return registry.Suspend(string(model.SuspensionInterval), map[string]interface{}{"resume_at": resumeAt})
}

// Resume answers the runner's resume_workflow call once a timer fires or
// a webhook is hit. The wait action carries no state of its own besides
// what the suspension already recorded, so resume just completes.
func (w *Wait) Resume(_ map[string]interface{}, _ map[string]interface{}, resumeData map[string]interface{}) registry.Result {
	return registry.OK(resumeData)
}

// Prepare mints the webhook URL and resume id a webhook-mode wait needs
// before the node is ever scheduled. The Action contract passes node as
// interface{}; only *model.Node is ever handed to a registered action in
// this engine, so a failed type assertion is a caller bug, not a wait
// concern, and is met with a nil no-op instead of a panic.
func (w *Wait) Prepare(node interface{}) (map[string]interface{}, error) {
	n, ok := node.(*model.Node)
	if !ok {
		return nil, nil
	}
	if mode, _ := n.Params["mode"].(string); mode != WaitModeWebhook {
		return nil, nil
	}

	base := os.Getenv("PRANA_BASE_URL")
	if base == "" {
		return nil, &praerrors.ValidationError{Field: "PRANA_BASE_URL", Message: "webhook mode requires PRANA_BASE_URL to be set"}
	}

	resumeID, err := webhook.GenerateResumeID(n.Key)
	if err != nil {
		return nil, err
	}
	url, err := webhook.BuildURL(base, webhook.URLResume, resumeID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"resume_id": resumeID, "webhook_url": url}, nil
}

func (w *Wait) ParamsSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"mode":     map[string]interface{}{"type": "string", "enum": []string{WaitModeInterval, WaitModeSchedule, WaitModeWebhook}},
			"duration": map[string]interface{}{"type": "integer", "description": "milliseconds, interval mode only"},
			"run_at":   map[string]interface{}{"type": "string", "format": "date-time", "description": "schedule mode only"},
		},
	}
}

func (w *Wait) ValidateParams(params map[string]interface{}) error {
	mode, _ := params["mode"].(string)
	if mode == WaitModeInterval || mode == "" {
		if _, err := toInt64(params["duration"]); err != nil {
			return &praerrors.ValidationError{Field: "duration", Message: err.Error()}
		}
	}
	return nil
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("duration must be numeric, got %T", v)
	}
}

// NewWaitAction registers wait.wait with the default wall clock.
func NewWaitAction() *Wait { return &Wait{} }
