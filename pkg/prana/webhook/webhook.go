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

// Package webhook implements resume-id generation, webhook URL building,
// and the webhook suspension state machine.
package webhook

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	praerrors "github.com/bluzky/prana/pkg/errors"
	"github.com/google/uuid"
)

// State is one state of the webhook suspension lifecycle.
type State string

const (
	StatePending  State = "pending"
	StateActive   State = "active"
	StateConsumed State = "consumed"
	StateExpired  State = "expired"
)

var transitions = map[State]map[State]bool{
	StatePending:  {StateActive: true, StateExpired: true},
	StateActive:   {StateConsumed: true, StateExpired: true},
	StateConsumed: {},
	StateExpired:  {},
}

// Transition validates moving a webhook suspension from cur to next,
// including idempotent self-loops on every state.
func Transition(cur, next State) error {
	if cur == next {
		return nil
	}
	if allowed, ok := transitions[cur]; ok && allowed[next] {
		return nil
	}
	return &praerrors.ValidationError{
		Field:   "webhook_state",
		Message: fmt.Sprintf("invalid_state_transition: %s -> %s", cur, next),
	}
}

// GenerateResumeID mints "{executionID}_{8-byte-url-safe-random}". The
// random component is the first 8 bytes of a uuid.New() value, which
// comes from a CSPRNG-backed generator rather than a hand-rolled one.
func GenerateResumeID(executionID string) (string, error) {
	id := uuid.New()
	token := base64.RawURLEncoding.EncodeToString(id[:8])
	return executionID + "_" + token, nil
}

// ResumeIDParts is the decomposition of a resume id minted by
// GenerateResumeID.
type ResumeIDParts struct {
	ExecutionID string
	Token       string
}

// ExtractResumeIDParts splits a resume id back into its execution id and
// token. The execution id may itself contain underscores, so the split
// happens on the last underscore.
func ExtractResumeIDParts(id string) (ResumeIDParts, error) {
	idx := strings.LastIndex(id, "_")
	if idx <= 0 || idx == len(id)-1 {
		return ResumeIDParts{}, &praerrors.ValidationError{
			Field:   "resume_id",
			Message: fmt.Sprintf("invalid_resume_id: %q is not a valid resume id", id),
		}
	}
	return ResumeIDParts{ExecutionID: id[:idx], Token: id[idx+1:]}, nil
}

// URLKind distinguishes the two webhook URL shapes.
type URLKind string

const (
	URLTrigger URLKind = "trigger"
	URLResume  URLKind = "resume"
)

// BuildURL builds "{base}/webhook/workflow/{trigger|resume}/{id}".
func BuildURL(base string, kind URLKind, id string) (string, error) {
	if kind != URLTrigger && kind != URLResume {
		return "", &praerrors.ValidationError{Field: "kind", Message: "invalid_webhook_url_kind: " + string(kind)}
	}
	if _, err := url.Parse(base); err != nil {
		return "", praerrors.Wrapf(err, "invalid_webhook_base_url: %q", base)
	}
	return fmt.Sprintf("%s/webhook/workflow/%s/%s", strings.TrimRight(base, "/"), kind, id), nil
}
