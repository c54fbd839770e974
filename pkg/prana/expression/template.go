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

package expression

import (
	"fmt"
	"regexp"
	"strings"
)

var templatePattern = regexp.MustCompile(`\{\{([^{}]*)\}\}`)

// Renderer evaluates bare paths and {{ }} templates against a context
// map. It holds no state beyond an optional filter override set, so a
// zero-value Renderer using the package-level Filters table is safe to
// share across goroutines.
type Renderer struct {
	filters map[string]Filter
}

// NewRenderer builds a Renderer using the required filter set.
func NewRenderer() *Renderer {
	return &Renderer{filters: Filters}
}

// Render renders a single string value: a bare path, a template with
// `{{ }}` regions, or a plain literal (returned unchanged). Per the
// engine's render-params contract, map and slice values are recursed
// into by RenderParams; this method only handles strings.
func (r *Renderer) Render(s string, ctx map[string]interface{}) (interface{}, error) {
	trimmed := strings.TrimSpace(s)
	if IsPath(trimmed) {
		return ResolvePath(trimmed, ctx)
	}

	matches := templatePattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		expr := s[matches[0][2]:matches[0][3]]
		return r.evalPipeline(expr, ctx)
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		expr := s[m[2]:m[3]]
		val, err := r.evalPipeline(expr, ctx)
		if err != nil {
			return nil, err
		}
		b.WriteString(stringifyForTemplate(val))
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String(), nil
}

func stringifyForTemplate(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// evalPipeline evaluates "expr | filter | filter(args)". An unknown
// filter name aborts the pipeline gracefully: it returns the raw,
// untouched source text of the region rather than an error.
func (r *Renderer) evalPipeline(expr string, ctx map[string]interface{}) (result interface{}, err error) {
	stages := splitPipeline(expr)
	if len(stages) == 0 {
		return nil, fmt.Errorf("empty expression")
	}

	head := strings.TrimSpace(stages[0])
	var val interface{}
	if IsPath(head) {
		val, err = ResolvePath(head, ctx)
		if err != nil {
			return nil, err
		}
	} else {
		val, err = parseLiteral(head)
		if err != nil {
			return nil, err
		}
	}

	for _, stage := range stages[1:] {
		name, args, perr := parseFilterCall(stage)
		if perr != nil {
			return nil, perr
		}
		filters := r.filters
		if filters == nil {
			filters = Filters
		}
		fn, ok := filters[name]
		if !ok {
			return "{{" + expr + "}}", nil
		}
		val, err = fn(val, args)
		if err != nil {
			return nil, err
		}
	}
	return val, nil
}

// splitPipeline splits on top-level "|" characters, respecting nested
// parens/brackets/braces and quoted strings.
func splitPipeline(expr string) []string {
	var parts []string
	depth := 0
	quote := byte(0)
	start := 0
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		if quote != 0 {
			if c == quote && expr[i-1] != '\\' {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case '|':
			if depth == 0 {
				parts = append(parts, expr[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, expr[start:])
	return parts
}

// parseFilterCall parses "name" or "name(arg1, arg2)" into its name and
// literal argument list.
func parseFilterCall(s string) (string, []interface{}, error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	if open == -1 {
		return s, nil, nil
	}
	if !strings.HasSuffix(s, ")") {
		return "", nil, fmt.Errorf("malformed filter call %q", s)
	}
	name := strings.TrimSpace(s[:open])
	inner := s[open+1 : len(s)-1]
	if strings.TrimSpace(inner) == "" {
		return name, nil, nil
	}
	rawArgs := splitArgs(inner)
	args := make([]interface{}, len(rawArgs))
	for i, raw := range rawArgs {
		v, err := parseLiteral(strings.TrimSpace(raw))
		if err != nil {
			return "", nil, err
		}
		args[i] = v
	}
	return name, args, nil
}

func splitArgs(s string) []string {
	var parts []string
	depth := 0
	quote := byte(0)
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote && s[i-1] != '\\' {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// RenderParams recursively renders every string value of a params map
// (or nested maps/slices within it) as a template, leaving non-string
// leaves unchanged.
func (r *Renderer) RenderParams(params map[string]interface{}, ctx map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		rv, err := r.renderValue(v, ctx)
		if err != nil {
			return nil, fmt.Errorf("rendering param %q: %w", k, err)
		}
		out[k] = rv
	}
	return out, nil
}

func (r *Renderer) renderValue(v interface{}, ctx map[string]interface{}) (interface{}, error) {
	switch tv := v.(type) {
	case string:
		return r.Render(tv, ctx)
	case map[string]interface{}:
		return r.RenderParams(tv, ctx)
	case []interface{}:
		out := make([]interface{}, len(tv))
		for i, e := range tv {
			rv, err := r.renderValue(e, ctx)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}
