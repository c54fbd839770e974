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

// Package expression implements the bare-path and {{ }} template
// rendering used to resolve node params against an execution context.
package expression

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

type segmentKind int

const (
	segField segmentKind = iota
	segIndex
	segWildcard
	segFilterMap
)

type segment struct {
	kind      segmentKind
	field     string
	index     int
	filterKey string
	filterVal interface{}
}

// IsPath reports whether s is a bare path expression (begins with "$").
func IsPath(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), "$")
}

// ResolvePath evaluates a bare path expression (e.g. "$input.users[0].name",
// "$nodes.api.output.id", "$input.users.*.name",
// `$input.users.{role: "admin"}`) against ctx, whose top-level keys are
// the root names ("input", "nodes", "vars", "env", "workflow", "execution",
// "now"). Missing fields resolve to nil rather than erroring.
func ResolvePath(path string, ctx map[string]interface{}) (interface{}, error) {
	trimmed := strings.TrimSpace(path)
	if !strings.HasPrefix(trimmed, "$") {
		return nil, fmt.Errorf("not a path expression: %q", path)
	}
	segs, err := tokenizePath(trimmed[1:])
	if err != nil {
		return nil, err
	}
	if len(segs) == 0 {
		return ctx, nil
	}
	if segs[0].kind != segField {
		return nil, fmt.Errorf("path %q must start with a root name", path)
	}
	cur := seqValue{single: ctx[segs[0].field]}
	for _, seg := range segs[1:] {
		cur = applySegment(cur, seg)
	}
	if cur.seq {
		return cur.list, nil
	}
	return cur.single, nil
}

type seqValue struct {
	seq    bool
	single interface{}
	list   []interface{}
}

func applySegment(v seqValue, seg segment) seqValue {
	if !v.seq {
		switch seg.kind {
		case segField:
			return seqValue{single: navField(v.single, seg.field)}
		case segIndex:
			return seqValue{single: navIndex(v.single, seg.index)}
		case segWildcard:
			return seqValue{seq: true, list: navWildcard(v.single)}
		case segFilterMap:
			return seqValue{seq: true, list: navFilterMap(navWildcard(v.single), seg.filterKey, seg.filterVal)}
		}
		return v
	}

	var out []interface{}
	for _, elem := range v.list {
		switch seg.kind {
		case segField:
			out = append(out, navField(elem, seg.field))
		case segIndex:
			out = append(out, navIndex(elem, seg.index))
		case segWildcard:
			out = append(out, navWildcard(elem)...)
		case segFilterMap:
			out = append(out, navFilterMap(navWildcard(elem), seg.filterKey, seg.filterVal)...)
		}
	}
	return seqValue{seq: true, list: out}
}

func navField(v interface{}, field string) interface{} {
	if v == nil {
		return nil
	}
	if m, ok := v.(map[string]interface{}); ok {
		return m[field]
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Map {
		mv := rv.MapIndex(reflect.ValueOf(field))
		if !mv.IsValid() {
			return nil
		}
		return mv.Interface()
	}
	return nil
}

func navIndex(v interface{}, idx int) interface{} {
	if v == nil {
		return nil
	}
	if s, ok := v.([]interface{}); ok {
		if idx < 0 || idx >= len(s) {
			return nil
		}
		return s[idx]
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		if idx < 0 || idx >= rv.Len() {
			return nil
		}
		return rv.Index(idx).Interface()
	}
	return nil
}

// navWildcard returns an ordered sequence of v's elements: map values
// sorted by key (for determinism) or a slice's elements as-is.
func navWildcard(v interface{}) []interface{} {
	if v == nil {
		return nil
	}
	if m, ok := v.(map[string]interface{}); ok {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]interface{}, 0, len(keys))
		for _, k := range keys {
			out = append(out, m[k])
		}
		return out
	}
	if s, ok := v.([]interface{}); ok {
		return s
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]interface{}, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = rv.Index(i).Interface()
		}
		return out
	case reflect.Map:
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
		})
		out := make([]interface{}, 0, len(keys))
		for _, k := range keys {
			out = append(out, rv.MapIndex(k).Interface())
		}
		return out
	}
	return nil
}

func navFilterMap(seq []interface{}, key string, val interface{}) []interface{} {
	var out []interface{}
	for _, elem := range seq {
		fv := navField(elem, key)
		if looseEqual(fv, val) {
			out = append(out, elem)
		}
	}
	return out
}

func looseEqual(a, b interface{}) bool {
	af, aok := toFloat64(a)
	bf, bok := toFloat64(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func tokenizePath(s string) ([]segment, error) {
	var segs []segment
	i, n := 0, len(s)
	for i < n {
		switch s[i] {
		case '.':
			i++
		case '[':
			j, err := matchDelim(s, i, '[', ']')
			if err != nil {
				return nil, err
			}
			inner := strings.TrimSpace(s[i+1 : j-1])
			idx, err := strconv.Atoi(inner)
			if err != nil {
				return nil, fmt.Errorf("invalid index %q in path", inner)
			}
			segs = append(segs, segment{kind: segIndex, index: idx})
			i = j
		case '{':
			j, err := matchDelim(s, i, '{', '}')
			if err != nil {
				return nil, err
			}
			inner := s[i+1 : j-1]
			key, val, err := parseFilterMapLiteral(inner)
			if err != nil {
				return nil, err
			}
			segs = append(segs, segment{kind: segFilterMap, filterKey: key, filterVal: val})
			i = j
		case '*':
			segs = append(segs, segment{kind: segWildcard})
			i++
		default:
			j := i
			for j < n && s[j] != '.' && s[j] != '[' && s[j] != '{' {
				j++
			}
			field := s[i:j]
			if field == "" {
				return nil, fmt.Errorf("empty path segment")
			}
			if idx, err := strconv.Atoi(field); err == nil {
				segs = append(segs, segment{kind: segIndex, index: idx})
			} else {
				segs = append(segs, segment{kind: segField, field: field})
			}
			i = j
		}
	}
	return segs, nil
}

func matchDelim(s string, start int, open, close byte) (int, error) {
	depth := 0
	inQuote := byte(0)
	for j := start; j < len(s); j++ {
		c := s[j]
		if inQuote != 0 {
			if c == inQuote && s[j-1] != '\\' {
				inQuote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			inQuote = c
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return j + 1, nil
			}
		}
	}
	return 0, fmt.Errorf("unterminated %q in path", string(open))
}

// parseFilterMapLiteral parses the inside of a `{key: value}` filter map
// segment into a single key/value pair (the spec's filter form is a
// single-field equality filter).
func parseFilterMapLiteral(inner string) (string, interface{}, error) {
	parts := strings.SplitN(inner, ":", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("invalid filter map %q: expected key: value", inner)
	}
	key := strings.TrimSpace(parts[0])
	key = strings.Trim(key, `"'`)
	val, err := parseLiteral(strings.TrimSpace(parts[1]))
	if err != nil {
		return "", nil, err
	}
	return key, val, nil
}
