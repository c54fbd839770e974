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
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// MaxArrayLen is an exported collection-size constant. The collection
// filters do not check their input or output length against it.
const MaxArrayLen = 10000

// Filter is a single pipeline stage: it receives the piped value and the
// literal arguments that followed it in parentheses.
type Filter func(value interface{}, args []interface{}) (interface{}, error)

// Filters is the required filter set grouped by the spec's
// string/number/math/collection categories, keyed by name.
var Filters = map[string]Filter{
	// string
	"upper_case": filterUpperCase,
	"lower_case": filterLowerCase,
	"capitalize": filterCapitalize,
	"truncate":   filterTruncate,
	"default":    filterDefault,

	// number
	"round":           filterRound,
	"format_currency": filterFormatCurrency,

	// math
	"abs":   filterAbs,
	"ceil":  filterCeil,
	"floor": filterFloor,
	"max":   filterMax,
	"min":   filterMin,
	"power": filterPower,
	"sqrt":  filterSqrt,
	"mod":   filterMod,
	"clamp": filterClamp,

	// collection
	"length":    filterLength,
	"first":     filterFirst,
	"last":      filterLast,
	"join":      filterJoin,
	"keys":      filterKeys,
	"values":    filterValues,
	"sort":      filterSort,
	"reverse":   filterReverse,
	"uniq":      filterUniq,
	"slice":     filterSlice,
	"contains":  filterContains,
	"compact":   filterCompact,
	"flatten":   filterFlatten,
	"sum":       filterSum,
	"group_by":  filterGroupBy,
	"map":       filterMap,
	"filter":    filterFilterField,
	"reject":    filterReject,
	"dump":      filterDump,
}

func toStringValue(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func toSequence(v interface{}) ([]interface{}, bool) {
	if v == nil {
		return nil, true
	}
	if s, ok := v.([]interface{}); ok {
		return s, true
	}
	return nil, false
}

// --- string ---

func filterUpperCase(v interface{}, _ []interface{}) (interface{}, error) {
	return strings.ToUpper(toStringValue(v)), nil
}

func filterLowerCase(v interface{}, _ []interface{}) (interface{}, error) {
	return strings.ToLower(toStringValue(v)), nil
}

func filterCapitalize(v interface{}, _ []interface{}) (interface{}, error) {
	s := toStringValue(v)
	if s == "" {
		return s, nil
	}
	r := []rune(strings.ToLower(s))
	r[0] = []rune(strings.ToUpper(string(r[0])))[0]
	return string(r), nil
}

func filterTruncate(v interface{}, args []interface{}) (interface{}, error) {
	s := toStringValue(v)
	if len(args) == 0 {
		return nil, argErr("truncate", "requires a length argument")
	}
	n, ok := toInt64(args[0])
	if !ok || n < 0 {
		return nil, argErr("truncate", "length must be a non-negative integer")
	}
	suffix := "..."
	if len(args) > 1 {
		suffix = toStringValue(args[1])
	}
	runes := []rune(s)
	limit := int(n)
	if len(runes) <= limit {
		return s, nil
	}
	if limit < len([]rune(suffix)) {
		if limit > len(runes) {
			limit = len(runes)
		}
		return string(runes[:limit]), nil
	}
	keep := limit - len([]rune(suffix))
	return string(runes[:keep]) + suffix, nil
}

func filterDefault(v interface{}, args []interface{}) (interface{}, error) {
	if len(args) == 0 {
		return nil, argErr("default", "requires a fallback argument")
	}
	if v == nil {
		return args[0], nil
	}
	if s, ok := v.(string); ok && s == "" {
		return args[0], nil
	}
	return v, nil
}

// --- number ---

func filterRound(v interface{}, args []interface{}) (interface{}, error) {
	f, ok := toFloat64(v)
	if !ok {
		return nil, argErr("round", "value must be numeric")
	}
	precision := int64(0)
	if len(args) > 0 {
		p, ok := toInt64(args[0])
		if !ok {
			return nil, argErr("round", "precision must be an integer")
		}
		precision = p
	}
	mult := math.Pow(10, float64(precision))
	return math.Round(f*mult) / mult, nil
}

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
}

func filterFormatCurrency(v interface{}, args []interface{}) (interface{}, error) {
	f, ok := toFloat64(v)
	if !ok {
		return nil, argErr("format_currency", "value must be numeric")
	}
	code := "USD"
	if len(args) > 0 {
		code = strings.ToUpper(toStringValue(args[0]))
	}
	symbol, ok := currencySymbols[code]
	if !ok {
		symbol = code + " "
	}
	return fmt.Sprintf("%s%s", symbol, strconv.FormatFloat(f, 'f', 2, 64)), nil
}

// --- math ---

func numArg(name string, v interface{}) (float64, error) {
	f, ok := toFloat64(v)
	if !ok {
		return 0, argErr(name, "value must be numeric")
	}
	return f, nil
}

func mathResult(f float64, wasInt bool) interface{} {
	if wasInt {
		return int64(f)
	}
	return f
}

func filterAbs(v interface{}, _ []interface{}) (interface{}, error) {
	f, err := numArg("abs", v)
	if err != nil {
		return nil, err
	}
	return mathResult(math.Abs(f), isAllInts(v)), nil
}

func filterCeil(v interface{}, _ []interface{}) (interface{}, error) {
	f, err := numArg("ceil", v)
	if err != nil {
		return nil, err
	}
	return int64(math.Ceil(f)), nil
}

func filterFloor(v interface{}, _ []interface{}) (interface{}, error) {
	f, err := numArg("floor", v)
	if err != nil {
		return nil, err
	}
	return int64(math.Floor(f)), nil
}

func filterMax(v interface{}, args []interface{}) (interface{}, error) {
	if len(args) == 0 {
		return nil, argErr("max", "requires a comparison value")
	}
	a, err := numArg("max", v)
	if err != nil {
		return nil, err
	}
	b, err := numArg("max", args[0])
	if err != nil {
		return nil, err
	}
	return mathResult(math.Max(a, b), isAllInts(v, args[0])), nil
}

func filterMin(v interface{}, args []interface{}) (interface{}, error) {
	if len(args) == 0 {
		return nil, argErr("min", "requires a comparison value")
	}
	a, err := numArg("min", v)
	if err != nil {
		return nil, err
	}
	b, err := numArg("min", args[0])
	if err != nil {
		return nil, err
	}
	return mathResult(math.Min(a, b), isAllInts(v, args[0])), nil
}

func filterPower(v interface{}, args []interface{}) (interface{}, error) {
	if len(args) == 0 {
		return nil, argErr("power", "requires an exponent")
	}
	a, err := numArg("power", v)
	if err != nil {
		return nil, err
	}
	b, err := numArg("power", args[0])
	if err != nil {
		return nil, err
	}
	return mathResult(math.Pow(a, b), isAllInts(v, args[0])), nil
}

func filterSqrt(v interface{}, _ []interface{}) (interface{}, error) {
	f, err := numArg("sqrt", v)
	if err != nil {
		return nil, err
	}
	if f < 0 {
		return nil, domainErr("sqrt", "cannot take the square root of a negative number")
	}
	return math.Sqrt(f), nil
}

func filterMod(v interface{}, args []interface{}) (interface{}, error) {
	if len(args) == 0 {
		return nil, argErr("mod", "requires a divisor")
	}
	a, err := numArg("mod", v)
	if err != nil {
		return nil, err
	}
	b, err := numArg("mod", args[0])
	if err != nil {
		return nil, err
	}
	if b == 0 {
		return nil, domainErr("mod", "division by zero")
	}
	return mathResult(math.Mod(a, b), isAllInts(v, args[0])), nil
}

func filterClamp(v interface{}, args []interface{}) (interface{}, error) {
	if len(args) < 2 {
		return nil, argErr("clamp", "requires min and max arguments")
	}
	f, err := numArg("clamp", v)
	if err != nil {
		return nil, err
	}
	lo, err := numArg("clamp", args[0])
	if err != nil {
		return nil, err
	}
	hi, err := numArg("clamp", args[1])
	if err != nil {
		return nil, err
	}
	if lo > hi {
		return nil, argErr("clamp", "min (%v) must not be greater than max (%v)", lo, hi)
	}
	if f < lo {
		f = lo
	}
	if f > hi {
		f = hi
	}
	return mathResult(f, isAllInts(v, args[0], args[1])), nil
}

// --- collection ---

func filterLength(v interface{}, _ []interface{}) (interface{}, error) {
	if s, ok := v.(string); ok {
		return int64(len([]rune(s))), nil
	}
	seq, ok := toSequence(v)
	if !ok {
		if m, ok := v.(map[string]interface{}); ok {
			return int64(len(m)), nil
		}
		return nil, argErr("length", "value must be a string, sequence, or map")
	}
	return int64(len(seq)), nil
}

func filterFirst(v interface{}, _ []interface{}) (interface{}, error) {
	seq, ok := toSequence(v)
	if !ok {
		return nil, argErr("first", "value must be a sequence")
	}
	if len(seq) == 0 {
		return nil, nil
	}
	return seq[0], nil
}

func filterLast(v interface{}, _ []interface{}) (interface{}, error) {
	seq, ok := toSequence(v)
	if !ok {
		return nil, argErr("last", "value must be a sequence")
	}
	if len(seq) == 0 {
		return nil, nil
	}
	return seq[len(seq)-1], nil
}

func filterJoin(v interface{}, args []interface{}) (interface{}, error) {
	seq, ok := toSequence(v)
	if !ok {
		return nil, argErr("join", "value must be a sequence")
	}
	sep := ", "
	if len(args) > 0 {
		sep = toStringValue(args[0])
	}
	parts := make([]string, len(seq))
	for i, e := range seq {
		parts[i] = toStringValue(e)
	}
	return strings.Join(parts, sep), nil
}

func filterKeys(v interface{}, _ []interface{}) (interface{}, error) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, argErr("keys", "value must be a map")
	}
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	out := make([]interface{}, len(ks))
	for i, k := range ks {
		out[i] = k
	}
	return out, nil
}

func filterValues(v interface{}, _ []interface{}) (interface{}, error) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, argErr("values", "value must be a map")
	}
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	out := make([]interface{}, len(ks))
	for i, k := range ks {
		out[i] = m[k]
	}
	return out, nil
}

func filterSort(v interface{}, _ []interface{}) (interface{}, error) {
	seq, ok := toSequence(v)
	if !ok {
		return nil, argErr("sort", "value must be a sequence")
	}
	out := append([]interface{}{}, seq...)
	sort.SliceStable(out, func(i, j int) bool {
		fi, iok := toFloat64(out[i])
		fj, jok := toFloat64(out[j])
		if iok && jok {
			return fi < fj
		}
		return toStringValue(out[i]) < toStringValue(out[j])
	})
	return out, nil
}

func filterReverse(v interface{}, _ []interface{}) (interface{}, error) {
	seq, ok := toSequence(v)
	if !ok {
		return nil, argErr("reverse", "value must be a sequence")
	}
	out := make([]interface{}, len(seq))
	for i, e := range seq {
		out[len(seq)-1-i] = e
	}
	return out, nil
}

func filterUniq(v interface{}, _ []interface{}) (interface{}, error) {
	seq, ok := toSequence(v)
	if !ok {
		return nil, argErr("uniq", "value must be a sequence")
	}
	var out []interface{}
	seen := make(map[string]struct{})
	for _, e := range seq {
		key := toStringValue(e)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return out, nil
}

func filterSlice(v interface{}, args []interface{}) (interface{}, error) {
	seq, ok := toSequence(v)
	if !ok {
		return nil, argErr("slice", "value must be a sequence")
	}
	if len(args) < 2 {
		return nil, argErr("slice", "requires start and count arguments")
	}
	start, ok := toInt64(args[0])
	if !ok {
		return nil, argErr("slice", "start must be an integer")
	}
	count, ok := toInt64(args[1])
	if !ok {
		return nil, argErr("slice", "count must be an integer")
	}
	s := int(start)
	if s < 0 {
		s = 0
	}
	if s > len(seq) {
		s = len(seq)
	}
	e := s + int(count)
	if e > len(seq) {
		e = len(seq)
	}
	if e < s {
		e = s
	}
	return append([]interface{}{}, seq[s:e]...), nil
}

func filterContains(v interface{}, args []interface{}) (interface{}, error) {
	if len(args) == 0 {
		return nil, argErr("contains", "requires a value to search for")
	}
	if s, ok := v.(string); ok {
		return strings.Contains(s, toStringValue(args[0])), nil
	}
	seq, ok := toSequence(v)
	if !ok {
		return nil, argErr("contains", "value must be a string or sequence")
	}
	for _, e := range seq {
		if looseEqual(e, args[0]) {
			return true, nil
		}
	}
	return false, nil
}

func filterCompact(v interface{}, _ []interface{}) (interface{}, error) {
	seq, ok := toSequence(v)
	if !ok {
		return nil, argErr("compact", "value must be a sequence")
	}
	var out []interface{}
	for _, e := range seq {
		if e != nil {
			out = append(out, e)
		}
	}
	return out, nil
}

func filterFlatten(v interface{}, _ []interface{}) (interface{}, error) {
	seq, ok := toSequence(v)
	if !ok {
		return nil, argErr("flatten", "value must be a sequence")
	}
	var out []interface{}
	for _, e := range seq {
		if inner, ok := e.([]interface{}); ok {
			out = append(out, inner...)
		} else {
			out = append(out, e)
		}
	}
	return out, nil
}

func filterSum(v interface{}, _ []interface{}) (interface{}, error) {
	seq, ok := toSequence(v)
	if !ok {
		return nil, argErr("sum", "value must be a sequence")
	}
	var total float64
	allInt := true
	for _, e := range seq {
		f, ok := toFloat64(e)
		if !ok {
			return nil, argErr("sum", "sum filter requires all elements to be numeric")
		}
		if !isAllInts(e) {
			allInt = false
		}
		total += f
	}
	return mathResult(total, allInt), nil
}

func filterGroupBy(v interface{}, args []interface{}) (interface{}, error) {
	seq, ok := toSequence(v)
	if !ok {
		return nil, argErr("group_by", "value must be a sequence")
	}
	if len(args) == 0 {
		return nil, argErr("group_by", "requires a field name")
	}
	field := toStringValue(args[0])
	groups := make(map[string][]interface{})
	var order []string
	for _, e := range seq {
		key := toStringValue(navField(e, field))
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], e)
	}
	out := make(map[string]interface{}, len(groups))
	for _, k := range order {
		out[k] = groups[k]
	}
	return out, nil
}

func filterMap(v interface{}, args []interface{}) (interface{}, error) {
	seq, ok := toSequence(v)
	if !ok {
		return nil, argErr("map", "value must be a sequence")
	}
	if len(args) == 0 {
		return nil, argErr("map", "requires a field name")
	}
	field := toStringValue(args[0])
	out := make([]interface{}, len(seq))
	for i, e := range seq {
		out[i] = navField(e, field)
	}
	return out, nil
}

func filterFilterField(v interface{}, args []interface{}) (interface{}, error) {
	seq, ok := toSequence(v)
	if !ok {
		return nil, argErr("filter", "value must be a sequence")
	}
	if len(args) < 2 {
		return nil, argErr("filter", "requires a field name and a value")
	}
	field := toStringValue(args[0])
	var out []interface{}
	for _, e := range seq {
		if looseEqual(navField(e, field), args[1]) {
			out = append(out, e)
		}
	}
	return out, nil
}

func filterReject(v interface{}, args []interface{}) (interface{}, error) {
	seq, ok := toSequence(v)
	if !ok {
		return nil, argErr("reject", "value must be a sequence")
	}
	if len(args) < 2 {
		return nil, argErr("reject", "requires a field name and a value")
	}
	field := toStringValue(args[0])
	var out []interface{}
	for _, e := range seq {
		if !looseEqual(navField(e, field), args[1]) {
			out = append(out, e)
		}
	}
	return out, nil
}

func filterDump(v interface{}, _ []interface{}) (interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, argErr("dump", "value is not serializable: %v", err)
	}
	return string(b), nil
}
