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

import "fmt"

// FilterErrorKind distinguishes the two filter failure taxonomies named
// in the error handling design: bad argument shape vs. a value outside
// the filter's domain (sqrt of a negative number, mod by zero, ...).
type FilterErrorKind string

const (
	FilterArgumentError FilterErrorKind = "filter_argument_error"
	FilterDomainError   FilterErrorKind = "filter_domain_error"
)

// FilterError is returned by a filter implementation and aborts
// rendering of the template region currently being evaluated.
type FilterError struct {
	Kind   FilterErrorKind
	Filter string
	Message string
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("%s: %s", e.Filter, e.Message)
}

func argErr(filter, format string, args ...interface{}) error {
	return &FilterError{Kind: FilterArgumentError, Filter: filter, Message: fmt.Sprintf(format, args...)}
}

func domainErr(filter, format string, args ...interface{}) error {
	return &FilterError{Kind: FilterDomainError, Filter: filter, Message: fmt.Sprintf(format, args...)}
}
