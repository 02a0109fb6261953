// Copyright 2025 Author(s) of MCP Any
// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"maps"
	"net/url"
	"slices"
	"strings"
)

// Params holds request parameters with upper-cased names. When a parameter
// is repeated the first value wins; spellings differing only in case are
// resolved in byte order of the original names.
type Params map[string]string

// NewParams builds Params from query or form values.
func NewParams(values url.Values) Params {
	p := make(Params, len(values))
	for _, name := range slices.Sorted(maps.Keys(values)) {
		vs := values[name]
		if len(vs) == 0 {
			continue
		}
		key := strings.ToUpper(name)
		if _, seen := p[key]; !seen {
			p[key] = vs[0]
		}
	}
	return p
}

// Get returns the value of name, matched case-insensitively.
func (p Params) Get(name string) string {
	return p[strings.ToUpper(name)]
}

// Has reports whether name is present.
func (p Params) Has(name string) bool {
	_, ok := p[strings.ToUpper(name)]
	return ok
}

// Encode returns the parameters in query form, sorted by name.
func (p Params) Encode() string {
	values := make(url.Values, len(p))
	for k, v := range p {
		values.Set(k, v)
	}
	return values.Encode()
}
