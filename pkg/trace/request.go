// Copyright 2025 Author(s) of MCP Any
// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"unicode/utf8"
)

// Request is the part of an inbound request that gets traced.
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header
	Params Params
}

// NewRequest creates a Request. values are the query and form parameters.
func NewRequest(method string, u *url.URL, header http.Header, values url.Values) *Request {
	return &Request{
		Method: method,
		URL:    u,
		Header: header,
		Params: NewParams(values),
	}
}

// Payload renders the request as multi-line trace text: the request line,
// then one line per header and a final line with the parameters.
func (r *Request) Payload() string {
	var sb strings.Builder
	target := ""
	if r.URL != nil {
		target = r.URL.String()
	}
	fmt.Fprintf(&sb, "%s %s", r.Method, target)
	writeHeaders(&sb, r.Header)
	if len(r.Params) > 0 {
		fmt.Fprintf(&sb, "\nparams: %s", r.Params.Encode())
	}
	return sb.String()
}

func writeHeaders(sb *strings.Builder, header http.Header) {
	for _, name := range slices.Sorted(maps.Keys(header)) {
		fmt.Fprintf(sb, "\n%s: %s", name, strings.Join(header[name], ", "))
	}
}

// bodyText returns body as text, or a size summary when it is not UTF-8.
func bodyText(body []byte) string {
	if !utf8.Valid(body) {
		return fmt.Sprintf("<binary body: %d bytes>", len(body))
	}
	return string(body)
}
