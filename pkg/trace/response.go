// Copyright 2025 Author(s) of MCP Any
// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
)

// Response is the mutable response handed to Controller.OnResponseComplete.
type Response interface {
	// Clear drops the headers and body and resets the status to 200.
	Clear()
	// SetHeader replaces the values of header name.
	SetHeader(name, value string)
	// AppendBody appends b to the body.
	AppendBody(b []byte)
	// Header returns the response headers.
	Header() http.Header
	// Body returns the body written so far.
	Body() []byte
	// StatusCode returns the response status.
	StatusCode() int
}

// BufferedResponse is an http.ResponseWriter that keeps the whole response in
// memory until CopyTo is called.
type BufferedResponse struct {
	header      http.Header
	body        bytes.Buffer
	status      int
	wroteHeader bool
}

var (
	_ Response            = (*BufferedResponse)(nil)
	_ http.ResponseWriter = (*BufferedResponse)(nil)
)

// NewBufferedResponse creates an empty 200 response.
func NewBufferedResponse() *BufferedResponse {
	return &BufferedResponse{header: make(http.Header), status: http.StatusOK}
}

// Header returns the response headers.
func (r *BufferedResponse) Header() http.Header {
	return r.header
}

// Write appends b to the body.
func (r *BufferedResponse) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.body.Write(b)
}

// WriteHeader records the status code. Only the first call has an effect.
func (r *BufferedResponse) WriteHeader(statusCode int) {
	if r.wroteHeader {
		return
	}
	r.status = statusCode
	r.wroteHeader = true
}

// Clear drops the headers and body and resets the status to 200. The status
// can be set again afterwards.
func (r *BufferedResponse) Clear() {
	r.header = make(http.Header)
	r.body.Reset()
	r.status = http.StatusOK
	r.wroteHeader = false
}

// SetHeader replaces the values of header name.
func (r *BufferedResponse) SetHeader(name, value string) {
	r.header.Set(name, value)
}

// AppendBody appends b to the body without touching the status.
func (r *BufferedResponse) AppendBody(b []byte) {
	r.body.Write(b)
}

// Body returns the buffered body. The slice is only valid until the next
// write.
func (r *BufferedResponse) Body() []byte {
	return r.body.Bytes()
}

// StatusCode returns the recorded status, 200 unless WriteHeader said otherwise.
func (r *BufferedResponse) StatusCode() int {
	return r.status
}

// CopyTo copies the buffered response to w.
func (r *BufferedResponse) CopyTo(w http.ResponseWriter) error {
	dst := w.Header()
	for k, v := range r.header {
		dst[k] = v
	}
	dst.Del("Content-Length")
	w.WriteHeader(r.status)
	_, err := w.Write(r.body.Bytes())
	return err
}

// ResponsePayload renders resp as multi-line trace text: the status line,
// one line per header, then the body.
func ResponsePayload(resp Response) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d %s", resp.StatusCode(), http.StatusText(resp.StatusCode()))
	writeHeaders(&sb, resp.Header())
	if body := resp.Body(); len(body) > 0 {
		sb.WriteString("\n")
		sb.WriteString(bodyText(body))
	}
	return sb.String()
}
