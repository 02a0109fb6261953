// Copyright 2025 Author(s) of MCP Any
// SPDX-License-Identifier: Apache-2.0

package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/alexliesenfeld/health"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tracerequests/core/pkg/tracelog"
)

func newWriter(t *testing.T, fs afero.Fs, folder string) *tracelog.Writer {
	t.Helper()
	w := tracelog.NewWriter(fs)
	t.Cleanup(func() { _ = w.Close() })
	if folder != "" {
		require.NoError(t, w.Configure(folder, tracelog.DefaultBaseName))
	}
	return w
}

func TestChecker_AllUp(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer upstream.Close()

	fs := afero.NewMemMapFs()
	checker := NewChecker(newWriter(t, fs, "/traces"), upstream.URL)

	result := checker.Check(context.Background())
	assert.Equal(t, health.StatusUp, result.Status)
	assert.Contains(t, result.Details, CheckTraceFolder)
	assert.Contains(t, result.Details, CheckUpstream)

	entries, err := afero.ReadDir(fs, "/traces")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "the probe file is removed")
}

func TestChecker_TracingDisabled(t *testing.T) {
	checker := NewChecker(newWriter(t, afero.NewMemMapFs(), ""), "")

	result := checker.Check(context.Background())
	assert.Equal(t, health.StatusUp, result.Status)
	assert.NotContains(t, result.Details, CheckUpstream)
}

func TestChecker_UpstreamDown(t *testing.T) {
	checker := NewChecker(newWriter(t, afero.NewMemMapFs(), "/traces"), "http://127.0.0.1:1")

	result := checker.Check(context.Background())
	assert.Equal(t, health.StatusDown, result.Status)
	require.Contains(t, result.Details, CheckUpstream)
	assert.Equal(t, health.StatusDown, result.Details[CheckUpstream].Status)
	assert.Equal(t, health.StatusUp, result.Details[CheckTraceFolder].Status)
}

// noProbeFs refuses to create the health probe file.
type noProbeFs struct {
	afero.Fs
}

func (fs noProbeFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&os.O_CREATE != 0 && strings.HasPrefix(filepath.Base(name), ".healthcheck-") {
		return nil, &os.PathError{Op: "open", Path: name, Err: syscall.EROFS}
	}
	return fs.Fs.OpenFile(name, flag, perm)
}

func TestChecker_TraceFolderNotWritable(t *testing.T) {
	checker := NewChecker(newWriter(t, noProbeFs{Fs: afero.NewMemMapFs()}, "/traces"), "")

	result := checker.Check(context.Background())
	assert.Equal(t, health.StatusDown, result.Status)
	assert.Equal(t, health.StatusDown, result.Details[CheckTraceFolder].Status)
}

func TestHandler(t *testing.T) {
	checker := NewChecker(newWriter(t, afero.NewMemMapFs(), "/traces"), "http://127.0.0.1:1")

	rec := httptest.NewRecorder()
	NewHandler(checker).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "down", body["status"])
}
