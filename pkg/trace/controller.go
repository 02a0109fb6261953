// Copyright 2025 Author(s) of MCP Any
// SPDX-License-Identifier: Apache-2.0

// Package trace implements the request tracing controller: it records every
// request and response passing through the host and answers the
// TRACE_REQUESTS control service (ABOUT, SET_PATH, GET_TRACES).
package trace

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"github.com/tracerequests/core/pkg/config"
	"github.com/tracerequests/core/pkg/consts"
	"github.com/tracerequests/core/pkg/logging"
	"github.com/tracerequests/core/pkg/metrics"
	"github.com/tracerequests/core/pkg/tracelog"
)

const (
	// ServiceName is the SERVICE value reserved for the control protocol.
	ServiceName = "TRACE_REQUESTS"

	// CommandAbout describes the plugin and the current trace path. It is
	// the default command.
	CommandAbout = "ABOUT"
	// CommandSetPath persists PATH as the trace folder.
	CommandSetPath = "SET_PATH"
	// CommandGetTraces returns the content of the active trace file.
	CommandGetTraces = "GET_TRACES"

	// ParamService selects the service; ServiceName addresses the controller.
	ParamService = "SERVICE"
	// ParamCommand selects the control command.
	ParamCommand = "COMMAND"
	// ParamPath is the folder given to SET_PATH.
	ParamPath = "PATH"
	// ParamFormat selects the ABOUT output, html or JSON by default.
	ParamFormat = "FORMAT"
	// ParamMap is the QGIS project, kept in the traces URL.
	ParamMap = "MAP"

	// SettingTraceFilesPath is the store key of the persisted trace path.
	SettingTraceFilesPath = "TraceFilesPath"
	// EnvTraceFilesPath is consulted when no path is persisted.
	EnvTraceFilesPath = "QGIS_TRACEREQUESTS_FILESPATH"
	// TempDirPrefix prefixes the fallback temporary trace folder.
	TempDirPrefix = "qgis_trace_requests_"
)

var metricCommands = []string{"trace", "commands"}

// Option configures a Controller.
type Option func(*Controller)

// WithLookupEnv replaces os.LookupEnv.
func WithLookupEnv(lookup func(string) (string, bool)) Option {
	return func(c *Controller) {
		if lookup != nil {
			c.lookupEnv = lookup
		}
	}
}

// WithTempDir sets the directory the fallback trace folder is created in.
// The default is the system temporary directory.
func WithTempDir(dir string) Option {
	return func(c *Controller) {
		c.tempRoot = dir
	}
}

// WithBaseName sets the trace file base name.
func WithBaseName(name string) Option {
	return func(c *Controller) {
		if name != "" {
			c.baseName = name
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) {
		c.log = log
	}
}

// Controller traces requests and responses into a tracelog.Writer and serves
// the control service.
type Controller struct {
	writer    *tracelog.Writer
	store     config.Store
	baseName  string
	lookupEnv func(string) (string, bool)
	tempRoot  string
	log       *slog.Logger

	mu      sync.Mutex
	path    string
	tempDir string
}

// NewController creates a Controller and points writer at the resolved
// trace path.
func NewController(ctx context.Context, writer *tracelog.Writer, store config.Store, opts ...Option) *Controller {
	c := &Controller{
		writer:    writer,
		store:     store,
		baseName:  tracelog.DefaultBaseName,
		lookupEnv: os.LookupEnv,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logging.GetLogger()
	}
	c.log = c.log.With("component", "trace")
	c.Reset(ctx)
	return c
}

// Reset re-resolves the trace path, reconfigures the writer and returns the
// resolved path. The precedence is: persisted setting, environment
// variable, temporary directory.
func (c *Controller) Reset(ctx context.Context) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.path = c.resolveLocked(ctx)
	if err := c.writer.Configure(c.path, c.baseName); err != nil {
		c.log.Error("Failed to configure trace log", "path", c.path, "error", err)
	}
	return c.path
}

// TraceFilesPath returns the currently resolved trace path.
func (c *Controller) TraceFilesPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path
}

// Intercepts reports whether params address the control service.
func (c *Controller) Intercepts(params Params) bool {
	return strings.EqualFold(params.Get(ParamService), ServiceName)
}

// OnRequest writes the INCOMING record for req.
func (c *Controller) OnRequest(_ context.Context, req *Request) {
	if err := c.writer.WriteIncoming(req.Payload()); err != nil {
		c.log.Error("Failed to trace request", "error", err)
	}
}

// OnResponseComplete handles control commands and writes the OUTGOING record.
// It returns true when resp was produced by the controller.
func (c *Controller) OnResponseComplete(ctx context.Context, req *Request, resp Response) bool {
	if !c.Intercepts(req.Params) {
		c.traceResponse(resp)
		return false
	}

	command := strings.ToUpper(strings.TrimSpace(req.Params.Get(ParamCommand)))
	if command == "" {
		command = CommandAbout
	}
	metrics.IncrCounterWithLabels(metricCommands, 1, []metrics.Label{{Name: "command", Value: command}})

	switch command {
	case CommandAbout:
		c.about(req, resp)
	case CommandSetPath:
		c.setPath(ctx, req, resp)
	case CommandGetTraces:
		// Tracing this body would make the file log its own retrieval.
		c.getTraces(resp)
		return true
	default:
		c.log.Debug("Unknown trace command", "command", command)
		c.traceResponse(resp)
		return false
	}
	c.traceResponse(resp)
	return true
}

func (c *Controller) setPath(ctx context.Context, req *Request, resp Response) {
	path := req.Params.Get(ParamPath)
	if err := c.store.Set(ctx, SettingTraceFilesPath, path); err != nil {
		c.log.Error("Failed to persist trace files path", "path", path, "error", err)
	}
	resolved := c.Reset(ctx)
	c.log.Info("Trace files path set", "path", resolved)

	resp.Clear()
	resp.SetHeader(consts.HeaderContentType, consts.ContentTypeTextPlain)
	resp.AppendBody([]byte("Trace files path set to " + resolved))
}

func (c *Controller) getTraces(resp Response) {
	resp.Clear()
	resp.SetHeader(consts.HeaderContentType, consts.ContentTypeTextPlain)

	content, err := c.writer.ReadCurrent()
	if err != nil {
		if !errors.Is(err, tracelog.ErrNoActiveFile) {
			c.log.Error("Failed to read trace file", "error", err)
		}
		return
	}
	resp.AppendBody(content)
}

func (c *Controller) traceResponse(resp Response) {
	if err := c.writer.WriteOutgoing(ResponsePayload(resp)); err != nil {
		c.log.Error("Failed to trace response", "error", err)
	}
}

func (c *Controller) resolveLocked(ctx context.Context) string {
	value, ok, err := c.store.Get(ctx, SettingTraceFilesPath)
	if err != nil {
		c.log.Warn("Failed to read persisted trace files path", "error", err)
	} else if ok && value != "" {
		return value
	}

	if value, ok := c.lookupEnv(EnvTraceFilesPath); ok && value != "" {
		return value
	}

	return c.tempDirLocked()
}

// tempDirLocked returns the fallback folder, creating it on first use and
// again if it was removed.
func (c *Controller) tempDirLocked() string {
	fs := c.writer.Fs()
	if c.tempDir != "" {
		if ok, err := afero.DirExists(fs, c.tempDir); err == nil && ok {
			return c.tempDir
		}
	}
	dir, err := afero.TempDir(fs, c.tempRoot, TempDirPrefix)
	if err != nil {
		c.log.Error("Failed to create temporary trace folder, tracing disabled", "error", err)
		c.tempDir = ""
		return ""
	}
	c.tempDir = dir
	return dir
}
