// Copyright 2025 Author(s) of MCP Any
// SPDX-License-Identifier: Apache-2.0

// Package tracelog writes request traces to a line-count rotated log folder.
//
// A Writer owns exactly one active file, <folder>/<base>.log. Every record is
// synced to disk as soon as it is written. Once the active file holds
// MaxFileLines records it is renamed to <folder>/<base>_<timestamp>.log and a
// fresh file takes its place; afterwards the oldest files of the folder are
// deleted until at most MaxFolderFiles remain.
package tracelog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
	"github.com/tracerequests/core/pkg/logging"
	"github.com/tracerequests/core/pkg/metrics"
)

const (
	// DefaultMaxFileLines is the number of records after which the active file rotates.
	DefaultMaxFileLines = 20000
	// DefaultMaxFolderFiles bounds the number of trace files kept in the folder.
	DefaultMaxFolderFiles = 20
	// DefaultBaseName is the base name of the trace files.
	DefaultBaseName = "RequestsLog"
)

var (
	metricRecords   = []string{"tracelog", "records"}
	metricRotations = []string{"tracelog", "rotations"}
	metricPruned    = []string{"tracelog", "pruned"}
	metricErrors    = []string{"tracelog", "errors"}
)

// Option configures a Writer.
type Option func(*Writer)

// WithMaxFileLines overrides DefaultMaxFileLines. Non-positive values are ignored.
func WithMaxFileLines(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.maxLines = n
		}
	}
}

// WithMaxFolderFiles overrides DefaultMaxFolderFiles. Non-positive values are ignored.
func WithMaxFolderFiles(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.maxFiles = n
		}
	}
}

// WithClock sets the time source used for record and rotation timestamps.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) {
		if now != nil {
			w.now = now
		}
	}
}

// WithLogger sets the logger used to report operational problems.
func WithLogger(log *slog.Logger) Option {
	return func(w *Writer) {
		w.log = log
	}
}

// Writer is a rotating trace log. It is safe for concurrent use; rotation
// (close, rename, reopen) never interleaves with a write.
type Writer struct {
	mu sync.Mutex

	fs       afero.Fs
	folder   string
	baseName string
	file     afero.File
	current  string
	lines    int

	maxLines int
	maxFiles int
	now      func() time.Time
	log      *slog.Logger
}

// NewWriter creates a Writer on top of fs. The writer starts disabled until
// Configure is called with a complete target.
func NewWriter(fs afero.Fs, opts ...Option) *Writer {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	w := &Writer{
		fs:       fs,
		maxLines: DefaultMaxFileLines,
		maxFiles: DefaultMaxFolderFiles,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.log == nil {
		w.log = logging.GetLogger()
	}
	w.log = w.log.With("component", "tracelog")
	return w
}

// Configure points the writer at folder/baseName.log.
//
// The folder is created when missing. An empty folder or base name switches
// the writer to no-op mode. When the folder cannot be used a
// *ConfigurationError is returned and the writer stays in no-op mode. On
// success the target file is opened right away so CurrentFile is valid
// immediately.
func (w *Writer) Configure(folder, baseName string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if folder == w.folder && baseName == w.baseName && w.file != nil {
		return nil
	}

	if err := w.closeLocked(); err != nil {
		w.log.Warn("Failed to close previous trace log", "error", err)
	}
	w.folder, w.baseName = folder, baseName
	if !w.enabledLocked() {
		return nil
	}

	if err := w.fs.MkdirAll(folder, 0o755); err != nil {
		w.folder = ""
		metrics.IncrCounter(metricErrors, 1)
		return &ConfigurationError{Folder: folder, Err: err}
	}
	fi, err := w.fs.Stat(folder)
	if err == nil && !fi.IsDir() {
		err = fmt.Errorf("not a directory")
	}
	if err != nil {
		w.folder = ""
		metrics.IncrCounter(metricErrors, 1)
		return &ConfigurationError{Folder: folder, Err: err}
	}

	w.log.Info("Trace log configured", "folder", folder, "base_name", baseName)
	return w.openLocked()
}

// Write appends payload as one record per line. It is a no-op when no
// complete target is configured.
func (w *Writer) Write(payload string, dir Direction) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.enabledLocked() {
		return nil
	}

	// A failed rotation leaves the current file usable, so the remaining
	// records of the payload are still appended.
	var rotateErr error
	for _, record := range FormatRecords(w.now(), dir, payload) {
		rerr, err := w.appendLocked(record)
		if err != nil {
			metrics.IncrCounter(metricErrors, 1)
			if rotateErr != nil {
				return errors.Join(rotateErr, err)
			}
			return err
		}
		if rerr != nil && rotateErr == nil {
			metrics.IncrCounter(metricErrors, 1)
			w.log.Warn("Trace log rotation failed, keeping current file", "error", rerr)
			rotateErr = rerr
		}
	}
	return rotateErr
}

// WriteIncoming writes payload with the DirectionIncoming marker.
func (w *Writer) WriteIncoming(payload string) error {
	return w.Write(payload, DirectionIncoming)
}

// WriteOutgoing writes payload with the DirectionOutgoing marker.
func (w *Writer) WriteOutgoing(payload string) error {
	return w.Write(payload, DirectionOutgoing)
}

// WriteNeutral writes payload with the DirectionNeutral marker.
func (w *Writer) WriteNeutral(payload string) error {
	return w.Write(payload, DirectionNeutral)
}

// CurrentFile returns the path of the file open for writing, or "" if none.
func (w *Writer) CurrentFile() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return ""
	}
	return w.current
}

// ReadCurrent returns the content of the active file. The read happens under
// the writer lock, so no record can be appended while it runs.
func (w *Writer) ReadCurrent() ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil, ErrNoActiveFile
	}
	path := w.current
	content, err := afero.ReadFile(w.fs, path)
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	return content, nil
}

// LineCount returns the number of records in the active file.
func (w *Writer) LineCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lines
}

// Folder returns the configured trace folder.
func (w *Writer) Folder() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.folder
}

// BaseName returns the configured base name.
func (w *Writer) BaseName() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.baseName
}

// Fs returns the filesystem the writer operates on.
func (w *Writer) Fs() afero.Fs {
	return w.fs
}

// Close closes the active file. The target is kept; the next Write reopens it.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *Writer) enabledLocked() bool {
	return w.folder != "" && w.baseName != ""
}

func (w *Writer) pathLocked() string {
	return filepath.Join(w.folder, w.baseName+Extension)
}

func (w *Writer) closeLocked() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file, w.current = nil, ""
	w.lines = 0
	return err
}

// openLocked opens the canonical file, counting the records it already holds,
// and rotates it straight away when it is already full. A failed rotation is
// only logged when the full file stays open; it is retried on the next write.
func (w *Writer) openLocked() error {
	path := w.pathLocked()
	f, err := w.fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return &IOError{Op: "open", Path: path, Err: err}
	}
	lines, err := countLines(f)
	if err == nil {
		_, err = f.Seek(0, io.SeekEnd)
	}
	if err != nil {
		_ = f.Close()
		return &IOError{Op: "read", Path: path, Err: err}
	}

	w.file, w.current, w.lines = f, path, lines
	w.log.Debug("Opened trace log", "file", path, "lines", lines)

	if w.lines < w.maxLines {
		return nil
	}
	err = w.rotateLocked()
	if err != nil && w.file != nil {
		metrics.IncrCounter(metricErrors, 1)
		w.log.Warn("Trace log rotation failed, keeping current file", "error", err)
		return nil
	}
	return err
}

// appendLocked writes one record. err reports a record that could not be
// written; rotateErr reports a failed rotation after a successful write.
func (w *Writer) appendLocked(record string) (rotateErr, err error) {
	if w.file == nil {
		if err := w.openLocked(); err != nil {
			return nil, err
		}
	}

	path := w.current
	if _, err := w.file.WriteString(record + "\n"); err != nil {
		return nil, &IOError{Op: "write", Path: path, Err: err}
	}
	w.lines++
	if err := w.file.Sync(); err != nil {
		return nil, &IOError{Op: "sync", Path: path, Err: err}
	}
	metrics.IncrCounter(metricRecords, 1)

	if w.lines >= w.maxLines {
		return w.rotateLocked(), nil
	}
	return nil, nil
}

// rotateLocked moves the active file aside and starts an empty canonical one.
// On failure the previous file is reopened so writing can continue.
func (w *Writer) rotateLocked() error {
	current := w.current
	canonical := w.pathLocked()
	rotated := w.rotatedPathLocked()

	if err := w.file.Close(); err != nil {
		w.log.Warn("Failed to close trace log before rotation", "file", current, "error", err)
	}
	w.file, w.current = nil, ""

	if err := w.fs.Rename(current, rotated); err != nil {
		w.reopenLocked(current)
		return &IOError{Op: "rotate", Path: current, Err: err}
	}

	f, err := w.fs.OpenFile(canonical, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		if renameErr := w.fs.Rename(rotated, current); renameErr != nil {
			// Keep appending to the file under its rotated name; CurrentFile
			// and ReadCurrent follow it.
			w.log.Error("Failed to restore trace log after rotation error", "file", rotated, "error", renameErr)
			current = rotated
		}
		w.reopenLocked(current)
		return &IOError{Op: "open", Path: canonical, Err: err}
	}

	w.file, w.current, w.lines = f, canonical, 0
	metrics.IncrCounter(metricRotations, 1)
	w.log.Info("Rotated trace log", "file", canonical, "rotated_to", rotated)

	w.pruneLocked()
	return nil
}

// reopenLocked reopens path for appending, keeping the current line count.
func (w *Writer) reopenLocked(path string) {
	f, err := w.fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		w.log.Error("Failed to reopen trace log", "file", path, "error", err)
		return
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		_ = f.Close()
		w.log.Error("Failed to reopen trace log", "file", path, "error", err)
		return
	}
	w.file, w.current = f, path
}

func (w *Writer) rotatedPathLocked() string {
	stem := filepath.Join(w.folder, w.baseName+"_"+w.now().Format(RotationLayout))
	candidate := stem + Extension
	for i := 1; ; i++ {
		exists, err := afero.Exists(w.fs, candidate)
		if err != nil || !exists {
			return candidate
		}
		candidate = fmt.Sprintf("%s_%d%s", stem, i, Extension)
	}
}

func countLines(r io.Reader) (int, error) {
	buf := make([]byte, 32*1024)
	count := 0
	for {
		n, err := r.Read(buf)
		count += bytes.Count(buf[:n], []byte{'\n'})
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return count, err
		}
	}
}
