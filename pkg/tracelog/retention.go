// Copyright 2025 Author(s) of MCP Any
// SPDX-License-Identifier: Apache-2.0

package tracelog

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/tracerequests/core/pkg/metrics"
)

type traceFile struct {
	name    string
	created time.Time
}

// ownsLocked reports whether name is the active file or one of its rotations.
func (w *Writer) ownsLocked(name string) bool {
	if name == w.baseName+Extension {
		return true
	}
	return strings.HasPrefix(name, w.baseName+"_") && strings.HasSuffix(name, Extension)
}

// pruneLocked deletes the oldest trace files until at most maxFiles remain.
// The active file counts towards the bound but is never deleted. Files that
// vanished in the meantime count as deleted; other failures are skipped.
func (w *Writer) pruneLocked() {
	entries, err := afero.ReadDir(w.fs, w.folder)
	if err != nil {
		w.log.Warn("Failed to list trace folder", "folder", w.folder, "error", err)
		return
	}

	owned := lo.Filter(entries, func(fi os.FileInfo, _ int) bool {
		return !fi.IsDir() && w.ownsLocked(fi.Name())
	})
	excess := len(owned) - w.maxFiles
	if excess <= 0 {
		return
	}

	active := w.baseName + Extension
	candidates := lo.FilterMap(owned, func(fi os.FileInfo, _ int) (traceFile, bool) {
		return traceFile{name: fi.Name(), created: creationTime(fi)}, fi.Name() != active
	})
	slices.SortFunc(candidates, func(a, b traceFile) int {
		if c := a.created.Compare(b.created); c != 0 {
			return c
		}
		return strings.Compare(a.name, b.name)
	})

	for _, candidate := range candidates {
		if excess <= 0 {
			break
		}
		path := filepath.Join(w.folder, candidate.name)
		if err := w.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			w.log.Warn("Failed to delete old trace log", "file", path, "error", err)
			continue
		}
		excess--
		metrics.IncrCounter(metricPruned, 1)
		w.log.Debug("Deleted old trace log", "file", path)
	}
}
