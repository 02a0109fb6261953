// Copyright 2025 Author(s) of MCP Any
// SPDX-License-Identifier: Apache-2.0

package tracelog

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const traceDir = "/var/traces"

func fixedClock() time.Time {
	return time.Date(2025, 1, 2, 3, 4, 5, 678_000_000, time.UTC)
}

func newTestWriter(t *testing.T, fs afero.Fs, opts ...Option) *Writer {
	t.Helper()
	opts = append([]Option{
		WithClock(fixedClock),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	w := NewWriter(fs, opts...)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func readLines(t *testing.T, fs afero.Fs, path string) []string {
	t.Helper()
	content, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	if len(content) == 0 {
		return nil
	}
	return strings.Split(strings.TrimSuffix(string(content), "\n"), "\n")
}

func listNames(t *testing.T, fs afero.Fs, dir string) []string {
	t.Helper()
	entries, err := afero.ReadDir(fs, dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestWriter_DisabledWithoutTarget(t *testing.T) {
	tests := []struct {
		name     string
		folder   string
		baseName string
	}{
		{"empty folder", "", "RequestsLog"},
		{"empty base name", traceDir, ""},
		{"both empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			w := newTestWriter(t, fs)

			require.NoError(t, w.Configure(tt.folder, tt.baseName))
			require.NoError(t, w.WriteIncoming("hello"))

			assert.Empty(t, w.CurrentFile())
			assert.Equal(t, 0, w.LineCount())
			exists, err := afero.Exists(fs, traceDir)
			require.NoError(t, err)
			assert.False(t, exists, "no-op writer must not touch the filesystem")
		})
	}
}

func TestWriter_ConfigureCreatesFolderAndFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := newTestWriter(t, fs)

	folder := filepath.Join(traceDir, "nested", "deeper")
	require.NoError(t, w.Configure(folder, DefaultBaseName))

	expected := filepath.Join(folder, "RequestsLog.log")
	assert.Equal(t, expected, w.CurrentFile())
	assert.Equal(t, folder, w.Folder())
	assert.Equal(t, DefaultBaseName, w.BaseName())
	assert.Equal(t, 0, w.LineCount())

	fi, err := fs.Stat(expected)
	require.NoError(t, err)
	assert.Equal(t, int64(0), fi.Size())
}

func TestWriter_WriteCountsRecords(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := newTestWriter(t, fs)
	require.NoError(t, w.Configure(traceDir, DefaultBaseName))

	for i := 0; i < 5; i++ {
		require.NoError(t, w.WriteIncoming(fmt.Sprintf("request %d", i)))
	}
	assert.Equal(t, 5, w.LineCount())

	require.NoError(t, w.WriteOutgoing("status 200\nContent-Type: text/xml\n<xml/>"))
	assert.Equal(t, 8, w.LineCount())

	require.NoError(t, w.WriteNeutral("marker"))
	assert.Equal(t, 9, w.LineCount())

	lines := readLines(t, fs, w.CurrentFile())
	require.Len(t, lines, 9)
	assert.Equal(t, "2025.01.02 03:04:05.678 <- request 0", lines[0])
	assert.Equal(t, "2025.01.02 03:04:05.678 -> status 200", lines[5])
	assert.Equal(t, "2025.01.02 03:04:05.678 -> <xml/>", lines[7])
	assert.Equal(t, "2025.01.02 03:04:05.678 -- marker", lines[8])
}

func TestWriter_RotatesAtThreshold(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := newTestWriter(t, fs, WithMaxFileLines(10))
	require.NoError(t, w.Configure(traceDir, DefaultBaseName))

	for i := 0; i < 9; i++ {
		require.NoError(t, w.WriteIncoming("line"))
	}
	assert.Equal(t, 9, w.LineCount())
	assert.Len(t, listNames(t, fs, traceDir), 1)

	require.NoError(t, w.WriteIncoming("line"))

	assert.Equal(t, 0, w.LineCount(), "line count resets once the threshold is reached")
	names := listNames(t, fs, traceDir)
	assert.ElementsMatch(t, []string{"RequestsLog.log", "RequestsLog_2025-01-02_03-04-05.log"}, names)

	active := filepath.Join(traceDir, "RequestsLog.log")
	assert.Equal(t, active, w.CurrentFile())
	assert.Empty(t, readLines(t, fs, active), "canonical file is empty right after rotation")
	assert.Len(t, readLines(t, fs, filepath.Join(traceDir, "RequestsLog_2025-01-02_03-04-05.log")), 10)

	require.NoError(t, w.WriteIncoming("after rotation"))
	assert.Equal(t, 1, w.LineCount())
	assert.Len(t, listNames(t, fs, traceDir), 2, "exactly one renamed file per rotation")
}

func TestWriter_RotationMidPayload(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := newTestWriter(t, fs, WithMaxFileLines(3))
	require.NoError(t, w.Configure(traceDir, DefaultBaseName))

	require.NoError(t, w.WriteIncoming("1\n2\n3\n4\n5"))

	assert.Equal(t, 2, w.LineCount())
	assert.Equal(t, []string{
		"2025.01.02 03:04:05.678 <- 4",
		"2025.01.02 03:04:05.678 <- 5",
	}, readLines(t, fs, w.CurrentFile()))
	assert.Len(t, readLines(t, fs, filepath.Join(traceDir, "RequestsLog_2025-01-02_03-04-05.log")), 3)
}

func TestWriter_RotationNameCollision(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := newTestWriter(t, fs, WithMaxFileLines(2))
	require.NoError(t, w.Configure(traceDir, DefaultBaseName))

	for i := 0; i < 6; i++ {
		require.NoError(t, w.WriteIncoming("x"))
	}

	assert.ElementsMatch(t, []string{
		"RequestsLog.log",
		"RequestsLog_2025-01-02_03-04-05.log",
		"RequestsLog_2025-01-02_03-04-05_1.log",
		"RequestsLog_2025-01-02_03-04-05_2.log",
	}, listNames(t, fs, traceDir))
}

func TestWriter_ReopenCountsExistingLines(t *testing.T) {
	fs := afero.NewMemMapFs()

	first := newTestWriter(t, fs)
	require.NoError(t, first.Configure(traceDir, DefaultBaseName))
	for i := 0; i < 7; i++ {
		require.NoError(t, first.WriteIncoming("before restart"))
	}
	require.NoError(t, first.Close())

	second := newTestWriter(t, fs)
	require.NoError(t, second.Configure(traceDir, DefaultBaseName))
	assert.Equal(t, 7, second.LineCount())

	require.NoError(t, second.WriteIncoming("after restart"))
	assert.Equal(t, 8, second.LineCount())

	lines := readLines(t, fs, second.CurrentFile())
	require.Len(t, lines, 8)
	assert.True(t, strings.HasSuffix(lines[7], "after restart"), "records are appended, not overwritten")
}

func TestWriter_LazyReopenAfterClose(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := newTestWriter(t, fs)
	require.NoError(t, w.Configure(traceDir, DefaultBaseName))
	require.NoError(t, w.WriteIncoming("one"))
	require.NoError(t, w.Close())
	assert.Empty(t, w.CurrentFile())

	require.NoError(t, w.WriteIncoming("two"))
	assert.Equal(t, 2, w.LineCount())
	assert.Equal(t, filepath.Join(traceDir, "RequestsLog.log"), w.CurrentFile())
}

func TestWriter_RotatesFullFileOnOpen(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(traceDir, 0o755))
	existing := strings.Repeat("old record\n", 10)
	require.NoError(t, afero.WriteFile(fs, filepath.Join(traceDir, "RequestsLog.log"), []byte(existing), 0o644))

	w := newTestWriter(t, fs, WithMaxFileLines(10))
	require.NoError(t, w.Configure(traceDir, DefaultBaseName))

	assert.Equal(t, 0, w.LineCount())
	assert.ElementsMatch(t, []string{"RequestsLog.log", "RequestsLog_2025-01-02_03-04-05.log"}, listNames(t, fs, traceDir))
}

func TestWriter_ConfigureSwitchesTarget(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := newTestWriter(t, fs)

	require.NoError(t, w.Configure("/a", DefaultBaseName))
	require.NoError(t, w.WriteIncoming("to a"))
	require.NoError(t, w.WriteIncoming("to a again"))

	// Same target keeps the open file and its count.
	require.NoError(t, w.Configure("/a", DefaultBaseName))
	assert.Equal(t, 2, w.LineCount())

	require.NoError(t, w.Configure("/b", DefaultBaseName))
	assert.Equal(t, "/b/RequestsLog.log", w.CurrentFile())
	assert.Equal(t, 0, w.LineCount())
	require.NoError(t, w.WriteIncoming("to b"))

	assert.Len(t, readLines(t, fs, "/a/RequestsLog.log"), 2)
	assert.Len(t, readLines(t, fs, "/b/RequestsLog.log"), 1)

	require.NoError(t, w.Configure("", DefaultBaseName))
	assert.Empty(t, w.CurrentFile())
}

func TestWriter_ConfigureFailure(t *testing.T) {
	t.Run("folder cannot be created", func(t *testing.T) {
		fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
		w := newTestWriter(t, fs)

		err := w.Configure(traceDir, DefaultBaseName)
		var cfgErr *ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, traceDir, cfgErr.Folder)

		require.NoError(t, w.WriteIncoming("dropped"), "writes degrade to no-ops")
		assert.Empty(t, w.CurrentFile())
		assert.Empty(t, w.Folder())
	})

	t.Run("folder is a regular file", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, traceDir, []byte("not a dir"), 0o644))
		w := newTestWriter(t, fs)

		err := w.Configure(traceDir, DefaultBaseName)
		var cfgErr *ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Contains(t, cfgErr.Error(), traceDir)
		require.NoError(t, w.WriteIncoming("dropped"))
	})
}

func TestWriter_ReadCurrent(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := newTestWriter(t, fs)

	_, err := w.ReadCurrent()
	assert.ErrorIs(t, err, ErrNoActiveFile)

	require.NoError(t, w.Configure(traceDir, DefaultBaseName))
	require.NoError(t, w.WriteIncoming("first\nsecond"))

	content, err := w.ReadCurrent()
	require.NoError(t, err)
	onDisk, err := afero.ReadFile(fs, w.CurrentFile())
	require.NoError(t, err)
	assert.Equal(t, onDisk, content)
	assert.Equal(t, "2025.01.02 03:04:05.678 <- first\n2025.01.02 03:04:05.678 <- second\n", string(content))
}

// renameFailingFs refuses every rename.
type renameFailingFs struct {
	afero.Fs
}

func (fs renameFailingFs) Rename(oldname, newname string) error {
	return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: syscall.EACCES}
}

func TestWriter_RotationFailureKeepsFileUsable(t *testing.T) {
	base := afero.NewMemMapFs()
	w := newTestWriter(t, renameFailingFs{Fs: base}, WithMaxFileLines(2))
	require.NoError(t, w.Configure(traceDir, DefaultBaseName))

	require.NoError(t, w.WriteIncoming("one"))
	err := w.WriteIncoming("two")
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "rotate", ioErr.Op)
	assert.ErrorIs(t, err, syscall.EACCES)

	assert.Equal(t, filepath.Join(traceDir, "RequestsLog.log"), w.CurrentFile())
	assert.Equal(t, 2, w.LineCount())

	// The record is still written; rotation is retried and fails again.
	err = w.WriteIncoming("three")
	require.ErrorAs(t, err, &ioErr)
	assert.Len(t, readLines(t, base, filepath.Join(traceDir, "RequestsLog.log")), 3)
	assert.Equal(t, []string{"RequestsLog.log"}, listNames(t, base, traceDir))

	// Every line of a multi-line payload is kept while rotation keeps failing.
	err = w.WriteIncoming("a\nb\nc\nd")
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "rotate", ioErr.Op)
	require.ErrorAs(t, w.WriteOutgoing("x\ny\nz"), &ioErr)

	lines := readLines(t, base, filepath.Join(traceDir, "RequestsLog.log"))
	require.Len(t, lines, 10)
	prefix := "2025.01.02 03:04:05.678 "
	assert.Equal(t, []string{
		prefix + "<- a", prefix + "<- b", prefix + "<- c", prefix + "<- d",
		prefix + "-> x", prefix + "-> y", prefix + "-> z",
	}, lines[3:])
	assert.Equal(t, 10, w.LineCount())
}

func TestWriter_ConfigureKeepsFullFileWhenRotationFails(t *testing.T) {
	base := afero.NewMemMapFs()
	require.NoError(t, base.MkdirAll(traceDir, 0o755))
	canonical := filepath.Join(traceDir, "RequestsLog.log")
	require.NoError(t, afero.WriteFile(base, canonical, []byte("old 1\nold 2\n"), 0o644))

	w := newTestWriter(t, renameFailingFs{Fs: base}, WithMaxFileLines(2))
	require.NoError(t, w.Configure(traceDir, DefaultBaseName), "a full file that cannot be rotated is still usable")
	assert.Equal(t, canonical, w.CurrentFile())
	assert.Equal(t, 2, w.LineCount())

	var ioErr *IOError
	require.ErrorAs(t, w.WriteIncoming("new"), &ioErr)
	assert.Equal(t, "rotate", ioErr.Op)
	assert.Len(t, readLines(t, base, canonical), 3)
}

// stuckRotationFs can move the canonical file aside but can neither create a
// fresh one nor move the rotated file anywhere.
type stuckRotationFs struct {
	afero.Fs
	canonical string
}

func (fs stuckRotationFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&os.O_TRUNC != 0 {
		return nil, &os.PathError{Op: "open", Path: name, Err: syscall.ENOSPC}
	}
	return fs.Fs.OpenFile(name, flag, perm)
}

func (fs stuckRotationFs) Rename(oldname, newname string) error {
	if oldname != fs.canonical {
		return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: syscall.EACCES}
	}
	return fs.Fs.Rename(oldname, newname)
}

func TestWriter_FollowsFileLeftUnderRotatedName(t *testing.T) {
	base := afero.NewMemMapFs()
	canonical := filepath.Join(traceDir, "RequestsLog.log")
	w := newTestWriter(t, stuckRotationFs{Fs: base, canonical: canonical}, WithMaxFileLines(2))
	require.NoError(t, w.Configure(traceDir, DefaultBaseName))

	require.NoError(t, w.WriteIncoming("one"))
	err := w.WriteIncoming("two")
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "open", ioErr.Op)

	rotated := filepath.Join(traceDir, "RequestsLog_2025-01-02_03-04-05.log")
	assert.Equal(t, rotated, w.CurrentFile())

	// The next rotation attempt fails too, but the record lands in the file
	// GET_TRACES reads.
	require.Error(t, w.WriteIncoming("three"))
	content, err := w.ReadCurrent()
	require.NoError(t, err)
	assert.Equal(t,
		"2025.01.02 03:04:05.678 <- one\n2025.01.02 03:04:05.678 <- two\n2025.01.02 03:04:05.678 <- three\n",
		string(content))
	assert.Equal(t, []string{"RequestsLog_2025-01-02_03-04-05.log"}, listNames(t, base, traceDir))
}

func TestWriter_ConcurrentWrites(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := newTestWriter(t, fs, WithMaxFileLines(37))
	require.NoError(t, w.Configure(traceDir, DefaultBaseName))

	const workers, perWorker = 8, 50
	var g errgroup.Group
	for i := range workers {
		g.Go(func() error {
			for j := range perWorker {
				if err := w.WriteIncoming(fmt.Sprintf("worker %d record %d", i, j)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	total := 0
	for _, name := range listNames(t, fs, traceDir) {
		lines := readLines(t, fs, filepath.Join(traceDir, name))
		for _, line := range lines {
			assert.True(t, strings.HasPrefix(line, "2025.01.02 03:04:05.678 <- worker "), "malformed record %q", line)
		}
		total += len(lines)
	}
	assert.Equal(t, workers*perWorker, total)
	assert.Equal(t, (workers*perWorker)%37, w.LineCount())
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("boom")
	assert.ErrorIs(t, &IOError{Op: "write", Path: "/x", Err: cause}, cause)
	assert.ErrorIs(t, &ConfigurationError{Folder: "/x", Err: cause}, cause)
	assert.Equal(t, "trace log write /x: boom", (&IOError{Op: "write", Path: "/x", Err: cause}).Error())
}
