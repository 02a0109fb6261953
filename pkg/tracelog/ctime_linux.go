// Copyright 2025 Author(s) of MCP Any
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package tracelog

import (
	"os"
	"syscall"
	"time"
)

// creationTime returns the inode change time, the closest thing to a creation
// time Linux exposes portably. Filesystems without stat data (in-memory ones)
// fall back to the modification time.
func creationTime(fi os.FileInfo) time.Time {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return time.Unix(int64(st.Ctim.Sec), int64(st.Ctim.Nsec)) //nolint:unconvert // int32 on 32-bit platforms
	}
	return fi.ModTime()
}
