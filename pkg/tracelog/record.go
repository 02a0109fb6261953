// Copyright 2025 Author(s) of MCP Any
// SPDX-License-Identifier: Apache-2.0

package tracelog

import (
	"strings"
	"time"
)

// Direction marks which way a traced record travelled.
type Direction string

const (
	// DirectionIncoming marks a request received by the server.
	DirectionIncoming Direction = "<-"
	// DirectionOutgoing marks a response sent back to the client.
	DirectionOutgoing Direction = "->"
	// DirectionNeutral marks a record that is neither a request nor a response.
	DirectionNeutral Direction = "--"
)

const (
	// TimestampLayout is the per-record timestamp format (yyyy.MM.dd hh:mm:ss.zzz).
	TimestampLayout = "2006.01.02 15:04:05.000"
	// RotationLayout is the timestamp format embedded in rotated file names.
	RotationLayout = "2006-01-02_15-04-05"
	// Extension is the file extension of every trace log file.
	Extension = ".log"
)

// String returns the direction marker, defaulting to DirectionNeutral.
func (d Direction) String() string {
	if d == "" {
		return string(DirectionNeutral)
	}
	return string(d)
}

// FormatRecords turns a payload into log lines. The payload is split on "\n";
// every fragment becomes its own record carrying the same timestamp and
// direction prefix. The returned lines carry no trailing newline.
func FormatRecords(ts time.Time, dir Direction, payload string) []string {
	prefix := ts.Format(TimestampLayout) + " " + dir.String() + " "
	fragments := strings.Split(payload, "\n")
	records := make([]string, len(fragments))
	for i, fragment := range fragments {
		records[i] = prefix + fragment
	}
	return records
}
