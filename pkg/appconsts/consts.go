// Copyright 2025 Author(s) of MCP Any
// SPDX-License-Identifier: Apache-2.0

package appconsts

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

const (
	// Name is the name of the trace requests server. This is used in help
	// messages and other user-facing output.
	Name = "tracerequests"

	// PluginName is the human readable name reported by the ABOUT command.
	PluginName = "Trace Requests"

	// Description is the description reported by the ABOUT command.
	Description = "A QGIS server plugin to trace requests."

	// MinimumHostVersion is the oldest QGIS Server release the tracer supports.
	MinimumHostVersion = "3.16"
)

// Version is the version of the trace requests server. This is a variable so
// it can be set at build time using ldflags.
var Version = "0.0.1"

// CheckHostVersion reports whether the given host (QGIS Server) version
// satisfies MinimumHostVersion. An empty version is accepted since the host
// version is not always known ahead of time.
func CheckHostVersion(version string) error {
	if version == "" {
		return nil
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("invalid host version %q: %w", version, err)
	}
	constraint, err := semver.NewConstraint(">= " + MinimumHostVersion)
	if err != nil {
		return fmt.Errorf("invalid minimum host version constraint: %w", err)
	}
	if !constraint.Check(v) {
		return fmt.Errorf("host version %s is older than the minimum supported version %s", version, MinimumHostVersion)
	}
	return nil
}
