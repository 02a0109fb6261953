// Copyright 2025 Author(s) of MCP Any
// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestNewParams(t *testing.T) {
	p := NewParams(url.Values{
		"service": {"wms", "wfs"},
		"Request": {"GetMap"},
		"empty":   {},
		"map":     {"/data/project.qgs"},
	})

	assert.Equal(t, "wms", p.Get("SERVICE"), "first value wins")
	assert.Equal(t, "wms", p.Get("service"))
	assert.Equal(t, "GetMap", p.Get("request"))
	assert.True(t, p.Has("Map"))
	assert.False(t, p.Has("EMPTY"))
	assert.Empty(t, p.Get("missing"))
	assert.Equal(t, "MAP=%2Fdata%2Fproject.qgs&REQUEST=GetMap&SERVICE=wms", p.Encode())
}

func TestNewParams_CaseCollision(t *testing.T) {
	p := NewParams(url.Values{
		"service": {"lower"},
		"SERVICE": {"upper"},
	})
	if diff := cmp.Diff(Params{"SERVICE": "upper"}, p); diff != "" {
		t.Errorf("NewParams() mismatch (-want +got):\n%s", diff)
	}
}
