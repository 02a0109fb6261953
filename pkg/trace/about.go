// Copyright 2025 Author(s) of MCP Any
// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/url"
	"strings"

	"github.com/tracerequests/core/pkg/appconsts"
	"github.com/tracerequests/core/pkg/consts"
	"github.com/valyala/fasttemplate"
)

// About is the document returned by the ABOUT command.
type About struct {
	Name               string `json:"name"`
	QgisMinimumVersion string `json:"qgisMinimumVersion"`
	Description        string `json:"description"`
	Version            string `json:"version"`
	TraceFilesPath     string `json:"traceFilesPath"`
	TracesURL          string `json:"tracesUrl"`
}

const aboutHTML = `<!DOCTYPE html>
<html>
<head><title>{{name}}</title></head>
<body>
<h1>{{name}} {{version}}</h1>
<p>{{description}}</p>
<dl>
<dt>Minimum QGIS version</dt><dd>{{qgisMinimumVersion}}</dd>
<dt>Trace files path</dt><dd>{{traceFilesPath}}</dd>
</dl>
<p><a href="{{tracesUrl}}">Current trace file</a></p>
</body>
</html>
`

var aboutTemplate = fasttemplate.New(aboutHTML, "{{", "}}")

func (c *Controller) about(req *Request, resp Response) {
	doc := About{
		Name:               appconsts.PluginName,
		QgisMinimumVersion: appconsts.MinimumHostVersion,
		Description:        appconsts.Description,
		Version:            appconsts.Version,
		TraceFilesPath:     c.TraceFilesPath(),
		TracesURL:          tracesURL(req),
	}

	resp.Clear()
	format := req.Params.Get(ParamFormat)
	if strings.EqualFold(format, "html") || strings.EqualFold(format, "text/html") {
		body, err := renderAboutHTML(doc)
		if err == nil {
			resp.SetHeader(consts.HeaderContentType, consts.ContentTypeTextHTML)
			resp.AppendBody([]byte(body))
			return
		}
		c.log.Error("Failed to render about page, falling back to JSON", "error", err)
	}

	body, err := json.MarshalIndent(doc, "", " ")
	if err != nil {
		c.log.Error("Failed to encode about document", "error", err)
		return
	}
	resp.SetHeader(consts.HeaderContentType, consts.ContentTypeApplicationJSON)
	resp.AppendBody(body)
}

func renderAboutHTML(doc About) (string, error) {
	fields := map[string]string{
		"name":               doc.Name,
		"qgisMinimumVersion": doc.QgisMinimumVersion,
		"description":        doc.Description,
		"version":            doc.Version,
		"traceFilesPath":     doc.TraceFilesPath,
		"tracesUrl":          doc.TracesURL,
	}
	return aboutTemplate.ExecuteFuncStringWithErr(func(w io.Writer, tag string) (int, error) {
		value, ok := fields[tag]
		if !ok {
			return 0, fmt.Errorf("unknown template tag %q", tag)
		}
		return w.Write([]byte(html.EscapeString(value)))
	})
}

// tracesURL links to GET_TRACES on the same endpoint. MAP is kept since QGIS
// Server needs it to pick the project.
func tracesURL(req *Request) string {
	query := url.Values{}
	query.Set(ParamService, ServiceName)
	query.Set(ParamCommand, CommandGetTraces)
	if m := req.Params.Get(ParamMap); m != "" {
		query.Set(ParamMap, m)
	}

	if req.URL == nil {
		return "?" + query.Encode()
	}
	u := *req.URL
	u.RawQuery = query.Encode()
	u.Fragment = ""
	return u.String()
}
