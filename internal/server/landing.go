package server

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"

	"github.com/frederic-klein/stickler/internal/format"
	"github.com/frederic-klein/stickler/internal/index"
	"github.com/frederic-klein/stickler/internal/spec"
)

var landingTmpl = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>Gem index</title></head>
<body>
<h1>Gem index</h1>
<p>{{.Total}} specs, {{.Packages}} packages.</p>
<table>
<tr><th>Name</th><th>Version</th><th>Platform</th><th>Versions</th><th>Summary</th><th>PURL</th></tr>
{{- range .Latest}}
<tr><td>{{.Name}}</td><td>{{.Version}}</td><td>{{.Platform}}</td><td>{{.Versions}}</td><td>{{.Summary}}</td><td>{{.PURL}}</td></tr>
{{- end}}
</table>
</body>
</html>
`))

type landingData struct {
	Total    int
	Packages int
	Latest   []landingRow
}

// landingRow is a latest record plus the number of records under its name.
type landingRow struct {
	*spec.Record
	Versions int
}

func (s *Server) landing(w http.ResponseWriter, _ *http.Request, idx *index.Index, _ []string) error {
	var buf bytes.Buffer
	data := landingData{
		Total:    idx.Len(),
		Packages: len(idx.Names()),
	}
	for _, rec := range format.Sorted(idx.Latest()) {
		data.Latest = append(data.Latest, landingRow{Record: rec, Versions: len(idx.Versions(rec.Name))})
	}
	if err := landingTmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("rendering landing page: %w", err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err := w.Write(buf.Bytes())
	return err
}
