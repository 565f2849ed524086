package report

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuemby/crater/pkg/results"
)

// DirArtifactStore persists each experiment's rendered report as a single
// file under Root, named after the experiment. The minimal default
// ArtifactStore; spec.md §1 leaves artifact retention out of scope.
type DirArtifactStore struct {
	Root string
	// BaseURL, if set, is prefixed to the artifact's relative path to
	// build the URL handed to the completion notification (e.g. an
	// externally reachable address for Root). Left empty, URL falls back
	// to the local filesystem path.
	BaseURL string
}

// NewDirArtifactStore returns a DirArtifactStore rooted at dir, creating
// it if necessary.
func NewDirArtifactStore(dir string) *DirArtifactStore {
	_ = os.MkdirAll(dir, 0o755)
	return &DirArtifactStore{Root: dir}
}

func (d *DirArtifactStore) Put(experiment string, artifact []byte) error {
	path := filepath.Join(d.Root, experiment+".html")
	if err := os.WriteFile(path, artifact, 0o644); err != nil {
		return fmt.Errorf("write report artifact: %w", err)
	}
	return nil
}

// URL returns the address a human should open to view experiment's
// rendered report.
func (d *DirArtifactStore) URL(experiment string) string {
	name := experiment + ".html"
	if d.BaseURL != "" {
		return strings.TrimSuffix(d.BaseURL, "/") + "/" + name
	}
	return filepath.Join(d.Root, name)
}

const reportTemplate = `<!DOCTYPE html>
<html>
<head><title>{{.Experiment}}</title></head>
<body>
<h1>{{.Experiment}}</h1>
<table border="1">
<tr><th>Package</th><th>Toolchain</th><th>Outcome</th></tr>
{{range .Rows}}<tr><td>{{.Package}}</td><td>{{.Toolchain}}</td><td>{{.Outcome}}</td></tr>
{{end}}
</table>
</body>
</html>
`

// HTMLRenderer is the minimal default Renderer: a single HTML page
// listing every recorded (package, toolchain, outcome) row for an
// experiment. Its exact markup is out of scope per spec.md §1; this
// exists only so the repository runs end to end.
type HTMLRenderer struct {
	tmpl *template.Template
}

// NewHTMLRenderer parses the built-in report template once.
func NewHTMLRenderer() (*HTMLRenderer, error) {
	tmpl, err := template.New("report").Parse(reportTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse report template: %w", err)
	}
	return &HTMLRenderer{tmpl: tmpl}, nil
}

type reportRow struct {
	Package   string
	Toolchain string
	Outcome   string
}

type reportData struct {
	Experiment string
	Rows       []reportRow
}

// Render implements Renderer by walking every result recorded for
// experiment and filling the built-in HTML template.
func (r *HTMLRenderer) Render(ctx context.Context, experiment string, store *results.Store) ([]byte, error) {
	rows, err := store.ForExperiment(experiment)
	if err != nil {
		return nil, fmt.Errorf("list results for %s: %w", experiment, err)
	}

	data := reportData{Experiment: experiment}
	for _, row := range rows {
		data.Rows = append(data.Rows, reportRow{
			Package:   row.Package.Key(),
			Toolchain: row.Toolchain.Key(),
			Outcome:   string(row.Outcome),
		})
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("execute report template: %w", err)
	}
	return buf.Bytes(), nil
}
