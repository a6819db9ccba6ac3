package dispatch

import (
	"bytes"
	"fmt"
	"html/template"

	"cockpit-alerts/internal/alerts"
)

type renderBlock struct {
	Title   string
	Count   int
	Headers []string
	Rows    [][]string
}

type renderView struct {
	GeneratedAt string
	Total       int
	Blocks      []renderBlock
	Failed      []string
}

var emailTemplate = template.Must(template.New("email").Parse(`<html>
<body style="font-family: sans-serif">
<h2>Seller cockpit alerts</h2>
<p>Generated {{.GeneratedAt}} UTC. {{.Total}} active alert(s).</p>
{{- if not .Blocks}}
{{- if .Failed}}
<p>No active alerts in the categories that reported. {{len .Failed}} could not be checked.</p>
{{- else}}
<p>No active alerts. All clear.</p>
{{- end}}
{{- end}}
{{- range .Blocks}}
<h3>{{.Title}} ({{.Count}})</h3>
<table border="1" cellpadding="4" cellspacing="0">
<tr>{{range .Headers}}<th>{{.}}</th>{{end}}</tr>
{{- range .Rows}}
<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{- end}}
</table>
{{- end}}
{{- if .Failed}}
<p style="color: #888">Unavailable: {{range $i, $c := .Failed}}{{if $i}}, {{end}}{{$c}}{{end}}</p>
{{- end}}
</body>
</html>
`))

// Render builds the notification HTML: one block per category with a
// non-zero count, at most alerts.MaxSamples rows each.
func Render(snap alerts.Snapshot) (string, error) {
	view := renderView{
		GeneratedAt: snap.GeneratedAt.UTC().Format("2006-01-02 15:04"),
		Total:       snap.Total(),
	}
	for _, cs := range snap.Categories {
		if cs.Err != nil {
			view.Failed = append(view.Failed, string(cs.Category))
		}
		if cs.Count <= 0 {
			continue
		}
		view.Blocks = append(view.Blocks, buildBlock(cs))
	}

	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render email: %w", err)
	}
	return buf.String(), nil
}

func buildBlock(cs alerts.CategorySnapshot) renderBlock {
	block := renderBlock{Title: cs.Category.Title(), Count: cs.Count}
	for i, sample := range cs.Samples {
		if i >= alerts.MaxSamples {
			break
		}
		if block.Headers == nil {
			for _, f := range sample {
				block.Headers = append(block.Headers, f.Key)
			}
		}
		row := make([]string, 0, len(block.Headers))
		for _, h := range block.Headers {
			v, _ := sample.Get(h)
			row = append(row, v)
		}
		block.Rows = append(block.Rows, row)
	}
	return block
}

// Subject prefixes the configured subject with the alert total. A snapshot
// is only "all clear" when every category reported.
func Subject(base string, snap alerts.Snapshot) string {
	if base == "" {
		base = "Seller cockpit alerts"
	}
	total := snap.Total()
	failed := len(snap.Failed())
	switch {
	case failed > 0:
		return fmt.Sprintf("%s: %d active, %d unavailable", base, total, failed)
	case total == 0:
		return base + ": all clear"
	default:
		return fmt.Sprintf("%s: %d active", base, total)
	}
}
