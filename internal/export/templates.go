package export

import (
	"bytes"
	"html/template"
)

var boardTemplate = template.Must(template.New("board").Funcs(template.FuncMap{
	"tagStyle": func(hex string) template.CSS {
		return template.CSS("background:" + hex)
	},
}).Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Name}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.5; max-width: 800px; margin: 2rem auto; color: #222; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .list { margin-top: 2rem; }
    .card { border: 1px solid #ddd; border-radius: 4px; padding: 0.75rem 1rem; margin: 0.75rem 0; page-break-inside: avoid; }
    .tag { display: inline-block; padding: 0 0.5rem; border-radius: 3px; font-size: 0.8em; margin-right: 0.25rem; }
    .done { text-decoration: line-through; color: #888; }
    .comment { background: #f5f5f5; padding: 0.5rem; margin: 0.5rem 0; border-left: 3px solid #67b5fd; }
  </style>
</head>
<body>
  <h1>{{.Name}}</h1>
  {{if .Description}}<p>{{.Description}}</p>{{end}}
  <div class="meta">{{.Author}} | exported {{.ExportedAt.Format "Jan 2, 2006 15:04 MST"}}</div>
  {{if .Tags}}<p>{{range .Tags}}<span class="tag" style="{{tagStyle .Hex}}">{{.Name}}</span>{{end}}</p>{{end}}
  {{range .Lists}}
  <div class="list">
    <h2>{{.Name}}</h2>
    {{range .Cards}}
    <div class="card">
      <h3>{{.Name}}</h3>
      {{if .Tags}}<p>{{range .Tags}}<span class="tag" style="{{tagStyle .Hex}}">{{.Name}}</span>{{end}}</p>{{end}}
      {{if .Description}}<p>{{.Description}}</p>{{end}}
      {{if .Participants}}<p><strong>Participants:</strong> {{range $i, $p := .Participants}}{{if $i}}, {{end}}{{$p}}{{end}}</p>{{end}}
      {{if .Checklist}}<ul>{{range .Checklist}}<li{{if .Done}} class="done"{{end}}>{{.Text}}</li>{{end}}</ul>{{end}}
      {{range .Comments}}<div class="comment"><strong>{{.Author}}</strong> {{.PubDate.Format "Jan 2, 2006"}}{{if .Edited}} (edited){{end}}<br>{{.Text}}</div>{{end}}
    </div>
    {{else}}
    <p class="meta">No cards</p>
    {{end}}
  </div>
  {{end}}
</body>
</html>`))

// RenderBoardHTML renders a snapshot as a standalone HTML page.
func RenderBoardHTML(snap Snapshot) (string, error) {
	var buf bytes.Buffer
	if err := boardTemplate.Execute(&buf, snap); err != nil {
		return "", err
	}
	return buf.String(), nil
}
