package fetch

import (
	"bytes"
	"html/template"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"
)

var listingTemplate = template.Must(template.New("listing").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="robots" content="noindex">
<title>Index of {{.Path}}</title>
</head>
<body>
<h1>Index of {{.Path}}</h1>
<ul>
{{- if .Parent}}
<li><a class="parent" href="{{.Parent}}">..</a></li>
{{- end}}
{{- range .Entries}}
<li><a class="{{if .Dir}}dir{{else}}file{{end}}" href="{{.Href}}">{{.Name}}{{if .Dir}}/{{end}}</a> {{if not .Dir}}<span class="size">{{.Size}}</span> {{end}}<span class="modified">{{.Modified}}</span></li>
{{- end}}
</ul>
</body>
</html>
`))

type listingRow struct {
	Name     string
	Href     string
	Dir      bool
	Size     int64
	Modified string
}

// renderListing produces the HTML index page of a directory
// Entries link to absolute URLs below base; directories sort before files
func renderListing(base *url.URL, entries []remoteEntry) ([]byte, error) {
	dirPath := base.Path
	if dirPath == "" {
		dirPath = "/"
	}
	if !strings.HasSuffix(dirPath, "/") {
		dirPath += "/"
	}

	sorted := append([]remoteEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Dir != sorted[j].Dir {
			return sorted[i].Dir
		}
		return sorted[i].Name < sorted[j].Name
	})

	rows := make([]listingRow, 0, len(sorted))
	for _, e := range sorted {
		if e.Name == "" || e.Name == "." || e.Name == ".." {
			continue
		}
		child := *base
		child.Path = dirPath + e.Name
		if e.Dir {
			child.Path += "/"
		}
		child.RawPath = ""
		child.RawQuery = ""
		child.Fragment = ""
		row := listingRow{Name: e.Name, Href: child.String(), Dir: e.Dir, Size: e.Size}
		if !e.ModTime.IsZero() {
			row.Modified = e.ModTime.UTC().Format(time.RFC3339)
		}
		rows = append(rows, row)
	}

	data := struct {
		Path    string
		Parent  string
		Entries []listingRow
	}{Path: dirPath, Entries: rows}
	if dirPath != "/" {
		parent := *base
		parent.Path = path.Dir(strings.TrimSuffix(dirPath, "/"))
		if !strings.HasSuffix(parent.Path, "/") {
			parent.Path += "/"
		}
		parent.RawPath = ""
		parent.RawQuery = ""
		parent.Fragment = ""
		data.Parent = parent.String()
	}

	var buf bytes.Buffer
	if err := listingTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
