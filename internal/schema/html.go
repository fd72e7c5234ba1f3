package schema

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"strings"
)

var allowedImageTypes = []string{"image/png", "image/jpeg"}

// DecodeDataURL returns the bytes and media type of a base64 image data URL.
func DecodeDataURL(raw string) ([]byte, string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "data:") {
		return nil, "", fmt.Errorf("not a data url")
	}
	meta, payload, ok := strings.Cut(raw[len("data:"):], ",")
	if !ok {
		return nil, "", fmt.Errorf("data url has no payload")
	}
	mediaType, encoding, _ := strings.Cut(meta, ";")
	if encoding != "base64" {
		return nil, "", fmt.Errorf("data url must be base64 encoded")
	}
	allowed := false
	for _, t := range allowedImageTypes {
		if mediaType == t {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, "", fmt.Errorf("unsupported image type %q", mediaType)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return data, mediaType, nil
}

var htmlTemplate = template.Must(template.New("document").Funcs(template.FuncMap{
	"trusted": func(s string) template.HTML { return template.HTML(s) },
	"image": func(s string) template.URL {
		if _, _, err := DecodeDataURL(s); err != nil {
			return ""
		}
		return template.URL(s)
	},
}).Parse(`<article class="copyright-form"{{if .Version}} data-version="{{.Version}}"{{end}}>
{{- if .Name}}
<h1>{{.Name}}</h1>
{{- end}}
{{- range .Blocks}}
<section class="section section-{{.Type}}{{if .ClassName}} {{.ClassName}}{{end}}"{{if .ID}} id="{{.ID}}"{{end}}>
{{- if .Title}}
<h2>{{.Title}}</h2>
{{- end}}
{{- if eq .Type "static_html"}}
{{trusted .HTML}}
{{- else if eq .Type "key_value_grid"}}
<dl class="kv-grid">
{{- range .Fields}}
<div class="kv-row{{if .Highlight}} highlight{{end}}"><dt>{{.Label}}</dt><dd class="{{if .Missing}}missing{{end}}{{if .Bold}} bold{{end}}{{if .Italic}} italic{{end}}">{{.Value}}</dd></div>
{{- end}}
</dl>
{{- else if eq .Type "dynamic_table"}}
<table>
<thead><tr>{{range .Table.Columns}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{- range .Table.Rows}}
<tr><th scope="row">{{.Label}}</th>{{range .Cells}}<td{{if .Missing}} class="missing"{{end}}>{{.Text}}</td>{{end}}</tr>
{{- end}}
</tbody>
</table>
{{- else if eq .Type "signature_grid"}}
<div class="signature-grid">
{{- range .Signatures}}
<div class="signature-slot slot-{{.State}}" data-slot="{{.Slot}}">
{{- if eq .State "signed"}}
{{- with image .Image}}<img src="{{.}}" alt="signature">{{end}}
<span class="signer">{{.Name}}</span><span class="date">{{.Date}}</span>
{{- else if eq .State "sign_action"}}
<a class="sign" href="{{.Action}}">Sign as {{.AuthorName}}</a>
{{- else if eq .State "not_signed"}}
<span class="not-signed">Not signed</span>
{{- else}}
<span class="empty">{{.Name}}</span>
{{- end}}
</div>
{{- end}}
</div>
{{- end}}
</section>
{{- end}}
</article>
`))

// EncodeHTML renders the document as an HTML fragment. Static markup was
// sanitized at render time; every other value is escaped here.
func EncodeHTML(doc *Document) (string, error) {
	if doc == nil {
		doc = &Document{}
	}
	buf := &bytes.Buffer{}
	if err := htmlTemplate.Execute(buf, doc); err != nil {
		return "", fmt.Errorf("encode html: %w", err)
	}
	return buf.String(), nil
}
