package render

import (
	"bytes"
	"html/template"
)

var documentTmpl = template.Must(template.New("document").Parse(
	`<div id="editor" class="document" data-show-removed="{{.ShowRemoved}}"` +
		`{{with .ActiveHighlightID}} data-active-highlight="{{.}}"{{end}}>` +
		`{{.Body}}</div>`,
))

var commentsTmpl = template.Must(template.New("comments").Parse(`{{range .Cards}}
<div class="comment{{if .Active}} active-comment{{end}}" data-comment-id="comment-{{.ObjectionID}}" data-objection-id="{{.ObjectionID}}"{{if .RiskLevel}} data-risk-level="{{.RiskLevel}}"{{end}}{{if .Hidden}} hidden{{end}}>
  <div class="comment-header">
    <div class="comment-type">{{.Title}}</div>
    {{- if .RiskLevel}}
    <div class="risk-level-container">
      <span class="risk-level {{.RiskLevel}}" data-objection-id="{{.ObjectionID}}">{{.RiskLevel}}</span>
      {{- if .RiskExplanationHTML}}
      <div class="risk-tooltip" data-objection-id="{{.ObjectionID}}">{{.RiskExplanationHTML}}</div>
      {{- end}}
    </div>
    {{- end}}
  </div>
  <div class="comment-text" data-objection-id="{{.ObjectionID}}">{{.ExplanationHTML}}</div>
  {{- if .HasResponse}}
  <button type="button" class="sample-response-btn{{if not .ResponseControlVisible}} hidden{{end}}" data-objection-id="{{.ObjectionID}}">View Sample Response</button>
  <div class="comment-response hidden" data-objection-id="{{.ObjectionID}}">{{.ResponseHTML}}</div>
  {{- end}}
</div>
{{- end}}`))

// DocumentHTML renders the annotated transcript fragment.
func (v *View) DocumentHTML() (template.HTML, error) {
	var buf bytes.Buffer
	if err := documentTmpl.Execute(&buf, v); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

// CommentsHTML renders the comment card list in objection order.
func (v *View) CommentsHTML() (template.HTML, error) {
	var buf bytes.Buffer
	if err := commentsTmpl.Execute(&buf, v); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
