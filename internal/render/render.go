// Package render turns a labeled script and its objection records into the
// annotated document view and the parallel list of comment cards.
package render

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"go.uber.org/zap"

	"github.com/joelkehle/objection-desk/internal/locator"
	"github.com/joelkehle/objection-desk/internal/objection"
)

type Options struct {
	ShowRemoved bool
	Active      string
}

type Card struct {
	ObjectionID            string
	Title                  string
	ExplanationHTML        template.HTML
	RiskLevel              string
	RiskExplanationHTML    template.HTML
	ResponseHTML           template.HTML
	HasResponse            bool
	ResponseControlVisible bool
	Highlighted            bool
	Hidden                 bool
	Active                 bool
}

type Highlight struct {
	ObjectionID string
	HighlightID string
	RiskLevel   string
	Count       int
	Hidden      bool
	Active      bool
}

// View is one rendered state of the document and comment list. Visibility and
// activation can be changed on a View without re-running text matching.
type View struct {
	Body        template.HTML
	Cards       []Card
	Highlights  []Highlight
	Unmatched   []string
	ShowRemoved bool
	Active      string
}

type Renderer struct {
	md goldmark.Markdown
}

func NewRenderer() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
		),
	}
}

func HighlightID(objectionID string) string { return "highlight-" + objectionID }

// Render rebuilds the view from the pristine original text. Rendering the same
// inputs twice yields identical output.
func (r *Renderer) Render(original string, labeled objection.LabeledScript, objs []objection.Objection, opts Options) View {
	v := View{ShowRemoved: opts.ShowRemoved}
	content := html.EscapeString(original)

	for _, o := range objs {
		v.Cards = append(v.Cards, r.card(o))
	}

	for i, o := range objs {
		if o.Sentence.Empty() {
			zap.L().Debug("objection has no sentence reference", zap.String("objection_id", o.ID))
			continue
		}
		text, ok := labeled.Text(o.Sentence)
		if !ok {
			zap.L().Debug("sentence missing from labeled script",
				zap.String("objection_id", o.ID),
				zap.String("sentence", string(o.Sentence)),
			)
			v.Unmatched = append(v.Unmatched, o.ID)
			continue
		}
		needle := html.EscapeString(text)
		if !locator.Locate(content, needle) {
			zap.L().Debug("sentence text not found in document",
				zap.String("objection_id", o.ID),
				zap.String("text", text),
			)
			v.Unmatched = append(v.Unmatched, o.ID)
			continue
		}
		var n int
		content, n = locator.InsertHighlightAll(content, needle, spanWrapper(o))
		if n == 0 {
			v.Unmatched = append(v.Unmatched, o.ID)
			continue
		}
		v.Cards[i].Highlighted = true
		v.Highlights = append(v.Highlights, Highlight{
			ObjectionID: o.ID,
			HighlightID: HighlightID(o.ID),
			RiskLevel:   o.RiskLabel(),
			Count:       n,
		})
	}

	v.Body = template.HTML(content)
	v.SetShowRemoved(opts.ShowRemoved)
	if opts.Active != "" {
		v.Activate(opts.Active)
	}
	return v
}

func spanWrapper(o objection.Objection) func(string) string {
	class := "highlighted-text"
	if o.RiskLevel != "" {
		class += " risk-" + string(o.RiskLevel)
	}
	open := fmt.Sprintf(`<span class="%s" data-highlight-id="%s" data-objection-id="%s" data-risk-level="%s">`,
		html.EscapeString(class),
		html.EscapeString(HighlightID(o.ID)),
		html.EscapeString(o.ID),
		html.EscapeString(o.RiskLabel()),
	)
	return func(matched string) string {
		return open + matched + "</span>"
	}
}

func (r *Renderer) card(o objection.Objection) Card {
	title := o.Title
	if title == "" {
		title = o.Type
		if o.IsHearsay() && o.HearsayAnalysis != nil && o.HearsayAnalysis.Type != "" {
			title = o.HearsayAnalysis.Type
		}
	}
	explanation := o.Explanation
	if o.HearsayAnalysis != nil && o.HearsayAnalysis.ExceptionType != "" {
		explanation = "Exception: " + o.HearsayAnalysis.ExceptionType + "\n\n" + explanation
	}
	response := o.Response
	if response == "" && o.HearsayAnalysis != nil {
		response = o.HearsayAnalysis.Response
	}
	c := Card{
		ObjectionID:     o.ID,
		Title:           title,
		ExplanationHTML: r.markdown(explanation),
		RiskLevel:       string(o.RiskLevel),
		HasResponse:     strings.TrimSpace(response) != "",
	}
	if o.RiskExplanation != "" {
		c.RiskExplanationHTML = r.markdown(o.RiskExplanation)
	}
	if c.HasResponse {
		c.ResponseHTML = r.markdown(response)
		c.ResponseControlVisible = true
	}
	return c
}

func (r *Renderer) markdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		zap.L().Warn("markdown convert failed", zap.Error(err))
		return template.HTML("<p>" + html.EscapeString(src) + "</p>")
	}
	return template.HTML(buf.String())
}

// SetShowRemoved flips visibility of Removed cards and highlights.
func (v *View) SetShowRemoved(show bool) {
	v.ShowRemoved = show
	for i := range v.Cards {
		v.Cards[i].Hidden = v.Cards[i].RiskLevel == string(objection.RiskRemoved) && !show
	}
	for i := range v.Highlights {
		v.Highlights[i].Hidden = v.Highlights[i].RiskLevel == string(objection.RiskRemoved) && !show
	}
	if v.Active != "" && v.cardHidden(v.Active) {
		v.deactivate()
	}
}

func (v *View) cardHidden(id string) bool {
	for _, c := range v.Cards {
		if c.ObjectionID == id {
			return c.Hidden
		}
	}
	return false
}

func (v *View) deactivate() {
	v.Active = ""
	for i := range v.Cards {
		v.Cards[i].Active = false
		v.Cards[i].ResponseControlVisible = false
	}
	for i := range v.Highlights {
		v.Highlights[i].Active = false
	}
}

// Activate makes the card for id the only active card, reveals its sample
// response control and marks its highlight as the only active one. It reports
// false when no visible card carries that id.
func (v *View) Activate(id string) bool {
	found := false
	for i := range v.Cards {
		if v.Cards[i].ObjectionID == id && !v.Cards[i].Hidden {
			found = true
		}
	}
	if !found {
		return false
	}
	v.Active = id
	for i := range v.Cards {
		c := &v.Cards[i]
		c.Active = c.ObjectionID == id
		c.ResponseControlVisible = c.HasResponse && c.Active
	}
	for i := range v.Highlights {
		v.Highlights[i].Active = v.Highlights[i].ObjectionID == id
	}
	return true
}

// ActiveHighlightID returns the highlight to scroll into view, if any.
func (v *View) ActiveHighlightID() string {
	for _, h := range v.Highlights {
		if h.Active {
			return h.HighlightID
		}
	}
	return ""
}

func (v *View) VisibleCards() []Card {
	var out []Card
	for _, c := range v.Cards {
		if !c.Hidden {
			out = append(out, c)
		}
	}
	return out
}

func (v *View) HiddenHighlights() []string {
	var out []string
	for _, h := range v.Highlights {
		if h.Hidden {
			out = append(out, h.ObjectionID)
		}
	}
	return out
}
