package desk

import (
	"bytes"
	"context"
	"encoding/base64"
	"html/template"
	"os"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"

	"github.com/joelkehle/objection-desk/internal/settings"
)

// Export is everything printed into an annotated-script PDF.
type Export struct {
	Filename     string
	Settings     settings.CaseSettings
	DocumentHTML template.HTML
	CommentsHTML template.HTML
	GeneratedAt  time.Time
}

type PDFRenderer interface {
	Render(ctx context.Context, exp Export) ([]byte, error)
}

var exportTmpl = template.Must(template.New("export").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>{{if .Filename}}{{.Filename}}{{else}}Annotated script{{end}}</title>
<style>{{.Style}}
html,body,*{-webkit-print-color-adjust:exact !important;print-color-adjust:exact !important;}
body{background:#fff !important;padding:0.6rem;}
.export-layout{display:grid;grid-template-columns:3fr 2fr;gap:1rem;align-items:start;}
.comment.hidden,.comment[hidden]{display:none;}
.comment-response{display:block !important;}
.sample-response-btn{display:none !important;}
</style></head><body>
<header class="export-meta">
  {{- with .Settings}}
  <div><strong>Defendant:</strong> {{.Defendant}}</div>
  <div><strong>Case type:</strong> {{.EffectiveCaseType}}</div>
  {{- if .Charges}}<div><strong>Charges:</strong> {{range $i, $c := .Charges}}{{if $i}}, {{end}}{{$c}}{{end}}</div>{{end}}
  {{- end}}
  <div><strong>Generated:</strong> {{.GeneratedAt.Format "January 2, 2006 at 3:04 PM MST"}}</div>
</header>
<div class="export-layout">
  <section>{{.DocumentHTML}}</section>
  <aside class="comments">{{.CommentsHTML}}</aside>
</div>
</body></html>`))

// ChromiumPDFRenderer prints the annotated view with a headless Chromium.
type ChromiumPDFRenderer struct {
	chromePath string
	timeout    time.Duration
}

func NewChromiumPDFRenderer(chromePath string, timeout time.Duration) *ChromiumPDFRenderer {
	if chromePath == "" {
		chromePath = detectChromePath()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ChromiumPDFRenderer{chromePath: chromePath, timeout: timeout}
}

func (r *ChromiumPDFRenderer) Render(ctx context.Context, exp Export) ([]byte, error) {
	doc, err := buildExportHTML(exp)
	if err != nil {
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	}
	if r.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(r.chromePath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(timeoutCtx, append(chromedp.DefaultExecAllocatorOptions[:], opts...)...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	var pdf []byte
	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString(doc)
	err = chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			footer := `<div style="width:100%;text-align:center;font-size:9px;color:#666;">` +
				`Page <span class="pageNumber"></span> of <span class="totalPages"></span></div>`
			out, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithLandscape(true).
				WithDisplayHeaderFooter(true).
				WithHeaderTemplate(`<div></div>`).
				WithFooterTemplate(footer).
				WithPaperWidth(8.5).
				WithPaperHeight(11).
				WithMarginTop(0.5).
				WithMarginBottom(0.6).
				WithMarginLeft(0.4).
				WithMarginRight(0.4).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = out
			return nil
		}),
	)
	if err != nil {
		return nil, eris.Wrap(err, "print pdf")
	}
	return pdf, nil
}

func buildExportHTML(exp Export) ([]byte, error) {
	style, err := webFS.ReadFile("web/style.css")
	if err != nil {
		return nil, eris.Wrap(err, "read style.css")
	}
	if exp.GeneratedAt.IsZero() {
		exp.GeneratedAt = time.Now()
	}
	var buf bytes.Buffer
	err = exportTmpl.Execute(&buf, struct {
		Export
		Style template.CSS
	}{Export: exp, Style: template.CSS(style)})
	if err != nil {
		return nil, eris.Wrap(err, "build export html")
	}
	return buf.Bytes(), nil
}

func detectChromePath() string {
	for _, p := range []string{
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/usr/bin/google-chrome",
	} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
