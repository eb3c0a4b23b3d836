// Package desk serves the single-page objection desk: upload, settings, run
// control, the annotated view and PDF export.
package desk

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/joelkehle/objection-desk/internal/analysis"
	"github.com/joelkehle/objection-desk/internal/intake"
	"github.com/joelkehle/objection-desk/internal/metrics"
	"github.com/joelkehle/objection-desk/internal/render"
	"github.com/joelkehle/objection-desk/internal/settings"
)

//go:embed web
var webFS embed.FS

const maxJSONBody = intake.MaxUploadBytes

type Options struct {
	Session  *Session
	Runner   *Runner
	Intake   *intake.Intake
	Settings settings.Store
	PDF      PDFRenderer
	Metrics  *metrics.Metrics
}

type Server struct {
	session  *Session
	runner   *Runner
	intake   *intake.Intake
	settings settings.Store
	pdf      PDFRenderer
	metrics  *metrics.Metrics
	static   fs.FS
}

func NewServer(o Options) http.Handler {
	static, err := fs.Sub(webFS, "web")
	if err != nil {
		panic(err)
	}
	s := &Server{
		session:  o.Session,
		runner:   o.Runner,
		intake:   o.Intake,
		settings: o.Settings,
		pdf:      o.PDF,
		metrics:  o.Metrics,
		static:   static,
	}

	mux := http.NewServeMux()
	s.handle(mux, "GET /{$}", s.handleIndex)
	mux.Handle("GET /static/", s.metrics.Middleware("/static/",
		http.StripPrefix("/static/", http.FileServerFS(static))))
	s.handle(mux, "POST /upload", s.handleUpload)
	s.handle(mux, "GET /document", s.handleGetDocument)
	s.handle(mux, "POST /document", s.handleEditDocument)
	s.handle(mux, "GET /settings", s.handleGetSettings)
	s.handle(mux, "POST /settings", s.handleSaveSettings)
	s.handle(mux, "POST /run", s.handleRun)
	s.handle(mux, "GET /status", s.handleStatus)
	s.handle(mux, "GET /view", s.handleView)
	s.handle(mux, "POST /view/show-removed", s.handleShowRemoved)
	s.handle(mux, "POST /view/active", s.handleActivate)
	s.handle(mux, "GET /export.pdf", s.handleExport)
	s.handle(mux, "GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", s.metrics.Handler())

	return requestIDMiddleware(accessLogMiddleware(recoverMiddleware(mux)))
}

func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	route := pattern
	if i := strings.IndexByte(pattern, ' '); i >= 0 {
		route = pattern[i+1:]
	}
	mux.Handle(pattern, s.metrics.Middleware(route, h))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	// Prevent stale frontend bundles from breaking the UI after deploys.
	w.Header().Set("Cache-Control", "no-store")
	http.ServeFileFS(w, r, s.static, "index.html")
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, intake.MaxUploadBytes+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, intake.MaxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}
	doc, err := s.intake.Accept(r.Context(), header.Filename, content)
	if err != nil {
		msg := "Error processing file: " + err.Error()
		zap.L().Warn("upload rejected",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.String("filename", header.Filename),
			zap.Error(err),
		)
		if ferr := s.session.FailUpload(header.Filename, msg); errors.Is(ferr, ErrRunInProgress) {
			writeError(w, http.StatusConflict, ferr.Error())
			return
		}
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":    msg,
			"document": s.session.Document(),
		})
		return
	}
	if err := s.session.SetDocument(doc.Text, header.Filename); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document": s.session.Document(),
		"kind":     doc.Kind,
		"method":   doc.Method,
		"cached":   doc.Cached,
	})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Document())
}

func (s *Server) handleEditDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.session.EditDocument(req.Text); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.session.Document())
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	cs, err := s.settings.Load(r.Context())
	if err != nil {
		zap.L().Error("load settings", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"settings":   cs,
		"side_label": cs.SideLabel(),
	})
}

type settingsRequest struct {
	CaseType   string   `json:"caseType"`
	Charges    []string `json:"charges"`
	Defendant  string   `json:"defendant"`
	Victim     string   `json:"victim"`
	CaseTheory string   `json:"caseTheory"`
	PartyRep   string   `json:"p_party_representative"`
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cs, err := settings.Submit(r.Context(), s.settings, settings.Form{
		CaseType:   req.CaseType,
		Charges:    req.Charges,
		Defendant:  req.Defendant,
		Victim:     req.Victim,
		CaseTheory: req.CaseTheory,
		PartyRep:   req.PartyRep,
	})
	var verr *settings.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":   verr.Error(),
			"missing": verr.Missing,
		})
		return
	case errors.Is(err, settings.ErrUnknownCaseType):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		zap.L().Error("save settings", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"settings":   cs,
		"side_label": cs.SideLabel(),
	})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var params analysis.FormParams
	if !decodeJSON(w, r, &params) {
		return
	}
	runID, err := s.runner.Start(r.Context(), params)
	switch {
	case errors.Is(err, analysis.ErrExpertFieldRequired), errors.Is(err, ErrNoDocument):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, ErrRunInProgress):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		zap.L().Error("start run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start analysis")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id": runID,
		"status": s.session.Status(),
	})
}

type statusResponse struct {
	RunStatus
	SubmitEnabled bool `json:"submit_enabled"`
	ViewVersion   int  `json:"view_version"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	_, version := s.session.View()
	writeJSON(w, http.StatusOK, statusResponse{
		RunStatus:     s.session.Status(),
		SubmitEnabled: s.session.Document().SubmitEnabled,
		ViewVersion:   version,
	})
}

type viewResponse struct {
	DocumentHTML    string   `json:"document_html"`
	CommentsHTML    string   `json:"comments_html"`
	ShowRemoved     bool     `json:"show_removed"`
	Active          string   `json:"active,omitempty"`
	ActiveHighlight string   `json:"active_highlight,omitempty"`
	Hidden          []string `json:"hidden_highlights,omitempty"`
	Unmatched       []string `json:"unmatched,omitempty"`
	Version         int      `json:"version"`
}

func (s *Server) writeView(w http.ResponseWriter, v render.View, version int) {
	doc, err := v.DocumentHTML()
	if err != nil {
		zap.L().Error("render document", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to render document")
		return
	}
	comments, err := v.CommentsHTML()
	if err != nil {
		zap.L().Error("render comments", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to render comments")
		return
	}
	writeJSON(w, http.StatusOK, viewResponse{
		DocumentHTML:    string(doc),
		CommentsHTML:    string(comments),
		ShowRemoved:     v.ShowRemoved,
		Active:          v.Active,
		ActiveHighlight: v.ActiveHighlightID(),
		Hidden:          v.HiddenHighlights(),
		Unmatched:       v.Unmatched,
		Version:         version,
	})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	v, version := s.session.View()
	s.writeView(w, v, version)
}

func (s *Server) handleShowRemoved(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Show bool `json:"show"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	s.session.SetShowRemoved(req.Show)
	v, version := s.session.View()
	s.writeView(w, v, version)
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := s.session.Activate(req.ID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	v, version := s.session.View()
	s.writeView(w, v, version)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.pdf == nil {
		writeError(w, http.StatusServiceUnavailable, "pdf renderer unavailable")
		return
	}
	cs, err := s.settings.Load(r.Context())
	if err != nil {
		zap.L().Error("load settings", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	v, _ := s.session.View()
	doc, err := v.DocumentHTML()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to render document")
		return
	}
	comments, err := v.CommentsHTML()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to render comments")
		return
	}
	filename := s.session.Document().Filename
	pdf, err := s.pdf.Render(r.Context(), Export{
		Filename:     filename,
		Settings:     cs,
		DocumentHTML: doc,
		CommentsHTML: comments,
		GeneratedAt:  time.Now(),
	})
	if err != nil {
		zap.L().Error("render pdf failed",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to render pdf")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFilename(filename)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

// exportFilename derives "<base>-objections.pdf" from the uploaded name.
func exportFilename(uploaded string) string {
	base := strings.TrimSpace(uploaded)
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return sanitizeFilename(base) + "-objections.pdf"
}

func sanitizeFilename(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "script"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, v)
}
