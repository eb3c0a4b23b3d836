package desk

import (
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/joelkehle/objection-desk/internal/analysis"
	"github.com/joelkehle/objection-desk/internal/metrics"
	"github.com/joelkehle/objection-desk/internal/objection"
	"github.com/joelkehle/objection-desk/internal/render"
)

var (
	ErrRunInProgress = eris.New("an analysis run is already in progress")
	ErrNoDocument    = eris.New("upload or paste a script before running the analysis")
	ErrUnknownCard   = eris.New("no visible comment card with that id")
)

type RunStatus struct {
	RunID          string           `json:"run_id,omitempty"`
	Stage          analysis.Stage   `json:"stage"`
	Message        string           `json:"message"`
	Running        bool             `json:"running"`
	Error          string           `json:"error,omitempty"`
	StartedAt      *time.Time       `json:"started_at,omitempty"`
	FinishedAt     *time.Time       `json:"finished_at,omitempty"`
	StagesExecuted []analysis.Stage `json:"stages_executed,omitempty"`
	StagesSkipped  []analysis.Stage `json:"stages_skipped,omitempty"`
}

// Session is the single owner of UI state: the working document, the latest
// objection snapshot, view toggles and the run status. All access goes through
// its methods.
type Session struct {
	mu sync.RWMutex

	renderer *render.Renderer
	metrics  *metrics.Metrics

	document    string
	filename    string
	uploadError string

	labeled     objection.LabeledScript
	objections  []objection.Objection
	showRemoved bool
	active      string
	view        render.View
	version     int

	status RunStatus
}

func NewSession(renderer *render.Renderer, m *metrics.Metrics) *Session {
	s := &Session{
		renderer: renderer,
		metrics:  m,
		status:   RunStatus{Stage: analysis.StageIdle, Message: analysis.StageIdle.Message()},
	}
	s.rerenderLocked()
	return s
}

type DocumentState struct {
	Text          string `json:"text"`
	Filename      string `json:"filename,omitempty"`
	UploadError   string `json:"upload_error,omitempty"`
	SubmitEnabled bool   `json:"submit_enabled"`
}

func (s *Session) Document() DocumentState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return DocumentState{
		Text:          s.document,
		Filename:      s.filename,
		UploadError:   s.uploadError,
		SubmitEnabled: s.submitEnabledLocked(),
	}
}

// SetDocument replaces the working text and drops results tied to the old
// text. It is refused while a run is using the current text.
func (s *Session) SetDocument(text, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setDocumentLocked(text, filename)
}

// EditDocument stores in-place edits without touching the filename.
func (s *Session) EditDocument(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setDocumentLocked(text, s.filename)
}

func (s *Session) setDocumentLocked(text, filename string) error {
	if s.status.Running {
		return ErrRunInProgress
	}
	s.document = text
	s.filename = filename
	s.uploadError = ""
	s.clearResultsLocked()
	s.rerenderLocked()
	return nil
}

// FailUpload clears the working text so a failed conversion can never be
// submitted against stale content.
func (s *Session) FailUpload(filename, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Running {
		return ErrRunInProgress
	}
	s.document = ""
	s.filename = filename
	s.uploadError = message
	s.clearResultsLocked()
	s.rerenderLocked()
	return nil
}

// BeginRun claims the single run slot and returns the text to analyze.
func (s *Session) BeginRun(runID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Running {
		return "", ErrRunInProgress
	}
	if strings.TrimSpace(s.document) == "" {
		return "", ErrNoDocument
	}
	now := time.Now()
	s.clearResultsLocked()
	s.rerenderLocked()
	s.status = RunStatus{
		RunID:     runID,
		Stage:     analysis.StageLabel,
		Message:   "Initializing analysis...",
		Running:   true,
		StartedAt: &now,
	}
	return s.document, nil
}

// Progress replaces the status line.
func (s *Session) Progress(stage analysis.Stage, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Stage = stage
	s.status.Message = message
}

// Snapshot swaps in a new objection collection and re-renders from the
// pristine document.
func (s *Session) Snapshot(labeled objection.LabeledScript, objs []objection.Objection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labeled = labeled
	s.objections = objs
	s.rerenderLocked()
}

// FinishRun releases the run slot. Rendered partial results stay in place.
func (s *Session) FinishRun(res analysis.Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.status.Running = false
	s.status.FinishedAt = &now
	s.status.StagesExecuted = res.StagesExecuted
	s.status.StagesSkipped = res.StagesSkipped
	if err != nil {
		s.status.Stage = analysis.StageFailed
		s.status.Error = err.Error()
		s.status.Message = "Error: " + err.Error()
		return
	}
	s.status.Stage = analysis.StageComplete
	s.status.Message = analysis.StageComplete.Message()
}

func (s *Session) Status() RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// SetShowRemoved toggles Removed cards and highlights without re-matching.
func (s *Session) SetShowRemoved(show bool) render.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.showRemoved = show
	s.view.SetShowRemoved(show)
	s.active = s.view.Active
	s.version++
	return s.copyViewLocked()
}

// Activate makes id the only active card and highlight. Hidden Removed cards
// cannot be activated.
func (s *Session) Activate(id string) (render.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.view.Activate(id) {
		return render.View{}, ErrUnknownCard
	}
	s.active = id
	s.version++
	return s.copyViewLocked(), nil
}

// View returns the current rendered state and its version, which changes on
// every re-render or toggle.
func (s *Session) View() (render.View, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyViewLocked(), s.version
}

func (s *Session) Objections() (objection.LabeledScript, []objection.Objection) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.labeled.Clone(), objection.Clone(s.objections)
}

func (s *Session) submitEnabledLocked() bool {
	return !s.status.Running && strings.TrimSpace(s.document) != ""
}

func (s *Session) clearResultsLocked() {
	s.labeled = nil
	s.objections = nil
	s.active = ""
}

func (s *Session) rerenderLocked() {
	s.view = s.renderer.Render(s.document, s.labeled, s.objections, render.Options{
		ShowRemoved: s.showRemoved,
		Active:      s.active,
	})
	if s.view.Active == "" {
		s.active = ""
	}
	s.metrics.RecordUnmatched(len(s.view.Unmatched))
	s.version++
}

func (s *Session) copyViewLocked() render.View {
	v := s.view
	v.Cards = append([]render.Card(nil), s.view.Cards...)
	v.Highlights = append([]render.Highlight(nil), s.view.Highlights...)
	v.Unmatched = append([]string(nil), s.view.Unmatched...)
	return v
}
