package desk

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joelkehle/objection-desk/internal/analysis"
	"github.com/joelkehle/objection-desk/internal/objection"
	"github.com/joelkehle/objection-desk/internal/render"
)

const script = "Q. What did you see?\nA. The witness saw the car.\nQ. Then what?\nA. I guess he was speeding."

func sampleLabeled() objection.LabeledScript {
	return objection.LabeledScript{
		"1": "The witness saw the car.",
		"2": "I guess he was speeding.",
	}
}

func sampleObjections() []objection.Objection {
	return []objection.Objection{
		{ID: "a", Sentence: "2", Type: "Speculation", Explanation: "Witness is guessing.", RiskLevel: objection.RiskHigh},
		{ID: "b", Sentence: "1", Type: "Relevance", Explanation: "Not relevant.", RiskLevel: objection.RiskRemoved},
	}
}

func newTestSession() *Session {
	return NewSession(render.NewRenderer(), nil)
}

func TestNewSessionIsIdle(t *testing.T) {
	s := newTestSession()
	st := s.Status()
	assert.Equal(t, analysis.StageIdle, st.Stage)
	assert.False(t, st.Running)
	assert.False(t, s.Document().SubmitEnabled)
}

func TestBeginRunRequiresDocument(t *testing.T) {
	s := newTestSession()
	_, err := s.BeginRun("r1")
	require.ErrorIs(t, err, ErrNoDocument)

	require.NoError(t, s.SetDocument("   \n", "blank.txt"))
	_, err = s.BeginRun("r1")
	require.ErrorIs(t, err, ErrNoDocument)
}

func TestSingleRunSlot(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.SetDocument(script, "trial.txt"))
	assert.True(t, s.Document().SubmitEnabled)

	text, err := s.BeginRun("r1")
	require.NoError(t, err)
	assert.Equal(t, script, text)
	assert.True(t, s.Status().Running)
	assert.False(t, s.Document().SubmitEnabled)

	_, err = s.BeginRun("r2")
	require.ErrorIs(t, err, ErrRunInProgress)
	require.ErrorIs(t, s.SetDocument("other", "x.txt"), ErrRunInProgress)
	require.ErrorIs(t, s.EditDocument("other"), ErrRunInProgress)
	require.ErrorIs(t, s.FailUpload("x.docx", "boom"), ErrRunInProgress)

	s.FinishRun(analysis.Result{StagesExecuted: []analysis.Stage{analysis.StageLabel}}, nil)
	st := s.Status()
	assert.False(t, st.Running)
	assert.Equal(t, analysis.StageComplete, st.Stage)
	assert.Equal(t, "Analysis complete!", st.Message)
	assert.Equal(t, "r1", st.RunID)
	assert.NotNil(t, st.FinishedAt)
	assert.True(t, s.Document().SubmitEnabled)
}

func TestFinishRunWithErrorKeepsPartialView(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.SetDocument(script, "trial.txt"))
	_, err := s.BeginRun("r1")
	require.NoError(t, err)

	s.Snapshot(sampleLabeled(), sampleObjections())
	s.FinishRun(analysis.Result{}, errors.New("verify: backend down"))

	st := s.Status()
	assert.Equal(t, analysis.StageFailed, st.Stage)
	assert.Equal(t, "Error: verify: backend down", st.Message)
	assert.Equal(t, "verify: backend down", st.Error)

	v, _ := s.View()
	require.Len(t, v.Cards, 2)
	_, objs := s.Objections()
	assert.Len(t, objs, 2)
}

func TestFailUploadClearsDocumentAndResults(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.SetDocument(script, "trial.txt"))
	s.Snapshot(sampleLabeled(), sampleObjections())

	require.NoError(t, s.FailUpload("bad.docx", "Error processing file: nope"))
	doc := s.Document()
	assert.Empty(t, doc.Text)
	assert.Equal(t, "bad.docx", doc.Filename)
	assert.Equal(t, "Error processing file: nope", doc.UploadError)
	assert.False(t, doc.SubmitEnabled)

	v, _ := s.View()
	assert.Empty(t, v.Cards)

	require.NoError(t, s.SetDocument(script, "trial.txt"))
	assert.Empty(t, s.Document().UploadError)
}

func TestEditDocumentKeepsFilename(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.SetDocument(script, "trial.txt"))
	require.NoError(t, s.EditDocument("edited"))
	doc := s.Document()
	assert.Equal(t, "edited", doc.Text)
	assert.Equal(t, "trial.txt", doc.Filename)
}

func TestBeginRunClearsPreviousResults(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.SetDocument(script, "trial.txt"))
	s.Snapshot(sampleLabeled(), sampleObjections())
	_, err := s.BeginRun("r2")
	require.NoError(t, err)

	v, _ := s.View()
	assert.Empty(t, v.Cards)
	assert.Equal(t, "Initializing analysis...", s.Status().Message)
}

func TestProgressUpdatesStatusLine(t *testing.T) {
	s := newTestSession()
	s.Progress(analysis.StageVerify, analysis.StageVerify.Message())
	st := s.Status()
	assert.Equal(t, analysis.StageVerify, st.Stage)
	assert.Equal(t, "Verifying objections...", st.Message)
}

func TestSnapshotRerendersFromOriginal(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.SetDocument(script, "trial.txt"))
	_, v0 := s.View()

	s.Snapshot(sampleLabeled(), sampleObjections()[:1])
	s.Snapshot(sampleLabeled(), sampleObjections())
	v, version := s.View()
	assert.Greater(t, version, v0)

	body := string(v.Body)
	assert.Equal(t, 1, strings.Count(body, `data-highlight-id="highlight-a"`))
	assert.Equal(t, 1, strings.Count(body, `data-highlight-id="highlight-b"`))
}

func TestShowRemovedAndActivate(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.SetDocument(script, "trial.txt"))
	s.Snapshot(sampleLabeled(), sampleObjections())

	v, _ := s.View()
	assert.False(t, v.ShowRemoved)
	assert.Equal(t, []string{"b"}, v.HiddenHighlights())

	_, before := s.View()
	v = s.SetShowRemoved(true)
	assert.Empty(t, v.HiddenHighlights())
	_, after := s.View()
	assert.Greater(t, after, before)

	_, err := s.Activate("missing")
	require.ErrorIs(t, err, ErrUnknownCard)

	v, err = s.Activate("a")
	require.NoError(t, err)
	assert.Equal(t, "highlight-a", v.ActiveHighlightID())

	// Active card survives a re-render with the same objections.
	s.Snapshot(sampleLabeled(), sampleObjections())
	v, _ = s.View()
	assert.Equal(t, "a", v.Active)
	assert.True(t, v.ShowRemoved)
}

func TestViewIsACopy(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.SetDocument(script, "trial.txt"))
	s.Snapshot(sampleLabeled(), sampleObjections())

	v, _ := s.View()
	v.Cards[0].Title = "mutated"
	again, _ := s.View()
	assert.NotEqual(t, "mutated", again.Cards[0].Title)
}

func TestActivateRefusesHiddenRemovedCard(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.SetDocument(script, "trial.txt"))
	s.Snapshot(sampleLabeled(), sampleObjections())

	_, err := s.Activate("b")
	require.ErrorIs(t, err, ErrUnknownCard)

	s.SetShowRemoved(true)
	v, err := s.Activate("b")
	require.NoError(t, err)
	assert.Equal(t, "highlight-b", v.ActiveHighlightID())

	s.SetShowRemoved(false)
	s.Snapshot(sampleLabeled(), sampleObjections())
	v, _ = s.View()
	assert.Empty(t, v.Active)
}
