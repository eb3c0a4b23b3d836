package analysis

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joelkehle/objection-desk/internal/backend"
	"github.com/joelkehle/objection-desk/internal/objection"
	"github.com/joelkehle/objection-desk/internal/settings"
)

type mockBackend struct {
	calls []string

	labeled    objection.LabeledScript
	objections []objection.Objection
	expert     []objection.ExpertFinding
	verdicts   []objection.Verdict
	hearsay    []objection.HearsayResult
	character  []objection.CharacterResult
	failAt     string

	hearsayReq   backend.HearsayRequest
	characterReq backend.CharacterRequest
	verifyReq    backend.VerifyRequest
	labelReq     backend.LabelRequest
}

var errBoom = errors.New("backend exploded")

func (m *mockBackend) call(name string) error {
	m.calls = append(m.calls, name)
	if m.failAt == name {
		return errBoom
	}
	return nil
}

func (m *mockBackend) LabelScript(_ context.Context, req backend.LabelRequest) (objection.LabeledScript, error) {
	m.labelReq = req
	return m.labeled, m.call("label")
}

func (m *mockBackend) IdentifyObjections(context.Context, backend.IdentifyRequest) ([]objection.Objection, error) {
	return m.objections, m.call("identify")
}

func (m *mockBackend) AnalyzeExpert(context.Context, backend.ExpertRequest) ([]objection.ExpertFinding, error) {
	return m.expert, m.call("expert")
}

func (m *mockBackend) VerifyObjections(_ context.Context, req backend.VerifyRequest) ([]objection.Verdict, error) {
	m.verifyReq = req
	return m.verdicts, m.call("verify")
}

func (m *mockBackend) AnalyzeHearsay(_ context.Context, req backend.HearsayRequest) ([]objection.HearsayResult, error) {
	m.hearsayReq = req
	return m.hearsay, m.call("hearsay")
}

func (m *mockBackend) AnalyzeCharacterEvidence(_ context.Context, req backend.CharacterRequest) ([]objection.CharacterResult, error) {
	m.characterReq = req
	return m.character, m.call("character")
}

type recorder struct {
	mu        sync.Mutex
	stages    []Stage
	messages  []string
	snapshots [][]objection.Objection
}

func (r *recorder) Progress(s Stage, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, s)
	r.messages = append(r.messages, msg)
}

func (r *recorder) Snapshot(_ objection.LabeledScript, objs []objection.Objection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, objs)
}

func fullBackend() *mockBackend {
	return &mockBackend{
		labeled: objection.LabeledScript{
			"1": "The witness saw the car.",
			"2": "My neighbor said he did it.",
			"3": "He has always been violent.",
		},
		objections: []objection.Objection{
			{ID: "a", Sentence: "2", Type: "Hearsay", Explanation: "out of court"},
			{ID: "b", Sentence: "3", Type: "Character Evidence", Explanation: "propensity"},
			{ID: "c", Sentence: "1", Type: "Speculation", Explanation: "guess"},
		},
		expert: []objection.ExpertFinding{{Conclusion: objection.Conclusion{1}, Admissible: false, Explanation: "no basis"}},
		verdicts: []objection.Verdict{
			{ID: "a", RiskLevel: objection.RiskHigh, Explanation: "strong"},
			{ID: "b", RiskLevel: objection.RiskLow, Explanation: "weak"},
			{ID: "c", RiskLevel: objection.RiskRemoved, Explanation: "not an objection"},
		},
		hearsay: []objection.HearsayResult{
			{ID: "a", HearsayType: "Statement Against Interest", Explanation: "against penal interest", Response: "Offered as a statement against interest."},
		},
		character: []objection.CharacterResult{
			{ID: "b", Type: "Improper Character Evidence", Explanation: "404(a)", Response: "Goes to motive."},
		},
	}
}

func caseSettings() settings.CaseSettings {
	return settings.CaseSettings{
		CaseType:   settings.CaseCriminal,
		Charges:    []string{"First Degree Murder"},
		Defendant:  "John Doe",
		Victim:     "Jane Roe",
		CaseTheory: "Misidentification",
		PartyRep:   "DA Smith",
	}
}

func TestRunExecutesAllStagesInOrder(t *testing.T) {
	b := fullBackend()
	rec := &recorder{}
	res, err := NewPipeline(b, nil).Run(context.Background(), RunInput{
		Script:   "Q. ...",
		Params:   FormParams{Side: "prosecution", ExamType: "direct", WitnessType: WitnessExpert, Witness: "Dr. Who", ExpertField: "toxicology"},
		Settings: caseSettings(),
	}, rec)
	require.NoError(t, err)

	assert.Equal(t, []string{"label", "identify", "expert", "verify", "hearsay", "character"}, b.calls)
	assert.Equal(t, []Stage{StageLabel, StageIdentify, StageExpert, StageVerify, StageHearsay, StageCharacter}, res.StagesExecuted)
	assert.Empty(t, res.StagesSkipped)
	assert.Equal(t, []Stage{StageLabel, StageIdentify, StageExpert, StageVerify, StageHearsay, StageCharacter, StageComplete}, rec.stages)
	assert.Equal(t, "Analysis complete!", rec.messages[len(rec.messages)-1])
	assert.Len(t, rec.snapshots, 5)
	assert.NotEmpty(t, res.RunID)

	byID := map[string]objection.Objection{}
	for _, o := range res.Objections {
		byID[o.ID] = o
	}
	require.Len(t, byID, 4)

	a := byID["a"]
	assert.Equal(t, "Statement Against Interest", a.Type)
	assert.Equal(t, "Statement Against Interest", a.Title)
	assert.Equal(t, objection.RiskHigh, a.RiskLevel)
	assert.Equal(t, "strong", a.RiskExplanation)
	require.NotNil(t, a.HearsayAnalysis)

	bb := byID["b"]
	assert.Equal(t, "Improper Character Evidence", bb.Type)
	assert.Equal(t, objection.RiskLow, bb.RiskLevel)
	assert.Equal(t, "Goes to motive.", bb.Response)

	e := byID["expert-1"]
	assert.Equal(t, objection.TypeImproperExpert, e.Type)
	assert.Equal(t, objection.RiskHigh, e.RiskLevel)
}

func TestRunSendsStageParameters(t *testing.T) {
	b := fullBackend()
	_, err := NewPipeline(b, nil).Run(context.Background(), RunInput{
		Script:   "Q. ...",
		Params:   FormParams{Side: "defense", ExamType: "cross", WitnessType: "lay witness", Witness: "Bob"},
		Settings: caseSettings(),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, backend.LabelRequest{Script: "Q. ...", CaseType: "criminal", Side: "defense", ExamType: "cross", WitnessType: "lay witness", Witness: "Bob"}, b.labelReq)
	require.Len(t, b.verifyReq.Objections, 3)
	assert.Equal(t, objection.VerificationItem{ID: "a", Type: "Hearsay", Sentence: "2", Explanation: "out of court"}, b.verifyReq.Objections[0])

	require.Len(t, b.hearsayReq.HearsaySentences, 1)
	assert.Equal(t, "a", b.hearsayReq.HearsaySentences[0].ID)
	assert.Equal(t, "DA Smith", b.hearsayReq.PartyRep)
	assert.Equal(t, "John Doe", b.hearsayReq.Defendant)

	require.Len(t, b.characterReq.CharacterObjections, 1)
	assert.True(t, b.characterReq.IsHomicide)
	assert.Equal(t, "Jane Roe", b.characterReq.Victim)
	assert.Equal(t, "Misidentification", b.characterReq.CaseTheory)
}

func TestConditionalStagesAreSkipped(t *testing.T) {
	b := fullBackend()
	b.objections = []objection.Objection{{ID: "c", Sentence: "1", Type: "Speculation"}}
	res, err := NewPipeline(b, nil).Run(context.Background(), RunInput{
		Script: "Q. ...",
		Params: FormParams{WitnessType: "lay witness"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"label", "identify", "verify"}, b.calls)
	assert.Equal(t, []Stage{StageExpert, StageHearsay, StageCharacter}, res.StagesSkipped)
}

func TestFailureAbortsRemainingStagesAndKeepsPartialResults(t *testing.T) {
	b := fullBackend()
	b.failAt = "verify"
	rec := &recorder{}
	res, err := NewPipeline(b, nil).Run(context.Background(), RunInput{
		Script: "Q. ...",
		Params: FormParams{WitnessType: "lay witness"},
	}, rec)

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StageVerify, se.Stage)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, []string{"label", "identify", "verify"}, b.calls)
	assert.Len(t, res.Objections, 3, "identify results stay available")
	assert.Equal(t, StageFailed, rec.stages[len(rec.stages)-1])
	assert.Contains(t, rec.messages[len(rec.messages)-1], "Error: verify: backend exploded")
}

func TestLabelFailureShowsNoPartialResults(t *testing.T) {
	b := fullBackend()
	b.failAt = "label"
	rec := &recorder{}
	res, err := NewPipeline(b, nil).Run(context.Background(), RunInput{Script: "Q. ..."}, rec)
	require.Error(t, err)
	assert.Empty(t, res.Objections)
	assert.Empty(t, rec.snapshots)
}

func TestExpertWithoutFieldFailsBeforeAnyCall(t *testing.T) {
	b := fullBackend()
	rec := &recorder{}
	_, err := NewPipeline(b, nil).Run(context.Background(), RunInput{
		Script: "Q. ...",
		Params: FormParams{WitnessType: WitnessExpert},
	}, rec)
	assert.ErrorIs(t, err, ErrExpertFieldRequired)
	assert.Empty(t, b.calls)
	assert.Equal(t, []Stage{StageFailed}, rec.stages)
}

func TestEmptyScriptIsRejected(t *testing.T) {
	b := fullBackend()
	_, err := NewPipeline(b, nil).Run(context.Background(), RunInput{Script: "  \n"}, nil)
	assert.ErrorIs(t, err, ErrEmptyScript)
	assert.Empty(t, b.calls)
}

func TestSnapshotsAreIsolatedFromLaterStages(t *testing.T) {
	b := fullBackend()
	rec := &recorder{}
	_, err := NewPipeline(b, nil).Run(context.Background(), RunInput{
		Script: "Q. ...",
		Params: FormParams{WitnessType: "lay witness"},
	}, rec)
	require.NoError(t, err)
	first := rec.snapshots[0]
	assert.Equal(t, "Hearsay", first[0].Type)
	assert.Empty(t, first[0].RiskLevel)
}

func TestStageHelpers(t *testing.T) {
	assert.True(t, StageVerify.Running())
	assert.False(t, StageComplete.Running())
	assert.True(t, StageFailed.Terminal())
	assert.Equal(t, "Verifying objections...", StageVerify.Message())
}
