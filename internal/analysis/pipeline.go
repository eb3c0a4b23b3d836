// Package analysis drives the staged backend conversation for one script and
// merges every stage's findings into a single objection collection.
package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/joelkehle/objection-desk/internal/backend"
	"github.com/joelkehle/objection-desk/internal/metrics"
	"github.com/joelkehle/objection-desk/internal/objection"
	"github.com/joelkehle/objection-desk/internal/settings"
)

var ErrEmptyScript = eris.New("no script text to analyze")

type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Backend is the set of analysis calls the pipeline makes.
type Backend interface {
	LabelScript(ctx context.Context, req backend.LabelRequest) (objection.LabeledScript, error)
	IdentifyObjections(ctx context.Context, req backend.IdentifyRequest) ([]objection.Objection, error)
	AnalyzeExpert(ctx context.Context, req backend.ExpertRequest) ([]objection.ExpertFinding, error)
	VerifyObjections(ctx context.Context, req backend.VerifyRequest) ([]objection.Verdict, error)
	AnalyzeHearsay(ctx context.Context, req backend.HearsayRequest) ([]objection.HearsayResult, error)
	AnalyzeCharacterEvidence(ctx context.Context, req backend.CharacterRequest) ([]objection.CharacterResult, error)
}

// Observer receives the status line and a read-only snapshot after every stage
// that changes the objection collection.
type Observer interface {
	Progress(stage Stage, message string)
	Snapshot(labeled objection.LabeledScript, objs []objection.Objection)
}

type RunInput struct {
	// RunID correlates logs and spans; one is generated when empty.
	RunID    string
	Script   string
	Params   FormParams
	Settings settings.CaseSettings
}

type Result struct {
	RunID          string                  `json:"run_id"`
	Labeled        objection.LabeledScript `json:"labeled_script,omitempty"`
	Objections     []objection.Objection   `json:"objections"`
	StagesExecuted []Stage                 `json:"stages_executed"`
	StagesSkipped  []Stage                 `json:"stages_skipped,omitempty"`
	StartedAt      time.Time               `json:"started_at"`
	FinishedAt     time.Time               `json:"finished_at"`
}

type Pipeline struct {
	backend Backend
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

func NewPipeline(b Backend, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		backend: b,
		metrics: m,
		tracer:  otel.Tracer("github.com/joelkehle/objection-desk/internal/analysis"),
	}
}

// Run executes the stages strictly in order. Any stage failure aborts the
// rest; the returned Result still carries whatever completed stages produced.
func (p *Pipeline) Run(ctx context.Context, in RunInput, obs Observer) (Result, error) {
	res := Result{RunID: in.RunID, StartedAt: time.Now()}
	if res.RunID == "" {
		res.RunID = uuid.NewString()
	}
	log := zap.L().With(zap.String("run_id", res.RunID))

	ctx, span := p.tracer.Start(ctx, "analysis.run", trace.WithAttributes(
		attribute.String("run.id", res.RunID),
		attribute.String("witness.type", in.Params.WitnessType),
	))
	defer span.End()

	err := p.run(ctx, in, obs, &res)
	res.FinishedAt = time.Now()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		emit(obs, StageFailed, "Error: "+err.Error())
		p.metrics.RecordRun(string(StageFailed))
		log.Warn("analysis run failed", zap.Error(err), zap.Any("stages_executed", res.StagesExecuted))
		return res, err
	}
	emit(obs, StageComplete, StageComplete.Message())
	p.metrics.RecordRun(string(StageComplete))
	log.Info("analysis run complete",
		zap.Int("objections", len(res.Objections)),
		zap.Any("stages_executed", res.StagesExecuted),
		zap.Any("stages_skipped", res.StagesSkipped),
		zap.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)),
	)
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, in RunInput, obs Observer, res *Result) error {
	if strings.TrimSpace(in.Script) == "" {
		return ErrEmptyScript
	}
	if err := in.Params.Validate(); err != nil {
		return err
	}
	cs := in.Settings
	caseType := cs.EffectiveCaseType()
	var (
		labeled objection.LabeledScript
		objs    []objection.Objection
	)
	snapshot := func() {
		res.Labeled = labeled
		res.Objections = objection.Clone(objs)
		if obs != nil {
			obs.Snapshot(labeled.Clone(), objection.Clone(objs))
		}
	}

	err := p.stage(ctx, obs, res, StageLabel, func(ctx context.Context) error {
		out, err := p.backend.LabelScript(ctx, backend.LabelRequest{
			Script:      in.Script,
			CaseType:    caseType,
			Side:        in.Params.Side,
			ExamType:    in.Params.ExamType,
			WitnessType: in.Params.WitnessType,
			Witness:     in.Params.Witness,
		})
		labeled = out
		return err
	})
	if err != nil {
		return err
	}

	err = p.stage(ctx, obs, res, StageIdentify, func(ctx context.Context) error {
		out, err := p.backend.IdentifyObjections(ctx, backend.IdentifyRequest{
			Script:        in.Script,
			LabeledScript: labeled,
			CaseType:      caseType,
			Side:          in.Params.Side,
			ExamType:      in.Params.ExamType,
			WitnessType:   in.Params.WitnessType,
			Witness:       in.Params.Witness,
		})
		objs = out
		return err
	})
	if err != nil {
		return err
	}
	snapshot()

	if in.Params.ExpertWitness() {
		err = p.stage(ctx, obs, res, StageExpert, func(ctx context.Context) error {
			findings, err := p.backend.AnalyzeExpert(ctx, backend.ExpertRequest{
				Script:        in.Script,
				LabeledScript: labeled,
				Field:         strings.TrimSpace(in.Params.ExpertField),
			})
			if err != nil {
				return err
			}
			objs = objection.AppendExpertFindings(objs, findings)
			return nil
		})
		if err != nil {
			return err
		}
		snapshot()
	} else {
		res.StagesSkipped = append(res.StagesSkipped, StageExpert)
	}

	err = p.stage(ctx, obs, res, StageVerify, func(ctx context.Context) error {
		verdicts, err := p.backend.VerifyObjections(ctx, backend.VerifyRequest{
			Objections: objection.VerificationItems(objs),
			Script:     in.Script,
		})
		if err != nil {
			return err
		}
		objs = objection.MergeVerification(objs, verdicts)
		return nil
	})
	if err != nil {
		return err
	}
	snapshot()

	if subset := objection.HearsaySubset(objs); len(subset) > 0 {
		err = p.stage(ctx, obs, res, StageHearsay, func(ctx context.Context) error {
			results, err := p.backend.AnalyzeHearsay(ctx, backend.HearsayRequest{
				HearsaySentences: subset,
				CaseType:         caseType,
				LabeledScript:    labeled,
				Defendant:        cs.Defendant,
				Side:             in.Params.Side,
				PartyRep:         cs.PartyRep,
			})
			if err != nil {
				return err
			}
			objs = objection.MergeHearsay(objs, results)
			return nil
		})
		if err != nil {
			return err
		}
		snapshot()
	} else {
		res.StagesSkipped = append(res.StagesSkipped, StageHearsay)
	}

	if subset := objection.CharacterSubset(objs); len(subset) > 0 {
		err = p.stage(ctx, obs, res, StageCharacter, func(ctx context.Context) error {
			results, err := p.backend.AnalyzeCharacterEvidence(ctx, backend.CharacterRequest{
				CharacterObjections: subset,
				LabeledScript:       labeled,
				Side:                in.Params.Side,
				CaseType:            caseType,
				IsHomicide:          cs.Homicide(),
				Defendant:           cs.Defendant,
				Victim:              cs.Victim,
				CaseTheory:          cs.CaseTheory,
			})
			if err != nil {
				return err
			}
			objs = objection.MergeCharacter(objs, results)
			return nil
		})
		if err != nil {
			return err
		}
		snapshot()
	} else {
		res.StagesSkipped = append(res.StagesSkipped, StageCharacter)
	}
	return nil
}

// stage announces s, runs fn inside a span and records its duration. Errors
// come back as *StageError.
func (p *Pipeline) stage(ctx context.Context, obs Observer, res *Result, s Stage, fn func(context.Context) error) error {
	emit(obs, s, s.Message())
	ctx, span := p.tracer.Start(ctx, "analysis.stage."+string(s))
	defer span.End()

	started := time.Now()
	err := fn(ctx)
	elapsed := time.Since(started)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.metrics.ObserveStage(string(s), "error", elapsed)
		return &StageError{Stage: s, Err: err}
	}
	p.metrics.ObserveStage(string(s), "ok", elapsed)
	zap.L().Debug("analysis stage complete",
		zap.String("stage", string(s)),
		zap.Duration("elapsed", elapsed.Round(time.Millisecond)),
	)
	res.StagesExecuted = append(res.StagesExecuted, s)
	return nil
}

func emit(obs Observer, s Stage, message string) {
	if obs != nil {
		obs.Progress(s, message)
	}
}
