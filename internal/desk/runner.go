package desk

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/joelkehle/objection-desk/internal/analysis"
	"github.com/joelkehle/objection-desk/internal/settings"
)

// Runner starts analysis runs in the background and feeds their progress into
// the session.
type Runner struct {
	pipeline *analysis.Pipeline
	session  *Session
	settings settings.Store

	// base outlives individual requests; cancelling it aborts in-flight runs.
	base context.Context
	wg   sync.WaitGroup
}

func NewRunner(base context.Context, p *analysis.Pipeline, session *Session, store settings.Store) *Runner {
	return &Runner{pipeline: p, session: session, settings: store, base: base}
}

// Start validates the form parameters, claims the run slot and kicks off the
// pipeline. It returns the run id without waiting for the run to finish.
func (r *Runner) Start(ctx context.Context, params analysis.FormParams) (string, error) {
	if err := params.Validate(); err != nil {
		return "", err
	}
	cs, err := r.settings.Load(ctx)
	if err != nil {
		return "", eris.Wrap(err, "load case settings")
	}

	runID := uuid.NewString()
	script, err := r.session.BeginRun(runID)
	if err != nil {
		return "", err
	}
	zap.L().Info("analysis run started",
		zap.String("run_id", runID),
		zap.String("side", params.Side),
		zap.String("exam_type", params.ExamType),
		zap.String("witness_type", params.WitnessType),
	)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		res, err := r.pipeline.Run(r.base, analysis.RunInput{
			RunID:    runID,
			Script:   script,
			Params:   params,
			Settings: cs,
		}, r.session)
		r.session.FinishRun(res, err)
	}()
	return runID, nil
}

// Wait blocks until every started run has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}
