package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"loom.sh/core/freshness"
	"loom.sh/core/report"
	"loom.sh/core/runner/models"
	"loom.sh/core/workflow"
)

// StartPipeline runs every workflow of a compiled pipeline in
// parallel and records the pipeline's final status. The context is
// the one handed out by the job queue; its cancellation is how a
// newer run of the same concurrency group preempts this one.
func (e *Engine) StartPipeline(ctx context.Context, id models.PipelineId, p *workflow.Pipeline) error {
	e.l.Info("starting all workflows in parallel", "pipeline", id)

	if err := e.db.MarkPipelineRunning(id, e.n); err != nil {
		return err
	}

	g := errgroup.Group{}
	for _, wf := range p.Workflows {
		g.Go(func() error {
			wid := models.WorkflowId{PipelineId: id, Name: wf.Name}
			return e.runWorkflow(ctx, wid, wf, p.Trigger)
		})
	}
	err := g.Wait()

	switch {
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		e.l.Info("pipeline cancelled", "id", id)
		return e.db.MarkPipelineCancelled(id, e.n)

	case errors.Is(err, ErrTimedOut):
		e.l.Error("pipeline timed out", "id", id)
		return e.db.MarkPipelineTimeout(id, e.n)

	case err != nil:
		e.l.Error("pipeline failed", "id", id, "error", err.Error())

		exitCode := -1
		var stepErr *StepError
		if errors.As(err, &stepErr) {
			exitCode = int(stepErr.ExitCode)
		}
		return e.db.MarkPipelineFailed(id, exitCode, err.Error(), e.n)
	}

	e.l.Info("pipeline success", "id", id)
	return e.db.MarkPipelineSuccess(id, e.n)
}

// runWorkflow drives one workflow: setup, the step loop, the
// clean-tree check and report publishing, then the final status
// transition. The first step failure is preserved; later steps are
// skipped unless marked always.
func (e *Engine) runWorkflow(ctx context.Context, wid models.WorkflowId, wf workflow.Workflow, tr workflow.TriggerMetadata) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Pipelines.WorkflowTimeoutDuration())
	defer cancel()

	if err := e.db.StatusRunning(wid, e.n); err != nil {
		return err
	}

	wfLogger, err := models.NewWorkflowLogger(e.cfg.Pipelines.LogDir, wid)
	if err != nil {
		return e.fail(wid, fmt.Errorf("creating workflow logger: %w", err))
	}
	defer wfLogger.Close()

	img := wf.Image
	if img == "" {
		img = e.cfg.Pipelines.DefaultImage
	}

	if err := e.SetupWorkflow(ctx, wid, img); err != nil {
		e.DestroyWorkflow(context.WithoutCancel(ctx), wid)
		return e.fail(wid, err)
	}
	defer e.DestroyWorkflow(context.WithoutCancel(ctx), wid)

	steps := setupSteps(wf, tr, e.cfg.Server.Dev)
	for _, s := range wf.Steps {
		steps = append(steps, models.Step{
			Name:        s.Name,
			Command:     s.Command,
			Environment: s.Environment,
			Always:      s.Always,
			Kind:        models.StepKindUser,
		})
	}

	failure := runSteps(ctx, steps, wfLogger, func(idx int, step models.Step) error {
		return e.RunStep(ctx, wid, step, idx, img, wf.Environment, wfLogger)
	})

	// the clean-tree check only applies to a workflow whose steps
	// all passed: drift detection on top of a failed run is noise
	if failure == nil && wf.Checks.CleanTree {
		failure = e.checkCleanTree(wid)
	}

	// reports are published regardless of the workflow outcome
	e.publishReports(wid, wf)

	switch statusFor(failure, ctx.Err()) {
	case models.StatusKindCancelled:
		return errors.Join(context.Canceled, e.db.StatusCancelled(wid, e.n))

	case models.StatusKindTimeout:
		return errors.Join(failure, e.db.StatusTimeout(wid, e.n))

	case models.StatusKindFailed:
		return e.fail(wid, failure)
	}

	return e.db.StatusSuccess(wid, e.n)
}

// runSteps drives the step loop. After a failure, later steps are
// skipped unless marked always; the first failure is preserved even
// when an always step fails too. Cancellation and timeouts end the
// loop outright, always steps included.
func runSteps(ctx context.Context, steps []models.Step, wfLogger *models.WorkflowLogger, run func(idx int, step models.Step) error) error {
	var failure error
	for idx, step := range steps {
		if failure != nil && !step.Always {
			wfLogger.Control(idx, step, models.StepStatusSkipped)
			continue
		}

		wfLogger.Control(idx, step, models.StepStatusRunning)

		err := run(idx, step)
		if err != nil {
			wfLogger.Control(idx, step, models.StepStatusFailed)

			if errors.Is(err, ErrTimedOut) || ctx.Err() != nil {
				failure = err
				break
			}

			if failure == nil {
				failure = err
			}
			continue
		}

		wfLogger.Control(idx, step, models.StepStatusPassed)
	}
	return failure
}

// statusFor maps a workflow's failure to its terminal status.
// Cancellation wins over a timeout: a run preempted by a newer run of
// its concurrency group was not slow, it was superseded.
func statusFor(failure, ctxErr error) models.StatusKind {
	switch {
	case errors.Is(failure, context.Canceled) || errors.Is(ctxErr, context.Canceled):
		return models.StatusKindCancelled

	case errors.Is(failure, ErrTimedOut) || errors.Is(ctxErr, context.DeadlineExceeded):
		return models.StatusKindTimeout

	case failure != nil:
		return models.StatusKindFailed
	}

	return models.StatusKindSuccess
}

func (e *Engine) fail(wid models.WorkflowId, err error) error {
	exitCode := int64(-1)
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		exitCode = stepErr.ExitCode
	}
	return errors.Join(err, e.db.StatusFailed(wid, err.Error(), exitCode, e.n))
}

func (e *Engine) checkCleanTree(wid models.WorkflowId) error {
	st, err := freshness.Check(e.WorkspacePath(wid))
	if err != nil {
		return fmt.Errorf("clean tree check: %w", err)
	}

	if !st.Clean {
		e.l.Error("workflow left the tree modified", "workflow", wid, "files", st.Files)
		return fmt.Errorf("%w: %s", ErrTreeDirty, strings.Join(st.Files, ", "))
	}

	e.l.Info("working tree clean", "workflow", wid)
	return nil
}

// publishReports parses the artifacts a workflow declared out of its
// workspace and writes the rendered Markdown summary next to the
// workflow log. A missing or malformed artifact is logged and
// dropped; the workflow's own result is never affected.
func (e *Engine) publishReports(wid models.WorkflowId, wf workflow.Workflow) {
	if wf.Report.JUnit == "" && wf.Report.Coverage == "" {
		return
	}

	workspace := e.WorkspacePath(wid)

	var tests *report.TestReport
	if wf.Report.JUnit != "" {
		tests, _ = e.parseJUnit(wid, filepath.Join(workspace, wf.Report.JUnit))
	}

	var coverage *report.CoverageReport
	if wf.Report.Coverage != "" {
		coverage, _ = e.parseCoverage(wid, filepath.Join(workspace, wf.Report.Coverage))
	}

	if tests == nil && coverage == nil {
		return
	}

	summary := report.RenderSummary(wf.Name, tests, coverage)
	path := models.SummaryFilePath(e.cfg.Pipelines.LogDir, wid)
	if err := os.WriteFile(path, []byte(summary), 0o644); err != nil {
		e.l.Error("failed to write summary", "workflow", wid, "error", err)
		return
	}

	e.l.Info("published summary", "workflow", wid, "path", path)
}

func (e *Engine) parseJUnit(wid models.WorkflowId, path string) (*report.TestReport, error) {
	tests, err := report.ParseJUnitFile(path)
	if err != nil {
		e.l.Warn("failed to parse test report", "workflow", wid, "path", path, "error", err)
		return nil, err
	}
	return tests, nil
}

func (e *Engine) parseCoverage(wid models.WorkflowId, path string) (*report.CoverageReport, error) {
	coverage, err := report.ParseCoberturaFile(path)
	if err != nil {
		e.l.Warn("failed to parse coverage report", "workflow", wid, "path", path, "error", err)
		return nil, err
	}
	return coverage, nil
}
