package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"loom.sh/core/log"
	"loom.sh/core/notifier"
	"loom.sh/core/runner/config"
	"loom.sh/core/runner/db"
	"loom.sh/core/runner/engine"
	"loom.sh/core/runner/models"
	"loom.sh/core/runner/queue"
	"loom.sh/core/workflow"
)

type Runner struct {
	db  *db.DB
	l   *slog.Logger
	n   *notifier.Notifier
	eng *engine.Engine
	jq  *queue.Queue
	cfg *config.Config
}

func Run(ctx context.Context, cmd *cli.Command) error {
	logger := log.FromContext(ctx)

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	d, err := db.Make(cfg.Server.DBPath)
	if err != nil {
		return fmt.Errorf("failed to setup db: %w", err)
	}

	n := notifier.New()

	eng, err := engine.New(ctx, cfg, d, &n)
	if err != nil {
		return err
	}

	jq := queue.NewQueue(cfg.Pipelines.QueueSize, cfg.Pipelines.Workers)

	runner := Runner{
		db:  d,
		l:   logger,
		n:   &n,
		eng: eng,
		jq:  jq,
		cfg: cfg,
	}

	// starts the job queue workers in the background
	jq.Start()
	defer jq.Stop()

	logger.Info("starting runner", "address", cfg.Server.ListenAddr)
	logger.Error("server error", "error", http.ListenAndServe(cfg.Server.ListenAddr, runner.Router()))

	return nil
}

func (rr *Runner) Router() http.Handler {
	mux := chi.NewRouter()
	mux.Use(rr.RequestLogger)

	mux.Post("/pipelines", rr.CreatePipeline)
	mux.Get("/pipelines", rr.GetPipelines)
	mux.Get("/pipelines/{pipeline}", rr.GetPipeline)
	mux.Get("/logs/{pipeline}/{workflow}", rr.Logs)
	mux.Get("/summary/{pipeline}/{workflow}", rr.Summary)
	mux.HandleFunc("/events", rr.Events)
	mux.Get("/health", rr.Health)

	return mux
}

type pipelineRequest struct {
	Trigger   workflow.TriggerMetadata `json:"trigger"`
	Workflows workflow.RawPipeline     `json:"workflows"`
}

type pipelineResponse struct {
	Id       models.PipelineId `json:"id,omitempty"`
	Errors   []string          `json:"errors,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
}

func renderDiagnostics(d workflow.Diagnostics) pipelineResponse {
	var resp pipelineResponse
	for _, e := range d.Errors {
		resp.Errors = append(resp.Errors, e.String())
	}
	for _, w := range d.Warnings {
		resp.Warnings = append(resp.Warnings, w.String())
	}
	return resp
}

// CreatePipeline compiles the submitted workflows against the
// trigger and enqueues the resulting pipeline. A trigger that no
// workflow matches produces diagnostics and no run.
func (rr *Runner) CreatePipeline(w http.ResponseWriter, r *http.Request) {
	l := rr.l.With("handler", "CreatePipeline")

	var req pipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	if req.Trigger.Repo == nil {
		http.Error(w, "missing repo in trigger metadata", http.StatusBadRequest)
		return
	}

	compiler := workflow.Compiler{Trigger: req.Trigger}
	pipeline := compiler.Compile(compiler.Parse(req.Workflows))

	if d := compiler.Diagnostics; !d.IsEmpty() {
		l.Info("compiled with diagnostics",
			"repo", req.Trigger.RepoName(),
			"errors", len(d.Errors),
			"warnings", len(d.Warnings),
		)
	}

	resp := renderDiagnostics(compiler.Diagnostics)

	if compiler.Diagnostics.IsErr() {
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}

	if len(pipeline.Workflows) == 0 {
		l.Info("no workflows matched trigger", "kind", req.Trigger.Kind, "repo", req.Trigger.RepoName())
		writeJSON(w, http.StatusOK, resp)
		return
	}

	id := models.PipelineId(uuid.NewString())

	err := rr.db.CreatePipeline(id, req.Trigger.RepoName(), req.Trigger.Ref(), pipeline.Policy.Group, rr.n)
	if err != nil {
		l.Error("failed to record pipeline", "error", err)
		http.Error(w, "failed to record pipeline", http.StatusInternalServerError)
		return
	}

	for _, wf := range pipeline.Workflows {
		wid := models.WorkflowId{PipelineId: id, Name: wf.Name}
		if err := rr.db.StatusPending(wid, rr.n); err != nil {
			l.Error("failed to record workflow status", "workflow", wid, "error", err)
			http.Error(w, "failed to record pipeline", http.StatusInternalServerError)
			return
		}
	}

	ok := rr.jq.Enqueue(queue.Job{
		Group:            pipeline.Policy.Group,
		CancelInProgress: pipeline.Policy.CancelInProgress,
		Run: func(ctx context.Context) error {
			return rr.eng.StartPipeline(ctx, id, &pipeline)
		},
		OnFail: func(jobError error) {
			l.Error("pipeline run failed", "id", id, "error", jobError)
		},
	})
	if !ok {
		l.Error("failed to enqueue pipeline: queue is full", "id", id)

		// the pipeline was recorded before enqueueing; without this
		// it would sit pending forever with no job to advance it
		if err := rr.db.MarkPipelineFailed(id, -1, "queue is full", rr.n); err != nil {
			l.Error("failed to mark pipeline failed", "id", id, "error", err)
		}
		for _, wf := range pipeline.Workflows {
			wid := models.WorkflowId{PipelineId: id, Name: wf.Name}
			if err := rr.db.StatusFailed(wid, "queue is full", -1, rr.n); err != nil {
				l.Error("failed to record workflow status", "workflow", wid, "error", err)
			}
		}

		http.Error(w, "queue is full", http.StatusServiceUnavailable)
		return
	}

	l.Info("pipeline enqueued", "id", id, "group", pipeline.Policy.Group, "workflows", len(pipeline.Workflows))

	resp.Id = id
	writeJSON(w, http.StatusAccepted, resp)
}

func (rr *Runner) GetPipelines(w http.ResponseWriter, r *http.Request) {
	cursor := r.URL.Query().Get("cursor")

	pipelines, err := rr.db.GetPipelines(cursor)
	if err != nil {
		rr.l.Error("failed to list pipelines", "error", err)
		http.Error(w, "failed to list pipelines", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, pipelines)
}

func (rr *Runner) GetPipeline(w http.ResponseWriter, r *http.Request) {
	id := models.PipelineId(chi.URLParam(r, "pipeline"))

	pipeline, err := rr.db.GetPipeline(id)
	if err != nil {
		http.Error(w, "pipeline not found", http.StatusNotFound)
		return
	}

	statuses, err := rr.db.GetWorkflowStatuses(id)
	if err != nil {
		rr.l.Error("failed to fetch workflow statuses", "id", id, "error", err)
		http.Error(w, "failed to fetch workflow statuses", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Pipeline  db.Pipeline                   `json:"pipeline"`
		Workflows map[string]models.StatusEvent `json:"workflows"`
	}{pipeline, statuses})
}

// Logs serves a workflow's JSON-lines log file.
func (rr *Runner) Logs(w http.ResponseWriter, r *http.Request) {
	wid := models.WorkflowId{
		PipelineId: models.PipelineId(chi.URLParam(r, "pipeline")),
		Name:       chi.URLParam(r, "workflow"),
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	http.ServeFile(w, r, models.LogFilePath(rr.cfg.Pipelines.LogDir, wid))
}

// Summary serves the rendered Markdown run summary of a workflow.
func (rr *Runner) Summary(w http.ResponseWriter, r *http.Request) {
	wid := models.WorkflowId{
		PipelineId: models.PipelineId(chi.URLParam(r, "pipeline")),
		Name:       chi.URLParam(r, "workflow"),
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	http.ServeFile(w, r, models.SummaryFilePath(rr.cfg.Pipelines.LogDir, wid))
}

func (rr *Runner) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
