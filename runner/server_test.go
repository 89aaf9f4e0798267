package runner

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loom.sh/core/log"
	"loom.sh/core/notifier"
	"loom.sh/core/runner/db"
	"loom.sh/core/runner/models"
	"loom.sh/core/runner/queue"
	"loom.sh/core/workflow"
)

func testRunner() *Runner {
	return &Runner{
		l: log.New("test"),
	}
}

func postPipeline(t *testing.T, rr *Runner, payload any) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/pipelines", bytes.NewReader(body))
	w := httptest.NewRecorder()
	rr.CreatePipeline(w, req)
	return w
}

func pushPayload(workflows workflow.RawPipeline) pipelineRequest {
	return pipelineRequest{
		Trigger: workflow.TriggerMetadata{
			Kind: workflow.TriggerKindPush,
			Repo: &workflow.TriggerRepo{
				Name:          "acme/widgets",
				CloneURL:      "https://forge.example.com/acme/widgets",
				DefaultBranch: "main",
			},
			Push: &workflow.PushTrigger{
				Ref:    "refs/heads/feature",
				NewSha: "bbbb",
			},
		},
		Workflows: workflows,
	}
}

func TestCreatePipelineMalformedPayload(t *testing.T) {
	rr := testRunner()

	req := httptest.NewRequest(http.MethodPost, "/pipelines", strings.NewReader("not json"))
	w := httptest.NewRecorder()
	rr.CreatePipeline(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreatePipelineMissingRepo(t *testing.T) {
	rr := testRunner()

	w := postPipeline(t, rr, pipelineRequest{
		Trigger: workflow.TriggerMetadata{Kind: workflow.TriggerKindPush},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreatePipelineNoMatch(t *testing.T) {
	rr := testRunner()

	// workflow scoped to main, trigger pushes a feature branch
	contents := []byte(`
when:
  - event: push
    branch: main
image: alpine
steps:
  - name: lint
    command: make lint
`)

	w := postPipeline(t, rr, pushPayload(workflow.RawPipeline{
		{Name: "lint", Contents: contents},
	}))

	assert.Equal(t, http.StatusOK, w.Code)

	var resp pipelineResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Id)
	assert.Empty(t, resp.Errors)
	require.Len(t, resp.Warnings, 1)
	assert.Contains(t, resp.Warnings[0], "workflow skipped")
}

func TestCreatePipelineQueueFullFailsPipeline(t *testing.T) {
	d, err := db.Make(filepath.Join(t.TempDir(), "loom.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	n := notifier.New()
	rr := &Runner{
		db: d,
		l:  log.New("test"),
		n:  &n,
		// zero capacity and no workers, every enqueue is rejected
		jq: queue.NewQueue(0, 1),
	}

	contents := []byte(`
when:
  - event: push
image: alpine
steps:
  - name: lint
    command: make lint
`)

	w := postPipeline(t, rr, pushPayload(workflow.RawPipeline{
		{Name: "lint", Contents: contents},
	}))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	// the recorded run must not be left pending with no job behind it
	pipelines, err := d.GetPipelines("")
	require.NoError(t, err)
	require.Len(t, pipelines, 1)
	assert.Equal(t, models.StatusKindFailed, pipelines[0].Status)
	assert.Contains(t, pipelines[0].Error, "queue is full")

	statuses, err := d.GetWorkflowStatuses(pipelines[0].Id)
	require.NoError(t, err)
	require.Contains(t, statuses, "lint")
	assert.Equal(t, models.StatusKindFailed, statuses["lint"].Status)
}

func TestCreatePipelineInvalidWorkflow(t *testing.T) {
	rr := testRunner()

	// matches the trigger but declares no steps
	contents := []byte(`
when:
  - event: push
image: alpine
`)

	w := postPipeline(t, rr, pushPayload(workflow.RawPipeline{
		{Name: "lint", Contents: contents},
	}))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp pipelineResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Id)
	require.Len(t, resp.Errors, 1)
	assert.Contains(t, resp.Errors[0], "no steps defined")
}
