package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loom.sh/core/runner/models"
	"loom.sh/core/workflow"
)

func pushTrigger() workflow.TriggerMetadata {
	return workflow.TriggerMetadata{
		Kind: workflow.TriggerKindPush,
		Repo: &workflow.TriggerRepo{
			Name:          "acme/widgets",
			CloneURL:      "https://forge.example.com/acme/widgets",
			DefaultBranch: "main",
		},
		Push: &workflow.PushTrigger{
			Ref:    "refs/heads/main",
			OldSha: "aaaa",
			NewSha: "bbbb",
		},
	}
}

func TestSetupSteps(t *testing.T) {
	steps := setupSteps(workflow.Workflow{}, pushTrigger(), false)
	require.Len(t, steps, 2)

	assert.Equal(t, models.StepKindSystem, steps[0].Kind)
	assert.Equal(t, "git clone https://forge.example.com/acme/widgets . --depth 1", steps[0].Command)

	assert.Equal(t, models.StepKindSystem, steps[1].Kind)
	assert.Contains(t, steps[1].Command, "git checkout --progress --force bbbb")
}

func TestSetupStepsSkipClone(t *testing.T) {
	wf := workflow.Workflow{
		CloneOpts: workflow.CloneOpts{Skip: true},
	}
	assert.Empty(t, setupSteps(wf, pushTrigger(), false))
}

func TestCloneStepOptions(t *testing.T) {
	wf := workflow.Workflow{
		CloneOpts: workflow.CloneOpts{Depth: 50, IncludeSubmodules: true},
	}
	step := cloneStep(wf, pushTrigger(), false)
	assert.Equal(t, "git clone https://forge.example.com/acme/widgets . --depth 50 --recursive", step.Command)
}

func TestCloneStepDevMode(t *testing.T) {
	tr := pushTrigger()
	tr.Repo.CloneURL = "http://localhost:3000/acme/widgets"

	step := cloneStep(workflow.Workflow{}, tr, true)
	assert.Contains(t, step.Command, "host.docker.internal:3000")
}

func TestCheckoutStep(t *testing.T) {
	tests := []struct {
		name    string
		trigger workflow.TriggerMetadata
		target  string
	}{
		{
			name:    "push checks out the new head",
			trigger: pushTrigger(),
			target:  "bbbb",
		},
		{
			name: "pull request checks out the source head",
			trigger: workflow.TriggerMetadata{
				Kind: workflow.TriggerKindPullRequest,
				Repo: pushTrigger().Repo,
				PullRequest: &workflow.PullRequestTrigger{
					SourceBranch: "feature",
					TargetBranch: "main",
					SourceSha:    "cccc",
				},
			},
			target: "cccc",
		},
		{
			name: "manual checks out the requested ref",
			trigger: workflow.TriggerMetadata{
				Kind:   workflow.TriggerKindManual,
				Repo:   pushTrigger().Repo,
				Manual: &workflow.ManualTrigger{Ref: "release/1.2"},
			},
			target: "release/1.2",
		},
		{
			name: "manual without a ref falls back to the default branch",
			trigger: workflow.TriggerMetadata{
				Kind:   workflow.TriggerKindManual,
				Repo:   pushTrigger().Repo,
				Manual: &workflow.ManualTrigger{},
			},
			target: "main",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := checkoutStep(tt.trigger)
			assert.Contains(t, step.Command, "git checkout --progress --force "+tt.target)
		})
	}
}
