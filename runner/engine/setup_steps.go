package engine

import (
	"fmt"
	"strings"

	"loom.sh/core/runner/models"
	"loom.sh/core/workflow"
)

// setupSteps returns the runner-injected steps that precede the
// user-defined ones: a clone of the repository into the workspace
// followed by a checkout of the triggering commit. Both are elided
// when the workflow opted out of cloning.
func setupSteps(wf workflow.Workflow, tr workflow.TriggerMetadata, dev bool) []models.Step {
	if wf.CloneOpts.Skip {
		return nil
	}

	return []models.Step{
		cloneStep(wf, tr, dev),
		checkoutStep(tr),
	}
}

func cloneStep(wf workflow.Workflow, tr workflow.TriggerMetadata, dev bool) models.Step {
	cloneUrl := ""
	if tr.Repo != nil {
		cloneUrl = tr.Repo.CloneURL
	}

	// in dev mode the forge runs on localhost, which resolves to the
	// container itself
	if dev {
		cloneUrl = strings.ReplaceAll(cloneUrl, "localhost", "host.docker.internal")
	}

	cloneCmd := []string{"git", "clone", cloneUrl, "."}

	// default clone depth is 1
	cloneDepth := 1
	if wf.CloneOpts.Depth > 1 {
		cloneDepth = wf.CloneOpts.Depth
	}
	cloneCmd = append(cloneCmd, "--depth", fmt.Sprintf("%d", cloneDepth))

	if wf.CloneOpts.IncludeSubmodules {
		cloneCmd = append(cloneCmd, "--recursive")
	}

	return models.Step{
		Kind:    models.StepKindSystem,
		Name:    "Clone repository into workspace",
		Command: strings.Join(cloneCmd, " "),
	}
}

// checkoutStep checks out the commit the trigger refers to: the
// pushed head, a pull request's source head, or the requested ref of
// a manual dispatch.
func checkoutStep(tr workflow.TriggerMetadata) models.Step {
	var target string
	switch tr.Kind {
	case workflow.TriggerKindPush:
		if tr.Push != nil {
			target = tr.Push.NewSha
		}
	case workflow.TriggerKindPullRequest:
		if tr.PullRequest != nil {
			target = tr.PullRequest.SourceSha
		}
	}
	if target == "" {
		target = tr.ShortRef()
	}

	checkoutCmd := fmt.Sprintf("git config advice.detachedHead false; git checkout --progress --force %s", target)

	return models.Step{
		Kind:    models.StepKindSystem,
		Name:    "Checkout " + target,
		Command: checkoutCmd,
	}
}
