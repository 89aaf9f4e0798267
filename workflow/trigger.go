package workflow

import (
	"github.com/go-git/go-git/v5/plumbing"
)

const (
	TriggerKindPush        string = "push"
	TriggerKindPullRequest string = "pull_request"
	TriggerKindManual      string = "manual"
)

type (
	// TriggerMetadata describes the event that caused a pipeline to
	// run. Exactly one of Push, PullRequest or Manual is set,
	// matching Kind.
	TriggerMetadata struct {
		Kind        string              `json:"kind"`
		Repo        *TriggerRepo        `json:"repo"`
		Push        *PushTrigger        `json:"push,omitempty"`
		PullRequest *PullRequestTrigger `json:"pull_request,omitempty"`
		Manual      *ManualTrigger      `json:"manual,omitempty"`
	}

	TriggerRepo struct {
		Name          string `json:"name"`
		CloneURL      string `json:"clone_url"`
		DefaultBranch string `json:"default_branch"`
	}

	PushTrigger struct {
		Ref    string `json:"ref"`
		OldSha string `json:"old_sha"`
		NewSha string `json:"new_sha"`
	}

	PullRequestTrigger struct {
		SourceBranch string `json:"source_branch"`
		TargetBranch string `json:"target_branch"`
		SourceSha    string `json:"source_sha"`
	}

	ManualTrigger struct {
		Ref string `json:"ref,omitempty"`
	}
)

// Ref returns the git ref a run for this trigger builds: the pushed
// ref, a pull request's target branch, or the manually requested ref
// (the repo default branch when unspecified).
func (t TriggerMetadata) Ref() string {
	switch t.Kind {
	case TriggerKindPush:
		if t.Push != nil {
			return t.Push.Ref
		}
	case TriggerKindPullRequest:
		if t.PullRequest != nil {
			return t.PullRequest.TargetBranch
		}
	case TriggerKindManual:
		if t.Manual != nil && t.Manual.Ref != "" {
			return t.Manual.Ref
		}
	}
	if t.Repo != nil {
		return t.Repo.DefaultBranch
	}
	return ""
}

// ShortRef returns the branch-ish short form of Ref, e.g.
// "refs/heads/main" becomes "main".
func (t TriggerMetadata) ShortRef() string {
	return plumbing.ReferenceName(t.Ref()).Short()
}

func (t TriggerMetadata) RepoName() string {
	if t.Repo != nil {
		return t.Repo.Name
	}
	return ""
}
