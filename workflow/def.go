package workflow

import (
	"errors"
	"fmt"
	"path"
	"slices"

	"github.com/go-git/go-git/v5/plumbing"
	"gopkg.in/yaml.v3"
)

// - an event on a repo (push, pull request, manual dispatch) triggers
//   a "Pipeline"
// - a repo carries one workflow file per job:
//   * .loom/workflows/lint.yml
//   * .loom/workflows/test.yml
// - a pipeline therefore holds several workflows, and these execute
//   in parallel
// - each workflow is an ordered list of steps, and these execute
//   strictly serially

type (
	// Workflow is the structural representation of a single workflow
	// file.
	Workflow struct {
		Name        string            `yaml:"-"` // name of the workflow file
		When        []Constraint      `yaml:"when"`
		Image       string            `yaml:"image"`
		CloneOpts   CloneOpts         `yaml:"clone"`
		Environment map[string]string `yaml:"environment"`
		Steps       []Step            `yaml:"steps"`
		Report      Report            `yaml:"report"`
		Checks      Checks            `yaml:"checks"`
		Concurrency Concurrency       `yaml:"concurrency"`
	}

	Constraint struct {
		Event  StringList `yaml:"event"`
		Branch StringList `yaml:"branch"` // optional, applied to push refs and PR target branches
	}

	CloneOpts struct {
		Skip              bool `yaml:"skip"`
		Depth             int  `yaml:"depth"`
		IncludeSubmodules bool `yaml:"submodules"`
	}

	Step struct {
		Name        string            `yaml:"name"`
		Command     string            `yaml:"command"`
		Environment map[string]string `yaml:"environment"`
		// Always marks a step that runs even after an earlier step
		// in the workflow has failed.
		Always bool `yaml:"always"`
	}

	// Report names workspace-relative artifact paths picked up after
	// the step loop, regardless of workflow outcome.
	Report struct {
		JUnit    string `yaml:"junit"`
		Coverage string `yaml:"coverage"`
	}

	// Checks are runner-side decision procedures applied after a
	// successful step loop.
	Checks struct {
		// CleanTree fails the workflow when the steps left the
		// working tree modified. Empty status means pass.
		CleanTree bool `yaml:"clean_tree"`
	}

	StringList []string
)

func FromFile(name string, contents []byte) (Workflow, error) {
	var wf Workflow

	if err := yaml.Unmarshal(contents, &wf); err != nil {
		return wf, err
	}

	wf.Name = name

	return wf, nil
}

// Match reports whether any of the constraints on a workflow accept
// the trigger.
func (w *Workflow) Match(trigger TriggerMetadata) bool {
	// manual dispatch always runs the workflow
	if trigger.Manual != nil {
		return true
	}

	for _, c := range w.When {
		if c.Match(trigger) {
			return true
		}
	}

	// no constraints, always run this workflow
	if len(w.When) == 0 {
		return true
	}

	return false
}

func (c *Constraint) Match(trigger TriggerMetadata) bool {
	if trigger.Manual != nil {
		return true
	}

	match := c.MatchEvent(trigger.Kind)

	if trigger.PullRequest != nil {
		match = match && c.MatchBranch(trigger.PullRequest.TargetBranch)
	}

	if trigger.Push != nil {
		match = match && c.MatchRef(trigger.Push.Ref)
	}

	return match
}

func (c *Constraint) MatchEvent(event string) bool {
	return slices.Contains(c.Event, event)
}

func (c *Constraint) MatchBranch(branch string) bool {
	if len(c.Branch) == 0 {
		return true
	}
	for _, b := range c.Branch {
		if b == branch {
			return true
		}
		if ok, err := path.Match(b, branch); err == nil && ok {
			return true
		}
	}
	return false
}

func (c *Constraint) MatchRef(ref string) bool {
	refName := plumbing.ReferenceName(ref)
	if refName.IsBranch() {
		return c.MatchBranch(refName.Short())
	}
	return false
}

// Custom unmarshaller for StringList, accepting both a scalar and a
// sequence.
func (s *StringList) UnmarshalYAML(unmarshal func(any) error) error {
	var scalar string
	if err := unmarshal(&scalar); err == nil {
		*s = []string{scalar}
		return nil
	}

	var seq []any
	if err := unmarshal(&seq); err == nil {
		if seq == nil {
			*s = nil
			return nil
		}

		parts := make([]string, len(seq))
		for k, v := range seq {
			sv, ok := v.(string)
			if !ok {
				return fmt.Errorf("cannot unmarshal '%v' of type %T into a string value", v, v)
			}
			parts[k] = sv
		}

		*s = parts
		return nil
	}

	return errors.New("failed to unmarshal string or string list")
}
