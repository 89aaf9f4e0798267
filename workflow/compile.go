package workflow

import (
	"errors"
	"fmt"
)

type RawWorkflow struct {
	Name     string `json:"name"`
	Contents []byte `json:"contents"`
}

type RawPipeline = []RawWorkflow

// Pipeline is a set of workflows compiled against a concrete trigger,
// ready for a runner to execute.
type Pipeline struct {
	Trigger   TriggerMetadata
	Policy    Policy
	Workflows []Workflow
}

type Compiler struct {
	Trigger     TriggerMetadata
	Diagnostics Diagnostics
}

type Diagnostics struct {
	Errors   []Error
	Warnings []Warning
}

func (d *Diagnostics) IsEmpty() bool {
	return len(d.Errors) == 0 && len(d.Warnings) == 0
}

func (d *Diagnostics) AddWarning(path string, kind WarningKind, reason string) {
	d.Warnings = append(d.Warnings, Warning{path, kind, reason})
}

func (d *Diagnostics) AddError(path string, err error) {
	d.Errors = append(d.Errors, Error{path, err})
}

func (d Diagnostics) IsErr() bool {
	return len(d.Errors) != 0
}

type Error struct {
	Path  string `json:"path"`
	Error error  `json:"error"`
}

func (e Error) String() string {
	return fmt.Sprintf("error: %s: %s", e.Path, e.Error.Error())
}

type Warning struct {
	Path   string      `json:"path"`
	Type   WarningKind `json:"type"`
	Reason string      `json:"reason"`
}

func (w Warning) String() string {
	return fmt.Sprintf("warning: %s: %s: %s", w.Path, w.Type, w.Reason)
}

var (
	MissingImage error = errors.New("missing image")
	MissingSteps error = errors.New("no steps defined")
)

type WarningKind string

var (
	WorkflowSkipped      WarningKind = "workflow skipped"
	InvalidConfiguration WarningKind = "invalid configuration"
	ConflictingPolicy    WarningKind = "conflicting concurrency policy"
)

func (c *Compiler) Parse(p RawPipeline) []Workflow {
	var wfs []Workflow

	for _, raw := range p {
		wf, err := FromFile(raw.Name, raw.Contents)
		if err != nil {
			c.Diagnostics.AddError(raw.Name, err)
			continue
		}

		wfs = append(wfs, wf)
	}

	return wfs
}

// Compile filters the parsed workflows down to those matching the
// trigger, validates them, and resolves the pipeline's concurrency
// policy. Workflows that fail validation are dropped with an error
// diagnostic; workflows that don't match the trigger are dropped with
// a warning.
func (c *Compiler) Compile(wfs []Workflow) Pipeline {
	p := Pipeline{
		Trigger: c.Trigger,
		Policy:  Concurrency{}.Resolve(c.Trigger),
	}

	declared := false
	for _, wf := range wfs {
		cw := c.compileWorkflow(wf)
		if cw == nil {
			continue
		}

		// concurrency is pipeline scoped: the first declaration
		// wins, later conflicting ones are reported
		if !wf.Concurrency.IsZero() {
			resolved := wf.Concurrency.Resolve(c.Trigger)
			if !declared {
				p.Policy = resolved
				declared = true
			} else if resolved != p.Policy {
				c.Diagnostics.AddWarning(
					wf.Name,
					ConflictingPolicy,
					fmt.Sprintf("pipeline already scoped to group %q", p.Policy.Group),
				)
			}
		}

		p.Workflows = append(p.Workflows, *cw)
	}

	return p
}

func (c *Compiler) compileWorkflow(w Workflow) *Workflow {
	if !w.Match(c.Trigger) {
		c.Diagnostics.AddWarning(
			w.Name,
			WorkflowSkipped,
			fmt.Sprintf("did not match trigger %s", c.Trigger.Kind),
		)
		return nil
	}

	c.analyzeCloneOptions(w)

	if w.Image == "" {
		c.Diagnostics.AddError(w.Name, MissingImage)
		return nil
	}

	if len(w.Steps) == 0 {
		c.Diagnostics.AddError(w.Name, MissingSteps)
		return nil
	}

	return &w
}

func (c *Compiler) analyzeCloneOptions(w Workflow) {
	if w.CloneOpts.Skip && w.CloneOpts.IncludeSubmodules {
		c.Diagnostics.AddWarning(
			w.Name,
			InvalidConfiguration,
			"cannot apply `clone.skip` and `clone.submodules`",
		)
	}

	if w.CloneOpts.Skip && w.CloneOpts.Depth > 0 {
		c.Diagnostics.AddWarning(
			w.Name,
			InvalidConfiguration,
			"cannot apply `clone.skip` and `clone.depth`",
		)
	}

	if w.CloneOpts.Skip && w.Checks.CleanTree {
		c.Diagnostics.AddWarning(
			w.Name,
			InvalidConfiguration,
			"`checks.clean_tree` needs a cloned working tree",
		)
	}
}
