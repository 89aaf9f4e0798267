package models

import (
	"fmt"
	"regexp"
)

var re = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// PipelineId identifies one triggered run.
type PipelineId string

// WorkflowId identifies one workflow within a run.
type WorkflowId struct {
	PipelineId PipelineId
	Name       string
}

func (wid WorkflowId) String() string {
	return fmt.Sprintf("%s-%s", wid.PipelineId, normalize(wid.Name))
}

func normalize(name string) string {
	return re.ReplaceAllString(name, "-")
}

type StatusKind string

const (
	StatusKindPending   StatusKind = "pending"
	StatusKindRunning   StatusKind = "running"
	StatusKindFailed    StatusKind = "failed"
	StatusKindSuccess   StatusKind = "success"
	StatusKindTimeout   StatusKind = "timeout"
	StatusKindCancelled StatusKind = "cancelled"
)

// StatusEvent is one per-workflow status transition, persisted to the
// events table and streamed to subscribers.
type StatusEvent struct {
	Pipeline  PipelineId `json:"pipeline"`
	Workflow  string     `json:"workflow"`
	Status    StatusKind `json:"status"`
	Error     *string    `json:"error,omitempty"`
	ExitCode  *int64     `json:"exit_code,omitempty"`
	CreatedAt string     `json:"created_at"`
}

// Step is a runtime step, either injected by the runner (clone,
// checkout) or defined by the user in the workflow file.
type Step struct {
	Name        string
	Command     string
	Environment map[string]string
	Always      bool
	Kind        StepKind
}

type StepKind int

const (
	// steps injected by the runner
	StepKindSystem StepKind = iota
	// steps defined by the user in the workflow file
	StepKindUser
)

type StepStatus string

const (
	StepStatusRunning StepStatus = "running"
	StepStatusPassed  StepStatus = "passed"
	StepStatusFailed  StepStatus = "failed"
	StepStatusSkipped StepStatus = "skipped"
)
