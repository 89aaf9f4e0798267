package workflow

import "strings"

// DefaultGroup scopes runs to the ref being built, so a newer run for
// the same ref supersedes an in-flight one.
const DefaultGroup = "${repo}/${ref}"

type (
	// Concurrency is the mutual-exclusion policy declared in a
	// workflow file. The zero value means "use defaults".
	Concurrency struct {
		Group string `yaml:"group"`
		// pointer so that an absent key is distinguishable from an
		// explicit false
		CancelInProgress *bool `yaml:"cancel_in_progress"`
	}

	// Policy is a concurrency declaration resolved against a concrete
	// trigger.
	Policy struct {
		Group            string `json:"group"`
		CancelInProgress bool   `json:"cancel_in_progress"`
	}
)

func (c Concurrency) IsZero() bool {
	return c.Group == "" && c.CancelInProgress == nil
}

// Resolve expands the group template against the trigger. Supported
// placeholders: ${repo}, ${ref}, ${event}.
func (c Concurrency) Resolve(t TriggerMetadata) Policy {
	group := c.Group
	if group == "" {
		group = DefaultGroup
	}

	r := strings.NewReplacer(
		"${repo}", t.RepoName(),
		"${ref}", t.Ref(),
		"${event}", t.Kind,
	)

	cancel := true
	if c.CancelInProgress != nil {
		cancel = *c.CancelInProgress
	}

	return Policy{
		Group:            r.Replace(group),
		CancelInProgress: cancel,
	}
}
