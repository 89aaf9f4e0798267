package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveDefaults(t *testing.T) {
	p := Concurrency{}.Resolve(trigger)

	assert.Equal(t, "acme/widgets/refs/heads/main", p.Group)
	assert.True(t, p.CancelInProgress, "cancellation is on by default")
}

func TestResolvePlaceholders(t *testing.T) {
	tests := []struct {
		name  string
		group string
		want  string
	}{
		{"ref", "ci-${ref}", "ci-refs/heads/main"},
		{"repo", "${repo}", "acme/widgets"},
		{"event", "${event}-${ref}", "push-refs/heads/main"},
		{"literal", "global", "global"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Concurrency{Group: tt.group}.Resolve(trigger)
			assert.Equal(t, tt.want, p.Group)
		})
	}
}

func TestResolveExplicitCancel(t *testing.T) {
	no := false
	p := Concurrency{CancelInProgress: &no}.Resolve(trigger)

	assert.False(t, p.CancelInProgress)
}

func TestSameRefSameGroup(t *testing.T) {
	older := trigger
	newer := trigger
	newer.Push = &PushTrigger{Ref: "refs/heads/main", NewSha: "abc"}

	a := Concurrency{}.Resolve(older)
	b := Concurrency{}.Resolve(newer)

	assert.Equal(t, a.Group, b.Group, "runs on the same ref share a group")
}
