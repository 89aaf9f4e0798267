package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRenderSummary(t *testing.T) {
	tests := &TestReport{
		Total:    42,
		Passed:   40,
		Failed:   1,
		Errored:  1,
		Duration: 3*time.Second + 250*time.Millisecond,
		Failures: []CaseResult{
			{Name: "TestWidget", Classname: "widgets", Message: "boom", Output: "stack trace"},
		},
	}
	coverage := &CoverageReport{
		LineRate:     0.875,
		BranchRate:   0.75,
		LinesCovered: 350,
		LinesValid:   400,
		Packages: []PackageCoverage{
			{Name: "widgets", LineRate: 0.9, BranchRate: 0.8},
		},
	}

	md := RenderSummary("unit", tests, coverage)

	assert.Contains(t, md, "## unit")
	assert.Contains(t, md, "❌ 40 of 42 tests passed in 3.25s")
	assert.Contains(t, md, "| 40 | 1 | 1 | 0 |")
	assert.Contains(t, md, "`widgets.TestWidget`: boom")
	assert.Contains(t, md, "coverage-87.5%25-green")
	assert.Contains(t, md, "350 of 400 lines covered")
	assert.Contains(t, md, "| widgets | 90% | 80% |")
}

func TestRenderSummaryTestsOnly(t *testing.T) {
	md := RenderSummary("lint", &TestReport{Total: 3, Passed: 3, Duration: time.Second}, nil)

	assert.Contains(t, md, "✅ 3 of 3 tests passed")
	assert.NotContains(t, md, "Coverage")
	assert.NotContains(t, md, "Failures")
}

func TestBadgeColor(t *testing.T) {
	assert.Equal(t, "brightgreen", badgeColor(95))
	assert.Equal(t, "green", badgeColor(80))
	assert.Equal(t, "yellow", badgeColor(60))
	assert.Equal(t, "red", badgeColor(10))
}
