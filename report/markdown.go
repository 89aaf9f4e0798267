package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// RenderSummary renders a Markdown run summary for a workflow. Either
// report may be nil; a section is emitted only for what was collected.
func RenderSummary(workflow string, tests *TestReport, coverage *CoverageReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## %s\n", workflow)

	if tests != nil {
		renderTests(&b, tests)
	}

	if coverage != nil {
		renderCoverage(&b, coverage)
	}

	return b.String()
}

func renderTests(b *strings.Builder, t *TestReport) {
	b.WriteString("\n### Tests\n\n")

	verdict := "✅"
	if !t.Ok() {
		verdict = "❌"
	}
	fmt.Fprintf(b, "%s %s of %s tests passed in %s\n\n",
		verdict,
		humanize.Comma(int64(t.Passed)),
		humanize.Comma(int64(t.Total)),
		t.Duration.Round(time.Millisecond),
	)

	b.WriteString("| passed | failed | errored | skipped |\n")
	b.WriteString("| ------ | ------ | ------- | ------- |\n")
	fmt.Fprintf(b, "| %d | %d | %d | %d |\n", t.Passed, t.Failed, t.Errored, t.Skipped)

	if len(t.Failures) > 0 {
		b.WriteString("\n#### Failures\n\n")
		for _, f := range t.Failures {
			name := f.Name
			if f.Classname != "" {
				name = f.Classname + "." + f.Name
			}
			fmt.Fprintf(b, "- `%s`: %s\n", name, f.Message)
			if out := strings.TrimSpace(f.Output); out != "" {
				fmt.Fprintf(b, "\n  ```\n%s\n  ```\n", indent(out, "  "))
			}
		}
	}
}

func renderCoverage(b *strings.Builder, c *CoverageReport) {
	b.WriteString("\n### Coverage\n\n")

	pct := c.LineRate * 100
	fmt.Fprintf(b, "![coverage](https://img.shields.io/badge/coverage-%s%%25-%s)\n\n",
		humanize.FtoaWithDigits(pct, 1), badgeColor(pct))

	fmt.Fprintf(b, "%s of %s lines covered (line rate %s%%, branch rate %s%%)\n",
		humanize.Comma(c.LinesCovered),
		humanize.Comma(c.LinesValid),
		humanize.FtoaWithDigits(c.LineRate*100, 1),
		humanize.FtoaWithDigits(c.BranchRate*100, 1),
	)

	if len(c.Packages) > 0 {
		b.WriteString("\n| package | line | branch |\n")
		b.WriteString("| ------- | ---- | ------ |\n")
		for _, p := range c.Packages {
			fmt.Fprintf(b, "| %s | %s%% | %s%% |\n",
				p.Name,
				humanize.FtoaWithDigits(p.LineRate*100, 1),
				humanize.FtoaWithDigits(p.BranchRate*100, 1),
			)
		}
	}
}

func badgeColor(pct float64) string {
	switch {
	case pct >= 90:
		return "brightgreen"
	case pct >= 75:
		return "green"
	case pct >= 50:
		return "yellow"
	default:
		return "red"
	}
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
