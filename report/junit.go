package report

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"time"
)

// TestReport is the digest of a JUnit XML report: totals plus the
// failed cases, kept for annotation rendering.
type TestReport struct {
	Total    int
	Passed   int
	Failed   int
	Errored  int
	Skipped  int
	Duration time.Duration
	Failures []CaseResult
}

func (r TestReport) Ok() bool {
	return r.Failed == 0 && r.Errored == 0
}

// CaseResult is one failed or errored test case.
type CaseResult struct {
	Suite     string
	Classname string
	Name      string
	Message   string
	Output    string
}

type junitSuites struct {
	XMLName xml.Name     `xml:"testsuites"`
	Suites  []junitSuite `xml:"testsuite"`
}

type junitSuite struct {
	Name   string       `xml:"name,attr"`
	Time   float64      `xml:"time,attr"`
	Cases  []junitCase  `xml:"testcase"`
	Suites []junitSuite `xml:"testsuite"`
}

type junitCase struct {
	Name      string       `xml:"name,attr"`
	Classname string       `xml:"classname,attr"`
	Time      float64      `xml:"time,attr"`
	Failure   *junitResult `xml:"failure"`
	Error     *junitResult `xml:"error"`
	Skipped   *junitResult `xml:"skipped"`
}

type junitResult struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

// ParseJUnit reads a JUnit XML document rooted at either <testsuites>
// or a bare <testsuite>.
func ParseJUnit(r io.Reader) (*TestReport, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var suites junitSuites
	if err := xml.Unmarshal(raw, &suites); err != nil {
		var single junitSuite
		if err := xml.Unmarshal(raw, &single); err != nil {
			return nil, fmt.Errorf("parsing junit report: %w", err)
		}
		suites.Suites = []junitSuite{single}
	}

	report := &TestReport{}
	for _, s := range suites.Suites {
		collectSuite(report, s)
	}

	return report, nil
}

func ParseJUnitFile(path string) (*TestReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ParseJUnit(f)
}

func collectSuite(report *TestReport, s junitSuite) {
	for _, c := range s.Cases {
		report.Total++
		report.Duration += time.Duration(c.Time * float64(time.Second))

		switch {
		case c.Failure != nil:
			report.Failed++
			report.Failures = append(report.Failures, caseResult(s.Name, c, c.Failure))
		case c.Error != nil:
			report.Errored++
			report.Failures = append(report.Failures, caseResult(s.Name, c, c.Error))
		case c.Skipped != nil:
			report.Skipped++
		default:
			report.Passed++
		}
	}

	// some producers nest suites
	for _, sub := range s.Suites {
		collectSuite(report, sub)
	}
}

func caseResult(suite string, c junitCase, r *junitResult) CaseResult {
	return CaseResult{
		Suite:     suite,
		Classname: c.Classname,
		Name:      c.Name,
		Message:   r.Message,
		Output:    r.Body,
	}
}
