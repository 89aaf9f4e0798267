package report

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
)

// CoverageReport is the digest of a Cobertura coverage XML file.
// Rates are fractions in [0, 1].
type CoverageReport struct {
	LineRate     float64
	BranchRate   float64
	LinesCovered int64
	LinesValid   int64
	Packages     []PackageCoverage
}

type PackageCoverage struct {
	Name       string
	LineRate   float64
	BranchRate float64
}

type coberturaXML struct {
	XMLName      xml.Name       `xml:"coverage"`
	LineRate     float64        `xml:"line-rate,attr"`
	BranchRate   float64        `xml:"branch-rate,attr"`
	LinesCovered int64          `xml:"lines-covered,attr"`
	LinesValid   int64          `xml:"lines-valid,attr"`
	Packages     []coberturaPkg `xml:"packages>package"`
}

type coberturaPkg struct {
	Name       string  `xml:"name,attr"`
	LineRate   float64 `xml:"line-rate,attr"`
	BranchRate float64 `xml:"branch-rate,attr"`
}

func ParseCobertura(r io.Reader) (*CoverageReport, error) {
	var doc coberturaXML
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing cobertura report: %w", err)
	}

	report := &CoverageReport{
		LineRate:     doc.LineRate,
		BranchRate:   doc.BranchRate,
		LinesCovered: doc.LinesCovered,
		LinesValid:   doc.LinesValid,
	}

	for _, p := range doc.Packages {
		report.Packages = append(report.Packages, PackageCoverage{
			Name:       p.Name,
			LineRate:   p.LineRate,
			BranchRate: p.BranchRate,
		})
	}

	return report, nil
}

func ParseCoberturaFile(path string) (*CoverageReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ParseCobertura(f)
}
