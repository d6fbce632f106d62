package output

import (
	"encoding/xml"
	"fmt"
	"time"
)

func init() {
	RegisterFormatter("junit", &JUnitFormatter{})
}

// JUnitFormatter formats policy checks and readiness probes as JUnit XML,
// one testsuite each.
type JUnitFormatter struct{}

type junitTestSuites struct {
	XMLName  xml.Name         `xml:"testsuites"`
	Name     string           `xml:"name,attr"`
	Tests    int              `xml:"tests,attr"`
	Failures int              `xml:"failures,attr"`
	Skipped  int              `xml:"skipped,attr"`
	Time     float64          `xml:"time,attr"`
	Suites   []junitTestSuite `xml:"testsuite"`
}

type junitTestSuite struct {
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Errors    int             `xml:"errors,attr"`
	Skipped   int             `xml:"skipped,attr"`
	Time      float64         `xml:"time,attr"`
	Timestamp string          `xml:"timestamp,attr,omitempty"`
	Cases     []junitTestCase `xml:"testcase,omitempty"`
}

type junitTestCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
	Skipped   *junitSkipped `xml:"skipped,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Content string `xml:",chardata"`
}

type junitSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

func (f *JUnitFormatter) Format(r *Report, _ Config) ([]byte, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339)
	name := "thanos-sidecar"
	if r.Descriptor != nil {
		name = r.Descriptor.Name
	}

	root := junitTestSuites{Name: name}
	if len(r.Checks) > 0 {
		root.Suites = append(root.Suites, checkSuite(r))
	}
	if len(r.Probes) > 0 {
		root.Suites = append(root.Suites, probeSuite(r))
	}
	for i := range root.Suites {
		root.Suites[i].Timestamp = timestamp
		calculateTotals(&root.Suites[i])
		root.Tests += root.Suites[i].Tests
		root.Failures += root.Suites[i].Failures
		root.Skipped += root.Suites[i].Skipped
		root.Time += root.Suites[i].Time
	}

	output, err := xml.MarshalIndent(root, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), output...), nil
}

func checkSuite(r *Report) junitTestSuite {
	suite := junitTestSuite{Name: "policy"}
	for i, c := range r.Checks {
		tc := junitTestCase{
			Name:      fmt.Sprintf("check[%d]", i),
			Classname: c.Expression,
		}
		if !c.Passed {
			tc.Failure = &junitFailure{Message: c.Message, Content: c.Expression}
		}
		suite.Cases = append(suite.Cases, tc)
	}
	return suite
}

func probeSuite(r *Report) junitTestSuite {
	suite := junitTestSuite{Name: "readiness"}
	for _, p := range r.Probes {
		tc := junitTestCase{
			Name:      p.Type,
			Classname: p.Address,
			Time:      p.Duration.Seconds(),
		}
		switch {
		case p.Skipped:
			tc.Skipped = &junitSkipped{Message: p.Message}
		case !p.Ready:
			tc.Failure = &junitFailure{Message: "not ready", Content: p.Message}
		}
		suite.Cases = append(suite.Cases, tc)
	}
	return suite
}

// calculateTotals calculates test/failure/skipped counts and total time.
func calculateTotals(suite *junitTestSuite) {
	suite.Tests = len(suite.Cases)
	suite.Failures, suite.Skipped, suite.Time = 0, 0, 0
	for _, tc := range suite.Cases {
		suite.Time += tc.Time
		if tc.Failure != nil {
			suite.Failures++
		}
		if tc.Skipped != nil {
			suite.Skipped++
		}
	}
}
