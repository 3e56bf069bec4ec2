package contract

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/PratikDhanave/trigger-contract-service/internal/models"
)

// DefaultFixture is the conformance fixture shipped with the repository.
const DefaultFixture = "internal/contract/testdata/trigger_terminal_cases.json"

// Case is one conformance fixture entry. Discriminators are nullable.
type Case struct {
	Name             string                  `json:"name" yaml:"name"`
	UpdateKind       models.UpdateKind       `json:"updateKind" yaml:"updateKind"`
	DecisionKind     *models.DecisionKind    `json:"decisionKind" yaml:"decisionKind"`
	EntitlementKind  *models.EntitlementKind `json:"entitlementKind" yaml:"entitlementKind"`
	ExpectedTerminal bool                    `json:"expectedTerminal" yaml:"expectedTerminal"`
}

// Actual classifies the case's raw discriminators.
func (c Case) Actual() bool {
	var d models.DecisionKind
	if c.DecisionKind != nil {
		d = *c.DecisionKind
	}
	var e models.EntitlementKind
	if c.EntitlementKind != nil {
		e = *c.EntitlementKind
	}
	return Classify(c.UpdateKind, d, e)
}

// Mismatch is a case whose classification differs from its expectation.
type Mismatch struct {
	Name     string
	Expected bool
	Actual   bool
}

func (m Mismatch) String() string {
	return fmt.Sprintf("[FAIL] %s: expected %t, got %t", m.Name, m.Expected, m.Actual)
}

// Report is the outcome of verifying a fixture.
type Report struct {
	Total      int
	Mismatches []Mismatch
}

func (r Report) Passed() bool { return len(r.Mismatches) == 0 }

// Summary is the success line printed when every case passed.
func (r Report) Summary() string {
	return fmt.Sprintf("%d cases passed", r.Total)
}

// Verify classifies every case and collects mismatches in fixture order.
func Verify(cases []Case) Report {
	r := Report{Total: len(cases)}
	for _, c := range cases {
		if got := c.Actual(); got != c.ExpectedTerminal {
			r.Mismatches = append(r.Mismatches, Mismatch{Name: c.Name, Expected: c.ExpectedTerminal, Actual: got})
		}
	}
	return r
}

// LoadCases reads a fixture file. .yaml and .yml files are parsed as YAML,
// everything else as JSON.
func LoadCases(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}

	var cases []Case
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cases)
	default:
		err = json.Unmarshal(data, &cases)
	}
	if err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}

	for i, c := range cases {
		if c.Name == "" {
			return nil, fmt.Errorf("parse fixture %s: case %d has no name", path, i)
		}
	}
	return cases, nil
}
