// Package gate runs deterministic quality checks over a candidate final
// answer. All five gates are pure: same input, same verdict, no I/O.
package gate

import (
	"fmt"
	"regexp"
	"strings"
)

// LexiconLock lists terms the draft must not contain.
type LexiconLock struct {
	Forbidden []string `yaml:"forbidden"`
}

// OutputContract pins structural requirements on the draft.
type OutputContract struct {
	// RequiredHeadings must each appear as a markdown heading.
	RequiredHeadings []string `yaml:"required_headings,omitempty"`

	// RequiredBlockCount, when positive, must exactly match the number
	// of fenced code/file blocks in the draft.
	RequiredBlockCount int `yaml:"required_block_count,omitempty"`
}

// Input is everything a gate may look at.
type Input struct {
	Draft    string
	Request  string
	Lexicon  *LexiconLock
	Contract *OutputContract
}

// Result is one gate's verdict.
type Result struct {
	Gate     string `json:"gate"` // "A".."E"
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Evidence string `json:"evidence,omitempty"`
}

// Gate is one independent quality check.
type Gate interface {
	ID() string
	Name() string
	Evaluate(in Input) Result
}

// Validator runs every gate and collects all violations, not just the
// first. Gate order does not affect the outcome.
type Validator struct {
	gates []Gate
}

// NewValidator creates a validator with the five standard gates.
func NewValidator() *Validator {
	return &Validator{gates: []Gate{
		&GreetingGate{},
		&LexiconGate{},
		&ContractGate{},
		&CompletenessGate{},
		&DomainGate{},
	}}
}

// Gates returns the configured gates.
func (v *Validator) Gates() []Gate {
	return v.gates
}

// ValidateAll evaluates every gate. It returns whether all passed, the
// human-readable violation list, and the individual results.
func (v *Validator) ValidateAll(in Input) (bool, []string, []Result) {
	allPassed := true
	var violations []string
	results := make([]Result, 0, len(v.gates))
	for _, g := range v.gates {
		res := g.Evaluate(in)
		results = append(results, res)
		if !res.Passed {
			allPassed = false
			violations = append(violations, fmt.Sprintf("Gate %s (%s): %s", res.Gate, res.Name, res.Evidence))
		}
	}
	return allPassed, violations, results
}

var headingRe = regexp.MustCompile(`(?m)^#{1,6}[ \t]+(.+?)[ \t]*$`)

// headings returns the text of every markdown heading in order.
func headings(s string) []string {
	var out []string
	for _, m := range headingRe.FindAllStringSubmatch(s, -1) {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}

// fencedBlockCount counts complete fenced code blocks.
func fencedBlockCount(s string) int {
	fences := 0
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			fences++
		}
	}
	return fences / 2
}
