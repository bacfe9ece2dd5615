package gate

import (
	"fmt"
	"regexp"
	"strings"
)

// GreetingGate (A) fails when the draft opens with a greeting the request
// never made.
type GreetingGate struct{}

func (g *GreetingGate) ID() string   { return "A" }
func (g *GreetingGate) Name() string { return "greeting" }

var greetingRe = regexp.MustCompile(`(?i)^(hi|hiya|hello|hey|howdy|greetings|good (morning|afternoon|evening))\b`)

func (g *GreetingGate) Evaluate(in Input) Result {
	draftGreets := greetingRe.MatchString(strings.TrimSpace(in.Draft))
	requestGreets := greetingRe.MatchString(strings.TrimSpace(in.Request))
	if draftGreets && !requestGreets {
		return Result{
			Gate: g.ID(), Name: g.Name(), Passed: false,
			Evidence: "draft opens with a greeting but the request did not greet",
		}
	}
	return Result{Gate: g.ID(), Name: g.Name(), Passed: true}
}

// LexiconGate (B) fails when any forbidden term appears in the draft.
// Matching is word-boundary and case-insensitive.
type LexiconGate struct{}

func (g *LexiconGate) ID() string   { return "B" }
func (g *LexiconGate) Name() string { return "lexicon" }

func (g *LexiconGate) Evaluate(in Input) Result {
	if in.Lexicon == nil || len(in.Lexicon.Forbidden) == 0 {
		return Result{Gate: g.ID(), Name: g.Name(), Passed: true}
	}
	var found []string
	for _, term := range in.Lexicon.Forbidden {
		if term == "" {
			continue
		}
		re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(term) + `\b`)
		if re.MatchString(in.Draft) {
			found = append(found, term)
		}
	}
	if len(found) > 0 {
		return Result{
			Gate: g.ID(), Name: g.Name(), Passed: false,
			Evidence: fmt.Sprintf("forbidden terms present: %s", strings.Join(found, ", ")),
		}
	}
	return Result{Gate: g.ID(), Name: g.Name(), Passed: true}
}

// ContractGate (C) fails when required headings are missing or the fenced
// block count does not match the contract exactly.
type ContractGate struct{}

func (g *ContractGate) ID() string   { return "C" }
func (g *ContractGate) Name() string { return "output_contract" }

func (g *ContractGate) Evaluate(in Input) Result {
	if in.Contract == nil {
		return Result{Gate: g.ID(), Name: g.Name(), Passed: true}
	}

	var problems []string

	have := headings(in.Draft)
	for _, want := range in.Contract.RequiredHeadings {
		found := false
		for _, h := range have {
			if strings.EqualFold(h, want) {
				found = true
				break
			}
		}
		if !found {
			problems = append(problems, fmt.Sprintf("missing required heading %q", want))
		}
	}

	if want := in.Contract.RequiredBlockCount; want > 0 {
		got := fencedBlockCount(in.Draft)
		if got != want {
			problems = append(problems, fmt.Sprintf("expected exactly %d code/file blocks, found %d", want, got))
		}
	}

	if len(problems) > 0 {
		return Result{
			Gate: g.ID(), Name: g.Name(), Passed: false,
			Evidence: strings.Join(problems, "; "),
		}
	}
	return Result{Gate: g.ID(), Name: g.Name(), Passed: true}
}

// CompletenessGate (D) fails shallow or repetitive structure: fewer than
// two headings, no action/step markers, or duplicated heading text.
type CompletenessGate struct{}

func (g *CompletenessGate) ID() string   { return "D" }
func (g *CompletenessGate) Name() string { return "completeness" }

var actionMarkerRe = regexp.MustCompile(`(?mi)^\s*(?:[-*+]\s+|\d+[.)]\s+|step\s+\d+)`)

func (g *CompletenessGate) Evaluate(in Input) Result {
	var problems []string

	have := headings(in.Draft)
	if len(have) < 2 {
		problems = append(problems, fmt.Sprintf("structure too shallow: %d headings, need at least 2", len(have)))
	}

	if !actionMarkerRe.MatchString(in.Draft) {
		problems = append(problems, "no action or step markers present")
	}

	seen := make(map[string]bool, len(have))
	for _, h := range have {
		key := strings.ToLower(h)
		if seen[key] {
			problems = append(problems, fmt.Sprintf("duplicated heading %q", h))
		}
		seen[key] = true
	}

	if len(problems) > 0 {
		return Result{
			Gate: g.ID(), Name: g.Name(), Passed: false,
			Evidence: strings.Join(problems, "; "),
		}
	}
	return Result{Gate: g.ID(), Name: g.Name(), Passed: true}
}

// DomainGate (E) applies a minimum checklist when the request matches a
// known domain via keyword heuristics.
type DomainGate struct{}

func (g *DomainGate) ID() string   { return "E" }
func (g *DomainGate) Name() string { return "domain_completeness" }

// domainCheck couples a request heuristic with the draft checklist the
// domain demands.
type domainCheck struct {
	domain    string
	requestRe *regexp.Regexp
	checklist []checklistItem
}

type checklistItem struct {
	name    string
	draftRe *regexp.Regexp
}

var domainChecks = []domainCheck{
	{
		domain:    "incident management",
		requestRe: regexp.MustCompile(`(?i)\b(incident|outage|postmortem|post-mortem|on-call|runbook)\b`),
		checklist: []checklistItem{
			{name: "severity taxonomy", draftRe: regexp.MustCompile(`(?i)\b(severity|sev\s?[0-9]|p[0-9])\b`)},
			{name: "escalation path", draftRe: regexp.MustCompile(`(?i)\b(escalat|page|notify|alert)\w*\b`)},
		},
	},
	{
		domain:    "code deliverable",
		requestRe: regexp.MustCompile(`(?i)\b(implement|library|script|cli|api|function|module|package)\b`),
		checklist: []checklistItem{
			{name: "install/setup steps", draftRe: regexp.MustCompile(`(?i)\b(install|setup|set up|dependencies|requirements)\b`)},
			{name: "run/usage steps", draftRe: regexp.MustCompile(`(?i)\b(run|usage|example|invoke|execute)\b`)},
		},
	},
}

func (g *DomainGate) Evaluate(in Input) Result {
	var problems []string
	for _, check := range domainChecks {
		if !check.requestRe.MatchString(in.Request) {
			continue
		}
		for _, item := range check.checklist {
			if !item.draftRe.MatchString(in.Draft) {
				problems = append(problems, fmt.Sprintf("%s: missing %s", check.domain, item.name))
			}
		}
	}
	if len(problems) > 0 {
		return Result{
			Gate: g.ID(), Name: g.Name(), Passed: false,
			Evidence: strings.Join(problems, "; "),
		}
	}
	return Result{Gate: g.ID(), Name: g.Name(), Passed: true}
}
