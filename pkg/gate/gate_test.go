package gate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// structuredDraft passes the completeness gate: two headings and action
// markers, no greeting.
const structuredDraft = `# Plan

- first do this
- then do that

# Details

1. step one
2. step two
`

func TestGreetingGate(t *testing.T) {
	g := &GreetingGate{}

	cases := []struct {
		name    string
		draft   string
		request string
		passed  bool
	}{
		{"greeting without cause", "Hello! Here is the plan.", "Summarize this document.", false},
		{"greeting answered in kind", "Hi! Happy to help.", "Hi, can you help me?", true},
		{"no greeting", "The plan has three parts.", "Summarize this document.", true},
		{"greeting word mid-sentence", "The word hello appears in the corpus.", "Count words.", true},
		{"good morning", "Good morning! The answer is 4.", "What is 2+2?", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := g.Evaluate(Input{Draft: tc.draft, Request: tc.request})
			require.Equal(t, tc.passed, res.Passed)
		})
	}
}

func TestGreetingGateIsDeterministic(t *testing.T) {
	g := &GreetingGate{}
	in := Input{Draft: "Hello! Plan below.", Request: "make a plan"}
	first := g.Evaluate(in)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, g.Evaluate(in))
	}
}

func TestLexiconGate(t *testing.T) {
	g := &LexiconGate{}
	lexicon := &LexiconLock{Forbidden: []string{"synergy", "paradigm shift"}}

	res := g.Evaluate(Input{Draft: "We leverage synergy across teams.", Lexicon: lexicon})
	require.False(t, res.Passed)
	require.Contains(t, res.Evidence, "synergy")

	res = g.Evaluate(Input{Draft: "A Paradigm Shift is coming.", Lexicon: lexicon})
	require.False(t, res.Passed, "matching must be case-insensitive")

	// Word boundaries: a forbidden term inside a longer word is fine.
	res = g.Evaluate(Input{Draft: "synergystic is not a word", Lexicon: lexicon})
	require.True(t, res.Passed)

	res = g.Evaluate(Input{Draft: "anything at all"})
	require.True(t, res.Passed, "nil lexicon always passes")
}

func TestContractGate(t *testing.T) {
	g := &ContractGate{}
	draft := "# Overview\n\ntext\n\n# Usage\n\n```go\ncode\n```\n"

	res := g.Evaluate(Input{Draft: draft, Contract: &OutputContract{
		RequiredHeadings:   []string{"overview", "Usage"},
		RequiredBlockCount: 1,
	}})
	require.True(t, res.Passed, "heading match is case-insensitive: %s", res.Evidence)

	res = g.Evaluate(Input{Draft: draft, Contract: &OutputContract{
		RequiredHeadings: []string{"Installation"},
	}})
	require.False(t, res.Passed)
	require.Contains(t, res.Evidence, "Installation")

	res = g.Evaluate(Input{Draft: draft, Contract: &OutputContract{
		RequiredBlockCount: 2,
	}})
	require.False(t, res.Passed, "block count must match exactly")

	res = g.Evaluate(Input{Draft: draft})
	require.True(t, res.Passed, "nil contract always passes")
}

func TestCompletenessGate(t *testing.T) {
	g := &CompletenessGate{}

	res := g.Evaluate(Input{Draft: structuredDraft})
	require.True(t, res.Passed, res.Evidence)

	res = g.Evaluate(Input{Draft: "# Only One Heading\n\nprose without steps"})
	require.False(t, res.Passed)

	dup := "# Part\n\n- a step\n\n# Part\n\n- another step\n"
	res = g.Evaluate(Input{Draft: dup})
	require.False(t, res.Passed)
	require.Contains(t, res.Evidence, "duplicated heading")
}

func TestDomainGateIncident(t *testing.T) {
	g := &DomainGate{}
	request := "Write a runbook for the payments outage incident."

	complete := structuredDraft + "\nSeverity: SEV1. Escalate to the on-call lead.\n"
	res := g.Evaluate(Input{Draft: complete, Request: request})
	require.True(t, res.Passed, res.Evidence)

	res = g.Evaluate(Input{Draft: structuredDraft, Request: request})
	require.False(t, res.Passed)
	require.Contains(t, res.Evidence, "severity taxonomy")
}

func TestDomainGateCodeDeliverable(t *testing.T) {
	g := &DomainGate{}
	request := "Implement a CLI for syncing files."

	complete := structuredDraft + "\nInstall the dependencies, then run the example.\n"
	res := g.Evaluate(Input{Draft: complete, Request: request})
	require.True(t, res.Passed, res.Evidence)

	bare := "# Design\n\n- a point\n\n# Notes\n\n- b point\n"
	res = g.Evaluate(Input{Draft: bare, Request: request})
	require.False(t, res.Passed)
}

func TestValidateAllCollectsEveryViolation(t *testing.T) {
	v := NewValidator()

	// Greets unprompted, uses a forbidden term, misses the contract and
	// has no structure.
	in := Input{
		Draft:    "Hello! We embrace synergy.",
		Request:  "Summarize the quarterly report.",
		Lexicon:  &LexiconLock{Forbidden: []string{"synergy"}},
		Contract: &OutputContract{RequiredHeadings: []string{"Summary"}},
	}

	passed, violations, results := v.ValidateAll(in)
	require.False(t, passed)
	require.Len(t, results, 5)
	require.GreaterOrEqual(t, len(violations), 4, "all failing gates must report, not just the first")

	var joined = strings.Join(violations, "\n")
	require.Contains(t, joined, "Gate A")
	require.Contains(t, joined, "Gate B")
	require.Contains(t, joined, "Gate C")
	require.Contains(t, joined, "Gate D")
}

func TestValidateAllPassesCleanDraft(t *testing.T) {
	v := NewValidator()
	passed, violations, results := v.ValidateAll(Input{
		Draft:   structuredDraft,
		Request: "Outline a plan for the migration.",
	})
	require.True(t, passed, "%v", violations)
	require.Empty(t, violations)
	for _, r := range results {
		require.True(t, r.Passed)
	}
}

func TestHeadingsAndBlockCount(t *testing.T) {
	s := "# One\n\n## Two\n\ntext\n```\nblock\n```\n```go\nblock\n```\n"
	require.Equal(t, []string{"One", "Two"}, headings(s))
	require.Equal(t, 2, fencedBlockCount(s))
	require.Equal(t, 0, fencedBlockCount("no fences here"))
}
