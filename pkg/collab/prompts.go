package collab

import (
	"fmt"
	"strings"
)

func analystPrompt(req Request) string {
	var sb strings.Builder
	sb.WriteString("You are the analyst in a multi-model pipeline. Break the request down: core task, constraints, unknowns, and what a complete answer must contain. Be terse and structured.\n\n")
	if req.ContextSummary != "" {
		sb.WriteString("Conversation summary:\n")
		sb.WriteString(req.ContextSummary)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Request:\n")
	sb.WriteString(req.Message)
	return sb.String()
}

func researcherPrompt(req Request, analysis string) string {
	var sb strings.Builder
	sb.WriteString("You are the researcher. Given the request and the analyst's breakdown, gather the factual background a good answer needs: definitions, prior art, pitfalls, relevant data. Flag anything you are not certain of.\n\n")
	sb.WriteString("Request:\n")
	sb.WriteString(req.Message)
	sb.WriteString("\n\nAnalyst breakdown:\n")
	sb.WriteString(analysis)
	return sb.String()
}

func creatorPrompt(req Request, analysis, research string) string {
	var sb strings.Builder
	sb.WriteString("You are a creator. Draft a complete answer to the request, using the analysis and research below. Use markdown headings and concrete steps where appropriate.\n\n")
	sb.WriteString("Request:\n")
	sb.WriteString(req.Message)
	sb.WriteString("\n\nAnalyst breakdown:\n")
	sb.WriteString(analysis)
	sb.WriteString("\n\nResearch notes:\n")
	sb.WriteString(research)
	return sb.String()
}

func criticPrompt(req Request, drafts []string) string {
	var sb strings.Builder
	sb.WriteString("You are the critic. Review every draft below against the request. For each draft list factual errors, gaps, unsupported claims, and structural weaknesses. Do not rewrite the drafts.\n\n")
	sb.WriteString("Request:\n")
	sb.WriteString(req.Message)
	for i, d := range drafts {
		sb.WriteString(fmt.Sprintf("\n\nDraft %d:\n---\n%s\n---", i, d))
	}
	return sb.String()
}

func councilPrompt(req Request, drafts []string, critique string) string {
	var sb strings.Builder
	sb.WriteString("You are the council. Select the best draft and specify what the final answer must keep and fix.\n")
	sb.WriteString("Respond with ONLY a JSON object, no prose, no extra fields:\n")
	sb.WriteString(`{"best_draft_index":int,"reasoning":"...","must_keep":["..."],"must_fix":["..."],"speculative":["..."]}`)
	sb.WriteString("\n\nbest_draft_index must be a valid index into the drafts below. speculative lists claims made without support.\n\n")
	sb.WriteString("Request:\n")
	sb.WriteString(req.Message)
	for i, d := range drafts {
		sb.WriteString(fmt.Sprintf("\n\nDraft %d:\n---\n%s\n---", i, d))
	}
	sb.WriteString("\n\nCritic's review:\n")
	sb.WriteString(critique)
	return sb.String()
}

func synthesizerPrompt(req Request, bestDraft string, verdict *CouncilVerdict) string {
	var sb strings.Builder
	sb.WriteString("You are the synthesizer. Produce the single final answer to the request, starting from the selected draft and applying the council's verdict. Remove or qualify every speculative claim.\n\n")
	sb.WriteString("Request:\n")
	sb.WriteString(req.Message)
	sb.WriteString("\n\nSelected draft:\n---\n")
	sb.WriteString(bestDraft)
	sb.WriteString("\n---\n")
	if len(verdict.MustKeep) > 0 {
		sb.WriteString("\nMust keep:\n")
		for _, k := range verdict.MustKeep {
			sb.WriteString("- " + k + "\n")
		}
	}
	if len(verdict.MustFix) > 0 {
		sb.WriteString("\nMust fix:\n")
		for _, f := range verdict.MustFix {
			sb.WriteString("- " + f + "\n")
		}
	}
	if len(verdict.Speculative) > 0 {
		sb.WriteString("\nSpeculative claims to remove or qualify:\n")
		for _, s := range verdict.Speculative {
			sb.WriteString("- " + s + "\n")
		}
	}
	sb.WriteString("\nReturn only the final answer.")
	return sb.String()
}

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
