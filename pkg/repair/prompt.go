// Package repair builds the prompts used to fix quality-gate failures.
package repair

import (
	"fmt"
	"strings"
)

// RepairPrompt instructs the model to fix only the flagged violations
// without otherwise changing the draft's meaning.
func RepairPrompt(draft string, violations []string) string {
	var sb strings.Builder

	sb.WriteString("The following answer failed quality checks:\n\n")
	sb.WriteString("---\n")
	sb.WriteString(draft)
	sb.WriteString("\n---\n\n")

	sb.WriteString("Issues found:\n")
	for _, v := range violations {
		sb.WriteString(fmt.Sprintf("- %s\n", v))
	}

	sb.WriteString("\nFix ONLY the issues listed above. Do not change the meaning, structure, or content beyond what the issues require. Return the full corrected answer.")

	return sb.String()
}

// EscalationPrompt is used when the repaired draft still fails and a
// stronger model takes over synthesis.
func EscalationPrompt(request, draft string, violations []string) string {
	var sb strings.Builder

	sb.WriteString("A previous model failed to produce an answer that passes quality checks.\n\n")
	sb.WriteString("Original request:\n")
	sb.WriteString(request)
	sb.WriteString("\n\nFailing answer:\n---\n")
	sb.WriteString(draft)
	sb.WriteString("\n---\n\nUnresolved issues:\n")
	for _, v := range violations {
		sb.WriteString(fmt.Sprintf("- %s\n", v))
	}
	sb.WriteString("\nWrite a corrected answer that satisfies every issue above while fully answering the original request.")

	return sb.String()
}
