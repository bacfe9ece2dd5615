// Package intent turns a user message into a structured routing intent.
package intent

// TaskType categorizes what the user is asking for.
type TaskType string

const (
	TaskGenericChat      TaskType = "generic_chat"
	TaskWebResearch      TaskType = "web_research"
	TaskDeepReasoning    TaskType = "deep_reasoning"
	TaskCoding           TaskType = "coding"
	TaskMath             TaskType = "math"
	TaskSummarization    TaskType = "summarization"
	TaskDocumentAnalysis TaskType = "document_analysis"
	TaskCreativeWriting  TaskType = "creative_writing"
)

// TaskTypes lists every task type.
func TaskTypes() []TaskType {
	return []TaskType{
		TaskGenericChat, TaskWebResearch, TaskDeepReasoning, TaskCoding,
		TaskMath, TaskSummarization, TaskDocumentAnalysis, TaskCreativeWriting,
	}
}

// ParseTaskType validates a task type string.
func ParseTaskType(s string) (TaskType, bool) {
	for _, t := range TaskTypes() {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// Priority expresses what the caller wants optimized.
type Priority string

const (
	PriorityQuality Priority = "quality"
	PrioritySpeed   Priority = "speed"
	PriorityCost    Priority = "cost"
)

// ParsePriority validates a priority string.
func ParsePriority(s string) (Priority, bool) {
	switch Priority(s) {
	case PriorityQuality, PrioritySpeed, PriorityCost:
		return Priority(s), true
	}
	return "", false
}

// Intent is the structured classification of one request. Immutable;
// created per request and discarded after routing.
type Intent struct {
	TaskType             TaskType `json:"task_type"`
	RequiresWeb          bool     `json:"requires_web"`
	RequiresTools        bool     `json:"requires_tools"`
	Priority             Priority `json:"priority"`
	EstimatedInputTokens int      `json:"estimated_input_tokens"`
}

// Default is the intent used when classification fails: safe, quality
// priority, token estimate from message length.
func Default(message string) Intent {
	return Intent{
		TaskType:             TaskGenericChat,
		RequiresWeb:          false,
		RequiresTools:        false,
		Priority:             PriorityQuality,
		EstimatedInputTokens: EstimateTokens(message),
	}
}

// EstimateTokens approximates token count from message length, floored at
// 100 so short prompts don't score against tiny context windows.
func EstimateTokens(message string) int {
	t := len(message) / 4
	if t < 100 {
		t = 100
	}
	return t
}
