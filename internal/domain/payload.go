package domain

// RunStartedPayload is the payload for run_started events.
type RunStartedPayload struct {
	SessionID string `json:"session_id"`
	Mode      Mode   `json:"mode"`
}

// UserInputPayload is the payload for user_input events.
type UserInputPayload struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

// RouteDecidedPayload is the payload for route_decided events.
type RouteDecidedPayload struct {
	Destination Destination `json:"destination"`
	Reasoning   string      `json:"reasoning,omitempty"`
	Forced      bool        `json:"forced,omitempty"`
	Degraded    bool        `json:"degraded,omitempty"`
}

// HistoryDegradedPayload is the payload for history_degraded events.
type HistoryDegradedPayload struct {
	SessionID string `json:"session_id"`
	Error     string `json:"error"`
}

// LLMCallDonePayload is the payload for llm_call_done events.
type LLMCallDonePayload struct {
	Operation string `json:"operation"`
	Model     string `json:"model"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`

	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// PipelineDonePayload is the payload for pipeline_done events.
type PipelineDonePayload struct {
	Destination Destination `json:"destination"`
	Outcome     string      `json:"outcome"`
	AnswerChars int         `json:"answer_chars"`
}

// RunDonePayload is the payload for run_done events.
type RunDonePayload struct {
	MessageID string `json:"message_id"`
}

// RunFailedPayload is the payload for run_failed events.
type RunFailedPayload struct {
	Error     string `json:"error"`
	MessageID string `json:"message_id,omitempty"`
}
