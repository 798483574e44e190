// Package domain defines the core domain models for the router.
package domain

// Destination is the pipeline a message is dispatched to.
type Destination string

const (
	DestinationDocumentQA      Destination = "document_qa"
	DestinationStructuredQuery Destination = "structured_query"
	DestinationConversation    Destination = "conversation"
)

// Valid reports whether d is one of the known destinations.
func (d Destination) Valid() bool {
	switch d {
	case DestinationDocumentQA, DestinationStructuredQuery, DestinationConversation:
		return true
	}
	return false
}

// Mode selects automatic routing or a forced destination.
type Mode string

const (
	ModeAuto            Mode = "auto"
	ModeDocumentQA      Mode = "document_qa"
	ModeStructuredQuery Mode = "structured_query"
)

// Forced returns the destination a non-auto mode pins the request to.
func (m Mode) Forced() (Destination, bool) {
	switch m {
	case ModeDocumentQA:
		return DestinationDocumentQA, true
	case ModeStructuredQuery:
		return DestinationStructuredQuery, true
	}
	return "", false
}

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// StreamEventType is the discriminator of an outbound stream event.
type StreamEventType string

const (
	StreamEventToken    StreamEventType = "token"
	StreamEventMetadata StreamEventType = "metadata"
	StreamEventDone     StreamEventType = "done"
	StreamEventError    StreamEventType = "error"
)

// RunStatus represents the status of a run.
type RunStatus string

const (
	RunStatusRunning RunStatus = "RUNNING"
	RunStatusDone    RunStatus = "DONE"
	RunStatusFailed  RunStatus = "FAILED"
)

// EventType represents the type of a trace event recorded for a run.
type EventType string

const (
	EventTypeRunStarted   EventType = "run_started"
	EventTypeUserInput    EventType = "user_input"
	EventTypeRouteDecided EventType = "route_decided"
	EventTypeLLMCallDone  EventType = "llm_call_done"
	EventTypePipelineDone EventType = "pipeline_done"
	EventTypeRunDone      EventType = "run_done"
	EventTypeRunFailed    EventType = "run_failed"

	// EventTypeHistoryDegraded marks a turn answered without prior context
	// because the history read failed.
	EventTypeHistoryDegraded EventType = "history_degraded"
)

// DocumentStatus is the ingestion state of an uploaded document.
type DocumentStatus string

const (
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusReady      DocumentStatus = "ready"
	DocumentStatusError      DocumentStatus = "error"
)
