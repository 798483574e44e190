package domain

// ContextSource tags which pipeline produced an assistant message.
type ContextSource string

const (
	ContextSourceDocumentSearch  ContextSource = "document_search"
	ContextSourceStructuredStore ContextSource = "structured_store"
	ContextSourceConversation    ContextSource = "conversation"
)

// TurnStatus marks an assistant turn that did not complete.
type TurnStatus string

const TurnStatusFailed TurnStatus = "failed"

// Metadata is attached to assistant messages. ContextSource is the tag:
// Query is only set for structured_store, Status and Error only on failed turns.
type Metadata struct {
	ContextSource ContextSource `json:"context_source"`
	Query         string        `json:"query,omitempty"`
	Status        TurnStatus    `json:"status,omitempty"`
	Error         string        `json:"error,omitempty"`
}

func RetrievalMetadata() Metadata {
	return Metadata{ContextSource: ContextSourceDocumentSearch}
}

func StructuredMetadata(query string) Metadata {
	return Metadata{ContextSource: ContextSourceStructuredStore, Query: query}
}

func ConversationMetadata() Metadata {
	return Metadata{ContextSource: ContextSourceConversation}
}

// Failed returns a copy of m tagged as a failed turn.
func (m Metadata) Failed(err error) Metadata {
	m.Status = TurnStatusFailed
	if err != nil {
		m.Error = err.Error()
	}
	return m
}

// IsFailed reports whether the turn was persisted after a failure.
func (m Metadata) IsFailed() bool {
	return m.Status == TurnStatusFailed
}

// RouteMetadata is the payload of the metadata stream event emitted after routing.
type RouteMetadata struct {
	Route     Destination `json:"route"`
	Reasoning string      `json:"reasoning"`
}
