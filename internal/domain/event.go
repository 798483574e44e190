package domain

import (
	"bytes"
	"encoding/json"
)

// StreamEvent is one record of the outbound event stream.
type StreamEvent struct {
	Type     StreamEventType `json:"type"`
	Content  string          `json:"content,omitempty"`
	Metadata *RouteMetadata  `json:"metadata,omitempty"`
}

// TokenEvent creates a token event carrying a piece of the answer.
func TokenEvent(text string) StreamEvent {
	return StreamEvent{Type: StreamEventToken, Content: text}
}

// MetadataEvent creates a metadata event announcing the chosen route.
func MetadataEvent(route Destination, reasoning string) StreamEvent {
	return StreamEvent{Type: StreamEventMetadata, Metadata: &RouteMetadata{Route: route, Reasoning: reasoning}}
}

// DoneEvent creates the terminal event of a successful turn.
func DoneEvent() StreamEvent {
	return StreamEvent{Type: StreamEventDone}
}

// ErrorEvent creates the terminal event of a failed turn.
func ErrorEvent(message string) StreamEvent {
	return StreamEvent{Type: StreamEventError, Content: message}
}

// IsTerminal reports whether e closes the stream.
func (e StreamEvent) IsTerminal() bool {
	return e.Type == StreamEventDone || e.Type == StreamEventError
}

// MarshalJSON renders the wire shape: metadata events carry only "metadata",
// every other type carries "content", even when empty. HTML is not escaped.
func (e StreamEvent) MarshalJSON() ([]byte, error) {
	if e.Type == StreamEventMetadata {
		return encodeJSON(struct {
			Type     StreamEventType `json:"type"`
			Metadata *RouteMetadata  `json:"metadata"`
		}{e.Type, e.Metadata})
	}
	return encodeJSON(struct {
		Type    StreamEventType `json:"type"`
		Content string          `json:"content"`
	}{e.Type, e.Content})
}

// Line encodes e as a single newline-terminated NDJSON record.
// Newlines and quotes inside content are escaped by the JSON encoding.
func (e StreamEvent) Line() ([]byte, error) {
	b, err := e.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
