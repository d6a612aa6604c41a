package stream

import (
	"encoding/json"
	"fmt"
	"io"
)

// Payload returns the wire-level body of an event. Message events
// carry the serialized message itself so EventSource consumers can
// treat any record without an "error" or "complete" key as a message.
func Payload(ev Event) (any, error) {
	switch ev.Type {
	case EventMessage:
		return ev.Message, nil
	case EventError:
		return map[string]string{"error": ev.Error}, nil
	case EventComplete:
		return map[string]any{"complete": true, "total_turns": ev.TotalTurns}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", ev.Type)
	}
}

// EncodeSSE renders one event as a server-sent-events record: a single
// "data: <json>" line terminated by a blank line.
func EncodeSSE(ev Event) (string, error) {
	payload, err := Payload(ev)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("data: %s\n\n", data), nil
}

// WriteSSE encodes the event and writes it to w, flushing when w
// supports it so each record reaches the client before the next turn
// begins.
func WriteSSE(w io.Writer, ev Event) error {
	record, err := EncodeSSE(ev)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, record); err != nil {
		return err
	}
	if flusher, ok := w.(interface{ Flush() }); ok {
		flusher.Flush()
	}
	return nil
}
