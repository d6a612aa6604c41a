// Package stream delivers turn-by-turn events for one scheduler run.
package stream

import (
	"llm-duet/backend/internal/models"
)

// EventType discriminates stream events.
type EventType string

const (
	// EventMessage carries one generated message, in production order.
	EventMessage EventType = "message"
	// EventError carries a human-readable failure description. Always
	// the last event on its stream.
	EventError EventType = "error"
	// EventComplete carries the final turn count. Always the last
	// event on success.
	EventComplete EventType = "complete"
)

// Event is one discrete record on the stream. Exactly one terminal
// event (error or complete) ends every stream; nothing follows it.
type Event struct {
	Type       EventType       `json:"-"`
	Message    *models.Message `json:"-"`
	Error      string          `json:"error,omitempty"`
	Complete   bool            `json:"complete,omitempty"`
	TotalTurns int             `json:"total_turns,omitempty"`
}

// Terminal reports whether no further events may follow this one.
func (e Event) Terminal() bool {
	return e.Type == EventError || e.Type == EventComplete
}

// MessageEvent wraps a generated message.
func MessageEvent(msg models.Message) Event {
	return Event{Type: EventMessage, Message: &msg}
}

// ErrorEvent wraps a terminal failure description.
func ErrorEvent(description string) Event {
	return Event{Type: EventError, Error: description}
}

// CompleteEvent wraps the final turn count of a successful run.
func CompleteEvent(totalTurns int) Event {
	return Event{Type: EventComplete, Complete: true, TotalTurns: totalTurns}
}

// Emitter receives events in strict production order. Implementations
// must not reorder or batch across turns. Send returns false when the
// consumer is gone and the producer should stop.
type Emitter interface {
	Send(Event) bool
}

// ChannelEmitter bridges a producer goroutine to a consumer over a
// buffered channel, preserving order. Close after the terminal event.
type ChannelEmitter struct {
	ch     chan Event
	done   <-chan struct{}
	closed bool
}

// NewChannelEmitter creates an emitter whose consumer reads from
// Events(). done signals consumer disconnect.
func NewChannelEmitter(done <-chan struct{}) *ChannelEmitter {
	return &ChannelEmitter{
		ch:   make(chan Event, 16),
		done: done,
	}
}

// Events is the consumer side of the emitter.
func (e *ChannelEmitter) Events() <-chan Event {
	return e.ch
}

// Send delivers one event, returning false if the consumer disconnected.
func (e *ChannelEmitter) Send(ev Event) bool {
	select {
	case e.ch <- ev:
		return true
	case <-e.done:
		return false
	}
}

// Close releases the consumer. Safe to call once per run.
func (e *ChannelEmitter) Close() {
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}
