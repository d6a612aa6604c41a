package stream

import (
	"strings"
	"testing"
	"time"

	"llm-duet/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelEmitterPreservesOrder(t *testing.T) {
	emitter := NewChannelEmitter(make(chan struct{}))

	go func() {
		emitter.Send(MessageEvent(models.Message{ID: "1", Content: "a"}))
		emitter.Send(MessageEvent(models.Message{ID: "2", Content: "b"}))
		emitter.Send(CompleteEvent(2))
		emitter.Close()
	}()

	var events []Event
	for ev := range emitter.Events() {
		events = append(events, ev)
	}

	require.Len(t, events, 3)
	assert.Equal(t, "1", events[0].Message.ID)
	assert.Equal(t, "2", events[1].Message.ID)
	assert.Equal(t, EventComplete, events[2].Type)
	assert.True(t, events[2].Terminal())
	assert.False(t, events[0].Terminal())
}

func TestChannelEmitterStopsOnDisconnect(t *testing.T) {
	done := make(chan struct{})
	emitter := NewChannelEmitter(done)

	// Fill the buffer with nobody reading, then disconnect.
	for i := 0; i < 16; i++ {
		require.True(t, emitter.Send(MessageEvent(models.Message{})))
	}
	close(done)

	delivered := make(chan bool, 1)
	go func() {
		delivered <- emitter.Send(MessageEvent(models.Message{}))
	}()

	select {
	case ok := <-delivered:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Send did not observe disconnect")
	}
}

func TestEncodeSSEMessage(t *testing.T) {
	msg := models.Message{
		ID:        "m1",
		Role:      models.RoleAssistant,
		Character: "Alice",
		Content:   "Hello",
	}

	record, err := EncodeSSE(MessageEvent(msg))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(record, "data: "))
	assert.True(t, strings.HasSuffix(record, "\n\n"))
	assert.Contains(t, record, `"character":"Alice"`)
	assert.Contains(t, record, `"content":"Hello"`)
}

func TestEncodeSSETerminalEvents(t *testing.T) {
	record, err := EncodeSSE(ErrorEvent("provider request failed"))
	require.NoError(t, err)
	assert.Equal(t, "data: {\"error\":\"provider request failed\"}\n\n", record)

	record, err = EncodeSSE(CompleteEvent(10))
	require.NoError(t, err)
	assert.Contains(t, record, `"complete":true`)
	assert.Contains(t, record, `"total_turns":10`)
}

func TestWriteSSE(t *testing.T) {
	var sb strings.Builder
	err := WriteSSE(&sb, ErrorEvent("boom"))
	require.NoError(t, err)
	assert.Equal(t, "data: {\"error\":\"boom\"}\n\n", sb.String())
}
