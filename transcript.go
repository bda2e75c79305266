package live

import (
	"sync"
	"time"

	"github.com/creastat/live/core"
)

// Transcript is the append-only, in-memory message log of one session.
// It is discarded on teardown; nothing is persisted.
type Transcript struct {
	mu       sync.Mutex
	messages []core.Message
}

// NewTranscript creates an empty transcript
func NewTranscript() *Transcript {
	return &Transcript{}
}

// Append records a message and returns it with its generated id and timestamp
func (t *Transcript) Append(role core.Role, text string) core.Message {
	msg := core.Message{
		ID:        generateMessageID(),
		Role:      role,
		Text:      text,
		Timestamp: time.Now(),
	}

	t.mu.Lock()
	t.messages = append(t.messages, msg)
	t.mu.Unlock()

	return msg
}

// Messages returns a copy of the transcript in append order
func (t *Transcript) Messages() []core.Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]core.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of messages
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

// generateMessageID creates a unique message ID
func generateMessageID() string {
	return "msg-" + time.Now().Format("20060102150405.000000")
}
