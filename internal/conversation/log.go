// Package conversation keeps the ordered message log of a chat with the model.
package conversation

import "github.com/priscilla100/goose-llm/internal/llm"

// Log is an ordered record of role-tagged messages. The zero value is empty and
// ready to use. Copying a Log shares its backing array; use Clone to fork.
type Log struct {
	messages []llm.Message
}

// New returns a log holding a copy of messages.
func New(messages ...llm.Message) Log {
	return Log{messages: append([]llm.Message(nil), messages...)}
}

// Append adds a message at the end of the log.
func (l *Log) Append(role llm.Role, content string) {
	l.messages = append(l.messages, llm.Message{Role: role, Content: content})
}

// Messages returns a copy of the messages in order.
func (l Log) Messages() []llm.Message {
	out := make([]llm.Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Len returns the number of messages.
func (l Log) Len() int {
	return len(l.messages)
}

// Last returns the final message, if any.
func (l Log) Last() (llm.Message, bool) {
	if len(l.messages) == 0 {
		return llm.Message{}, false
	}
	return l.messages[len(l.messages)-1], true
}

// Since returns a copy of the messages from index i onwards.
func (l Log) Since(i int) []llm.Message {
	if i < 0 {
		i = 0
	}
	if i >= len(l.messages) {
		return nil
	}
	out := make([]llm.Message, len(l.messages)-i)
	copy(out, l.messages[i:])
	return out
}

// Clone returns an independent copy of the log.
func (l Log) Clone() Log {
	return New(l.messages...)
}
