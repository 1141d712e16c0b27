package conversation

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MessageID uniquely identifies a message within a dialogue. IDs are assigned
// at creation time and never reused.
type MessageID uuid.UUID

func (id MessageID) MarshalJSON() ([]byte, error) {
	return json.Marshal(uuid.UUID(id))
}

func (id *MessageID) UnmarshalJSON(data []byte) error {
	var u uuid.UUID
	if err := json.Unmarshal(data, &u); err != nil {
		return err
	}
	*id = MessageID(u)
	return nil
}

func (id MessageID) String() string {
	return uuid.UUID(id).String()
}

func NewMessageID() MessageID {
	return MessageID(uuid.New())
}

var NilMessageID = MessageID(uuid.Nil)

// Author distinguishes who wrote a message.
type Author string

const (
	AuthorUser      Author = "user"
	AuthorAssistant Author = "assistant"
)

// Message is a single entry in a dialogue's ordered history. Content is only
// mutable for user-authored messages, through the store's edit path.
type Message struct {
	ID        MessageID `json:"id"`
	Author    Author    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type MessageOption func(*Message)

func WithID(id MessageID) MessageOption {
	return func(m *Message) {
		m.ID = id
	}
}

func WithCreatedAt(t time.Time) MessageOption {
	return func(m *Message) {
		m.CreatedAt = t
	}
}

func NewMessage(author Author, content string, options ...MessageOption) *Message {
	ret := &Message{
		ID:        NewMessageID(),
		Author:    author,
		Content:   content,
		CreatedAt: time.Now(),
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}
