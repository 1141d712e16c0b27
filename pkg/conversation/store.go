// Package conversation holds the ordered message history of a single dialogue.
//
// The store enforces the append-only shape of a chat history. The only two
// structural exceptions are the in-place edit of a user message (content
// replaced, position unchanged) and the removal of the one assistant reply
// that such an edit invalidates. Both are driven by the generation
// coordinator, never by the store itself.
package conversation

import (
	"errors"
	"strings"
)

var (
	ErrNotFound     = errors.New("message not found")
	ErrEmptyContent = errors.New("message content is empty")
	ErrNilMessage   = errors.New("message is nil")
)

// Store is the ordered message history of one dialogue. It is not safe for
// concurrent use; callers serialize access behind the manager's lock.
type Store struct {
	messages []*Message
}

func NewStore(messages ...*Message) *Store {
	ret := &Store{}
	ret.messages = append(ret.messages, messages...)
	return ret
}

// Append inserts a message at the end of the history. User-authored messages
// must have non-blank content and are stored trimmed; assistant messages are
// system-generated and exempt from validation.
func (s *Store) Append(msg *Message) error {
	if msg == nil {
		return ErrNilMessage
	}
	if msg.Author == AuthorUser {
		trimmed := strings.TrimSpace(msg.Content)
		if trimmed == "" {
			return ErrEmptyContent
		}
		msg.Content = trimmed
	}
	s.messages = append(s.messages, msg)
	return nil
}

// ReplaceContent swaps the content of an existing message in place, keeping
// its position in the history. Content is trimmed; an edit down to nothing is
// stored as the empty string rather than rejected (lenient edit policy, unlike
// the strict send path).
func (s *Store) ReplaceContent(id MessageID, content string) error {
	msg, _, ok := s.find(id)
	if !ok {
		return ErrNotFound
	}
	msg.Content = strings.TrimSpace(content)
	return nil
}

// Remove deletes a single message from the history.
func (s *Store) Remove(id MessageID) error {
	_, idx, ok := s.find(id)
	if !ok {
		return ErrNotFound
	}
	s.messages = append(s.messages[:idx], s.messages[idx+1:]...)
	return nil
}

// ReplyFollowing returns the assistant message immediately following the given
// message, if one exists. This is "the reply this message produced": the
// relationship is positional (index+1), not id-based.
func (s *Store) ReplyFollowing(id MessageID) (*Message, bool) {
	_, idx, ok := s.find(id)
	if !ok || idx+1 >= len(s.messages) {
		return nil, false
	}
	next := s.messages[idx+1]
	if next.Author != AuthorAssistant {
		return nil, false
	}
	return next, true
}

func (s *Store) Get(id MessageID) (*Message, bool) {
	msg, _, ok := s.find(id)
	return msg, ok
}

// Messages returns a copy of the history in chronological order.
func (s *Store) Messages() []*Message {
	ret := make([]*Message, len(s.messages))
	copy(ret, s.messages)
	return ret
}

func (s *Store) Len() int {
	return len(s.messages)
}

func (s *Store) find(id MessageID) (*Message, int, bool) {
	for i, msg := range s.messages {
		if msg.ID == id {
			return msg, i, true
		}
	}
	return nil, -1, false
}
