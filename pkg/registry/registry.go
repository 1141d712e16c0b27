// Package registry owns the collection of dialogues: lifecycle
// (create/rename/pin/delete), the active-dialogue selection, and the
// "at least one dialogue" invariant. It also provides the pure display
// ordering policy (pinned first, then recency).
//
// The registry is not safe for concurrent use on its own; the manager package
// serializes all mutations behind a single-writer lock.
package registry

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-go-golems/parley/pkg/conversation"
)

var (
	ErrNotFound     = errors.New("dialogue not found")
	ErrLastDialogue = errors.New("cannot delete the last remaining dialogue")
)

// DefaultGreeting seeds every new dialogue with the assistant's opening
// message.
const DefaultGreeting = "Hello! I'm your AI nutrition coach! 💪 I can help you with meal planning, calorie counting, and nutrition advice. Ready to crush your fitness goals together? How can I assist you today?"

// Registry holds all dialogues, keyed by id, plus the active-dialogue pointer.
// Membership changes only through Create and Delete; the registry is never
// empty once constructed.
type Registry struct {
	dialogues map[DialogueID]*Dialogue
	// creation order, newest first (new dialogues are inserted at the front,
	// matching the chat list the presentation layer shows)
	order  []DialogueID
	active DialogueID

	seq       int
	greeting  string
	firstName string
	clock     func() time.Time
}

type Option func(*Registry)

// WithGreeting overrides the assistant message every new dialogue is seeded
// with.
func WithGreeting(greeting string) Option {
	return func(r *Registry) {
		r.greeting = greeting
	}
}

// WithFirstDialogueName overrides the name of the dialogue the registry is
// seeded with. Later dialogues always get a sequence-numbered placeholder.
func WithFirstDialogueName(name string) Option {
	return func(r *Registry) {
		r.firstName = name
	}
}

// WithClock injects the time source, primarily for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(r *Registry) {
		r.clock = clock
	}
}

// New constructs a Registry seeded with one dialogue, so the non-empty
// invariant holds from the start.
func New(options ...Option) *Registry {
	ret := &Registry{
		dialogues: make(map[DialogueID]*Dialogue),
		greeting:  DefaultGreeting,
		clock:     time.Now,
	}

	for _, option := range options {
		option(ret)
	}

	ret.CreateDialogue()

	return ret
}

// CreateDialogue creates a new dialogue seeded with the assistant greeting,
// inserts it at the front of the creation order and makes it active. It always
// succeeds.
func (r *Registry) CreateDialogue() *Dialogue {
	now := r.clock()
	r.seq++

	name := fmt.Sprintf("Chat %d", r.seq)
	if r.seq == 1 && r.firstName != "" {
		name = r.firstName
	}

	d := &Dialogue{
		ID:           NewDialogueID(),
		Name:         name,
		CreatedAt:    now,
		LastActivity: now,
		store: conversation.NewStore(
			conversation.NewMessage(conversation.AuthorAssistant, r.greeting, conversation.WithCreatedAt(now)),
		),
	}

	r.dialogues[d.ID] = d
	r.order = append([]DialogueID{d.ID}, r.order...)
	r.active = d.ID

	return d
}

// Delete removes a dialogue. Deleting the last remaining dialogue is rejected
// with ErrLastDialogue. If the deleted dialogue was active, the active pointer
// is repointed to the first remaining dialogue under the ordering policy
// before the deletion completes.
func (r *Registry) Delete(id DialogueID) error {
	if _, ok := r.dialogues[id]; !ok {
		return ErrNotFound
	}
	if len(r.dialogues) <= 1 {
		return ErrLastDialogue
	}

	delete(r.dialogues, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	if r.active == id {
		ordered := OrderedDialogues(r.Dialogues())
		r.active = ordered[0]
	}

	return nil
}

// Rename changes a dialogue's display label. A whitespace-only name keeps the
// previous label; a rename never produces an empty one.
func (r *Registry) Rename(id DialogueID, name string) error {
	d, ok := r.dialogues[id]
	if !ok {
		return ErrNotFound
	}

	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil
	}
	d.Name = trimmed
	return nil
}

// TogglePin flips the pinned flag.
func (r *Registry) TogglePin(id DialogueID) error {
	d, ok := r.dialogues[id]
	if !ok {
		return ErrNotFound
	}
	d.Pinned = !d.Pinned
	return nil
}

// SetActive switches the active-dialogue pointer. Pure selection, no other
// side effect.
func (r *Registry) SetActive(id DialogueID) error {
	if _, ok := r.dialogues[id]; !ok {
		return ErrNotFound
	}
	r.active = id
	return nil
}

// AppendUserMessage appends a user message to a dialogue and bumps its
// last-activity timestamp. Blank text is rejected by the store with
// conversation.ErrEmptyContent.
func (r *Registry) AppendUserMessage(id DialogueID, text string) (*conversation.Message, error) {
	d, ok := r.dialogues[id]
	if !ok {
		return nil, ErrNotFound
	}

	now := r.clock()
	msg := conversation.NewMessage(conversation.AuthorUser, text, conversation.WithCreatedAt(now))
	if err := d.store.Append(msg); err != nil {
		return nil, err
	}
	d.LastActivity = now
	return msg, nil
}

// AppendAssistantMessage commits a generated reply to a dialogue. This is the
// generation coordinator's commit path.
func (r *Registry) AppendAssistantMessage(id DialogueID, text string) (*conversation.Message, error) {
	d, ok := r.dialogues[id]
	if !ok {
		return nil, ErrNotFound
	}

	now := r.clock()
	msg := conversation.NewMessage(conversation.AuthorAssistant, text, conversation.WithCreatedAt(now))
	if err := d.store.Append(msg); err != nil {
		return nil, err
	}
	d.LastActivity = now
	return msg, nil
}

// ReplaceMessageContent edits a message in place, keeping its position.
func (r *Registry) ReplaceMessageContent(id DialogueID, messageID conversation.MessageID, content string) error {
	d, ok := r.dialogues[id]
	if !ok {
		return ErrNotFound
	}
	return d.store.ReplaceContent(messageID, content)
}

// RemoveMessage removes a single message. Used only to discard a stale reply
// after an edit.
func (r *Registry) RemoveMessage(id DialogueID, messageID conversation.MessageID) error {
	d, ok := r.dialogues[id]
	if !ok {
		return ErrNotFound
	}
	return d.store.Remove(messageID)
}

// ReplyFollowing returns the assistant reply immediately following the given
// message in the dialogue, if any.
func (r *Registry) ReplyFollowing(id DialogueID, messageID conversation.MessageID) (*conversation.Message, bool) {
	d, ok := r.dialogues[id]
	if !ok {
		return nil, false
	}
	return d.store.ReplyFollowing(messageID)
}

func (r *Registry) Get(id DialogueID) (*Dialogue, bool) {
	d, ok := r.dialogues[id]
	return d, ok
}

// Dialogues returns all dialogues in creation order, newest first.
func (r *Registry) Dialogues() []*Dialogue {
	ret := make([]*Dialogue, 0, len(r.order))
	for _, id := range r.order {
		ret = append(ret, r.dialogues[id])
	}
	return ret
}

// ActiveID returns the active dialogue's id. It always resolves to a member of
// the registry.
func (r *Registry) ActiveID() DialogueID {
	return r.active
}

func (r *Registry) Len() int {
	return len(r.dialogues)
}
