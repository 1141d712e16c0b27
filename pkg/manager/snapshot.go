package manager

import (
	"time"

	"github.com/go-go-golems/parley/pkg/generation"
	"github.com/go-go-golems/parley/pkg/registry"
)

// MessageView is an immutable copy of a single transcript entry.
type MessageView struct {
	ID        string    `json:"id" yaml:"id"`
	Author    string    `json:"author" yaml:"author"`
	Content   string    `json:"content" yaml:"content"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// DialogueView is an immutable copy of a dialogue, including its generation
// phase.
type DialogueView struct {
	ID           string           `json:"id" yaml:"id"`
	Name         string           `json:"name" yaml:"name"`
	Pinned       bool             `json:"pinned" yaml:"pinned"`
	Phase        generation.Phase `json:"phase" yaml:"phase"`
	CreatedAt    time.Time        `json:"created_at" yaml:"created_at"`
	LastActivity time.Time        `json:"last_activity" yaml:"last_activity"`
	Messages     []MessageView    `json:"messages" yaml:"messages"`
}

// Snapshot is a point-in-time copy of the whole session, with dialogues in
// display order: pinned first, then most recent activity.
type Snapshot struct {
	ActiveID  string         `json:"active_id" yaml:"active_id"`
	Dialogues []DialogueView `json:"dialogues" yaml:"dialogues"`
}

// Snapshot copies the full session state under the manager lock. The result
// shares nothing with live state and can be rendered or serialized freely.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	dialogues := m.registry.Dialogues()
	byID := make(map[registry.DialogueID]*registry.Dialogue, len(dialogues))
	for _, d := range dialogues {
		byID[d.ID] = d
	}

	ret := Snapshot{
		ActiveID:  m.registry.ActiveID().String(),
		Dialogues: make([]DialogueView, 0, len(dialogues)),
	}
	for _, id := range registry.OrderedDialogues(dialogues) {
		ret.Dialogues = append(ret.Dialogues, m.viewOf(byID[id]))
	}

	return ret
}

// ActiveDialogue returns a copy of the active dialogue.
func (m *Manager) ActiveDialogue() DialogueView {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, _ := m.registry.Get(m.registry.ActiveID())
	return m.viewOf(d)
}

// Dialogue returns a copy of a single dialogue by id.
func (m *Manager) Dialogue(id registry.DialogueID) (DialogueView, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.registry.Get(id)
	if !ok {
		return DialogueView{}, false
	}
	return m.viewOf(d), true
}

// ActiveID returns the id of the active dialogue.
func (m *Manager) ActiveID() registry.DialogueID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry.ActiveID()
}

// viewOf must be called with m.mu held.
func (m *Manager) viewOf(d *registry.Dialogue) DialogueView {
	messages := d.Messages()
	view := DialogueView{
		ID:           d.ID.String(),
		Name:         d.Name,
		Pinned:       d.Pinned,
		Phase:        m.coordinator.Phase(d.ID),
		CreatedAt:    d.CreatedAt,
		LastActivity: d.LastActivity,
		Messages:     make([]MessageView, 0, len(messages)),
	}
	for _, msg := range messages {
		view.Messages = append(view.Messages, MessageView{
			ID:        msg.ID.String(),
			Author:    string(msg.Author),
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
		})
	}
	return view
}
