// Package manager is the single-writer facade over the dialogue registry and
// the generation coordinator. Every mutation and every generation completion
// passes through one mutex, which makes the epoch check of a finished reply
// atomic with the message-store commit: a stale reply can never land after a
// newer send or edit has claimed the dialogue.
package manager

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/parley/pkg/conversation"
	"github.com/go-go-golems/parley/pkg/events"
	"github.com/go-go-golems/parley/pkg/generation"
	"github.com/go-go-golems/parley/pkg/registry"
)

var (
	ErrNotUserMessage = errors.New("only user messages can be edited")
)

// Manager owns a Registry and a generation Coordinator and exposes the
// command surface of the application. All methods are safe for concurrent use.
type Manager struct {
	mu          sync.Mutex
	registry    *registry.Registry
	coordinator *generation.Coordinator
	publishers  *events.PublisherManager
}

type Option func(*Manager)

// WithPublisherManager injects the publisher fan-out the manager emits
// generation lifecycle events on. By default the manager creates its own.
func WithPublisherManager(pm *events.PublisherManager) Option {
	return func(m *Manager) {
		m.publishers = pm
	}
}

// WithRegistry injects a pre-built registry, primarily so tests can control
// the clock and the seeded dialogue.
func WithRegistry(r *registry.Registry) Option {
	return func(m *Manager) {
		m.registry = r
	}
}

func NewManager(generator generation.Generator, options ...Option) *Manager {
	ret := &Manager{
		publishers: events.NewPublisherManager(),
	}

	for _, option := range options {
		option(ret)
	}

	if ret.registry == nil {
		ret.registry = registry.New(registry.WithFirstDialogueName("Nutrition Chat"))
	}
	ret.coordinator = generation.NewCoordinator(
		generator,
		generation.WithCompletionFunc(ret.onGenerationResult),
	)

	return ret
}

// PublisherManager exposes the event fan-out so callers can attach
// subscribers.
func (m *Manager) PublisherManager() *events.PublisherManager {
	return m.publishers
}

// CreateDialogue creates a new dialogue, makes it active and returns its id.
func (m *Manager) CreateDialogue() registry.DialogueID {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := m.registry.CreateDialogue()
	log.Debug().Str("dialogue_id", d.ID.String()).Str("name", d.Name).Msg("created dialogue")
	return d.ID
}

// DeleteDialogue removes a dialogue, cancelling any reply still being
// generated for it. The last remaining dialogue cannot be deleted.
func (m *Manager) DeleteDialogue(id registry.DialogueID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.registry.Delete(id); err != nil {
		return err
	}
	m.coordinator.Forget(id)
	log.Debug().Str("dialogue_id", id.String()).Msg("deleted dialogue")
	return nil
}

// RenameDialogue changes a dialogue's display label. Whitespace-only names
// are ignored and keep the previous label.
func (m *Manager) RenameDialogue(id registry.DialogueID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry.Rename(id, name)
}

// TogglePin flips a dialogue's pinned flag.
func (m *Manager) TogglePin(id registry.DialogueID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry.TogglePin(id)
}

// SetActive switches the active dialogue.
func (m *Manager) SetActive(id registry.DialogueID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry.SetActive(id)
}

// SendMessage appends a user message to a dialogue and starts generating the
// reply. Blank text is rejected with conversation.ErrEmptyContent and leaves
// the dialogue untouched. If a reply was already pending it is superseded.
func (m *Manager) SendMessage(ctx context.Context, id registry.DialogueID, text string) (*generation.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, err := m.registry.AppendUserMessage(id, text)
	if err != nil {
		return nil, err
	}

	return m.startGeneration(ctx, id, msg.Content)
}

// EditMessage rewrites an existing user message in place, discards the
// assistant reply that followed it (if any) and regenerates a fresh reply from
// the edited content. Any reply still pending for the dialogue is superseded.
func (m *Manager) EditMessage(ctx context.Context, id registry.DialogueID, messageID conversation.MessageID, content string) (*generation.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.registry.Get(id)
	if !ok {
		return nil, registry.ErrNotFound
	}
	msg, ok := d.GetMessage(messageID)
	if !ok {
		return nil, conversation.ErrNotFound
	}
	if msg.Author != conversation.AuthorUser {
		return nil, ErrNotUserMessage
	}

	if err := m.registry.ReplaceMessageContent(id, messageID, content); err != nil {
		return nil, err
	}
	if reply, ok := m.registry.ReplyFollowing(id, messageID); ok {
		if err := m.registry.RemoveMessage(id, reply.ID); err != nil {
			return nil, err
		}
	}

	return m.startGeneration(ctx, id, msg.Content)
}

// startGeneration must be called with m.mu held.
func (m *Manager) startGeneration(ctx context.Context, id registry.DialogueID, prompt string) (*generation.Handle, error) {
	handle, err := m.coordinator.Start(ctx, id, prompt)
	if err != nil {
		return nil, err
	}

	m.publishers.PublishBlind(events.NewStartedEvent(events.EventMetadata{
		DialogueID: id.String(),
		Epoch:      handle.Epoch,
	}, prompt))

	return handle, nil
}

// onGenerationResult runs on the generator goroutine for every finished call.
// It takes the manager lock, so the epoch claim and the transcript commit are
// one atomic step with respect to every command above.
func (m *Manager) onGenerationResult(r generation.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()

	meta := events.EventMetadata{
		DialogueID: r.DialogueID.String(),
		Epoch:      r.Epoch,
	}

	if !m.coordinator.Resolve(r.DialogueID, r.Epoch) {
		log.Debug().Object("meta", meta).Msg("discarding superseded generation result")
		m.publishers.PublishBlind(events.NewSupersededEvent(meta))
		return
	}

	if r.Err != nil {
		log.Warn().Err(r.Err).Object("meta", meta).Msg("reply generation failed")
		m.publishers.PublishBlind(events.NewErrorEvent(meta, r.Err))
		return
	}

	msg, err := m.registry.AppendAssistantMessage(r.DialogueID, r.Reply)
	if err != nil {
		// The dialogue can only have vanished between Resolve and here if the
		// registry and coordinator disagree, which the shared lock rules out.
		log.Error().Err(err).Object("meta", meta).Msg("failed to commit generated reply")
		m.publishers.PublishBlind(events.NewErrorEvent(meta, err))
		return
	}

	m.publishers.PublishBlind(events.NewFinalEvent(meta, msg.ID.String(), msg.Content))
}
