package manager

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/parley/pkg/conversation"
	"github.com/go-go-golems/parley/pkg/events"
	"github.com/go-go-golems/parley/pkg/generation"
	"github.com/go-go-golems/parley/pkg/registry"
)

func newTestClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func echoGenerator() generation.Generator {
	return generation.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		return "reply to: " + prompt, nil
	})
}

// gateGenerator parks every call until release is closed, so tests can hold a
// dialogue in the pending phase.
type gateGenerator struct {
	release chan struct{}
	reply   string
}

func newGateGenerator(reply string) *gateGenerator {
	return &gateGenerator{release: make(chan struct{}), reply: reply}
}

func (g *gateGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-g.release:
		return g.reply + prompt, nil
	}
}

func newTestManager(t *testing.T, generator generation.Generator) *Manager {
	t.Helper()
	return NewManager(generator, WithRegistry(registry.New(
		registry.WithFirstDialogueName("Nutrition Chat"),
		registry.WithClock(newTestClock()),
	)))
}

func TestManager_SeededState(t *testing.T) {
	m := newTestManager(t, echoGenerator())

	snap := m.Snapshot()
	require.Len(t, snap.Dialogues, 1)
	d := snap.Dialogues[0]
	require.Equal(t, "Nutrition Chat", d.Name)
	require.Equal(t, snap.ActiveID, d.ID)
	require.Equal(t, generation.PhaseIdle, d.Phase)
	require.Len(t, d.Messages, 1)
	require.Equal(t, "assistant", d.Messages[0].Author)
	require.Contains(t, d.Messages[0].Content, "nutrition coach")
}

func TestManager_CreateDialogueBecomesActive(t *testing.T) {
	m := newTestManager(t, echoGenerator())

	id := m.CreateDialogue()
	require.Equal(t, id, m.ActiveID())

	snap := m.Snapshot()
	require.Len(t, snap.Dialogues, 2)
	require.Equal(t, "Chat 2", snap.Dialogues[0].Name)
	require.Equal(t, id.String(), snap.Dialogues[0].ID)
}

func TestManager_SendMessageCommitsReply(t *testing.T) {
	m := newTestManager(t, echoGenerator())
	id := m.ActiveID()

	handle, err := m.SendMessage(context.Background(), id, "  how much protein?  ")
	require.NoError(t, err)

	reply, err := handle.Wait()
	require.NoError(t, err)
	require.Equal(t, "reply to: how much protein?", reply)

	d, ok := m.Dialogue(id)
	require.True(t, ok)
	require.Equal(t, generation.PhaseIdle, d.Phase)
	require.Len(t, d.Messages, 3)
	require.Equal(t, "user", d.Messages[1].Author)
	require.Equal(t, "how much protein?", d.Messages[1].Content)
	require.Equal(t, "assistant", d.Messages[2].Author)
	require.Equal(t, reply, d.Messages[2].Content)
}

func TestManager_SendBlankMessageIsRejectedWithoutMutation(t *testing.T) {
	m := newTestManager(t, echoGenerator())
	id := m.ActiveID()
	before, _ := m.Dialogue(id)

	_, err := m.SendMessage(context.Background(), id, "   \t\n ")
	require.ErrorIs(t, err, conversation.ErrEmptyContent)

	after, _ := m.Dialogue(id)
	require.Equal(t, before.Messages, after.Messages)
	require.Equal(t, generation.PhaseIdle, after.Phase)
	require.Equal(t, before.LastActivity, after.LastActivity)
}

func TestManager_SendToUnknownDialogue(t *testing.T) {
	m := newTestManager(t, echoGenerator())
	_, err := m.SendMessage(context.Background(), registry.NewDialogueID(), "hello")
	require.ErrorIs(t, err, registry.ErrNotFound)
}

func TestManager_PendingPhaseWhileGenerating(t *testing.T) {
	gen := newGateGenerator("ok: ")
	m := newTestManager(t, gen)
	id := m.ActiveID()

	handle, err := m.SendMessage(context.Background(), id, "question")
	require.NoError(t, err)

	d, _ := m.Dialogue(id)
	require.Equal(t, generation.PhasePending, d.Phase)

	close(gen.release)
	_, err = handle.Wait()
	require.NoError(t, err)

	d, _ = m.Dialogue(id)
	require.Equal(t, generation.PhaseIdle, d.Phase)
}

func TestManager_EditMessageRegeneratesReply(t *testing.T) {
	m := newTestManager(t, echoGenerator())
	id := m.ActiveID()

	handle, err := m.SendMessage(context.Background(), id, "I ran 5k")
	require.NoError(t, err)
	_, err = handle.Wait()
	require.NoError(t, err)

	d, _ := m.Dialogue(id)
	require.Len(t, d.Messages, 3)
	userView := d.Messages[1]
	oldReplyID := d.Messages[2].ID

	dialogue, ok := m.registry.Get(id)
	require.True(t, ok)
	var messageID conversation.MessageID
	for _, msg := range dialogue.Messages() {
		if msg.ID.String() == userView.ID {
			messageID = msg.ID
		}
	}

	handle, err = m.EditMessage(context.Background(), id, messageID, "I ran 10k")
	require.NoError(t, err)
	reply, err := handle.Wait()
	require.NoError(t, err)
	require.Equal(t, "reply to: I ran 10k", reply)

	d, _ = m.Dialogue(id)
	require.Len(t, d.Messages, 3)
	require.Equal(t, "I ran 10k", d.Messages[1].Content)
	require.Equal(t, userView.ID, d.Messages[1].ID)
	require.NotEqual(t, oldReplyID, d.Messages[2].ID)
	require.Equal(t, reply, d.Messages[2].Content)
}

func TestManager_EditRejectsAssistantMessage(t *testing.T) {
	m := newTestManager(t, echoGenerator())
	id := m.ActiveID()

	dialogue, _ := m.registry.Get(id)
	greeting := dialogue.Messages()[0]

	_, err := m.EditMessage(context.Background(), id, greeting.ID, "rewritten greeting")
	require.ErrorIs(t, err, ErrNotUserMessage)
}

func TestManager_EditUnknownMessage(t *testing.T) {
	m := newTestManager(t, echoGenerator())
	_, err := m.EditMessage(context.Background(), m.ActiveID(), conversation.NewMessageID(), "text")
	require.ErrorIs(t, err, conversation.ErrNotFound)
}

func TestManager_NewSendSupersedesPendingReply(t *testing.T) {
	gen := newGateGenerator("reply: ")
	m := newTestManager(t, gen)
	id := m.ActiveID()

	first, err := m.SendMessage(context.Background(), id, "first")
	require.NoError(t, err)
	second, err := m.SendMessage(context.Background(), id, "second")
	require.NoError(t, err)

	// The first request was cancelled; its late result must not land.
	_, err = first.Wait()
	require.ErrorIs(t, err, context.Canceled)

	close(gen.release)
	reply, err := second.Wait()
	require.NoError(t, err)
	require.Equal(t, "reply: second", reply)

	d, _ := m.Dialogue(id)
	require.Equal(t, generation.PhaseIdle, d.Phase)
	require.Len(t, d.Messages, 4)
	require.Equal(t, "first", d.Messages[1].Content)
	require.Equal(t, "second", d.Messages[2].Content)
	require.Equal(t, "reply: second", d.Messages[3].Content)
}

func TestManager_DeleteDialogueCancelsPendingReply(t *testing.T) {
	gen := newGateGenerator("reply: ")
	m := newTestManager(t, gen)
	first := m.ActiveID()
	second := m.CreateDialogue()

	handle, err := m.SendMessage(context.Background(), second, "question")
	require.NoError(t, err)

	require.NoError(t, m.DeleteDialogue(second))
	_, err = handle.Wait()
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, first, m.ActiveID())
	require.Len(t, m.Snapshot().Dialogues, 1)
}

func TestManager_DeleteLastDialogueIsRejected(t *testing.T) {
	m := newTestManager(t, echoGenerator())
	err := m.DeleteDialogue(m.ActiveID())
	require.ErrorIs(t, err, registry.ErrLastDialogue)
	require.Len(t, m.Snapshot().Dialogues, 1)
}

func TestManager_RenameDialogue(t *testing.T) {
	m := newTestManager(t, echoGenerator())
	id := m.ActiveID()

	require.NoError(t, m.RenameDialogue(id, "  Gym Log  "))
	d, _ := m.Dialogue(id)
	require.Equal(t, "Gym Log", d.Name)

	require.NoError(t, m.RenameDialogue(id, "   "))
	d, _ = m.Dialogue(id)
	require.Equal(t, "Gym Log", d.Name)
}

func TestManager_PinnedDialoguesSortFirst(t *testing.T) {
	m := newTestManager(t, echoGenerator())
	first := m.ActiveID()
	m.CreateDialogue()
	third := m.CreateDialogue()

	// The first dialogue is the least recently active; pinning must hoist it.
	require.NoError(t, m.TogglePin(first))

	snap := m.Snapshot()
	require.Equal(t, first.String(), snap.Dialogues[0].ID)
	require.True(t, snap.Dialogues[0].Pinned)
	require.Equal(t, third.String(), snap.Dialogues[1].ID)
}

type recordingPublisher struct {
	mu       sync.Mutex
	received []events.Event
}

func (p *recordingPublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, msg := range messages {
		e, err := events.NewEventFromJSON(msg.Payload)
		if err != nil {
			return err
		}
		p.received = append(p.received, e)
	}
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	ret := make([]events.EventType, 0, len(p.received))
	for _, e := range p.received {
		ret = append(ret, e.Type())
	}
	return ret
}

func TestManager_PublishesLifecycleEvents(t *testing.T) {
	m := newTestManager(t, echoGenerator())
	pub := &recordingPublisher{}
	m.PublisherManager().SubscribePublisher(events.TopicGeneration, pub)

	id := m.ActiveID()
	handle, err := m.SendMessage(context.Background(), id, "hello")
	require.NoError(t, err)
	_, err = handle.Wait()
	require.NoError(t, err)

	require.Equal(t, []events.EventType{events.EventTypeStarted, events.EventTypeFinal}, pub.types())

	final, ok := pub.received[1].(*events.EventFinal)
	require.True(t, ok)
	require.Equal(t, id.String(), final.Metadata().DialogueID)
	require.Equal(t, "reply to: hello", final.Text)
}

func TestManager_PublishesSupersededEventForStaleResult(t *testing.T) {
	gen := newGateGenerator("reply: ")
	m := newTestManager(t, gen)
	pub := &recordingPublisher{}
	m.PublisherManager().SubscribePublisher(events.TopicGeneration, pub)

	id := m.ActiveID()
	first, err := m.SendMessage(context.Background(), id, "first")
	require.NoError(t, err)
	second, err := m.SendMessage(context.Background(), id, "second")
	require.NoError(t, err)

	_, _ = first.Wait()
	close(gen.release)
	_, err = second.Wait()
	require.NoError(t, err)

	types := pub.types()
	require.Contains(t, types, events.EventTypeSuperseded)
	require.Contains(t, types, events.EventTypeFinal)
	require.NotContains(t, types, events.EventTypeError)
}

func TestManager_PublishesErrorEventOnGeneratorFailure(t *testing.T) {
	m := newTestManager(t, generation.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		return "", context.DeadlineExceeded
	}))
	pub := &recordingPublisher{}
	m.PublisherManager().SubscribePublisher(events.TopicGeneration, pub)

	id := m.ActiveID()
	handle, err := m.SendMessage(context.Background(), id, "hello")
	require.NoError(t, err)
	_, err = handle.Wait()
	require.ErrorIs(t, err, generation.ErrGenerationFailed)

	d, _ := m.Dialogue(id)
	require.Equal(t, generation.PhaseIdle, d.Phase)
	// The failed request leaves the transcript with the user message only.
	require.Len(t, d.Messages, 2)
	require.Contains(t, pub.types(), events.EventTypeError)
}
