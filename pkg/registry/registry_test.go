package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/parley/pkg/conversation"
)

// testClock hands out strictly increasing timestamps.
type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestRegistry() *Registry {
	return New(WithClock(newTestClock().Now), WithGreeting("hi, how can I help?"))
}

func TestRegistry_SeededWithOneDialogue(t *testing.T) {
	r := newTestRegistry()

	require.Equal(t, 1, r.Len())
	active, ok := r.Get(r.ActiveID())
	require.True(t, ok)
	require.Equal(t, "Chat 1", active.Name)

	msgs := active.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, conversation.AuthorAssistant, msgs[0].Author)
	require.Equal(t, "hi, how can I help?", msgs[0].Content)
}

func TestRegistry_FirstDialogueNameOverride(t *testing.T) {
	r := New(WithFirstDialogueName("Nutrition Chat"))

	active, _ := r.Get(r.ActiveID())
	require.Equal(t, "Nutrition Chat", active.Name)

	second := r.CreateDialogue()
	require.Equal(t, "Chat 2", second.Name)
}

func TestRegistry_CreateDialogue_FrontInsertAndActive(t *testing.T) {
	r := newTestRegistry()
	first := r.ActiveID()

	second := r.CreateDialogue()
	require.Equal(t, second.ID, r.ActiveID())

	ds := r.Dialogues()
	require.Len(t, ds, 2)
	require.Equal(t, second.ID, ds[0].ID)
	require.Equal(t, first, ds[1].ID)
}

func TestRegistry_DeleteLastDialogueProtected(t *testing.T) {
	r := newTestRegistry()
	id := r.ActiveID()

	require.ErrorIs(t, r.Delete(id), ErrLastDialogue)
	require.Equal(t, 1, r.Len())

	// repeated attempts stay a no-op
	require.ErrorIs(t, r.Delete(id), ErrLastDialogue)
	require.Equal(t, 1, r.Len())
}

func TestRegistry_DeleteUnknown(t *testing.T) {
	r := newTestRegistry()
	require.ErrorIs(t, r.Delete(NewDialogueID()), ErrNotFound)
}

func TestRegistry_DeleteActiveRepointsByOrdering(t *testing.T) {
	clock := newTestClock()
	r := New(WithClock(clock.Now))

	d2 := r.CreateDialogue()
	d3 := r.CreateDialogue()

	// Touch d2 so it is the most recently active of the survivors.
	_, err := r.AppendUserMessage(d2.ID, "hello")
	require.NoError(t, err)

	require.Equal(t, d3.ID, r.ActiveID())
	require.NoError(t, r.Delete(d3.ID))

	require.Equal(t, d2.ID, r.ActiveID())
	_, ok := r.Get(r.ActiveID())
	require.True(t, ok)
}

func TestRegistry_DeleteInactiveKeepsActive(t *testing.T) {
	r := newTestRegistry()
	first := r.ActiveID()
	second := r.CreateDialogue()

	require.NoError(t, r.Delete(first))
	require.Equal(t, second.ID, r.ActiveID())
}

func TestRegistry_Rename(t *testing.T) {
	r := newTestRegistry()
	id := r.ActiveID()

	require.NoError(t, r.Rename(id, "  Gym Log  "))
	d, _ := r.Get(id)
	require.Equal(t, "Gym Log", d.Name)

	// Whitespace-only rename keeps the old label.
	require.NoError(t, r.Rename(id, "   "))
	d, _ = r.Get(id)
	require.Equal(t, "Gym Log", d.Name)

	require.ErrorIs(t, r.Rename(NewDialogueID(), "x"), ErrNotFound)
}

func TestRegistry_TogglePinIsInvolutive(t *testing.T) {
	r := newTestRegistry()
	id := r.ActiveID()

	d, _ := r.Get(id)
	require.False(t, d.Pinned)

	require.NoError(t, r.TogglePin(id))
	require.True(t, d.Pinned)

	require.NoError(t, r.TogglePin(id))
	require.False(t, d.Pinned)

	require.ErrorIs(t, r.TogglePin(NewDialogueID()), ErrNotFound)
}

func TestRegistry_SetActive(t *testing.T) {
	r := newTestRegistry()
	first := r.ActiveID()
	r.CreateDialogue()

	require.NoError(t, r.SetActive(first))
	require.Equal(t, first, r.ActiveID())

	require.ErrorIs(t, r.SetActive(NewDialogueID()), ErrNotFound)
}

func TestRegistry_AppendUserMessage(t *testing.T) {
	r := newTestRegistry()
	id := r.ActiveID()
	d, _ := r.Get(id)
	before := d.LastActivity

	msg, err := r.AppendUserMessage(id, "what about lunch?")
	require.NoError(t, err)
	require.Equal(t, conversation.AuthorUser, msg.Author)
	require.True(t, d.LastActivity.After(before))

	_, err = r.AppendUserMessage(id, "   ")
	require.ErrorIs(t, err, conversation.ErrEmptyContent)
	require.Equal(t, 2, d.Len())

	_, err = r.AppendUserMessage(NewDialogueID(), "hello")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_EditPath(t *testing.T) {
	r := newTestRegistry()
	id := r.ActiveID()

	user, err := r.AppendUserMessage(id, "eggs")
	require.NoError(t, err)
	reply, err := r.AppendAssistantMessage(id, "reply to eggs")
	require.NoError(t, err)

	got, ok := r.ReplyFollowing(id, user.ID)
	require.True(t, ok)
	require.Equal(t, reply.ID, got.ID)

	require.NoError(t, r.ReplaceMessageContent(id, user.ID, "oats"))
	require.NoError(t, r.RemoveMessage(id, reply.ID))

	d, _ := r.Get(id)
	msgs := d.Messages()
	require.Equal(t, "oats", msgs[len(msgs)-1].Content)
	_, ok = r.ReplyFollowing(id, user.ID)
	require.False(t, ok)
}
