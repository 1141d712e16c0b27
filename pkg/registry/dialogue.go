package registry

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/go-go-golems/parley/pkg/conversation"
)

// DialogueID uniquely identifies a dialogue in the registry.
type DialogueID uuid.UUID

func (id DialogueID) MarshalJSON() ([]byte, error) {
	return json.Marshal(uuid.UUID(id))
}

func (id *DialogueID) UnmarshalJSON(data []byte) error {
	var u uuid.UUID
	if err := json.Unmarshal(data, &u); err != nil {
		return err
	}
	*id = DialogueID(u)
	return nil
}

func (id DialogueID) String() string {
	return uuid.UUID(id).String()
}

func NewDialogueID() DialogueID {
	return DialogueID(uuid.New())
}

var NilDialogueID = DialogueID(uuid.Nil)

// Dialogue is one independent chat session: a named, pinnable, ordered message
// history. Instances are owned exclusively by the Registry.
type Dialogue struct {
	ID           DialogueID
	Name         string
	Pinned       bool
	CreatedAt    time.Time
	LastActivity time.Time

	store *conversation.Store
}

// Messages returns the dialogue's history in chronological order.
func (d *Dialogue) Messages() []*conversation.Message {
	return d.store.Messages()
}

// GetMessage looks up a single message by id.
func (d *Dialogue) GetMessage(id conversation.MessageID) (*conversation.Message, bool) {
	return d.store.Get(id)
}

func (d *Dialogue) Len() int {
	return d.store.Len()
}
