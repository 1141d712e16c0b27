// Package events carries the generation lifecycle over a watermill pubsub so
// that presentation layers can drive typing indicators and transcript updates
// without polling the manager.
package events

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type EventType string

const (
	// EventTypeStarted is published when a dialogue enters the pending phase.
	EventTypeStarted EventType = "generation-started"
	// EventTypeFinal carries the committed assistant reply.
	EventTypeFinal EventType = "generation-final"
	// EventTypeError is published when the reply generator fails and the
	// dialogue returns to idle.
	EventTypeError EventType = "generation-error"
	// EventTypeSuperseded is published when a late result is discarded because
	// a newer request (or a dialogue deletion) replaced it.
	EventTypeSuperseded EventType = "generation-superseded"
)

type Event interface {
	Type() EventType
	Metadata() EventMetadata
	Payload() []byte
}

// EventMetadata ties an event to the generation request that produced it.
type EventMetadata struct {
	DialogueID string `json:"dialogue_id"`
	Epoch      uint64 `json:"epoch"`
}

func (em EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("dialogue_id", em.DialogueID)
	e.Uint64("epoch", em.Epoch)
}

type EventImpl struct {
	Type_     EventType     `json:"type"`
	Metadata_ EventMetadata `json:"meta"`

	// raw payload, set when the event was decoded from JSON
	payload []byte
}

func (e *EventImpl) Type() EventType {
	return e.Type_
}

func (e *EventImpl) Metadata() EventMetadata {
	return e.Metadata_
}

func (e *EventImpl) Payload() []byte {
	return e.payload
}

func (e *EventImpl) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type_))
	ev.Object("meta", e.Metadata_)
}

var _ Event = &EventImpl{}

type EventStarted struct {
	EventImpl
	Prompt string `json:"prompt"`
}

func NewStartedEvent(metadata EventMetadata, prompt string) *EventStarted {
	return &EventStarted{
		EventImpl: EventImpl{
			Type_:     EventTypeStarted,
			Metadata_: metadata,
		},
		Prompt: prompt,
	}
}

var _ Event = &EventStarted{}

type EventFinal struct {
	EventImpl
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
}

func NewFinalEvent(metadata EventMetadata, messageID string, text string) *EventFinal {
	return &EventFinal{
		EventImpl: EventImpl{
			Type_:     EventTypeFinal,
			Metadata_: metadata,
		},
		MessageID: messageID,
		Text:      text,
	}
}

var _ Event = &EventFinal{}

type EventError struct {
	EventImpl
	ErrorString string `json:"error_string"`
}

func NewErrorEvent(metadata EventMetadata, err error) *EventError {
	return &EventError{
		EventImpl: EventImpl{
			Type_:     EventTypeError,
			Metadata_: metadata,
		},
		ErrorString: err.Error(),
	}
}

var _ Event = &EventError{}

type EventSuperseded struct {
	EventImpl
}

func NewSupersededEvent(metadata EventMetadata) *EventSuperseded {
	return &EventSuperseded{
		EventImpl: EventImpl{
			Type_:     EventTypeSuperseded,
			Metadata_: metadata,
		},
	}
}

var _ Event = &EventSuperseded{}

// NewEventFromJSON decodes a serialized event back into its concrete type.
func NewEventFromJSON(b []byte) (Event, error) {
	var probe struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(b, &probe); err != nil {
		return nil, err
	}

	var ret Event
	switch probe.Type {
	case EventTypeStarted:
		ret = &EventStarted{}
	case EventTypeFinal:
		ret = &EventFinal{}
	case EventTypeError:
		ret = &EventError{}
	case EventTypeSuperseded:
		ret = &EventSuperseded{}
	default:
		return nil, errors.Errorf("unknown event type %q", probe.Type)
	}

	if err := json.Unmarshal(b, ret); err != nil {
		return nil, err
	}
	setPayload(ret, b)

	return ret, nil
}

func setPayload(e Event, b []byte) {
	switch ev := e.(type) {
	case *EventStarted:
		ev.payload = b
	case *EventFinal:
		ev.payload = b
	case *EventError:
		ev.payload = b
	case *EventSuperseded:
		ev.payload = b
	}
}
