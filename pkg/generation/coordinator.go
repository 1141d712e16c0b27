// Package generation drives the asynchronous reply lifecycle of a dialogue:
// idle, awaiting a reply, back to idle. Each request is stamped with a
// per-dialogue epoch; a completion whose epoch no longer matches the
// dialogue's current epoch is stale (superseded by a newer send/edit, or the
// dialogue was deleted) and must be discarded before it can touch any message
// store.
package generation

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/parley/pkg/registry"
)

// Phase is a dialogue's generation state.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhasePending Phase = "awaiting-reply"
)

// Result is delivered to the completion callback for every finished
// generator call, stale or not. The owner decides whether the result is still
// current by calling Resolve with the carried epoch.
type Result struct {
	DialogueID registry.DialogueID
	Epoch      uint64
	Reply      string
	Err        error
}

// CompletionFunc receives generation results on the generator's goroutine.
type CompletionFunc func(Result)

type dialogueState struct {
	epoch  uint64
	phase  Phase
	cancel context.CancelFunc
}

// Coordinator enforces the single-pending-generation-per-dialogue invariant.
// A new request against a pending dialogue supersedes the outstanding one
// rather than queuing: last writer wins on the visible reply.
//
// The coordinator holds only ephemeral phase flags and epochs keyed by
// dialogue id. It never owns message content.
type Coordinator struct {
	generator Generator
	onResult  CompletionFunc

	mu     sync.Mutex
	states map[registry.DialogueID]*dialogueState
}

type CoordinatorOption func(*Coordinator)

// WithCompletionFunc registers the callback invoked for every finished
// generator call. The callback is responsible for calling Resolve and, if the
// result was accepted, committing the reply.
func WithCompletionFunc(fn CompletionFunc) CoordinatorOption {
	return func(c *Coordinator) {
		c.onResult = fn
	}
}

func NewCoordinator(generator Generator, options ...CoordinatorOption) *Coordinator {
	ret := &Coordinator{
		generator: generator,
		states:    make(map[registry.DialogueID]*dialogueState),
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

// Start begins a new generation request for a dialogue and returns a waitable
// handle. If a request is already pending for the dialogue it is superseded:
// its context is cancelled and its eventual result will fail the epoch check.
func (c *Coordinator) Start(ctx context.Context, dialogueID registry.DialogueID, prompt string) (*Handle, error) {
	if c.generator == nil {
		return nil, ErrNoGenerator
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	st := c.states[dialogueID]
	if st == nil {
		st = &dialogueState{phase: PhaseIdle}
		c.states[dialogueID] = st
	}
	if st.phase == PhasePending && st.cancel != nil {
		log.Debug().
			Str("dialogue_id", dialogueID.String()).
			Uint64("epoch", st.epoch).
			Msg("superseding pending generation")
		st.cancel()
	}
	st.epoch++
	st.phase = PhasePending
	epoch := st.epoch

	runCtx, cancel := context.WithCancel(ctx)
	st.cancel = cancel
	c.mu.Unlock()

	handle := newHandle(dialogueID, epoch, prompt, cancel)

	go func() {
		reply, err := c.generator.Generate(runCtx, prompt)
		if err != nil && !errors.Is(err, context.Canceled) {
			err = errors.WithMessage(ErrGenerationFailed, err.Error())
		}

		if c.onResult != nil {
			c.onResult(Result{
				DialogueID: dialogueID,
				Epoch:      epoch,
				Reply:      reply,
				Err:        err,
			})
		}
		handle.setResult(reply, err)
	}()

	return handle, nil
}

// Resolve claims a completion: it reports whether the given epoch is still
// the dialogue's current request and, if so, returns the dialogue to idle.
// Exactly one caller can claim a given epoch; stale epochs return false and
// change nothing.
func (c *Coordinator) Resolve(dialogueID registry.DialogueID, epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.states[dialogueID]
	if st == nil || st.epoch != epoch || st.phase != PhasePending {
		return false
	}
	st.phase = PhaseIdle
	st.cancel = nil
	return true
}

// Forget cancels any pending generation for a dialogue and drops its state.
// Called when the dialogue is deleted; the in-flight result, when it lands,
// fails the epoch check and is discarded.
func (c *Coordinator) Forget(dialogueID registry.DialogueID) {
	c.mu.Lock()
	st := c.states[dialogueID]
	if st != nil && st.cancel != nil {
		st.cancel()
	}
	delete(c.states, dialogueID)
	c.mu.Unlock()
}

// Phase returns the dialogue's current generation phase.
func (c *Coordinator) Phase(dialogueID registry.DialogueID) Phase {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.states[dialogueID]
	if st == nil {
		return PhaseIdle
	}
	return st.phase
}

// Epoch returns the dialogue's current generation epoch, 0 if no request was
// ever issued.
func (c *Coordinator) Epoch(dialogueID registry.DialogueID) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.states[dialogueID]
	if st == nil {
		return 0
	}
	return st.epoch
}
