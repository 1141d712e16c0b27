package generation

import (
	"context"
	"sync"

	"github.com/go-go-golems/parley/pkg/registry"
)

// Handle represents a single in-flight generation request.
//
// It is cancelable and waitable. The underlying generator call is always
// driven by context cancellation; Cancel only asks, it cannot interrupt a
// generator that ignores its context.
type Handle struct {
	DialogueID registry.DialogueID
	Epoch      uint64
	Prompt     string

	done chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	reply  string
	err    error
}

func newHandle(dialogueID registry.DialogueID, epoch uint64, prompt string, cancel context.CancelFunc) *Handle {
	return &Handle{
		DialogueID: dialogueID,
		Epoch:      epoch,
		Prompt:     prompt,
		done:       make(chan struct{}),
		cancel:     cancel,
	}
}

func (h *Handle) setResult(reply string, err error) {
	h.mu.Lock()
	h.reply = reply
	h.err = err
	h.cancel = nil
	close(h.done)
	h.mu.Unlock()
}

// Cancel cancels the in-flight generation. Safe to call multiple times.
func (h *Handle) Cancel() {
	if h == nil {
		return
	}
	h.mu.Lock()
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the generation completes and returns the reply text and
// error. A superseded request completes with context.Canceled.
func (h *Handle) Wait() (string, error) {
	if h == nil {
		return "", ErrHandleNil
	}
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reply, h.err
}

// IsRunning reports whether the generation appears to still be in flight.
func (h *Handle) IsRunning() bool {
	if h == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}
