package generation

import (
	"context"

	"github.com/pkg/errors"
)

var (
	ErrNoGenerator      = errors.New("coordinator has no reply generator")
	ErrGenerationFailed = errors.New("reply generation failed")
	ErrHandleNil        = errors.New("generation handle is nil")
)

// Generator is the reply generator capability: it takes the prompt text and
// asynchronously (from the coordinator's point of view) produces a single
// final reply string. The core is agnostic to how the reply is derived —
// canned rules, a remote model, anything. Implementations must honor context
// cancellation; cancellation is cooperative and a late result is simply
// discarded by the coordinator.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
