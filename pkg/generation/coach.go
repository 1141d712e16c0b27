package generation

import (
	"context"
	"fmt"
	"time"
)

// DefaultCoachDelay mimics the thinking time of a real model so typing
// indicators are visible in the demo UI.
const DefaultCoachDelay = 2 * time.Second

// CoachGenerator is the built-in rule-based reply generator: an upbeat
// nutrition-coach persona that echoes the question back in a canned demo
// response.
type CoachGenerator struct {
	Delay time.Duration
}

func NewCoachGenerator(delay time.Duration) *CoachGenerator {
	return &CoachGenerator{Delay: delay}
}

func (g *CoachGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.Delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(g.Delay):
		}
	} else if err := ctx.Err(); err != nil {
		return "", err
	}

	reply := fmt.Sprintf(
		"Great question! \"%s\" 🎯 This is a demo response. In a real app, I'd provide personalized nutrition advice based on your fitness goals, dietary preferences, and current progress. Let's get you stronger and healthier! 💪",
		prompt,
	)
	return reply, nil
}

var _ Generator = (*CoachGenerator)(nil)
