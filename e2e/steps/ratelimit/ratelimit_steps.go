package ratelimit

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	GetLastResponseStatus() int
}

// RegisterSteps registers sign-in throttling steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &ratelimitSteps{tc: tc}

	ctx.Step(`^I fail to log in (\d+) times$`, steps.failLoginNTimes)
	ctx.Step(`^I keep failing to log in until throttled$`, steps.failUntilThrottled)
}

type ratelimitSteps struct {
	tc TestContext
}

func (s *ratelimitSteps) attempt() error {
	return s.tc.POST("/login", map[string]string{
		"username": "nobody",
		"password": "wrong-password",
	})
}

func (s *ratelimitSteps) failLoginNTimes(_ context.Context, n int) error {
	for i := 0; i < n; i++ {
		if err := s.attempt(); err != nil {
			return err
		}
	}
	return nil
}

// failUntilThrottled gives up after maxAttempts so a disabled limiter fails
// the scenario instead of hanging it.
func (s *ratelimitSteps) failUntilThrottled(_ context.Context) error {
	const maxAttempts = 200
	for i := 0; i < maxAttempts; i++ {
		if err := s.attempt(); err != nil {
			return err
		}
		if s.tc.GetLastResponseStatus() == 429 {
			return nil
		}
	}
	return fmt.Errorf("not throttled after %d attempts", maxAttempts)
}
