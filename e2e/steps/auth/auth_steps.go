package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	Save(key, value string)
	Saved(key string) string
}

// RegisterSteps registers authentication-related step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &authSteps{tc: tc}

	ctx.Step(`^I register a new user with password "([^"]*)"$`, steps.registerNewUser)
	ctx.Step(`^I register the saved user again$`, steps.registerSavedUserAgain)
	ctx.Step(`^I log in with the saved credentials$`, steps.loginSaved)
	ctx.Step(`^I log in as "([^"]*)" with password "([^"]*)"$`, steps.login)
	ctx.Step(`^I log out$`, steps.logout)
	ctx.Step(`^I check availability of the saved username$`, steps.checkSavedUsername)
}

type authSteps struct {
	tc TestContext
}

// registerNewUser picks a fresh username so scenarios can rerun against the
// same database.
func (s *authSteps) registerNewUser(_ context.Context, password string) error {
	username := fmt.Sprintf("e2e-%d", time.Now().UnixNano())
	s.tc.Save("username", username)
	s.tc.Save("password", password)
	return s.tc.POST("/register", map[string]string{
		"username":       username,
		"email":          username + "@example.com",
		"password":       password,
		"password_check": password,
	})
}

func (s *authSteps) registerSavedUserAgain(_ context.Context) error {
	return s.tc.POST("/register", map[string]string{
		"username":       s.tc.Saved("username"),
		"password":       s.tc.Saved("password"),
		"password_check": s.tc.Saved("password"),
	})
}

func (s *authSteps) loginSaved(ctx context.Context) error {
	return s.login(ctx, s.tc.Saved("username"), s.tc.Saved("password"))
}

func (s *authSteps) login(_ context.Context, username, password string) error {
	return s.tc.POST("/login", map[string]string{
		"username": username,
		"password": password,
	})
}

func (s *authSteps) logout(_ context.Context) error {
	return s.tc.POST("/logout", struct{}{})
}

func (s *authSteps) checkSavedUsername(_ context.Context) error {
	return s.tc.POST("/check", map[string]string{"username": s.tc.Saved("username")})
}
