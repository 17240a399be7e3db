package accounts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	POSTForm(path string, fields map[string]string) error
	Upload(path, filename string, content []byte) error
	DELETE(path string) error
	GetLastResponseBody() []byte
}

// RegisterSteps registers account import, search and export steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &accountSteps{tc: tc}

	ctx.Step(`^I create an account "([^"]*)" with field "([^"]*)" set to "([^"]*)"$`, steps.createAccount)
	ctx.Step(`^I upload "([^"]*)" with content:$`, steps.upload)
	ctx.Step(`^I search for "([^"]*)"$`, steps.search)
	ctx.Step(`^I search exactly for "([^"]*)"$`, steps.searchExact)
	ctx.Step(`^the search should return (\d+) accounts?$`, steps.searchShouldReturn)
	ctx.Step(`^the first account field "([^"]*)" should be "([^"]*)"$`, steps.firstAccountField)
	ctx.Step(`^I delete the first account found$`, steps.deleteFirst)
	ctx.Step(`^I export all accounts as "([^"]*)"$`, steps.export)
	ctx.Step(`^the export should contain (\d+) accounts?$`, steps.exportShouldContain)
}

type account struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Data map[string]any `json:"data"`
}

type accountSteps struct {
	tc    TestContext
	found []account
}

func (s *accountSteps) createAccount(_ context.Context, name, field, value string) error {
	return s.tc.POST("/accounts/create", map[string]any{
		"name": name,
		"data": map[string]string{field: value},
	})
}

func (s *accountSteps) upload(_ context.Context, filename string, content *godog.DocString) error {
	return s.tc.Upload("/accounts/upload", filename, []byte(content.Content+"\n"))
}

func (s *accountSteps) search(_ context.Context, term string) error {
	return s.doSearch(map[string]string{"search": term})
}

func (s *accountSteps) searchExact(_ context.Context, term string) error {
	return s.doSearch(map[string]string{"search": term, "exact": "true"})
}

func (s *accountSteps) doSearch(fields map[string]string) error {
	if err := s.tc.POSTForm("/search", fields); err != nil {
		return err
	}
	var body struct {
		Accounts []account `json:"accounts"`
	}
	if err := json.Unmarshal(s.tc.GetLastResponseBody(), &body); err != nil {
		return fmt.Errorf("decode search response: %w", err)
	}
	s.found = body.Accounts
	return nil
}

func (s *accountSteps) searchShouldReturn(_ context.Context, n int) error {
	if len(s.found) != n {
		return fmt.Errorf("expected %d accounts, got %d", n, len(s.found))
	}
	return nil
}

func (s *accountSteps) firstAccountField(_ context.Context, field, want string) error {
	if len(s.found) == 0 {
		return fmt.Errorf("no accounts found")
	}
	if got := fmt.Sprint(s.found[0].Data[field]); got != want {
		return fmt.Errorf("expected %s=%q, got %q", field, want, got)
	}
	return nil
}

func (s *accountSteps) deleteFirst(_ context.Context) error {
	if len(s.found) == 0 {
		return fmt.Errorf("no accounts found")
	}
	return s.tc.DELETE("/accounts/delete/" + s.found[0].ID)
}

func (s *accountSteps) export(_ context.Context, format string) error {
	return s.tc.POST("/accounts/export", map[string]string{"export_type": format})
}

func (s *accountSteps) exportShouldContain(_ context.Context, n int) error {
	var exported []map[string]any
	if err := json.Unmarshal(s.tc.GetLastResponseBody(), &exported); err != nil {
		return fmt.Errorf("decode export: %w", err)
	}
	if len(exported) != n {
		return fmt.Errorf("expected %d exported accounts, got %d", n, len(exported))
	}
	return nil
}
