package e2e

import (
	"github.com/cucumber/godog"

	"accman/e2e/steps/accounts"
	"accman/e2e/steps/auth"
	"accman/e2e/steps/common"
	"accman/e2e/steps/ratelimit"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	auth.RegisterSteps(ctx, tc)
	accounts.RegisterSteps(ctx, tc)
	ratelimit.RegisterSteps(ctx, tc)
}
