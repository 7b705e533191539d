package mcp

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/mcp-go"
)

// RegisterPrompts registers prompts for operating the saga.
func RegisterPrompts(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return fmt.Errorf("server is required")
	}

	srv.Prompt("investigate_subscription").
		Description("Walk through a subscription that failed or is stuck and decide whether it needs compensation or manual intervention.").
		Handler(func(ctx context.Context, args map[string]string) (*mcp.PromptResult, error) {
			serial := args["serial_number"]
			if serial == "" {
				serial = "<serial number>"
			}
			return userPrompt("Subscription Investigation", fmt.Sprintf(`Investigate subscription %s:

1. Load it with the saga.transaction tool.
2. Read its status, saga state, error code and compensation attempts.
3. Check fundsaga://health for open circuit breakers.

Then explain:
- Which saga step failed and whether the failure came from core banking or marketing
- Whether a ledger booking, a freeze or a coupon is still held
- Whether running saga.recover will compensate it, or whether it needs manual intervention`, serial)), nil
		})

	srv.Prompt("recovery_review").
		Description("Run a recovery cycle and summarize what it did.").
		Handler(func(ctx context.Context, args map[string]string) (*mcp.PromptResult, error) {
			return userPrompt("Recovery Review", `Run the saga.recover tool once and summarize the report:

- How many stuck transactions were failed
- How many failed transactions were compensated or retried
- How many were escalated to manual intervention

If anything errored or was escalated, check fundsaga://health and suggest the next step.`), nil
		})

	return nil
}

func userPrompt(description, text string) *mcp.PromptResult {
	return &mcp.PromptResult{
		Description: description,
		Messages: []mcp.PromptMessage{
			{
				Role: string(mcp.RoleUser),
				Content: mcp.TextContent{
					Type: "text",
					Text: text,
				},
			},
		},
	}
}
