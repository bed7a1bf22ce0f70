package realtime

import (
	"context"
	"errors"
	"log/slog"

	"github.com/codewandler/realtime-go/response"
)

// dispatchTools runs completed function calls through the registry, sends
// their outputs and, if enabled, requests a follow-up response.
func (c *Client) dispatchTools(ctx context.Context, calls []response.Call) {
	registry := c.config.tools
	sent := 0
	for _, call := range calls {
		if !registry.Has(call.Name) {
			c.logger.Warn("no handler for tool call", slog.String("name", call.Name), slog.String("call_id", call.CallID))
			continue
		}

		c.logger.Debug("calling tool", slog.String("name", call.Name), slog.String("call_id", call.CallID))
		output, err := registry.Call(ctx, call.Name, call.Arguments)
		if err != nil {
			c.logger.Warn("tool call failed", slog.String("name", call.Name), slog.Any("err", err))
			continue
		}
		if err := c.SendFunctionOutput(ctx, call.CallID, output); err != nil {
			c.logger.Warn("failed to send tool output", slog.String("call_id", call.CallID), slog.Any("err", err))
			return
		}
		sent++
	}

	if sent == 0 || !c.config.autoToolResponse {
		return
	}
	if err := c.Respond(ctx); err != nil {
		if errors.Is(err, ErrResponseConflict) {
			c.logger.Debug("skipping follow-up response", slog.Any("err", err))
			return
		}
		c.logger.Warn("failed to request follow-up response", slog.Any("err", err))
	}
}
