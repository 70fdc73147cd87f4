package builtin

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/casualjim/rookery/pkg/slogx"
	"github.com/casualjim/rookery/tool"
	"github.com/casualjim/rookery/types"
	"github.com/goccy/go-json"
	"github.com/tidwall/sjson"
	"golang.org/x/sync/semaphore"
)

const defaultWebhookTimeout = 30 * time.Second

// Webhook returns the custom_webhook tool: it POSTs a JSON payload to an
// arbitrary endpoint, stamping the calling agent's id into the payload.
// Any non-2xx response is an error. A nil client falls back to a plain
// http.Client; per-call deadlines come from the timeout parameter.
func Webhook(client *http.Client, sem *semaphore.Weighted) tool.Definition {
	if client == nil {
		client = &http.Client{}
	}

	return tool.Must(func(ctx context.Context, args types.Params) (tool.Result, error) {
		url, ok := stringArg(args, "webhook_url")
		if !ok {
			return tool.Result{}, fmt.Errorf("webhook_url must be provided")
		}
		payload, ok := args["output"].(map[string]any)
		if !ok || len(payload) == 0 {
			return tool.Result{}, fmt.Errorf("output payload must be a non-empty object")
		}

		body, err := json.Marshal(payload)
		if err != nil {
			return tool.Result{}, fmt.Errorf("encode webhook payload: %w", err)
		}
		agentID, _ := agentInfo(args)
		if agentID != "" {
			if body, err = sjson.SetBytes(body, "agent_id", agentID); err != nil {
				return tool.Result{}, fmt.Errorf("stamp agent id into payload: %w", err)
			}
		}

		timeout := defaultWebhookTimeout
		if secs, ok := intArg(args, "timeout"); ok && secs > 0 {
			timeout = time.Duration(secs) * time.Second
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		release, err := acquire(ctx, sem)
		if err != nil {
			return tool.Result{}, err
		}
		defer release()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return tool.Result{}, fmt.Errorf("build webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headerArg(args, "custom_headers") {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			return tool.Result{}, fmt.Errorf("send webhook to %s: %w", url, err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return tool.Result{}, fmt.Errorf("read webhook response: %w", err)
		}
		var parsed any
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &parsed); err != nil {
				parsed = string(raw)
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return tool.Result{}, fmt.Errorf("webhook request failed with status %d: %v", resp.StatusCode, parsed)
		}

		slog.InfoContext(ctx, "webhook delivered",
			slogx.AgentID(agentID), slog.String("url", url), slog.Int("status", resp.StatusCode))

		return tool.Result{
			Status: "success",
			Values: &tool.Values{Context: map[string]any{
				"webhook_status":   "success",
				"webhook_response": parsed,
				"webhook_url":      url,
			}},
		}, nil
	},
		tool.Name("custom_webhook"),
		tool.Description("Sends a JSON payload to a custom HTTP endpoint using POST"),
		tool.Parameters(
			tool.Required("webhook_url", "URL of the webhook endpoint"),
			tool.Required("output", "data payload to send"),
			tool.Optional("custom_headers", "extra request headers"),
			tool.Optional("timeout", "request timeout in seconds, default 30"),
			tool.DataStore(),
		),
	)
}
