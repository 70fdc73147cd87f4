package builtin

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/casualjim/rookery/pkg/slogx"
	"github.com/casualjim/rookery/tool"
	"github.com/casualjim/rookery/types"
	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/semaphore"
)

// APIRequest returns the api_request tool: a configurable GET/POST call
// against an external API. Unlike the webhook tool, failures do not abort
// the pipeline with an error; they produce an error-shaped result whose
// ShouldExit follows the error_handling parameter (stop or continue), so a
// pipeline author decides how much an unreliable API matters.
func APIRequest(client *http.Client, sem *semaphore.Weighted) tool.Definition {
	if client == nil {
		client = &http.Client{}
	}

	return tool.Must(func(ctx context.Context, args types.Params) (tool.Result, error) {
		stop := true
		if mode, ok := stringArg(args, "error_handling"); ok {
			switch mode {
			case "stop":
			case "continue":
				stop = false
			default:
				return tool.Result{}, fmt.Errorf("error_handling must be stop or continue, got %q", mode)
			}
		}

		url, ok := stringArg(args, "api_url")
		if !ok {
			return tool.Result{}, fmt.Errorf("api_url must be provided")
		}

		method := http.MethodGet
		if m, ok := stringArg(args, "http_method"); ok {
			switch strings.ToLower(m) {
			case "get":
			case "post":
				method = http.MethodPost
			default:
				return requestFailure(fmt.Sprintf("HTTP method must be either GET or POST, got %q", m), stop), nil
			}
		}

		handling := "data_only"
		if h, ok := stringArg(args, "response_handling"); ok {
			if h != "full" && h != "data_only" {
				return requestFailure(fmt.Sprintf("invalid response handling option %q", h), stop), nil
			}
			handling = h
		}

		var body io.Reader
		if raw, ok := stringArg(args, "request_body"); ok {
			if !gjson.Valid(raw) {
				return requestFailure("request_body is not valid JSON", stop), nil
			}
			if method == http.MethodPost {
				body = strings.NewReader(raw)
			}
		}
		var headers map[string]string
		if raw, ok := stringArg(args, "headers"); ok {
			if err := json.Unmarshal([]byte(raw), &headers); err != nil {
				return requestFailure(fmt.Sprintf("headers is not a valid JSON object: %v", err), stop), nil
			}
		}

		release, err := acquire(ctx, sem)
		if err != nil {
			return tool.Result{}, err
		}
		defer release()

		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return requestFailure(err.Error(), stop), nil
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		agentID, _ := agentInfo(args)
		slog.InfoContext(ctx, "executing api request",
			slogx.AgentID(agentID), slog.String("method", method), slog.String("url", url))

		resp, err := client.Do(req)
		if err != nil {
			return requestFailure(fmt.Sprintf("API request error: %v", err), stop), nil
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return requestFailure(fmt.Sprintf("read API response: %v", err), stop), nil
		}

		parsed := gjson.ParseBytes(raw)
		switch {
		case len(raw) == 0, parsed.Type == gjson.Null,
			parsed.IsObject() && len(parsed.Map()) == 0,
			parsed.IsArray() && len(parsed.Array()) == 0:
			return requestFailure("API returned empty or null response", stop), nil
		}

		var result any
		switch handling {
		case "full":
			result = map[string]any{
				"status_code": resp.StatusCode,
				"data":        parsed.Value(),
			}
		case "data_only":
			if data := parsed.Get("data"); data.Exists() {
				result = data.Value()
			} else {
				result = parsed.Value()
			}
		}

		values := map[string]any{"api_response": result}
		return tool.Result{
			Status: "success",
			Values: &tool.Values{Context: values, Output: values},
		}, nil
	},
		tool.Name("api_request"),
		tool.Description("Makes an HTTP request to an external API with configurable method, headers and response handling"),
		tool.Parameters(
			tool.Required("api_url", "URL to make the request to"),
			tool.Optional("http_method", "get or post, default get"),
			tool.Optional("request_body", "JSON string used as POST body"),
			tool.Optional("headers", "JSON string of request headers"),
			tool.Optional("response_handling", "full or data_only, default data_only"),
			tool.Optional("error_handling", "stop or continue on failure, default stop"),
			tool.DataStore(),
		),
	)
}

// requestFailure shapes a failed api_request call: the error lands in the
// context scope, an error marker in the outputs scope, and stop decides
// whether the pipeline exits early.
func requestFailure(msg string, stop bool) tool.Result {
	return tool.Result{
		Status:     "error",
		Message:    msg,
		ShouldExit: stop,
		Values: &tool.Values{
			Context: map[string]any{"error": msg},
			Output:  map[string]any{"status": "error", "message": msg},
		},
	}
}
