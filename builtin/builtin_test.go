package builtin

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/casualjim/rookery/api"
	"github.com/casualjim/rookery/gateway/inmem"
	"github.com/casualjim/rookery/tool"
	"github.com/casualjim/rookery/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/semaphore"
)

// dsArg builds the data store snapshot the engine would hand to a tool.
func dsArg(agentID string, cfg api.Config) map[string]any {
	return map[string]any{
		"agent_id": agentID,
		"config":   cfg,
		"context":  map[string]any{},
		"outputs":  map[string]any{},
	}
}

func TestWebhook(t *testing.T) {
	t.Run("delivers payload stamped with the agent id", func(t *testing.T) {
		var gotBody []byte
		var gotHeader string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotBody, _ = io.ReadAll(r.Body)
			gotHeader = r.Header.Get("X-Token")
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"received":true}`))
		}))
		defer server.Close()

		def := Webhook(server.Client(), semaphore.NewWeighted(2))
		result, err := def.Call(context.Background(), types.Params{
			"webhook_url":    server.URL,
			"output":         map[string]any{"tweet": "hoot"},
			"custom_headers": map[string]any{"X-Token": "s3cret"},
			tool.DataStoreParam: dsArg("a1", api.Config{}),
		})
		require.NoError(t, err)

		assert.Equal(t, "hoot", gjson.GetBytes(gotBody, "tweet").String())
		assert.Equal(t, "a1", gjson.GetBytes(gotBody, "agent_id").String())
		assert.Equal(t, "s3cret", gotHeader)

		assert.Equal(t, "success", result.Values.Context["webhook_status"])
		assert.Equal(t, server.URL, result.Values.Context["webhook_url"])
		resp := result.Values.Context["webhook_response"].(map[string]any)
		assert.Equal(t, true, resp["received"])
	})

	t.Run("non-2xx response is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"reason":"nope"}`, http.StatusForbidden)
		}))
		defer server.Close()

		def := Webhook(server.Client(), nil)
		_, err := def.Call(context.Background(), types.Params{
			"webhook_url":       server.URL,
			"output":            map[string]any{"k": "v"},
			tool.DataStoreParam: dsArg("a1", api.Config{}),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "403")
		assert.Contains(t, err.Error(), "[custom_webhook]")
	})

	t.Run("rejects missing payload", func(t *testing.T) {
		def := Webhook(nil, nil)
		_, err := def.Call(context.Background(), types.Params{
			"webhook_url":       "http://localhost:1",
			tool.DataStoreParam: dsArg("a1", api.Config{}),
		})
		require.Error(t, err)
	})
}

func TestAPIRequest(t *testing.T) {
	newServer := func(status int, body string) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
		}))
	}

	t.Run("data_only picks the data envelope", func(t *testing.T) {
		server := newServer(http.StatusOK, `{"data":{"count":3},"meta":"x"}`)
		defer server.Close()

		def := APIRequest(server.Client(), nil)
		result, err := def.Call(context.Background(), types.Params{
			"api_url":           server.URL,
			tool.DataStoreParam: dsArg("a1", api.Config{}),
		})
		require.NoError(t, err)
		require.False(t, result.ShouldExit)

		resp := result.Values.Context["api_response"].(map[string]any)
		assert.EqualValues(t, 3, resp["count"])
		assert.Equal(t, result.Values.Context["api_response"], result.Values.Output["api_response"])
	})

	t.Run("data_only without envelope keeps the whole body", func(t *testing.T) {
		server := newServer(http.StatusOK, `{"count":7}`)
		defer server.Close()

		def := APIRequest(server.Client(), nil)
		result, err := def.Call(context.Background(), types.Params{
			"api_url":           server.URL,
			tool.DataStoreParam: dsArg("a1", api.Config{}),
		})
		require.NoError(t, err)

		resp := result.Values.Context["api_response"].(map[string]any)
		assert.EqualValues(t, 7, resp["count"])
	})

	t.Run("full wraps body with the status code", func(t *testing.T) {
		server := newServer(http.StatusOK, `{"ok":true}`)
		defer server.Close()

		def := APIRequest(server.Client(), nil)
		result, err := def.Call(context.Background(), types.Params{
			"api_url":           server.URL,
			"response_handling": "full",
			tool.DataStoreParam: dsArg("a1", api.Config{}),
		})
		require.NoError(t, err)

		resp := result.Values.Context["api_response"].(map[string]any)
		assert.Equal(t, http.StatusOK, resp["status_code"])
		assert.Equal(t, map[string]any{"ok": true}, resp["data"])
	})

	t.Run("post sends the request body", func(t *testing.T) {
		var gotBody []byte
		var gotMethod string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotBody, _ = io.ReadAll(r.Body)
			_, _ = w.Write([]byte(`{"data":"created"}`))
		}))
		defer server.Close()

		def := APIRequest(server.Client(), nil)
		_, err := def.Call(context.Background(), types.Params{
			"api_url":           server.URL,
			"http_method":       "post",
			"request_body":      `{"name":"owl"}`,
			"headers":           `{"X-Token":"s3cret"}`,
			tool.DataStoreParam: dsArg("a1", api.Config{}),
		})
		require.NoError(t, err)
		assert.Equal(t, http.MethodPost, gotMethod)
		assert.Equal(t, "owl", gjson.GetBytes(gotBody, "name").String())
	})

	t.Run("empty response is a failure result", func(t *testing.T) {
		server := newServer(http.StatusOK, `{}`)
		defer server.Close()

		def := APIRequest(server.Client(), nil)
		result, err := def.Call(context.Background(), types.Params{
			"api_url":           server.URL,
			tool.DataStoreParam: dsArg("a1", api.Config{}),
		})
		require.NoError(t, err, "api_request reports failures through its result, not an error")
		assert.True(t, result.ShouldExit, "error_handling defaults to stop")
		assert.Equal(t, "error", result.Status)
		assert.Contains(t, result.Values.Context["error"], "empty or null")
	})

	t.Run("error_handling continue keeps the pipeline going", func(t *testing.T) {
		def := APIRequest(&http.Client{Timeout: 100 * time.Millisecond}, nil)
		result, err := def.Call(context.Background(), types.Params{
			"api_url":           "http://127.0.0.1:1",
			"error_handling":    "continue",
			tool.DataStoreParam: dsArg("a1", api.Config{}),
		})
		require.NoError(t, err)
		assert.False(t, result.ShouldExit)
		assert.Equal(t, "error", result.Status)
	})

	t.Run("invalid method is a failure result", func(t *testing.T) {
		def := APIRequest(nil, nil)
		result, err := def.Call(context.Background(), types.Params{
			"api_url":           "http://127.0.0.1:1",
			"http_method":       "delete",
			tool.DataStoreParam: dsArg("a1", api.Config{}),
		})
		require.NoError(t, err)
		assert.True(t, result.ShouldExit)
		assert.Contains(t, result.Message, "GET or POST")
	})
}

func TestScheduleInterval(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("persists next_run through the gateway", func(t *testing.T) {
		gw := inmem.New()
		require.NoError(t, gw.Insert(context.Background(), "a1", api.Config{}, ""))

		def := scheduleInterval(gw, func() time.Time { return base })
		result, err := def.Call(context.Background(), types.Params{
			"interval_minutes":  30,
			tool.DataStoreParam: dsArg("a1", api.Config{}),
		})
		require.NoError(t, err)

		want := base.Add(30 * time.Minute)
		assert.Equal(t, want, result.Values.Root["next_run"])
		assert.Equal(t, want, result.Values.Context["next_run"])

		record, err := gw.Get(context.Background(), "a1")
		require.NoError(t, err)
		assert.Equal(t, want, record.NextRun)
		assert.Equal(t, api.StatusScheduled, record.Status)
	})

	t.Run("defaults to one hour", func(t *testing.T) {
		gw := inmem.New()
		require.NoError(t, gw.Insert(context.Background(), "a1", api.Config{}, ""))

		def := scheduleInterval(gw, func() time.Time { return base })
		result, err := def.Call(context.Background(), types.Params{
			tool.DataStoreParam: dsArg("a1", api.Config{}),
		})
		require.NoError(t, err)
		assert.Equal(t, base.Add(time.Hour), result.Values.Root["next_run"])
	})

	t.Run("rejects a non-positive interval", func(t *testing.T) {
		def := ScheduleInterval(inmem.New())
		_, err := def.Call(context.Background(), types.Params{
			"interval_minutes":  -5,
			tool.DataStoreParam: dsArg("a1", api.Config{}),
		})
		require.Error(t, err)
	})
}

func TestCompletionValidation(t *testing.T) {
	t.Run("prompt is mandatory", func(t *testing.T) {
		def := Completion(nil, nil)
		_, err := def.Call(context.Background(), types.Params{
			tool.DataStoreParam: dsArg("a1", api.Config{}),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "prompt")
	})

	t.Run("unknown model key", func(t *testing.T) {
		def := Completion(nil, nil)
		_, err := def.Call(context.Background(), types.Params{
			"prompt":            "say hoot",
			"model_key":         "imaginary",
			tool.DataStoreParam: dsArg("a1", api.Config{AIModels: map[string]string{"default": "m"}}),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "imaginary")
	})
}
