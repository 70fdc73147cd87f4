package builtin

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/casualjim/rookery/pkg/slogx"
	"github.com/casualjim/rookery/tool"
	"github.com/casualjim/rookery/types"
	"github.com/openai/openai-go"
	"golang.org/x/sync/semaphore"
)

// Completion returns the completion tool: a single-prompt LLM call through
// the given client. The model is looked up in the calling agent's ai_models
// routing table via the model_key parameter, so pipelines select a capability
// tier (composing, research, mini, ...) instead of hard-coding model ids.
func Completion(client *openai.Client, sem *semaphore.Weighted) tool.Definition {
	return tool.Must(func(ctx context.Context, args types.Params) (tool.Result, error) {
		prompt, ok := stringArg(args, "prompt")
		if !ok {
			return tool.Result{}, fmt.Errorf("prompt must be provided")
		}

		modelKey := "default"
		if k, ok := stringArg(args, "model_key"); ok {
			modelKey = k
		}
		agentID, cfg := agentInfo(args)
		model, ok := cfg.AIModels[modelKey]
		if !ok || model == "" {
			return tool.Result{}, fmt.Errorf("no model configured for key %q", modelKey)
		}

		release, err := acquire(ctx, sem)
		if err != nil {
			return tool.Result{}, err
		}
		defer release()

		slog.InfoContext(ctx, "requesting completion",
			slogx.AgentID(agentID), slog.String("model", model), slog.String("model_key", modelKey))

		chat, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Messages: openai.F([]openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(prompt),
			}),
			Model: openai.F(model),
			N:     openai.Int(1),
		})
		if err != nil {
			return tool.Result{}, fmt.Errorf("completion with model %s: %w", model, err)
		}
		if len(chat.Choices) == 0 {
			return tool.Result{}, fmt.Errorf("completion with model %s returned no choices", model)
		}

		return tool.Result{
			Status: "success",
			Values: &tool.Values{Context: map[string]any{
				"completion":       chat.Choices[0].Message.Content,
				"completion_model": model,
			}},
		}, nil
	},
		tool.Name("completion"),
		tool.Description("Generates an LLM completion for a prompt, routing the model through the agent's ai_models table"),
		tool.Parameters(
			tool.Required("prompt", "prompt text sent to the model"),
			tool.Optional("model_key", "ai_models routing key, default \"default\""),
			tool.DataStore(),
		),
	)
}
