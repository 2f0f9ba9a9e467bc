package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/oktareact/core/pkg/config"
)

// openAIGateway implements Gateway on top of the OpenAI Chat Completions
// API. The same driver serves openai, openai_compatible (local/self-hosted
// endpoints reached via a custom base URL), and azure_openai (reached via
// a custom base URL plus custom headers for api-version/api-key).
type openAIGateway struct {
	client    openai.Client
	reasoning config.ProfileConfig
	coding    config.ProfileConfig
}

// NewOpenAIGateway builds a Gateway against the OpenAI-compatible Chat
// Completions wire format. baseURL is empty for the public OpenAI API.
func NewOpenAIGateway(llmCfg *config.LLMConfig, apiKey, baseURL string) (Gateway, error) {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	for k, v := range llmCfg.CustomHTTPHeaders {
		opts = append(opts, option.WithHeader(k, v))
	}
	return &openAIGateway{
		client:    openai.NewClient(opts...),
		reasoning: llmCfg.Reasoning,
		coding:    llmCfg.Coding,
	}, nil
}

func (g *openAIGateway) profileConfig(profile string) config.ProfileConfig {
	if profile == string(config.ProfileCoding) {
		return g.coding
	}
	return g.reasoning
}

func (g *openAIGateway) Generate(ctx context.Context, input *GenerateInput) (<-chan Chunk, error) {
	profile := g.profileConfig(input.Profile)
	if profile.Model == "" {
		return nil, fmt.Errorf("llm: no model configured for profile %q", input.Profile)
	}

	messages, err := encodeOpenAIMessages(input.Messages)
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(profile.Model),
		Messages: messages,
	}
	if len(input.Tools) > 0 {
		params.Tools = encodeOpenAITools(input.Tools)
	}

	out := make(chan Chunk, 8)
	go func() {
		defer close(out)

		resp, err := g.client.Chat.Completions.New(ctx, params)
		if err != nil {
			if isOpenAIRateLimited(err) {
				out <- &ErrorChunk{Message: err.Error(), Retryable: true}
				return
			}
			out <- &ErrorChunk{Message: err.Error()}
			return
		}
		if len(resp.Choices) == 0 {
			out <- &ErrorChunk{Message: "empty choices in response"}
			return
		}

		choice := resp.Choices[0].Message
		if choice.Content != "" {
			out <- &TextChunk{Content: choice.Content}
		}
		for _, tc := range choice.ToolCalls {
			out <- &ToolCallChunk{
				CallID:    tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			}
		}

		out <- &UsageChunk{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		}
	}()

	return out, nil
}

func (g *openAIGateway) Close() error { return nil }

func encodeOpenAIMessages(msgs []ConversationMessage) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			calls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				calls = append(calls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			assistant := openai.ChatCompletionAssistantMessageParam{
				Content:   openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(m.Content)},
				ToolCalls: calls,
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		default:
			return nil, fmt.Errorf("llm: unsupported message role %q", m.Role)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("llm: at least one message is required")
	}
	return out, nil
}

func encodeOpenAITools(defs []ToolDefinition) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, def := range defs {
		var schema map[string]any
		_ = json.Unmarshal([]byte(def.ParametersSchema), &schema)
		out = append(out, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  shared.FunctionParameters(schema),
			},
		})
	}
	return out
}

func isOpenAIRateLimited(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
