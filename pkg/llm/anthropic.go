package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/oktareact/core/pkg/config"
)

// anthropicGateway implements Gateway on top of Anthropic's Messages API.
type anthropicGateway struct {
	client       *sdk.Client
	reasoning    config.ProfileConfig
	coding       config.ProfileConfig
	customHeader map[string]string
}

// NewAnthropicGateway builds a Gateway backed by the Anthropic Claude
// Messages API for both profiles.
func NewAnthropicGateway(llmCfg *config.LLMConfig, apiKey string) (Gateway, error) {
	if apiKey == "" {
		return nil, errors.New("llm: anthropic api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	for k, v := range llmCfg.CustomHTTPHeaders {
		opts = append(opts, option.WithHeader(k, v))
	}
	c := sdk.NewClient(opts...)
	return &anthropicGateway{
		client:       &c,
		reasoning:    llmCfg.Reasoning,
		coding:       llmCfg.Coding,
		customHeader: llmCfg.CustomHTTPHeaders,
	}, nil
}

func (g *anthropicGateway) profileConfig(profile string) config.ProfileConfig {
	if profile == string(config.ProfileCoding) {
		return g.coding
	}
	return g.reasoning
}

func (g *anthropicGateway) Generate(ctx context.Context, input *GenerateInput) (<-chan Chunk, error) {
	profile := g.profileConfig(input.Profile)
	if profile.Model == "" {
		return nil, fmt.Errorf("llm: no model configured for profile %q", input.Profile)
	}

	msgs, system, err := encodeAnthropicMessages(input.Messages)
	if err != nil {
		return nil, err
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(profile.Model),
		MaxTokens: 8192,
		Messages:  msgs,
	}
	if len(system) > 0 {
		params.System = system
	}
	if len(input.Tools) > 0 {
		params.Tools = encodeAnthropicTools(input.Tools)
	}

	out := make(chan Chunk, 8)
	go func() {
		defer close(out)

		msg, err := g.client.Messages.New(ctx, params)
		if err != nil {
			if isAnthropicRateLimited(err) {
				out <- &ErrorChunk{Message: err.Error(), Retryable: true}
				return
			}
			out <- &ErrorChunk{Message: err.Error()}
			return
		}

		for _, block := range msg.Content {
			switch block.Type {
			case "text":
				if block.Text != "" {
					out <- &TextChunk{Content: block.Text}
				}
			case "tool_use":
				args, _ := json.Marshal(block.Input)
				out <- &ToolCallChunk{CallID: block.ID, Name: block.Name, Arguments: string(args)}
			}
		}

		out <- &UsageChunk{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		}
	}()

	return out, nil
}

func (g *anthropicGateway) Close() error { return nil }

func encodeAnthropicMessages(msgs []ConversationMessage) ([]sdk.MessageParam, []sdk.TextBlockParam, error) {
	conversation := make([]sdk.MessageParam, 0, len(msgs))
	system := make([]sdk.TextBlockParam, 0, len(msgs))

	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			if m.Content != "" {
				system = append(system, sdk.TextBlockParam{Text: m.Content})
			}
		case RoleUser:
			conversation = append(conversation, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case RoleAssistant:
			blocks := make([]sdk.ContentBlockParamUnion, 0, 1+len(m.ToolCalls))
			if m.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input map[string]any
				_ = json.Unmarshal([]byte(tc.Arguments), &input)
				blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			conversation = append(conversation, sdk.NewAssistantMessage(blocks...))
		case RoleTool:
			conversation = append(conversation, sdk.NewUserMessage(
				sdk.NewToolResultBlock(m.ToolCallID, m.Content, false),
			))
		default:
			return nil, nil, fmt.Errorf("llm: unsupported message role %q", m.Role)
		}
	}
	if len(conversation) == 0 {
		return nil, nil, errors.New("llm: at least one user/assistant message is required")
	}
	return conversation, system, nil
}

func encodeAnthropicTools(defs []ToolDefinition) []sdk.ToolUnionParam {
	out := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		var schema map[string]any
		_ = json.Unmarshal([]byte(def.ParametersSchema), &schema)
		u := sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{ExtraFields: schema}, def.Name)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(def.Description)
		}
		out = append(out, u)
	}
	return out
}

func isAnthropicRateLimited(err error) bool {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
