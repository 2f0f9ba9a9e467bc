package llm

import (
	"fmt"
	"os"

	"github.com/oktareact/core/pkg/config"
)

// NewGateway builds the configured provider's Gateway. apiKeyEnv lookups
// prefer the reasoning profile's override and fall back to coding's, since
// both profiles share one provider credential in every supported layout.
func NewGateway(llmCfg *config.LLMConfig) (Gateway, error) {
	apiKey := resolveAPIKey(llmCfg)

	switch llmCfg.Provider {
	case config.ProviderAnthropic:
		return NewAnthropicGateway(llmCfg, apiKey)
	case config.ProviderOpenAI:
		return NewOpenAIGateway(llmCfg, apiKey, "")
	case config.ProviderOpenAICompatible:
		baseURL := llmCfg.Reasoning.BaseURL
		if baseURL == "" {
			baseURL = llmCfg.Coding.BaseURL
		}
		return NewOpenAIGateway(llmCfg, apiKey, baseURL)
	case config.ProviderAzureOpenAI:
		baseURL := llmCfg.Reasoning.BaseURL
		if baseURL == "" {
			baseURL = llmCfg.Coding.BaseURL
		}
		return NewOpenAIGateway(llmCfg, apiKey, baseURL)
	case config.ProviderVertexAI:
		return NewVertexGateway(llmCfg, apiKey)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, llmCfg.Provider)
	}
}

func resolveAPIKey(llmCfg *config.LLMConfig) string {
	if llmCfg.Reasoning.APIKeyEnv != "" {
		if v := os.Getenv(llmCfg.Reasoning.APIKeyEnv); v != "" {
			return v
		}
	}
	if llmCfg.Coding.APIKeyEnv != "" {
		if v := os.Getenv(llmCfg.Coding.APIKeyEnv); v != "" {
			return v
		}
	}
	return ""
}
