package config

import "fmt"

// Validate checks the fully merged configuration for internal consistency
// beyond what struct tags alone can express, mirroring the teacher's
// post-merge validation pass.
func (c *Config) Validate() error {
	if c.LLM == nil {
		return fmt.Errorf("%w: llm", ErrMissingRequiredField)
	}
	if !c.LLM.Provider.IsValid() {
		return NewValidationError("llm.provider", fmt.Errorf("%w: %s", ErrInvalidValue, c.LLM.Provider))
	}
	if c.LLM.Provider == ProviderOpenAICompatible && c.LLM.Reasoning.BaseURL == "" && c.LLM.Coding.BaseURL == "" {
		return NewValidationError("llm.reasoning.base_url", fmt.Errorf("%w: required for openai_compatible", ErrMissingRequiredField))
	}
	if c.LLM.Provider == ProviderVertexAI {
		if c.LLM.Reasoning.ProjectEnv == "" || c.LLM.Reasoning.LocationEnv == "" {
			return NewValidationError("llm.reasoning", fmt.Errorf("%w: project_env and location_env required for vertex_ai", ErrMissingRequiredField))
		}
	}
	if c.LLM.Reasoning.Model == "" {
		return NewValidationError("llm.reasoning.model", ErrMissingRequiredField)
	}
	if c.LLM.Coding.Model == "" {
		return NewValidationError("llm.coding.model", ErrMissingRequiredField)
	}

	if c.Limits == nil {
		return fmt.Errorf("%w: limits", ErrMissingRequiredField)
	}
	if c.Limits.PreviewCap > c.Limits.SQLRowCap {
		return NewValidationError("limits.preview_cap", fmt.Errorf("%w: must not exceed sql_row_cap", ErrInvalidValue))
	}
	if c.Limits.MaxTurns < 1 {
		return NewValidationError("limits.max_turns", ErrInvalidValue)
	}

	if c.Server == nil || c.Server.HTTPPort == 0 {
		return NewValidationError("server.http_port", ErrMissingRequiredField)
	}

	if c.Database == nil || c.Database.Database == "" {
		return NewValidationError("database.database", ErrMissingRequiredField)
	}

	if c.MirrorDatabase == nil || c.MirrorDatabase.Database == "" {
		return NewValidationError("mirror_database.database", ErrMissingRequiredField)
	}

	if c.Okta == nil || c.Okta.BaseURL == "" {
		return NewValidationError("okta.base_url", ErrMissingRequiredField)
	}
	if c.Okta.APITokenEnv == "" {
		return NewValidationError("okta.api_token_env", ErrMissingRequiredField)
	}

	return nil
}
