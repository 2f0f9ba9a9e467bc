package config

import "fmt"

// ProfileConfig configures one Chat Model Gateway profile (reasoning or
// coding). Both profiles may point at different models of the same
// provider; each profile must name its own model, since validation rejects
// an empty one.
type ProfileConfig struct {
	Model     string `yaml:"model" validate:"required"`
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// BaseURL overrides the provider's default endpoint; required for
	// openai_compatible, optional elsewhere.
	BaseURL string `yaml:"base_url,omitempty"`

	// ProjectEnv/LocationEnv are only consulted for vertex_ai.
	ProjectEnv  string `yaml:"project_env,omitempty"`
	LocationEnv string `yaml:"location_env,omitempty"`
}

// LLMConfig is the Chat Model Gateway section of oktareact.yaml.
type LLMConfig struct {
	Provider          Provider          `yaml:"provider" validate:"required"`
	CustomHTTPHeaders map[string]string `yaml:"custom_http_headers,omitempty"`
	Reasoning         ProfileConfig     `yaml:"reasoning" validate:"required"`
	Coding            ProfileConfig     `yaml:"coding" validate:"required"`
}

// Profile returns the ProfileConfig for the given profile name.
func (c *LLMConfig) Profile(p Profile) (*ProfileConfig, error) {
	switch p {
	case ProfileReasoning:
		return &c.Reasoning, nil
	case ProfileCoding:
		return &c.Coding, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrLLMProviderNotFound, p)
	}
}
