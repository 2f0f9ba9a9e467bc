package config

// Config is the umbrella configuration object returned by Initialize and
// threaded through the Process Supervisor, Chat Model Gateway, and API
// surface for the lifetime of the process.
type Config struct {
	configDir string

	LLM            *LLMConfig
	Limits         *LimitsConfig
	Logging        *LoggingConfig
	Server         *ServerConfig
	Database       *DatabaseConfig
	MirrorDatabase *MirrorDatabaseConfig
	Okta           *OktaConfig
}

// ConfigDir returns the directory Initialize loaded configuration from.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// yamlConfig mirrors the on-disk oktareact.yaml structure before defaults
// are merged in and validation runs.
type yamlConfig struct {
	LLM            *LLMConfig            `yaml:"llm"`
	Limits         *LimitsConfig         `yaml:"limits"`
	Logging        *LoggingConfig        `yaml:"logging"`
	Server         *ServerConfig         `yaml:"server"`
	Database       *DatabaseConfig       `yaml:"database"`
	MirrorDatabase *MirrorDatabaseConfig `yaml:"mirror_database"`
	Okta           *OktaConfig           `yaml:"okta"`
}
