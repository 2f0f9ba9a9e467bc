package config

import "time"

// LimitsConfig groups the tunable bounds that keep the ReAct loop and its
// tools inside the context-budget and resource caps from spec §4–§5.
type LimitsConfig struct {
	// APIConcurrentLimit bounds the API Rate Governor's concurrent-request count.
	APIConcurrentLimit int `yaml:"api_concurrent_limit" validate:"required,min=1"`
	// APIRequestsPerSecond bounds the API Rate Governor's per-second budget.
	APIRequestsPerSecond float64 `yaml:"api_requests_per_second" validate:"required,min=0.1"`
	// SQLRowCap is the maximum rows any SQL statement may return.
	SQLRowCap int `yaml:"sql_row_cap" validate:"required,min=1"`
	// PreviewCap is the maximum rows returned as sample_preview/sample_rows.
	PreviewCap int `yaml:"preview_cap" validate:"required,min=1"`
	// StepExecutionTimeoutS bounds one Sandbox preview execution.
	StepExecutionTimeoutS int `yaml:"step_execution_timeout_s" validate:"required,min=1"`
	// FinalExecutionTimeoutS bounds the Final Script Synthesis execute mode.
	FinalExecutionTimeoutS int `yaml:"final_execution_timeout_s" validate:"required,min=1"`
	// MaxStoredBytesPerStep bounds store_validated_step payload size.
	MaxStoredBytesPerStep int `yaml:"max_stored_bytes_per_step" validate:"required,min=1024"`
	// MaxTurns bounds the ReAct loop iteration count.
	MaxTurns int `yaml:"max_turns" validate:"required,min=1"`
	// MaxWallS bounds the ReAct loop wall-clock time.
	MaxWallS int `yaml:"max_wall_s" validate:"required,min=1"`
	// CancelGraceS bounds how long a cancelled process may take to reach terminal state.
	CancelGraceS int `yaml:"cancel_grace_s" validate:"required,min=1"`
	// EventBufferSize bounds the Event Bus's per-process buffered channel.
	EventBufferSize int `yaml:"event_buffer_size" validate:"required,min=1"`

	// PlannerMaxRetries bounds malformed-output retries before the Planner
	// fails open with an empty plan.
	PlannerMaxRetries int `yaml:"planner_max_retries" validate:"required,min=0"`
}

// IterationTimeout returns the per-step execution bound as a time.Duration.
func (l *LimitsConfig) IterationTimeout() time.Duration {
	return time.Duration(l.StepExecutionTimeoutS) * time.Second
}

// FinalExecutionTimeout returns the final-script execution bound.
func (l *LimitsConfig) FinalExecutionTimeout() time.Duration {
	return time.Duration(l.FinalExecutionTimeoutS) * time.Second
}

// MaxWall returns the ReAct loop's wall-clock bound.
func (l *LimitsConfig) MaxWall() time.Duration {
	return time.Duration(l.MaxWallS) * time.Second
}

// CancelGrace returns the cancellation grace period.
func (l *LimitsConfig) CancelGrace() time.Duration {
	return time.Duration(l.CancelGraceS) * time.Second
}

// LoggingConfig configures the two slog sinks the teacher repo exposes.
type LoggingConfig struct {
	LevelConsole string `yaml:"level_console,omitempty"`
	LevelFile    string `yaml:"level_file,omitempty"`
	FilePath     string `yaml:"file_path,omitempty"`
}

// ServerConfig configures the HTTP surface (§6).
type ServerConfig struct {
	HTTPPort int `yaml:"http_port" validate:"required,min=1"`
}

// DatabaseConfig configures the Postgres connection backing Process/Step/
// Event/Message persistence. The SQL Schema View executor uses
// MirrorDatabaseConfig instead.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// OktaConfig points the Sandbox Proxy's OktaCaller at the tenant it
// mediates API calls against.
type OktaConfig struct {
	BaseURL     string `yaml:"base_url" validate:"required"`
	APITokenEnv string `yaml:"api_token_env" validate:"required"`
}

// MirrorDatabaseConfig configures the Postgres connection backing the SQL
// Schema View's Okta-tenant mirror tables — deliberately a separate
// connection pool from DatabaseConfig's operational Process/Step/Event
// tables, so a runaway analyst query can't starve the Ent client's
// connections (see DESIGN.md's Open Question decision on SQL Schema View
// connection ownership).
type MirrorDatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}
