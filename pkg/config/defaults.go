package config

// DefaultLimits returns the baseline LimitsConfig, merged under whatever the
// user supplies via mergo so only the fields left unset take these values.
func DefaultLimits() *LimitsConfig {
	return &LimitsConfig{
		APIConcurrentLimit:     5,
		APIRequestsPerSecond:   10,
		SQLRowCap:              1000,
		PreviewCap:             3,
		StepExecutionTimeoutS:  300,
		FinalExecutionTimeoutS: 300,
		MaxStoredBytesPerStep:  1 << 20,
		MaxTurns:               25,
		MaxWallS:               900,
		CancelGraceS:           15,
		EventBufferSize:        256,
		PlannerMaxRetries:      2,
	}
}

// DefaultLogging returns the baseline LoggingConfig.
func DefaultLogging() *LoggingConfig {
	return &LoggingConfig{
		LevelConsole: "info",
		LevelFile:    "debug",
		FilePath:     "oktareact.log",
	}
}

// DefaultServer returns the baseline ServerConfig.
func DefaultServer() *ServerConfig {
	return &ServerConfig{
		HTTPPort: 8080,
	}
}

// DefaultDatabase returns the baseline DatabaseConfig.
func DefaultDatabase() *DatabaseConfig {
	return &DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "oktareact",
		Database: "oktareact",
		SSLMode:  "disable",
	}
}

// DefaultMirrorDatabase returns the baseline MirrorDatabaseConfig. It shares
// the operational database's host/user/sslmode defaults but points at a
// distinct database name, since the two pools are expected to live on the
// same Postgres instance in the common case but must never share a name.
func DefaultMirrorDatabase() *MirrorDatabaseConfig {
	return &MirrorDatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "oktareact",
		Database: "oktareact_mirror",
		SSLMode:  "disable",
	}
}
