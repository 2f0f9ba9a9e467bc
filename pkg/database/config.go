package database

import (
	"fmt"
	"time"

	"github.com/oktareact/core/pkg/config"
)

// FromAppConfig translates the YAML-derived config.DatabaseConfig into a
// pooled database.Config, filling in production-sane pool defaults the
// YAML schema does not expose.
func FromAppConfig(c *config.DatabaseConfig) Config {
	return Config{
		Host:            c.Host,
		Port:            c.Port,
		User:            c.User,
		Password:        c.Password,
		Database:        c.Database,
		SSLMode:         c.SSLMode,
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 15 * time.Minute,
	}
}

// Validate checks pool settings for internal consistency.
func (c Config) Validate() error {
	if c.MaxOpenConns < 1 {
		return fmt.Errorf("MaxOpenConns must be at least 1")
	}
	if c.MaxIdleConns < 0 {
		return fmt.Errorf("MaxIdleConns cannot be negative")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("MaxIdleConns (%d) cannot exceed MaxOpenConns (%d)", c.MaxIdleConns, c.MaxOpenConns)
	}
	return nil
}
