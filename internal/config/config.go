package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:"0.0.0.0:8080"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"DEBUG"`
	PostgresConfig
	WorkflowConfig
}

func NewConfig() (*Config, error) {
	config := &Config{}

	err := env.Parse(config)
	if err != nil {
		err = fmt.Errorf("config.NewConfig: %w", err)
	}
	return config, err
}

type PostgresConfig struct {
	Conn            string `env:"POSTGRES_CONN" envDefault:"postgres://test:test@db:5432/test?sslmode=disable"`
	Host            string `env:"POSTGRES_HOST" envDefault:"db"`
	Port            string `env:"POSTGRES_PORT" envDefault:"5432"`
	Username        string `env:"POSTGRES_USERNAME" envDefault:"test"`
	Password        string `env:"POSTGRES_PASSWORD" envDefault:"test"`
	Database        string `env:"POSTGRES_DATABASE" envDefault:"test"`
	AutoMigrateUp   string `env:"AUTO_MIGRATE_UP" envDefault:"true"`
	AutoMigrateDown string `env:"AUTO_MIGRATE_DOWN" envDefault:"false"`
	MigrationsURL   string `env:"MIGRATIONS_URL" envDefault:"file://internal/repository/db/migrations"`
}

func NewPostgresConfig() (*PostgresConfig, error) {
	config := &PostgresConfig{}

	err := env.Parse(config)
	if err != nil {
		err = fmt.Errorf("config.NewPostgresConfig: %w", err)
	}
	return config, err
}

// WorkflowConfig carries the workflow policy knobs. The lease default
// survives one missed 60s heartbeat. With RequireAllOfficerSignatures
// set, submit needs every officer's signature on top of the manager's.
type WorkflowConfig struct {
	LockLeaseSeconds            int  `env:"LOCK_LEASE_SECONDS" envDefault:"120"`
	RequireAllOfficerSignatures bool `env:"REQUIRE_ALL_OFFICER_SIGNATURES" envDefault:"false"`
}

func (c *WorkflowConfig) LeaseDuration() time.Duration {
	return time.Duration(c.LockLeaseSeconds) * time.Second
}
