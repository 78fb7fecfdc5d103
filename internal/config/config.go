package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration, loaded from environment
// variables.
type Config struct {
	// Ledger policy
	HandleSplit               bool    `env:"EQUITY_HANDLE_SPLIT"                   envDefault:"true"`
	CashReturnByStockDelisted bool    `env:"EQUITY_CASH_RETURN_BY_STOCK_DELISTED"  envDefault:"false"`
	InitialCash               float64 `env:"EQUITY_INITIAL_CASH"                   envDefault:"100000"`

	// Logging
	LogLevel string `env:"EQUITY_LOG_LEVEL" envDefault:"info"`

	// Live feed
	NATSURL string `env:"EQUITY_NATS_URL" envDefault:"nats://localhost:4222"`

	// HTTP status server (live mode)
	HTTPAddr            string        `env:"EQUITY_HTTP_ADDR"             envDefault:":8080"`
	HTTPShutdownTimeout time.Duration `env:"EQUITY_HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Audit recorder; an empty DSN disables it
	PostgresDSN          string        `env:"EQUITY_POSTGRES_DSN"           envDefault:""`
	RecorderBatchSize    int           `env:"EQUITY_RECORDER_BATCH_SIZE"    envDefault:"50"`
	RecorderFlushTimeout time.Duration `env:"EQUITY_RECORDER_FLUSH_TIMEOUT" envDefault:"100ms"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
