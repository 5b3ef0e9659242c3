package internal

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is the full runtime configuration surface, loaded from the
// environment. Every knob the core recognizes lives here so operators
// have a single place to look.
type Config struct {
	ShardCount     int           `env:"SHARD_COUNT,required=true" validate:"gte=1"`
	MailboxSize    int           `env:"MAILBOX_SIZE,required=true" validate:"gte=1"`
	OutBufferSize  int           `env:"OUT_BUFFER_SIZE,required=true" validate:"gte=1"`
	OverflowPolicy string        `env:"OVERFLOW_POLICY,required=true" validate:"oneof=drop-newest block"`
	AskTimeout     time.Duration `env:"ASK_TIMEOUT,required=true" validate:"gt=0"`
	PassivateAfter time.Duration `env:"PASSIVATE_AFTER,required=true" validate:"gt=0"`
	SweepInterval  time.Duration `env:"SWEEP_INTERVAL,required=true" validate:"gt=0"`
	MetricInterval time.Duration `env:"METRIC_INTERVAL,required=true" validate:"gt=0"`
	SnapshotEvery  int           `env:"SNAPSHOT_EVERY"` // 0 disables snapshotting
	BadgerFilepath string        `env:"BADGER_FILEPATH,required=true"`
	LogLevel       string        `env:"LOG_LEVEL,required=true"`
	Host           string        `env:"HOST,required=true"`
	Port           int           `env:"PORT,required=true" validate:"gt=0"`
}

// Load reads an optional .env file, then the process environment, and
// validates the result.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}
