package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	RoleBidding = "bidding"
	RoleAuction = "auction"
	RoleAll     = "all"
)

type Config struct {
	ServiceRole string `env:"SERVICE_ROLE" envDefault:"all" validate:"oneof=bidding auction all"`
	// InMemory swaps Postgres, Redis and NATS for in-process stand-ins.
	InMemory bool   `env:"IN_MEMORY" envDefault:"false"`
	LogEnv   string `env:"LOG_ENV"   envDefault:"development" validate:"oneof=development production"`

	RedisAuctionsHost string `env:"REDIS_AUCTIONS_HOST" envDefault:"localhost"`
	RedisAuctionsPort uint16 `env:"REDIS_AUCTIONS_PORT" envDefault:"6379"   validate:"min=1000,max=65535"`

	PostgresHost     string `env:"POSTGRES_HOST"     envDefault:"localhost"`
	PostgresPort     string `env:"POSTGRES_PORT"     envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER"     envDefault:"auction_user"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"auction_password"`
	PostgresDb       string `env:"POSTGRES_DB"       envDefault:"auction_db"`

	NatsURL   string `env:"NATS_URL"   envDefault:"nats://localhost:4222" validate:"required"`
	BusStream string `env:"BUS_STREAM" envDefault:"BIDLEDGER"             validate:"required"`

	HttpServerPort uint16 `env:"HTTP_SERVER_PORT" envDefault:"8085" validate:"min=1000,max=65535"`

	BidPlaceTimeout       time.Duration `env:"BID_PLACE_TIMEOUT"       envDefault:"5s"  validate:"gt=0"`
	EventHandlerTimeout   time.Duration `env:"EVENT_HANDLER_TIMEOUT"   envDefault:"10s" validate:"gt=0"`
	ConsumerRetryInterval time.Duration `env:"CONSUMER_RETRY_INTERVAL" envDefault:"5s"  validate:"gt=0"`
	ConsumerMaxAttempts   int           `env:"CONSUMER_MAX_ATTEMPTS"   envDefault:"5"   validate:"min=1"`
	PublishRetryAttempts  int           `env:"PUBLISH_RETRY_ATTEMPTS"  envDefault:"3"   validate:"min=1"`
	PublishRetryBackoff   time.Duration `env:"PUBLISH_RETRY_BACKOFF"   envDefault:"200ms" validate:"gt=0"`

	ReconcileSchedule    string        `env:"RECONCILE_SCHEDULE"     envDefault:"*/30 * * * * *" validate:"required"`
	ReconcileLookback    time.Duration `env:"RECONCILE_LOOKBACK"     envDefault:"10m"            validate:"gt=0"`
	FailedReplaySchedule string        `env:"FAILED_REPLAY_SCHEDULE" envDefault:"0 */5 * * * *"  validate:"required"`
}

func (c *Config) RunsBidding() bool { return c.ServiceRole == RoleBidding || c.ServiceRole == RoleAll }
func (c *Config) RunsAuction() bool { return c.ServiceRole == RoleAuction || c.ServiceRole == RoleAll }

func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	err := godotenv.Load(".env")
	if err != nil {
		zap.L().Debug(".env file not found", zap.Error(err))
	}

	cfg := &Config{}
	// Parse config from environment variables
	if err = env.Parse(cfg); err != nil {
		zap.L().Error("config_load_failed", zap.Error(err))
		return nil, err
	}

	// Validate the config
	validate := validator.New()
	err = validate.Struct(cfg)
	if err != nil {
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}
