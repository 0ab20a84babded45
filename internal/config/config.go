package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	RedisHost string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort uint16 `env:"REDIS_PORT" envDefault:"6379"   validate:"min=1000,max=65535"`

	PostgresHost     string `env:"POSTGRES_HOST"     envDefault:"localhost"`
	PostgresPort     string `env:"POSTGRES_PORT"     envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER"     envDefault:"warroom_user"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"warroom_password"`
	PostgresDb       string `env:"POSTGRES_DB"       envDefault:"warroom_db"`

	// InstanceID distinguishes this process on the shared fanout channels.
	// Empty means "generate one at boot".
	InstanceID string `env:"INSTANCE_ID" envDefault:""`

	DefaultCursorColor string `env:"DEFAULT_CURSOR_COLOR" envDefault:"#3b82f6" validate:"hexcolor"`

	// TokenCacheTTLSeconds bounds how long a verified token is trusted from
	// the Redis cache before the database is consulted again.
	TokenCacheTTLSeconds uint32 `env:"TOKEN_CACHE_TTL_SECONDS" envDefault:"60" validate:"min=1"`

	PresenceSyncSeconds uint32 `env:"PRESENCE_SYNC_SECONDS" envDefault:"10" validate:"min=1"`

	HttpServerPort uint16 `env:"HTTP_SERVER_PORT" envDefault:"8086" validate:"min=1000,max=65535"`
}

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
