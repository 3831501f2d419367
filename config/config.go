package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is read from the environment, optionally seeded from a .env file.
type Config struct {
	DefaultLanguage string        `env:"DEFAULT_LANGUAGE,default=javascript" validate:"required"`
	TypingTTL       time.Duration `env:"TYPING_TTL,default=2s" validate:"gt=0"`

	ActivityStore  string `env:"ACTIVITY_STORE,default=memory" validate:"oneof=memory sqlite redis"`
	DataSourceName string `env:"DATA_SOURCE_NAME,default=codecollab.db"`
	RedisAddr      string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX,default=codecollab:"`

	// socket.io transport cap; shared files travel inside a single message
	MaxHTTPBufferSize int64    `env:"MAX_HTTP_BUFFER_SIZE,default=52428800" validate:"gt=0"`
	AllowedOrigins    []string `env:"ALLOWED_ORIGINS,separator=;"`
}

var validate = validator.New()

// Load reads the given .env files (".env" when none is given, missing files are
// ignored) and then the process environment.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	es, err := env.EnvironToEnvSet(os.Environ())
	if err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	return FromEnvSet(es)
}

// FromEnvSet builds a Config from an explicit set of variables.
func FromEnvSet(es env.EnvSet) (Config, error) {
	var cfg Config
	if err := env.Unmarshal(es, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
