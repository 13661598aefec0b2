package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode        string         `mapstructure:"mode"`
	Port        int            `mapstructure:"port"`
	LogLevel    string         `mapstructure:"log_level"`
	CORSOrigin  string         `mapstructure:"cors_origin"`
	FrontendURL string         `mapstructure:"frontend_url"`
	Store       StoreConfig    `mapstructure:"store"`
	Throttle    ThrottleConfig `mapstructure:"throttle"`
	WS          WSConfig       `mapstructure:"ws"`
}

type StoreConfig struct {
	Driver      string       `mapstructure:"driver"` // memory, postgres or valkey
	PostgresDSN string       `mapstructure:"postgres_dsn"`
	Valkey      ValkeyConfig `mapstructure:"valkey"`
}

type ValkeyConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type ThrottleConfig struct {
	TransformDelay    time.Duration `mapstructure:"transform_delay"`
	ColorDelay        time.Duration `mapstructure:"color_delay"`
	FlushOnDisconnect bool          `mapstructure:"flush_on_disconnect"`
}

type WSConfig struct {
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	SendBuffer int           `mapstructure:"send_buffer"`
}

// Load reads .env, then config/config.<CONFIG_ENV>.yaml, then SCENYX_*
// variables, each layer overriding the defaults and the layer before it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("module", "config").Msg("failed to read .env")
	}

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return load(fmt.Sprintf("config/config.%s.yaml", env))
}

func load(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SCENYX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("cors_origin", "http://127.0.0.1:5173")
	v.SetDefault("frontend_url", "http://127.0.0.1:5173")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.postgres_dsn", "")
	v.SetDefault("store.valkey.addr", "127.0.0.1:6379")
	v.SetDefault("store.valkey.password", "")
	v.SetDefault("store.valkey.db", 0)
	v.SetDefault("store.valkey.key_prefix", "scenyx")
	v.SetDefault("throttle.transform_delay", "30ms")
	v.SetDefault("throttle.color_delay", "30ms")
	v.SetDefault("throttle.flush_on_disconnect", false)
	v.SetDefault("ws.read_limit", 32768)
	v.SetDefault("ws.ping_period", "54s")
	v.SetDefault("ws.send_buffer", 256)

	if fileName != "" {
		v.SetConfigFile(fileName)
		err := v.ReadInConfig()
		switch {
		case errors.Is(err, fs.ErrNotExist):
			log.Info().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
		case err != nil:
			return nil, fmt.Errorf("failed to read config %s: %w", fileName, err)
		default:
			log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("store", cfg.Store.Driver).Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "memory", "valkey":
	case "postgres":
		if c.Store.PostgresDSN == "" {
			return errors.New("store.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Throttle.TransformDelay <= 0 || c.Throttle.ColorDelay <= 0 {
		return errors.New("throttle delays must be positive")
	}
	return nil
}
