package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	CacheDriverMemory = "memory"
	CacheDriverRedis  = "redis"
	CacheDriverNone   = "none"
)

// Config holds the service settings. Values come from the environment, with an
// optional .env file in the directory given to Load.
type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`

	DBHost        string `mapstructure:"DB_HOST"`
	DBPort        string `mapstructure:"DB_PORT"`
	DBUser        string `mapstructure:"DB_USER"`
	DBPassword    string `mapstructure:"DB_PASSWORD"`
	DBName        string `mapstructure:"DB_NAME"`
	DBSSLMode     string `mapstructure:"DB_SSLMODE"`
	DBAutoMigrate bool   `mapstructure:"DB_AUTO_MIGRATE"`

	StoreDriver string `mapstructure:"STORE_DRIVER"`
	CacheDriver string `mapstructure:"CACHE_DRIVER"`

	RedisURL       string        `mapstructure:"REDIS_URL"`
	RedisKeyPrefix string        `mapstructure:"REDIS_KEY_PREFIX"`
	CacheTTL       time.Duration `mapstructure:"CACHE_TTL"`

	RabbitMQURL            string `mapstructure:"RABBITMQ_URL"`
	TransferEventsExchange string `mapstructure:"TRANSFER_EVENTS_EXCHANGE"`

	// TransferLockTimeout bounds how long a transfer waits for its account locks.
	TransferLockTimeout time.Duration `mapstructure:"TRANSFER_LOCK_TIMEOUT"`
}

var defaults = map[string]any{
	"SERVER_PORT":              "8080",
	"DB_HOST":                  "localhost",
	"DB_PORT":                  "5432",
	"DB_USER":                  "postgres",
	"DB_PASSWORD":              "password",
	"DB_NAME":                  "fund_transfers",
	"DB_SSLMODE":               "disable",
	"DB_AUTO_MIGRATE":          true,
	"STORE_DRIVER":             StoreDriverPostgres,
	"CACHE_DRIVER":             CacheDriverMemory,
	"REDIS_URL":                "",
	"REDIS_KEY_PREFIX":         "fund-transfers",
	"CACHE_TTL":                5 * time.Minute,
	"RABBITMQ_URL":             "",
	"TRANSFER_EVENTS_EXCHANGE": "fund_transfers.events",
	"TRANSFER_LOCK_TIMEOUT":    2 * time.Second,
}

// Load reads the configuration. A missing .env file under path is not an error;
// pass an empty path to read the environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.AddConfigPath(path)
		v.SetConfigName(".env")
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	cfg.CacheDriver = strings.ToLower(strings.TrimSpace(cfg.CacheDriver))
	cfg.RedisURL = strings.TrimSpace(cfg.RedisURL)
	cfg.RabbitMQURL = strings.TrimSpace(cfg.RabbitMQURL)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.CacheDriver {
	case CacheDriverMemory, CacheDriverNone:
	case CacheDriverRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when CACHE_DRIVER is %q", CacheDriverRedis)
		}
	default:
		return fmt.Errorf("unknown CACHE_DRIVER %q", c.CacheDriver)
	}

	if c.TransferLockTimeout <= 0 {
		return fmt.Errorf("TRANSFER_LOCK_TIMEOUT must be positive, got %s", c.TransferLockTimeout)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("CACHE_TTL must not be negative, got %s", c.CacheTTL)
	}
	return nil
}

func (c *Config) GetDBConnectionString() string {
	sslMode := c.DBSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, sslMode)
}
