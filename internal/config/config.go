package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"momentum-peaks/internal/calendar"
	"momentum-peaks/internal/venues"
	"momentum-peaks/pkg/database"
	"momentum-peaks/pkg/logging"
)

// EnvPrefix prefixes every environment override, e.g. MP_DATABASE_HOST
const EnvPrefix = "MP"

// Config aggregates all configuration settings for the services
type Config struct {
	Environment string         `mapstructure:"environment"`
	Server      ServerConfig   `mapstructure:"server"`
	Database    DatabaseConfig `mapstructure:"database"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Logging     LoggingConfig  `mapstructure:"logging"`
	Forecast    ForecastConfig `mapstructure:"forecast"`

	// FiscalYearStartMonth is the first month (1..12) of a fiscal year
	FiscalYearStartMonth int `mapstructure:"fiscal_year_start_month"`
	// VenuesFile points at a venue YAML; empty uses the built-in table
	VenuesFile string `mapstructure:"venues_file"`
}

// ServerConfig defines the HTTP server settings
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig defines the PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// RedisConfig defines the forecast cache connection. Disabled skips Redis entirely.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LoggingConfig controls the structured logger
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// ForecastConfig tunes the forecast engine and its cache
type ForecastConfig struct {
	Scheme            string        `mapstructure:"scheme"`
	FlatFeeWindowDays int           `mapstructure:"flat_fee_window_days"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
}

// LoadConfig reads .env (if present), configs/config.yaml (if present) and
// MP_* environment overrides, in increasing precedence.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	return LoadConfigFrom("")
}

// LoadConfigFrom loads configuration from file, or searches the default
// locations when file is empty. A missing default file is not an error.
func LoadConfigFrom(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	// POSTGRES_PASSWORD is shared with the postgres container
	if pw := os.Getenv("POSTGRES_PASSWORD"); cfg.Database.Password == "" && pw != "" {
		cfg.Database.Password = pw
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "mp")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "momentum_peaks")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.conn_max_idle_time", 5*time.Minute)

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("logging.level", "info")

	v.SetDefault("forecast.scheme", string(calendar.SchemeSolarTerm))
	v.SetDefault("forecast.flat_fee_window_days", 90)
	v.SetDefault("forecast.cache_ttl", 6*time.Hour)

	v.SetDefault("fiscal_year_start_month", 4)
	v.SetDefault("venues_file", "")
}

// Validate checks the settings the services cannot start without
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Database.Host == "" || c.Database.Database == "" {
		return fmt.Errorf("database.host and database.database are required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("database.port %d out of range", c.Database.Port)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 || c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns must be between 0 and max_open_conns")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	if _, err := calendar.ParseScheme(c.Forecast.Scheme); err != nil {
		return fmt.Errorf("forecast.scheme: %w", err)
	}
	if c.Forecast.FlatFeeWindowDays <= 0 {
		return fmt.Errorf("forecast.flat_fee_window_days must be positive")
	}
	if c.Forecast.CacheTTL < 0 {
		return fmt.Errorf("forecast.cache_ttl must not be negative")
	}
	if c.FiscalYearStartMonth < 1 || c.FiscalYearStartMonth > 12 {
		return fmt.Errorf("fiscal_year_start_month %d outside 1..12", c.FiscalYearStartMonth)
	}
	if c.VenuesFile != "" {
		if _, err := os.Stat(c.VenuesFile); err != nil {
			return fmt.Errorf("venues_file: %w", err)
		}
	}
	return nil
}

// Scheme returns the parsed forecast matching scheme
func (c *Config) Scheme() calendar.Scheme {
	s, err := calendar.ParseScheme(c.Forecast.Scheme)
	if err != nil {
		return calendar.SchemeSolarTerm
	}
	return s
}

// FiscalStart returns the fiscal year start month
func (c *Config) FiscalStart() time.Month {
	return time.Month(c.FiscalYearStartMonth)
}

// Postgres converts the database section into a connection config
func (c *Config) Postgres() *database.Config {
	return &database.Config{
		Host:            c.Database.Host,
		Port:            c.Database.Port,
		User:            c.Database.User,
		Password:        c.Database.Password,
		Database:        c.Database.Database,
		SSLMode:         c.Database.SSLMode,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
		ConnMaxIdleTime: c.Database.ConnMaxIdleTime,
	}
}

// LogLevel returns the configured logger level
func (c *Config) LogLevel() logging.LogLevel {
	return logging.ParseLevel(c.Logging.Level)
}

// LoadVenues reads VenuesFile, or the built-in venue table when it is empty
func (c *Config) LoadVenues() (*venues.Registry, error) {
	if c.VenuesFile == "" {
		return venues.Default()
	}
	return venues.Load(c.VenuesFile)
}
