/*
config.go - Server configuration

PURPOSE:
  Loads settings for cmd/server from defaults, an optional config file,
  a .env file and SALON_* environment variables, in increasing priority.

KEYS:
  server.port              HTTP port (default 8080)
  server.allowed_origins   CORS origins
  database.driver          memory | sqlite | postgres (default sqlite)
  database.path            SQLite file (default ledger.db, ":memory:" allowed)
  database.dsn             PostgreSQL DSN, e.g. from SALON_DATABASE_DSN
  ledger.max_redeem_attempts  CAS retries per redemption (default 5)
  audit.enabled            run the ledger audit on a schedule
  audit.schedule           cron schedule (default "@every 1h")
  log.level                debug | info | warn | error
  log.development          human-readable console output

  outlets, services, staff seed the in-memory directory:

    outlets:
      - id: out-indiranagar
        name: Glow Indiranagar
        gstin: 29ABCDE1234F1Z5
    services:
      - id: svc-haircut
        name: Haircut
        price: 500

SEE ALSO:
  - cmd/server/main.go: Consumes Config
*/
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/warp/package-ledger/catalog"
	"github.com/warp/package-ledger/generic"
	"github.com/warp/package-ledger/ledger"
)

const EnvPrefix = "SALON"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Log      LogConfig      `mapstructure:"log"`

	Outlets  []OutletConfig  `mapstructure:"outlets"`
	Services []ServiceConfig `mapstructure:"services"`
	Staff    []StaffConfig   `mapstructure:"staff"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

type LedgerConfig struct {
	MaxRedeemAttempts int `mapstructure:"max_redeem_attempts"`
}

type AuditConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type OutletConfig struct {
	ID      string `mapstructure:"id"`
	Name    string `mapstructure:"name"`
	Address string `mapstructure:"address"`
	GSTIN   string `mapstructure:"gstin"`
	Phone   string `mapstructure:"phone"`
}

type ServiceConfig struct {
	ID    string  `mapstructure:"id"`
	Name  string  `mapstructure:"name"`
	Price float64 `mapstructure:"price"`
}

type StaffConfig struct {
	ID   string `mapstructure:"id"`
	Name string `mapstructure:"name"`
}

// Database drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173", "http://localhost:8080"})
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", "ledger.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("ledger.max_redeem_attempts", ledger.DefaultMaxAttempts)
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.schedule", "@every 1h")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads configuration. path may name a config file; when empty,
// ./config.yaml is used if present. A missing .env is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return generic.NewValidationError("server.port", "must be between 1 and 65535")
	}
	switch c.Database.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Database.Path == "" {
			return generic.NewValidationError("database.path", "is required for sqlite")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return generic.NewValidationError("database.dsn", "is required for postgres")
		}
	default:
		return generic.NewValidationError("database.driver", fmt.Sprintf("unknown driver %q", c.Database.Driver))
	}
	if c.Ledger.MaxRedeemAttempts < 1 {
		return generic.NewValidationError("ledger.max_redeem_attempts", "must be at least 1")
	}
	if c.Audit.Enabled && c.Audit.Schedule == "" {
		return generic.NewValidationError("audit.schedule", "is required when audit is enabled")
	}
	return nil
}

// Directory builds the service, staff and outlet lookups from the seed lists.
func (c *Config) Directory() *catalog.Directory {
	dir := catalog.NewDirectory()
	for _, o := range c.Outlets {
		dir.PutOutlet(catalog.Outlet{
			ID:      generic.OutletID(o.ID),
			Name:    o.Name,
			Address: o.Address,
			GSTIN:   o.GSTIN,
			Phone:   o.Phone,
		})
	}
	for _, s := range c.Services {
		dir.PutService(catalog.Service{
			ID:    generic.ServiceID(s.ID),
			Name:  s.Name,
			Price: generic.RoundMoney(decimal.NewFromFloat(s.Price)),
		})
	}
	for _, s := range c.Staff {
		dir.PutStaff(catalog.Staff{ID: generic.StaffID(s.ID), Name: s.Name})
	}
	return dir
}

// NewLogger builds the zap logger described by Log.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, generic.NewValidationError("log.level", err.Error())
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
