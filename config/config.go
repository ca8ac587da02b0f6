// Package config loads the sales engine configuration from a YAML file,
// with defaults for every field and SALES_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/anyx/sales-engine/sales"
)

// Database drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// Config represents the contents of the YAML configuration file.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Retry    RetryConfig    `yaml:"retry"`
	Cache    CacheConfig    `yaml:"cache"`
	Log      LogConfig      `yaml:"log"`
	Payment  PaymentConfig  `yaml:"payment"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// RetryConfig bounds storage calls. Attempts includes the first call.
type RetryConfig struct {
	Attempts int           `yaml:"attempts"`
	Backoff  time.Duration `yaml:"backoff"`
}

type CacheConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	Backend         string        `yaml:"backend"`
	RedisAddr       string        `yaml:"redis_addr"`
	RedisPrefix     string        `yaml:"redis_prefix"`
	JanitorInterval time.Duration `yaml:"janitor_interval"`
	Coalesce        bool          `yaml:"coalesce"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// PaymentConfig mirrors the payment.rate.<METHOD> layout:
//
//	payment:
//	  rate:
//	    VISA:
//	      modifier: {min: 0.95, max: 1}
//	      points: 0.03
type PaymentConfig struct {
	Rate map[string]MethodRate `yaml:"rate"`
}

type MethodRate struct {
	Modifier ModifierRange `yaml:"modifier"`
	Points   Decimal       `yaml:"points"`
}

type ModifierRange struct {
	Min Decimal `yaml:"min"`
	Max Decimal `yaml:"max"`
}

// Decimal reads a YAML scalar (0.95 or "0.95") without a float round trip.
type Decimal struct {
	decimal.Decimal
}

func (d *Decimal) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a decimal, got %s", value.Line, nodeKind(value.Kind))
	}
	v, err := decimal.NewFromString(strings.TrimSpace(value.Value))
	if err != nil {
		return fmt.Errorf("line %d: invalid decimal %q", value.Line, value.Value)
	}
	d.Decimal = v
	return nil
}

func (d Decimal) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Dec is shorthand for building a Decimal from a literal.
func Dec(s string) Decimal {
	return Decimal{decimal.RequireFromString(s)}
}

// Default returns a config usable without any file.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8080},
		Database: DatabaseConfig{Driver: DriverSQLite, Path: "sales.db"},
		Retry:    RetryConfig{Attempts: 3, Backoff: 100 * time.Millisecond},
		Cache: CacheConfig{
			TTL:             sales.DefaultCacheTTL,
			Backend:         CacheMemory,
			RedisPrefix:     "anyx:",
			JanitorInterval: time.Minute,
		},
		Log:     LogConfig{Level: "info"},
		Payment: PaymentConfig{Rate: defaultRates()},
	}
}

func defaultRates() map[string]MethodRate {
	rate := func(lo, hi, points string) MethodRate {
		return MethodRate{Modifier: ModifierRange{Min: Dec(lo), Max: Dec(hi)}, Points: Dec(points)}
	}
	return map[string]MethodRate{
		"CASH":             rate("0.9", "1", "0.05"),
		"CASH_ON_DELIVERY": rate("1", "1.02", "0.05"),
		"VISA":             rate("0.95", "1", "0.03"),
		"MASTERCARD":       rate("0.95", "1", "0.03"),
		"AMEX":             rate("0.98", "1.01", "0.02"),
		"JCB":              rate("0.95", "1", "0.05"),
	}
}

// Load reads the file at path over the defaults, then applies environment
// overrides. An empty path means defaults plus environment only. A rate
// section in the file replaces the default rate table entirely.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		cfg.Payment.Rate = nil
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
		if len(cfg.Payment.Rate) == 0 {
			cfg.Payment.Rate = defaultRates()
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("SALES_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SALES_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("SALES_DB_PATH"); ok {
		c.Database.Path = v
	}
	if v, ok := lookup("SALES_REDIS_ADDR"); ok {
		c.Cache.RedisAddr = v
		if v != "" {
			c.Cache.Backend = CacheRedis
		}
	}
	if v, ok := lookup("SALES_LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	return nil
}

// Validate checks everything except the rate table, which RateTable checks.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for sqlite"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("database.driver %q, expected sqlite or memory", c.Database.Driver))
	}
	if c.Retry.Attempts < 1 {
		errs = append(errs, fmt.Errorf("retry.attempts must be at least 1, got %d", c.Retry.Attempts))
	}
	if c.Retry.Backoff < 0 {
		errs = append(errs, errors.New("retry.backoff can't be negative"))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, errors.New("cache.ttl can't be negative"))
	}
	switch c.Cache.Backend {
	case CacheMemory, CacheNone:
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			errs = append(errs, errors.New("cache.redis_addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q, expected memory, redis or none", c.Cache.Backend))
	}
	return errors.Join(errs...)
}

// RateTable builds the validated rate table. Any invalid entry, including an
// unknown method name, fails the whole table.
func (c *Config) RateTable() (*sales.RateTable, error) {
	entries := make(map[sales.PaymentMethod]sales.RateEntry, len(c.Payment.Rate))
	for name, r := range c.Payment.Rate {
		method, ok := sales.ParsePaymentMethod(name)
		if !ok {
			return nil, &sales.ConfigError{Method: sales.PaymentMethod(name), Reason: "unknown payment method"}
		}
		entries[method] = sales.RateEntry{
			PointRate:   r.Points.Decimal,
			ModifierMin: r.Modifier.Min.Decimal,
			ModifierMax: r.Modifier.Max.Decimal,
		}
	}
	return sales.NewRateTable(entries)
}

func (c *Config) RetryPolicy() sales.RetryPolicy {
	return sales.RetryPolicy{Attempts: c.Retry.Attempts, Backoff: c.Retry.Backoff}
}

func nodeKind(k yaml.Kind) string {
	switch k {
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.AliasNode:
		return "alias"
	default:
		return "document"
	}
}
