package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Environment string         `json:"environment"`
	Database    DatabaseConfig `json:"database"`
	Ledger      LedgerConfig   `json:"ledger"`
	Stripe      StripeConfig   `json:"stripe"`
	Xendit      XenditConfig   `json:"xendit"`
	Server      ServerConfig   `json:"server"`
}

type DatabaseConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	User         string        `json:"user"`
	Password     string        `json:"password"`
	DBName       string        `json:"dbname"`
	SSLMode      string        `json:"sslmode"`
	MaxOpenConns int           `json:"max_open_conns"`
	MaxIdleConns int           `json:"max_idle_conns"`
	MaxLifetime  time.Duration `json:"max_lifetime"`
	MaxIdleTime  time.Duration `json:"max_idle_time"`
}

// LedgerConfig drives the submission engine: which rippled endpoints
// to talk to, how hard to retry, and how long leases on in-flight
// purchases live.
type LedgerConfig struct {
	Endpoints               []string      `json:"endpoints"`
	FallbackEndpoints       []string      `json:"fallback_endpoints"`
	Network                 string        `json:"network"`
	IssuerAccount           string        `json:"issuer_account"`
	SigningEndpoint         string        `json:"signing_endpoint"`
	SigningSecret           string        `json:"-"`
	PollInterval            time.Duration `json:"poll_interval"`
	SubmitTimeout           time.Duration `json:"submit_timeout"`
	MaxRetries              int           `json:"max_retries"`
	InitialBackoff          time.Duration `json:"initial_backoff"`
	MaxBackoff              time.Duration `json:"max_backoff"`
	BreakerFailureThreshold int           `json:"breaker_failure_threshold"`
	BreakerTimeout          time.Duration `json:"breaker_timeout"`
	LeaseTTL                time.Duration `json:"lease_ttl"`
	HealthCheckInterval     time.Duration `json:"health_check_interval"`
}

type StripeConfig struct {
	Secret string `json:"secret"`
	Public string `json:"public"`
}

type XenditConfig struct {
	Secret string `json:"secret"`
	Public string `json:"public"`
}

type ServerConfig struct {
	Port         string        `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

func LoadConfig() (*Config, error) {
	config := &Config{}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	config.Environment = env

	configDir, err := filepath.Abs("config")
	if err != nil {
		return nil, err
	}

	configPath := filepath.Join(configDir, "config.json")

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %v", err)
		}

		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %v", err)
		}
	}

	config.loadFromEnv()

	config.setEnvironmentDefaults()

	return config, nil
}

func (c *Config) loadFromEnv() {
	if host := os.Getenv("DB_HOST"); host != "" {
		c.Database.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Database.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		c.Database.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		c.Database.Password = password
	}
	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		c.Database.DBName = dbname
	}
	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		c.Database.SSLMode = sslmode
	}

	if endpoints := os.Getenv("LEDGER_ENDPOINTS"); endpoints != "" {
		c.Ledger.Endpoints = splitList(endpoints)
	}
	if fallbacks := os.Getenv("LEDGER_FALLBACK_ENDPOINTS"); fallbacks != "" {
		c.Ledger.FallbackEndpoints = splitList(fallbacks)
	}
	if network := os.Getenv("LEDGER_NETWORK"); network != "" {
		c.Ledger.Network = network
	}
	if issuer := os.Getenv("LEDGER_ISSUER_ACCOUNT"); issuer != "" {
		c.Ledger.IssuerAccount = issuer
	}
	if signEndpoint := os.Getenv("LEDGER_SIGNING_ENDPOINT"); signEndpoint != "" {
		c.Ledger.SigningEndpoint = signEndpoint
	}
	if signSecret := os.Getenv("LEDGER_SIGNING_SECRET"); signSecret != "" {
		c.Ledger.SigningSecret = signSecret
	}

	if stripeSecret := os.Getenv("STRIPE_SECRET"); stripeSecret != "" {
		c.Stripe.Secret = stripeSecret
	}
	if stripePublic := os.Getenv("STRIPE_PUBLIC"); stripePublic != "" {
		c.Stripe.Public = stripePublic
	}

	if xenditSecret := os.Getenv("XENDIT_SECRET"); xenditSecret != "" {
		c.Xendit.Secret = xenditSecret
	}
	if xenditPublic := os.Getenv("XENDIT_PUBLIC"); xenditPublic != "" {
		c.Xendit.Public = xenditPublic
	}

	if serverPort := os.Getenv("SERVER_PORT"); serverPort != "" {
		c.Server.Port = serverPort
	}
}

func (c *Config) setEnvironmentDefaults() {
	switch c.Environment {
	case "production":
		c.setProductionDefaults()
	default: // development, staging
		c.setDevelopmentDefaults()
	}
	c.setLedgerDefaults()
}

func (c *Config) setDevelopmentDefaults() {
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 100
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 10
	}
	if len(c.Ledger.Endpoints) == 0 {
		c.Ledger.Endpoints = []string{"https://s.altnet.rippletest.net:51234"}
	}
	if c.Ledger.Network == "" {
		c.Ledger.Network = "testnet"
	}
}

func (c *Config) setProductionDefaults() {
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 500
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 50
	}
	if c.Database.MaxLifetime == 0 {
		c.Database.MaxLifetime = time.Hour
	}
	if c.Database.MaxIdleTime == 0 {
		c.Database.MaxIdleTime = 10 * time.Minute
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Ledger.Network == "" {
		c.Ledger.Network = "mainnet"
	}
}

func (c *Config) setLedgerDefaults() {
	if c.Ledger.PollInterval == 0 {
		c.Ledger.PollInterval = 2 * time.Second
	}
	if c.Ledger.SubmitTimeout == 0 {
		c.Ledger.SubmitTimeout = 2 * time.Minute
	}
	if c.Ledger.MaxRetries == 0 {
		c.Ledger.MaxRetries = 5
	}
	if c.Ledger.InitialBackoff == 0 {
		c.Ledger.InitialBackoff = 500 * time.Millisecond
	}
	if c.Ledger.MaxBackoff == 0 {
		c.Ledger.MaxBackoff = 15 * time.Second
	}
	if c.Ledger.BreakerFailureThreshold == 0 {
		c.Ledger.BreakerFailureThreshold = 5
	}
	if c.Ledger.BreakerTimeout == 0 {
		c.Ledger.BreakerTimeout = 30 * time.Second
	}
	if c.Ledger.LeaseTTL == 0 {
		c.Ledger.LeaseTTL = 30 * time.Second
	}
	if c.Ledger.HealthCheckInterval == 0 {
		c.Ledger.HealthCheckInterval = 15 * time.Second
	}
	if c.Ledger.SigningEndpoint == "" && len(c.Ledger.Endpoints) > 0 {
		c.Ledger.SigningEndpoint = c.Ledger.Endpoints[0]
	}
}

func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Port == 0 {
		return fmt.Errorf("database port is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("database name is required")
	}
	if len(c.Ledger.Endpoints) == 0 {
		return fmt.Errorf("at least one ledger endpoint is required")
	}
	if c.Ledger.IssuerAccount == "" {
		return fmt.Errorf("ledger issuer account is required")
	}
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	return nil
}

func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
