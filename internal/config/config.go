// Package config loads the process configuration from WALLETSYNC_* environment
// variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"github.com/gabapcia/walletsync/internal/pkg/validator"
)

// Prefix namespaces every variable, e.g. WALLETSYNC_RPC_ENDPOINT.
const Prefix = "WALLETSYNC"

type Telemetry struct {
	Enabled     bool    `envconfig:"ENABLED" default:"false"`
	ServiceName string  `envconfig:"SERVICE_NAME" default:"walletsync" validate:"required"`
	SampleRatio float64 `envconfig:"SAMPLE_RATIO" default:"1" validate:"gte=0,lte=1"`
}

type RPC struct {
	Endpoint       string        `envconfig:"ENDPOINT" default:"https://api.mainnet-beta.solana.com" validate:"required,url"`
	Commitment     string        `envconfig:"COMMITMENT" default:"confirmed" validate:"oneof=processed confirmed finalized"`
	Timeout        time.Duration `envconfig:"TIMEOUT" default:"20s" validate:"gt=0"`
	RetryAttempts  uint          `envconfig:"RETRY_ATTEMPTS" default:"4" validate:"gte=1"`
	RetryDelay     time.Duration `envconfig:"RETRY_DELAY" default:"500ms"`
	RetryMaxDelay  time.Duration `envconfig:"RETRY_MAX_DELAY" default:"8s"`
	RequestsPerWin int           `envconfig:"REQUESTS_PER_WINDOW" default:"40" validate:"gte=0"`
	Window         time.Duration `envconfig:"WINDOW" default:"1s"`
}

type Pricing struct {
	BaseURL        string        `envconfig:"BASE_URL" default:"https://public-api.birdeye.so" validate:"required,url"`
	APIKey         string        `envconfig:"API_KEY"`
	RequestsPerWin int           `envconfig:"REQUESTS_PER_WINDOW" default:"15" validate:"gte=0"`
	Window         time.Duration `envconfig:"WINDOW" default:"1s"`
	PriceBucket    time.Duration `envconfig:"PRICE_BUCKET" default:"1m" validate:"gt=0"`
	LookupWindow   time.Duration `envconfig:"LOOKUP_WINDOW" default:"15m" validate:"gt=0"`
}

type Postgres struct {
	// DSN selects the PostgreSQL store; empty keeps trades in memory.
	DSN string `envconfig:"DSN"`
}

type Redis struct {
	// Addr enables the shared scan guard, asset cache and wallet registry.
	Addr     string        `envconfig:"ADDR"`
	Username string        `envconfig:"USERNAME"`
	Password string        `envconfig:"PASSWORD"`
	DB       int           `envconfig:"DB" default:"0" validate:"gte=0"`
	LockTTL  time.Duration `envconfig:"LOCK_TTL" default:"30m" validate:"gt=0"`
}

type Scan struct {
	PageSize           int           `envconfig:"PAGE_SIZE" default:"1000" validate:"gte=1,lte=1000"`
	MaxPages           int           `envconfig:"MAX_PAGES" default:"0" validate:"gte=0"`
	FetchWorkers       int           `envconfig:"FETCH_WORKERS" default:"8" validate:"gte=1"`
	AccountWorkers     int           `envconfig:"ACCOUNT_WORKERS" default:"4" validate:"gte=1"`
	DustThreshold      string        `envconfig:"DUST_THRESHOLD" default:"0.000001" validate:"numeric"`
	MinNativeMovement  string        `envconfig:"MIN_NATIVE_MOVEMENT" default:"0.001" validate:"numeric"`
	HistoricalLookback time.Duration `envconfig:"HISTORICAL_LOOKBACK" default:"0" validate:"gte=0"`
	PersistBatchSize   int           `envconfig:"PERSIST_BATCH_SIZE" default:"250" validate:"gte=1"`
}

type Scheduler struct {
	Spec        string `envconfig:"SPEC" default:"@every 5m" validate:"required"`
	Concurrency int    `envconfig:"CONCURRENCY" default:"4" validate:"gte=1"`
	RunOnStart  bool   `envconfig:"RUN_ON_START" default:"true"`
}

// Config is the whole process configuration.
type Config struct {
	LogLevel  string    `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Telemetry Telemetry `envconfig:"TELEMETRY"`
	RPC       RPC       `envconfig:"RPC"`
	Pricing   Pricing   `envconfig:"PRICING"`
	Postgres  Postgres  `envconfig:"POSTGRES"`
	Redis     Redis     `envconfig:"REDIS"`
	Scan      Scan      `envconfig:"SCAN"`
	Scheduler Scheduler `envconfig:"SCHEDULER"`
}

// Load reads and validates the configuration.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if err := validator.Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Dust returns the dust threshold as a decimal.
func (s Scan) Dust() decimal.Decimal {
	return decimal.RequireFromString(s.DustThreshold)
}

// MinNative returns the minimum native movement as a decimal.
func (s Scan) MinNative() decimal.Decimal {
	return decimal.RequireFromString(s.MinNativeMovement)
}
