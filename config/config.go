package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gambler/lottery-engine/database"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL  string
	DatabaseName string

	// Lottery configuration
	TicketPrice       uint64        // Stake per entry, in the ledger's smallest unit
	RoundDuration     time.Duration // Time between round open and close
	RoundHistoryLimit int           // Completed rounds retained in memory and checkpoints
	BeaconSecret      []byte        // 32-byte key the round seeds are derived from

	// Authorization
	OperatorIdentity string // The single identity allowed to run operator actions

	// Ledger configuration
	LedgerAddr        string        // gRPC address of the ledger service; "simulated" runs an in-process ledger
	CustodyOwner      string        // Ledger owner of every custodial sub-account and the treasury
	TransferFee       uint64        // Fee attached to ledger transfers
	LedgerCallTimeout time.Duration // Upper bound for a single ledger call

	// Timers
	RoundCheckInterval     time.Duration
	ReconcileInterval      time.Duration
	ConsolidateInterval    time.Duration
	CheckpointInterval     time.Duration
	ReconcileWinCooldown   time.Duration
	SweepConcurrency       int
	SnapshotRetentionCount int

	// NATS configuration
	NATSServers string // NATS server addresses (comma-separated); empty disables event publishing

	// OpenTelemetry configuration
	OTelEnabled              bool
	OTelServiceName          string
	OTelExporterType         string // "console", "otlp" or "none"
	OTelOTLPEndpoint         string
	OTelExportIntervalMillis int

	// Logging
	LogLevel string

	// Environment
	Environment string // "development", "production" or "test"
}

var (
	instance *Config
	once     sync.Once
	mu       sync.Mutex // Protects instance for test setup
)

// Get returns the global configuration instance
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()

	// If instance is already set (e.g., by tests), return it
	if instance != nil {
		return instance
	}

	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			// In test environment, use a default test config instead of panicking
			if os.Getenv("GO_TEST") == "1" || os.Getenv("ENVIRONMENT") == "test" {
				instance = NewTestConfig()
			} else {
				panic(fmt.Sprintf("failed to load config: %v", err))
			}
		}
	})
	return instance
}

// GetDatabaseURL constructs the full database URL by combining base URL and database name
func (c *Config) GetDatabaseURL() string {
	return database.ConstructDatabaseURL(c.DatabaseURL, c.DatabaseName)
}

// UsesSimulatedLedger returns true if the engine should run against the in-process ledger
func (c *Config) UsesSimulatedLedger() bool {
	return c.LedgerAddr == "simulated"
}

// IsProduction returns true when running in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// load loads configuration from environment variables
func load() (*Config, error) {
	config := &Config{
		// Database
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DatabaseName: os.Getenv("DATABASE_NAME"),

		// Lottery defaults: 0.01 token at 8 decimals, five minute rounds
		TicketPrice:       1_000_000,
		RoundDuration:     5 * time.Minute,
		RoundHistoryLimit: 50,

		// Authorization
		OperatorIdentity: os.Getenv("OPERATOR_IDENTITY"),

		// Ledger
		LedgerAddr:        getEnvWithDefault("LEDGER_ADDR", "ledger:9000"),
		CustodyOwner:      os.Getenv("CUSTODY_OWNER"),
		TransferFee:       10,
		LedgerCallTimeout: 30 * time.Second,

		// Timers
		RoundCheckInterval:     10 * time.Second,
		ReconcileInterval:      1 * time.Minute,
		ConsolidateInterval:    5 * time.Minute,
		CheckpointInterval:     1 * time.Minute,
		ReconcileWinCooldown:   30 * time.Second,
		SweepConcurrency:       4,
		SnapshotRetentionCount: 20,

		// NATS
		NATSServers: os.Getenv("NATS_SERVERS"),

		// OpenTelemetry
		OTelEnabled:              os.Getenv("OTEL_ENABLED") == "true",
		OTelServiceName:          getEnvWithDefault("OTEL_SERVICE_NAME", "lottery-engine"),
		OTelExporterType:         getEnvWithDefault("OTEL_EXPORTER_TYPE", "console"),
		OTelOTLPEndpoint:         getEnvWithDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "otel-collector:4317"),
		OTelExportIntervalMillis: 10000,

		// Logging
		LogLevel: getEnvWithDefault("LOG_LEVEL", "info"),

		// Environment
		Environment: os.Getenv("ENVIRONMENT"),
	}

	// Override defaults if environment variables are set
	var err error
	if config.TicketPrice, err = getEnvUint("TICKET_PRICE", config.TicketPrice); err != nil {
		return nil, err
	}
	if config.TransferFee, err = getEnvUint("TRANSFER_FEE", config.TransferFee); err != nil {
		return nil, err
	}
	if config.RoundHistoryLimit, err = getEnvInt("ROUND_HISTORY_LIMIT", config.RoundHistoryLimit); err != nil {
		return nil, err
	}
	if config.SweepConcurrency, err = getEnvInt("SWEEP_CONCURRENCY", config.SweepConcurrency); err != nil {
		return nil, err
	}
	if config.SnapshotRetentionCount, err = getEnvInt("SNAPSHOT_RETENTION_COUNT", config.SnapshotRetentionCount); err != nil {
		return nil, err
	}
	if config.OTelExportIntervalMillis, err = getEnvInt("OTEL_EXPORT_INTERVAL_MILLIS", config.OTelExportIntervalMillis); err != nil {
		return nil, err
	}

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{"ROUND_DURATION", &config.RoundDuration},
		{"LEDGER_CALL_TIMEOUT", &config.LedgerCallTimeout},
		{"ROUND_CHECK_INTERVAL", &config.RoundCheckInterval},
		{"RECONCILE_INTERVAL", &config.ReconcileInterval},
		{"CONSOLIDATE_INTERVAL", &config.ConsolidateInterval},
		{"CHECKPOINT_INTERVAL", &config.CheckpointInterval},
		{"RECONCILE_WIN_COOLDOWN", &config.ReconcileWinCooldown},
	}
	for _, d := range durations {
		if *d.target, err = getEnvDuration(d.key, *d.target); err != nil {
			return nil, err
		}
	}

	if secret := os.Getenv("BEACON_SECRET"); secret != "" {
		key, err := hex.DecodeString(secret)
		if err != nil || len(key) != 32 {
			return nil, fmt.Errorf("BEACON_SECRET must be 64 hex characters")
		}
		config.BeaconSecret = key
	}

	// Set default environment if not specified
	if config.Environment == "" {
		config.Environment = "development"
	}

	if config.Environment != "test" {
		if err := config.Validate(); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// Validate checks the required configuration
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	// If DatabaseName is provided, ensure it's not empty
	if c.DatabaseName != "" && strings.TrimSpace(c.DatabaseName) == "" {
		return fmt.Errorf("DATABASE_NAME cannot be empty when provided")
	}
	if c.OperatorIdentity == "" {
		return fmt.Errorf("OPERATOR_IDENTITY is required")
	}
	if c.CustodyOwner == "" {
		return fmt.Errorf("CUSTODY_OWNER is required")
	}
	if c.TicketPrice == 0 {
		return fmt.Errorf("TICKET_PRICE must be positive")
	}
	if c.RoundDuration <= 0 {
		return fmt.Errorf("ROUND_DURATION must be positive")
	}
	if c.SweepConcurrency <= 0 {
		return fmt.Errorf("SWEEP_CONCURRENCY must be positive")
	}
	if c.IsProduction() && len(c.BeaconSecret) == 0 {
		return fmt.Errorf("BEACON_SECRET is required in production")
	}
	return nil
}

// getEnvWithDefault returns the environment variable value or a default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvUint(key string, defaultValue uint64) (uint64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

// Test helpers - only use in tests

// SetTestConfig overrides the global config instance for testing
// This should only be called from test files
func SetTestConfig(testConfig *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = testConfig
}

// ResetConfig resets the global config instance and sync.Once for testing
// This should only be called from test files
func ResetConfig() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// NewTestConfig creates a minimal config suitable for unit tests
func NewTestConfig() *Config {
	return &Config{
		Environment:            "test",
		TicketPrice:            1,
		RoundDuration:          5 * time.Minute,
		RoundHistoryLimit:      10,
		BeaconSecret:           make([]byte, 32),
		OperatorIdentity:       "opera-torid",
		LedgerAddr:             "simulated",
		CustodyOwner:           "custo-dyaaa-cai",
		TransferFee:            10,
		LedgerCallTimeout:      5 * time.Second,
		RoundCheckInterval:     time.Second,
		ReconcileInterval:      time.Second,
		ConsolidateInterval:    time.Second,
		CheckpointInterval:     time.Second,
		ReconcileWinCooldown:   30 * time.Second,
		SweepConcurrency:       2,
		SnapshotRetentionCount: 5,
		OTelExporterType:       "none",
		LogLevel:               "debug",
	}
}
