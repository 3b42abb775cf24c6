package cmd

import (
	"context"
	"testing"

	"gambler/lottery-engine/config"
	"gambler/lottery-engine/infrastructure"
	"gambler/lottery-engine/infrastructure/ledger"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLogging(t *testing.T) {
	defer log.SetLevel(log.InfoLevel)
	defer log.SetFormatter(&log.TextFormatter{})

	tests := []struct {
		name        string
		environment string
		level       string
		wantLevel   log.Level
		wantJSON    bool
	}{
		{name: "development debug", environment: "development", level: "debug", wantLevel: log.DebugLevel},
		{name: "production uses json", environment: "production", level: "warn", wantLevel: log.WarnLevel, wantJSON: true},
		{name: "unknown level falls back to info", environment: "test", level: "chatty", wantLevel: log.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewTestConfig()
			cfg.Environment = tt.environment
			cfg.LogLevel = tt.level

			SetupLogging(cfg)

			assert.Equal(t, tt.wantLevel, log.GetLevel())
			_, isJSON := log.StandardLogger().Formatter.(*log.JSONFormatter)
			assert.Equal(t, tt.wantJSON, isJSON)
		})
	}
}

func TestNewLedgerClient(t *testing.T) {
	cfg := config.NewTestConfig()

	client, closeFn, err := newLedgerClient(cfg)
	require.NoError(t, err)
	assert.IsType(t, &ledger.SimulatedLedger{}, client)
	closeFn()

	cfg.LedgerAddr = "localhost:9000"
	client, closeFn, err = newLedgerClient(cfg)
	require.NoError(t, err)
	assert.IsType(t, &ledger.GRPCClient{}, client)
	closeFn()
}

func TestNewEventPublisher_NoServers(t *testing.T) {
	cfg := config.NewTestConfig()
	cfg.NATSServers = "  "

	publisher, closeFn, err := newEventPublisher(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &infrastructure.NoopEventPublisher{}, publisher)
	closeFn()
}
