package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gambler/lottery-engine/application"
	"gambler/lottery-engine/config"
	"gambler/lottery-engine/database"
	"gambler/lottery-engine/domain/entities"
	"gambler/lottery-engine/domain/interfaces"
	"gambler/lottery-engine/domain/services"
	"gambler/lottery-engine/infrastructure"
	"gambler/lottery-engine/infrastructure/ledger"
	"gambler/lottery-engine/infrastructure/observability"
	"gambler/lottery-engine/repository"

	log "github.com/sirupsen/logrus"
)

// SetupLogging configures logrus from the config
func SetupLogging(cfg *config.Config) {
	log.SetOutput(os.Stdout)
	if cfg.IsProduction() {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithField("level", cfg.LogLevel).Warn("Unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

// Run initializes and starts the engine
func Run(ctx context.Context) error {
	cfg := config.Get()
	SetupLogging(cfg)
	log.WithField("environment", cfg.Environment).Info("Starting lottery engine...")

	// Initialize metrics
	if err := observability.InitializeGlobalMetrics(ctx, cfg); err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	metrics := observability.GetMetrics()

	// Initialize database connection
	log.Info("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("Database connection established successfully")

	if err := database.RunMigrationsWithURL(cfg.GetDatabaseURL()); err != nil {
		db.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Initialize ledger client
	ledgerClient, closeLedger, err := newLedgerClient(cfg)
	if err != nil {
		db.Close()
		return err
	}
	instrumentedLedger := ledger.NewInstrumentedClient(ledgerClient, metrics)

	// Initialize event publishing
	publisher, closeNATS, err := newEventPublisher(ctx, cfg, metrics)
	if err != nil {
		closeLedger()
		db.Close()
		return err
	}

	beacon, err := services.NewCommitRevealBeacon(cfg.BeaconSecret)
	if err != nil {
		closeNATS()
		closeLedger()
		db.Close()
		return fmt.Errorf("failed to initialize randomness beacon: %w", err)
	}

	engine := application.NewEngine(cfg, application.EngineDeps{
		Ledger:    instrumentedLedger,
		Snapshots: repository.NewSnapshotRepository(db),
		Random:    beacon,
		Publisher: publisher,
		Metrics:   metrics,
	})

	stopEngine, err := engine.Start(ctx)
	if err != nil {
		closeNATS()
		closeLedger()
		db.Close()
		return err
	}

	log.WithFields(log.Fields{
		"ticket_price":   cfg.TicketPrice,
		"round_duration": cfg.RoundDuration,
		"ledger":         cfg.LedgerAddr,
	}).Info("Lottery engine is running")
	<-ctx.Done()

	log.Info("Shutting down lottery engine...")
	stopEngine()
	closeNATS()
	closeLedger()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := observability.ShutdownGlobalMetrics(shutdownCtx); err != nil {
		log.WithError(err).Warn("Failed to shut down metrics")
	}

	log.Info("Closing database connection...")
	db.Close()
	log.Info("Shutdown completed")
	return nil
}

// newLedgerClient connects to the configured ledger, or starts the simulated one
func newLedgerClient(cfg *config.Config) (interfaces.LedgerClient, func(), error) {
	if cfg.UsesSimulatedLedger() {
		log.Warn("Using simulated in-process ledger")
		return ledger.NewSimulatedLedger(entities.Identity(cfg.CustodyOwner), cfg.TransferFee), func() {}, nil
	}

	client, err := ledger.NewGRPCClient(cfg.LedgerAddr)
	if err != nil {
		return nil, nil, err
	}
	return client, func() {
		if err := client.Close(); err != nil {
			log.WithError(err).Warn("Failed to close ledger connection")
		}
	}, nil
}

// newEventPublisher connects to NATS when servers are configured, otherwise events are dropped
func newEventPublisher(ctx context.Context, cfg *config.Config, recorder infrastructure.PublishRecorder) (interfaces.EventPublisher, func(), error) {
	if strings.TrimSpace(cfg.NATSServers) == "" {
		log.Info("NATS_SERVERS not set, domain events will not be published")
		return infrastructure.NewNoopEventPublisher(), func() {}, nil
	}

	natsClient := infrastructure.NewNATSClient(cfg.NATSServers)
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := natsClient.Connect(connectCtx); err != nil {
		return nil, nil, err
	}

	mapper := infrastructure.NewEventSubjectMapper()
	if err := natsClient.EnsureStream(infrastructure.DomainEventStream, mapper.GetAllSubjects()); err != nil {
		_ = natsClient.Close()
		return nil, nil, err
	}

	return infrastructure.NewNATSEventPublisher(natsClient, mapper, recorder), func() {
		_ = natsClient.Close()
	}, nil
}
