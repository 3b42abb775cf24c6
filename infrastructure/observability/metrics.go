package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gambler/lottery-engine/config"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
)

// MetricsProvider manages OpenTelemetry metrics for the lottery engine
type MetricsProvider struct {
	config        *config.Config
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	initialized   bool
	mu            sync.RWMutex

	// Metric instruments
	stakesCounter          metric.Int64Counter
	drawsCounter           metric.Int64Counter
	prizePoolCounter       metric.Int64Counter
	reconciliationsCounter metric.Int64Counter
	depositsCounter        metric.Int64Counter
	sweepsCounter          metric.Int64Counter
	sweptCounter           metric.Int64Counter
	withdrawalsCounter     metric.Int64Counter
	withdrawnCounter       metric.Int64Counter
	ledgerCallsCounter     metric.Int64Counter
	ledgerCallDurationHist metric.Float64Histogram
	natsPublishedCounter   metric.Int64Counter
}

// NewMetricsProvider creates a new metrics provider
func NewMetricsProvider(cfg *config.Config) *MetricsProvider {
	return &MetricsProvider{
		config: cfg,
	}
}

// Initialize sets up the OpenTelemetry metrics provider
func (mp *MetricsProvider) Initialize(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.initialized {
		log.Info("Metrics provider already initialized")
		return nil
	}

	if !mp.config.OTelEnabled {
		log.Info("OpenTelemetry metrics disabled")
		mp.initialized = true
		return nil
	}

	// Create appropriate exporter based on config
	var (
		exporter sdkmetric.Exporter
		err      error
	)
	switch mp.config.OTelExporterType {
	case "console":
		exporter, err = stdoutmetric.New()
		if err != nil {
			return fmt.Errorf("failed to create console exporter: %w", err)
		}
		log.Info("Using console metric exporter")

	case "otlp":
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		exporter, err = otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(mp.config.OTelOTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		log.WithField("endpoint", mp.config.OTelOTLPEndpoint).Info("Using OTLP metric exporter")

	case "none":
		log.Info("Metrics export disabled (exporter_type='none')")
		mp.initialized = true
		return nil

	default:
		return fmt.Errorf("unknown exporter type: %s", mp.config.OTelExporterType)
	}

	reader := sdkmetric.NewPeriodicReader(
		exporter,
		sdkmetric.WithInterval(time.Duration(mp.config.OTelExportIntervalMillis)*time.Millisecond),
	)
	if err := mp.initializeWithReader(reader); err != nil {
		return err
	}

	// Set as global meter provider
	otel.SetMeterProvider(mp.meterProvider)
	log.Info("Metrics provider initialized successfully")
	return nil
}

// initializeWithReader builds the meter provider around reader. Callers hold mp.mu.
func (mp *MetricsProvider) initializeWithReader(reader sdkmetric.Reader) error {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(mp.config.OTelServiceName),
			attribute.String("environment", mp.config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	mp.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	mp.meter = mp.meterProvider.Meter("lottery-engine")

	if err := mp.createInstruments(); err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	mp.initialized = true
	return nil
}

// createInstruments creates all metric instruments
func (mp *MetricsProvider) createInstruments() error {
	counters := []struct {
		target      *metric.Int64Counter
		name        string
		description string
		unit        string
	}{
		{&mp.stakesCounter, StakesTotal, "Total number of stakes placed", "1"},
		{&mp.drawsCounter, DrawsTotal, "Total number of rounds drawn", "1"},
		{&mp.prizePoolCounter, PrizePoolAwarded, "Prize pool paid to round winners", "{unit}"},
		{&mp.reconciliationsCounter, ReconciliationsTotal, "Total number of deposit reconciliations", "1"},
		{&mp.depositsCounter, DepositsCredited, "Deposits credited by reconciliation", "{unit}"},
		{&mp.sweepsCounter, SweepsTotal, "Total number of custody sweeps", "1"},
		{&mp.sweptCounter, AmountSwept, "Amount moved into the treasury", "{unit}"},
		{&mp.withdrawalsCounter, WithdrawalsTotal, "Total number of withdrawals", "1"},
		{&mp.withdrawnCounter, AmountWithdrawn, "Amount paid out of the treasury", "{unit}"},
		{&mp.ledgerCallsCounter, LedgerCallsTotal, "Total number of ledger calls", "1"},
		{&mp.natsPublishedCounter, NATSMessagesPublishedTotal, "Total number of NATS messages published", "1"},
	}

	for _, c := range counters {
		counter, err := mp.meter.Int64Counter(
			c.name,
			metric.WithDescription(c.description),
			metric.WithUnit(c.unit),
		)
		if err != nil {
			return fmt.Errorf("failed to create counter %s: %w", c.name, err)
		}
		*c.target = counter
	}

	var err error
	mp.ledgerCallDurationHist, err = mp.meter.Float64Histogram(
		LedgerCallDuration,
		metric.WithDescription("Duration of ledger calls in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return fmt.Errorf("failed to create ledger call duration histogram: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the metrics provider
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.meterProvider != nil {
		return mp.meterProvider.Shutdown(ctx)
	}
	return nil
}

// RecordStake records an accepted stake
func (mp *MetricsProvider) RecordStake() {
	if !mp.isEnabled() {
		return
	}
	mp.stakesCounter.Add(context.Background(), 1)
}

// RecordDraw records a completed round
func (mp *MetricsProvider) RecordDraw(prizePool uint64, hadWinner bool) {
	if !mp.isEnabled() {
		return
	}
	ctx := context.Background()
	mp.drawsCounter.Add(ctx, 1, metric.WithAttributes(attribute.Bool(LabelHasWinner, hadWinner)))
	if prizePool > 0 {
		mp.prizePoolCounter.Add(ctx, clampInt64(prizePool))
	}
}

// RecordReconciliation records one reconciliation outcome
func (mp *MetricsProvider) RecordReconciliation(outcome string, credited uint64) {
	if !mp.isEnabled() {
		return
	}
	ctx := context.Background()
	mp.reconciliationsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String(LabelOutcome, outcome)))
	if credited > 0 {
		mp.depositsCounter.Add(ctx, clampInt64(credited))
	}
}

// RecordSweep records one consolidation outcome
func (mp *MetricsProvider) RecordSweep(outcome string, amount uint64) {
	if !mp.isEnabled() {
		return
	}
	ctx := context.Background()
	mp.sweepsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String(LabelOutcome, outcome)))
	if amount > 0 {
		mp.sweptCounter.Add(ctx, clampInt64(amount))
	}
}

// RecordWithdrawal records one withdrawal outcome
func (mp *MetricsProvider) RecordWithdrawal(outcome string, amount uint64) {
	if !mp.isEnabled() {
		return
	}
	ctx := context.Background()
	mp.withdrawalsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String(LabelOutcome, outcome)))
	if amount > 0 {
		mp.withdrawnCounter.Add(ctx, clampInt64(amount))
	}
}

// RecordLedgerCall records a ledger call and its latency
func (mp *MetricsProvider) RecordLedgerCall(method, outcome string, duration time.Duration) {
	if !mp.isEnabled() {
		return
	}
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String(LabelMethod, method),
		attribute.String(LabelOutcome, outcome),
	)
	mp.ledgerCallsCounter.Add(ctx, 1, attrs)
	mp.ledgerCallDurationHist.Record(ctx, duration.Seconds(), attrs)
}

// RecordNATSMessagePublished records an event published to NATS
func (mp *MetricsProvider) RecordNATSMessagePublished(eventType string) {
	if !mp.isEnabled() {
		return
	}
	mp.natsPublishedCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String(LabelEventType, eventType)),
	)
}

// isEnabled checks if metrics are initialized with an active meter
func (mp *MetricsProvider) isEnabled() bool {
	if mp == nil {
		return false
	}
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.initialized && mp.meter != nil
}

func clampInt64(v uint64) int64 {
	const maxInt64 = 1<<63 - 1
	if v > maxInt64 {
		return maxInt64
	}
	return int64(v)
}

// Global metrics instance
var (
	globalMetrics *MetricsProvider
	globalMu      sync.Mutex
)

// InitializeGlobalMetrics initializes the global metrics provider
func InitializeGlobalMetrics(ctx context.Context, cfg *config.Config) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics != nil {
		return nil
	}

	globalMetrics = NewMetricsProvider(cfg)
	return globalMetrics.Initialize(ctx)
}

// GetMetrics returns the global metrics provider
func GetMetrics() *MetricsProvider {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalMetrics
}

// ShutdownGlobalMetrics shuts down the global metrics provider
func ShutdownGlobalMetrics(ctx context.Context) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics != nil {
		err := globalMetrics.Shutdown(ctx)
		globalMetrics = nil
		return err
	}
	return nil
}
