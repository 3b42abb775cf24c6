package observability

// Metric name prefixes
const (
	MetricPrefix = "lottery_engine"
)

// Metric names
const (
	// Round metrics
	StakesTotal      = MetricPrefix + ".rounds.stakes_total"
	DrawsTotal       = MetricPrefix + ".rounds.draws_total"
	PrizePoolAwarded = MetricPrefix + ".rounds.prize_pool_awarded"

	// Custody metrics
	ReconciliationsTotal = MetricPrefix + ".custody.reconciliations_total"
	DepositsCredited     = MetricPrefix + ".custody.deposits_credited"
	SweepsTotal          = MetricPrefix + ".custody.sweeps_total"
	AmountSwept          = MetricPrefix + ".custody.amount_swept"
	WithdrawalsTotal     = MetricPrefix + ".custody.withdrawals_total"
	AmountWithdrawn      = MetricPrefix + ".custody.amount_withdrawn"

	// Ledger metrics
	LedgerCallsTotal   = MetricPrefix + ".ledger.calls_total"
	LedgerCallDuration = MetricPrefix + ".ledger.call_duration"

	// NATS metrics
	NATSMessagesPublishedTotal = MetricPrefix + ".nats.messages_published_total"
)

// Label keys
const (
	LabelOutcome   = "outcome"
	LabelMethod    = "method"
	LabelEventType = "event_type"
	LabelHasWinner = "has_winner"
)
