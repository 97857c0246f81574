package budget

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BudgetPeriod represents the time period for budget tracking
type BudgetPeriod string

const (
	PeriodDaily   BudgetPeriod = "daily"
	PeriodMonthly BudgetPeriod = "monthly"
)

// DefaultAllowance is the daily allowance for tenants without an override.
const DefaultAllowance = 100.0

// Record is one tenant's spend in the current period.
type Record struct {
	Usage     float64
	Reserved  float64
	Allowance float64
	PeriodKey string
}

// CheckResult represents the result of a budget check
type CheckResult struct {
	Allowed         bool
	Usage           float64
	Reserved        float64
	Allowance       float64
	Requested       float64
	ViolationReason string
}

// UsageSummary is a read-only view of a tenant's ledger record
type UsageSummary struct {
	TenantID   string  `json:"tenant_id"`
	Allowance  float64 `json:"daily_budget"`
	Usage      float64 `json:"current_usage"`
	Reserved   float64 `json:"reserved"`
	Remaining  float64 `json:"remaining_budget"`
	Percentage float64 `json:"usage_percentage"`
	PeriodKey  string  `json:"period"`
}

// Ledger tracks per-tenant monetary usage against a daily allowance.
// Records are created lazily and reset when the UTC day changes.
type Ledger struct {
	mu               sync.Mutex
	records          map[string]*Record
	allowances       map[string]float64
	defaultAllowance float64
	now              func() time.Time
	logger           *zap.Logger
}

// Option configures a Ledger
type Option func(*Ledger)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// NewLedger creates a ledger whose tenants start with defaultAllowance
func NewLedger(defaultAllowance float64, logger *zap.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		records:          make(map[string]*Record),
		allowances:       make(map[string]float64),
		defaultAllowance: defaultAllowance,
		now:              time.Now,
		logger:           logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// record returns the tenant's record for the current period. Caller holds mu.
func (l *Ledger) record(tenant string) *Record {
	key := getPeriodKey(l.now(), PeriodDaily)
	rec, ok := l.records[tenant]
	if !ok {
		rec = &Record{Allowance: l.allowanceFor(tenant), PeriodKey: key}
		l.records[tenant] = rec
		return rec
	}
	if rec.PeriodKey != key {
		l.logger.Debug("budget period rolled over",
			zap.String("tenant_id", tenant),
			zap.String("previous_period", rec.PeriodKey),
			zap.Float64("previous_usage", rec.Usage))
		rec.Usage = 0
		rec.Reserved = 0
		rec.PeriodKey = key
	}
	return rec
}

// snapshot returns the tenant's current-period figures without creating or
// rolling over a record. Caller holds mu.
func (l *Ledger) snapshot(tenant string) Record {
	key := getPeriodKey(l.now(), PeriodDaily)
	if rec, ok := l.records[tenant]; ok && rec.PeriodKey == key {
		return *rec
	}
	return Record{Allowance: l.allowanceFor(tenant), PeriodKey: key}
}

func (l *Ledger) allowanceFor(tenant string) float64 {
	if a, ok := l.allowances[tenant]; ok {
		return a
	}
	return l.defaultAllowance
}

// SetAllowance overrides the daily allowance of one tenant
func (l *Ledger) SetAllowance(tenant string, allowance float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.allowances[tenant] = allowance
	if rec, ok := l.records[tenant]; ok {
		rec.Allowance = allowance
	}
}

// CheckBudget reports whether usage plus in-flight reservations plus cost fits the allowance.
func (l *Ledger) CheckBudget(tenant string, cost float64) bool {
	return l.Check(tenant, cost).Allowed
}

// Check is CheckBudget with the numbers behind the decision
func (l *Ledger) Check(tenant string, cost float64) *CheckResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.check(l.record(tenant), cost)
}

func (l *Ledger) check(rec *Record, cost float64) *CheckResult {
	res := &CheckResult{
		Allowed:   cost >= 0 && rec.Usage+rec.Reserved+cost <= rec.Allowance,
		Usage:     rec.Usage,
		Reserved:  rec.Reserved,
		Allowance: rec.Allowance,
		Requested: cost,
	}
	if cost < 0 {
		res.ViolationReason = fmt.Sprintf("negative cost %.6f", cost)
	} else if !res.Allowed {
		res.ViolationReason = fmt.Sprintf("would exceed daily budget of %.2f (current: %.6f, reserved: %.6f, request: %.6f)",
			rec.Allowance, rec.Usage, rec.Reserved, cost)
	}
	return res
}

// UpdateUsage adds cost to the tenant's usage. Negative costs are ignored.
func (l *Ledger) UpdateUsage(tenant string, cost float64) {
	if cost < 0 {
		l.logger.Warn("negative usage ignored",
			zap.String("tenant_id", tenant),
			zap.Float64("cost", cost))
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.record(tenant).Usage += cost
}

// Reservation holds budget between admission and the provider call's outcome.
type Reservation struct {
	ledger    *Ledger
	tenant    string
	amount    float64
	periodKey string
	done      bool
}

// Amount returns the reserved cost
func (r *Reservation) Amount() float64 { return r.amount }

// Reserve checks the budget and, when it fits, holds cost until Commit or Release.
// Check and hold happen under one lock, so concurrent reservations cannot
// jointly overshoot the allowance.
func (l *Ledger) Reserve(tenant string, cost float64) (*Reservation, *CheckResult) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := l.record(tenant)
	res := l.check(rec, cost)
	if !res.Allowed {
		return nil, res
	}
	rec.Reserved += cost
	return &Reservation{ledger: l, tenant: tenant, amount: cost, periodKey: rec.PeriodKey}, res
}

// Commit converts the reservation into usage of actual; a negative actual
// records nothing. Calls after the first Commit or Release are ignored.
func (r *Reservation) Commit(actual float64) {
	r.settle(actual, true)
}

// Release returns the reservation without recording usage
func (r *Reservation) Release() {
	r.settle(0, false)
}

func (r *Reservation) settle(actual float64, commit bool) {
	l := r.ledger
	l.mu.Lock()
	defer l.mu.Unlock()

	if r.done {
		return
	}
	r.done = true

	rec := l.record(r.tenant)
	// a rollover already dropped reservations from the old period
	if rec.PeriodKey == r.periodKey {
		rec.Reserved -= r.amount
		if rec.Reserved < 0 {
			rec.Reserved = 0
		}
	}
	if commit && actual > 0 {
		rec.Usage += actual
	}
}

// Remaining returns allowance minus usage; it goes negative once usage overshoots.
func (l *Ledger) Remaining(tenant string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := l.snapshot(tenant)
	return rec.Allowance - rec.Usage
}

// UsageSummary returns the tenant's allowance, usage, remaining and percentage used
func (l *Ledger) UsageSummary(tenant string) UsageSummary {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := l.snapshot(tenant)
	summary := UsageSummary{
		TenantID:  tenant,
		Allowance: rec.Allowance,
		Usage:     rec.Usage,
		Reserved:  rec.Reserved,
		Remaining: rec.Allowance - rec.Usage,
		PeriodKey: rec.PeriodKey,
	}
	if rec.Allowance > 0 {
		summary.Percentage = rec.Usage / rec.Allowance * 100
	} else if rec.Usage > 0 {
		summary.Percentage = 100
	}
	return summary
}

// getPeriodKey returns a unique key for a time period
func getPeriodKey(now time.Time, period BudgetPeriod) string {
	now = now.UTC()
	switch period {
	case PeriodMonthly:
		return now.Format("2006-01")
	default:
		return now.Format("2006-01-02")
	}
}
