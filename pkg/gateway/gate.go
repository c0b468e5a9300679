package gateway

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/botfleet/creditcore/internal/telemetry"
	"github.com/botfleet/creditcore/pkg/ledger"
	"github.com/botfleet/creditcore/pkg/meter"
	"github.com/botfleet/creditcore/pkg/money"
)

// Decision is the outcome of a PreCheck call.
type Decision string

const (
	DecisionAllowed              Decision = "allowed"
	DecisionGrace                Decision = "grace"
	DecisionCreditsExhausted     Decision = "credits_exhausted"
	DecisionInsufficientCredits Decision = "insufficient_credits"
)

// defaultGraceBufferCents is used by NewGate when the configured grace
// buffer is not positive.
const defaultGraceBufferCents = 50

// Gate wraps every billable external call with a pre-flight balance check
// and a post-hoc debit (spec.md §4.E).
type Gate struct {
	ledger    *ledger.Store
	pipeline  *meter.Pipeline
	rules     *RuleSet
	publisher *BalanceExhaustedPublisher
	cache     *BalanceCache

	graceBufferCents int64
}

// NewGate constructs a Gate. cache may be a no-op BalanceCache (nil Redis
// client) if the hot-path cache is not wired.
func NewGate(ledgerStore *ledger.Store, pipeline *meter.Pipeline, rules *RuleSet, publisher *BalanceExhaustedPublisher, cache *BalanceCache, graceBufferCents int64) *Gate {
	if graceBufferCents <= 0 {
		graceBufferCents = defaultGraceBufferCents
	}
	if cache == nil {
		cache = NewBalanceCache(nil)
	}
	return &Gate{
		ledger:           ledgerStore,
		pipeline:         pipeline,
		rules:            rules,
		publisher:        publisher,
		cache:            cache,
		graceBufferCents: graceBufferCents,
	}
}

// PreCheck reads the tenant's balance and decides whether a call estimated
// to cost estimatedCostCents may proceed (spec.md §4.E). The balance read
// goes through a short-TTL Redis cache on the hot path; a miss or cache
// error falls back to the ledger.
func (g *Gate) PreCheck(ctx context.Context, tenantID uuid.UUID, estimatedCostCents int64) (Decision, error) {
	balanceCents, cached := g.cache.Get(ctx, tenantID)
	if !cached {
		bal, err := g.ledger.Balance(ctx, tenantID)
		if err != nil {
			return "", fmt.Errorf("reading balance: %w", err)
		}
		balanceCents = bal.Amount.ToCents()
		g.cache.Set(ctx, tenantID, balanceCents)
	}

	decision := decide(balanceCents, estimatedCostCents, g.graceBufferCents)
	telemetry.GatewayGateDecisionsTotal.WithLabelValues(string(decision)).Inc()
	return decision, nil
}

// decide implements the pre-check decision matrix as a pure function
// (spec.md §8 testable property 8): insufficient_credits iff 0 <= b < c;
// credits_exhausted iff b <= -g; permit otherwise (which includes the
// grace band -g < b < 0).
func decide(balanceCents, estimatedCostCents, graceBufferCents int64) Decision {
	switch {
	case balanceCents >= estimatedCostCents:
		return DecisionAllowed
	case balanceCents <= -graceBufferCents:
		return DecisionCreditsExhausted
	case balanceCents >= 0:
		return DecisionInsufficientCredits
	default:
		return DecisionGrace
	}
}

// ResolveMargin looks up the margin multiplier for (provider, modelPattern)
// ahead of a PostDebit call (spec.md §4.E, "Margin lookup").
func (g *Gate) ResolveMargin(provider, modelPattern string) float64 {
	return g.rules.Resolve(provider, modelPattern)
}

// PostDebit charges the tenant for a completed external call, emits a
// meter event, and publishes a one-shot balance-exhausted notification the
// first time the balance crosses from positive to non-positive (spec.md
// §4.E: "Crossing is determined by comparing pre- and post-debit
// balances, not by the absolute sign").
func (g *Gate) PostDebit(ctx context.Context, tenantID uuid.UUID, costUSD, margin float64, capability, provider string) (newBalanceCents int64, err error) {
	before, err := g.ledger.Balance(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("reading balance before debit: %w", err)
	}

	// costUSD arrives as a float from the provider's own cost estimate, so
	// converting it into raw units is an input-boundary conversion, not
	// arithmetic on money; margin is then applied through
	// money.Amount.MultiplyByScalar, the one sanctioned rounding point for
	// money in this system (spec.md §9), instead of rounding a float.
	rawUnitsPerDollar := float64(money.RawUnitsPerCent) * 100
	baseCost := money.FromRawUnits(int64(math.Round(costUSD * rawUnitsPerDollar)))
	charge := baseCost.MultiplyByScalar(margin)
	if charge.IsNegative() {
		charge = money.Zero
	}

	txn, err := g.ledger.Debit(ctx, ledger.DebitParams{
		TenantID:      tenantID,
		Amount:        charge,
		Type:          ledger.TypeBotRuntime,
		Description:   fmt.Sprintf("%s usage via %s", capability, provider),
		AllowNegative: true,
	})
	if err != nil {
		return 0, fmt.Errorf("debiting for usage: %w", err)
	}

	if err := g.pipeline.Emit(meter.NewEvent(tenantID.String(), capability, provider, costUSD, float64(charge.ToCents())/100, nil, nil)); err != nil {
		return 0, fmt.Errorf("emitting meter event: %w", err)
	}

	after := txn.BalanceAfter.ToCents()
	g.cache.Invalidate(ctx, tenantID)

	if before.Amount.ToCents() > 0 && after <= 0 && g.publisher != nil {
		g.publisher.Publish(ctx, tenantID, after)
	}

	return after, nil
}
