package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/botfleet/creditcore/internal/telemetry"
	"github.com/botfleet/creditcore/pkg/ledger"
	"github.com/botfleet/creditcore/pkg/money"
	"github.com/botfleet/creditcore/pkg/notify"
)

// TopupRunner charges due auto-topup schedules and credits the ledger on
// success (spec.md §4.D, "auto top-up"). Failures unconditionally advance
// the schedule so a persistently-failing tenant cannot hammer the
// processor on every tick, and are capped so a dead payment method
// eventually disables the schedule instead of failing silently forever.
type TopupRunner struct {
	processor Processor
	ledger    *ledger.Store
	store     *Store
	sink      notify.Sink
	logger    *slog.Logger
}

// NewTopupRunner constructs a TopupRunner. sink may be notify.NoopSink{} if
// no alert channel is configured.
func NewTopupRunner(processor Processor, ledgerStore *ledger.Store, store *Store, sink notify.Sink, logger *slog.Logger) *TopupRunner {
	return &TopupRunner{processor: processor, ledger: ledgerStore, store: store, sink: sink, logger: logger}
}

// RunOnce charges every schedule whose next_at has passed.
func (t *TopupRunner) RunOnce(ctx context.Context) error {
	now := time.Now().UTC()
	due, err := t.store.DueSchedules(ctx, now)
	if err != nil {
		return fmt.Errorf("listing due schedules: %w", err)
	}

	for _, sch := range due {
		if err := t.charge(ctx, sch); err != nil {
			if errors.Is(err, ErrProcessorNotConfigured) {
				// No processor is wired; this is not a charge failure, so
				// skip the failure counter and advance the schedule like
				// any other attempt so it is not retried until its next
				// interval rather than spinning on every tick.
				t.logger.Debug("skipping auto top-up, no processor configured", "tenant", sch.TenantID)
				if err := t.store.AdvanceSchedule(ctx, sch.TenantID, sch.IntervalHours); err != nil {
					t.logger.Error("advancing auto top-up schedule", "error", err, "tenant", sch.TenantID)
				}
				continue
			}

			t.logger.Warn("auto top-up failed", "error", err, "tenant", sch.TenantID)
			telemetry.AutoTopupsTotal.WithLabelValues("failed").Inc()
			nowDisabled, recErr := t.store.RecordFailure(ctx, sch.TenantID)
			if recErr != nil {
				t.logger.Error("recording auto top-up failure", "error", recErr, "tenant", sch.TenantID)
			}
			if nowDisabled {
				if alertErr := t.sink.PostBillingAlert(ctx, notify.BillingAlert{
					TenantID: sch.TenantID.String(),
					Title:    "auto top-up disabled after repeated failures",
					Detail:   fmt.Sprintf("reached failure cap of %d; schedule disabled, charge error: %s", sch.FailureCap, err),
				}); alertErr != nil {
					t.logger.Error("posting auto top-up disabled alert", "error", alertErr, "tenant", sch.TenantID)
				}
			}
		} else {
			telemetry.AutoTopupsTotal.WithLabelValues("succeeded").Inc()
			if err := t.store.RecordSuccess(ctx, sch.TenantID); err != nil {
				t.logger.Error("recording auto top-up success", "error", err, "tenant", sch.TenantID)
			}
		}

		// Unconditionally advance next_at regardless of outcome, so a
		// failing charge does not get retried again until the next
		// scheduled interval.
		if err := t.store.AdvanceSchedule(ctx, sch.TenantID, sch.IntervalHours); err != nil {
			t.logger.Error("advancing auto top-up schedule", "error", err, "tenant", sch.TenantID)
		}
	}

	return nil
}

func (t *TopupRunner) charge(ctx context.Context, sch Schedule) error {
	referenceID, err := t.processor.Charge(ctx, sch.ProcessorCustomer, sch.AmountCents, "auto top-up")
	if err != nil {
		return fmt.Errorf("charging processor: %w", err)
	}

	ref := referenceID
	_, err = t.ledger.Credit(ctx, ledger.CreditParams{
		TenantID:    sch.TenantID,
		Amount:      money.FromCents(sch.AmountCents),
		Type:        ledger.TypePurchase,
		Description: "automatic top-up",
		ReferenceID: &ref,
	})
	if err != nil {
		return fmt.Errorf("crediting ledger: %w", err)
	}
	return nil
}

// RunLoop runs RunOnce periodically until ctx is cancelled, in the same
// shape as roster.RunScheduleTopUpLoop.
func (t *TopupRunner) RunLoop(ctx context.Context, interval time.Duration) {
	t.logger.Info("auto top-up loop started", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := t.RunOnce(ctx); err != nil {
		t.logger.Error("initial auto top-up pass", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("auto top-up loop stopped")
			return
		case <-ticker.C:
			if err := t.RunOnce(ctx); err != nil {
				t.logger.Error("auto top-up pass", "error", err)
			}
		}
	}
}
