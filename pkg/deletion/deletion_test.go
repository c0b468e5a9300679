package deletion

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
)

func newTestExecutor() *Executor {
	return &Executor{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestStepRecordsFailureWithoutAborting(t *testing.T) {
	e := newTestExecutor()
	report := Report{TenantID: uuid.New(), Counts: map[string]int64{}}

	e.step(context.Background(), &report, "step_one", func(ctx context.Context) (int64, error) {
		return 0, errors.New("boom")
	})
	e.step(context.Background(), &report, "step_two", func(ctx context.Context) (int64, error) {
		return 3, nil
	})

	if len(report.Errors) != 1 {
		t.Fatalf("expected 1 recorded error, got %d", len(report.Errors))
	}
	if report.Errors[0].Step != "step_one" {
		t.Errorf("expected failing step to be step_one, got %s", report.Errors[0].Step)
	}
	if report.Counts["step_two"] != 3 {
		t.Errorf("expected step_two count 3, got %d", report.Counts["step_two"])
	}
	if _, ok := report.Counts["step_one"]; ok {
		t.Errorf("expected no count recorded for a failed step")
	}
}
