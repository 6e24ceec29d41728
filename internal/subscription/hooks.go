// Package subscription holds the hook methods of the subscription business
// object shipped with the default catalog.
package subscription

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/dukex/stepwise/pkg/models"
	"github.com/dukex/stepwise/pkg/process"
)

// Model is the owner model the hooks are registered for.
const Model = "subscription"

// ReviewThreshold is the amount above which a subscription needs a manual review.
const ReviewThreshold = 1000.0

// Hooks implements process.HookHandler for subscriptions.
type Hooks struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewHooks creates the subscription hooks.
func NewHooks(logger *slog.Logger) *Hooks {
	return &Hooks{
		logger: logger.With("module", "subscription"),
		now:    time.Now,
	}
}

func (h *Hooks) Model() string { return Model }

func (h *Hooks) Methods() []process.Method {
	return []process.Method{
		{
			Name:            "route_by_amount",
			Kind:            models.RuleKindStepOver,
			FancyName:       "Route by amount",
			LongDescription: "Sends subscriptions above the review threshold to review, the others to sign.",
			Select:          h.routeByAmount,
		},
		{
			Name:      "stamp_start_date",
			Kind:      models.RuleKindBefore,
			FancyName: "Stamp start date",
			Call:      h.stampStartDate,
		},
		{
			Name:      "check_amount",
			Kind:      models.RuleKindCheck,
			FancyName: "Check amount",
			Call:      h.checkAmount,
		},
		{
			Name:            "compute_total",
			Kind:            models.RuleKindUpdate,
			FancyName:       "Compute total",
			LongDescription: "total = amount * (1 - discount / 100)",
			Call:            h.computeTotal,
		},
		{
			Name:      "check_total",
			Kind:      models.RuleKindValidate,
			FancyName: "Check total",
			Call:      h.checkTotal,
		},
		{
			Name:      "notify_signed",
			Kind:      models.RuleKindAfter,
			FancyName: "Notify signature",
			Call:      h.notifySigned,
		},
	}
}

func (h *Hooks) routeByAmount(_ context.Context, record *models.Record) (string, error) {
	amount, err := number(record, "amount")
	if err != nil {
		return "", err
	}

	if amount > ReviewThreshold {
		return "review", nil
	}

	return "sign", nil
}

func (h *Hooks) stampStartDate(_ context.Context, record *models.Record) error {
	if _, ok := record.Get("start_date"); ok {
		return nil
	}

	record.Set("start_date", h.now().UTC().Format(time.DateOnly))

	return nil
}

func (h *Hooks) checkAmount(_ context.Context, record *models.Record) error {
	amount, err := number(record, "amount")
	if err != nil {
		return err
	}

	if amount <= 0 {
		return process.NewValidationError("amount must be positive")
	}

	return nil
}

func (h *Hooks) computeTotal(_ context.Context, record *models.Record) error {
	amount, err := number(record, "amount")
	if err != nil {
		return err
	}

	discount := 0.0
	if _, ok := record.Get("discount"); ok {
		if discount, err = number(record, "discount"); err != nil {
			return err
		}
	}

	record.Set("total", amount*(1-discount/100))

	return nil
}

func (h *Hooks) checkTotal(_ context.Context, record *models.Record) error {
	total, err := number(record, "total")
	if err != nil {
		return err
	}

	if total < 0 {
		return process.NewValidationError("discount cannot exceed the amount")
	}

	return nil
}

func (h *Hooks) notifySigned(ctx context.Context, record *models.Record) error {
	customer, _ := record.Get("customer")

	h.logger.InfoContext(ctx, "Subscription signed",
		"record_id", record.ID,
		"customer", customer)

	return nil
}

// number reads a numeric attribute, reporting a missing or non numeric
// value as a validation failure.
func number(record *models.Record, name string) (float64, error) {
	value, ok := record.Get(name)
	if !ok {
		return 0, process.NewValidationError(name + " is required")
	}

	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f, nil
		}
	}

	return 0, process.NewValidationError(name + " must be a number")
}
