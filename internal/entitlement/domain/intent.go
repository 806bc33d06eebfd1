package domain

import "time"

// PlanPeriod is the provider session API's plan granularity.
type PlanPeriod string

const (
	PlanMonth    PlanPeriod = "month"
	PlanYear     PlanPeriod = "year"
	PlanDeferred PlanPeriod = "deferred"
	PlanUnknown  PlanPeriod = "unknown"
)

// Intent is the canonical entitlement decision derived from one provider
// line item: what to grant, from when until when, and how long the buyer may
// still self-service a refund.
type Intent struct {
	ProductID        string     `json:"product_id"`
	BasePlan         string     `json:"base_plan"`
	Period           PlanPeriod `json:"period"`
	Start            time.Time  `json:"start"`
	Expiry           time.Time  `json:"expiry"`
	RefundWindowDays int        `json:"refund_window_days"`
}

// BasePlan describes a one-time product tier: how much entitlement time a
// purchase adds on top of its completion time, and the self-service refund
// window.
type BasePlan struct {
	Months           int
	Years            int
	RefundWindowDays int
}

// BasePlans maps the one-time product base-plan identifiers this system
// grants entitlements for.
var BasePlans = map[string]BasePlan{
	"1-month": {Months: 1, RefundWindowDays: 3},
	"1-year":  {Years: 1, RefundWindowDays: 7},
	"2-year":  {Years: 2, RefundWindowDays: 14},
	"5-year":  {Years: 5, RefundWindowDays: 28},
}

// IntentForBasePlan builds the Intent for a one-time purchase: entitlement
// duration is added to the purchase completion time.
func IntentForBasePlan(productID, basePlanID string, completedAt time.Time) (*Intent, error) {
	plan, ok := BasePlans[basePlanID]
	if !ok {
		return nil, ErrUnknownBasePlan
	}
	period := PlanMonth
	if plan.Years > 0 {
		period = PlanYear
	}
	return &Intent{
		ProductID:        productID,
		BasePlan:         basePlanID,
		Period:           period,
		Start:            completedAt,
		Expiry:           completedAt.AddDate(plan.Years, plan.Months, 0),
		RefundWindowDays: plan.RefundWindowDays,
	}, nil
}

// SizePlan maps a target expiry onto the provider session API's plan
// vocabulary: which period to buy and how many times to repeat it.
//
// The one-day case exists because the mobile-billing provider's silent 24h
// grace period can report an expiry a day out during test purchases; in test
// mode that still sizes as one month, otherwise it is rejected.
func SizePlan(now, expiry time.Time, testMode bool) (PlanPeriod, int, error) {
	months := 0
	for !now.AddDate(0, months+1, 0).After(expiry) {
		months++
	}

	if months > 9 {
		return PlanYear, 1, nil
	}
	if months > 0 {
		return PlanMonth, months, nil
	}

	days := int(expiry.Sub(now).Hours() / 24)
	switch {
	case expiry.Before(now):
		return PlanUnknown, 0, ErrExpiryInPast
	case days >= 10:
		return PlanMonth, 1, nil
	case days == 1 && testMode:
		return PlanMonth, 1, nil
	default:
		return PlanUnknown, 0, ErrPlanUnsizable
	}
}
