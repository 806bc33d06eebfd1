package domain

import "errors"

var (
	// ErrInvalidClientID indicates a cid that fails ValidateCID.
	ErrInvalidClientID = errors.New("invalid client id")

	// ErrEntitlementBanned indicates an operation refused because the
	// underlying provider session is banned. Banned sessions are never
	// deleted or renewed automatically.
	ErrEntitlementBanned = errors.New("entitlement is banned")

	// ErrExpiryInPast indicates a plan expiry that already passed; no plan
	// can be sized for it.
	ErrExpiryInPast = errors.New("plan expiry is in the past")

	// ErrPlanUnsizable indicates an expiry too close to now to size a plan
	// for (under the one-day ambiguity window outside test mode).
	ErrPlanUnsizable = errors.New("cannot size a plan for the given expiry")

	// ErrUnknownBasePlan indicates a one-time product base plan this system
	// does not grant entitlements for.
	ErrUnknownBasePlan = errors.New("unknown base plan")

	// ErrRefundWindowExceeded indicates a refund or revoke request outside
	// the base plan's refund window.
	ErrRefundWindowExceeded = errors.New("refund window exceeded")
)
