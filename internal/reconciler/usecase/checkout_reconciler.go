package usecase

import (
	"context"
	"log/slog"
	"time"

	entitlementDomain "github.com/relaypass/relaypass/internal/entitlement/domain"
	apperrors "github.com/relaypass/relaypass/internal/errors"
	"github.com/relaypass/relaypass/internal/provider/checkout"
)

const lapseSourceCheckout = "checkout"

// checkoutReconciler implements CheckoutReconciler.
type checkoutReconciler struct {
	clients  ClientRepository
	lapses   LapseRepository
	payees   PayeeRepository
	broker   Broker
	checkout CheckoutAPI
	// productID is the single product this integration grants. Sessions for
	// any other product are quarantined. Empty disables the check.
	productID string
	logger    *slog.Logger

	now func() time.Time
}

// NewCheckoutReconciler creates the card-checkout reconciler.
func NewCheckoutReconciler(
	clients ClientRepository,
	lapses LapseRepository,
	payees PayeeRepository,
	broker Broker,
	checkoutAPI CheckoutAPI,
	productID string,
	logger *slog.Logger,
) CheckoutReconciler {
	return &checkoutReconciler{
		clients:   clients,
		lapses:    lapses,
		payees:    payees,
		broker:    broker,
		checkout:  checkoutAPI,
		productID: productID,
		logger:    logger,
		now:       time.Now,
	}
}

// HandleEvent processes one checkout webhook event. Events this system cannot
// act on safely become quarantine rows instead of guesses; only persistence
// failures after a successful grant are retryable.
func (r *checkoutReconciler) HandleEvent(ctx context.Context, event *checkout.Event, rawBody []byte) error {
	session, err := event.Session()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "malformed checkout session object")
	}

	switch event.Type {
	case checkout.EventSessionCompleted, checkout.EventAsyncPaymentSucceeded:
		return r.reconcileSession(ctx, session, rawBody)

	case checkout.EventAsyncPaymentFailed:
		return r.quarantine(ctx, session.ID, "asynchronous payment failed", rawBody)

	case checkout.EventSessionExpired:
		// Expired sessions with no buyer identity are routine abandonment.
		if session.ClientReferenceID == "" {
			return nil
		}
		return r.quarantine(ctx, session.ID, "session expired after checkout started", rawBody)

	default:
		r.logger.Info("ignoring checkout event", slog.String("type", event.Type))
		return nil
	}
}

func (r *checkoutReconciler) reconcileSession(ctx context.Context, session *checkout.Session, rawBody []byte) error {
	if session.ClientReferenceID == "" {
		return r.quarantine(ctx, session.ID, "completed session carries no client reference", rawBody)
	}
	cid := session.ClientReferenceID
	if err := entitlementDomain.ValidateCID(cid); err != nil {
		return r.quarantine(ctx, session.ID, "client reference is not a valid client id", rawBody)
	}

	// A completed session can still be awaiting an asynchronous payment
	// method. The async_payment_succeeded event grants later.
	if session.PaymentStatus != checkout.PaymentStatusPaid {
		return nil
	}

	items, err := r.checkout.ListLineItems(ctx, session.ID)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrRetryable, "failed to list checkout line items: "+err.Error())
	}
	if len(items) == 0 {
		return r.quarantine(ctx, session.ID, "paid session has no line items", rawBody)
	}

	product := items[0].Price.Product
	if r.productID != "" && product != r.productID {
		// Other products are legitimately sold through the same account; not
		// this gateway's concern and not worth a redelivery loop.
		r.logger.Info("ignoring checkout session for out-of-scope product",
			slog.String("session_id", session.ID), slog.String("product", product))
		return nil
	}
	basePlanID := productBasePlan(product)
	if basePlanID == "" {
		return r.quarantine(ctx, session.ID, "purchased product maps to no known base plan", rawBody)
	}

	intent, err := entitlementDomain.IntentForBasePlan(product, basePlanID, r.now().UTC())
	if err != nil {
		return err
	}

	now := r.now().UTC()
	if _, err := r.clients.InsertIfAbsent(ctx, &entitlementDomain.Client{
		CID:       cid,
		Kind:      entitlementDomain.ClientKindProvider,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return apperrors.Wrap(apperrors.ErrRetryable, err.Error())
	}

	entitlement, err := r.broker.GetOrCreateEntitlement(ctx, cid, intent, false)
	if err != nil {
		return err
	}
	if entitlement.Status == entitlementDomain.StatusBanned {
		r.logger.Warn("paid checkout session resolves to a banned entitlement",
			slog.String("session_id", session.ID))
		return nil
	}

	// The paid record lands after the grant: redelivery of this event is
	// idempotent through the broker, so a crash between grant and record is
	// healed by the provider retrying.
	payee := entitlementDomain.NewPayee(session.ID, cid, session.PaymentStatus,
		session.AmountTotal, session.Currency, rawBody)
	if err := r.payees.Create(ctx, payee); err != nil {
		if apperrors.Is(err, apperrors.ErrConflict) {
			return nil
		}
		return apperrors.Wrap(apperrors.ErrRetryable, "failed to record paid session: "+err.Error())
	}
	return nil
}

// quarantine records the event as a lapse row and stops processing it. The
// row write itself is retryable; everything else about the event is not.
func (r *checkoutReconciler) quarantine(ctx context.Context, sessionID, reason string, rawBody []byte) error {
	lapse := entitlementDomain.NewLapse(lapseSourceCheckout, sessionID, reason, rawBody)
	if err := r.lapses.Create(ctx, lapse); err != nil {
		return apperrors.Wrap(apperrors.ErrRetryable, "failed to record lapse: "+err.Error())
	}
	r.logger.Warn("checkout event quarantined",
		slog.String("session_id", sessionID), slog.String("reason", reason))
	return nil
}
