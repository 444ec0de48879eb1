package invoices

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/VipLedger/internal/pkg/gateway"
	"github.com/ManuelReschke/VipLedger/internal/pkg/ledger"
	"github.com/ManuelReschke/VipLedger/internal/pkg/pricing"
	"github.com/ManuelReschke/VipLedger/internal/pkg/retryqueue"
	"github.com/ManuelReschke/VipLedger/internal/pkg/tenant"
)

// Outcome is the terminal state of one processed notification. The string
// values are the bodies the gateway receives back and must stay stable.
type Outcome string

const (
	// OutcomeDone means the purchase was applied and recorded.
	OutcomeDone Outcome = "done"
	// OutcomeDuplicate means the payment id was already recorded.
	OutcomeDuplicate Outcome = "Duplicated"
	// OutcomeNotFound means the gateway could not produce the payment.
	OutcomeNotFound Outcome = "not found"
	// OutcomeComplete means the payment exists but has not settled; the
	// gateway will notify again when it does.
	OutcomeComplete Outcome = "Processing complete"
	// OutcomeFailed means applying the purchase failed after the payment
	// settled. A first failure schedules exactly one delayed retry.
	OutcomeFailed Outcome = "Failed to process payment"
)

const notificationsLog = "notifications.txt"

// NotifyRequest is one gateway webhook delivery, or its replay from the
// retry queue when Retry is set.
type NotifyRequest struct {
	PaymentID string
	Svname    string
	Svnum     int
	Retry     bool
}

// Notify reconciles one settled payment into the entitlement and payment
// stores. The flow is fetch, settle check, idempotency check, merge, record;
// every purchase detail is read from the gateway metadata, never from the
// webhook query string. Unsettled payments and unknown ids are not errors.
func (s *Service) Notify(ctx context.Context, req NotifyRequest) (Outcome, error) {
	appendNotificationLog(req)

	payment, err := s.gw.GetPayment(ctx, req.PaymentID)
	if err != nil {
		log.Errorf("[Notify] fetching payment %s: %v", req.PaymentID, err)
		return OutcomeNotFound, nil
	}

	if !payment.Approved() {
		log.Infof("[Notify] payment %s not settled yet (status=%s detail=%s)",
			req.PaymentID, payment.Status, payment.StatusDetail)
		return OutcomeComplete, nil
	}

	meta := payment.Metadata
	if err := s.validateMetadata(meta); err != nil {
		return "", fmt.Errorf("%w: payment %s metadata: %v", ErrInvalidRequest, req.PaymentID, err)
	}

	store, err := tenant.Resolve(meta.Svname, meta.Svnum)
	if err != nil {
		return "", fmt.Errorf("%w: payment %s: %v", ErrInvalidRequest, req.PaymentID, err)
	}
	billingStore := tenant.PaymentsStore(meta.Svname)

	dup, err := s.recorder.HasPayment(billingStore, req.PaymentID)
	if err != nil {
		// The unique index on the payment id still blocks a double apply at
		// the record step, so a failed lookup does not stop the flow.
		log.Errorf("[Notify] duplicate check for %s: %v", req.PaymentID, err)
	}
	if dup {
		log.Infof("[Notify] payment %s already recorded", req.PaymentID)
		return OutcomeDuplicate, nil
	}

	if meta.Vip == pricing.AdminQuantity {
		return s.applyAdminCredit(req.PaymentID, payment, meta, billingStore)
	}
	return s.applyPurchase(ctx, req, payment, meta, store, billingStore)
}

// validateMetadata re-checks the echoed metadata before it drives writes.
// The gateway normally returns it verbatim, but it crosses a trust boundary.
func (s *Service) validateMetadata(meta gateway.Metadata) error {
	if err := s.validate.Struct(meta); err != nil {
		return err
	}
	if pricing.QuantityTier(meta.Vip) < 0 {
		return fmt.Errorf("unknown vip quantity %d", meta.Vip)
	}
	return nil
}

func (s *Service) applyPurchase(ctx context.Context, req NotifyRequest, payment *gateway.Payment, meta gateway.Metadata, store, billingStore tenant.StoreID) (Outcome, error) {
	grant := ledger.Grant{
		Tag:       meta.Username,
		Tier:      meta.Vip,
		Days:      meta.Days,
		Info:      "compra",
		PaymentID: req.PaymentID,
	}
	prior, err := s.engine.Apply(store, grant)
	if err != nil {
		log.Errorf("[Notify] applying payment %s: %v", req.PaymentID, err)
		s.scheduleRetry(ctx, req)
		return OutcomeFailed, nil
	}

	var prevDueDate string
	var prevTier int
	if prior != nil {
		prevDueDate = prior.Date
		prevTier = prior.VIP
	}

	rec := ledger.PaymentRecord{
		PaymentID:   req.PaymentID,
		Email:       payment.Payer.Email,
		Tag:         meta.Username,
		Description: purchaseDescription(meta),
		DueDate:     ledger.AddDays(s.now(), meta.Days),
		PrevDueDate: prevDueDate,
		PrevTier:    prevTier,
		TotalAmount: payment.TransactionDetails.TotalPaidAmount,
		NetAmount:   payment.TransactionDetails.NetReceivedAmount,
	}
	if err := s.recorder.Record(billingStore, rec); err != nil {
		// The entitlement is already applied at this point and the failed
		// record is the idempotency marker itself, so a replay would apply
		// the purchase a second time. Log and finish instead.
		log.Errorf("[Notify] recording payment %s: %v", req.PaymentID, err)
	}

	log.Infof("[Notify] payment %s applied for %s on store %d", req.PaymentID, meta.Username, store)
	return OutcomeDone, nil
}

// applyAdminCredit records an administrative purchase. It never touches the
// entitlement table; staff activate the credit by hand.
func (s *Service) applyAdminCredit(paymentID string, payment *gateway.Payment, meta gateway.Metadata, billingStore tenant.StoreID) (Outcome, error) {
	rec := ledger.PaymentRecord{
		PaymentID:   paymentID,
		Email:       payment.Payer.Email,
		Tag:         meta.Username,
		Description: purchaseDescription(meta),
		TotalAmount: payment.TransactionDetails.TotalPaidAmount,
		NetAmount:   payment.TransactionDetails.NetReceivedAmount,
	}
	if err := s.recorder.Record(billingStore, rec); err != nil {
		return "", fmt.Errorf("recording admin credit %s: %w", paymentID, err)
	}
	log.Infof("[Notify] admin credit %s recorded for %s", paymentID, meta.Username)
	return OutcomeDone, nil
}

// scheduleRetry enqueues exactly one delayed replay for a first failure.
// A replayed notification that fails again stays failed.
func (s *Service) scheduleRetry(ctx context.Context, req NotifyRequest) {
	if req.Retry || s.retries == nil {
		return
	}
	task := retryqueue.NewTask(req.PaymentID, req.Svname, req.Svnum)
	if err := s.retries.Schedule(ctx, task, retryqueue.RetryDelay); err != nil {
		log.Errorf("[Notify] scheduling retry for %s: %v", req.PaymentID, err)
	}
}

func purchaseDescription(meta gateway.Metadata) string {
	name := tenant.InstanceName(meta.Svname, meta.Svnum)
	if meta.Vip == pricing.AdminQuantity {
		return fmt.Sprintf("[%s] Administrador", name)
	}
	unit := "mes"
	if meta.Months != 1 {
		unit = "meses"
	}
	return fmt.Sprintf("[%s] Vip x%d (%d %s)", name, meta.Vip, meta.Months, unit)
}

func appendNotificationLog(req NotifyRequest) {
	f, err := os.OpenFile(notificationsLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Errorf("[Notify] opening %s: %v", notificationsLog, err)
		return
	}
	defer f.Close()

	line := fmt.Sprintf("%s | id=%s svname=%s svnum=%d retry=%t\n",
		time.Now().Format("02/01/2006 - 15:04:05"), req.PaymentID, req.Svname, req.Svnum, req.Retry)
	if _, err := f.WriteString(line); err != nil {
		log.Errorf("[Notify] writing %s: %v", notificationsLog, err)
	}
}
