package ledger

import (
	"fmt"
	"time"

	"github.com/ManuelReschke/VipLedger/app/models"
	"github.com/ManuelReschke/VipLedger/internal/pkg/tenant"
)

// PaymentRecord is the input for one immutable billing row.
type PaymentRecord struct {
	PaymentID   string
	Email       string
	Tag         string
	Description string
	DueDate     string // empty for administrative credits
	PrevDueDate string
	PrevTier    int
	TotalAmount float64
	NetAmount   float64
}

// Recorder appends payment records to a tenant's payment store. Records are
// append-only; nothing in the ledger ever updates or deletes a pagos row.
type Recorder struct {
	open OpenFunc
	now  func() time.Time
}

// NewRecorder creates a payment recorder over the given store opener.
func NewRecorder(open OpenFunc) *Recorder {
	return &Recorder{open: open, now: time.Now}
}

// Record appends one payment row for an applied purchase or an administrative
// credit. Administrative credits carry no due date or prior-tier fields.
func (r *Recorder) Record(store tenant.StoreID, rec PaymentRecord) error {
	repo, release, err := r.open(store)
	if err != nil {
		return fmt.Errorf("record payment %s: %w", rec.PaymentID, err)
	}
	defer release()

	now := r.now()
	p := &models.Payment{
		Date:        Stamp(now),
		PaymentID:   rec.PaymentID,
		Email:       rec.Email,
		Tag:         rec.Tag,
		Server:      rec.Description,
		DueDate:     rec.DueDate,
		OldDueDate:  rec.PrevDueDate,
		OldVip:      rec.PrevTier,
		TotalAmount: rec.TotalAmount,
		NetAmount:   rec.NetAmount,
		Month:       int(now.Month()),
		Year:        now.Year(),
	}
	if err := repo.InsertPayment(p); err != nil {
		return fmt.Errorf("record payment %s: %w", rec.PaymentID, err)
	}
	return nil
}

// HasPayment reports whether a gateway payment id was already recorded on the
// tenant's payment store. This is the idempotency boundary for notifications.
func (r *Recorder) HasPayment(store tenant.StoreID, paymentID string) (bool, error) {
	repo, release, err := r.open(store)
	if err != nil {
		return false, fmt.Errorf("check payment %s: %w", paymentID, err)
	}
	defer release()

	return repo.HasPayment(paymentID)
}
