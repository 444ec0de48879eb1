package invoices

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/VipLedger/app/models"
	"github.com/ManuelReschke/VipLedger/internal/pkg/env"
	"github.com/ManuelReschke/VipLedger/internal/pkg/gateway"
	"github.com/ManuelReschke/VipLedger/internal/pkg/ledger"
	"github.com/ManuelReschke/VipLedger/internal/pkg/pricing"
	"github.com/ManuelReschke/VipLedger/internal/pkg/retryqueue"
	"github.com/ManuelReschke/VipLedger/internal/pkg/tenant"
)

// ErrInvalidRequest marks configuration-class failures: unknown tenants and
// out-of-range tier/duration indexes. Controllers answer these with a 400.
var ErrInvalidRequest = errors.New("invalid request")

// Gateway is the slice of the payment gateway the service needs; the concrete
// client lives in the gateway package, tests inject fakes.
type Gateway interface {
	CreatePreference(ctx context.Context, pref gateway.PreferenceRequest) (string, error)
	GetPayment(ctx context.Context, id string) (*gateway.Payment, error)
}

// Scheduler is the slice of the retry queue the service needs.
type Scheduler interface {
	Schedule(ctx context.Context, task retryqueue.Task, delay time.Duration) error
}

// Service orchestrates preference creation, webhook reconciliation, payment
// queries and cross-tenant balance aggregation.
type Service struct {
	gw       Gateway
	engine   *ledger.Engine
	recorder *ledger.Recorder
	retries  Scheduler
	open     ledger.OpenFunc
	validate *validator.Validate
	now      func() time.Time
}

// NewService wires a service from its collaborators.
func NewService(gw Gateway, open ledger.OpenFunc, retries Scheduler) *Service {
	return &Service{
		gw:       gw,
		engine:   ledger.NewEngine(open),
		recorder: ledger.NewRecorder(open),
		retries:  retries,
		open:     open,
		validate: validator.New(),
		now:      time.Now,
	}
}

// SetRetries installs the retry scheduler after construction. The queue's
// handler calls back into the service, so the two are wired in two steps.
func (s *Service) SetRetries(retries Scheduler) {
	s.retries = retries
}

// CreateInvoiceRequest is the checkout request coming from the web shops.
type CreateInvoiceRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Month    int    `json:"month" validate:"min=0,max=4"`
	Vip      int    `json:"vip" validate:"min=0,max=8"`
	Svname   string `json:"svname" validate:"required"`
	Server   int    `json:"server" validate:"min=0"`
}

// CreateInvoice validates a checkout request, prices it, creates the gateway
// preference and records a best-effort audit row. Returns the gateway
// preference id for the shop to redirect to.
func (s *Service) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (string, error) {
	if err := s.validate.Struct(req); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if _, err := tenant.Resolve(req.Svname, req.Server); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	token, err := randomToken(10)
	if err != nil {
		return "", err
	}

	price, err := pricing.Price(req.Vip, req.Month, req.Svname)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	desc := "(por " + pricing.DurationPhrase(req.Month) + ")"
	if req.Vip == pricing.AdminTierIndex {
		desc = "(permanente)"
	}
	title := fmt.Sprintf("%s %s %s %s - $%d",
		tenant.Prefix(req.Svname),
		tenant.InstanceName(req.Svname, req.Server),
		pricing.TierName(req.Vip),
		desc,
		price,
	)

	apiURL := env.GetEnv("API_URL", "")
	pref := gateway.PreferenceRequest{
		NotificationURL: fmt.Sprintf("%s/api/notify?svname=%s&svnum=%d", apiURL, req.Svname, req.Server),
		Items: []gateway.PreferenceItem{
			{Title: title, UnitPrice: float64(price), Quantity: 1},
		},
		Metadata: gateway.Metadata{
			Username: req.Username,
			Days:     31 * pricing.DurationMultiplier(req.Month),
			Months:   pricing.DurationMultiplier(req.Month),
			Vip:      pricing.TierQuantity(req.Vip),
			RandomID: token,
			Svname:   req.Svname,
			Svnum:    req.Server,
		},
	}

	prefID, err := s.gw.CreatePreference(ctx, pref)
	if err != nil {
		return "", fmt.Errorf("creating preference: %w", err)
	}

	s.writeInvoiceAudit(req.Svname, req.Username, token)
	return prefID, nil
}

// writeInvoiceAudit records the correlation token on the tenant's billing
// store. Best-effort: a failure is logged and never blocks checkout.
func (s *Service) writeInvoiceAudit(svname, username, token string) {
	repo, release, err := s.open(tenant.PaymentsStore(svname))
	if err != nil {
		log.Errorf("[Invoices] opening billing store for audit: %v", err)
		return
	}
	defer release()

	stamp := ledger.Stamp(s.now())
	err = repo.InsertAudit(&models.InvoiceAudit{
		Date:         stamp,
		Tag:          username,
		Server:       username,
		RandomID:     token,
		DateInserted: stamp,
	})
	if err != nil {
		log.Errorf("[Invoices] writing invoice audit: %v", err)
	}
}

// PlayerLookup lists player tags seen from an IP on a tenant instance,
// highest level first. The web shops use it to prefill the username field.
func (s *Service) PlayerLookup(ctx context.Context, ip, svname string, svnum int) ([]string, error) {
	if ip == "" {
		return nil, fmt.Errorf("%w: ip is required", ErrInvalidRequest)
	}
	store, err := tenant.Resolve(svname, svnum)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	repo, release, err := s.open(store)
	if err != nil {
		return nil, err
	}
	defer release()

	return repo.PlayersByIP(ip)
}

// PaymentMetadata fetches the gateway metadata of a payment, for support
// tooling. A fetch failure yields nil, matching the legacy panel contract.
func (s *Service) PaymentMetadata(ctx context.Context, id string) *gateway.Metadata {
	p, err := s.gw.GetPayment(ctx, id)
	if err != nil {
		log.Errorf("[Invoices] fetching payment %s: %v", id, err)
		return nil
	}
	return &p.Metadata
}

func randomToken(length int) (string, error) {
	buf := make([]byte, (length+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf)[:length], nil
}
