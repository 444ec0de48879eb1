package invoices

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ManuelReschke/VipLedger/app/models"
	"github.com/ManuelReschke/VipLedger/internal/pkg/gateway"
	"github.com/ManuelReschke/VipLedger/internal/pkg/ledger"
	"github.com/ManuelReschke/VipLedger/internal/pkg/rates"
	"github.com/ManuelReschke/VipLedger/internal/pkg/retryqueue"
	"github.com/ManuelReschke/VipLedger/internal/pkg/tenant"
)

var errStore = errors.New("store unavailable")

// fakeStore backs one tenant store for service tests.
type fakeStore struct {
	rows     []models.VipRow
	payments []models.Payment
	audits   []models.InvoiceAudit
	players  []string
	net      float64
	gross    float64
	nextID   uint
	failAll  bool

	failInsertPaymentOnce bool
}

func (f *fakeStore) check() error {
	if f.failAll {
		return errStore
	}
	return nil
}

func (f *fakeStore) RowsForPlayer(tag string) ([]models.VipRow, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	var out []models.VipRow
	for _, r := range f.rows {
		if r.Tag == tag {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) RowsForPlayerTier(tag string, tier int) ([]models.VipRow, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	var out []models.VipRow
	for _, r := range f.rows {
		if r.Tag == tag && r.VIP == tier {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) HigherTierRows(tag string, tier int) ([]models.VipRow, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	var out []models.VipRow
	for _, r := range f.rows {
		if r.Tag == tag && r.VIP > tier {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) ActiveRow(tag string) (*models.VipRow, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	for i := range f.rows {
		if f.rows[i].Tag == tag && f.rows[i].Date != "" {
			row := f.rows[i]
			return &row, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) HighestQueuedRow(tag string) (*models.VipRow, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	var best *models.VipRow
	for i := range f.rows {
		r := f.rows[i]
		if r.Tag != tag || r.Date != "" {
			continue
		}
		if best == nil || r.VIP > best.VIP || (r.VIP == best.VIP && r.Days > best.Days) {
			row := r
			best = &row
		}
	}
	return best, nil
}

func (f *fakeStore) InsertRow(row *models.VipRow) error {
	if err := f.check(); err != nil {
		return err
	}
	f.nextID++
	row.ID = f.nextID
	f.rows = append(f.rows, *row)
	return nil
}

func (f *fakeStore) DemoteRow(id uint, days int) error {
	if err := f.check(); err != nil {
		return err
	}
	for i := range f.rows {
		if f.rows[i].ID == id {
			f.rows[i].Date = ""
			f.rows[i].Days = days
			return nil
		}
	}
	return errors.New("row not found")
}

func (f *fakeStore) PromoteRow(id uint, date string) error {
	if err := f.check(); err != nil {
		return err
	}
	for i := range f.rows {
		if f.rows[i].ID == id {
			f.rows[i].Date = date
			f.rows[i].Days = 0
			return nil
		}
	}
	return errors.New("row not found")
}

func (f *fakeStore) DeleteRow(id uint) error {
	if err := f.check(); err != nil {
		return err
	}
	for i := range f.rows {
		if f.rows[i].ID == id {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			return nil
		}
	}
	return errors.New("row not found")
}

func (f *fakeStore) HasPayment(paymentID string) (bool, error) {
	if err := f.check(); err != nil {
		return false, err
	}
	for _, p := range f.payments {
		if p.PaymentID == paymentID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) InsertPayment(p *models.Payment) error {
	if err := f.check(); err != nil {
		return err
	}
	if f.failInsertPaymentOnce {
		f.failInsertPaymentOnce = false
		return errStore
	}
	f.payments = append(f.payments, *p)
	return nil
}

func (f *fakeStore) MonthlyTotals(month int) (float64, float64, error) {
	if err := f.check(); err != nil {
		return 0, 0, err
	}
	return f.net, f.gross, nil
}

func (f *fakeStore) PaymentsByMonth(month int, adminOnly bool) ([]models.Payment, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	var out []models.Payment
	for _, p := range f.payments {
		if p.Month != month {
			continue
		}
		if adminOnly && !strings.Contains(p.Server, "Administrador") {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeStore) RecentPayments(limit int, adminOnly bool) ([]models.Payment, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	var out []models.Payment
	for i := len(f.payments) - 1; i >= 0 && len(out) < limit; i-- {
		p := f.payments[i]
		if adminOnly && !strings.Contains(p.Server, "Administrador") {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeStore) InsertAudit(a *models.InvoiceAudit) error {
	if err := f.check(); err != nil {
		return err
	}
	f.audits = append(f.audits, *a)
	return nil
}

func (f *fakeStore) PlayersByIP(ip string) ([]string, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	return f.players, nil
}

func (f *fakeStore) SetExchangeRate(value float64) error { return f.check() }

func (f *fakeStore) MonthlyTopCount(month int) (int64, error) {
	if err := f.check(); err != nil {
		return 0, err
	}
	return 0, nil
}

func (f *fakeStore) TopScores(limit int) ([]models.PlayerScore, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	return nil, nil
}

func (f *fakeStore) InsertTopHistory(h *models.TopHistory) error { return f.check() }

// fakeStores is an OpenFunc over a fixed store map, creating stores on
// demand.
type fakeStores struct {
	stores map[tenant.StoreID]*fakeStore
}

func newFakeStores() *fakeStores {
	return &fakeStores{stores: make(map[tenant.StoreID]*fakeStore)}
}

func (f *fakeStores) get(id tenant.StoreID) *fakeStore {
	s, ok := f.stores[id]
	if !ok {
		s = &fakeStore{}
		f.stores[id] = s
	}
	return s
}

func (f *fakeStores) open(id tenant.StoreID) (ledger.Repository, func(), error) {
	s := f.get(id)
	if s.failAll {
		return nil, nil, errStore
	}
	return s, func() {}, nil
}

type fakeGateway struct {
	prefID   string
	prefErr  error
	lastPref gateway.PreferenceRequest

	payment *gateway.Payment
	getErr  error
}

func (f *fakeGateway) CreatePreference(ctx context.Context, pref gateway.PreferenceRequest) (string, error) {
	f.lastPref = pref
	return f.prefID, f.prefErr
}

func (f *fakeGateway) GetPayment(ctx context.Context, id string) (*gateway.Payment, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.payment, nil
}

type fakeScheduler struct {
	tasks []retryqueue.Task
	err   error
}

func (f *fakeScheduler) Schedule(ctx context.Context, task retryqueue.Task, delay time.Duration) error {
	if f.err != nil {
		return f.err
	}
	f.tasks = append(f.tasks, task)
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeStores, *fakeGateway, *fakeScheduler) {
	t.Helper()
	chdirTemp(t)

	stores := newFakeStores()
	gw := &fakeGateway{prefID: "pref-123"}
	sched := &fakeScheduler{}
	svc := NewService(gw, stores.open, sched)
	return svc, stores, gw, sched
}

func settledPayment(username, svname string, svnum, vip, days, months int) *gateway.Payment {
	p := &gateway.Payment{
		ID:           90210,
		Status:       "approved",
		StatusDetail: "accredited",
		Metadata: gateway.Metadata{
			Username: username,
			Days:     days,
			Months:   months,
			Vip:      vip,
			RandomID: "abc123def0",
			Svname:   svname,
			Svnum:    svnum,
		},
	}
	p.Payer.Email = "buyer@example.com"
	p.TransactionDetails.TotalPaidAmount = 2100
	p.TransactionDetails.NetReceivedAmount = 1953.4
	return p
}

func TestCreateInvoice(t *testing.T) {
	rates.Set(1000)
	t.Cleanup(func() { rates.Set(rates.DefaultValue) })

	svc, stores, gw, _ := newTestService(t)

	id, err := svc.CreateInvoice(context.Background(), CreateInvoiceRequest{
		Username: "player1",
		Month:    1,
		Vip:      0,
		Svname:   "ps",
		Server:   0,
	})
	require.NoError(t, err)
	assert.Equal(t, "pref-123", id)

	pref := gw.lastPref
	require.Len(t, pref.Items, 1)
	// 0.22 * 1000 * 2 = 440
	assert.Equal(t, "[PS] PUBLICO Vip x2 (por dos meses) - $440", pref.Items[0].Title)
	assert.Equal(t, float64(440), pref.Items[0].UnitPrice)
	assert.Equal(t, 1, pref.Items[0].Quantity)

	assert.Equal(t, "player1", pref.Metadata.Username)
	assert.Equal(t, 62, pref.Metadata.Days)
	assert.Equal(t, 2, pref.Metadata.Months)
	assert.Equal(t, 2, pref.Metadata.Vip)
	assert.Len(t, pref.Metadata.RandomID, 10)
	assert.Equal(t, "ps", pref.Metadata.Svname)
	assert.Equal(t, 0, pref.Metadata.Svnum)

	audits := stores.get(tenant.PaymentsStore("ps")).audits
	require.Len(t, audits, 1)
	assert.Equal(t, "player1", audits[0].Tag)
	assert.Equal(t, pref.Metadata.RandomID, audits[0].RandomID)
}

func TestCreateInvoiceAdminTier(t *testing.T) {
	svc, _, gw, _ := newTestService(t)

	_, err := svc.CreateInvoice(context.Background(), CreateInvoiceRequest{
		Username: "chief",
		Month:    0,
		Vip:      8,
		Svname:   "gaming",
		Server:   0,
	})
	require.NoError(t, err)

	// gaming admin tier is fixed price and permanent
	assert.Equal(t, "[GG] PUBLICO Administrador (permanente) - $1000", gw.lastPref.Items[0].Title)
	assert.Equal(t, 500, gw.lastPref.Metadata.Vip)
}

func TestCreateInvoiceRejectsBadInput(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	tests := []struct {
		name string
		req  CreateInvoiceRequest
	}{
		{"missing username", CreateInvoiceRequest{Month: 0, Vip: 0, Svname: "ps"}},
		{"tier out of range", CreateInvoiceRequest{Username: "x", Month: 0, Vip: 9, Svname: "ps"}},
		{"duration out of range", CreateInvoiceRequest{Username: "x", Month: 5, Vip: 0, Svname: "ps"}},
		{"unknown tenant", CreateInvoiceRequest{Username: "x", Month: 0, Vip: 0, Svname: "nope"}},
		{"unknown instance", CreateInvoiceRequest{Username: "x", Month: 0, Vip: 0, Svname: "vs", Server: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateInvoice(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestCreateInvoiceGatewayFailure(t *testing.T) {
	svc, stores, gw, _ := newTestService(t)
	gw.prefErr = errors.New("gateway down")

	_, err := svc.CreateInvoice(context.Background(), CreateInvoiceRequest{
		Username: "player1",
		Month:    0,
		Vip:      0,
		Svname:   "ps",
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidRequest)
	assert.Empty(t, stores.get(tenant.PaymentsStore("ps")).audits)
}

func TestNotifyAppliesPurchase(t *testing.T) {
	svc, stores, gw, sched := newTestService(t)
	gw.payment = settledPayment("player1", "ps", 0, 4, 31, 1)

	out, err := svc.Notify(context.Background(), NotifyRequest{PaymentID: "90210", Svname: "ps"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDone, out)
	assert.Empty(t, sched.tasks)

	expectedDue := ledger.AddDays(time.Now(), 31)

	entStore := stores.get(0)
	require.Len(t, entStore.rows, 1)
	assert.Equal(t, "player1", entStore.rows[0].Tag)
	assert.Equal(t, 4, entStore.rows[0].VIP)
	assert.Equal(t, expectedDue, entStore.rows[0].Date)
	assert.Equal(t, "compra", entStore.rows[0].Info)
	assert.Equal(t, "90210", entStore.rows[0].PaymentID)

	billing := stores.get(tenant.PaymentsStore("ps"))
	require.Len(t, billing.payments, 1)
	p := billing.payments[0]
	assert.Equal(t, "90210", p.PaymentID)
	assert.Equal(t, "buyer@example.com", p.Email)
	assert.Equal(t, "[PUBLICO] Vip x4 (1 mes)", p.Server)
	assert.Equal(t, expectedDue, p.DueDate)
	assert.Equal(t, float64(2100), p.TotalAmount)
	assert.Equal(t, 1953.4, p.NetAmount)
}

func TestNotifyGatewayMiss(t *testing.T) {
	svc, _, gw, _ := newTestService(t)
	gw.getErr = errors.New("timeout")

	out, err := svc.Notify(context.Background(), NotifyRequest{PaymentID: "1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, out)
}

func TestNotifyUnsettledPayment(t *testing.T) {
	svc, stores, gw, _ := newTestService(t)
	gw.payment = settledPayment("player1", "ps", 0, 4, 31, 1)
	gw.payment.Status = "pending"

	out, err := svc.Notify(context.Background(), NotifyRequest{PaymentID: "90210"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeComplete, out)
	assert.Empty(t, stores.get(0).rows)
}

func TestNotifyDuplicate(t *testing.T) {
	svc, stores, gw, _ := newTestService(t)
	gw.payment = settledPayment("player1", "ps", 0, 4, 31, 1)
	billing := stores.get(tenant.PaymentsStore("ps"))
	billing.payments = append(billing.payments, models.Payment{PaymentID: "90210"})

	out, err := svc.Notify(context.Background(), NotifyRequest{PaymentID: "90210"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, out)
	assert.Empty(t, stores.get(0).rows)
	assert.Len(t, billing.payments, 1)
}

func TestNotifyInvalidMetadata(t *testing.T) {
	svc, _, gw, _ := newTestService(t)
	gw.payment = settledPayment("player1", "ps", 0, 5, 31, 1) // 5 is not a sold quantity

	_, err := svc.Notify(context.Background(), NotifyRequest{PaymentID: "90210"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestNotifyAdminCredit(t *testing.T) {
	svc, stores, gw, _ := newTestService(t)
	gw.payment = settledPayment("chief", "gaming", 0, 500, 31, 1)

	out, err := svc.Notify(context.Background(), NotifyRequest{PaymentID: "90210"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDone, out)

	// no entitlement row; staff activate admin credits by hand
	assert.Empty(t, stores.get(7).rows)
	billing := stores.get(tenant.PaymentsStore("gaming"))
	require.Len(t, billing.payments, 1)
	assert.Equal(t, "[PUBLICO] Administrador", billing.payments[0].Server)
	assert.Empty(t, billing.payments[0].DueDate)
}

func TestNotifyFailureSchedulesOneRetry(t *testing.T) {
	svc, stores, gw, sched := newTestService(t)
	gw.payment = settledPayment("player1", "tcs", 1, 4, 31, 1)
	stores.get(3).failAll = true

	out, err := svc.Notify(context.Background(), NotifyRequest{PaymentID: "90210", Svname: "tcs", Svnum: 1})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, out)
	require.Len(t, sched.tasks, 1)
	assert.Equal(t, "90210", sched.tasks[0].PaymentID)
	assert.Equal(t, "tcs", sched.tasks[0].Svname)
	assert.Equal(t, 1, sched.tasks[0].Svnum)

	// a replayed notification that fails again must not reschedule
	out, err = svc.Notify(context.Background(), NotifyRequest{PaymentID: "90210", Svname: "tcs", Svnum: 1, Retry: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, out)
	assert.Len(t, sched.tasks, 1)
}

func TestNotifyRecordFailureCompletesWithoutRetry(t *testing.T) {
	svc, stores, gw, sched := newTestService(t)
	gw.payment = settledPayment("player1", "ps", 0, 4, 31, 1)

	billing := stores.get(tenant.PaymentsStore("ps"))
	billing.failInsertPaymentOnce = true

	// The entitlement is applied before the payment record is written, so a
	// record failure must not queue a replay: without the record there is no
	// duplicate marker and the replay would credit the purchase twice.
	out, err := svc.Notify(context.Background(), NotifyRequest{PaymentID: "90210", Svname: "ps"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDone, out)
	assert.Empty(t, sched.tasks)
	assert.Empty(t, billing.payments)

	entStore := stores.get(0)
	require.Len(t, entStore.rows, 1)
	assert.Equal(t, 4, entStore.rows[0].VIP)
	assert.Equal(t, ledger.AddDays(time.Now(), 31), entStore.rows[0].Date)
}

func TestBalance(t *testing.T) {
	svc, stores, _, _ := newTestService(t)
	for _, bt := range tenant.BillingTenants() {
		s := stores.get(bt.Store)
		s.net = 100
		s.gross = 110
	}
	stores.get(2).failAll = true // tcs store down

	rows := svc.Balance(context.Background())
	require.Len(t, rows, len(tenant.BillingTenants())) // 5 tenants + total
	assert.Equal(t, "Patagonia Strike", rows[0].Name)
	assert.Equal(t, float64(100), rows[0].Net)
	assert.Equal(t, float64(10), rows[0].Diff)

	total := rows[len(rows)-1]
	assert.Equal(t, "Total", total.Name)
	assert.Equal(t, float64(500), total.Net)
	assert.Equal(t, float64(550), total.Gross)
	assert.Equal(t, float64(50), total.Diff)
}

func TestPaymentsAccessFiltering(t *testing.T) {
	adminHash, err := bcrypt.GenerateFromPassword([]byte("admin-secret"), bcrypt.MinCost)
	require.NoError(t, err)
	t.Setenv("LEDGER_ADMIN_HASH", string(adminHash))

	svc, stores, _, _ := newTestService(t)
	billing := stores.get(tenant.PaymentsStore("ps"))
	billing.payments = []models.Payment{
		{PaymentID: "1", Month: 3, Server: "[PUBLICO] Vip x4 (1 mes)"},
		{PaymentID: "2", Month: 3, Server: "[PUBLICO] Administrador"},
	}

	full, err := svc.Payments(context.Background(), true, 3, "ps", "admin-secret")
	require.NoError(t, err)
	assert.Len(t, full, 2)

	restricted, err := svc.Payments(context.Background(), true, 3, "ps", "wrong")
	require.NoError(t, err)
	require.Len(t, restricted, 1)
	assert.Equal(t, "2", restricted[0].PaymentID)

	_, err = svc.Payments(context.Background(), true, 13, "ps", "admin-secret")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestVerifyAccess(t *testing.T) {
	adminHash, err := bcrypt.GenerateFromPassword([]byte("admin-secret"), bcrypt.MinCost)
	require.NoError(t, err)
	staffHash, err := bcrypt.GenerateFromPassword([]byte("staff-secret"), bcrypt.MinCost)
	require.NoError(t, err)
	t.Setenv("LEDGER_ADMIN_HASH", string(adminHash))
	t.Setenv("LEDGER_STAFF_HASH", string(staffHash))
	t.Setenv("LEDGER_STAFF_HOSTS", "panel.example.com")

	assert.True(t, VerifyAccess("admin-secret", ""))
	assert.True(t, VerifyAccess("admin-secret", "https://anywhere.example.org/x"))
	assert.True(t, VerifyAccess("staff-secret", "https://panel.example.com/payments"))
	assert.False(t, VerifyAccess("staff-secret", "https://evil.example.org/"))
	assert.False(t, VerifyAccess("staff-secret", ""))
	assert.False(t, VerifyAccess("wrong", "https://panel.example.com/"))
	assert.False(t, VerifyAccess("", "https://panel.example.com/"))
}

func TestPlayerLookup(t *testing.T) {
	svc, stores, _, _ := newTestService(t)
	stores.get(4).players = []string{"alpha", "beta"}

	names, err := svc.PlayerLookup(context.Background(), "10.0.0.1", "brick", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, names)

	_, err = svc.PlayerLookup(context.Background(), "", "brick", 0)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.PlayerLookup(context.Background(), "10.0.0.1", "nope", 0)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestPaymentMetadata(t *testing.T) {
	svc, _, gw, _ := newTestService(t)
	gw.payment = settledPayment("player1", "ps", 0, 4, 31, 1)

	meta := svc.PaymentMetadata(context.Background(), "90210")
	require.NotNil(t, meta)
	assert.Equal(t, "player1", meta.Username)

	gw.getErr = errors.New("timeout")
	assert.Nil(t, svc.PaymentMetadata(context.Background(), "90210"))
}

// chdirTemp is a stand-in for t.Chdir (added in Go 1.24): it moves the test
// into a temp dir and restores the working directory on cleanup.
func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
