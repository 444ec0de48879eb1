package invoices

import (
	"context"
	"math"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/VipLedger/internal/pkg/tenant"
)

// BalanceRow is one tenant's month-to-date totals. The json keys are the
// legacy panel's column names.
type BalanceRow struct {
	Name  string  `json:"Name"`
	Net   float64 `json:"Neto"`
	Gross float64 `json:"Bruto"`
	Diff  float64 `json:"Diff"`
}

// Balance aggregates the current month's payment totals across every billing
// tenant and appends a grand total row. A tenant whose store cannot be read
// is logged and excluded rather than failing the whole report.
func (s *Service) Balance(ctx context.Context) []BalanceRow {
	month := int(s.now().Month())
	rows := make([]BalanceRow, 0, len(tenant.BillingTenants())+1)

	var totalNet, totalGross float64
	for _, bt := range tenant.BillingTenants() {
		net, gross, err := s.monthlyTotals(bt.Store, month)
		if err != nil {
			log.Errorf("[Balance] totals for %s (store %d): %v", bt.Name, bt.Store, err)
			continue
		}
		rows = append(rows, BalanceRow{
			Name:  bt.DisplayName,
			Net:   net,
			Gross: gross,
			Diff:  round2(gross - net),
		})
		totalNet += net
		totalGross += gross
	}

	rows = append(rows, BalanceRow{
		Name:  "Total",
		Net:   round2(totalNet),
		Gross: round2(totalGross),
		Diff:  round2(totalGross - totalNet),
	})
	return rows
}

func (s *Service) monthlyTotals(store tenant.StoreID, month int) (float64, float64, error) {
	repo, release, err := s.open(store)
	if err != nil {
		return 0, 0, err
	}
	defer release()

	return repo.MonthlyTotals(month)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
