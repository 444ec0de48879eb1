package rewards

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/VipLedger/app/models"
	"github.com/ManuelReschke/VipLedger/internal/pkg/ledger"
	"github.com/ManuelReschke/VipLedger/internal/pkg/tenant"
)

// tierByRank maps a top-8 knife ranking to the entitlement quantity the
// player earns for the month. Rank 1 earns the top tier.
var tierByRank = []int{20, 15, 10, 8, 6, 4, 3, 2}

const (
	snapshotSize = 50
	rewardDays   = 31
	// rewardPaymentID marks ledger rows granted by rewards rather than
	// purchases.
	rewardPaymentID = "0"
	rewardInfo      = "top_knife"
)

// Distributor runs the monthly top-knife rewards across every entitlement
// store: it archives each store's top-50 score snapshot and grants the top 8
// players a tiered entitlement for the month.
type Distributor struct {
	open   ledger.OpenFunc
	engine *ledger.Engine
	stores func() []tenant.StoreID
	now    func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewDistributor creates a rewards distributor over the given store opener.
func NewDistributor(open ledger.OpenFunc) *Distributor {
	return &Distributor{
		open:   open,
		engine: ledger.NewEngine(open),
		stores: tenant.EntitlementStores,
		now:    time.Now,
	}
}

// Distribute runs one rewards pass over every entitlement store. A store that
// already carries this month's snapshot is skipped, so the pass is safe to
// repeat within a month. Per-store failures are logged and do not stop the
// sweep.
func (d *Distributor) Distribute(ctx context.Context) {
	month := int(d.now().Month())
	for _, store := range d.stores() {
		if err := ctx.Err(); err != nil {
			return
		}
		if err := d.distributeStore(store, month); err != nil {
			log.Errorf("[Rewards] store %d: %v", store, err)
		}
	}
}

func (d *Distributor) distributeStore(store tenant.StoreID, month int) error {
	scores, err := d.snapshot(store, month)
	if err != nil || scores == nil {
		return err
	}

	for rank, score := range scores {
		if rank >= len(tierByRank) {
			break
		}
		grant := ledger.Grant{
			Tag:       score.Tag,
			Tier:      tierByRank[rank],
			Days:      rewardDays,
			Info:      rewardInfo,
			PaymentID: rewardPaymentID,
		}
		if _, err := d.engine.Apply(store, grant); err != nil {
			return fmt.Errorf("granting rank %d to %s: %w", rank+1, score.Tag, err)
		}
		log.Infof("[Rewards] store %d rank %d: %s earns x%d", store, rank+1, score.Tag, tierByRank[rank])
	}
	return nil
}

// snapshot archives the store's top scores for the month and returns them.
// A nil, nil return means the month was already distributed on this store.
func (d *Distributor) snapshot(store tenant.StoreID, month int) ([]models.PlayerScore, error) {
	repo, release, err := d.open(store)
	if err != nil {
		return nil, err
	}
	defer release()

	count, err := repo.MonthlyTopCount(month)
	if err != nil {
		return nil, fmt.Errorf("checking month %d snapshot: %w", month, err)
	}
	if count > 0 {
		return nil, nil
	}

	scores, err := repo.TopScores(snapshotSize)
	if err != nil {
		return nil, fmt.Errorf("reading top scores: %w", err)
	}

	for i, score := range scores {
		h := &models.TopHistory{
			Tag:         score.Tag,
			Team:        score.Team,
			KnifePoints: score.KnifePoints,
			TopID:       i + 1,
			Month:       month,
		}
		if err := repo.InsertTopHistory(h); err != nil {
			return nil, fmt.Errorf("archiving rank %d: %w", i+1, err)
		}
	}
	return scores, nil
}

// Start launches the daily sweep. The first day of a month is when new
// snapshots land; the per-store dedupe makes every other day a no-op.
func (d *Distributor) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	d.running = true
	d.stopCh = make(chan struct{})

	d.wg.Add(1)
	go d.loop()
	log.Info("[Rewards] distributor started")
}

// Stop halts the sweep and waits for an in-flight pass to finish.
func (d *Distributor) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.stopCh)
	d.mu.Unlock()

	d.wg.Wait()
	log.Info("[Rewards] distributor stopped")
}

func (d *Distributor) loop() {
	defer d.wg.Done()

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			d.Distribute(ctx)
			cancel()
		}
	}
}
