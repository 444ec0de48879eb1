package ledger

import (
	"fmt"
	"time"

	"github.com/ManuelReschke/VipLedger/app/models"
	"github.com/ManuelReschke/VipLedger/internal/pkg/tenant"
)

// OpenFunc acquires a Repository for one tenant store together with its
// release func. The release func must be called on every exit path.
type OpenFunc func(tenant.StoreID) (Repository, func(), error)

// Grant is one purchased or awarded entitlement to merge into a player's rows.
type Grant struct {
	Tag       string
	Tier      int // tier quantity as written to the VIP column (2..20)
	Days      int
	Info      string // provenance, e.g. "compra" or "top_knife"
	PaymentID string
}

// Engine applies grants to the entitlement table of a tenant store.
//
// Tiers are mutually exclusive per player: only the highest tier counts down
// by wall-clock date, lower tiers bank whole days in a counter and activate
// once every higher tier has lapsed. Expiry and promotion both happen lazily
// on the next grant; between grants the game servers decrement active rows
// themselves.
type Engine struct {
	open OpenFunc
	now  func() time.Time
}

// NewEngine creates a merge engine over the given store opener.
func NewEngine(open OpenFunc) *Engine {
	return &Engine{open: open, now: time.Now}
}

// Apply merges one grant into the player's entitlement rows. It returns the
// row that held the dated slot before the merge (nil when none); the snapshot
// is taken under the same per-player lock as the mutation, so callers get a
// consistent prior state for bookkeeping.
//
// The algorithm is two-phase: mutate first (stack under an exact tier match,
// queue beneath a strictly higher tier, or demote the currently dated row and
// insert the new tier as active), then re-read all rows and promote the
// highest queued row if nothing holds the dated slot. Any store error aborts
// the merge and leaves rows in their last committed state; the caller decides
// whether to retry the whole notification.
func (e *Engine) Apply(store tenant.StoreID, g Grant) (*models.VipRow, error) {
	unlock := lockPlayer(store, g.Tag)
	defer unlock()

	repo, release, err := e.open(store)
	if err != nil {
		return nil, fmt.Errorf("merge %s: %w", g.Tag, err)
	}
	defer release()

	now := e.now()

	before, err := repo.RowsForPlayer(g.Tag)
	if err != nil {
		return nil, fmt.Errorf("merge %s: %w", g.Tag, err)
	}

	var prior *models.VipRow
	for i := range before {
		if before[i].Active() {
			prior = &before[i]
			break
		}
	}

	exact, err := repo.RowsForPlayerTier(g.Tag, g.Tier)
	if err != nil {
		return nil, fmt.Errorf("merge %s: %w", g.Tag, err)
	}

	if len(exact) > 0 {
		// Same tier purchased again: stack the time as a fresh queued row.
		if err := repo.InsertRow(e.queuedRow(g)); err != nil {
			return nil, fmt.Errorf("merge %s: %w", g.Tag, err)
		}
	} else {
		higher, err := repo.HigherTierRows(g.Tag, g.Tier)
		if err != nil {
			return nil, fmt.Errorf("merge %s: %w", g.Tag, err)
		}

		if len(higher) > 0 {
			// A higher tier exists; the purchase waits beneath it.
			if err := repo.InsertRow(e.queuedRow(g)); err != nil {
				return nil, fmt.Errorf("merge %s: %w", g.Tag, err)
			}
		} else {
			// New highest tier. Demote whatever currently holds the dated
			// slot back into a day counter, then take over.
			active, err := repo.ActiveRow(g.Tag)
			if err != nil {
				return nil, fmt.Errorf("merge %s: %w", g.Tag, err)
			}
			if active != nil {
				left, err := DaysUntil(now, active.Date)
				if err != nil {
					return nil, fmt.Errorf("merge %s: %w", g.Tag, err)
				}
				if newDays := left + 1; newDays > 0 {
					if err := repo.DemoteRow(active.ID, newDays); err != nil {
						return nil, fmt.Errorf("merge %s: %w", g.Tag, err)
					}
				} else {
					if err := repo.DeleteRow(active.ID); err != nil {
						return nil, fmt.Errorf("merge %s: %w", g.Tag, err)
					}
				}
			}

			row := e.queuedRow(g)
			row.Date = AddDays(now, g.Days)
			row.Days = 0
			if err := repo.InsertRow(row); err != nil {
				return nil, fmt.Errorf("merge %s: %w", g.Tag, err)
			}
		}
	}

	// Phase two: the promotion decision depends on the full post-mutation row
	// set, so re-read instead of reasoning from the branch taken above.
	after, err := repo.RowsForPlayer(g.Tag)
	if err != nil {
		return nil, fmt.Errorf("merge %s: %w", g.Tag, err)
	}

	if len(after) > 0 && noneActive(after) {
		top, err := repo.HighestQueuedRow(g.Tag)
		if err != nil {
			return nil, fmt.Errorf("merge %s: %w", g.Tag, err)
		}
		if top != nil {
			if err := repo.PromoteRow(top.ID, AddDays(now, top.Days)); err != nil {
				return nil, fmt.Errorf("merge %s: %w", g.Tag, err)
			}
		}
	}

	appendPlayerAudit(g.Tag, before, after)
	return prior, nil
}

func (e *Engine) queuedRow(g Grant) *models.VipRow {
	return &models.VipRow{
		Tag:       g.Tag,
		VIP:       g.Tier,
		Date:      "",
		Days:      g.Days,
		Info:      g.Info,
		PaymentID: g.PaymentID,
	}
}

func noneActive(rows []models.VipRow) bool {
	for _, r := range rows {
		if r.Active() {
			return false
		}
	}
	return true
}
