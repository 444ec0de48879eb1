package ledger

import (
	"github.com/ManuelReschke/VipLedger/internal/pkg/database"
	"github.com/ManuelReschke/VipLedger/internal/pkg/tenant"
)

// OpenStore adapts the tenant store factory to the ledger Repository. This is
// the OpenFunc used in production; tests inject fakes instead.
func OpenStore(id tenant.StoreID) (Repository, func(), error) {
	db, release, err := database.Open(id)
	if err != nil {
		return nil, nil, err
	}
	return NewRepository(db), release, nil
}
