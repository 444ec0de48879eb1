package ledger

import (
	"fmt"
	"sync"

	"github.com/ManuelReschke/VipLedger/internal/pkg/tenant"
)

// The merge is a multi-step read-modify-write sequence and is not safe under
// concurrent execution for the same player. Merges on the same (store, player)
// pair are serialized here; different players and stores run in parallel.
var playerLocks sync.Map // "store:tag" -> *sync.Mutex

func lockPlayer(store tenant.StoreID, tag string) func() {
	key := fmt.Sprintf("%d:%s", store, tag)
	v, _ := playerLocks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
