package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/VipLedger/internal/pkg/env"
	"github.com/ManuelReschke/VipLedger/internal/pkg/ledger"
	"github.com/ManuelReschke/VipLedger/internal/pkg/tenant"
)

const (
	defaultFeedURL  = "https://api.bluelytics.com.ar/v2/latest"
	refreshInterval = 24 * time.Hour
	rateLogFile     = "dolar.txt"
)

// Updater refreshes the process-wide rate value from the public feed and
// mirrors it into every tenant store for external consumers.
type Updater struct {
	FeedURL    string
	HTTPClient *http.Client

	open   ledger.OpenFunc
	stores func() []tenant.StoreID

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

type feedResponse struct {
	Blue struct {
		ValueSell float64 `json:"value_sell"`
	} `json:"blue"`
}

// NewUpdater creates a rate updater over the given store opener and store
// list source.
func NewUpdater(open ledger.OpenFunc, stores func() []tenant.StoreID) *Updater {
	return &Updater{
		FeedURL: env.GetEnv("RATE_FEED_URL", defaultFeedURL),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		open:   open,
		stores: stores,
		stopCh: make(chan struct{}),
	}
}

// Refresh fetches the current blue sell value, stores it process-wide,
// appends it to the rate log and mirrors it into every tenant store.
// Log and mirror failures are non-fatal; only a failed fetch is an error.
func (u *Updater) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.FeedURL, nil)
	if err != nil {
		return err
	}
	resp, err := u.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetching rate feed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rate feed returned status %d", resp.StatusCode)
	}

	var out feedResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("decoding rate feed: %w", err)
	}
	if out.Blue.ValueSell <= 0 {
		return fmt.Errorf("rate feed returned non-positive value %f", out.Blue.ValueSell)
	}

	Set(out.Blue.ValueSell)
	log.Infof("[Rates] refreshed value: %.2f", out.Blue.ValueSell)

	u.appendRateLog(out.Blue.ValueSell)
	u.mirror(out.Blue.ValueSell)
	return nil
}

func (u *Updater) appendRateLog(v float64) {
	f, err := os.OpenFile(rateLogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Errorf("[Rates] opening %s: %v", rateLogFile, err)
		return
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%g\n", v); err != nil {
		log.Errorf("[Rates] writing %s: %v", rateLogFile, err)
	}
}

func (u *Updater) mirror(v float64) {
	for _, id := range u.stores() {
		repo, release, err := u.open(id)
		if err != nil {
			log.Errorf("[Rates] opening store %d for mirror: %v", id, err)
			continue
		}
		if err := repo.SetExchangeRate(v); err != nil {
			log.Errorf("[Rates] mirroring rate into store %d: %v", id, err)
		}
		release()
	}
}

// Start runs an initial refresh and then refreshes on a daily schedule until
// Stop is called.
func (u *Updater) Start() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.running {
		return
	}
	u.running = true
	u.stopCh = make(chan struct{})

	if err := u.Refresh(context.Background()); err != nil {
		log.Errorf("[Rates] initial refresh failed, keeping %.2f: %v", Value(), err)
	}

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-u.stopCh:
				return
			case <-ticker.C:
				if err := u.Refresh(context.Background()); err != nil {
					log.Errorf("[Rates] refresh failed: %v", err)
				}
			}
		}
	}()
}

// Stop halts the refresh schedule.
func (u *Updater) Stop() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.running {
		return
	}
	close(u.stopCh)
	u.running = false
	u.wg.Wait()
}
