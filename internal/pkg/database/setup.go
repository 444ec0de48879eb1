package database

import (
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/ManuelReschke/VipLedger/app/models"
	"github.com/ManuelReschke/VipLedger/internal/pkg/env"
	"github.com/ManuelReschke/VipLedger/internal/pkg/tenant"
)

// maxStores bounds the STORE_<n>_DSN scan at startup.
const maxStores = 16

var dsns map[tenant.StoreID]string

// SetupStores loads the per-tenant store DSNs from the environment. Each
// configured store is one isolated MySQL database reached by its numeric id,
// e.g. STORE_0_DSN, STORE_1_DSN. Panics when nothing is configured because
// every request path depends on at least one store.
func SetupStores() {
	dsns = make(map[tenant.StoreID]string)
	for i := 0; i < maxStores; i++ {
		key := fmt.Sprintf("STORE_%d_DSN", i)
		if dsn := env.GetEnv(key, ""); dsn != "" {
			dsns[tenant.StoreID(i)] = dsn
		}
	}
	if len(dsns) == 0 {
		panic("no tenant stores configured (STORE_<n>_DSN)")
	}
	log.Infof("[Database] %d tenant stores configured", len(dsns))
}

// Configured returns the ids of all configured stores.
func Configured() []tenant.StoreID {
	out := make([]tenant.StoreID, 0, len(dsns))
	for id := range dsns {
		out = append(out, id)
	}
	return out
}

// Open acquires a short-lived, exclusively-owned connection to one tenant
// store. The returned release func must run on every exit path; it closes the
// underlying connection. Connections are deliberately not pooled across
// logical operations on the reconciliation path.
func Open(id tenant.StoreID) (*gorm.DB, func(), error) {
	dsn, ok := dsns[id]
	if !ok {
		return nil, nil, fmt.Errorf("store %d is not configured", id)
	}

	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       dsn,
		DefaultStringSize:         256,  // default size for string fields
		DisableDatetimePrecision:  true, // datetime precision not supported before MySQL 5.6
		DontSupportRenameIndex:    true, // rename index not supported before MySQL 5.7, MariaDB
		DontSupportRenameColumn:   true, // rename column not supported before MySQL 8, MariaDB
		SkipInitializeWithVersion: false,
	}), &gorm.Config{})
	if err != nil {
		return nil, nil, fmt.Errorf("open store %d: %w", id, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("open store %d: %w", id, err)
	}
	sqlDB.SetMaxOpenConns(1)

	release := func() {
		if err := sqlDB.Close(); err != nil {
			log.Errorf("[Database] closing store %d: %v", id, err)
		}
	}
	return db, release, nil
}

// Migrate creates the ledger tables on every configured store. The legacy
// deployment created them by hand per server; keeping this at startup means a
// freshly provisioned tenant store is usable without manual steps.
func Migrate() error {
	for id := range dsns {
		db, release, err := Open(id)
		if err != nil {
			return err
		}
		err = db.AutoMigrate(
			&models.VipRow{},
			&models.Payment{},
			&models.InvoiceAudit{},
			&models.ExchangeRate{},
			&models.TopHistory{},
		)
		release()
		if err != nil {
			return fmt.Errorf("migrate store %d: %w", id, err)
		}
	}
	return nil
}
