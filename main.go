package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/VipLedger/app/controllers"
	"github.com/ManuelReschke/VipLedger/internal/pkg/cache"
	"github.com/ManuelReschke/VipLedger/internal/pkg/database"
	"github.com/ManuelReschke/VipLedger/internal/pkg/env"
	"github.com/ManuelReschke/VipLedger/internal/pkg/gateway"
	"github.com/ManuelReschke/VipLedger/internal/pkg/invoices"
	"github.com/ManuelReschke/VipLedger/internal/pkg/ledger"
	"github.com/ManuelReschke/VipLedger/internal/pkg/rates"
	"github.com/ManuelReschke/VipLedger/internal/pkg/retryqueue"
	"github.com/ManuelReschke/VipLedger/internal/pkg/rewards"
	"github.com/ManuelReschke/VipLedger/internal/pkg/router"
	"github.com/ManuelReschke/VipLedger/internal/pkg/tenant"
)

func main() {
	app, stopWorkers := NewApplication()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		_ = app.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	stopWorkers()
	if err != nil {
		log.Fatal(err)
	}
}

// NewApplication wires stores, cache, gateway and background workers and
// returns the HTTP app plus a func stopping the workers.
func NewApplication() (*fiber.App, func()) {
	env.SetupEnvFile()
	database.SetupStores()
	if err := database.Migrate(); err != nil {
		log.Fatalf("migrating tenant stores: %v", err)
	}

	if err := tenant.Validate(database.Configured()); err != nil {
		log.Fatalf("tenant mapping: %v", err)
	}

	cache.SetupCache()

	svc := invoices.NewService(gateway.NewClientFromEnv(), ledger.OpenStore, nil)

	queue := retryqueue.NewQueue(func(ctx context.Context, task retryqueue.Task) {
		_, _ = svc.Notify(ctx, invoices.NotifyRequest{
			PaymentID: task.PaymentID,
			Svname:    task.Svname,
			Svnum:     task.Svnum,
			Retry:     true,
		})
	})
	svc.SetRetries(queue)
	controllers.InitInvoiceService(svc)

	updater := rates.NewUpdater(ledger.OpenStore, database.Configured)
	distributor := rewards.NewDistributor(ledger.OpenStore)

	queue.Start()
	updater.Start()
	distributor.Start()

	app := fiber.New(fiber.Config{
		AppName: "VipLedger",
	})
	app.Use(recover.New(), logger.New())

	router.InstallRouter(app)

	return app, func() {
		distributor.Stop()
		updater.Stop()
		queue.Stop()
	}
}
