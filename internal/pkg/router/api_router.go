package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/VipLedger/app/controllers"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "vip ledger api",
		})
	})

	// checkout and gateway webhook
	api.Post("/createinvoice", controllers.HandleCreateInvoice)
	api.Post("/notify", controllers.HandleNotify)

	// shop helpers
	api.Get("/getblue", controllers.HandleGetRate)
	api.Get("/getusernamelist/:ip/:svname/:svnum", controllers.HandlePlayerLookup)

	// billing panels
	api.Get("/getbalance", controllers.HandleGetBalance)
	api.Get("/getpayments/:month/:n/:svname/:pwd", controllers.HandleGetPayments)
	api.Get("/getpayment/:id", controllers.HandleGetPaymentMetadata)
	api.Get("/getpwd", controllers.HandleVerifyAccess)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
