package controllers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/VipLedger/internal/pkg/invoices"
	"github.com/ManuelReschke/VipLedger/internal/pkg/rates"
)

var invoiceService *invoices.Service

// InitInvoiceService installs the shared invoice service. Called once from
// application startup before routes are served.
func InitInvoiceService(svc *invoices.Service) {
	invoiceService = svc
}

// HandleCreateInvoice prices a checkout request and returns the gateway
// preference id the shop redirects the buyer to.
func HandleCreateInvoice(c *fiber.Ctx) error {
	var req invoices.CreateInvoiceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Malformed request body"})
	}

	id, err := invoiceService.CreateInvoice(c.Context(), req)
	if err != nil {
		if errors.Is(err, invoices.ErrInvalidRequest) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
		}
		log.Errorf("[API] create invoice: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to create invoice"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"id": id})
}

// HandleNotify receives gateway webhook deliveries. The response body is the
// outcome string; the gateway only retries non-2xx responses, so handled
// outcomes always answer 200.
func HandleNotify(c *fiber.Ctx) error {
	paymentID := notifiedPaymentID(c)
	if paymentID == "" {
		return c.Status(fiber.StatusBadRequest).SendString("missing payment id")
	}

	req := invoices.NotifyRequest{
		PaymentID: paymentID,
		Svname:    c.Query("svname"),
		Svnum:     c.QueryInt("svnum", 0),
	}
	outcome, err := invoiceService.Notify(c.Context(), req)
	if err != nil {
		if errors.Is(err, invoices.ErrInvalidRequest) {
			return c.Status(fiber.StatusBadRequest).SendString(err.Error())
		}
		log.Errorf("[API] notify %s: %v", paymentID, err)
		return c.Status(fiber.StatusInternalServerError).SendString("internal error")
	}

	return c.Status(fiber.StatusOK).SendString(string(outcome))
}

// notifiedPaymentID extracts the payment id from a webhook delivery. The
// gateway sends either a JSON body with data.id or the id as a query param,
// depending on the notification topic.
func notifiedPaymentID(c *fiber.Ctx) string {
	var body struct {
		Type string `json:"type"`
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.BodyParser(&body); err == nil && body.Data.ID != "" {
		return strings.TrimSpace(body.Data.ID)
	}
	if id := c.Query("data.id"); id != "" {
		return strings.TrimSpace(id)
	}
	return strings.TrimSpace(c.Query("id"))
}

// HandleGetRate returns the cached exchange rate the shops use for price
// previews.
func HandleGetRate(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"value": rates.Value()})
}

// HandlePlayerLookup lists player tags recently seen from the caller's IP on
// one tenant instance, for prefilling the checkout username field.
func HandlePlayerLookup(c *fiber.Ctx) error {
	ip := c.Params("ip")
	svname := c.Params("svname")
	svnum, err := strconv.Atoi(c.Params("svnum"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "svnum must be a number"})
	}

	names, err := invoiceService.PlayerLookup(c.Context(), ip, svname, svnum)
	if err != nil {
		if errors.Is(err, invoices.ErrInvalidRequest) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
		}
		log.Errorf("[API] player lookup: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Lookup failed"})
	}

	return c.Status(fiber.StatusOK).JSON(names)
}

// HandleGetPaymentMetadata returns the gateway metadata of one payment for
// the support panel. Unknown ids answer with null, not an error.
func HandleGetPaymentMetadata(c *fiber.Ctx) error {
	id := c.Params("id")
	meta := invoiceService.PaymentMetadata(c.Context(), id)
	return c.Status(fiber.StatusOK).JSON(meta)
}
