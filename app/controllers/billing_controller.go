package controllers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/VipLedger/internal/pkg/invoices"
)

// HandleGetBalance returns the current month's totals per billing tenant
// plus a grand total row. Requires a full-access credential.
func HandleGetBalance(c *fiber.Ctx) error {
	if invoices.ResolveAccess(c.Query("pwd")) != invoices.AccessFull {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid credential"})
	}
	return c.Status(fiber.StatusOK).JSON(invoiceService.Balance(c.Context()))
}

// HandleGetPayments lists a tenant's payment history. The month path segment
// switches between a month view and a recency view; restricted credentials
// only see administrative purchases.
func HandleGetPayments(c *fiber.Ctx) error {
	byMonth := c.Params("month") == "1"
	n, err := strconv.Atoi(c.Params("n"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "selector must be a number"})
	}

	payments, err := invoiceService.Payments(c.Context(), byMonth, n, c.Params("svname"), c.Params("pwd"))
	if err != nil {
		if errors.Is(err, invoices.ErrInvalidRequest) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
		}
		log.Errorf("[API] list payments: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to list payments"})
	}

	return c.Status(fiber.StatusOK).JSON(payments)
}

// HandleVerifyAccess answers the web panels' login probe. Staff credentials
// are only accepted from allow-listed panel hosts.
func HandleVerifyAccess(c *fiber.Ctx) error {
	ok := invoices.VerifyAccess(c.Query("pwd"), c.Get(fiber.HeaderReferer))
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"ok": false})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}
