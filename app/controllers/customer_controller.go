package controllers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/UnseenElementz/plex-crm-sub001/app/models"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/apperror"
)

const (
	defaultPaymentPageSize = 20
	maxPaymentPageSize     = 100
)

// CustomerReader is the part of the customer repository the controller needs.
type CustomerReader interface {
	GetByID(ctx context.Context, id string) (*models.Customer, error)
}

// PaymentLister returns one page of a customer's payments, newest first.
type PaymentLister interface {
	ListByCustomer(ctx context.Context, customerID string, offset, limit int) ([]models.Payment, int64, error)
}

// CustomerController serves customer details and payment history
type CustomerController struct {
	customers CustomerReader
	payments  PaymentLister
}

func NewCustomerController(customers CustomerReader, payments PaymentLister) *CustomerController {
	return &CustomerController{customers: customers, payments: payments}
}

// Get handles GET /api/admin/customers/:id
func (cc *CustomerController) Get(c *fiber.Ctx) error {
	customer, err := cc.customers.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return apperror.Respond(c, apperror.FromStore(err, apperror.CodeCustomerNotFound, "customer"))
	}
	return c.JSON(customer)
}

// Payments handles GET /api/admin/customers/:id/payments?limit=&offset=
func (cc *CustomerController) Payments(c *fiber.Ctx) error {
	ctx := c.UserContext()
	id := c.Params("id")
	if _, err := cc.customers.GetByID(ctx, id); err != nil {
		return apperror.Respond(c, apperror.FromStore(err, apperror.CodeCustomerNotFound, "customer"))
	}

	limit := queryInt(c, "limit", defaultPaymentPageSize, 1, maxPaymentPageSize)
	offset := queryInt(c, "offset", 0, 0, int(^uint(0)>>1))

	payments, total, err := cc.payments.ListByCustomer(ctx, id, offset, limit)
	if err != nil {
		return apperror.Respond(c, apperror.FromStore(err, apperror.CodeNotFound, "payments"))
	}
	if payments == nil {
		payments = []models.Payment{}
	}
	return c.JSON(fiber.Map{
		"customer_id": id,
		"total":       total,
		"limit":       limit,
		"offset":      offset,
		"payments":    payments,
	})
}
