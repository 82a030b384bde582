package controllers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/UnseenElementz/plex-crm-sub001/app/models"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/apperror"
)

type mockCustomers struct {
	mock.Mock
}

func (m *mockCustomers) GetByID(ctx context.Context, id string) (*models.Customer, error) {
	args := m.Called(id)
	c, _ := args.Get(0).(*models.Customer)
	return c, args.Error(1)
}

type mockPayments struct {
	mock.Mock
}

func (m *mockPayments) ListByCustomer(ctx context.Context, customerID string, offset, limit int) ([]models.Payment, int64, error) {
	args := m.Called(customerID, offset, limit)
	p, _ := args.Get(0).([]models.Payment)
	return p, args.Get(1).(int64), args.Error(2)
}

func newCustomerApp(customers CustomerReader, payments PaymentLister) *fiber.App {
	ctrl := NewCustomerController(customers, payments)
	app := fiber.New()
	app.Get("/api/admin/customers/:id", ctrl.Get)
	app.Get("/api/admin/customers/:id/payments", ctrl.Payments)
	return app
}

func TestCustomerGet(t *testing.T) {
	customers := new(mockCustomers)
	customers.On("GetByID", "c-1").Return(&models.Customer{
		ID: "c-1", Email: "alice@example.com", Plan: models.PlanYearly,
		NextDueDate: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}, nil)

	resp, body := doJSON(t, newCustomerApp(customers, new(mockPayments)), fiber.MethodGet, "/api/admin/customers/c-1", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "alice@example.com", body["email"])
	assert.Equal(t, models.PlanYearly, body["plan"])
}

func TestCustomerGetNotFound(t *testing.T) {
	customers := new(mockCustomers)
	customers.On("GetByID", "missing").Return(nil, gorm.ErrRecordNotFound)

	resp, body := doJSON(t, newCustomerApp(customers, new(mockPayments)), fiber.MethodGet, "/api/admin/customers/missing", "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, apperror.CodeCustomerNotFound, body["error"])
}

func TestCustomerPaymentsPaging(t *testing.T) {
	customers := new(mockCustomers)
	customers.On("GetByID", "c-1").Return(&models.Customer{ID: "c-1"}, nil)
	payments := new(mockPayments)
	payments.On("ListByCustomer", "c-1", 10, 5).Return([]models.Payment{
		{ID: "p-2", CaptureID: "cap_2", Amount: decimal.RequireFromString("12.50"), Currency: "USD"},
		{ID: "p-1", CaptureID: "cap_1", Amount: decimal.RequireFromString("12.50"), Currency: "USD"},
	}, int64(12), nil)

	resp, body := doJSON(t, newCustomerApp(customers, payments), fiber.MethodGet, "/api/admin/customers/c-1/payments?limit=5&offset=10", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 12, body["total"])
	assert.EqualValues(t, 5, body["limit"])
	assert.EqualValues(t, 10, body["offset"])
	list := body["payments"].([]interface{})
	require.Len(t, list, 2)
	assert.Equal(t, "cap_2", list[0].(map[string]interface{})["capture_id"])
	payments.AssertExpectations(t)
}

func TestCustomerPaymentsClampsLimit(t *testing.T) {
	customers := new(mockCustomers)
	customers.On("GetByID", "c-1").Return(&models.Customer{ID: "c-1"}, nil)
	payments := new(mockPayments)
	payments.On("ListByCustomer", "c-1", 0, maxPaymentPageSize).Return(nil, int64(0), nil)

	resp, body := doJSON(t, newCustomerApp(customers, payments), fiber.MethodGet, "/api/admin/customers/c-1/payments?limit=5000&offset=-3", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, []interface{}{}, body["payments"])
	payments.AssertExpectations(t)
}

func TestCustomerPaymentsUnknownCustomer(t *testing.T) {
	customers := new(mockCustomers)
	customers.On("GetByID", "nope").Return(nil, gorm.ErrRecordNotFound)
	payments := new(mockPayments)

	resp, _ := doJSON(t, newCustomerApp(customers, payments), fiber.MethodGet, "/api/admin/customers/nope/payments", "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	payments.AssertNotCalled(t, "ListByCustomer", mock.Anything, mock.Anything, mock.Anything)
}

func TestCustomerPaymentsStoreDown(t *testing.T) {
	customers := new(mockCustomers)
	customers.On("GetByID", "c-1").Return(nil, errors.New("dial tcp 127.0.0.1:3306: connect: connection refused"))

	resp, body := doJSON(t, newCustomerApp(customers, new(mockPayments)), fiber.MethodGet, "/api/admin/customers/c-1/payments", "")
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, apperror.CodeStoreUnavailable, body["error"])
}
