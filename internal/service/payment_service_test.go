package service

import (
	"errors"
	"testing"

	"restaurant-backend/internal/model"
	"restaurant-backend/internal/permission"
	"restaurant-backend/pkg/apperror"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordPayment_FullPaymentMarksPaid(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice("100")

	p, err := f.pay(inv.ID, "100")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCompleted, p.Status)
	require.NotNil(t, p.ProcessedBy)
	assert.Equal(t, f.root.ID, *p.ProcessedBy)

	assert.Equal(t, model.InvoicePaid, f.reload(inv.ID).Status)
	assert.Equal(t, 1, f.notifier.count(EventInvoicePaid))
	ev, ok := f.notifier.last(EventPaymentRecorded)
	require.True(t, ok)
	require.NotNil(t, ev.scope.RestaurantID)
	assert.Equal(t, f.restaurant.ID, *ev.scope.RestaurantID)

	_, err = f.pay(inv.ID, "1")
	assert.Equal(t, apperror.KindAmountExceedsBalance, apperror.KindOf(err))

	payments, err := f.payments.ListByInvoice(f.ctx, f.root, inv.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestRecordPayment_PartialStaysPending(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice("100")

	_, err := f.pay(inv.ID, "40")
	require.NoError(t, err)
	_, err = f.pay(inv.ID, "60.01")
	assert.True(t, errors.Is(err, apperror.ErrAmountExceedsBalance))

	bal, err := f.invoices.Balance(f.ctx, f.root, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoicePending, bal.Status)
	requireDecimal(t, "40", bal.Paid)
	requireDecimal(t, "60", bal.Balance)

	_, err = f.pay(inv.ID, "60")
	require.NoError(t, err)
	assert.Equal(t, model.InvoicePaid, f.reload(inv.ID).Status)
}

func TestRecordPayment_EveryStatusRespectsBalance(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice("10")

	_, err := f.payments.RecordPayment(f.ctx, f.root, RecordPaymentRequest{
		InvoiceID: inv.ID,
		Amount:    decimal.NewFromInt(500),
		Method:    model.PaymentCreditCard,
		Status:    model.PaymentPending,
	})
	assert.True(t, errors.Is(err, apperror.ErrAmountExceedsBalance))

	p, err := f.payments.RecordPayment(f.ctx, f.root, RecordPaymentRequest{
		InvoiceID: inv.ID,
		Amount:    decimal.NewFromInt(4),
		Method:    model.PaymentCreditCard,
		Status:    model.PaymentPending,
	})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, p.Status)
	assert.Equal(t, model.InvoicePending, f.reload(inv.ID).Status)

	amount := decimal.NewFromInt(11)
	_, err = f.payments.UpdatePayment(f.ctx, f.root, p.ID, UpdatePaymentRequest{Amount: &amount})
	assert.True(t, errors.Is(err, apperror.ErrAmountExceedsBalance))

	_, err = f.pay(inv.ID, "10")
	require.NoError(t, err)
	for _, status := range []model.PaymentStatus{model.PaymentPending, model.PaymentFailed} {
		_, err = f.payments.RecordPayment(f.ctx, f.root, RecordPaymentRequest{
			InvoiceID: inv.ID,
			Amount:    decimal.NewFromInt(1),
			Method:    model.PaymentCash,
			Status:    status,
		})
		assert.True(t, errors.Is(err, apperror.ErrAmountExceedsBalance), string(status))
	}
}

func TestRecordPayment_Validation(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice("10")

	_, err := f.pay(inv.ID, "0")
	assert.True(t, errors.Is(err, apperror.ErrInvalid))

	_, err = f.payments.RecordPayment(f.ctx, f.root, RecordPaymentRequest{
		InvoiceID: inv.ID,
		Amount:    decimal.NewFromInt(1),
		Method:    "barter",
	})
	assert.True(t, errors.Is(err, apperror.ErrInvalid))
}

func TestUpdatePayment_StatusChangeUnpaysInvoice(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice("50")
	p, err := f.pay(inv.ID, "50")
	require.NoError(t, err)
	require.Equal(t, model.InvoicePaid, f.reload(inv.ID).Status)

	refunded := model.PaymentRefunded
	_, err = f.payments.UpdatePayment(f.ctx, f.root, p.ID, UpdatePaymentRequest{Status: &refunded})
	require.NoError(t, err)
	assert.Equal(t, model.InvoicePending, f.reload(inv.ID).Status)

	completed := model.PaymentCompleted
	_, err = f.payments.UpdatePayment(f.ctx, f.root, p.ID, UpdatePaymentRequest{Status: &completed})
	require.NoError(t, err)
	assert.Equal(t, model.InvoicePaid, f.reload(inv.ID).Status)
}

func TestUpdatePayment_ExcludesOwnAmount(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice("100")
	p, err := f.pay(inv.ID, "70")
	require.NoError(t, err)

	amount := decimal.NewFromInt(100)
	_, err = f.payments.UpdatePayment(f.ctx, f.root, p.ID, UpdatePaymentRequest{Amount: &amount})
	require.NoError(t, err)

	amount = decimal.NewFromInt(101)
	_, err = f.payments.UpdatePayment(f.ctx, f.root, p.ID, UpdatePaymentRequest{Amount: &amount})
	assert.True(t, errors.Is(err, apperror.ErrAmountExceedsBalance))
}

func TestDeletePayment(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice("10")

	completed, err := f.pay(inv.ID, "5")
	require.NoError(t, err)
	err = f.payments.DeletePayment(f.ctx, f.root, completed.ID)
	assert.True(t, errors.Is(err, apperror.ErrInvalidState))

	failed, err := f.payments.RecordPayment(f.ctx, f.root, RecordPaymentRequest{
		InvoiceID: inv.ID,
		Amount:    decimal.NewFromInt(5),
		Method:    model.PaymentCreditCard,
		Status:    model.PaymentFailed,
	})
	require.NoError(t, err)
	require.NoError(t, f.payments.DeletePayment(f.ctx, f.root, failed.ID))

	_, err = f.payments.GetPayment(f.ctx, f.root, failed.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestRecordPayment_ScopeAndPermission(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice("10")

	other := f.newRestaurant(f.company.ID, "Seaside")
	outsider := f.staff(other, permission.PaymentWrite)
	_, err := f.payments.RecordPayment(f.ctx, outsider, RecordPaymentRequest{
		InvoiceID: inv.ID, Amount: decimal.NewFromInt(1), Method: model.PaymentCash,
	})
	assert.True(t, errors.Is(err, apperror.ErrUnauthorized))

	reader := f.staff(f.restaurant, permission.PaymentRead)
	_, err = f.payments.RecordPayment(f.ctx, reader, RecordPaymentRequest{
		InvoiceID: inv.ID, Amount: decimal.NewFromInt(1), Method: model.PaymentCash,
	})
	assert.True(t, errors.Is(err, apperror.ErrForbidden))

	cashier := f.staff(f.restaurant, permission.PaymentWrite)
	_, err = f.payments.RecordPayment(f.ctx, cashier, RecordPaymentRequest{
		InvoiceID: inv.ID, Amount: decimal.NewFromInt(1), Method: model.PaymentCash,
	})
	require.NoError(t, err)
}
