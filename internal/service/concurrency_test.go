package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"restaurant-backend/internal/model"
	"restaurant-backend/internal/repository"
	"restaurant-backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// barrier holds the first parties callers until all of them have arrived,
// so every caller finishes its unlocked read before any transaction starts.
type barrier struct {
	parties int32
	arrived int32
	release chan struct{}
}

func newBarrier(parties int) *barrier {
	return &barrier{parties: int32(parties), release: make(chan struct{})}
}

func (b *barrier) arrive() {
	n := atomic.AddInt32(&b.arrived, 1)
	switch {
	case n > b.parties:
		return
	case n == b.parties:
		close(b.release)
		return
	}
	select {
	case <-b.release:
	case <-time.After(2 * time.Second):
	}
}

type syncedOrders struct {
	repository.OrderRepository
	gate *barrier
}

func (r syncedOrders) FindLineByID(ctx context.Context, id uuid.UUID) (*model.OrderLine, error) {
	line, err := r.OrderRepository.FindLineByID(ctx, id)
	if !repository.InTx(ctx) {
		r.gate.arrive()
	}
	return line, err
}

type syncedInvoices struct {
	repository.InvoiceRepository
	gate *barrier
}

func (r syncedInvoices) FindByID(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	inv, err := r.InvoiceRepository.FindByID(ctx, id)
	if !repository.InTx(ctx) {
		r.gate.arrive()
	}
	return inv, err
}

func (f *fixture) racingOrders(parties int) OrderService {
	orders := syncedOrders{OrderRepository: f.orders, gate: newBarrier(parties)}
	return NewOrderService(orders, f.products, f.tables, f.restaurants, f.users, f.auditRepo, f.tx, f.guard, nil, f.notifier, nil)
}

func (f *fixture) racingPayments(parties int) PaymentService {
	invoices := syncedInvoices{InvoiceRepository: f.invoiceRepo, gate: newBarrier(parties)}
	return NewPaymentService(invoices, f.payRepo, f.auditRepo, f.tx, f.engine, f.guard, nil, f.notifier, nil)
}

// race runs every fn at once and returns their errors in order.
func race(fns ...func() error) []error {
	errs := make([]error, len(fns))
	var wg sync.WaitGroup
	for i, fn := range fns {
		wg.Add(1)
		go func(i int, fn func() error) {
			defer wg.Done()
			errs[i] = fn()
		}(i, fn)
	}
	wg.Wait()
	return errs
}

func TestConcurrentLineDeletesRestoreStockOnce(t *testing.T) {
	f := newFixture(t)
	soup := f.product("Soup", "6", 10, nil)
	o := f.order(OrderLineRequest{ProductID: soup.ID, Quantity: 4})
	require.Equal(t, 6, f.stockOf(soup.ID))
	lines, err := f.orders.ListLines(f.ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)

	svc := f.racingOrders(2)
	del := func() error { return svc.DeleteLine(f.ctx, f.root, lines[0].ID) }
	errs := race(del, del)

	var failed int
	for _, err := range errs {
		if err != nil {
			failed++
			assert.True(t, errors.Is(err, apperror.ErrNotFound), err.Error())
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 10, f.stockOf(soup.ID))
}

func TestConcurrentLineUpdateAndDeleteKeepStock(t *testing.T) {
	f := newFixture(t)
	soup := f.product("Soup", "6", 10, nil)
	o := f.order(OrderLineRequest{ProductID: soup.ID, Quantity: 4})
	lines, err := f.orders.ListLines(f.ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	lineID := lines[0].ID

	svc := f.racingOrders(2)
	qty := 6
	errs := race(
		func() error { return svc.DeleteLine(f.ctx, f.root, lineID) },
		func() error {
			_, err := svc.UpdateLine(f.ctx, f.root, lineID, UpdateOrderLineRequest{Quantity: &qty})
			return err
		},
	)

	require.NoError(t, errs[0])
	if errs[1] != nil {
		assert.True(t, errors.Is(errs[1], apperror.ErrNotFound), errs[1].Error())
	}
	assert.Equal(t, 10, f.stockOf(soup.ID))

	got, err := f.orderSvc.GetOrder(f.ctx, f.root, o.ID)
	require.NoError(t, err)
	requireDecimal(t, "0", got.Total)
}

func TestConcurrentPaymentsNeverExceedTotal(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice("100")

	svc := f.racingPayments(2)
	pay := func() error {
		_, err := svc.RecordPayment(f.ctx, f.root, RecordPaymentRequest{
			InvoiceID: inv.ID,
			Amount:    decimal.NewFromInt(60),
			Method:    model.PaymentCash,
		})
		return err
	}
	errs := race(pay, pay)

	var failed int
	for _, err := range errs {
		if err != nil {
			failed++
			assert.True(t, errors.Is(err, apperror.ErrAmountExceedsBalance), err.Error())
		}
	}
	assert.Equal(t, 1, failed)

	paid, err := f.engine.CompletedSum(f.ctx, inv.ID, nil)
	require.NoError(t, err)
	requireDecimal(t, "60", paid)
	assert.Equal(t, model.InvoicePending, f.reload(inv.ID).Status)
}

func TestConcurrentCompleteAndDeletePayment(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice("100")
	pending, err := f.payments.RecordPayment(f.ctx, f.root, RecordPaymentRequest{
		InvoiceID: inv.ID,
		Amount:    decimal.NewFromInt(50),
		Method:    model.PaymentCreditCard,
		Status:    model.PaymentPending,
	})
	require.NoError(t, err)

	svc := f.racingPayments(2)
	completed := model.PaymentCompleted
	errs := race(
		func() error { return svc.DeletePayment(f.ctx, f.root, pending.ID) },
		func() error {
			_, err := svc.UpdatePayment(f.ctx, f.root, pending.ID, UpdatePaymentRequest{Status: &completed})
			return err
		},
	)

	got, err := f.payRepo.FindByID(f.ctx, pending.ID)
	if err == nil {
		// the update won; a completed payment must survive the delete
		assert.Equal(t, model.PaymentCompleted, got.Status)
		assert.True(t, errors.Is(errs[0], apperror.ErrInvalidState))
		assert.NoError(t, errs[1])
		return
	}
	assert.NoError(t, errs[0])
	assert.True(t, errors.Is(errs[1], apperror.ErrNotFound))
	paid, err := f.engine.CompletedSum(f.ctx, inv.ID, nil)
	require.NoError(t, err)
	requireDecimal(t, "0", paid)
}
