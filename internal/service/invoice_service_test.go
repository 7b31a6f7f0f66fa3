package service

import (
	"errors"
	"testing"
	"time"

	"restaurant-backend/internal/model"
	"restaurant-backend/internal/permission"
	"restaurant-backend/pkg/apperror"
	"restaurant-backend/pkg/pagination"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeLineTotals(t *testing.T) {
	cases := []struct {
		name                    string
		qty, price, disc, tax   string
		wantSubtotal, wantTotal string
	}{
		{"plain", "2", "10", "0", "2", "20", "22"},
		{"discounted", "3", "4.50", "1.50", "0", "12", "12"},
		{"fractional quantity", "0.5", "8", "0", "0.84", "4", "4.84"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sub, total := ComputeLineTotals(
				decimal.RequireFromString(tc.qty),
				decimal.RequireFromString(tc.price),
				decimal.RequireFromString(tc.disc),
				decimal.RequireFromString(tc.tax),
			)
			requireDecimal(t, tc.wantSubtotal, sub)
			requireDecimal(t, tc.wantTotal, total)
		})
	}
}

func TestBalanceNeverNegative(t *testing.T) {
	requireDecimal(t, "0", balance(decimal.NewFromInt(50), decimal.NewFromInt(80)))
	requireDecimal(t, "30", balance(decimal.NewFromInt(80), decimal.NewFromInt(50)))
}

func TestCreateInvoice_EmptyThenAddLine(t *testing.T) {
	f := newFixture(t)

	inv, err := f.invoices.CreateInvoice(f.ctx, f.root, CreateInvoiceRequest{
		RestaurantID: f.restaurant.ID,
		CustomerID:   f.customer.ID,
	})
	require.NoError(t, err)
	requireDecimal(t, "0", inv.Total)
	assert.Equal(t, model.InvoicePending, inv.Status)
	assert.Regexp(t, `^INV-\d{8}-\d{5}$`, inv.Number)

	tax := decimal.NewFromInt(2)
	line, err := f.invoices.AddLine(f.ctx, f.root, inv.ID, InvoiceLineRequest{
		Description: "Steak",
		Quantity:    decimal.NewFromInt(2),
		UnitPrice:   decimal.NewFromInt(10),
		Tax:         &tax,
	})
	require.NoError(t, err)
	requireDecimal(t, "20", line.Subtotal)
	requireDecimal(t, "22", line.Total)

	got := f.reload(inv.ID)
	requireDecimal(t, "20", got.Subtotal)
	requireDecimal(t, "2", got.TaxTotal)
	requireDecimal(t, "22", got.Total)
	assert.Equal(t, 2, f.notifier.count(EventInvoiceUpdated))
}

func TestInvoiceTotalsTrackLines(t *testing.T) {
	f := newFixture(t)
	rate := f.taxRate("VAT", "21")
	inv := f.invoice("100")

	line, err := f.invoices.AddLine(f.ctx, f.root, inv.ID, InvoiceLineRequest{
		TaxRateID: &rate.ID,
		Quantity:  decimal.NewFromInt(1),
		UnitPrice: decimal.NewFromInt(50),
	})
	require.NoError(t, err)
	requireDecimal(t, "10.5", line.Tax)
	requireDecimal(t, "160.5", f.reload(inv.ID).Total)

	_, err = f.invoices.UpdateLine(f.ctx, f.root, line.ID, InvoiceLineRequest{
		TaxRateID: &rate.ID,
		Quantity:  decimal.NewFromInt(2),
		UnitPrice: decimal.NewFromInt(50),
		Discount:  decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	requireDecimal(t, "208.9", f.reload(inv.ID).Total)

	require.NoError(t, f.invoices.DeleteLine(f.ctx, f.root, line.ID))
	got := f.reload(inv.ID)
	requireDecimal(t, "100", got.Total)

	lines, err := f.invoices.ListLines(f.ctx, f.root, inv.ID)
	require.NoError(t, err)
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Total)
	}
	requireDecimal(t, got.Total.String(), sum)
}

func TestRecomputeTotalsIsIdempotent(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice("42.5")

	first, err := f.invoices.RecomputeTotals(f.ctx, f.root, inv.ID)
	require.NoError(t, err)
	second, err := f.invoices.RecomputeTotals(f.ctx, f.root, inv.ID)
	require.NoError(t, err)

	requireDecimal(t, first.Subtotal.String(), second.Subtotal)
	requireDecimal(t, first.TaxTotal.String(), second.TaxTotal)
	requireDecimal(t, first.Total.String(), second.Total)
}

func TestInvoiceLineValidation(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice("10")

	_, err := f.invoices.AddLine(f.ctx, f.root, inv.ID, InvoiceLineRequest{
		Quantity:  decimal.Zero,
		UnitPrice: decimal.NewFromInt(1),
	})
	assert.True(t, errors.Is(err, apperror.ErrInvalid))

	_, err = f.invoices.AddLine(f.ctx, f.root, inv.ID, InvoiceLineRequest{
		Quantity:  decimal.NewFromInt(1),
		UnitPrice: decimal.NewFromInt(5),
		Discount:  decimal.NewFromInt(6),
	})
	assert.True(t, errors.Is(err, apperror.ErrInvalid))

	other := f.newRestaurant(f.company.ID, "Uptown")
	foreign := &model.Product{RestaurantID: other.ID, CategoryID: f.category.ID, Name: "Soup", Price: decimal.NewFromInt(4)}
	require.NoError(t, f.products.Create(f.ctx, foreign))
	_, err = f.invoices.AddLine(f.ctx, f.root, inv.ID, InvoiceLineRequest{
		ProductID: &foreign.ID,
		Quantity:  decimal.NewFromInt(1),
		UnitPrice: decimal.NewFromInt(4),
	})
	assert.True(t, errors.Is(err, apperror.ErrInvalid))
}

func TestLineChangeCannotDropTotalBelowPaid(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice("100")
	_, err := f.pay(inv.ID, "80")
	require.NoError(t, err)

	lines, err := f.invoices.ListLines(f.ctx, f.root, inv.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)

	err = f.invoices.DeleteLine(f.ctx, f.root, lines[0].ID)
	assert.Equal(t, apperror.KindAmountExceedsBalance, apperror.KindOf(err))
	requireDecimal(t, "100", f.reload(inv.ID).Total)
}

func TestDuplicateInvoiceNumberConflicts(t *testing.T) {
	f := newFixture(t)
	req := CreateInvoiceRequest{Number: "A-1", RestaurantID: f.restaurant.ID, CustomerID: f.customer.ID}

	_, err := f.invoices.CreateInvoice(f.ctx, f.root, req)
	require.NoError(t, err)
	_, err = f.invoices.CreateInvoice(f.ctx, f.root, req)
	assert.True(t, errors.Is(err, apperror.ErrConflict))
}

func TestGeneratedInvoiceNumbersAreSequential(t *testing.T) {
	f := newFixture(t)
	a := f.invoice("1")
	b := f.invoice("1")
	assert.NotEqual(t, a.Number, b.Number)
	assert.Equal(t, a.Number[:len(a.Number)-5], b.Number[:len(b.Number)-5])
}

func TestInvoiceUpdateStatus(t *testing.T) {
	f := newFixture(t)

	t.Run("paid is derived, not set", func(t *testing.T) {
		inv := f.invoice("10")
		_, err := f.invoices.UpdateStatus(f.ctx, f.root, inv.ID, model.InvoicePaid)
		assert.True(t, errors.Is(err, apperror.ErrInvalidTransition))
	})

	t.Run("cancel blocked by completed payment", func(t *testing.T) {
		inv := f.invoice("10")
		_, err := f.pay(inv.ID, "5")
		require.NoError(t, err)
		_, err = f.invoices.UpdateStatus(f.ctx, f.root, inv.ID, model.InvoiceCancelled)
		assert.True(t, errors.Is(err, apperror.ErrInvalidState))
	})

	t.Run("cancel then reopen", func(t *testing.T) {
		inv := f.invoice("10")
		got, err := f.invoices.UpdateStatus(f.ctx, f.root, inv.ID, model.InvoiceCancelled)
		require.NoError(t, err)
		assert.Equal(t, model.InvoiceCancelled, got.Status)

		_, err = f.pay(inv.ID, "1")
		assert.True(t, errors.Is(err, apperror.ErrInvalidState))

		got, err = f.invoices.UpdateStatus(f.ctx, f.root, inv.ID, model.InvoicePending)
		require.NoError(t, err)
		assert.Equal(t, model.InvoicePending, got.Status)
	})
}

func TestDeleteInvoiceWithPaymentsConflicts(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice("10")
	_, err := f.pay(inv.ID, "10")
	require.NoError(t, err)

	err = f.invoices.DeleteInvoice(f.ctx, f.root, inv.ID)
	require.True(t, errors.Is(err, apperror.ErrConflict))
	assert.Equal(t, int64(1), apperror.DependentsOf(err))

	empty := f.invoice("5")
	require.NoError(t, f.invoices.DeleteInvoice(f.ctx, f.root, empty.ID))
	_, err = f.invoices.GetInvoice(f.ctx, f.root, empty.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestCreateInvoiceFromOrder(t *testing.T) {
	f := newFixture(t)
	vat := f.taxRate("Reduced", "10")
	f.company.TaxRateID = &vat.ID
	require.NoError(t, f.companies.Update(f.ctx, f.company))

	burger := f.product("Burger", "12", 10, nil)
	order, err := f.orderSvc.CreateOrder(f.ctx, f.root, CreateOrderRequest{
		RestaurantID: f.restaurant.ID,
		CustomerID:   f.customer.ID,
		Lines:        []OrderLineRequest{{ProductID: burger.ID, Quantity: 2}},
	})
	require.NoError(t, err)

	inv, err := f.invoices.CreateFromOrder(f.ctx, f.root, order.ID, CreateInvoiceFromOrderRequest{Notes: "table 4"})
	require.NoError(t, err)
	require.NotNil(t, inv.OrderID)
	assert.Equal(t, order.ID, *inv.OrderID)
	requireDecimal(t, "24", inv.Subtotal)
	requireDecimal(t, "2.4", inv.TaxTotal)
	requireDecimal(t, "26.4", inv.Total)

	err = f.orderSvc.DeleteOrder(f.ctx, f.root, order.ID)
	assert.True(t, errors.Is(err, apperror.ErrConflict))
}

func TestListOverdueAndTenantPinning(t *testing.T) {
	f := newFixture(t)
	past := time.Now().Add(-48 * time.Hour)
	overdue, err := f.invoices.CreateInvoice(f.ctx, f.root, CreateInvoiceRequest{
		RestaurantID: f.restaurant.ID,
		CustomerID:   f.customer.ID,
		DueDate:      &past,
		Lines:        []InvoiceLineRequest{{Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(9)}},
	})
	require.NoError(t, err)
	f.invoice("3")

	other := f.newRestaurant(f.company.ID, "Harbour")
	_, err = f.invoices.CreateInvoice(f.ctx, f.root, CreateInvoiceRequest{RestaurantID: other.ID, CustomerID: f.customer.ID})
	require.NoError(t, err)

	page, err := f.invoices.ListOverdue(f.ctx, f.root, pagination.New(1, 10))
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, overdue.ID, page.Items[0].ID)

	staff := f.staff(f.restaurant, permission.InvoiceRead)
	page, err = f.invoices.ListInvoices(f.ctx, staff, InvoiceQuery{RestaurantID: &other.ID}, pagination.New(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	for _, inv := range page.Items {
		assert.Equal(t, f.restaurant.ID, inv.RestaurantID)
	}
}
