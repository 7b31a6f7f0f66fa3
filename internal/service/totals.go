package service

import (
	"context"
	"fmt"

	"restaurant-backend/internal/model"
	"restaurant-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ComputeLineTotals returns subtotal = quantity*unitPrice - discount and total = subtotal + tax.
func ComputeLineTotals(quantity, unitPrice, discount, tax decimal.Decimal) (subtotal, total decimal.Decimal) {
	subtotal = quantity.Mul(unitPrice).Sub(discount)
	total = subtotal.Add(tax)
	return subtotal, total
}

// taxFor applies a percentage rate to an amount, rounded to the column scale.
func taxFor(amount, percentage decimal.Decimal) decimal.Decimal {
	return amount.Mul(percentage).Div(hundred).Round(4)
}

// TotalsEngine owns invoice recomputation and balance queries. Payment and
// correction services call into it; it never calls back into them.
type TotalsEngine struct {
	invoices repository.InvoiceRepository
	payments repository.PaymentRepository
}

func NewTotalsEngine(invoices repository.InvoiceRepository, payments repository.PaymentRepository) *TotalsEngine {
	return &TotalsEngine{invoices: invoices, payments: payments}
}

// RecomputeInvoiceTotals rewrites subtotal, tax_total and total from the
// invoice's lines and returns the refreshed invoice. Running it twice is a no-op.
func (e *TotalsEngine) RecomputeInvoiceTotals(ctx context.Context, invoiceID uuid.UUID) (*model.Invoice, error) {
	lines, err := e.invoices.ListLines(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice lines: %w", err)
	}

	subtotal, taxTotal, total := decimal.Zero, decimal.Zero, decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Subtotal)
		taxTotal = taxTotal.Add(l.Tax)
		total = total.Add(l.Total)
	}

	if err := e.invoices.UpdateTotals(ctx, invoiceID, subtotal, taxTotal, total); err != nil {
		return nil, fmt.Errorf("failed to update invoice totals: %w", err)
	}

	inv, err := e.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, lookupErr(err, "invoice", invoiceID)
	}
	return inv, nil
}

// CompletedSum adds up completed payments, skipping exclude when given.
func (e *TotalsEngine) CompletedSum(ctx context.Context, invoiceID uuid.UUID, exclude *uuid.UUID) (decimal.Decimal, error) {
	payments, err := e.payments.ListByInvoice(ctx, invoiceID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load payments: %w", err)
	}
	sum := decimal.Zero
	for _, p := range payments {
		if p.Status != model.PaymentCompleted {
			continue
		}
		if exclude != nil && p.ID == *exclude {
			continue
		}
		sum = sum.Add(p.Amount)
	}
	return sum, nil
}

// OutstandingBalance is max(0, total - completed payments).
func (e *TotalsEngine) OutstandingBalance(ctx context.Context, invoiceID uuid.UUID) (decimal.Decimal, error) {
	inv, err := e.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		return decimal.Zero, lookupErr(err, "invoice", invoiceID)
	}
	paid, err := e.CompletedSum(ctx, invoiceID, nil)
	if err != nil {
		return decimal.Zero, err
	}
	return balance(inv.Total, paid), nil
}

func balance(total, paid decimal.Decimal) decimal.Decimal {
	return decimal.Max(decimal.Zero, total.Sub(paid))
}

// SyncPaidStatus moves an open invoice between pending and paid to match
// its completed payments. Cancelled and voided invoices are left alone.
// It reports whether the status changed.
func (e *TotalsEngine) SyncPaidStatus(ctx context.Context, inv *model.Invoice) (bool, error) {
	if inv.Status.Closed() {
		return false, nil
	}
	paid, err := e.CompletedSum(ctx, inv.ID, nil)
	if err != nil {
		return false, err
	}

	target := model.InvoicePending
	if inv.Total.IsPositive() && paid.GreaterThanOrEqual(inv.Total) {
		target = model.InvoicePaid
	}
	if inv.Status == target {
		return false, nil
	}

	inv.Status = target
	if err := e.invoices.Update(ctx, inv); err != nil {
		return false, fmt.Errorf("failed to update invoice status: %w", err)
	}
	return true, nil
}
