package service

import (
	"context"
	"fmt"
	"time"

	"restaurant-backend/internal/model"
	"restaurant-backend/internal/permission"
	"restaurant-backend/internal/repository"
	"restaurant-backend/pkg/apperror"
	"restaurant-backend/pkg/pagination"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// --- DTOs ---

type InvoiceLineRequest struct {
	ProductID   *uuid.UUID      `json:"product_id"`
	TaxRateID   *uuid.UUID      `json:"tax_rate_id"`
	Description string          `json:"description" validate:"max=255"`
	Quantity    decimal.Decimal `json:"quantity" validate:"gt=0"`
	UnitPrice   decimal.Decimal `json:"unit_price" validate:"gte=0"`
	Discount    decimal.Decimal `json:"discount" validate:"gte=0"`
	// Tax overrides the amount derived from the tax rate when set.
	Tax *decimal.Decimal `json:"tax"`
}

type CreateInvoiceRequest struct {
	Number       string               `json:"number" validate:"max=30"`
	RestaurantID uuid.UUID            `json:"restaurant_id" validate:"uuid_required"`
	CustomerID   uuid.UUID            `json:"customer_id" validate:"uuid_required"`
	OrderID      *uuid.UUID           `json:"order_id"`
	Type         model.InvoiceType    `json:"type"`
	Date         *time.Time           `json:"date"`
	DueDate      *time.Time           `json:"due_date"`
	Notes        string               `json:"notes"`
	Lines        []InvoiceLineRequest `json:"lines" validate:"dive"`
}

type CreateInvoiceFromOrderRequest struct {
	DueDate *time.Time `json:"due_date"`
	Notes   string     `json:"notes"`
}

type UpdateInvoiceRequest struct {
	DueDate *time.Time `json:"due_date"`
	Notes   *string    `json:"notes"`
}

type InvoiceQuery struct {
	RestaurantID *uuid.UUID
	CompanyID    *uuid.UUID
	CustomerID   *uuid.UUID
	Status       string
	Type         string
	From         *time.Time
	To           *time.Time
}

// InvoiceDetail is an invoice with its lines and payment position.
type InvoiceDetail struct {
	model.Invoice
	Paid    decimal.Decimal `json:"paid"`
	Balance decimal.Decimal `json:"balance"`
}

type BalanceResponse struct {
	InvoiceID uuid.UUID           `json:"invoice_id"`
	Status    model.InvoiceStatus `json:"status"`
	Total     decimal.Decimal     `json:"total"`
	Paid      decimal.Decimal     `json:"paid"`
	Balance   decimal.Decimal     `json:"balance"`
}

// --- Interface ---

type InvoiceService interface {
	CreateInvoice(ctx context.Context, actor Actor, req CreateInvoiceRequest) (*model.Invoice, error)
	CreateFromOrder(ctx context.Context, actor Actor, orderID uuid.UUID, req CreateInvoiceFromOrderRequest) (*model.Invoice, error)
	GetInvoice(ctx context.Context, actor Actor, id uuid.UUID) (*InvoiceDetail, error)
	ListInvoices(ctx context.Context, actor Actor, q InvoiceQuery, p pagination.Params) (pagination.Page[model.Invoice], error)
	ListOverdue(ctx context.Context, actor Actor, p pagination.Params) (pagination.Page[model.Invoice], error)
	UpdateInvoice(ctx context.Context, actor Actor, id uuid.UUID, req UpdateInvoiceRequest) (*model.Invoice, error)
	UpdateStatus(ctx context.Context, actor Actor, id uuid.UUID, status model.InvoiceStatus) (*model.Invoice, error)
	DeleteInvoice(ctx context.Context, actor Actor, id uuid.UUID) error

	AddLine(ctx context.Context, actor Actor, invoiceID uuid.UUID, req InvoiceLineRequest) (*model.InvoiceLine, error)
	UpdateLine(ctx context.Context, actor Actor, lineID uuid.UUID, req InvoiceLineRequest) (*model.InvoiceLine, error)
	DeleteLine(ctx context.Context, actor Actor, lineID uuid.UUID) error
	ListLines(ctx context.Context, actor Actor, invoiceID uuid.UUID) ([]model.InvoiceLine, error)

	RecomputeTotals(ctx context.Context, actor Actor, invoiceID uuid.UUID) (*model.Invoice, error)
	Balance(ctx context.Context, actor Actor, invoiceID uuid.UUID) (*BalanceResponse, error)
}

type InvoiceDeps struct {
	Invoices    repository.InvoiceRepository
	Payments    repository.PaymentRepository
	Corrections repository.CorrectionRepository
	Orders      repository.OrderRepository
	Products    repository.ProductRepository
	TaxRates    repository.TaxRateRepository
	Restaurants repository.RestaurantRepository
	Companies   repository.CompanyRepository
	Users       repository.UserRepository
	Audit       repository.AuditRepository
	TxManager   repository.TransactionManager
	Engine      *TotalsEngine
	Guard       *Guard
	Notifier    Notifier
	Logger      *zap.Logger
}

type invoiceService struct {
	InvoiceDeps
}

func NewInvoiceService(deps InvoiceDeps) InvoiceService {
	deps.Notifier = notifierOrNop(deps.Notifier)
	deps.Logger = loggerOrNop(deps.Logger)
	return &invoiceService{InvoiceDeps: deps}
}

// --- Invoices ---

func (s *invoiceService) CreateInvoice(ctx context.Context, actor Actor, req CreateInvoiceRequest) (*model.Invoice, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if req.Type == "" {
		req.Type = model.InvoiceSale
	}
	if !req.Type.Valid() {
		return nil, apperror.Invalid("unknown invoice type %q", req.Type)
	}

	restaurant, err := s.Restaurants.FindByID(ctx, req.RestaurantID)
	if err != nil {
		return nil, lookupErr(err, "restaurant", req.RestaurantID)
	}
	companyID := restaurant.CompanyID
	if err := s.Guard.Authorize(ctx, actor, RestaurantScope(restaurant.ID, &companyID), permission.InvoiceWrite); err != nil {
		return nil, err
	}
	if _, err := s.Users.GetByID(ctx, req.CustomerID); err != nil {
		return nil, lookupErr(err, "customer", req.CustomerID)
	}
	if req.OrderID != nil {
		order, err := s.Orders.FindByID(ctx, *req.OrderID)
		if err != nil {
			return nil, lookupErr(err, "order", *req.OrderID)
		}
		if order.RestaurantID != restaurant.ID {
			return nil, apperror.Invalid("order %s belongs to another restaurant", order.ID)
		}
	}

	date := now()
	if req.Date != nil {
		date = req.Date.UTC()
	}

	invoice := &model.Invoice{
		Number:       req.Number,
		Date:         date,
		DueDate:      req.DueDate,
		Status:       model.InvoicePending,
		Type:         req.Type,
		OrderID:      req.OrderID,
		CustomerID:   req.CustomerID,
		RestaurantID: restaurant.ID,
		CompanyID:    &companyID,
		Notes:        req.Notes,
	}

	err = s.TxManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.assignNumber(txCtx, invoice); err != nil {
			return err
		}
		if err := s.Invoices.Create(txCtx, invoice); err != nil {
			if repository.IsDuplicate(err) {
				return apperror.Conflict("invoice number %s already exists", invoice.Number)
			}
			return fmt.Errorf("failed to create invoice: %w", err)
		}
		for _, lr := range req.Lines {
			line, err := s.buildLine(txCtx, invoice, lr)
			if err != nil {
				return err
			}
			if err := s.Invoices.CreateLine(txCtx, line); err != nil {
				return fmt.Errorf("failed to create invoice line: %w", err)
			}
		}
		updated, err := s.Engine.RecomputeInvoiceTotals(txCtx, invoice.ID)
		if err != nil {
			return err
		}
		invoice = updated
		return writeAudit(txCtx, s.Audit, actor, model.ActionCreateInvoice, invoice.ID, invoice.Number, map[string]interface{}{
			"restaurant_id": invoice.RestaurantID,
			"customer_id":   invoice.CustomerID,
			"lines":         len(req.Lines),
			"total":         invoice.Total.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("invoice created", zap.String("number", invoice.Number), zap.String("total", invoice.Total.String()))
	s.Notifier.Publish(EventInvoiceUpdated, invoiceScope(invoice), invoice)
	return invoice, nil
}

func (s *invoiceService) CreateFromOrder(ctx context.Context, actor Actor, orderID uuid.UUID, req CreateInvoiceFromOrderRequest) (*model.Invoice, error) {
	order, err := s.Orders.FindByIDWithLines(ctx, orderID)
	if err != nil {
		return nil, lookupErr(err, "order", orderID)
	}
	if err := s.Guard.Authorize(ctx, actor, orderScope(order), permission.InvoiceWrite, permission.OrderRead); err != nil {
		return nil, err
	}
	if order.Status == model.OrderCancelled {
		return nil, apperror.InvalidState("order %s is cancelled", order.ID)
	}
	if len(order.Lines) == 0 {
		return nil, apperror.Invalid("order %s has no lines", order.ID)
	}

	fallbackRate, err := s.companyTaxRate(ctx, order.CompanyID)
	if err != nil {
		return nil, err
	}

	lines := make([]InvoiceLineRequest, 0, len(order.Lines))
	for _, ol := range order.Lines {
		product, err := s.Products.FindByID(ctx, ol.ProductID)
		if err != nil {
			return nil, lookupErr(err, "product", ol.ProductID)
		}
		productID := product.ID
		rateID := product.TaxRateID
		if rateID == nil {
			rateID = fallbackRate
		}
		lines = append(lines, InvoiceLineRequest{
			ProductID:   &productID,
			TaxRateID:   rateID,
			Description: product.Name,
			Quantity:    decimal.NewFromInt(int64(ol.Quantity)),
			UnitPrice:   ol.UnitPrice,
		})
	}

	return s.CreateInvoice(ctx, actor, CreateInvoiceRequest{
		RestaurantID: order.RestaurantID,
		CustomerID:   order.CustomerID,
		OrderID:      &order.ID,
		Type:         model.InvoiceSale,
		DueDate:      req.DueDate,
		Notes:        req.Notes,
		Lines:        lines,
	})
}

func (s *invoiceService) companyTaxRate(ctx context.Context, companyID uuid.UUID) (*uuid.UUID, error) {
	company, err := s.Companies.FindByID(ctx, companyID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load company: %w", err)
	}
	return company.TaxRateID, nil
}

func (s *invoiceService) GetInvoice(ctx context.Context, actor Actor, id uuid.UUID) (*InvoiceDetail, error) {
	invoice, err := s.Invoices.FindByIDWithLines(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "invoice", id)
	}
	if err := s.Guard.Authorize(ctx, actor, invoiceScope(invoice), permission.InvoiceRead); err != nil {
		return nil, err
	}
	paid, err := s.Engine.CompletedSum(ctx, id, nil)
	if err != nil {
		return nil, err
	}
	return &InvoiceDetail{Invoice: *invoice, Paid: paid, Balance: balance(invoice.Total, paid)}, nil
}

func (s *invoiceService) ListInvoices(ctx context.Context, actor Actor, q InvoiceQuery, p pagination.Params) (pagination.Page[model.Invoice], error) {
	if err := s.Guard.Require(ctx, actor, permission.InvoiceRead); err != nil {
		return pagination.Page[model.Invoice]{}, err
	}
	restaurantID, companyID, err := s.Guard.TenantFilter(actor, q.RestaurantID, q.CompanyID)
	if err != nil {
		return pagination.Page[model.Invoice]{}, err
	}

	invoices, total, err := s.Invoices.List(ctx, repository.InvoiceFilter{
		RestaurantID: restaurantID,
		CompanyID:    companyID,
		CustomerID:   q.CustomerID,
		Status:       q.Status,
		Type:         q.Type,
		From:         q.From,
		To:           q.To,
	}, p.Offset, p.Limit)
	if err != nil {
		return pagination.Page[model.Invoice]{}, fmt.Errorf("failed to fetch invoices: %w", err)
	}
	return pagination.NewPage(invoices, total, p), nil
}

// ListOverdue returns pending invoices whose due date has passed.
func (s *invoiceService) ListOverdue(ctx context.Context, actor Actor, p pagination.Params) (pagination.Page[model.Invoice], error) {
	if err := s.Guard.Require(ctx, actor, permission.InvoiceRead); err != nil {
		return pagination.Page[model.Invoice]{}, err
	}
	restaurantID, companyID, err := s.Guard.TenantFilter(actor, nil, nil)
	if err != nil {
		return pagination.Page[model.Invoice]{}, err
	}

	at := now()
	invoices, total, err := s.Invoices.List(ctx, repository.InvoiceFilter{
		RestaurantID: restaurantID,
		CompanyID:    companyID,
		OverdueAt:    &at,
	}, p.Offset, p.Limit)
	if err != nil {
		return pagination.Page[model.Invoice]{}, fmt.Errorf("failed to fetch overdue invoices: %w", err)
	}
	return pagination.NewPage(invoices, total, p), nil
}

func (s *invoiceService) UpdateInvoice(ctx context.Context, actor Actor, id uuid.UUID, req UpdateInvoiceRequest) (*model.Invoice, error) {
	invoice, err := s.loadAuthorized(ctx, actor, id, permission.InvoiceWrite)
	if err != nil {
		return nil, err
	}

	err = s.TxManager.RunInTx(ctx, func(txCtx context.Context) error {
		locked, err := s.Invoices.FindByIDForUpdate(txCtx, invoice.ID)
		if err != nil {
			return lookupErr(err, "invoice", invoice.ID)
		}
		if locked.Status.Closed() {
			return apperror.InvalidState("invoice %s is %s", locked.Number, locked.Status)
		}
		if req.DueDate != nil {
			due := req.DueDate.UTC()
			locked.DueDate = &due
		}
		if req.Notes != nil {
			locked.Notes = *req.Notes
		}
		if err := s.Invoices.Update(txCtx, locked); err != nil {
			return fmt.Errorf("failed to update invoice: %w", err)
		}
		invoice = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Notifier.Publish(EventInvoiceUpdated, invoiceScope(invoice), invoice)
	return invoice, nil
}

// UpdateStatus applies a manual status change. Paid is derived from
// payments and voided is reached only through an approved void correction.
func (s *invoiceService) UpdateStatus(ctx context.Context, actor Actor, id uuid.UUID, status model.InvoiceStatus) (*model.Invoice, error) {
	if !status.Valid() {
		return nil, apperror.InvalidTransition("unknown invoice status %q", status)
	}
	if status == model.InvoicePaid || status == model.InvoiceVoided {
		return nil, apperror.InvalidTransition("invoice status %s cannot be set manually", status)
	}

	invoice, err := s.loadAuthorized(ctx, actor, id, permission.InvoiceWrite)
	if err != nil {
		return nil, err
	}

	var previous model.InvoiceStatus
	err = s.TxManager.RunInTx(ctx, func(txCtx context.Context) error {
		locked, err := s.Invoices.FindByIDForUpdate(txCtx, invoice.ID)
		if err != nil {
			return lookupErr(err, "invoice", invoice.ID)
		}
		previous = locked.Status
		if locked.Status == model.InvoiceVoided {
			return apperror.InvalidState("invoice %s is voided", locked.Number)
		}

		switch status {
		case model.InvoiceCancelled:
			paid, err := s.Engine.CompletedSum(txCtx, locked.ID, nil)
			if err != nil {
				return err
			}
			if paid.IsPositive() {
				return apperror.InvalidState("invoice %s has completed payments", locked.Number)
			}
			locked.Status = model.InvoiceCancelled
			if err := s.Invoices.Update(txCtx, locked); err != nil {
				return fmt.Errorf("failed to update invoice: %w", err)
			}
		case model.InvoicePending:
			if locked.Status == model.InvoiceCancelled {
				locked.Status = model.InvoicePending
				if err := s.Invoices.Update(txCtx, locked); err != nil {
					return fmt.Errorf("failed to update invoice: %w", err)
				}
			}
			if _, err := s.Engine.SyncPaidStatus(txCtx, locked); err != nil {
				return err
			}
		}

		invoice = locked
		return writeAudit(txCtx, s.Audit, actor, model.ActionUpdateInvoiceStatus, locked.ID, locked.Number, map[string]interface{}{
			"from": previous,
			"to":   locked.Status,
		})
	})
	if err != nil {
		return nil, err
	}

	s.Notifier.Publish(EventInvoiceUpdated, invoiceScope(invoice), invoice)
	return invoice, nil
}

func (s *invoiceService) DeleteInvoice(ctx context.Context, actor Actor, id uuid.UUID) error {
	invoice, err := s.loadAuthorized(ctx, actor, id, permission.InvoiceDelete)
	if err != nil {
		return err
	}

	return s.TxManager.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.Invoices.FindByIDForUpdate(txCtx, invoice.ID); err != nil {
			return lookupErr(err, "invoice", invoice.ID)
		}
		payments, err := s.Payments.CountByInvoice(txCtx, invoice.ID)
		if err != nil {
			return fmt.Errorf("failed to count payments: %w", err)
		}
		corrections, err := s.Corrections.CountByInvoice(txCtx, invoice.ID)
		if err != nil {
			return fmt.Errorf("failed to count corrections: %w", err)
		}
		if n := payments + corrections; n > 0 {
			return apperror.ConflictWithDependents(n, "invoice %s has %d payments and %d corrections", invoice.Number, payments, corrections)
		}
		if err := s.Invoices.Delete(txCtx, invoice.ID); err != nil {
			return fmt.Errorf("failed to delete invoice: %w", err)
		}
		return writeAudit(txCtx, s.Audit, actor, model.ActionDeleteInvoice, invoice.ID, invoice.Number, map[string]interface{}{
			"total": invoice.Total.String(),
		})
	})
}

// --- Lines ---

func (s *invoiceService) AddLine(ctx context.Context, actor Actor, invoiceID uuid.UUID, req InvoiceLineRequest) (*model.InvoiceLine, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	invoice, err := s.loadAuthorized(ctx, actor, invoiceID, permission.InvoiceLineWrite)
	if err != nil {
		return nil, err
	}

	var line *model.InvoiceLine
	err = s.applyLineChange(ctx, actor, invoice.ID, model.ActionCreateInvoiceLine, func(txCtx context.Context, locked *model.Invoice) (uuid.UUID, error) {
		built, err := s.buildLine(txCtx, locked, req)
		if err != nil {
			return uuid.Nil, err
		}
		if err := s.Invoices.CreateLine(txCtx, built); err != nil {
			return uuid.Nil, fmt.Errorf("failed to create invoice line: %w", err)
		}
		line = built
		return built.ID, nil
	})
	if err != nil {
		return nil, err
	}
	return line, nil
}

func (s *invoiceService) UpdateLine(ctx context.Context, actor Actor, lineID uuid.UUID, req InvoiceLineRequest) (*model.InvoiceLine, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	existing, err := s.Invoices.FindLineByID(ctx, lineID)
	if err != nil {
		return nil, lookupErr(err, "invoice line", lineID)
	}
	invoice, err := s.loadAuthorized(ctx, actor, existing.InvoiceID, permission.InvoiceLineWrite)
	if err != nil {
		return nil, err
	}

	var line *model.InvoiceLine
	err = s.applyLineChange(ctx, actor, invoice.ID, model.ActionUpdateInvoiceLine, func(txCtx context.Context, locked *model.Invoice) (uuid.UUID, error) {
		current, err := s.lockedLine(txCtx, locked, lineID)
		if err != nil {
			return uuid.Nil, err
		}
		built, err := s.buildLine(txCtx, locked, req)
		if err != nil {
			return uuid.Nil, err
		}
		built.ID = current.ID
		built.CreatedAt = current.CreatedAt
		if err := s.Invoices.UpdateLine(txCtx, built); err != nil {
			return uuid.Nil, fmt.Errorf("failed to update invoice line: %w", err)
		}
		line = built
		return built.ID, nil
	})
	if err != nil {
		return nil, err
	}
	return line, nil
}

func (s *invoiceService) DeleteLine(ctx context.Context, actor Actor, lineID uuid.UUID) error {
	existing, err := s.Invoices.FindLineByID(ctx, lineID)
	if err != nil {
		return lookupErr(err, "invoice line", lineID)
	}
	invoice, err := s.loadAuthorized(ctx, actor, existing.InvoiceID, permission.InvoiceLineDelete)
	if err != nil {
		return err
	}

	return s.applyLineChange(ctx, actor, invoice.ID, model.ActionDeleteInvoiceLine, func(txCtx context.Context, locked *model.Invoice) (uuid.UUID, error) {
		current, err := s.lockedLine(txCtx, locked, lineID)
		if err != nil {
			return uuid.Nil, err
		}
		if err := s.Invoices.DeleteLine(txCtx, current.ID); err != nil {
			return uuid.Nil, lookupErr(err, "invoice line", current.ID)
		}
		return current.ID, nil
	})
}

// lockedLine re-reads a line once its invoice is locked.
func (s *invoiceService) lockedLine(ctx context.Context, invoice *model.Invoice, lineID uuid.UUID) (*model.InvoiceLine, error) {
	line, err := s.Invoices.FindLineByID(ctx, lineID)
	if err != nil {
		return nil, lookupErr(err, "invoice line", lineID)
	}
	if line.InvoiceID != invoice.ID {
		return nil, apperror.NotFound("invoice line %s not found", lineID)
	}
	return line, nil
}

func (s *invoiceService) ListLines(ctx context.Context, actor Actor, invoiceID uuid.UUID) ([]model.InvoiceLine, error) {
	if _, err := s.loadAuthorized(ctx, actor, invoiceID, permission.InvoiceLineRead); err != nil {
		return nil, err
	}
	lines, err := s.Invoices.ListLines(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch invoice lines: %w", err)
	}
	return lines, nil
}

// applyLineChange runs one line mutation under the invoice row lock and
// recomputes totals in the same transaction. The change is rolled back if
// the new total would drop below what has already been paid.
func (s *invoiceService) applyLineChange(ctx context.Context, actor Actor, invoiceID uuid.UUID, action string, change func(txCtx context.Context, locked *model.Invoice) (uuid.UUID, error)) error {
	var updated *model.Invoice
	var becamePaid bool

	err := s.TxManager.RunInTx(ctx, func(txCtx context.Context) error {
		locked, err := s.Invoices.FindByIDForUpdate(txCtx, invoiceID)
		if err != nil {
			return lookupErr(err, "invoice", invoiceID)
		}
		if locked.Status.Closed() {
			return apperror.InvalidState("invoice %s is %s", locked.Number, locked.Status)
		}

		lineID, err := change(txCtx, locked)
		if err != nil {
			return err
		}

		updated, err = s.Engine.RecomputeInvoiceTotals(txCtx, invoiceID)
		if err != nil {
			return err
		}
		paid, err := s.Engine.CompletedSum(txCtx, invoiceID, nil)
		if err != nil {
			return err
		}
		if updated.Total.LessThan(paid) {
			return apperror.AmountExceedsBalance("invoice total %s would fall below paid amount %s", updated.Total, paid)
		}
		changed, err := s.Engine.SyncPaidStatus(txCtx, updated)
		if err != nil {
			return err
		}
		becamePaid = changed && updated.Status == model.InvoicePaid

		return writeAudit(txCtx, s.Audit, actor, action, updated.ID, updated.Number, map[string]interface{}{
			"line_id": lineID,
			"total":   updated.Total.String(),
		})
	})
	if err != nil {
		return err
	}

	s.Notifier.Publish(EventInvoiceUpdated, invoiceScope(updated), updated)
	if becamePaid {
		s.Notifier.Publish(EventInvoicePaid, invoiceScope(updated), updated)
	}
	return nil
}

// buildLine validates a line request and derives its amounts server side.
func (s *invoiceService) buildLine(ctx context.Context, invoice *model.Invoice, req InvoiceLineRequest) (*model.InvoiceLine, error) {
	if !req.Quantity.IsPositive() {
		return nil, apperror.Invalid("quantity must be greater than zero")
	}
	if req.Discount.IsNegative() {
		return nil, apperror.Invalid("discount must not be negative")
	}
	gross := req.Quantity.Mul(req.UnitPrice)
	if req.Discount.GreaterThan(gross) {
		return nil, apperror.Invalid("discount %s exceeds line amount %s", req.Discount, gross)
	}

	line := &model.InvoiceLine{
		InvoiceID:   invoice.ID,
		ProductID:   req.ProductID,
		TaxRateID:   req.TaxRateID,
		Description: req.Description,
		Quantity:    req.Quantity,
		UnitPrice:   req.UnitPrice,
		Discount:    req.Discount,
	}

	if req.ProductID != nil {
		product, err := s.Products.FindByID(ctx, *req.ProductID)
		if err != nil {
			return nil, lookupErr(err, "product", *req.ProductID)
		}
		if product.RestaurantID != invoice.RestaurantID {
			return nil, apperror.Invalid("product %s belongs to another restaurant", product.ID)
		}
		if line.Description == "" {
			line.Description = product.Name
		}
		if line.TaxRateID == nil {
			line.TaxRateID = product.TaxRateID
		}
	}

	net := gross.Sub(req.Discount)
	switch {
	case req.Tax != nil:
		if req.Tax.IsNegative() {
			return nil, apperror.Invalid("tax must not be negative")
		}
		line.Tax = *req.Tax
	case line.TaxRateID != nil:
		rate, err := s.TaxRates.FindByID(ctx, *line.TaxRateID)
		if err != nil {
			return nil, lookupErr(err, "tax rate", *line.TaxRateID)
		}
		line.Tax = taxFor(net, rate.Percentage)
	default:
		line.Tax = decimal.Zero
	}

	line.Subtotal, line.Total = ComputeLineTotals(line.Quantity, line.UnitPrice, line.Discount, line.Tax)
	return line, nil
}

// --- Totals ---

func (s *invoiceService) RecomputeTotals(ctx context.Context, actor Actor, invoiceID uuid.UUID) (*model.Invoice, error) {
	invoice, err := s.loadAuthorized(ctx, actor, invoiceID, permission.InvoiceWrite)
	if err != nil {
		return nil, err
	}
	err = s.TxManager.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.Invoices.FindByIDForUpdate(txCtx, invoice.ID); err != nil {
			return lookupErr(err, "invoice", invoice.ID)
		}
		updated, err := s.Engine.RecomputeInvoiceTotals(txCtx, invoice.ID)
		if err != nil {
			return err
		}
		if _, err := s.Engine.SyncPaidStatus(txCtx, updated); err != nil {
			return err
		}
		invoice = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

func (s *invoiceService) Balance(ctx context.Context, actor Actor, invoiceID uuid.UUID) (*BalanceResponse, error) {
	invoice, err := s.loadAuthorized(ctx, actor, invoiceID, permission.InvoiceRead)
	if err != nil {
		return nil, err
	}
	paid, err := s.Engine.CompletedSum(ctx, invoice.ID, nil)
	if err != nil {
		return nil, err
	}
	return &BalanceResponse{
		InvoiceID: invoice.ID,
		Status:    invoice.Status,
		Total:     invoice.Total,
		Paid:      paid,
		Balance:   balance(invoice.Total, paid),
	}, nil
}

// --- Helpers ---

func (s *invoiceService) loadAuthorized(ctx context.Context, actor Actor, id uuid.UUID, required ...permission.Name) (*model.Invoice, error) {
	invoice, err := s.Invoices.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "invoice", id)
	}
	if err := s.Guard.Authorize(ctx, actor, invoiceScope(invoice), required...); err != nil {
		return nil, err
	}
	return invoice, nil
}

// assignNumber keeps a caller supplied number or generates INV-YYYYMMDD-NNNNN.
func (s *invoiceService) assignNumber(ctx context.Context, invoice *model.Invoice) error {
	if invoice.Number != "" {
		if _, err := s.Invoices.FindByNumber(ctx, invoice.Number); err == nil {
			return apperror.Conflict("invoice number %s already exists", invoice.Number)
		} else if !repository.IsNotFound(err) {
			return fmt.Errorf("failed to check invoice number: %w", err)
		}
		return nil
	}

	prefix := "INV-" + now().Format("20060102") + "-"
	count, err := s.Invoices.CountByPrefix(ctx, prefix)
	if err != nil {
		return fmt.Errorf("failed to generate invoice number: %w", err)
	}
	for seq := count + 1; ; seq++ {
		number := fmt.Sprintf("%s%05d", prefix, seq)
		_, err := s.Invoices.FindByNumber(ctx, number)
		if repository.IsNotFound(err) {
			invoice.Number = number
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to generate invoice number: %w", err)
		}
	}
}
