package service

import (
	"context"
	"fmt"
	"time"

	"restaurant-backend/internal/model"
	"restaurant-backend/internal/permission"
	"restaurant-backend/internal/repository"
	"restaurant-backend/pkg/apperror"
	"restaurant-backend/pkg/metrics"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type RecordPaymentRequest struct {
	InvoiceID uuid.UUID           `json:"invoice_id" validate:"uuid_required"`
	Amount    decimal.Decimal     `json:"amount" validate:"gt=0"`
	Method    model.PaymentMethod `json:"method" validate:"required"`
	Status    model.PaymentStatus `json:"status"`
	Reference string              `json:"reference" validate:"max=100"`
	Date      *time.Time          `json:"date"`
}

type UpdatePaymentRequest struct {
	Amount    *decimal.Decimal     `json:"amount"`
	Method    *model.PaymentMethod `json:"method"`
	Status    *model.PaymentStatus `json:"status"`
	Reference *string              `json:"reference"`
}

type PaymentService interface {
	RecordPayment(ctx context.Context, actor Actor, req RecordPaymentRequest) (*model.Payment, error)
	UpdatePayment(ctx context.Context, actor Actor, id uuid.UUID, req UpdatePaymentRequest) (*model.Payment, error)
	DeletePayment(ctx context.Context, actor Actor, id uuid.UUID) error
	GetPayment(ctx context.Context, actor Actor, id uuid.UUID) (*model.Payment, error)
	ListByInvoice(ctx context.Context, actor Actor, invoiceID uuid.UUID) ([]model.Payment, error)
}

type paymentService struct {
	invoices  repository.InvoiceRepository
	payments  repository.PaymentRepository
	audit     repository.AuditRepository
	txManager repository.TransactionManager
	engine    *TotalsEngine
	guard     *Guard
	metrics   *metrics.Metrics
	notifier  Notifier
	logger    *zap.Logger
}

func NewPaymentService(
	invoices repository.InvoiceRepository,
	payments repository.PaymentRepository,
	audit repository.AuditRepository,
	txManager repository.TransactionManager,
	engine *TotalsEngine,
	guard *Guard,
	m *metrics.Metrics,
	notifier Notifier,
	logger *zap.Logger,
) PaymentService {
	return &paymentService{
		invoices:  invoices,
		payments:  payments,
		audit:     audit,
		txManager: txManager,
		engine:    engine,
		guard:     guard,
		metrics:   m,
		notifier:  notifierOrNop(notifier),
		logger:    loggerOrNop(logger),
	}
}

// RecordPayment stores a payment under the invoice row lock. Whatever its
// status, the amount may not exceed the outstanding balance.
func (s *paymentService) RecordPayment(ctx context.Context, actor Actor, req RecordPaymentRequest) (*model.Payment, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if req.Status == "" {
		req.Status = model.PaymentCompleted
	}
	if !req.Method.Valid() {
		return nil, apperror.Invalid("unknown payment method %q", req.Method)
	}
	if !req.Status.Valid() {
		return nil, apperror.Invalid("unknown payment status %q", req.Status)
	}

	invoice, err := s.loadInvoice(ctx, actor, req.InvoiceID, permission.PaymentWrite)
	if err != nil {
		return nil, err
	}

	date := now()
	if req.Date != nil {
		date = req.Date.UTC()
	}
	payment := &model.Payment{
		InvoiceID:   invoice.ID,
		Amount:      req.Amount,
		Date:        date,
		Method:      req.Method,
		Reference:   req.Reference,
		Status:      req.Status,
		ProcessedBy: actor.actorRef(),
	}

	var becamePaid bool
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		locked, err := s.invoices.FindByIDForUpdate(txCtx, invoice.ID)
		if err != nil {
			return lookupErr(err, "invoice", invoice.ID)
		}
		if locked.Status.Closed() {
			return apperror.InvalidState("invoice %s is %s", locked.Number, locked.Status)
		}
		if err := s.checkBalance(txCtx, locked, payment.Amount, nil); err != nil {
			return err
		}

		if err := s.payments.Create(txCtx, payment); err != nil {
			return fmt.Errorf("failed to create payment: %w", err)
		}
		changed, err := s.engine.SyncPaidStatus(txCtx, locked)
		if err != nil {
			return err
		}
		becamePaid = changed && locked.Status == model.InvoicePaid
		invoice = locked

		return writeAudit(txCtx, s.audit, actor, model.ActionCreatePayment, payment.ID, locked.Number, map[string]interface{}{
			"invoice_id": locked.ID,
			"amount":     payment.Amount.String(),
			"method":     payment.Method,
			"status":     payment.Status,
		})
	})
	if err != nil {
		if apperror.KindOf(err) == apperror.KindAmountExceedsBalance {
			s.metrics.Rejected(apperror.KindAmountExceedsBalance.String())
		}
		return nil, err
	}

	s.metrics.PaymentRecorded(string(payment.Method), string(payment.Status), payment.Amount.InexactFloat64())
	s.logger.Info("payment recorded",
		zap.String("invoice", invoice.Number),
		zap.String("amount", payment.Amount.String()),
		zap.String("status", string(payment.Status)),
	)
	s.notifier.Publish(EventPaymentRecorded, invoiceScope(invoice), payment)
	s.notifier.Publish(EventInvoiceUpdated, invoiceScope(invoice), invoice)
	if becamePaid {
		s.notifier.Publish(EventInvoicePaid, invoiceScope(invoice), invoice)
	}
	return payment, nil
}

// UpdatePayment applies the same balance rule as RecordPayment, ignoring
// the payment's own previous contribution. The payment is re-read under the
// invoice lock so concurrent updates apply in order.
func (s *paymentService) UpdatePayment(ctx context.Context, actor Actor, id uuid.UUID, req UpdatePaymentRequest) (*model.Payment, error) {
	if err := validatePaymentUpdate(req); err != nil {
		return nil, err
	}
	current, err := s.payments.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "payment", id)
	}
	invoice, err := s.loadInvoice(ctx, actor, current.InvoiceID, permission.PaymentWrite)
	if err != nil {
		return nil, err
	}

	var (
		payment    *model.Payment
		becamePaid bool
	)
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		locked, err := s.invoices.FindByIDForUpdate(txCtx, invoice.ID)
		if err != nil {
			return lookupErr(err, "invoice", invoice.ID)
		}
		if locked.Status.Closed() {
			return apperror.InvalidState("invoice %s is %s", locked.Number, locked.Status)
		}
		payment, err = s.payments.FindByID(txCtx, id)
		if err != nil {
			return lookupErr(err, "payment", id)
		}
		applyPaymentUpdate(payment, req)
		if err := s.checkBalance(txCtx, locked, payment.Amount, &payment.ID); err != nil {
			return err
		}

		if err := s.payments.Update(txCtx, payment); err != nil {
			return fmt.Errorf("failed to update payment: %w", err)
		}
		changed, err := s.engine.SyncPaidStatus(txCtx, locked)
		if err != nil {
			return err
		}
		becamePaid = changed && locked.Status == model.InvoicePaid
		invoice = locked

		return writeAudit(txCtx, s.audit, actor, model.ActionUpdatePayment, payment.ID, locked.Number, map[string]interface{}{
			"amount": payment.Amount.String(),
			"method": payment.Method,
			"status": payment.Status,
		})
	})
	if err != nil {
		if apperror.KindOf(err) == apperror.KindAmountExceedsBalance {
			s.metrics.Rejected(apperror.KindAmountExceedsBalance.String())
		}
		return nil, err
	}

	s.notifier.Publish(EventInvoiceUpdated, invoiceScope(invoice), invoice)
	if becamePaid {
		s.notifier.Publish(EventInvoicePaid, invoiceScope(invoice), invoice)
	}
	return payment, nil
}

func validatePaymentUpdate(req UpdatePaymentRequest) error {
	if req.Amount != nil && !req.Amount.IsPositive() {
		return apperror.Invalid("amount must be greater than zero")
	}
	if req.Method != nil && !req.Method.Valid() {
		return apperror.Invalid("unknown payment method %q", *req.Method)
	}
	if req.Status != nil && !req.Status.Valid() {
		return apperror.Invalid("unknown payment status %q", *req.Status)
	}
	if req.Reference != nil && len(*req.Reference) > 100 {
		return apperror.Invalid("reference must be at most 100 characters")
	}
	return nil
}

func applyPaymentUpdate(payment *model.Payment, req UpdatePaymentRequest) {
	if req.Amount != nil {
		payment.Amount = *req.Amount
	}
	if req.Method != nil {
		payment.Method = *req.Method
	}
	if req.Status != nil {
		payment.Status = *req.Status
	}
	if req.Reference != nil {
		payment.Reference = *req.Reference
	}
}

// DeletePayment refuses completed and refunded payments; only pending or
// failed ones never counted toward the invoice. The status is checked on a
// fresh read under the invoice lock.
func (s *paymentService) DeletePayment(ctx context.Context, actor Actor, id uuid.UUID) error {
	current, err := s.payments.FindByID(ctx, id)
	if err != nil {
		return lookupErr(err, "payment", id)
	}
	invoice, err := s.loadInvoice(ctx, actor, current.InvoiceID, permission.PaymentDelete)
	if err != nil {
		return err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		locked, err := s.invoices.FindByIDForUpdate(txCtx, invoice.ID)
		if err != nil {
			return lookupErr(err, "invoice", invoice.ID)
		}
		payment, err := s.payments.FindByID(txCtx, id)
		if err != nil {
			return lookupErr(err, "payment", id)
		}
		if payment.Status == model.PaymentCompleted || payment.Status == model.PaymentRefunded {
			return apperror.InvalidState("payment %s is %s and cannot be deleted", payment.ID, payment.Status)
		}
		if err := s.payments.Delete(txCtx, payment.ID); err != nil {
			return fmt.Errorf("failed to delete payment: %w", err)
		}
		if _, err := s.engine.SyncPaidStatus(txCtx, locked); err != nil {
			return err
		}
		invoice = locked
		return writeAudit(txCtx, s.audit, actor, model.ActionDeletePayment, payment.ID, locked.Number, map[string]interface{}{
			"amount": payment.Amount.String(),
			"status": payment.Status,
		})
	})
	if err != nil {
		return err
	}
	s.notifier.Publish(EventInvoiceUpdated, invoiceScope(invoice), invoice)
	return nil
}

func (s *paymentService) GetPayment(ctx context.Context, actor Actor, id uuid.UUID) (*model.Payment, error) {
	payment, err := s.payments.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "payment", id)
	}
	if _, err := s.loadInvoice(ctx, actor, payment.InvoiceID, permission.PaymentRead); err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *paymentService) ListByInvoice(ctx context.Context, actor Actor, invoiceID uuid.UUID) ([]model.Payment, error) {
	if _, err := s.loadInvoice(ctx, actor, invoiceID, permission.PaymentRead); err != nil {
		return nil, err
	}
	payments, err := s.payments.ListByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payments: %w", err)
	}
	return payments, nil
}

func (s *paymentService) checkBalance(ctx context.Context, invoice *model.Invoice, amount decimal.Decimal, exclude *uuid.UUID) error {
	paid, err := s.engine.CompletedSum(ctx, invoice.ID, exclude)
	if err != nil {
		return err
	}
	outstanding := balance(invoice.Total, paid)
	if amount.GreaterThan(outstanding) {
		return apperror.AmountExceedsBalance("amount %s exceeds outstanding balance %s of invoice %s", amount, outstanding, invoice.Number)
	}
	return nil
}

func (s *paymentService) loadInvoice(ctx context.Context, actor Actor, id uuid.UUID, required ...permission.Name) (*model.Invoice, error) {
	invoice, err := s.invoices.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "invoice", id)
	}
	if err := s.guard.Authorize(ctx, actor, invoiceScope(invoice), required...); err != nil {
		return nil, err
	}
	return invoice, nil
}
