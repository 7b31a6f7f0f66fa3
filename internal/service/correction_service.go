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
	"restaurant-backend/pkg/pagination"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CreateCorrectionRequest struct {
	OriginalInvoiceID   uuid.UUID            `json:"original_invoice_id" validate:"uuid_required"`
	CorrectionInvoiceID *uuid.UUID           `json:"correction_invoice_id"`
	Type                model.CorrectionType `json:"type" validate:"required"`
	Amount              decimal.Decimal      `json:"amount"`
	Reason              string               `json:"reason" validate:"required,max=255"`
	Description         string               `json:"description"`
	Date                *time.Time           `json:"date"`
}

type CorrectionQuery struct {
	InvoiceID *uuid.UUID
	Status    string
	Type      string
}

type CorrectionService interface {
	CreateCorrection(ctx context.Context, actor Actor, req CreateCorrectionRequest) (*model.InvoiceCorrection, error)
	Approve(ctx context.Context, actor Actor, id uuid.UUID, apply bool) (*model.InvoiceCorrection, error)
	Reject(ctx context.Context, actor Actor, id uuid.UUID) (*model.InvoiceCorrection, error)
	DeleteCorrection(ctx context.Context, actor Actor, id uuid.UUID) error
	GetCorrection(ctx context.Context, actor Actor, id uuid.UUID) (*model.InvoiceCorrection, error)
	ListCorrections(ctx context.Context, actor Actor, q CorrectionQuery, p pagination.Params) (pagination.Page[model.InvoiceCorrection], error)
}

type correctionService struct {
	corrections repository.CorrectionRepository
	invoices    repository.InvoiceRepository
	audit       repository.AuditRepository
	txManager   repository.TransactionManager
	engine      *TotalsEngine
	guard       *Guard
	metrics     *metrics.Metrics
	notifier    Notifier
	logger      *zap.Logger
}

func NewCorrectionService(
	corrections repository.CorrectionRepository,
	invoices repository.InvoiceRepository,
	audit repository.AuditRepository,
	txManager repository.TransactionManager,
	engine *TotalsEngine,
	guard *Guard,
	m *metrics.Metrics,
	notifier Notifier,
	logger *zap.Logger,
) CorrectionService {
	return &correctionService{
		corrections: corrections,
		invoices:    invoices,
		audit:       audit,
		txManager:   txManager,
		engine:      engine,
		guard:       guard,
		metrics:     m,
		notifier:    notifierOrNop(notifier),
		logger:      loggerOrNop(logger),
	}
}

func (s *correctionService) CreateCorrection(ctx context.Context, actor Actor, req CreateCorrectionRequest) (*model.InvoiceCorrection, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if !req.Type.Valid() {
		return nil, apperror.Invalid("unknown correction type %q", req.Type)
	}
	switch req.Type {
	case model.CorrectionAdjustment:
		if req.Amount.IsZero() {
			return nil, apperror.Invalid("adjustment amount must not be zero")
		}
	default:
		if req.Type == model.CorrectionRefund && !req.Amount.IsPositive() {
			return nil, apperror.Invalid("refund amount must be greater than zero")
		}
		if req.Amount.IsNegative() {
			return nil, apperror.Invalid("%s amount must not be negative", req.Type)
		}
	}

	invoice, err := s.loadInvoice(ctx, actor, req.OriginalInvoiceID, permission.CorrectionWrite)
	if err != nil {
		return nil, err
	}
	if invoice.Status.Closed() {
		return nil, apperror.InvalidState("invoice %s is %s", invoice.Number, invoice.Status)
	}
	if req.CorrectionInvoiceID != nil {
		if _, err := s.invoices.FindByID(ctx, *req.CorrectionInvoiceID); err != nil {
			return nil, lookupErr(err, "correction invoice", *req.CorrectionInvoiceID)
		}
	}

	date := now()
	if req.Date != nil {
		date = req.Date.UTC()
	}
	correction := &model.InvoiceCorrection{
		Date:                date,
		Reason:              req.Reason,
		Type:                req.Type,
		Amount:              req.Amount,
		Description:         req.Description,
		OriginalInvoiceID:   invoice.ID,
		CorrectionInvoiceID: req.CorrectionInvoiceID,
		PerformedBy:         actor.ID,
		Status:              model.CorrectionPending,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.corrections.Create(txCtx, correction); err != nil {
			return fmt.Errorf("failed to create correction: %w", err)
		}
		return writeAudit(txCtx, s.audit, actor, model.ActionCreateCorrection, correction.ID, invoice.Number, map[string]interface{}{
			"type":   correction.Type,
			"amount": correction.Amount.String(),
			"reason": correction.Reason,
		})
	})
	if err != nil {
		return nil, err
	}
	return correction, nil
}

// Approve moves a pending correction to approved. With apply set, the
// correction's effect is written to the original invoice in the same transaction.
func (s *correctionService) Approve(ctx context.Context, actor Actor, id uuid.UUID, apply bool) (*model.InvoiceCorrection, error) {
	correction, invoice, err := s.loadForDecision(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	var becamePaid bool
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		locked, err := s.corrections.FindByIDForUpdate(txCtx, correction.ID)
		if err != nil {
			return lookupErr(err, "correction", correction.ID)
		}
		if locked.Status != model.CorrectionPending {
			return apperror.InvalidState("correction %s is already %s", locked.ID, locked.Status)
		}
		lockedInvoice, err := s.invoices.FindByIDForUpdate(txCtx, locked.OriginalInvoiceID)
		if err != nil {
			return lookupErr(err, "invoice", locked.OriginalInvoiceID)
		}

		before := lockedInvoice.Total
		if apply {
			applied, err := s.applyToInvoice(txCtx, locked, lockedInvoice)
			if err != nil {
				return err
			}
			locked.Applied = applied
		}

		decidedAt := now()
		locked.Status = model.CorrectionApproved
		locked.ApprovedBy = actor.actorRef()
		locked.DecidedAt = &decidedAt
		if err := s.corrections.Update(txCtx, locked); err != nil {
			return fmt.Errorf("failed to update correction: %w", err)
		}

		changed, err := s.engine.SyncPaidStatus(txCtx, lockedInvoice)
		if err != nil {
			return err
		}
		becamePaid = changed && lockedInvoice.Status == model.InvoicePaid

		correction = locked
		invoice = lockedInvoice
		return writeAudit(txCtx, s.audit, actor, model.ActionApproveCorrection, locked.ID, lockedInvoice.Number, map[string]interface{}{
			"type":         locked.Type,
			"amount":       locked.Amount.String(),
			"applied":      locked.Applied,
			"total_before": before.String(),
			"total_after":  lockedInvoice.Total.String(),
			"status":       lockedInvoice.Status,
		})
	})
	if err != nil {
		if apperror.KindOf(err) == apperror.KindAmountExceedsBalance {
			s.metrics.Rejected(apperror.KindAmountExceedsBalance.String())
		}
		return nil, err
	}

	s.metrics.CorrectionDecided(string(correction.Type), string(model.CorrectionApproved))
	s.logger.Info("correction approved",
		zap.String("correction", correction.ID.String()),
		zap.String("type", string(correction.Type)),
		zap.Bool("applied", correction.Applied),
	)
	scope := invoiceScope(invoice)
	s.notifier.Publish(EventCorrectionDecided, scope, correction)
	s.notifier.Publish(EventInvoiceUpdated, scope, invoice)
	if becamePaid {
		s.notifier.Publish(EventInvoicePaid, scope, invoice)
	}
	return correction, nil
}

// applyToInvoice mutates the locked invoice per correction type and reports
// whether anything was written. Credit and debit notes have no automatic effect.
func (s *correctionService) applyToInvoice(ctx context.Context, c *model.InvoiceCorrection, inv *model.Invoice) (bool, error) {
	switch c.Type {
	case model.CorrectionVoid:
		if inv.Status == model.InvoiceVoided {
			return false, nil
		}
		inv.Status = model.InvoiceVoided
	case model.CorrectionRefund, model.CorrectionAdjustment:
		if inv.Status.Closed() {
			return false, apperror.InvalidState("invoice %s is %s", inv.Number, inv.Status)
		}
		next := inv.Total.Sub(c.Amount)
		if c.Type == model.CorrectionAdjustment {
			next = inv.Total.Add(c.Amount)
		}
		next = decimal.Max(decimal.Zero, next)

		paid, err := s.engine.CompletedSum(ctx, inv.ID, nil)
		if err != nil {
			return false, err
		}
		if next.LessThan(paid) {
			return false, apperror.AmountExceedsBalance("invoice total %s would fall below paid amount %s", next, paid)
		}
		inv.Total = next
	default:
		return false, nil
	}

	if err := s.invoices.Update(ctx, inv); err != nil {
		return false, fmt.Errorf("failed to update invoice: %w", err)
	}
	return true, nil
}

func (s *correctionService) Reject(ctx context.Context, actor Actor, id uuid.UUID) (*model.InvoiceCorrection, error) {
	correction, invoice, err := s.loadForDecision(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		locked, err := s.corrections.FindByIDForUpdate(txCtx, correction.ID)
		if err != nil {
			return lookupErr(err, "correction", correction.ID)
		}
		if locked.Status != model.CorrectionPending {
			return apperror.InvalidState("correction %s is already %s", locked.ID, locked.Status)
		}
		decidedAt := now()
		locked.Status = model.CorrectionRejected
		locked.ApprovedBy = actor.actorRef()
		locked.DecidedAt = &decidedAt
		if err := s.corrections.Update(txCtx, locked); err != nil {
			return fmt.Errorf("failed to update correction: %w", err)
		}
		correction = locked
		return writeAudit(txCtx, s.audit, actor, model.ActionRejectCorrection, locked.ID, "", map[string]interface{}{
			"type":   locked.Type,
			"amount": locked.Amount.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.CorrectionDecided(string(correction.Type), string(model.CorrectionRejected))
	s.notifier.Publish(EventCorrectionDecided, invoiceScope(invoice), correction)
	return correction, nil
}

// DeleteCorrection removes a pending or rejected correction. Approved ones
// have already touched the invoice and are kept.
func (s *correctionService) DeleteCorrection(ctx context.Context, actor Actor, id uuid.UUID) error {
	correction, err := s.corrections.FindByID(ctx, id)
	if err != nil {
		return lookupErr(err, "correction", id)
	}
	if _, err := s.loadInvoice(ctx, actor, correction.OriginalInvoiceID, permission.CorrectionDelete); err != nil {
		return err
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		locked, err := s.corrections.FindByIDForUpdate(txCtx, id)
		if err != nil {
			return lookupErr(err, "correction", id)
		}
		if locked.Status == model.CorrectionApproved {
			return apperror.InvalidState("correction %s is approved and cannot be deleted", locked.ID)
		}
		if err := s.corrections.Delete(txCtx, locked.ID); err != nil {
			return fmt.Errorf("failed to delete correction: %w", err)
		}
		return writeAudit(txCtx, s.audit, actor, model.ActionDeleteCorrection, locked.ID, "", map[string]interface{}{
			"status": locked.Status,
			"type":   locked.Type,
		})
	})
}

func (s *correctionService) GetCorrection(ctx context.Context, actor Actor, id uuid.UUID) (*model.InvoiceCorrection, error) {
	correction, err := s.corrections.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "correction", id)
	}
	if _, err := s.loadInvoice(ctx, actor, correction.OriginalInvoiceID, permission.CorrectionRead); err != nil {
		return nil, err
	}
	return correction, nil
}

// ListCorrections needs an invoice filter for tenant-bound callers.
func (s *correctionService) ListCorrections(ctx context.Context, actor Actor, q CorrectionQuery, p pagination.Params) (pagination.Page[model.InvoiceCorrection], error) {
	if q.InvoiceID != nil {
		if _, err := s.loadInvoice(ctx, actor, *q.InvoiceID, permission.CorrectionRead); err != nil {
			return pagination.Page[model.InvoiceCorrection]{}, err
		}
	} else {
		if err := s.guard.Require(ctx, actor, permission.CorrectionRead); err != nil {
			return pagination.Page[model.InvoiceCorrection]{}, err
		}
		if !actor.IsSuperuser {
			return pagination.Page[model.InvoiceCorrection]{}, apperror.Invalid("invoice_id is required")
		}
	}

	corrections, total, err := s.corrections.List(ctx, repository.CorrectionFilter{
		InvoiceID: q.InvoiceID,
		Status:    q.Status,
		Type:      q.Type,
	}, p.Offset, p.Limit)
	if err != nil {
		return pagination.Page[model.InvoiceCorrection]{}, fmt.Errorf("failed to fetch corrections: %w", err)
	}
	return pagination.NewPage(corrections, total, p), nil
}

func (s *correctionService) loadForDecision(ctx context.Context, actor Actor, id uuid.UUID) (*model.InvoiceCorrection, *model.Invoice, error) {
	correction, err := s.corrections.FindByID(ctx, id)
	if err != nil {
		return nil, nil, lookupErr(err, "correction", id)
	}
	invoice, err := s.loadInvoice(ctx, actor, correction.OriginalInvoiceID, permission.CorrectionApprove)
	if err != nil {
		return nil, nil, err
	}
	return correction, invoice, nil
}

func (s *correctionService) loadInvoice(ctx context.Context, actor Actor, id uuid.UUID, required ...permission.Name) (*model.Invoice, error) {
	invoice, err := s.invoices.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "invoice", id)
	}
	if err := s.guard.Authorize(ctx, actor, invoiceScope(invoice), required...); err != nil {
		return nil, err
	}
	return invoice, nil
}
