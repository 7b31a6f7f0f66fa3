package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"restaurant-backend/internal/model"
	"restaurant-backend/internal/permission"
	"restaurant-backend/internal/repository"
	"restaurant-backend/pkg/apperror"
	"restaurant-backend/pkg/validator"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Domain events pushed to websocket clients after commit.
const (
	EventInvoiceUpdated    = "invoice.updated"
	EventInvoicePaid       = "invoice.paid"
	EventPaymentRecorded   = "payment.recorded"
	EventCorrectionDecided = "correction.decided"
	EventTableUpdated      = "table.updated"
	EventOrderUpdated      = "order.updated"
)

var eventPermissions = map[string]permission.Name{
	EventInvoiceUpdated:    permission.InvoiceRead,
	EventInvoicePaid:       permission.InvoiceRead,
	EventPaymentRecorded:   permission.PaymentRead,
	EventCorrectionDecided: permission.CorrectionRead,
	EventTableUpdated:      permission.TableRead,
	EventOrderUpdated:      permission.OrderRead,
}

// EventPermission is the read permission a subscriber needs to receive event.
func EventPermission(event string) (permission.Name, bool) {
	name, ok := eventPermissions[event]
	return name, ok
}

// Notifier broadcasts committed changes. scope is the tenant the payload
// belongs to; subscribers outside it must not receive the event.
type Notifier interface {
	Publish(event string, scope Scope, payload interface{})
}

type nopNotifier struct{}

func (nopNotifier) Publish(string, Scope, interface{}) {}

func notifierOrNop(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}

func loggerOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// lookupErr maps gorm's missing-row error to NotFound and wraps anything else.
func lookupErr(err error, what string, id uuid.UUID) error {
	if repository.IsNotFound(err) {
		return apperror.NotFound("%s %s not found", what, id)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}

func validateRequest(req interface{}) error {
	if errs := validator.ValidateStruct(req); len(errs) > 0 {
		return apperror.Invalid("%s", validator.Describe(errs))
	}
	return nil
}

// writeAudit stores an audit row through ctx, so it joins the caller's transaction.
func writeAudit(ctx context.Context, repo repository.AuditRepository, actor Actor, action string, entityID uuid.UUID, entityName string, details interface{}) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}
	entry := &model.AuditLog{
		UserID:     actor.actorRef(),
		Action:     action,
		EntityID:   entityID.String(),
		EntityName: entityName,
		Details:    string(payload),
		CreatedAt:  time.Now().UTC(),
	}
	if err := repo.Log(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func now() time.Time {
	return time.Now().UTC()
}
