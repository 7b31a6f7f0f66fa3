package service

import (
	"context"
	"fmt"

	"restaurant-backend/internal/model"
	"restaurant-backend/internal/permission"
	"restaurant-backend/internal/repository"
	"restaurant-backend/pkg/apperror"
	"restaurant-backend/pkg/pagination"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CreateTableRequest struct {
	RestaurantID uuid.UUID `json:"restaurant_id" validate:"uuid_required"`
	Number       int       `json:"number" validate:"gt=0"`
	Capacity     int       `json:"capacity" validate:"gt=0"`
}

type UpdateTableRequest struct {
	Number   *int `json:"number" validate:"omitempty,gt=0"`
	Capacity *int `json:"capacity" validate:"omitempty,gt=0"`
}

type AssignOrderRequest struct {
	OrderID       uuid.UUID `json:"order_id" validate:"uuid_required"`
	OccupantCount *int      `json:"occupant_count" validate:"omitempty,gt=0"`
}

type TableQuery struct {
	RestaurantID *uuid.UUID
	Status       string
}

type TableService interface {
	CreateTable(ctx context.Context, actor Actor, req CreateTableRequest) (*model.Table, error)
	UpdateTable(ctx context.Context, actor Actor, id uuid.UUID, req UpdateTableRequest) (*model.Table, error)
	DeleteTable(ctx context.Context, actor Actor, id uuid.UUID) error
	GetTable(ctx context.Context, actor Actor, id uuid.UUID) (*model.Table, error)
	ListTables(ctx context.Context, actor Actor, q TableQuery, p pagination.Params) (pagination.Page[model.Table], error)

	AssignOrder(ctx context.Context, actor Actor, id uuid.UUID, req AssignOrderRequest) (*model.Table, error)
	Release(ctx context.Context, actor Actor, id uuid.UUID) (*model.Table, error)
	SetStatus(ctx context.Context, actor Actor, id uuid.UUID, status model.TableStatus) (*model.Table, error)

	// BackfillStatuses marks tables without a status as available.
	BackfillStatuses(ctx context.Context) (int64, error)
}

type tableService struct {
	tables      repository.TableRepository
	orders      repository.OrderRepository
	restaurants repository.RestaurantRepository
	audit       repository.AuditRepository
	txManager   repository.TransactionManager
	guard       *Guard
	notifier    Notifier
	logger      *zap.Logger
}

func NewTableService(
	tables repository.TableRepository,
	orders repository.OrderRepository,
	restaurants repository.RestaurantRepository,
	audit repository.AuditRepository,
	txManager repository.TransactionManager,
	guard *Guard,
	notifier Notifier,
	logger *zap.Logger,
) TableService {
	return &tableService{
		tables:      tables,
		orders:      orders,
		restaurants: restaurants,
		audit:       audit,
		txManager:   txManager,
		guard:       guard,
		notifier:    notifierOrNop(notifier),
		logger:      loggerOrNop(logger),
	}
}

func (s *tableService) CreateTable(ctx context.Context, actor Actor, req CreateTableRequest) (*model.Table, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	restaurant, err := s.restaurants.FindByID(ctx, req.RestaurantID)
	if err != nil {
		return nil, lookupErr(err, "restaurant", req.RestaurantID)
	}
	if err := s.guard.Authorize(ctx, actor, RestaurantScope(restaurant.ID, &restaurant.CompanyID), permission.TableWrite); err != nil {
		return nil, err
	}
	if err := s.ensureNumberFree(ctx, restaurant.ID, req.Number, uuid.Nil); err != nil {
		return nil, err
	}

	table := &model.Table{
		RestaurantID: restaurant.ID,
		Number:       req.Number,
		Capacity:     req.Capacity,
		Status:       model.TableAvailable,
	}
	if err := s.tables.Create(ctx, table); err != nil {
		if repository.IsDuplicate(err) {
			return nil, apperror.Conflict("table number %d already exists in this restaurant", req.Number)
		}
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return table, nil
}

func (s *tableService) UpdateTable(ctx context.Context, actor Actor, id uuid.UUID, req UpdateTableRequest) (*model.Table, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	table, err := s.loadAuthorized(ctx, actor, id, permission.TableWrite)
	if err != nil {
		return nil, err
	}

	if req.Number != nil && *req.Number != table.Number {
		if err := s.ensureNumberFree(ctx, table.RestaurantID, *req.Number, table.ID); err != nil {
			return nil, err
		}
		table.Number = *req.Number
	}
	if req.Capacity != nil {
		table.Capacity = *req.Capacity
	}
	if err := s.tables.Update(ctx, table); err != nil {
		if repository.IsDuplicate(err) {
			return nil, apperror.Conflict("table number %d already exists in this restaurant", table.Number)
		}
		return nil, fmt.Errorf("failed to update table: %w", err)
	}
	s.notifier.Publish(EventTableUpdated, tableScope(table), table)
	return table, nil
}

func (s *tableService) DeleteTable(ctx context.Context, actor Actor, id uuid.UUID) error {
	table, err := s.loadAuthorized(ctx, actor, id, permission.TableDelete)
	if err != nil {
		return err
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		locked, err := s.tables.FindByIDForUpdate(txCtx, table.ID)
		if err != nil {
			return lookupErr(err, "table", table.ID)
		}
		if locked.ActiveOrderID != nil {
			return apperror.ConflictWithDependents(1, "table %d has an active order", locked.Number)
		}
		if err := s.tables.Delete(txCtx, locked.ID); err != nil {
			return fmt.Errorf("failed to delete table: %w", err)
		}
		return writeAudit(txCtx, s.audit, actor, model.ActionDeleteTable, locked.ID, fmt.Sprintf("table %d", locked.Number), map[string]interface{}{
			"restaurant_id": locked.RestaurantID,
		})
	})
}

func (s *tableService) GetTable(ctx context.Context, actor Actor, id uuid.UUID) (*model.Table, error) {
	return s.loadAuthorized(ctx, actor, id, permission.TableRead)
}

// ListTables never writes; missing statuses are fixed by BackfillStatuses.
func (s *tableService) ListTables(ctx context.Context, actor Actor, q TableQuery, p pagination.Params) (pagination.Page[model.Table], error) {
	if err := s.guard.Require(ctx, actor, permission.TableRead); err != nil {
		return pagination.Page[model.Table]{}, err
	}
	restaurantID, err := s.guard.RestaurantFilter(ctx, actor, q.RestaurantID)
	if err != nil {
		return pagination.Page[model.Table]{}, err
	}
	if q.Status != "" && !model.TableStatus(q.Status).Valid() {
		return pagination.Page[model.Table]{}, apperror.Invalid("unknown table status %q", q.Status)
	}

	tables, total, err := s.tables.List(ctx, repository.TableFilter{RestaurantID: restaurantID, Status: q.Status}, p.Offset, p.Limit)
	if err != nil {
		return pagination.Page[model.Table]{}, fmt.Errorf("failed to fetch tables: %w", err)
	}
	return pagination.NewPage(tables, total, p), nil
}

// AssignOrder seats an order at the table. A table already holding an
// active order is rejected, including a repeat of the same assignment.
func (s *tableService) AssignOrder(ctx context.Context, actor Actor, id uuid.UUID, req AssignOrderRequest) (*model.Table, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	table, err := s.loadAuthorized(ctx, actor, id, permission.TableWrite)
	if err != nil {
		return nil, err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		locked, err := s.tables.FindByIDForUpdate(txCtx, table.ID)
		if err != nil {
			return lookupErr(err, "table", table.ID)
		}
		if locked.Status == model.TableOccupied && locked.ActiveOrderID != nil {
			return apperror.InvalidState("table %d is already occupied", locked.Number)
		}

		order, err := s.orders.FindByIDForUpdate(txCtx, req.OrderID)
		if err != nil {
			return lookupErr(err, "order", req.OrderID)
		}
		if order.RestaurantID != locked.RestaurantID {
			return apperror.Invalid("order %s belongs to another restaurant", order.ID)
		}
		if order.Status.Terminal() {
			return apperror.InvalidState("order %s is %s", order.ID, order.Status)
		}
		seated, err := s.tables.FindByActiveOrder(txCtx, order.ID)
		if err != nil {
			return fmt.Errorf("failed to load tables: %w", err)
		}
		for _, other := range seated {
			if other.ID != locked.ID {
				return apperror.InvalidState("order %s is already seated at table %d", order.ID, other.Number)
			}
		}
		if req.OccupantCount != nil && *req.OccupantCount > locked.Capacity {
			return apperror.Invalid("occupant count %d exceeds capacity %d", *req.OccupantCount, locked.Capacity)
		}

		locked.Status = model.TableOccupied
		locked.ActiveOrderID = &order.ID
		locked.OccupantCount = req.OccupantCount
		if err := s.tables.Update(txCtx, locked); err != nil {
			return fmt.Errorf("failed to update table: %w", err)
		}
		if order.TableID == nil || *order.TableID != locked.ID {
			order.TableID = &locked.ID
			if err := s.orders.Update(txCtx, order); err != nil {
				return fmt.Errorf("failed to update order: %w", err)
			}
		}
		table = locked
		return writeAudit(txCtx, s.audit, actor, model.ActionAssignTable, locked.ID, fmt.Sprintf("table %d", locked.Number), map[string]interface{}{
			"order_id":       order.ID,
			"occupant_count": req.OccupantCount,
		})
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Publish(EventTableUpdated, tableScope(table), table)
	return table, nil
}

// Release frees the table unconditionally.
func (s *tableService) Release(ctx context.Context, actor Actor, id uuid.UUID) (*model.Table, error) {
	table, err := s.loadAuthorized(ctx, actor, id, permission.TableWrite)
	if err != nil {
		return nil, err
	}
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		locked, err := s.tables.FindByIDForUpdate(txCtx, table.ID)
		if err != nil {
			return lookupErr(err, "table", table.ID)
		}
		previous := locked.ActiveOrderID
		if err := releaseTable(txCtx, s.tables, locked); err != nil {
			return err
		}
		table = locked
		return writeAudit(txCtx, s.audit, actor, model.ActionReleaseTable, locked.ID, fmt.Sprintf("table %d", locked.Number), map[string]interface{}{
			"order_id": previous,
		})
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Publish(EventTableUpdated, tableScope(table), table)
	return table, nil
}

// SetStatus overrides the status after enum validation. The active order
// link is left as is.
func (s *tableService) SetStatus(ctx context.Context, actor Actor, id uuid.UUID, status model.TableStatus) (*model.Table, error) {
	if !status.Valid() {
		return nil, apperror.InvalidTransition("unknown table status %q", status)
	}
	table, err := s.loadAuthorized(ctx, actor, id, permission.TableWrite)
	if err != nil {
		return nil, err
	}
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		locked, err := s.tables.FindByIDForUpdate(txCtx, table.ID)
		if err != nil {
			return lookupErr(err, "table", table.ID)
		}
		locked.Status = status
		if err := s.tables.Update(txCtx, locked); err != nil {
			return fmt.Errorf("failed to update table: %w", err)
		}
		table = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Publish(EventTableUpdated, tableScope(table), table)
	return table, nil
}

func (s *tableService) BackfillStatuses(ctx context.Context) (int64, error) {
	n, err := s.tables.BackfillStatus(ctx, model.TableAvailable)
	if err != nil {
		return 0, fmt.Errorf("failed to backfill table status: %w", err)
	}
	s.logger.Info("table status backfill finished", zap.Int64("updated", n))
	return n, nil
}

func (s *tableService) loadAuthorized(ctx context.Context, actor Actor, id uuid.UUID, required ...permission.Name) (*model.Table, error) {
	table, err := s.tables.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "table", id)
	}
	if err := s.guard.Authorize(ctx, actor, tableScope(table), required...); err != nil {
		return nil, err
	}
	return table, nil
}

func (s *tableService) ensureNumberFree(ctx context.Context, restaurantID uuid.UUID, number int, self uuid.UUID) error {
	existing, err := s.tables.FindByNumber(ctx, restaurantID, number)
	if err == nil && existing.ID != self {
		return apperror.Conflict("table number %d already exists in this restaurant", number)
	}
	if err != nil && !repository.IsNotFound(err) {
		return fmt.Errorf("failed to check table number: %w", err)
	}
	return nil
}

// releaseTable clears occupancy on a locked table row.
func releaseTable(ctx context.Context, tables repository.TableRepository, t *model.Table) error {
	t.Status = model.TableAvailable
	t.ActiveOrderID = nil
	t.OccupantCount = nil
	if err := tables.Update(ctx, t); err != nil {
		return fmt.Errorf("failed to release table: %w", err)
	}
	return nil
}
