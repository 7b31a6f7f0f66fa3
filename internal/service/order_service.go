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

type OrderLineRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"uuid_required"`
	Quantity  int       `json:"quantity" validate:"gt=0"`
	// UnitPrice defaults to the product price.
	UnitPrice *decimal.Decimal `json:"unit_price"`
	Notes     string           `json:"notes"`
}

type UpdateOrderLineRequest struct {
	Quantity  *int             `json:"quantity" validate:"omitempty,gt=0"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
	Notes     *string          `json:"notes"`
}

type CreateOrderRequest struct {
	RestaurantID uuid.UUID          `json:"restaurant_id" validate:"uuid_required"`
	CustomerID   uuid.UUID          `json:"customer_id" validate:"uuid_required"`
	TableID      *uuid.UUID         `json:"table_id"`
	Date         *time.Time         `json:"date"`
	Notes        string             `json:"notes"`
	Lines        []OrderLineRequest `json:"lines" validate:"dive"`
}

type OrderQuery struct {
	RestaurantID *uuid.UUID
	CustomerID   *uuid.UUID
	TableID      *uuid.UUID
	Status       string
}

type OrderService interface {
	CreateOrder(ctx context.Context, actor Actor, req CreateOrderRequest) (*model.Order, error)
	GetOrder(ctx context.Context, actor Actor, id uuid.UUID) (*model.Order, error)
	ListOrders(ctx context.Context, actor Actor, q OrderQuery, p pagination.Params) (pagination.Page[model.Order], error)
	UpdateStatus(ctx context.Context, actor Actor, id uuid.UUID, status model.OrderStatus) (*model.Order, error)
	DeleteOrder(ctx context.Context, actor Actor, id uuid.UUID) error

	AddLine(ctx context.Context, actor Actor, orderID uuid.UUID, req OrderLineRequest) (*model.OrderLine, error)
	UpdateLine(ctx context.Context, actor Actor, lineID uuid.UUID, req UpdateOrderLineRequest) (*model.OrderLine, error)
	DeleteLine(ctx context.Context, actor Actor, lineID uuid.UUID) error
}

type orderService struct {
	orders      repository.OrderRepository
	products    repository.ProductRepository
	tables      repository.TableRepository
	restaurants repository.RestaurantRepository
	users       repository.UserRepository
	audit       repository.AuditRepository
	txManager   repository.TransactionManager
	guard       *Guard
	metrics     *metrics.Metrics
	notifier    Notifier
	logger      *zap.Logger
}

func NewOrderService(
	orders repository.OrderRepository,
	products repository.ProductRepository,
	tables repository.TableRepository,
	restaurants repository.RestaurantRepository,
	users repository.UserRepository,
	audit repository.AuditRepository,
	txManager repository.TransactionManager,
	guard *Guard,
	m *metrics.Metrics,
	notifier Notifier,
	logger *zap.Logger,
) OrderService {
	return &orderService{
		orders:      orders,
		products:    products,
		tables:      tables,
		restaurants: restaurants,
		users:       users,
		audit:       audit,
		txManager:   txManager,
		guard:       guard,
		metrics:     m,
		notifier:    notifierOrNop(notifier),
		logger:      loggerOrNop(logger),
	}
}

func (s *orderService) CreateOrder(ctx context.Context, actor Actor, req CreateOrderRequest) (*model.Order, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	restaurant, err := s.restaurants.FindByID(ctx, req.RestaurantID)
	if err != nil {
		return nil, lookupErr(err, "restaurant", req.RestaurantID)
	}
	if err := s.guard.Authorize(ctx, actor, RestaurantScope(restaurant.ID, &restaurant.CompanyID), permission.OrderWrite); err != nil {
		return nil, err
	}
	if _, err := s.users.GetByID(ctx, req.CustomerID); err != nil {
		return nil, lookupErr(err, "customer", req.CustomerID)
	}
	if req.TableID != nil {
		table, err := s.tables.FindByID(ctx, *req.TableID)
		if err != nil {
			return nil, lookupErr(err, "table", *req.TableID)
		}
		if table.RestaurantID != restaurant.ID {
			return nil, apperror.Invalid("table %d belongs to another restaurant", table.Number)
		}
	}

	date := now()
	if req.Date != nil {
		date = req.Date.UTC()
	}
	order := &model.Order{
		RestaurantID: restaurant.ID,
		CompanyID:    restaurant.CompanyID,
		TableID:      req.TableID,
		CustomerID:   req.CustomerID,
		Date:         date,
		Total:        decimal.Zero,
		Status:       model.OrderPending,
		Notes:        req.Notes,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Create(txCtx, order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		for _, lr := range req.Lines {
			if _, err := s.reserveLine(txCtx, order, lr); err != nil {
				return err
			}
		}
		if err := s.recomputeTotal(txCtx, order); err != nil {
			return err
		}
		return writeAudit(txCtx, s.audit, actor, model.ActionCreateOrder, order.ID, "", map[string]interface{}{
			"restaurant_id": order.RestaurantID,
			"lines":         len(req.Lines),
			"total":         order.Total.String(),
		})
	})
	if err != nil {
		s.countRejection(err)
		return nil, err
	}

	s.notifier.Publish(EventOrderUpdated, orderScope(order), order)
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, actor Actor, id uuid.UUID) (*model.Order, error) {
	order, err := s.orders.FindByIDWithLines(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "order", id)
	}
	if err := s.guard.Authorize(ctx, actor, orderScope(order), permission.OrderRead); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, actor Actor, q OrderQuery, p pagination.Params) (pagination.Page[model.Order], error) {
	if err := s.guard.Require(ctx, actor, permission.OrderRead); err != nil {
		return pagination.Page[model.Order]{}, err
	}
	restaurantID, companyID, err := s.guard.TenantFilter(actor, q.RestaurantID, nil)
	if err != nil {
		return pagination.Page[model.Order]{}, err
	}
	if q.Status != "" && !model.OrderStatus(q.Status).Valid() {
		return pagination.Page[model.Order]{}, apperror.Invalid("unknown order status %q", q.Status)
	}

	orders, total, err := s.orders.List(ctx, repository.OrderFilter{
		RestaurantID: restaurantID,
		CompanyID:    companyID,
		CustomerID:   q.CustomerID,
		TableID:      q.TableID,
		Status:       q.Status,
	}, p.Offset, p.Limit)
	if err != nil {
		return pagination.Page[model.Order]{}, fmt.Errorf("failed to fetch orders: %w", err)
	}
	return pagination.NewPage(orders, total, p), nil
}

// UpdateStatus walks pending -> in_progress -> completed, with cancelled
// reachable from either open state. A terminal status frees the table
// holding this order.
func (s *orderService) UpdateStatus(ctx context.Context, actor Actor, id uuid.UUID, status model.OrderStatus) (*model.Order, error) {
	if !status.Valid() {
		return nil, apperror.InvalidTransition("unknown order status %q", status)
	}
	order, err := s.loadAuthorized(ctx, actor, id, permission.OrderWrite)
	if err != nil {
		return nil, err
	}

	var released []model.Table
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		locked, err := s.orders.FindByIDForUpdate(txCtx, order.ID)
		if err != nil {
			return lookupErr(err, "order", order.ID)
		}
		if !locked.Status.CanTransitionTo(status) {
			return apperror.InvalidTransition("order cannot move from %s to %s", locked.Status, status)
		}
		previous := locked.Status
		locked.Status = status
		if err := s.orders.Update(txCtx, locked); err != nil {
			return fmt.Errorf("failed to update order: %w", err)
		}

		if status.Terminal() {
			tables, err := s.tables.FindByActiveOrder(txCtx, locked.ID)
			if err != nil {
				return fmt.Errorf("failed to load tables: %w", err)
			}
			for i := range tables {
				if err := releaseTable(txCtx, s.tables, &tables[i]); err != nil {
					return err
				}
			}
			released = tables
		}

		order = locked
		return writeAudit(txCtx, s.audit, actor, model.ActionUpdateOrderStatus, locked.ID, "", map[string]interface{}{
			"from":            previous,
			"to":              status,
			"released_tables": len(released),
		})
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Publish(EventOrderUpdated, orderScope(order), order)
	for i := range released {
		s.notifier.Publish(EventTableUpdated, tableScope(&released[i]), released[i])
	}
	return order, nil
}

// DeleteOrder restores the stock of every line and frees its table.
// Orders already invoiced are kept.
func (s *orderService) DeleteOrder(ctx context.Context, actor Actor, id uuid.UUID) error {
	order, err := s.loadAuthorized(ctx, actor, id, permission.OrderDelete)
	if err != nil {
		return err
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		locked, err := s.orders.FindByIDForUpdate(txCtx, order.ID)
		if err != nil {
			return lookupErr(err, "order", order.ID)
		}
		invoices, err := s.orders.CountInvoices(txCtx, locked.ID)
		if err != nil {
			return fmt.Errorf("failed to count invoices: %w", err)
		}
		if invoices > 0 {
			return apperror.ConflictWithDependents(invoices, "order %s has %d invoices", locked.ID, invoices)
		}

		lines, err := s.orders.ListLines(txCtx, locked.ID)
		if err != nil {
			return fmt.Errorf("failed to load order lines: %w", err)
		}
		for _, l := range lines {
			if err := s.adjustStock(txCtx, l.ProductID, l.Quantity); err != nil {
				return err
			}
		}

		tables, err := s.tables.FindByActiveOrder(txCtx, locked.ID)
		if err != nil {
			return fmt.Errorf("failed to load tables: %w", err)
		}
		for i := range tables {
			if err := releaseTable(txCtx, s.tables, &tables[i]); err != nil {
				return err
			}
		}

		if err := s.orders.Delete(txCtx, locked.ID); err != nil {
			return fmt.Errorf("failed to delete order: %w", err)
		}
		return writeAudit(txCtx, s.audit, actor, model.ActionDeleteOrder, locked.ID, "", map[string]interface{}{
			"restored_lines": len(lines),
		})
	})
}

// --- Lines ---

func (s *orderService) AddLine(ctx context.Context, actor Actor, orderID uuid.UUID, req OrderLineRequest) (*model.OrderLine, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	order, err := s.loadAuthorized(ctx, actor, orderID, permission.OrderLineWrite)
	if err != nil {
		return nil, err
	}

	var line *model.OrderLine
	err = s.mutateLines(ctx, actor, order.ID, model.ActionCreateOrderLine, func(txCtx context.Context, locked *model.Order) (uuid.UUID, error) {
		created, err := s.reserveLine(txCtx, locked, req)
		if err != nil {
			return uuid.Nil, err
		}
		line = created
		return created.ID, nil
	})
	if err != nil {
		return nil, err
	}
	return line, nil
}

// UpdateLine applies the quantity delta to stock; an increase beyond
// available stock is rejected.
func (s *orderService) UpdateLine(ctx context.Context, actor Actor, lineID uuid.UUID, req UpdateOrderLineRequest) (*model.OrderLine, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	existing, err := s.orders.FindLineByID(ctx, lineID)
	if err != nil {
		return nil, lookupErr(err, "order line", lineID)
	}
	order, err := s.loadAuthorized(ctx, actor, existing.OrderID, permission.OrderLineWrite)
	if err != nil {
		return nil, err
	}
	if req.UnitPrice != nil && req.UnitPrice.IsNegative() {
		return nil, apperror.Invalid("unit price must not be negative")
	}

	var line *model.OrderLine
	err = s.mutateLines(ctx, actor, order.ID, model.ActionUpdateOrderLine, func(txCtx context.Context, locked *model.Order) (uuid.UUID, error) {
		current, err := s.lockedLine(txCtx, locked, lineID)
		if err != nil {
			return uuid.Nil, err
		}
		if req.Quantity != nil && *req.Quantity != current.Quantity {
			if err := s.takeStock(txCtx, current.ProductID, *req.Quantity-current.Quantity); err != nil {
				return uuid.Nil, err
			}
			current.Quantity = *req.Quantity
		}
		if req.UnitPrice != nil {
			current.UnitPrice = *req.UnitPrice
		}
		if req.Notes != nil {
			current.Notes = *req.Notes
		}
		if err := s.orders.UpdateLine(txCtx, current); err != nil {
			return uuid.Nil, fmt.Errorf("failed to update order line: %w", err)
		}
		line = current
		return current.ID, nil
	})
	if err != nil {
		return nil, err
	}
	return line, nil
}

func (s *orderService) DeleteLine(ctx context.Context, actor Actor, lineID uuid.UUID) error {
	existing, err := s.orders.FindLineByID(ctx, lineID)
	if err != nil {
		return lookupErr(err, "order line", lineID)
	}
	order, err := s.loadAuthorized(ctx, actor, existing.OrderID, permission.OrderLineDelete)
	if err != nil {
		return err
	}

	return s.mutateLines(ctx, actor, order.ID, model.ActionDeleteOrderLine, func(txCtx context.Context, locked *model.Order) (uuid.UUID, error) {
		current, err := s.lockedLine(txCtx, locked, lineID)
		if err != nil {
			return uuid.Nil, err
		}
		if err := s.orders.DeleteLine(txCtx, current.ID); err != nil {
			return uuid.Nil, lookupErr(err, "order line", current.ID)
		}
		if err := s.adjustStock(txCtx, current.ProductID, current.Quantity); err != nil {
			return uuid.Nil, err
		}
		return current.ID, nil
	})
}

// lockedLine re-reads a line once its order is locked.
func (s *orderService) lockedLine(ctx context.Context, order *model.Order, lineID uuid.UUID) (*model.OrderLine, error) {
	line, err := s.orders.FindLineByID(ctx, lineID)
	if err != nil {
		return nil, lookupErr(err, "order line", lineID)
	}
	if line.OrderID != order.ID {
		return nil, apperror.NotFound("order line %s not found", lineID)
	}
	return line, nil
}

// mutateLines locks the order, runs change and recomputes the total in one transaction.
func (s *orderService) mutateLines(ctx context.Context, actor Actor, orderID uuid.UUID, action string, change func(txCtx context.Context, locked *model.Order) (uuid.UUID, error)) error {
	var order *model.Order
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		locked, err := s.orders.FindByIDForUpdate(txCtx, orderID)
		if err != nil {
			return lookupErr(err, "order", orderID)
		}
		if locked.Status.Terminal() {
			return apperror.InvalidState("order %s is %s", locked.ID, locked.Status)
		}
		lineID, err := change(txCtx, locked)
		if err != nil {
			return err
		}
		if err := s.recomputeTotal(txCtx, locked); err != nil {
			return err
		}
		order = locked
		return writeAudit(txCtx, s.audit, actor, action, locked.ID, "", map[string]interface{}{
			"line_id": lineID,
			"total":   locked.Total.String(),
		})
	})
	if err != nil {
		s.countRejection(err)
		return err
	}
	s.notifier.Publish(EventOrderUpdated, orderScope(order), order)
	return nil
}

// reserveLine takes stock for a new line and stores it.
func (s *orderService) reserveLine(ctx context.Context, order *model.Order, req OrderLineRequest) (*model.OrderLine, error) {
	if req.Quantity <= 0 {
		return nil, apperror.Invalid("quantity must be greater than zero")
	}
	product, err := s.products.FindByIDForUpdate(ctx, req.ProductID)
	if err != nil {
		return nil, lookupErr(err, "product", req.ProductID)
	}
	if product.RestaurantID != order.RestaurantID {
		return nil, apperror.Invalid("product %s belongs to another restaurant", product.ID)
	}
	if product.Stock < req.Quantity {
		return nil, apperror.InsufficientStock("product %s has %d in stock, %d requested", product.Name, product.Stock, req.Quantity)
	}
	if err := s.products.UpdateStock(ctx, product.ID, product.Stock-req.Quantity); err != nil {
		return nil, fmt.Errorf("failed to update stock: %w", err)
	}

	price := product.Price
	if req.UnitPrice != nil {
		if req.UnitPrice.IsNegative() {
			return nil, apperror.Invalid("unit price must not be negative")
		}
		price = *req.UnitPrice
	}
	line := &model.OrderLine{
		OrderID:   order.ID,
		ProductID: product.ID,
		Quantity:  req.Quantity,
		UnitPrice: price,
		Notes:     req.Notes,
	}
	if err := s.orders.CreateLine(ctx, line); err != nil {
		return nil, fmt.Errorf("failed to create order line: %w", err)
	}
	return line, nil
}

// takeStock removes delta units; a negative delta returns them.
func (s *orderService) takeStock(ctx context.Context, productID uuid.UUID, delta int) error {
	if delta <= 0 {
		return s.adjustStock(ctx, productID, -delta)
	}
	product, err := s.products.FindByIDForUpdate(ctx, productID)
	if err != nil {
		return lookupErr(err, "product", productID)
	}
	if product.Stock < delta {
		return apperror.InsufficientStock("product %s has %d in stock, %d more requested", product.Name, product.Stock, delta)
	}
	if err := s.products.UpdateStock(ctx, product.ID, product.Stock-delta); err != nil {
		return fmt.Errorf("failed to update stock: %w", err)
	}
	return nil
}

// adjustStock returns quantity units to the product.
func (s *orderService) adjustStock(ctx context.Context, productID uuid.UUID, quantity int) error {
	if quantity == 0 {
		return nil
	}
	product, err := s.products.FindByIDForUpdate(ctx, productID)
	if err != nil {
		if repository.IsNotFound(err) {
			s.logger.Warn("stock not restored, product is gone", zap.String("product", productID.String()))
			return nil
		}
		return fmt.Errorf("failed to load product: %w", err)
	}
	if err := s.products.UpdateStock(ctx, product.ID, product.Stock+quantity); err != nil {
		return fmt.Errorf("failed to update stock: %w", err)
	}
	return nil
}

func (s *orderService) recomputeTotal(ctx context.Context, order *model.Order) error {
	lines, err := s.orders.ListLines(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("failed to load order lines: %w", err)
	}
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount())
	}
	order.Total = total
	if err := s.orders.Update(ctx, order); err != nil {
		return fmt.Errorf("failed to update order total: %w", err)
	}
	return nil
}

func (s *orderService) countRejection(err error) {
	if apperror.KindOf(err) == apperror.KindInsufficientStock {
		s.metrics.Rejected(apperror.KindInsufficientStock.String())
	}
}

func (s *orderService) loadAuthorized(ctx context.Context, actor Actor, id uuid.UUID, required ...permission.Name) (*model.Order, error) {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "order", id)
	}
	if err := s.guard.Authorize(ctx, actor, orderScope(order), required...); err != nil {
		return nil, err
	}
	return order, nil
}
