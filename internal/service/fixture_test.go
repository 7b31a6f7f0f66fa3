package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"restaurant-backend/internal/database"
	"restaurant-backend/internal/model"
	"restaurant-backend/internal/permission"
	"restaurant-backend/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type recordedEvent struct {
	name    string
	scope   Scope
	payload interface{}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *recordingNotifier) Publish(event string, scope Scope, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{name: event, scope: scope, payload: payload})
}

// last returns the most recent event with the given name.
func (n *recordingNotifier) last(event string) (recordedEvent, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.events) - 1; i >= 0; i-- {
		if n.events[i].name == event {
			return n.events[i], true
		}
	}
	return recordedEvent{}, false
}

func (n *recordingNotifier) count(event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e.name == event {
			c++
		}
	}
	return c
}

type fixture struct {
	t        *testing.T
	ctx      context.Context
	db       *gorm.DB
	notifier *recordingNotifier

	users       repository.UserRepository
	perms       repository.PermissionRepository
	roles       repository.RoleRepository
	companies   repository.CompanyRepository
	restaurants repository.RestaurantRepository
	tables      repository.TableRepository
	categories  repository.CategoryRepository
	taxRates    repository.TaxRateRepository
	products    repository.ProductRepository
	orders      repository.OrderRepository
	invoiceRepo repository.InvoiceRepository
	payRepo     repository.PaymentRepository
	corrRepo    repository.CorrectionRepository
	auditRepo   repository.AuditRepository
	tx          repository.TransactionManager

	resolver *PermissionResolver
	guard    *Guard
	engine   *TotalsEngine

	invoices    InvoiceService
	payments    PaymentService
	corrections CorrectionService
	tableSvc    TableService
	orderSvc    OrderService
	catalog     CatalogService
	companySvc  CompanyService
	rbac        RBACService
	userSvc     UserService
	auditSvc    AuditService
	tokens      *TokenManager

	root       Actor
	company    *model.Company
	restaurant *model.Restaurant
	customer   *model.User
	category   *model.Category
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))

	f := &fixture{t: t, ctx: context.Background(), db: db, notifier: &recordingNotifier{}}

	f.users = repository.NewUserRepository(db)
	f.perms = repository.NewPermissionRepository(db)
	f.roles = repository.NewRoleRepository(db)
	f.companies = repository.NewCompanyRepository(db)
	f.restaurants = repository.NewRestaurantRepository(db)
	f.tables = repository.NewTableRepository(db)
	f.categories = repository.NewCategoryRepository(db)
	f.taxRates = repository.NewTaxRateRepository(db)
	f.products = repository.NewProductRepository(db)
	f.orders = repository.NewOrderRepository(db)
	f.invoiceRepo = repository.NewInvoiceRepository(db)
	f.payRepo = repository.NewPaymentRepository(db)
	f.corrRepo = repository.NewCorrectionRepository(db)
	f.auditRepo = repository.NewAuditRepository(db)
	tx := repository.NewTransactionManager(db)
	f.tx = tx

	f.resolver = NewPermissionResolver(f.users, f.perms)
	f.guard = NewGuard(f.resolver, f.restaurants)
	f.engine = NewTotalsEngine(f.invoiceRepo, f.payRepo)
	f.tokens = NewTokenManager([]byte("test-secret"), 0)

	f.invoices = NewInvoiceService(InvoiceDeps{
		Invoices:    f.invoiceRepo,
		Payments:    f.payRepo,
		Corrections: f.corrRepo,
		Orders:      f.orders,
		Products:    f.products,
		TaxRates:    f.taxRates,
		Restaurants: f.restaurants,
		Companies:   f.companies,
		Users:       f.users,
		Audit:       f.auditRepo,
		TxManager:   tx,
		Engine:      f.engine,
		Guard:       f.guard,
		Notifier:    f.notifier,
	})
	f.payments = NewPaymentService(f.invoiceRepo, f.payRepo, f.auditRepo, tx, f.engine, f.guard, nil, f.notifier, nil)
	f.corrections = NewCorrectionService(f.corrRepo, f.invoiceRepo, f.auditRepo, tx, f.engine, f.guard, nil, f.notifier, nil)
	f.tableSvc = NewTableService(f.tables, f.orders, f.restaurants, f.auditRepo, tx, f.guard, f.notifier, nil)
	f.orderSvc = NewOrderService(f.orders, f.products, f.tables, f.restaurants, f.users, f.auditRepo, tx, f.guard, nil, f.notifier, nil)
	f.catalog = NewCatalogService(f.categories, f.taxRates, f.products, f.restaurants, f.auditRepo, tx, f.guard, nil)
	f.companySvc = NewCompanyService(f.companies, f.restaurants, f.taxRates, tx, f.guard)
	f.rbac = NewRBACService(f.perms, f.roles, f.users, f.auditRepo, tx, f.guard, nil)
	f.userSvc = NewUserService(f.users, f.companies, f.restaurants, f.tokens, f.guard, nil)
	f.auditSvc = NewAuditService(f.auditRepo, f.guard)

	require.NoError(t, f.rbac.SeedDefaultRoles(f.ctx))

	admin := f.user("root@example.com", true, nil, nil)
	f.root = ActorFromUser(admin)

	f.company = &model.Company{Name: "Acme Foods"}
	require.NoError(t, f.companies.Create(f.ctx, f.company))
	f.restaurant = f.newRestaurant(f.company.ID, "Downtown")
	f.customer = f.user("guest@example.com", false, nil, nil)
	f.category = &model.Category{RestaurantID: f.restaurant.ID, Name: "Mains"}
	require.NoError(t, f.categories.Create(f.ctx, f.category))
	return f
}

func (f *fixture) newRestaurant(companyID uuid.UUID, name string) *model.Restaurant {
	r := &model.Restaurant{CompanyID: companyID, Name: name}
	require.NoError(f.t, f.restaurants.Create(f.ctx, r))
	return r
}

func (f *fixture) user(email string, superuser bool, companyID, restaurantID *uuid.UUID) *model.User {
	u := &model.User{
		Email:        email,
		Password:     "x",
		IsActive:     true,
		IsSuperuser:  superuser,
		CompanyID:    companyID,
		RestaurantID: restaurantID,
	}
	require.NoError(f.t, f.users.Create(f.ctx, u))
	return u
}

// staff creates a restaurant user holding exactly the given permissions.
func (f *fixture) staff(restaurant *model.Restaurant, names ...permission.Name) Actor {
	companyID := restaurant.CompanyID
	restaurantID := restaurant.ID
	u := f.user(fmt.Sprintf("staff-%s@example.com", uuid.NewString()[:8]), false, &companyID, &restaurantID)
	f.grant(u.ID, names...)
	return ActorFromUser(u)
}

func (f *fixture) grant(userID uuid.UUID, names ...permission.Name) {
	for _, n := range names {
		p, err := f.perms.FindByName(f.ctx, n.String())
		require.NoError(f.t, err)
		require.NoError(f.t, f.perms.GrantToUser(f.ctx, userID, p.ID, nil))
	}
}

func (f *fixture) product(name string, price string, stock int, taxRateID *uuid.UUID) *model.Product {
	p := &model.Product{
		RestaurantID: f.restaurant.ID,
		CategoryID:   f.category.ID,
		TaxRateID:    taxRateID,
		Name:         name,
		Price:        decimal.RequireFromString(price),
		Stock:        stock,
	}
	require.NoError(f.t, f.products.Create(f.ctx, p))
	return p
}

func (f *fixture) taxRate(name, pct string) *model.TaxRate {
	r := &model.TaxRate{Name: name, Percentage: decimal.RequireFromString(pct)}
	require.NoError(f.t, f.taxRates.Create(f.ctx, r))
	return r
}

// invoice creates a pending invoice with one untaxed line worth total.
func (f *fixture) invoice(total string) *model.Invoice {
	inv, err := f.invoices.CreateInvoice(f.ctx, f.root, CreateInvoiceRequest{
		RestaurantID: f.restaurant.ID,
		CustomerID:   f.customer.ID,
		Lines: []InvoiceLineRequest{{
			Description: "Dinner",
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   decimal.RequireFromString(total),
		}},
	})
	require.NoError(f.t, err)
	return inv
}

func (f *fixture) pay(invoiceID uuid.UUID, amount string) (*model.Payment, error) {
	return f.payments.RecordPayment(f.ctx, f.root, RecordPaymentRequest{
		InvoiceID: invoiceID,
		Amount:    decimal.RequireFromString(amount),
		Method:    model.PaymentCash,
	})
}

func (f *fixture) reload(id uuid.UUID) *model.Invoice {
	inv, err := f.invoiceRepo.FindByID(f.ctx, id)
	require.NoError(f.t, err)
	return inv
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}
