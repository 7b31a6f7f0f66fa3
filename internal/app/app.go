// Package app wires repositories, services and the HTTP router.
package app

import (
	"context"
	"fmt"
	"net/http"

	"restaurant-backend/internal/config"
	"restaurant-backend/internal/handler"
	"restaurant-backend/internal/middleware"
	"restaurant-backend/internal/repository"
	"restaurant-backend/internal/service"
	"restaurant-backend/internal/websocket"
	"restaurant-backend/pkg/metrics"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Container holds every service built from one database handle.
type Container struct {
	Users       service.UserService
	RBAC        service.RBACService
	Companies   service.CompanyService
	Catalog     service.CatalogService
	Tables      service.TableService
	Orders      service.OrderService
	Invoices    service.InvoiceService
	Payments    service.PaymentService
	Corrections service.CorrectionService
	Audit       service.AuditService

	Hub     *websocket.Hub
	Metrics *metrics.Metrics

	cfg    *config.Config
	logger *zap.Logger
}

// New builds the repository and service graph. Events are published through
// the hub, which filters them with the same guard as the HTTP API.
func New(db *gorm.DB, cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) *Container {
	if logger == nil {
		logger = zap.NewNop()
	}
	users := repository.NewUserRepository(db)
	perms := repository.NewPermissionRepository(db)
	roles := repository.NewRoleRepository(db)
	companies := repository.NewCompanyRepository(db)
	restaurants := repository.NewRestaurantRepository(db)
	tables := repository.NewTableRepository(db)
	categories := repository.NewCategoryRepository(db)
	taxRates := repository.NewTaxRateRepository(db)
	products := repository.NewProductRepository(db)
	orders := repository.NewOrderRepository(db)
	invoices := repository.NewInvoiceRepository(db)
	payments := repository.NewPaymentRepository(db)
	corrections := repository.NewCorrectionRepository(db)
	audit := repository.NewAuditRepository(db)
	tx := repository.NewTransactionManager(db)

	guard := service.NewGuard(service.NewPermissionResolver(users, perms), restaurants)
	hub := websocket.NewHub(logger.Named("websocket"), cfg.CORSOrigins, guard)
	engine := service.NewTotalsEngine(invoices, payments)
	tokens := service.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	return &Container{
		Users:     service.NewUserService(users, companies, restaurants, tokens, guard, logger.Named("users")),
		RBAC:      service.NewRBACService(perms, roles, users, audit, tx, guard, logger.Named("rbac")),
		Companies: service.NewCompanyService(companies, restaurants, taxRates, tx, guard),
		Catalog:   service.NewCatalogService(categories, taxRates, products, restaurants, audit, tx, guard, logger.Named("catalog")),
		Tables:    service.NewTableService(tables, orders, restaurants, audit, tx, guard, hub, logger.Named("tables")),
		Orders:    service.NewOrderService(orders, products, tables, restaurants, users, audit, tx, guard, m, hub, logger.Named("orders")),
		Invoices: service.NewInvoiceService(service.InvoiceDeps{
			Invoices:    invoices,
			Payments:    payments,
			Corrections: corrections,
			Orders:      orders,
			Products:    products,
			TaxRates:    taxRates,
			Restaurants: restaurants,
			Companies:   companies,
			Users:       users,
			Audit:       audit,
			TxManager:   tx,
			Engine:      engine,
			Guard:       guard,
			Notifier:    hub,
			Logger:      logger.Named("invoices"),
		}),
		Payments:    service.NewPaymentService(invoices, payments, audit, tx, engine, guard, m, hub, logger.Named("payments")),
		Corrections: service.NewCorrectionService(corrections, invoices, audit, tx, engine, guard, m, hub, logger.Named("corrections")),
		Audit:       service.NewAuditService(audit, guard),

		Hub:     hub,
		Metrics: m,
		cfg:     cfg,
		logger:  logger,
	}
}

// Bootstrap syncs the permission registry, seeds default roles and the
// configured superuser. It is idempotent.
func (c *Container) Bootstrap(ctx context.Context) error {
	if err := c.RBAC.SyncRegistry(ctx); err != nil {
		return fmt.Errorf("failed to sync permissions: %w", err)
	}
	if err := c.RBAC.SeedDefaultRoles(ctx); err != nil {
		return fmt.Errorf("failed to seed roles: %w", err)
	}
	if err := c.Users.EnsureSuperuser(ctx, c.cfg.Seed.SuperuserEmail, c.cfg.Seed.SuperuserPassword); err != nil {
		return fmt.Errorf("failed to ensure superuser: %w", err)
	}
	return nil
}

type routeRegistrar interface {
	RegisterRoutes(router *gin.RouterGroup)
}

// Router builds the gin engine: /health, /metrics, /ws and the /api tree.
func (c *Container) Router() *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(c.logger.Named("http")), middleware.Recovery(c.logger))
	if c.Metrics != nil {
		r.Use(c.Metrics.Middleware())
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = c.cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	if len(corsConfig.AllowOrigins) > 0 {
		r.Use(cors.New(corsConfig))
	}

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
	if c.Metrics != nil {
		r.GET("/metrics", gin.WrapH(c.Metrics.Handler()))
	}
	r.GET("/ws", c.Hub.ServeWs(c.Users))

	api := r.Group("/api")
	users := handler.NewUserHandler(c.Users, c.RBAC, middleware.CookieOptions{Secure: c.cfg.ReleaseMode})
	users.RegisterPublicRoutes(api)

	protected := api.Group("", middleware.Authenticate(c.Users))
	registrars := []routeRegistrar{
		users,
		handler.NewRoleHandler(c.RBAC),
		handler.NewCompanyHandler(c.Companies),
		handler.NewCatalogHandler(c.Catalog),
		handler.NewTableHandler(c.Tables),
		handler.NewOrderHandler(c.Orders, c.Invoices),
		handler.NewInvoiceHandler(c.Invoices),
		handler.NewPaymentHandler(c.Payments),
		handler.NewCorrectionHandler(c.Corrections),
		handler.NewAuditHandler(c.Audit),
	}
	for _, reg := range registrars {
		reg.RegisterRoutes(protected)
	}
	return r
}
