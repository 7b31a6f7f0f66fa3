package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"restaurant-backend/internal/config"
	"restaurant-backend/internal/database"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	rootEmail    = "root@example.com"
	rootPassword = "root-password"
)

type envelope struct {
	Status     string          `json:"status"`
	StatusCode int             `json:"status_code"`
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error"`
	Code       string          `json:"code"`
	Details    map[string]int  `json:"details"`
}

type apiClient struct {
	t      *testing.T
	router *gin.Engine
}

func newAPI(t *testing.T) *apiClient {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))

	cfg := &config.Config{
		Auth: config.AuthConfig{JWTSecret: []byte("test"), TokenTTL: time.Hour},
	}
	cfg.Seed.SuperuserEmail = rootEmail
	cfg.Seed.SuperuserPassword = rootPassword

	c := New(db, cfg, zap.NewNop(), nil)
	require.NoError(t, c.Bootstrap(context.Background()))
	// running twice must not fail or duplicate the superuser
	require.NoError(t, c.Bootstrap(context.Background()))

	return &apiClient{t: t, router: c.Router()}
}

func (a *apiClient) do(method, path, token string, body interface{}) (int, envelope) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

// create posts body and returns the id of the created resource.
func (a *apiClient) create(path, token string, body interface{}) string {
	a.t.Helper()
	code, env := a.do(http.MethodPost, path, token, body)
	require.Equal(a.t, http.StatusCreated, code, env.Error)
	var out struct {
		ID string `json:"id"`
	}
	require.NoError(a.t, json.Unmarshal(env.Data, &out))
	require.NotEmpty(a.t, out.ID)
	return out.ID
}

func (a *apiClient) login(email, password string) string {
	a.t.Helper()
	code, env := a.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": email, "password": password})
	require.Equal(a.t, http.StatusOK, code, env.Error)
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(a.t, json.Unmarshal(env.Data, &out))
	require.NotEmpty(a.t, out.Token)
	return out.Token
}

func TestHealth(t *testing.T) {
	api := newAPI(t)
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"OK"}`, w.Body.String())
}

func TestAuthentication(t *testing.T) {
	api := newAPI(t)

	code, env := api.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": rootEmail, "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "error", env.Status)

	code, _ = api.do(http.MethodGet, "/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	token := api.login(rootEmail, rootPassword)
	code, env = api.do(http.MethodGet, "/api/me", token, nil)
	require.Equal(t, http.StatusOK, code)
	var me struct {
		Email       string `json:"email"`
		IsSuperuser bool   `json:"is_superuser"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Equal(t, rootEmail, me.Email)
	assert.True(t, me.IsSuperuser)
}

func TestRequestErrorsMapToStatuses(t *testing.T) {
	api := newAPI(t)
	root := api.login(rootEmail, rootPassword)

	code, env := api.do(http.MethodGet, "/api/invoices/not-a-uuid", root, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid", env.Code)

	code, env = api.do(http.MethodGet, "/api/invoices/6f1c1f7e-8d1a-4c55-9f57-3d1c2b1f0a11", root, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", env.Code)
}

func TestInvoicePaymentFlow(t *testing.T) {
	api := newAPI(t)
	root := api.login(rootEmail, rootPassword)

	companyID := api.create("/api/companies", root, gin.H{"name": "Acme Foods"})
	restaurantID := api.create("/api/restaurants", root, gin.H{"company_id": companyID, "name": "Downtown"})
	customerID := api.create("/api/users", root, gin.H{"email": "guest@example.com", "password": "secret1"})

	code, env := api.do(http.MethodPost, "/api/invoices", root, gin.H{
		"restaurant_id": restaurantID,
		"customer_id":   customerID,
		"lines": []gin.H{
			{"description": "Set menu", "quantity": "2", "unit_price": "50"},
		},
	})
	require.Equal(t, http.StatusCreated, code, env.Error)
	var invoice struct {
		ID     string          `json:"id"`
		Status string          `json:"status"`
		Total  decimal.Decimal `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &invoice))
	assert.Equal(t, "pending", invoice.Status)
	assert.True(t, decimal.NewFromInt(100).Equal(invoice.Total), invoice.Total.String())

	code, env = api.do(http.MethodPost, "/api/payments", root, gin.H{
		"invoice_id": invoice.ID, "amount": "150", "method": "cash",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "amount_exceeds_balance", env.Code)

	api.create("/api/payments", root, gin.H{"invoice_id": invoice.ID, "amount": "40", "method": "cash"})

	code, env = api.do(http.MethodGet, "/api/invoices/"+invoice.ID+"/balance", root, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	var balance struct {
		Paid    decimal.Decimal `json:"paid"`
		Balance decimal.Decimal `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &balance))
	assert.True(t, decimal.NewFromInt(40).Equal(balance.Paid), balance.Paid.String())
	assert.True(t, decimal.NewFromInt(60).Equal(balance.Balance), balance.Balance.String())

	code, env = api.do(http.MethodDelete, "/api/invoices/"+invoice.ID, root, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "conflict", env.Code)
	assert.Equal(t, 1, env.Details["dependents"])

	// staff member without any role or grant
	api.create("/api/users", root, gin.H{"email": "staff@example.com", "password": "secret1", "restaurant_id": restaurantID})
	staff := api.login("staff@example.com", "secret1")

	code, env = api.do(http.MethodGet, "/api/invoices/"+invoice.ID, staff, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "forbidden", env.Code)
}
