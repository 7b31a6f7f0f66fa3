package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"restaurant-backend/internal/model"
	"restaurant-backend/internal/permission"
	"restaurant-backend/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type tokenAuth map[string]*model.User

func (a tokenAuth) Authenticate(_ context.Context, token string) (*model.User, error) {
	if u, ok := a[token]; ok {
		return u, nil
	}
	return nil, errors.New("invalid token")
}

// restaurantAuthz admits an actor to events of its own restaurant when it
// holds the required permissions.
type restaurantAuthz struct {
	grants map[uuid.UUID][]permission.Name
}

func (a restaurantAuthz) Authorize(_ context.Context, actor service.Actor, scope service.Scope, required ...permission.Name) error {
	if scope.RestaurantID == nil || actor.RestaurantID == nil || *scope.RestaurantID != *actor.RestaurantID {
		return errors.New("outside of scope")
	}
	for _, r := range required {
		found := false
		for _, g := range a.grants[actor.ID] {
			if g == r {
				found = true
			}
		}
		if !found {
			return errors.New("missing " + r.String())
		}
	}
	return nil
}

func staffUser(restaurantID uuid.UUID) *model.User {
	u := &model.User{Email: "staff@example.com", RestaurantID: &restaurantID}
	u.ID = uuid.New()
	return u
}

func startHub(t *testing.T, authz Authorizer) *Hub {
	t.Helper()
	hub := NewHub(zap.NewNop(), nil, authz)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func newServer(t *testing.T, hub *Hub, users tokenAuth) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", hub.ServeWs(users))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, token string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, token), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type frame struct {
	Event string            `json:"event"`
	Data  map[string]string `json:"data"`
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var f frame
	require.NoError(t, json.Unmarshal(raw, &f))
	return f
}

// publishUntil keeps publishing until stop is closed; registration races
// the first publish.
func publishUntil(hub *Hub, stop <-chan struct{}, publish func()) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			publish()
		}
	}
}

func TestServeWsRejectsBadTokens(t *testing.T) {
	hub := startHub(t, nil)
	srv := newServer(t, hub, tokenAuth{"valid": staffUser(uuid.New())})

	for _, token := range []string{"", "forged"} {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, token), nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}

func TestPublishReachesSuperuser(t *testing.T) {
	root := &model.User{Email: "root@example.com", IsSuperuser: true}
	root.ID = uuid.New()
	hub := startHub(t, nil)
	srv := newServer(t, hub, tokenAuth{"root": root})
	conn := dial(t, srv, "root")

	stop := make(chan struct{})
	go publishUntil(hub, stop, func() {
		hub.Publish(service.EventInvoicePaid, service.Scope{}, map[string]string{"id": "inv-1"})
	})
	got := readFrame(t, conn)
	close(stop)

	assert.Equal(t, service.EventInvoicePaid, got.Event)
	assert.Equal(t, "inv-1", got.Data["id"])
}

func TestPublishStaysInsideTenant(t *testing.T) {
	downtown, seaside := uuid.New(), uuid.New()
	cashier := staffUser(downtown)
	waiter := staffUser(seaside)
	authz := restaurantAuthz{grants: map[uuid.UUID][]permission.Name{
		cashier.ID: {permission.PaymentRead, permission.OrderRead},
		waiter.ID:  {permission.OrderRead},
	}}
	hub := startHub(t, authz)
	srv := newServer(t, hub, tokenAuth{"cashier": cashier, "waiter": waiter})
	cashierConn := dial(t, srv, "cashier")
	waiterConn := dial(t, srv, "waiter")

	stop := make(chan struct{})
	go publishUntil(hub, stop, func() {
		hub.Publish(service.EventPaymentRecorded, service.Scope{RestaurantID: &downtown}, map[string]string{"restaurant": "downtown"})
		hub.Publish(service.EventPaymentRecorded, service.Scope{RestaurantID: &seaside}, map[string]string{"restaurant": "seaside"})
		hub.Publish(service.EventOrderUpdated, service.Scope{RestaurantID: &seaside}, map[string]string{"restaurant": "seaside"})
	})
	first := readFrame(t, cashierConn)
	second := readFrame(t, waiterConn)
	third := readFrame(t, waiterConn)
	close(stop)

	assert.Equal(t, service.EventPaymentRecorded, first.Event)
	assert.Equal(t, "downtown", first.Data["restaurant"])

	// the waiter lacks payment.read, so only its own restaurant's orders arrive
	for _, f := range []frame{second, third} {
		assert.Equal(t, service.EventOrderUpdated, f.Event)
		assert.Equal(t, "seaside", f.Data["restaurant"])
	}
}

func TestAllowed(t *testing.T) {
	restaurantID := uuid.New()
	staff := service.ActorFromUser(staffUser(restaurantID))
	inScope := &event{name: service.EventTableUpdated, scope: service.Scope{RestaurantID: &restaurantID}}

	withGrant := NewHub(zap.NewNop(), nil, restaurantAuthz{grants: map[uuid.UUID][]permission.Name{
		staff.ID: {permission.TableRead},
	}})
	assert.True(t, withGrant.allowed(staff, inScope))
	assert.False(t, withGrant.allowed(staff, &event{name: "unknown.event", scope: inScope.scope}))

	noAuthz := NewHub(zap.NewNop(), nil, nil)
	assert.False(t, noAuthz.allowed(staff, inScope))
	assert.True(t, noAuthz.allowed(service.Actor{IsSuperuser: true}, inScope))
}

func TestPublishNeverBlocks(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < sendBufferSize*2; i++ {
			hub.Publish(service.EventOrderUpdated, service.Scope{}, i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked without a running hub")
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://localhost:5173"})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://localhost:5173")
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://evil.example.com")
	assert.False(t, check(req))

	assert.True(t, originChecker(nil)(req))
}
