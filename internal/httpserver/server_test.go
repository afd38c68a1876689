package httpserver

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/muhammadshahms/shoe-shop/internal/cache"
	"github.com/muhammadshahms/shoe-shop/internal/checkout"
	"github.com/muhammadshahms/shoe-shop/internal/dbtest"
	"github.com/muhammadshahms/shoe-shop/internal/events"
	"github.com/muhammadshahms/shoe-shop/internal/inventory"
	"github.com/muhammadshahms/shoe-shop/internal/logging"
	"github.com/muhammadshahms/shoe-shop/internal/metrics"
	loggingmw "github.com/muhammadshahms/shoe-shop/internal/middleware/logging"
	"github.com/muhammadshahms/shoe-shop/internal/models"
	"github.com/muhammadshahms/shoe-shop/internal/repo"
	"github.com/muhammadshahms/shoe-shop/internal/service"
	"github.com/muhammadshahms/shoe-shop/internal/tokens"
)

var testSecret = []byte("test-secret")

type testEnv struct {
	DB      *gorm.DB
	E       *echo.Echo
	Metrics *metrics.Metrics
	Events  *events.Recorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := dbtest.New(t)
	m := metrics.New()
	rec := &events.Recorder{}
	r := repo.New(db)
	ledger := inventory.NewLedger()

	e := echo.New()
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(loggingmw.RequestLogger(logging.NewWithWriter(io.Discard, "error")))
	e.Use(m.Middleware())

	Register(e, &Deps{
		DB:              db,
		CheckoutHandler: &CheckoutHTTP{Coordinator: checkout.NewCoordinator(db, ledger, rec, m)},
		OrderHandler:    &OrderHTTP{Svc: service.NewOrderService(r, ledger, cache.NewMemory(), rec, m)},
		CatalogHandler:  &CatalogHTTP{Svc: &service.CatalogService{Repo: r, Events: rec}},
		AuthHandler:     &AuthHTTP{Svc: &service.AuthService{Repo: r, JWTSecret: testSecret}},
		JWTSecret:       testSecret,
		Metrics:         m,
	})

	return &testEnv{DB: db, E: e, Metrics: m, Events: rec}
}

func (env *testEnv) user(t *testing.T, username, role string) *http.Cookie {
	t.Helper()
	u := models.User{Username: username, PasswordHash: "x", Role: role}
	require.NoError(t, env.DB.Create(&u).Error)
	tok, err := tokens.NewAccessToken(testSecret, u.ID, role, time.Now().Add(time.Minute))
	require.NoError(t, err)
	return &http.Cookie{Name: tokens.AccessCookie, Value: tok, Path: "/"}
}

func (env *testEnv) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	env.E.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}
