package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platepay/platepay-api/internal/config"
	"github.com/platepay/platepay-api/internal/database"
	"github.com/platepay/platepay-api/internal/mailer"
	"github.com/platepay/platepay-api/internal/models"
	"github.com/platepay/platepay-api/internal/payment"
	"github.com/platepay/platepay-api/internal/repository"
	"github.com/platepay/platepay-api/internal/service"
	"github.com/platepay/platepay-api/pkg/logger"
	"github.com/platepay/platepay-api/pkg/ratelimit"
)

type stubMailer struct {
	result mailer.Result
}

func (m *stubMailer) Send(ctx context.Context, order *models.Order) mailer.Result {
	return m.result
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	l := logger.NewLogger("error")
	wrapped := database.NewFromDB(sqlx.NewDb(db, "sqlmock"), l)

	orderRepo := repository.NewOrderRepository(wrapped, l)
	outboxRepo := repository.NewOutboxRepository(wrapped, l)
	menuRepo := repository.NewMenuRepository(wrapped, l)
	adminRepo := repository.NewAdminRepository(wrapped, l)

	confirmationService := service.NewConfirmationService(orderRepo, &stubMailer{result: mailer.Result{Success: true}}, l)
	orderService := service.NewOrderService(orderRepo, outboxRepo, confirmationService, l)
	menuService := service.NewMenuService(menuRepo, nil, l)

	authService, err := service.NewAuthService(adminRepo, cfg.Auth, l)
	require.NoError(t, err)

	server := &Server{
		config:              cfg,
		logger:              l,
		router:              mux.NewRouter(),
		orderService:        orderService,
		menuService:         menuService,
		authService:         authService,
		confirmationService: confirmationService,
		publicLimiter:       ratelimit.NewIPRateLimiter(20, 10),
	}
	t.Cleanup(server.publicLimiter.Stop)

	server.setupRoutes()

	return server, mock
}

func testConfig() *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{JWTSecret: "test-secret", TokenTTL: "1h"},
	}
}

func signWebhookBody(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func doRequest(server *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) ApiResponse {
	t.Helper()

	var resp ApiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealthCheck(t *testing.T) {
	server, _ := newTestServer(t, testConfig())

	rec := doRequest(server, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeResponse(t, rec).Success)
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	cfg := testConfig()
	cfg.Paystack.WebhookSecret = "whsec"
	server, _ := newTestServer(t, cfg)

	body := []byte(`{"event":"charge.success","data":{"status":"success","reference":"R1"}}`)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/paystack-webhook", bytes.NewReader(body))
	req.Header.Set(payment.SignatureHeader, signWebhookBody("wrong-secret", body))

	rec := doRequest(server, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid signature", decodeResponse(t, rec).Error)
}

func TestWebhookIgnoresNonSuccessEvent(t *testing.T) {
	cfg := testConfig()
	cfg.Paystack.WebhookSecret = "whsec"
	server, _ := newTestServer(t, cfg)

	body := []byte(`{"event":"charge.success","data":{"status":"failed","reference":"R1"}}`)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/paystack-webhook", bytes.NewReader(body))
	req.Header.Set(payment.SignatureHeader, signWebhookBody("whsec", body))

	rec := doRequest(server, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "Not a successful payment event.", resp.Error)
}

func TestWebhookWithoutSecretSkipsVerification(t *testing.T) {
	server, _ := newTestServer(t, testConfig())

	body := []byte(`{"event":"charge.dispute.create","data":{"status":"success"}}`)

	rec := doRequest(server, httptest.NewRequest(http.MethodPost, "/api/v1/paystack-webhook", bytes.NewReader(body)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeResponse(t, rec).Success)
}

func TestWebhookRejectsMalformedPayload(t *testing.T) {
	server, _ := newTestServer(t, testConfig())

	rec := doRequest(server, httptest.NewRequest(http.MethodPost, "/api/v1/paystack-webhook", bytes.NewReader([]byte(`{"event":`))))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTrackOrderRequiresCode(t *testing.T) {
	server, _ := newTestServer(t, testConfig())

	rec := doRequest(server, httptest.NewRequest(http.MethodGet, "/api/v1/track-order", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Tracking code is required", decodeResponse(t, rec).Error)
}

func TestTrackOrderUnknownReference(t *testing.T) {
	server, mock := newTestServer(t, testConfig())

	mock.ExpectQuery("SELECT (.+) FROM orders WHERE reference").
		WithArgs("MISSING").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rec := doRequest(server, httptest.NewRequest(http.MethodGet, "/api/v1/track-order?code=MISSING", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decodeResponse(t, rec).Error, "Order not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmailSweepRunsDespiteBadCronSecret(t *testing.T) {
	cfg := testConfig()
	cfg.CronSecret = "cron-secret"
	server, mock := newTestServer(t, cfg)

	mock.ExpectQuery("SELECT (.+) FROM orders WHERE paid = TRUE").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/email-automation", nil)
	req.Header.Set("Authorization", "Bearer wrong")

	rec := doRequest(server, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeResponse(t, rec).Success)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmailSweepStatusReportsPending(t *testing.T) {
	server, mock := newTestServer(t, testConfig())

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	rec := doRequest(server, httptest.NewRequest(http.MethodGet, "/api/v1/email-automation", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pending":4`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdminRoutesRequireToken(t *testing.T) {
	server, _ := newTestServer(t, testConfig())

	rec := doRequest(server, httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoutesRejectBadToken(t *testing.T) {
	server, _ := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")

	rec := doRequest(server, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoutesAcceptValidToken(t *testing.T) {
	server, mock := newTestServer(t, testConfig())

	claims := service.AdminClaims{
		FullName: "Ada Obi",
		Role:     "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	mock.ExpectQuery("SELECT (.+) FROM orders WHERE 1=1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rec := doRequest(server, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimitMiddleware(t *testing.T) {
	server, _ := newTestServer(t, testConfig())

	server.publicLimiter = ratelimit.NewIPRateLimiter(1, 0)
	t.Cleanup(server.publicLimiter.Stop)

	first := httptest.NewRequest(http.MethodGet, "/api/v1/track-order", nil)
	first.RemoteAddr = "203.0.113.7:41000"
	assert.Equal(t, http.StatusBadRequest, doRequest(server, first).Code)

	second := httptest.NewRequest(http.MethodGet, "/api/v1/track-order", nil)
	second.RemoteAddr = "203.0.113.7:41001"
	assert.Equal(t, http.StatusTooManyRequests, doRequest(server, second).Code)

	// A different client keeps its own bucket
	other := httptest.NewRequest(http.MethodGet, "/api/v1/track-order", nil)
	other.RemoteAddr = "198.51.100.9:41000"
	assert.Equal(t, http.StatusBadRequest, doRequest(server, other).Code)
}

func TestCreateOrderRejectsMalformedPayload(t *testing.T) {
	server, _ := newTestServer(t, testConfig())

	rec := doRequest(server, httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewReader([]byte(`{`))))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadImageUnavailableWithoutStore(t *testing.T) {
	server, _ := newTestServer(t, testConfig())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/menu/image", bytes.NewReader([]byte("png-bytes")))

	server.uploadMenuImageHandler(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
