package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"

	"github.com/AnshRaj112/somnia-backend/internal/handlers"
	"github.com/AnshRaj112/somnia-backend/internal/middleware"
	"github.com/AnshRaj112/somnia-backend/internal/otp"
	"github.com/AnshRaj112/somnia-backend/internal/repository"
	"github.com/AnshRaj112/somnia-backend/internal/services"
	"github.com/AnshRaj112/somnia-backend/internal/tokens"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type inbox struct {
	mu   sync.Mutex
	text []string
}

func (i *inbox) Send(_ context.Context, msg services.Message) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.text = append(i.text, msg.Text)
	return nil
}

func (i *inbox) code(t *testing.T) string {
	t.Helper()
	i.mu.Lock()
	defer i.mu.Unlock()
	require.NotEmpty(t, i.text)
	return regexp.MustCompile(`\b\d{6}\b`).FindString(i.text[len(i.text)-1])
}

func newServer(t *testing.T, otpLimit func(http.Handler) http.Handler) (*httptest.Server, *inbox) {
	t.Helper()
	log := zap.NewNop()
	users := repository.NewMemoryUserRepository()
	dreams := repository.NewMemoryDreamRepository()
	tags := repository.NewMemoryTagRepository()
	mail := &inbox{}

	ledger := otp.NewLedger(repository.NewMemoryOTPRepository(), users, otp.NewBcryptHasher(bcrypt.MinCost))
	bridge, err := tokens.NewBridgeIssuer("reset-secret", 0)
	require.NoError(t, err)
	sessions, err := tokens.NewSessionManager("session-secret", 0, 0, users)
	require.NoError(t, err)
	recovery, err := services.NewRecoveryService(ledger, bridge, sessions, users, mail, "no-reply@somnia.test", log)
	require.NoError(t, err)
	guest := services.NewGuestService(users, dreams, tags, sessions, services.NewKeyedMutex(), "", log)
	auth := services.NewAuthService(users, sessions, guest, log)
	dreamSvc := services.NewDreamService(dreams, tags, services.MockGenerator{}, services.NopCache{}, log)

	r := chi.NewRouter()
	SetupRoutes(r, handlers.New(auth, recovery, dreamSvc, log), otpLimit)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, mail
}

func do(t *testing.T, srv *httptest.Server, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestSessionLifecycle(t *testing.T) {
	srv, _ := newServer(t, nil)
	creds := map[string]string{"email": "sleeper@example.com", "password": "dream-password"}

	status, body := do(t, srv, http.MethodPost, "/api/auth/register", "", creds)
	require.Equal(t, http.StatusCreated, status, body)
	laptop := body["token"].(string)

	status, body = do(t, srv, http.MethodPost, "/api/auth/login", "", creds)
	require.Equal(t, http.StatusOK, status)
	phone := body["token"].(string)

	status, body = do(t, srv, http.MethodGet, "/api/auth/me", phone, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "sleeper@example.com", body["user"].(map[string]any)["email"])

	status, _ = do(t, srv, http.MethodPost, "/api/auth/logout", phone, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = do(t, srv, http.MethodGet, "/api/auth/me", phone, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _ = do(t, srv, http.MethodGet, "/api/auth/me", laptop, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestProtectedRoutes(t *testing.T) {
	srv, _ := newServer(t, nil)
	for _, route := range []struct{ method, path string }{
		{http.MethodPost, "/api/auth/logout"},
		{http.MethodGet, "/api/auth/me"},
		{http.MethodPost, "/api/auth/email/update/request"},
		{http.MethodPost, "/api/auth/email/update/confirm"},
		{http.MethodPost, "/api/auth/email/verify/request"},
		{http.MethodPost, "/api/auth/email/verify/confirm"},
		{http.MethodPost, "/api/dreams"},
		{http.MethodGet, "/api/dreams"},
		{http.MethodGet, "/api/tags"},
	} {
		status, _ := do(t, srv, route.method, route.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, status, route.path)
	}
}

func TestPasswordResetLogsOutEverywhere(t *testing.T) {
	srv, mail := newServer(t, nil)
	creds := map[string]string{"email": "forgetful@example.com", "password": "dream-password"}
	_, body := do(t, srv, http.MethodPost, "/api/auth/register", "", creds)
	session := body["token"].(string)

	status, _ := do(t, srv, http.MethodPost, "/api/auth/password/forgot", "", map[string]string{"email": creds["email"]})
	require.Equal(t, http.StatusOK, status)

	status, body = do(t, srv, http.MethodPost, "/api/auth/password/verify", "",
		map[string]string{"email": creds["email"], "otp": mail.code(t)})
	require.Equal(t, http.StatusOK, status)

	status, _ = do(t, srv, http.MethodPost, "/api/auth/password/reset", "",
		map[string]string{"reset_token": body["reset_token"].(string), "password": "fresh-password"})
	require.Equal(t, http.StatusOK, status)

	status, _ = do(t, srv, http.MethodGet, "/api/auth/me", session, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	creds["password"] = "fresh-password"
	status, _ = do(t, srv, http.MethodPost, "/api/auth/login", "", creds)
	assert.Equal(t, http.StatusOK, status)
}

func TestGuestSeesSeededDreams(t *testing.T) {
	srv, _ := newServer(t, nil)
	status, body := do(t, srv, http.MethodPost, "/api/auth/guest", "", nil)
	require.Equal(t, http.StatusOK, status)
	token := body["token"].(string)

	status, body = do(t, srv, http.MethodGet, "/api/dreams", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 3, body["total"])
}

func TestCodeRoutesAreRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limit := middleware.NewOTPRateLimit(client, 2, 0, zap.NewNop())
	srv, _ := newServer(t, limit.Handler)

	email := map[string]string{"email": "someone@example.com"}
	for i := 0; i < 2; i++ {
		status, _ := do(t, srv, http.MethodPost, "/api/auth/password/forgot", "", email)
		assert.Equal(t, http.StatusOK, status)
	}
	status, _ := do(t, srv, http.MethodPost, "/api/auth/password/forgot", "", email)
	assert.Equal(t, http.StatusTooManyRequests, status)

	// Login is not behind the code limiter.
	status, _ = do(t, srv, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "x@example.com", "password": "whatever-pass"})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestCodeConfirmRoutesAreRateLimited(t *testing.T) {
	for _, path := range []string{"/api/auth/email/verify/confirm", "/api/auth/email/update/confirm"} {
		t.Run(path, func(t *testing.T) {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			srv, _ := newServer(t, middleware.NewOTPRateLimit(client, 2, 0, zap.NewNop()).Handler)

			_, body := do(t, srv, http.MethodPost, "/api/auth/register", "",
				map[string]string{"email": "guesser@example.com", "password": "dream-password"})
			token := body["token"].(string)

			wrong := map[string]string{"otp": "123456"}
			for i := 0; i < 2; i++ {
				status, _ := do(t, srv, http.MethodPost, path, token, wrong)
				assert.Equal(t, http.StatusBadRequest, status)
			}
			status, _ := do(t, srv, http.MethodPost, path, token, wrong)
			assert.Equal(t, http.StatusTooManyRequests, status)
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newServer(t, nil)
	status, body := do(t, srv, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
