package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/AnshRaj112/somnia-backend/internal/apperr"
	"github.com/AnshRaj112/somnia-backend/internal/middleware"
	"github.com/AnshRaj112/somnia-backend/internal/models"
	"github.com/AnshRaj112/somnia-backend/internal/otp"
	"github.com/AnshRaj112/somnia-backend/internal/repository"
	"github.com/AnshRaj112/somnia-backend/internal/services"
	"github.com/AnshRaj112/somnia-backend/internal/tokens"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type outbox struct {
	mu   sync.Mutex
	sent []services.Message
}

func (o *outbox) Send(_ context.Context, msg services.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

var sixDigits = regexp.MustCompile(`\b\d{6}\b`)

func (o *outbox) lastCode(t *testing.T) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.sent)
	code := sixDigits.FindString(o.sent[len(o.sent)-1].Text)
	require.NotEmpty(t, code)
	return code
}

type fixture struct {
	h     *Handler
	users *repository.MemoryUserRepository
	mail  *outbox
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zap.NewNop()
	users := repository.NewMemoryUserRepository()
	dreams := repository.NewMemoryDreamRepository()
	tags := repository.NewMemoryTagRepository()
	mail := &outbox{}

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

	return &fixture{h: New(auth, recovery, dreamSvc, log), users: users, mail: mail}
}

func call(t *testing.T, handler http.HandlerFunc, method, target string, body any, user *models.User) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, target, &buf)
	if user != nil {
		r = r.WithContext(middleware.WithUser(r.Context(), user, "tok"))
	}
	rec := httptest.NewRecorder()
	handler(rec, r)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func (f *fixture) register(t *testing.T, email string) (*models.User, string) {
	t.Helper()
	rec, body := call(t, f.h.Register, http.MethodPost, "/api/auth/register",
		CredentialsRequest{Email: email, Password: "dream-password"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, body)
	u, err := f.users.FindByEmail(context.Background(), email)
	require.NoError(t, err)
	return u, body["token"].(string)
}

func TestStatusFor(t *testing.T) {
	cases := map[apperr.Kind]int{
		apperr.KindValidation:          http.StatusBadRequest,
		apperr.KindInvalidOrExpiredOtp: http.StatusBadRequest,
		apperr.KindInvalidResetSession: http.StatusBadRequest,
		apperr.KindAlreadyVerified:     http.StatusBadRequest,
		apperr.KindEmailAlreadyOwned:   http.StatusBadRequest,
		apperr.KindEmailTaken:          http.StatusConflict,
		apperr.KindUnauthorized:        http.StatusUnauthorized,
		apperr.KindInvalidUsage:        http.StatusInternalServerError,
		apperr.KindConfig:              http.StatusInternalServerError,
		apperr.KindInternal:            http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, statusFor(kind), kind.String())
	}
}

func TestWriteErrorHidesServerDetail(t *testing.T) {
	f := newFixture(t)
	for _, err := range []error{
		errors.New("mongo: connection refused to 10.0.0.3"),
		apperr.InvalidUsage("purpose %q needs a user", "email_update"),
		apperr.Config("session secret missing"),
	} {
		rec := httptest.NewRecorder()
		f.h.writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), err)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "10.0.0.3")
		assert.NotContains(t, rec.Body.String(), "secret")
		assert.Contains(t, rec.Body.String(), apperr.ErrInternal.Message)
	}
}

func TestWriteErrorCarriesField(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.h.writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), apperr.InvalidOrExpiredOtp())

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "otp", body.Field)
	assert.Equal(t, apperr.ErrInvalidOrExpiredOtp.Message, body.Message)
}

func TestMalformedBody(t *testing.T) {
	f := newFixture(t)
	r := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	f.h.Login(rec, r)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid request body")
}

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	_, token := f.register(t, "sleeper@example.com")
	assert.NotEmpty(t, token)

	rec, body := call(t, f.h.Register, http.MethodPost, "/api/auth/register",
		CredentialsRequest{Email: "sleeper@example.com", Password: "dream-password"}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "email", body["field"])

	rec, body = call(t, f.h.Login, http.MethodPost, "/api/auth/login",
		CredentialsRequest{Email: "sleeper@example.com", Password: "dream-password"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, body["token"])
	assert.NotEmpty(t, body["expires_at"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "sleeper@example.com", user["email"])
	assert.NotContains(t, user, "password_hash")

	rec, _ = call(t, f.h.Login, http.MethodPost, "/api/auth/login",
		CredentialsRequest{Email: "sleeper@example.com", Password: "wrong-password"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGuestLogin(t *testing.T) {
	f := newFixture(t)
	rec, body := call(t, f.h.GuestLogin, http.MethodPost, "/api/auth/guest", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["guest"])
	assert.NotEmpty(t, body["token"])
}

func TestProtectedHandlersRequireUser(t *testing.T) {
	f := newFixture(t)
	for name, handler := range map[string]http.HandlerFunc{
		"me":     f.h.Me,
		"logout": f.h.Logout,
		"dreams": f.h.ListDreams,
		"tags":   f.h.ListTags,
		"verify": f.h.RequestEmailVerification,
	} {
		rec, _ := call(t, handler, http.MethodPost, "/", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, name)
	}
}

func TestEmailVerificationFlow(t *testing.T) {
	f := newFixture(t)
	user, _ := f.register(t, "new@example.com")

	rec, _ := call(t, f.h.RequestEmailVerification, http.MethodPost, "/", nil, user)
	require.Equal(t, http.StatusOK, rec.Code)
	code := f.mail.lastCode(t)

	rec, body := call(t, f.h.ConfirmEmailVerification, http.MethodPost, "/", CodeRequest{OTP: "000000"}, user)
	if code != "000000" {
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "otp", body["field"])
	}

	rec, _ = call(t, f.h.ConfirmEmailVerification, http.MethodPost, "/", CodeRequest{OTP: code}, user)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body = call(t, f.h.RequestEmailVerification, http.MethodPost, "/", nil, user)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperr.ErrAlreadyVerified.Message, body["message"])
}

func TestEmailUpdateFlow(t *testing.T) {
	f := newFixture(t)
	user, _ := f.register(t, "old@example.com")
	f.register(t, "taken@example.com")

	rec, _ := call(t, f.h.RequestEmailUpdate, http.MethodPost, "/", EmailRequest{Email: "taken@example.com"}, user)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = call(t, f.h.RequestEmailUpdate, http.MethodPost, "/", EmailRequest{Email: "fresh@example.com"}, user)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := call(t, f.h.ConfirmEmailUpdate, http.MethodPost, "/", CodeRequest{OTP: f.mail.lastCode(t)}, user)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fresh@example.com", body["user"].(map[string]any)["email"])
}

func TestPasswordResetFlow(t *testing.T) {
	f := newFixture(t)
	f.register(t, "forgetful@example.com")

	rec, known := call(t, f.h.ForgotPassword, http.MethodPost, "/", EmailRequest{Email: "forgetful@example.com"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	_, unknown := call(t, f.h.ForgotPassword, http.MethodPost, "/", EmailRequest{Email: "nobody@example.com"}, nil)
	assert.Equal(t, known, unknown)

	code := f.mail.lastCode(t)
	rec, body := call(t, f.h.VerifyResetCode, http.MethodPost, "/",
		VerifyResetCodeRequest{Email: "forgetful@example.com", OTP: code}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resetToken := body["reset_token"].(string)

	rec, body = call(t, f.h.ResetPassword, http.MethodPost, "/",
		ResetPasswordRequest{ResetToken: resetToken, Password: "short"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "password", body["field"])

	rec, _ = call(t, f.h.ResetPassword, http.MethodPost, "/",
		ResetPasswordRequest{ResetToken: resetToken, Password: "brand-new-password"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = call(t, f.h.ResetPassword, http.MethodPost, "/",
		ResetPasswordRequest{ResetToken: resetToken, Password: "another-password"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "token", body["field"])

	rec, _ = call(t, f.h.Login, http.MethodPost, "/",
		CredentialsRequest{Email: "forgetful@example.com", Password: "brand-new-password"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDreamsAndTags(t *testing.T) {
	f := newFixture(t)
	user, _ := f.register(t, "dreamer@example.com")

	rec, body := call(t, f.h.CreateDream, http.MethodPost, "/api/dreams",
		CreateDreamRequest{Content: "I was flying over the ocean", Tags: []string{"Flying"}}, user)
	require.Equal(t, http.StatusCreated, rec.Code, body)
	dream := body["dream"].(map[string]any)
	assert.NotEmpty(t, dream["title"])

	rec, body = call(t, f.h.ListDreams, http.MethodGet, "/api/dreams?limit=5", nil, user)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["total"])
	assert.Len(t, body["dreams"], 1)

	rec, body = call(t, f.h.ListDreams, http.MethodGet, "/api/dreams?limit=abc", nil, user)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "limit", body["field"])

	rec, body = call(t, f.h.ListTags, http.MethodGet, "/api/tags", nil, user)
	require.Equal(t, http.StatusOK, rec.Code)
	tags := body["tags"].([]any)
	require.Len(t, tags, 1)
	assert.Equal(t, "flying", tags[0].(map[string]any)["name"])

	rec, _ = call(t, f.h.CreateDream, http.MethodPost, "/api/dreams", CreateDreamRequest{}, user)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec, body := call(t, f.h.Health, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	f.h.WithHealthCheck("mongo", func(context.Context) error { return errors.New("down") })
	rec, body = call(t, f.h.Health, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "down", body["checks"].(map[string]any)["mongo"])
}
