package services

import (
	"context"
	"regexp"
	"sync"
	"testing"

	"github.com/AnshRaj112/somnia-backend/internal/models"
	"github.com/AnshRaj112/somnia-backend/internal/otp"
	"github.com/AnshRaj112/somnia-backend/internal/repository"
	"github.com/AnshRaj112/somnia-backend/internal/tokens"
	"github.com/AnshRaj112/somnia-backend/pkg/utils"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *recordingMailer) messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message{}, m.sent...)
}

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

// lastCode pulls the code out of the most recent message.
func (m *recordingMailer) lastCode(t *testing.T) string {
	t.Helper()
	msgs := m.messages()
	require.NotEmpty(t, msgs, "no mail sent")
	code := codePattern.FindString(msgs[len(msgs)-1].Text)
	require.NotEmpty(t, code, "no code in mail")
	return code
}

type harness struct {
	users    *repository.MemoryUserRepository
	otps     *repository.MemoryOTPRepository
	dreams   *repository.MemoryDreamRepository
	tags     *repository.MemoryTagRepository
	mailer   *recordingMailer
	ledger   *otp.Ledger
	bridge   *tokens.BridgeIssuer
	sessions *tokens.SessionManager
	recovery *RecoveryService
	guest    *GuestService
	auth     *AuthService
}

const testSender = "no-reply@somnia.test"

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := zap.NewNop()

	h := &harness{
		users:  repository.NewMemoryUserRepository(),
		otps:   repository.NewMemoryOTPRepository(),
		dreams: repository.NewMemoryDreamRepository(),
		tags:   repository.NewMemoryTagRepository(),
		mailer: &recordingMailer{},
	}
	h.ledger = otp.NewLedger(h.otps, h.users, otp.NewBcryptHasher(bcrypt.MinCost), otp.WithLogger(log))

	var err error
	h.bridge, err = tokens.NewBridgeIssuer("reset-secret", 0)
	require.NoError(t, err)
	h.sessions, err = tokens.NewSessionManager("session-secret", 0, 0, h.users)
	require.NoError(t, err)

	h.recovery, err = NewRecoveryService(h.ledger, h.bridge, h.sessions, h.users, h.mailer, testSender, log)
	require.NoError(t, err)

	h.guest = NewGuestService(h.users, h.dreams, h.tags, h.sessions, NewKeyedMutex(), "", log)
	h.auth = NewAuthService(h.users, h.sessions, h.guest, log)
	return h
}

// newUser stores a user with password "old-password".
func (h *harness) newUser(t *testing.T, email string, verified bool) *models.User {
	t.Helper()
	hash, err := utils.HashPassword("old-password")
	require.NoError(t, err)
	u := &models.User{Email: email, PasswordHash: hash, IsVerified: verified}
	require.NoError(t, h.users.Create(context.Background(), u))
	return u
}

func (h *harness) reload(t *testing.T, u *models.User) *models.User {
	t.Helper()
	got, err := h.users.FindByID(context.Background(), u.ID)
	require.NoError(t, err)
	return got
}
