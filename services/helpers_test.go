package services

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Setouprincely/automated-results-system-sub005/dbhelper"
	"github.com/Setouprincely/automated-results-system-sub005/kvstore"
	"github.com/Setouprincely/automated-results-system-sub005/models"
	"github.com/Setouprincely/automated-results-system-sub005/utils"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const alicePassword = "P@ssw0rd1"

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type sentMail struct {
	Kind string
	To   string
	Link string
}

type captureMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *captureMailer) SendPasswordReset(_ context.Context, to, link string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{Kind: "reset", To: to, Link: link})
	return nil
}

func (m *captureMailer) SendEmailVerification(_ context.Context, to, link string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{Kind: "verify", To: to, Link: link})
	return nil
}

func (m *captureMailer) count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sent {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

// lastToken pulls the token out of the most recent link of kind.
func (m *captureMailer) lastToken(t *testing.T, kind string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].Kind != kind {
			continue
		}
		u, err := url.Parse(m.sent[i].Link)
		require.NoError(t, err)
		return u.Query().Get("token")
	}
	t.Fatalf("no %s mail sent", kind)
	return ""
}

// flakyUsers fails the next N writes of a kind with errDBDown.
type flakyUsers struct {
	*dbhelper.MemoryUserStore
	failSetPassword atomic.Int32
	failUpdateUser  atomic.Int32
}

var errDBDown = errors.New("db down")

func (f *flakyUsers) SetPassword(ctx context.Context, id, passwordHash string) (*models.User, error) {
	if f.failSetPassword.Add(-1) >= 0 {
		return nil, errDBDown
	}
	return f.MemoryUserStore.SetPassword(ctx, id, passwordHash)
}

func (f *flakyUsers) UpdateUser(ctx context.Context, id string, update models.UserUpdate) (*models.User, error) {
	if f.failUpdateUser.Add(-1) >= 0 {
		return nil, errDBDown
	}
	return f.MemoryUserStore.UpdateUser(ctx, id, update)
}

type harness struct {
	svc    *Services
	clock  *fakeClock
	mailer *captureMailer
	users  *dbhelper.MemoryUserStore
	flaky  *flakyUsers
	kv     *kvstore.MemoryStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := newFakeClock()
	users := dbhelper.NewMemoryUserStore(clock.Now)
	flaky := &flakyUsers{MemoryUserStore: users}
	kv := kvstore.NewMemoryStore(clock.Now)
	mailer := &captureMailer{}
	opts := DefaultOptions()
	opts.BcryptCost = bcrypt.MinCost
	opts.AppBaseURL = "https://exams.example.com"

	svc, err := New(Deps{
		Users:  flaky,
		KV:     kv,
		Tokens: utils.NewTokenIssuer([]byte("test-secret"), nil, 15*time.Minute, clock.Now),
		Mailer: mailer,
		Now:    clock.Now,
	}, opts)
	require.NoError(t, err)
	return &harness{svc: svc, clock: clock, mailer: mailer, users: users, flaky: flaky, kv: kv}
}

func (h *harness) register(t *testing.T, email string, role models.Role) *models.User {
	t.Helper()
	in := RegisterInput{
		FullName: "Test User",
		Email:    email,
		Password: alicePassword,
		Role:     role,
		School:   "GBHS Bamenda",
		Subject:  "Mathematics",
	}
	if role == models.RoleStudent {
		in.ExamLevel = "O-Level"
	}
	u, err := h.svc.Credentials.Register(context.Background(), in)
	require.NoError(t, err)
	return u
}

func (h *harness) admin(t *testing.T) *models.User {
	t.Helper()
	u, err := h.svc.Credentials.BootstrapAdmin(context.Background(), "admin@example.com", "Adm1n!pass")
	require.NoError(t, err)
	return u
}

func (h *harness) accessToken(t *testing.T, u *models.User) string {
	t.Helper()
	pair, err := h.svc.Sessions.Issue(context.Background(), u)
	require.NoError(t, err)
	return pair.AccessToken
}

// wrongCode returns a six digit code outside the accepted window at now.
func wrongCode(secret string, now time.Time) string {
	tp := utils.NewTOTP("")
	accepted := map[string]bool{}
	for _, d := range []time.Duration{-30 * time.Second, 0, 30 * time.Second} {
		accepted[tp.CodeAt(secret, now.Add(d))] = true
	}
	for i := 0; ; i++ {
		c := strconv.Itoa(100000 + i*7919)
		if !accepted[c] {
			return c
		}
	}
}

// enable2FA runs both enrollment steps and returns the secret and backup codes.
func (h *harness) enable2FA(t *testing.T, userID string) (string, []string) {
	t.Helper()
	ctx := context.Background()
	enr, err := h.svc.TwoFactor.BeginEnrollment(ctx, userID, alicePassword)
	require.NoError(t, err)
	codes, err := h.svc.TwoFactor.ConfirmEnrollment(ctx, userID, utils.NewTOTP("").CodeAt(enr.Secret, h.clock.Now()))
	require.NoError(t, err)
	return enr.Secret, codes
}
