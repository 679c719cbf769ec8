package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Setouprincely/automated-results-system-sub005/dbhelper"
	"github.com/Setouprincely/automated-results-system-sub005/kvstore"
	"github.com/Setouprincely/automated-results-system-sub005/services"
	"github.com/Setouprincely/automated-results-system-sub005/utils"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type linkMailer struct {
	mu    sync.Mutex
	links map[string][]string
}

func (m *linkMailer) add(kind, link string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.links == nil {
		m.links = map[string][]string{}
	}
	m.links[kind] = append(m.links[kind], link)
}

func (m *linkMailer) SendPasswordReset(_ context.Context, _, link string, _ time.Duration) error {
	m.add("reset", link)
	return nil
}

func (m *linkMailer) SendEmailVerification(_ context.Context, _, link string, _ time.Duration) error {
	m.add("verify", link)
	return nil
}

func (m *linkMailer) token(t *testing.T, kind string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	links := m.links[kind]
	require.NotEmpty(t, links, "no %s mail", kind)
	u, err := url.Parse(links[len(links)-1])
	require.NoError(t, err)
	return u.Query().Get("token")
}

type testAPI struct {
	handler http.Handler
	svc     *services.Services
	mailer  *linkMailer
}

func newTestAPI(t *testing.T, opts Options) *testAPI {
	t.Helper()
	svcOpts := services.DefaultOptions()
	svcOpts.BcryptCost = bcrypt.MinCost
	mailer := &linkMailer{}
	svc, err := services.New(services.Deps{
		Users:  dbhelper.NewMemoryUserStore(nil),
		KV:     kvstore.NewMemoryStore(nil),
		Tokens: utils.NewTokenIssuer([]byte("routes-test-secret-0123456789abcdef"), nil, 15*time.Minute, nil),
		Mailer: mailer,
	}, svcOpts)
	require.NoError(t, err)
	return &testAPI{handler: NewHandler(svc, opts), svc: svc, mailer: mailer}
}

type response struct {
	Code int
	Body map[string]any
}

func (a *testAPI) call(t *testing.T, method, path, token string, body any) response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	out := response{Code: rec.Code, Body: map[string]any{}}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out.Body), rec.Body.String())
	}
	return out
}

func (r response) str(key string) string {
	s, _ := r.Body[key].(string)
	return s
}

type object = map[string]any

func (a *testAPI) registerStudent(t *testing.T, email string) response {
	t.Helper()
	res := a.call(t, http.MethodPost, "/auth/register", "", object{
		"fullName":  "Alice Ngu",
		"email":     email,
		"password":  "P@ssw0rd1",
		"userType":  "student",
		"school":    "GBHS Limbe",
		"examLevel": "O-Level",
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body)
	return res
}

func (a *testAPI) bootstrapAdmin(t *testing.T) string {
	t.Helper()
	_, err := a.svc.Credentials.BootstrapAdmin(context.Background(), "admin@example.com", "Adm1n!pass")
	require.NoError(t, err)
	res := a.call(t, http.MethodPost, "/auth/login", "", object{"email": "admin@example.com", "password": "Adm1n!pass", "userType": "admin"})
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	return res.str("token")
}

func codeNow(secret string) string {
	return utils.NewTOTP("").CodeAt(secret, time.Now())
}

// badCode returns a six digit code outside the accepted window right now.
func badCode(secret string) string {
	tp := utils.NewTOTP("")
	now := time.Now()
	accepted := map[string]bool{}
	for _, d := range []time.Duration{-time.Minute, -30 * time.Second, 0, 30 * time.Second, time.Minute} {
		accepted[tp.CodeAt(secret, now.Add(d))] = true
	}
	for i := 0; ; i++ {
		c := strconv.Itoa(100000 + i*7919)
		if !accepted[c] {
			return c
		}
	}
}
