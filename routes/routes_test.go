package routes

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth(t *testing.T) {
	api := newTestAPI(t, Options{})
	res := api.call(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, true, res.Body["success"])
}

func TestUnknownRouteIsJSON404(t *testing.T) {
	api := newTestAPI(t, Options{})
	res := api.call(t, http.MethodGet, "/auth/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Equal(t, false, res.Body["success"])
}

func TestRegisterLoginResetFlow(t *testing.T) {
	api := newTestAPI(t, Options{})

	reg := api.registerStudent(t, "alice@example.com")
	assert.NotEmpty(t, reg.str("token"))
	assert.NotEmpty(t, reg.str("refreshToken"))
	assert.Equal(t, "student", reg.str("userType"))
	assert.Equal(t, "pending", reg.str("status"))
	assert.NotContains(t, reg.Body, "passwordHash")

	login := api.call(t, http.MethodPost, "/auth/login", "", object{"email": "alice@example.com", "password": "P@ssw0rd1", "userType": "student"})
	require.Equal(t, http.StatusOK, login.Code, login.Body)
	assert.NotEmpty(t, login.str("token"))

	wrongRole := api.call(t, http.MethodPost, "/auth/login", "", object{"email": "alice@example.com", "password": "P@ssw0rd1", "userType": "admin"})
	assert.Equal(t, http.StatusUnauthorized, wrongRole.Code)

	forgot := api.call(t, http.MethodPost, "/auth/forgot-password", "", object{"email": "alice@example.com"})
	require.Equal(t, http.StatusOK, forgot.Code)
	token := api.mailer.token(t, "reset")

	check := api.call(t, http.MethodGet, "/auth/forgot-password?token="+token, "", nil)
	require.Equal(t, http.StatusOK, check.Code)
	assert.Equal(t, "alice@example.com", check.str("email"))

	reset := api.call(t, http.MethodPost, "/auth/reset-password", "", object{"token": token, "newPassword": "NewP@ss2", "confirmPassword": "NewP@ss2"})
	require.Equal(t, http.StatusOK, reset.Code, reset.Body)

	again := api.call(t, http.MethodPost, "/auth/reset-password", "", object{"token": token, "newPassword": "NewP@ss3", "confirmPassword": "NewP@ss3"})
	assert.Equal(t, http.StatusBadRequest, again.Code)
	assert.Equal(t, "used", again.str("reason"))

	oldPw := api.call(t, http.MethodPost, "/auth/login", "", object{"email": "alice@example.com", "password": "P@ssw0rd1", "userType": "student"})
	assert.Equal(t, http.StatusUnauthorized, oldPw.Code)

	newPw := api.call(t, http.MethodPost, "/auth/login", "", object{"email": "alice@example.com", "password": "NewP@ss2", "userType": "student"})
	assert.Equal(t, http.StatusOK, newPw.Code)

	// tokens issued before the reset no longer authenticate
	me := api.call(t, http.MethodGet, "/auth/me", login.str("token"), nil)
	assert.Equal(t, http.StatusUnauthorized, me.Code)
}

func TestForgotPasswordUnknownEmailIsGeneric(t *testing.T) {
	api := newTestAPI(t, Options{})
	res := api.call(t, http.MethodPost, "/auth/forgot-password", "", object{"email": "ghost@example.com"})
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Empty(t, api.mailer.links["reset"])
}

func TestResetTokenReasons(t *testing.T) {
	api := newTestAPI(t, Options{})

	res := api.call(t, http.MethodGet, "/auth/forgot-password?token=bogus", "", nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "invalid", res.str("reason"))

	res = api.call(t, http.MethodGet, "/auth/forgot-password", "", nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	api.registerStudent(t, "alice@example.com")
	api.call(t, http.MethodPost, "/auth/forgot-password", "", object{"email": "alice@example.com"})
	token := api.mailer.token(t, "reset")

	mismatch := api.call(t, http.MethodPost, "/auth/reset-password", "", object{"token": token, "newPassword": "NewP@ss2", "confirmPassword": "NewP@ss9"})
	assert.Equal(t, http.StatusBadRequest, mismatch.Code)

	weak := api.call(t, http.MethodPost, "/auth/reset-password", "", object{"token": token, "newPassword": "short", "confirmPassword": "short"})
	assert.Equal(t, http.StatusBadRequest, weak.Code)

	// neither failure consumed the token
	ok := api.call(t, http.MethodPost, "/auth/reset-password", "", object{"token": token, "newPassword": "NewP@ss2", "confirmPassword": "NewP@ss2"})
	assert.Equal(t, http.StatusOK, ok.Code)
}

func TestRegisterValidation(t *testing.T) {
	api := newTestAPI(t, Options{})

	missing := api.call(t, http.MethodPost, "/auth/register", "", object{"email": "x@example.com"})
	assert.Equal(t, http.StatusBadRequest, missing.Code)
	assert.Equal(t, false, missing.Body["success"])
	assert.NotEmpty(t, missing.str("message"))

	admin := api.call(t, http.MethodPost, "/auth/register", "", object{
		"fullName": "Mallory", "email": "m@example.com", "password": "P@ssw0rd1", "userType": "admin",
	})
	assert.Equal(t, http.StatusBadRequest, admin.Code)

	weak := api.call(t, http.MethodPost, "/auth/register", "", object{
		"fullName": "Bob Tabi", "email": "bob@example.com", "password": "password", "userType": "student",
		"school": "GBHS Limbe", "examLevel": "O-Level",
	})
	assert.Equal(t, http.StatusBadRequest, weak.Code)

	api.registerStudent(t, "alice@example.com")
	dup := api.call(t, http.MethodPost, "/auth/register", "", object{
		"fullName": "Alice Again", "email": "ALICE@example.com", "password": "P@ssw0rd1", "userType": "student",
		"school": "GBHS Limbe", "examLevel": "O-Level",
	})
	assert.Equal(t, http.StatusConflict, dup.Code)
}

func TestRefreshAndLogout(t *testing.T) {
	api := newTestAPI(t, Options{})
	reg := api.registerStudent(t, "alice@example.com")
	refresh := reg.str("refreshToken")

	rotated := api.call(t, http.MethodPost, "/auth/refresh", "", object{"refreshToken": refresh})
	require.Equal(t, http.StatusOK, rotated.Code, rotated.Body)
	next := rotated.str("refreshToken")
	assert.NotEqual(t, refresh, next)

	replay := api.call(t, http.MethodPost, "/auth/refresh", "", object{"refreshToken": refresh})
	assert.Equal(t, http.StatusUnauthorized, replay.Code)

	out := api.call(t, http.MethodPost, "/auth/logout", "", object{"refreshToken": next})
	assert.Equal(t, http.StatusOK, out.Code)

	afterLogout := api.call(t, http.MethodPost, "/auth/refresh", "", object{"refreshToken": next})
	assert.Equal(t, http.StatusUnauthorized, afterLogout.Code)
}

func TestMeAndChangePassword(t *testing.T) {
	api := newTestAPI(t, Options{})
	reg := api.registerStudent(t, "alice@example.com")
	token := reg.str("token")

	assert.Equal(t, http.StatusUnauthorized, api.call(t, http.MethodGet, "/auth/me", "", nil).Code)

	me := api.call(t, http.MethodGet, "/auth/me", token, nil)
	require.Equal(t, http.StatusOK, me.Code)
	user, _ := me.Body["user"].(map[string]any)
	assert.Equal(t, "alice@example.com", user["email"])

	wrong := api.call(t, http.MethodPost, "/auth/change-password", token, object{
		"currentPassword": "nope", "newPassword": "NewP@ss2", "confirmPassword": "NewP@ss2",
	})
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)

	changed := api.call(t, http.MethodPost, "/auth/change-password", token, object{
		"currentPassword": "P@ssw0rd1", "newPassword": "NewP@ss2", "confirmPassword": "NewP@ss2",
	})
	require.Equal(t, http.StatusOK, changed.Code, changed.Body)

	assert.Equal(t, http.StatusUnauthorized, api.call(t, http.MethodGet, "/auth/me", token, nil).Code)
	assert.Equal(t, http.StatusOK, api.call(t, http.MethodGet, "/auth/me", changed.str("token"), nil).Code)
}

func TestEmailVerification(t *testing.T) {
	api := newTestAPI(t, Options{})
	reg := api.registerStudent(t, "alice@example.com")
	token := api.mailer.token(t, "verify")

	bad := api.call(t, http.MethodGet, "/auth/verify-email?token=nope", "", nil)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
	assert.Equal(t, "invalid", bad.str("reason"))

	ok := api.call(t, http.MethodGet, "/auth/verify-email?token="+token, "", nil)
	require.Equal(t, http.StatusOK, ok.Code, ok.Body)
	user, _ := ok.Body["user"].(map[string]any)
	assert.Equal(t, true, user["emailVerified"])
	assert.Equal(t, "confirmed", user["status"])

	again := api.call(t, http.MethodGet, "/auth/verify-email?token="+token, "", nil)
	assert.Equal(t, http.StatusBadRequest, again.Code)
	assert.Equal(t, "used", again.str("reason"))

	resend := api.call(t, http.MethodPost, "/auth/send-verification", reg.str("token"), nil)
	assert.Equal(t, http.StatusBadRequest, resend.Code)
}

func TestTwoFactorEnrollmentAndLogin(t *testing.T) {
	api := newTestAPI(t, Options{})
	token := api.registerStudent(t, "alice@example.com").str("token")

	begin := api.call(t, http.MethodPost, "/auth/enable-2fa", token, object{"password": "P@ssw0rd1"})
	require.Equal(t, http.StatusOK, begin.Code, begin.Body)
	secret := begin.str("secret")
	require.NotEmpty(t, secret)
	assert.Contains(t, begin.str("qrPayload"), "otpauth://totp/")
	codes, _ := begin.Body["backupCodes"].([]any)
	require.Len(t, codes, 10)

	wrong := api.call(t, http.MethodPost, "/auth/enable-2fa", token, object{"password": "P@ssw0rd1", "verificationCode": badCode(secret)})
	assert.Equal(t, http.StatusBadRequest, wrong.Code)

	status := api.call(t, http.MethodGet, "/auth/2fa-status", token, nil)
	assert.Equal(t, "pending", status.str("state"))
	assert.Equal(t, false, status.Body["enabled"])

	confirm := api.call(t, http.MethodPost, "/auth/enable-2fa", token, object{"password": "P@ssw0rd1", "verificationCode": codeNow(secret)})
	require.Equal(t, http.StatusOK, confirm.Code, confirm.Body)

	status = api.call(t, http.MethodGet, "/auth/2fa-status", token, nil)
	assert.Equal(t, "enabled", status.str("state"))
	assert.Equal(t, true, status.Body["enabled"])

	login := api.call(t, http.MethodPost, "/auth/login", "", object{"email": "alice@example.com", "password": "P@ssw0rd1", "userType": "student"})
	require.Equal(t, http.StatusOK, login.Code)
	assert.Equal(t, true, login.Body["requiresTwoFactor"])
	assert.Empty(t, login.str("token"))

	verify := api.call(t, http.MethodPost, "/auth/verify-2fa", "", object{"email": "alice@example.com", "password": "P@ssw0rd1", "verificationCode": codeNow(secret)})
	require.Equal(t, http.StatusOK, verify.Code, verify.Body)
	assert.NotEmpty(t, verify.str("token"))

	backup := codes[0].(string)
	viaBackup := api.call(t, http.MethodPost, "/auth/verify-2fa", "", object{"email": "alice@example.com", "password": "P@ssw0rd1", "backupCode": backup})
	assert.Equal(t, http.StatusOK, viaBackup.Code)
	reused := api.call(t, http.MethodPost, "/auth/verify-2fa", "", object{"email": "alice@example.com", "password": "P@ssw0rd1", "backupCode": backup})
	assert.Equal(t, http.StatusUnauthorized, reused.Code)

	noCode := api.call(t, http.MethodPost, "/auth/verify-2fa", "", object{"email": "alice@example.com", "password": "P@ssw0rd1"})
	assert.Equal(t, http.StatusBadRequest, noCode.Code)

	badPw := api.call(t, http.MethodPost, "/auth/disable-2fa", token, object{"password": "wrong", "verificationCode": codeNow(secret)})
	assert.Equal(t, http.StatusUnauthorized, badPw.Code)
	badDisable := api.call(t, http.MethodPost, "/auth/disable-2fa", token, object{"password": "P@ssw0rd1", "verificationCode": badCode(secret)})
	assert.Equal(t, http.StatusBadRequest, badDisable.Code)

	disable := api.call(t, http.MethodPost, "/auth/disable-2fa", token, object{"password": "P@ssw0rd1", "verificationCode": codeNow(secret)})
	require.Equal(t, http.StatusOK, disable.Code, disable.Body)
	status = api.call(t, http.MethodGet, "/auth/2fa-status", token, nil)
	assert.Equal(t, "not_enrolled", status.str("state"))
}

func TestLoginLockout(t *testing.T) {
	api := newTestAPI(t, Options{})
	api.registerStudent(t, "alice@example.com")

	for i := 0; i < 5; i++ {
		res := api.call(t, http.MethodPost, "/auth/login", "", object{"email": "alice@example.com", "password": "wrong", "userType": "student"})
		require.Equal(t, http.StatusUnauthorized, res.Code, "attempt %d", i+1)
	}
	locked := api.call(t, http.MethodPost, "/auth/login", "", object{"email": "alice@example.com", "password": "P@ssw0rd1", "userType": "student"})
	assert.Equal(t, http.StatusTooManyRequests, locked.Code)
}

func TestUserAdministration(t *testing.T) {
	api := newTestAPI(t, Options{})
	adminToken := api.bootstrapAdmin(t)
	alice := api.registerStudent(t, "alice@example.com")
	aliceToken := alice.str("token")
	aliceID := alice.str("id")
	bob := api.registerStudent(t, "bob@example.com")
	bobID := bob.str("id")

	assert.Equal(t, http.StatusUnauthorized, api.call(t, http.MethodGet, "/users", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, api.call(t, http.MethodGet, "/users", aliceToken, nil).Code)

	list := api.call(t, http.MethodGet, "/users?userType=student", adminToken, nil)
	require.Equal(t, http.StatusOK, list.Code)
	users, _ := list.Body["users"].([]any)
	assert.Len(t, users, 2)

	assert.Equal(t, http.StatusBadRequest, api.call(t, http.MethodGet, "/users?userType=janitor", adminToken, nil).Code)

	assert.Equal(t, http.StatusOK, api.call(t, http.MethodGet, "/users/"+aliceID, aliceToken, nil).Code)
	assert.Equal(t, http.StatusForbidden, api.call(t, http.MethodGet, "/users/"+bobID, aliceToken, nil).Code)
	assert.Equal(t, http.StatusOK, api.call(t, http.MethodGet, "/users/"+bobID, adminToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, api.call(t, http.MethodGet, "/users/missing", adminToken, nil).Code)

	phone := api.call(t, http.MethodPatch, "/users/"+aliceID, aliceToken, object{"phone": "+237670000000"})
	require.Equal(t, http.StatusOK, phone.Code, phone.Body)
	updated, _ := phone.Body["user"].(map[string]any)
	assert.Equal(t, "+237670000000", updated["phone"])

	selfStatus := api.call(t, http.MethodPatch, "/users/"+aliceID, aliceToken, object{"status": "confirmed"})
	assert.Equal(t, http.StatusForbidden, selfStatus.Code)

	suspend := api.call(t, http.MethodPatch, "/users/"+aliceID, adminToken, object{"status": "suspended"})
	require.Equal(t, http.StatusOK, suspend.Code, suspend.Body)
	assert.Equal(t, http.StatusForbidden, api.call(t, http.MethodGet, "/auth/me", aliceToken, nil).Code)

	adminID := api.call(t, http.MethodGet, "/auth/me", adminToken, nil).Body["user"].(map[string]any)["id"].(string)
	assert.Equal(t, http.StatusForbidden, api.call(t, http.MethodDelete, "/users/"+adminID, adminToken, nil).Code)
	assert.Equal(t, http.StatusForbidden, api.call(t, http.MethodDelete, "/users/"+bobID, aliceToken, nil).Code)
	assert.Equal(t, http.StatusOK, api.call(t, http.MethodDelete, "/users/"+bobID, adminToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, api.call(t, http.MethodDelete, "/users/"+bobID, adminToken, nil).Code)
}

func TestRateLimitedLogin(t *testing.T) {
	api := newTestAPI(t, Options{RateLimitPerSecond: 1})
	body := object{"email": "ghost@example.com", "password": "whatever", "userType": "student"}

	first := api.call(t, http.MethodPost, "/auth/login", "", body)
	assert.Equal(t, http.StatusUnauthorized, first.Code)
	second := api.call(t, http.MethodPost, "/auth/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}
