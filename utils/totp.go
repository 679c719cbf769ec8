package utils

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base32"
	"math/big"
	"strings"
	"time"

	"github.com/xlzd/gotp"
)

const (
	totpSecretBytes = 20
	totpPeriod      = 30
	totpDigits      = 6
	backupCodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	backupCodeHalf  = 4
)

// TOTP wraps gotp with a +-skew step acceptance window (RFC 6238 section 5.2).
type TOTP struct {
	Issuer string
	Skew   int
}

func NewTOTP(issuer string) *TOTP {
	if issuer == "" {
		issuer = DefaultTOTPIssuer
	}
	return &TOTP{Issuer: issuer, Skew: 1}
}

// NewSecret returns a base32 shared secret. gotp.RandomSecret draws from
// math/rand, so the bytes come from crypto/rand instead.
func (t *TOTP) NewSecret() (string, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw), nil
}

// ProvisioningURI is the otpauth:// payload authenticator apps scan as a QR code.
func (t *TOTP) ProvisioningURI(secret, account string) string {
	return gotp.NewDefaultTOTP(secret).ProvisioningUri(account, t.Issuer)
}

// CodeAt returns the code for the time step containing at.
func (t *TOTP) CodeAt(secret string, at time.Time) string {
	return gotp.NewDefaultTOTP(secret).At(int(at.Unix()))
}

// Verify accepts the code of the current step or of the Skew steps either side.
func (t *TOTP) Verify(secret, code string, now time.Time) bool {
	code = strings.TrimSpace(code)
	if len(code) != totpDigits || !isDigits(code) {
		return false
	}
	otp := gotp.NewDefaultTOTP(secret)
	matched := 0
	for step := -t.Skew; step <= t.Skew; step++ {
		expected := otp.At(int(now.Unix()) + step*totpPeriod)
		matched |= subtle.ConstantTimeCompare([]byte(expected), []byte(code))
	}
	return matched == 1
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// NewBackupCodes returns n codes shaped XXXX-XXXX from an unambiguous alphabet.
func NewBackupCodes(n int) ([]string, error) {
	codes := make([]string, 0, n)
	max := big.NewInt(int64(len(backupCodeChars)))
	for len(codes) < n {
		var b strings.Builder
		for i := 0; i < backupCodeHalf*2; i++ {
			if i == backupCodeHalf {
				b.WriteByte('-')
			}
			idx, err := rand.Int(rand.Reader, max)
			if err != nil {
				return nil, err
			}
			b.WriteByte(backupCodeChars[idx.Int64()])
		}
		codes = append(codes, b.String())
	}
	return codes, nil
}

// NormalizeBackupCode upper-cases and restores the dash so "abcd efgh",
// "ABCDEFGH" and "abcd-efgh" all compare equal.
func NormalizeBackupCode(code string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(code) {
		if r == '-' || r == ' ' {
			continue
		}
		b.WriteRune(r)
	}
	s := b.String()
	if len(s) != backupCodeHalf*2 {
		return s
	}
	return s[:backupCodeHalf] + "-" + s[backupCodeHalf:]
}
