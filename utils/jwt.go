package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenExpired   = errors.New("token expired")
)

// AccessClaims is what an access token asserts about its bearer.
type AccessClaims struct {
	jwt.RegisteredClaims
	Role         string `json:"role"`
	TokenVersion int    `json:"ver"`
}

// TokenIssuer signs HS256 access tokens. A previous key can be kept during
// rotation so tokens signed before the switch still decode.
type TokenIssuer struct {
	key    []byte
	oldKey []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(key, oldKey []byte, ttl time.Duration, now func() time.Time) *TokenIssuer {
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{key: key, oldKey: oldKey, ttl: ttl, now: now}
}

func (ti *TokenIssuer) TTL() time.Duration { return ti.ttl }

func (ti *TokenIssuer) Issue(userID, role string, tokenVersion int) (string, time.Time, error) {
	issuedAt := ti.now()
	expiresAt := issuedAt.Add(ti.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
		Role:         role,
		TokenVersion: tokenVersion,
	})
	signed, err := token.SignedString(ti.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (ti *TokenIssuer) parse(tokenString string, key []byte) (*AccessClaims, error) {
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(ti.now))
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// Decode verifies signature and expiry and returns the claims. Every failure
// is ErrTokenExpired or ErrTokenMalformed.
func (ti *TokenIssuer) Decode(tokenString string) (*AccessClaims, error) {
	claims, err := ti.parse(tokenString, ti.key)
	if err != nil && len(ti.oldKey) > 0 && errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		claims, err = ti.parse(tokenString, ti.oldKey)
	}
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	default:
		return nil, ErrTokenMalformed
	}
	if claims.Subject == "" {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}
