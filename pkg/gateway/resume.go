package gateway

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/xenonsan/eagpaas/pkg/connect"
)

// ErrResumeDisabled is returned when no signing key is configured.
var ErrResumeDisabled = errors.New("gateway: resume tokens are not enabled")

// resumeClaims is the signed payload of a resume token. The token lets a
// client skip onboarding and reconnect straight to a destination.
type resumeClaims struct {
	Host string `json:"host"`
	Port uint16 `json:"port"`
	Mode string `json:"mode"`
	jwt.RegisteredClaims
}

// ResumeIssuer signs and verifies resume tokens with an HMAC key.
type ResumeIssuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewResumeIssuer creates an issuer. An empty key disables the feature;
// Issue and Parse then return ErrResumeDisabled.
func NewResumeIssuer(key string, ttl time.Duration) *ResumeIssuer {
	return &ResumeIssuer{key: []byte(key), ttl: ttl, now: time.Now}
}

// Enabled reports whether a signing key is configured.
func (r *ResumeIssuer) Enabled() bool { return len(r.key) > 0 }

// Issue signs a token binding username to a destination. Credentials are
// never embedded; an online-mode resume re-uses the session's cached
// credential or falls back to interactive auth.
func (r *ResumeIssuer) Issue(username string, req connect.Request) (string, error) {
	if !r.Enabled() {
		return "", ErrResumeDisabled
	}
	now := r.now()
	claims := resumeClaims{
		Host: req.Host,
		Port: req.Port,
		Mode: string(req.Mode),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(r.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.key)
}

// Parse verifies a token and returns the destination it binds plus the
// username it was issued to.
func (r *ResumeIssuer) Parse(token string) (*connect.Request, string, error) {
	if !r.Enabled() {
		return nil, "", ErrResumeDisabled
	}

	var claims resumeClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return r.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(r.now))
	if err != nil {
		return nil, "", fmt.Errorf("parsing resume token: %w", err)
	}
	if !parsed.Valid {
		return nil, "", errors.New("gateway: invalid resume token")
	}

	mode, ok := connect.ParseType(claims.Mode)
	if !ok {
		return nil, "", fmt.Errorf("gateway: resume token carries unknown mode %q", claims.Mode)
	}
	req := &connect.Request{Host: claims.Host, Port: claims.Port, Mode: mode}
	if req.Port == 0 {
		req.Port = connect.DefaultPort
	}
	return req, claims.Subject, nil
}
