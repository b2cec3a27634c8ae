// Package auth issues and validates the credentials guarding the voice
// service: session tokens for relay clients, a pre-shared secret for the
// telephony peer, and short-lived service tokens for backend submission.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrAuthDisabled = errors.New("auth disabled")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// SessionClaims is the payload embedded in a session token.
type SessionClaims struct {
	SessionID string `json:"session_id"`
	ClientIP  string `json:"client_ip"`
	jwt.RegisteredClaims
}

// serviceClaims authenticates our own submissions to the survey backend.
type serviceClaims struct {
	HospitalID string `json:"hospital_id"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies session tokens and holds the
// telephony peer secret.
type TokenService struct {
	jwtSecret     []byte
	peerSecret    []byte
	serviceSecret []byte
	expiry        time.Duration
}

// Config configures the token service.
type Config struct {
	JWTSecret     string
	PeerSecret    string
	ServiceSecret string
	TokenExpiry   time.Duration
}

// NewTokenService builds a token service from static configuration.
func NewTokenService(cfg Config) *TokenService {
	expiry := cfg.TokenExpiry
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &TokenService{
		jwtSecret:     []byte(cfg.JWTSecret),
		peerSecret:    []byte(cfg.PeerSecret),
		serviceSecret: []byte(cfg.ServiceSecret),
		expiry:        expiry,
	}
}

// Issue signs a session token binding a session id to a client address.
func (s *TokenService) Issue(sessionID, clientIP string) (string, error) {
	if s == nil || len(s.jwtSecret) == 0 {
		return "", ErrAuthDisabled
	}
	if strings.TrimSpace(sessionID) == "" {
		return "", errors.New("auth: session id required")
	}

	now := time.Now()
	claims := SessionClaims{
		SessionID: sessionID,
		ClientIP:  clientIP,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// Verify parses a session token and returns its claims.
// Expired tokens yield ErrTokenExpired; anything else malformed yields
// ErrInvalidToken.
func (s *TokenService) Verify(token string) (*SessionClaims, error) {
	if s == nil || len(s.jwtSecret) == 0 {
		return nil, ErrAuthDisabled
	}

	parsed, err := jwt.ParseWithClaims(token, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*SessionClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.SessionID) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyPeerSecret checks the telephony peer's pre-shared credential.
// The comparison is constant-time.
func (s *TokenService) VerifyPeerSecret(token string) bool {
	if s == nil || len(s.peerSecret) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), s.peerSecret) == 1
}

// PeerConfigured reports whether a telephony peer secret is set.
func (s *TokenService) PeerConfigured() bool {
	return s != nil && len(s.peerSecret) > 0
}

// ServiceToken mints a 5-minute service-to-service token scoped to the
// tenant owning the call, used when submitting survey answers.
func (s *TokenService) ServiceToken(hospitalID string) (string, error) {
	if s == nil || len(s.serviceSecret) == 0 {
		return "", ErrAuthDisabled
	}

	now := time.Now()
	claims := serviceClaims{
		HospitalID: hospitalID,
		Role:       "voice_service",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.serviceSecret)
}

// VerifyAPISecret checks a static admin credential in constant time.
func VerifyAPISecret(got, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// BearerToken extracts a credential from an Authorization header value
// or, failing that, returns the fallback query value.
func BearerToken(header, query string) string {
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return strings.TrimSpace(query)
}
