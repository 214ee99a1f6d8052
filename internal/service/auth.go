package service

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Session defaults.
const (
	DefaultSessionIdle   = 30 * time.Minute
	DefaultSessionMaxAge = 12 * time.Hour
)

const sessionIssuer = "keygate"

// Session is the per-client state carried in the signed session cookie. It
// holds at most one access key and an admin flag.
type Session struct {
	Key     string
	Admin   bool
	Started time.Time
}

// Empty reports whether the session grants nothing.
func (s *Session) Empty() bool {
	return s == nil || (s.Key == "" && !s.Admin)
}

// AuthConfig configures an AuthService.
type AuthConfig struct {
	// SessionSecret signs session tokens. A random secret is generated
	// when empty, which invalidates sessions on restart.
	SessionSecret string

	// AdminPasswordHash is a bcrypt hash. If empty, AdminPassword is hashed
	// at construction. With neither set admin login always fails.
	AdminPasswordHash string
	AdminPassword     string

	// IdleTimeout expires a session that has not been refreshed; MaxAge
	// expires it regardless of activity.
	IdleTimeout time.Duration
	MaxAge      time.Duration
}

// AuthService checks the admin password and issues and validates session
// tokens (HS256 JWTs).
type AuthService struct {
	secret    []byte
	adminHash []byte
	idle      time.Duration
	maxAge    time.Duration
	generated bool
	now       func() time.Time
}

// NewAuthService builds an AuthService from cfg.
func NewAuthService(cfg AuthConfig) (*AuthService, error) {
	s := &AuthService{
		secret: []byte(cfg.SessionSecret),
		idle:   cfg.IdleTimeout,
		maxAge: cfg.MaxAge,
		now:    time.Now,
	}
	if s.idle <= 0 {
		s.idle = DefaultSessionIdle
	}
	if s.maxAge <= 0 {
		s.maxAge = DefaultSessionMaxAge
	}

	if len(s.secret) == 0 {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
		s.secret = []byte(hex.EncodeToString(buf))
		s.generated = true
	}

	switch {
	case cfg.AdminPasswordHash != "":
		if _, err := bcrypt.Cost([]byte(cfg.AdminPasswordHash)); err != nil {
			return nil, fmt.Errorf("admin password hash: %w", err)
		}
		s.adminHash = []byte(cfg.AdminPasswordHash)
	case cfg.AdminPassword != "":
		hash, err := HashPassword(cfg.AdminPassword)
		if err != nil {
			return nil, err
		}
		s.adminHash = []byte(hash)
	}
	return s, nil
}

// AdminEnabled reports whether an admin password is configured.
func (s *AuthService) AdminEnabled() bool { return len(s.adminHash) > 0 }

// SecretGenerated reports whether the session secret was generated at
// startup rather than configured.
func (s *AuthService) SecretGenerated() bool { return s.generated }

// CheckAdminPassword compares password with the configured hash.
func (s *AuthService) CheckAdminPassword(password string) error {
	if !s.AdminEnabled() || password == "" {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(s.adminHash, []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// HashPassword returns a bcrypt hash suitable for AdminPasswordHash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// IssueSession signs sess. A zero Started marks a new session. The token
// expires after the idle timeout, or at Started+MaxAge if that is sooner.
func (s *AuthService) IssueSession(sess Session) (string, time.Time, error) {
	now := s.now()
	if sess.Started.IsZero() {
		sess.Started = now
	}
	exp := now.Add(s.idle)
	if hard := sess.Started.Add(s.maxAge); hard.Before(exp) {
		exp = hard
	}

	claims := sessionClaims{
		Key:   sess.Key,
		Admin: sess.Admin,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(sess.Started),
			ExpiresAt: jwt.NewNumericDate(exp),
			Issuer:    sessionIssuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return signed, exp, nil
}

// ValidateSession verifies a session token and returns its contents.
func (s *AuthService) ValidateSession(tokenStr string) (*Session, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithIssuer(sessionIssuer), jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, ErrInvalidCredentials
	}
	if !token.Valid || claims.IssuedAt == nil {
		return nil, ErrInvalidCredentials
	}

	started := claims.IssuedAt.Time
	if !s.now().Before(started.Add(s.maxAge)) {
		return nil, ErrSessionExpired
	}
	return &Session{Key: claims.Key, Admin: claims.Admin, Started: started}, nil
}

type sessionClaims struct {
	Key   string `json:"key,omitempty"`
	Admin bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}
