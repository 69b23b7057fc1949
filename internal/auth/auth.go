// Package auth implements operator login and bearer tokens.
package auth

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"dartcam/internal/logger"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAuthDisabled       = errors.New("authentication is disabled")
)

// Options configures an Authenticator.
type Options struct {
	Enabled  bool
	Username string
	// Password is plaintext or an existing bcrypt hash.
	Password  string
	JWTSecret string
	JWTExpiry time.Duration
}

// Authenticator checks the single operator account
type Authenticator struct {
	enabled      bool
	username     string
	passwordHash []byte
	jwtManager   *JWTManager
}

// NewAuthenticator builds an authenticator, hashing a plaintext password.
func NewAuthenticator(opts Options) (*Authenticator, error) {
	a := &Authenticator{
		enabled:    opts.Enabled,
		username:   opts.Username,
		jwtManager: NewJWTManager(opts.JWTSecret, opts.JWTExpiry),
	}
	if a.username == "" {
		a.username = "admin"
	}
	if !opts.Enabled {
		return a, nil
	}
	if opts.Password == "" {
		return nil, errors.New("auth enabled without a password")
	}

	if isBcryptHash(opts.Password) {
		a.passwordHash = []byte(opts.Password)
	} else {
		hash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		a.passwordHash = hash
	}
	logger.Info(logger.Fields{"username": a.username}, "[Auth] operator login enabled")
	return a, nil
}

func isBcryptHash(s string) bool {
	return len(s) == 60 && (strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$"))
}

// IsEnabled returns whether authentication is enabled
func (a *Authenticator) IsEnabled() bool {
	return a.enabled
}

// Authenticate validates credentials and returns a token and its expiry (unix seconds).
func (a *Authenticator) Authenticate(username, password string) (string, int64, error) {
	if !a.enabled {
		return "", 0, ErrAuthDisabled
	}

	if username != a.username {
		return "", 0, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return "", 0, ErrInvalidCredentials
	}

	token, expiresAt, err := a.jwtManager.GenerateToken(username)
	if err != nil {
		return "", 0, err
	}
	return token, expiresAt.Unix(), nil
}

// ValidateToken validates a JWT token
func (a *Authenticator) ValidateToken(token string) (*Claims, error) {
	return a.jwtManager.ValidateToken(token)
}

// HashPassword creates a bcrypt hash of a password for AUTH_PASSWORD.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
