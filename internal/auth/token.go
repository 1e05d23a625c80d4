package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the minimum HS256 signing secret length in bytes.
const MinSecretLength = 32

// DefaultTokenTTL is how long an issued token stays valid.
const DefaultTokenTTL = time.Hour

// Claims is the JWT payload. Issuer and audience are deliberately absent and never checked.
type Claims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Principal is the caller identity taken from a validated token.
type Principal struct {
	Username  string
	Role      string
	ExpiresAt time.Time
}

// IsAdmin reports whether the principal holds the Admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Token is a signed token and its expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// TokenService issues and validates HS256 tokens for a CredentialStore.
// The secret and credentials are read-only after construction.
type TokenService struct {
	secret      []byte
	ttl         time.Duration
	credentials CredentialStore
	now         func() time.Time
}

// NewTokenService returns ErrSigningKeyTooShort when secret is under MinSecretLength bytes.
// ttl <= 0 selects DefaultTokenTTL; now == nil selects time.Now.
func NewTokenService(secret []byte, ttl time.Duration, credentials CredentialStore, now func() time.Time) (*TokenService, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: got %d bytes, need at least %d", ErrSigningKeyTooShort, len(secret), MinSecretLength)
	}
	if credentials == nil {
		return nil, errors.New("token service: credential store is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if now == nil {
		now = time.Now
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &TokenService{secret: key, ttl: ttl, credentials: credentials, now: now}, nil
}

// IssueToken verifies username/password and signs a token carrying the user's role.
func (s *TokenService) IssueToken(username, password string) (Token, error) {
	role, err := s.credentials.Verify(username, password)
	if err != nil {
		return Token{}, err
	}
	return s.sign(username, role)
}

func (s *TokenService) sign(username, role string) (Token, error) {
	now := s.now().UTC()
	exp := now.Add(s.ttl)
	claims := Claims{
		Name: username,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{Value: signed, ExpiresAt: exp}, nil
}

// ValidateToken checks signature and expiry and returns the embedded principal.
// iat is informational only; tokens minted on a clock slightly ahead are accepted.
func (s *TokenService) ValidateToken(tokenString string) (Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Principal{}, classifyTokenError(err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Principal{}, ErrTokenMalformed
	}
	if claims.Name == "" || claims.Role == "" {
		return Principal{}, fmt.Errorf("%w: missing name or role claim", ErrTokenMalformed)
	}
	return Principal{
		Username:  claims.Name,
		Role:      claims.Role,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrTokenInvalidSignature, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
}
