package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	apperrors "ctrlauth/internal/errors"
)

const (
	// DefaultTokenTTL is the lifetime of a login token when none is configured.
	DefaultTokenTTL = 180 * time.Minute
	// Issuer is stamped into every token.
	Issuer = "ctrlauth"

	signingKeySize = 32
)

// SigningKey is the HMAC secret tokens are signed with. It is built once at
// process start and handed to the JWTService; it is never rotated in-process.
type SigningKey struct {
	secret []byte
}

// NewSigningKey wraps a configured secret.
func NewSigningKey(secret string) (*SigningKey, error) {
	if secret == "" {
		return nil, errors.New("empty signing secret")
	}
	return &SigningKey{secret: []byte(secret)}, nil
}

// GenerateSigningKey returns a random key, valid for the lifetime of the process.
func GenerateSigningKey() (*SigningKey, error) {
	secret := make([]byte, signingKeySize)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return &SigningKey{secret: secret}, nil
}

// LoadSigningKey uses secret when set and generates a fresh key otherwise.
func LoadSigningKey(secret string) (*SigningKey, error) {
	if secret == "" {
		return GenerateSigningKey()
	}
	return NewSigningKey(secret)
}

// Claims represents JWT claims.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Token is an issued bearer credential.
type Token struct {
	Value     string    `json:"token"`
	Subject   string    `json:"-"`
	IssuedAt  time.Time `json:"-"`
	ExpiresAt time.Time `json:"-"`
}

// JWTService handles JWT token generation and validation.
type JWTService struct {
	key *SigningKey
	now func() time.Time
}

// NewJWTService creates a new JWT service with the given key.
func NewJWTService(key *SigningKey) *JWTService {
	return &JWTService{
		key: key,
		now: time.Now,
	}
}

// Issue signs a token for subject, valid for ttl from now.
func (s *JWTService) Issue(subject string, ttl time.Duration) (Token, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	issuedAt := s.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(ttl)

	claims := &Claims{
		Username: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}

	return Token{
		Value:     signed,
		Subject:   subject,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// Validate verifies the signature and expiry of tokenString and returns its subject.
// It fails with ErrTokenExpired for aged-out tokens and ErrTokenInvalid otherwise.
func (s *JWTService) Validate(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.key.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", apperrors.ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", apperrors.ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", apperrors.ErrTokenInvalid
	}
	// exp is mandatory: a token without it would never age out.
	if claims.ExpiresAt == nil || claims.Subject == "" {
		return "", apperrors.ErrTokenInvalid
	}

	return claims.Subject, nil
}
