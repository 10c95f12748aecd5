// Package jwt signs the short-lived tokens embedded in local blob URLs.
package jwt

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"assetvault/internal/pkg/clock"
)

type Scope string

const (
	ScopeUpload Scope = "upload"
	ScopeRead   Scope = "read"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrWrongScope   = errors.New("token scope mismatch")
)

type Service struct {
	secret []byte
	clock  clock.Clock
}

// Claims binds a token to one scope and, for reads, one blob handle. ID is
// unique per token so one-shot tokens can be consumed.
type Claims struct {
	Scope  Scope  `json:"scope"`
	Handle string `json:"handle,omitempty"`
	jwtlib.RegisteredClaims
}

func New(secret string, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Service{
		secret: []byte(secret),
		clock:  clk,
	}
}

func (s *Service) GenerateToken(scope Scope, handle string, ttl time.Duration) (string, *Claims, error) {
	now := s.clock.Now()
	claims := &Claims{
		Scope:  scope,
		Handle: handle,
		RegisteredClaims: jwtlib.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}

	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

func (s *Service) ValidateToken(tokenStr string, scope Scope) (*Claims, error) {
	token, err := jwtlib.ParseWithClaims(tokenStr, &Claims{}, func(t *jwtlib.Token) (any, error) {
		return s.secret, nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithTimeFunc(s.clock.Now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}
	if claims.Scope != scope {
		return nil, ErrWrongScope
	}
	return claims, nil
}
