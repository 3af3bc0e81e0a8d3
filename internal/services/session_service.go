package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kisanai/backend/internal/models"
)

const ProviderJWT = "jwt"

var (
	ErrInvalidSession = errors.New("invalid or expired session")
	ErrSessionRevoked = errors.New("session revoked")
	ErrUnknownSession = errors.New("no session manager for provider")
)

// SessionManager verifies bearer tokens and signs sessions out.
type SessionManager interface {
	Authenticate(ctx context.Context, token string) (*models.Session, error)
	Revoke(ctx context.Context, session *models.Session) error
}

// JWTSessionService issues HS256 tokens with a unique jti. Sign-out puts the
// jti on a revocation list until the token would have expired anyway.
type JWTSessionService struct {
	secret  []byte
	ttl     time.Duration
	revoked RevocationStore
	now     func() time.Time
}

func NewJWTSessionService(secret string, ttl time.Duration, revoked RevocationStore) *JWTSessionService {
	if revoked == nil {
		revoked = NewMemoryRevocationStore()
	}
	return &JWTSessionService{
		secret:  []byte(secret),
		ttl:     ttl,
		revoked: revoked,
		now:     time.Now,
	}
}

func (s *JWTSessionService) Issue(user *models.User) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"email":   user.Email,
		"jti":     uuid.NewString(),
		"exp":     now.Add(s.ttl).Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *JWTSessionService) Authenticate(ctx context.Context, tokenString string) (*models.Session, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return nil, ErrInvalidSession
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidSession
	}
	userID, _ := claims["user_id"].(string)
	jti, _ := claims["jti"].(string)
	if userID == "" || jti == "" {
		return nil, ErrInvalidSession
	}
	email, _ := claims["email"].(string)

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, ErrInvalidSession
	}

	revoked, err := s.revoked.IsRevoked(ctx, jti)
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, ErrSessionRevoked
	}

	return &models.Session{
		ID:        jti,
		UserID:    userID,
		Email:     email,
		Provider:  ProviderJWT,
		ExpiresAt: exp.Time,
	}, nil
}

func (s *JWTSessionService) Revoke(ctx context.Context, session *models.Session) error {
	ttl := session.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	return s.revoked.Revoke(ctx, session.ID, ttl)
}

// SessionChain tries each manager in order; Revoke is routed by provider.
type SessionChain struct {
	managers  []SessionManager
	providers map[string]SessionManager
}

// NewSessionChain registers managers under their provider names.
func NewSessionChain() *SessionChain {
	return &SessionChain{providers: make(map[string]SessionManager)}
}

func (c *SessionChain) Add(provider string, m SessionManager) *SessionChain {
	if m == nil {
		return c
	}
	c.managers = append(c.managers, m)
	c.providers[provider] = m
	return c
}

func (c *SessionChain) Authenticate(ctx context.Context, token string) (*models.Session, error) {
	lastErr := ErrInvalidSession
	for _, m := range c.managers {
		sess, err := m.Authenticate(ctx, token)
		if err == nil {
			return sess, nil
		}
		// A revoked or unverifiable-but-recognized token stops the chain.
		if errors.Is(err, ErrSessionRevoked) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *SessionChain) Revoke(ctx context.Context, session *models.Session) error {
	m, ok := c.providers[session.Provider]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSession, session.Provider)
	}
	return m.Revoke(ctx, session)
}
