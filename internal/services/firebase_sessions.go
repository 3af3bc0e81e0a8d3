package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/kisanai/backend/internal/models"
)

const ProviderFirebase = "firebase"

type FirebaseAuthConfig struct {
	ProjectID       string
	CredentialsJSON string
}

// FirebaseSessions accepts Firebase ID tokens issued to the mobile app.
// Signing out revokes the user's refresh tokens, which also invalidates
// outstanding ID tokens on the next revocation check.
type FirebaseSessions struct {
	client *fbauth.Client
}

func NewFirebaseSessions(ctx context.Context, cfg FirebaseAuthConfig) (*FirebaseSessions, error) {
	var opts []option.ClientOption
	if strings.TrimSpace(cfg.CredentialsJSON) != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth: %w", err)
	}
	return &FirebaseSessions{client: client}, nil
}

func (f *FirebaseSessions) Authenticate(ctx context.Context, token string) (*models.Session, error) {
	tok, err := f.client.VerifyIDTokenAndCheckRevoked(ctx, token)
	if err != nil {
		if fbauth.IsIDTokenRevoked(err) {
			return nil, ErrSessionRevoked
		}
		return nil, ErrInvalidSession
	}
	email, _ := tok.Claims["email"].(string)
	return &models.Session{
		ID:        tok.UID + ":" + fmt.Sprint(tok.IssuedAt),
		UserID:    tok.UID,
		Email:     email,
		Provider:  ProviderFirebase,
		ExpiresAt: time.Unix(tok.Expires, 0),
	}, nil
}

func (f *FirebaseSessions) Revoke(ctx context.Context, session *models.Session) error {
	return f.client.RevokeRefreshTokens(ctx, session.UserID)
}
