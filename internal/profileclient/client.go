// Package profileclient talks to the KisanAI service on behalf of the app:
// session lookup, the farmer profile row and sign-out.
package profileclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kisanai/backend/internal/logger"
	"github.com/kisanai/backend/internal/models"
)

const maxResponseBytes = 1 << 20

// TokenSource yields the current bearer token, or "" when signed out.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a fixed bearer token.
type StaticToken string

func (t StaticToken) Token() (string, error) { return string(t), nil }

type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	log     *logger.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New builds a client for the service at baseURL. A nil TokenSource means
// every authenticated call fails with ErrUnauthenticated.
func New(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		tokens:  tokens,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if tokens == nil {
		c.tokens = StaticToken("")
	}
	return c
}

// CurrentUser resolves the session behind the token. It returns
// ErrUnauthenticated when there is no token or the service rejects it.
func (c *Client) CurrentUser(ctx context.Context) (*models.SessionUser, error) {
	var u models.SessionUser
	if err := c.do(ctx, "current user", http.MethodGet, "/api/auth/me", nil, &u, true); err != nil {
		return nil, err
	}
	return &u, nil
}

// FetchProfile loads the profile owned by userID, which must be the session
// user. ErrNotFound means none exists yet.
func (c *Client) FetchProfile(ctx context.Context, userID string) (*models.FarmerProfile, error) {
	var p models.FarmerProfile
	if err := c.do(ctx, "fetch profile", http.MethodGet, "/api/profiles/me", nil, &p, true); err != nil {
		return nil, err
	}
	c.log.Debug("profile fetched", "user_id", userID, "profile_id", p.ID)
	return &p, nil
}

// CreateProfile inserts req and returns the stored row, which carries the
// server id and timestamps.
func (c *Client) CreateProfile(ctx context.Context, req models.CreateProfileRequest) (*models.FarmerProfile, error) {
	var p models.FarmerProfile
	if err := c.do(ctx, "create profile", http.MethodPost, "/api/profiles", req, &p, true); err != nil {
		return nil, err
	}
	c.log.Info("profile created", "user_id", p.UserID, "profile_id", p.ID)
	return &p, nil
}

// UpdateProfile applies patch to the profile owned by userID and returns the
// row as stored afterwards.
func (c *Client) UpdateProfile(ctx context.Context, userID string, patch models.ProfilePatch) (*models.FarmerProfile, error) {
	var p models.FarmerProfile
	if err := c.do(ctx, "update profile", http.MethodPatch, "/api/profiles/me", patch, &p, true); err != nil {
		return nil, err
	}
	c.log.Debug("profile updated", "user_id", userID, "updated_at", p.UpdatedAt)
	return &p, nil
}

// SignOut revokes the current session on the service.
func (c *Client) SignOut(ctx context.Context) error {
	return c.do(ctx, "sign out", http.MethodPost, "/api/auth/logout", nil, nil, true)
}

func (c *Client) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	var out models.AuthResponse
	if err := c.do(ctx, "login", http.MethodPost, "/api/auth/login", req, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	var out models.AuthResponse
	if err := c.do(ctx, "register", http.MethodPost, "/api/auth/register", req, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitSupport sends a help message and returns the ticket id.
func (c *Client) SubmitSupport(ctx context.Context, message string) (string, error) {
	var out models.SupportTicket
	if err := c.do(ctx, "support", http.MethodPost, "/api/support", models.SupportRequest{Message: message}, &out, true); err != nil {
		return "", err
	}
	return out.Ticket, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out interface{}, auth bool) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		token, err := c.tokens.Token()
		if err != nil {
			return &TransportError{Op: op, Err: fmt.Errorf("read session: %w", err)}
		}
		if token == "" {
			return ErrUnauthenticated
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("request failed", "op", op, "error", err)
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &TransportError{Op: op, Status: resp.StatusCode, Err: err}
	}

	var env models.RawAPIResponse
	decodeErr := json.Unmarshal(data, &env)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if decodeErr != nil {
			return &TransportError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", decodeErr)}
		}
		if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
			return nil
		}
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &TransportError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode data: %w", err)}
		}
		return nil
	}

	msg := env.Error
	if decodeErr != nil || msg == "" {
		msg = snippet(data)
	}
	c.log.Debug("request rejected", "op", op, "status", resp.StatusCode, "message", msg)

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case http.StatusUnauthorized:
		return fmt.Errorf("%s: %w", op, ErrUnauthenticated)
	case http.StatusConflict:
		return fmt.Errorf("%s: %w", op, ErrConflict)
	case http.StatusBadRequest, http.StatusForbidden, http.StatusUnprocessableEntity:
		return &ValidationError{Message: msg, Fields: env.Errors}
	default:
		return &TransportError{Op: op, Status: resp.StatusCode, Err: errors.New(msg)}
	}
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200]
	}
	if s == "" {
		s = "empty response"
	}
	return s
}
