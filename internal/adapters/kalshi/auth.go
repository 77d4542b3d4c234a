package kalshi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/alejandrodnm/copybot/internal/domain"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token    string `json:"token"`
	MemberID string `json:"member_id"`
	UserID   string `json:"user_id"`
}

// Authenticate abre una sesión con email y password. El token se usa como
// bearer en todas las llamadas autenticadas.
func (c *Client) Authenticate(ctx context.Context) error {
	if !c.hasCredentials() {
		return fmt.Errorf("kalshi.Authenticate: missing email or password: %w", domain.ErrUpstreamUnavailable)
	}
	return c.login(ctx)
}

func (c *Client) login(ctx context.Context) error {
	var resp loginResponse
	err := c.doWithRetry(ctx, request{
		method:  http.MethodPost,
		path:    "/login",
		body:    loginRequest{Email: c.email, Password: c.password},
		limiter: c.writeLimiter,
		retries: maxRetries,
	}, &resp)
	if err != nil {
		return fmt.Errorf("kalshi.login: %w: %w", domain.ErrUpstreamUnavailable, err)
	}
	if resp.Token == "" {
		return fmt.Errorf("kalshi.login: empty token: %w", domain.ErrUpstreamUnavailable)
	}

	member := resp.UserID
	if member == "" {
		member = resp.MemberID
	}
	c.mu.Lock()
	c.token = resp.Token
	c.member = member
	c.mu.Unlock()

	slog.Info("kalshi: authenticated", "member", member)
	return nil
}

// MemberID devuelve el user_id de la cuenta autenticada.
func (c *Client) MemberID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.member
}

func (c *Client) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) hasCredentials() bool {
	return c.email != "" && c.password != ""
}
