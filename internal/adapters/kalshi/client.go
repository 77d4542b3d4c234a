package kalshi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/copybot/internal/domain"
)

const (
	defaultBase = "https://trading-api.kalshi.com/trade-api/v2"

	// Rate limits al 60% del tier básico: lecturas 20/s → 12/s, escrituras 10/s → 6/s.
	readRatePerSec  = 12
	writeRatePerSec = 6

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Client es el HTTP client de Kalshi con rate limiting, retries y sesión por token.
type Client struct {
	http         *http.Client
	base         string
	readLimiter  *rate.Limiter
	writeLimiter *rate.Limiter
	retryWait    time.Duration

	email    string
	password string

	mu     sync.RWMutex
	token  string
	member string // user_id de la cuenta operadora
}

// NewClient crea un Client. Si base está vacío usa la API de producción.
func NewClient(base, email, password string) *Client {
	if base == "" {
		base = defaultBase
	}
	return &Client{
		http:         &http.Client{Timeout: 10 * time.Second},
		base:         base,
		readLimiter:  rate.NewLimiter(readRatePerSec, 5),
		writeLimiter: rate.NewLimiter(writeRatePerSec, 2),
		retryWait:    baseRetryWait,
		email:        email,
		password:     password,
	}
}

// WithRetryWait cambia la espera base entre reintentos. Pensado para tests.
func (c *Client) WithRetryWait(d time.Duration) *Client {
	c.retryWait = d
	return c
}

// APIError es una respuesta no-2xx de la API. Unwrap devuelve la clase de
// error de dominio que le corresponde.
type APIError struct {
	Status int
	Body   string
	kind   error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kalshi: status %d: %s", e.Status, e.Body)
}

func (e *APIError) Unwrap() error { return e.kind }

// classify mapea un status HTTP a la taxonomía de errores del dominio.
func classify(status int) error {
	switch {
	case status == http.StatusTooManyRequests, status >= 500:
		return domain.ErrTransient
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return domain.ErrUpstreamUnavailable
	default:
		return domain.ErrRejected
	}
}

// request describe una llamada. retries=0 desactiva los reintentos internos
// (las órdenes los gestiona el executor).
type request struct {
	method  string
	path    string
	body    any
	limiter *rate.Limiter
	authed  bool
	retries int
}

// do ejecuta la request, reautenticando una vez si el token expiró.
func (c *Client) do(ctx context.Context, r request, out any) error {
	err := c.doWithRetry(ctx, r, out)
	var apiErr *APIError
	if r.authed && errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized && c.hasCredentials() {
		slog.Info("kalshi: session expired, logging in again")
		if lerr := c.login(ctx); lerr != nil {
			return lerr
		}
		return c.doWithRetry(ctx, r, out)
	}
	return err
}

// doWithRetry ejecuta la request con backoff exponencial ante 429, 5xx y errores de red.
func (c *Client) doWithRetry(ctx context.Context, r request, out any) error {
	var payload []byte
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		payload = b
	}

	var lastErr error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if err := r.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := c.send(ctx, r, payload)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %w", domain.ErrTransient, err)
			}
			lastErr = fmt.Errorf("%w: %w", domain.ErrTransient, err)
			if attempt < r.retries {
				c.sleep(ctx, attempt)
			}
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			apiErr := &APIError{Status: resp.StatusCode, Body: string(body), kind: classify(resp.StatusCode)}
			if !errors.Is(apiErr, domain.ErrTransient) {
				return apiErr
			}
			if resp.StatusCode == http.StatusTooManyRequests {
				slog.Warn("rate limited by API", "path", r.path, "attempt", attempt+1)
			}
			lastErr = apiErr
			if attempt < r.retries {
				c.sleep(ctx, attempt)
			}
			continue
		}

		defer resp.Body.Close()
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	if r.retries == 0 {
		return lastErr
	}
	return fmt.Errorf("request failed after %d retries: %w", r.retries, lastErr)
}

func (c *Client) send(ctx context.Context, r request, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, c.base+r.path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.authed {
		if tok := c.currentToken(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	return c.http.Do(req)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.retryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
