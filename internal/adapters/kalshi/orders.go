package kalshi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alejandrodnm/copybot/internal/domain"
)

type createOrderRequest struct {
	Ticker        string `json:"ticker"`
	ClientOrderID string `json:"client_order_id"`
	Side          string `json:"side"`
	Action        string `json:"action"`
	Count         int    `json:"count"`
	Type          string `json:"type"`
	YesPrice      int    `json:"yes_price,omitempty"`
	NoPrice       int    `json:"no_price,omitempty"`
}

type rawOrder struct {
	OrderID        string `json:"order_id"`
	ClientOrderID  string `json:"client_order_id"`
	Status         string `json:"status"`
	FillCount      int    `json:"fill_count"`
	RemainingCount int    `json:"remaining_count"`
}

type createOrderResponse struct {
	Order rawOrder `json:"order"`
}

type balanceResponse struct {
	Balance int64 `json:"balance"`
}

// PlaceOrder crea una orden limit. No reintenta: el executor decide los
// reintentos y client_order_id hace que el exchange descarte duplicados.
func (c *Client) PlaceOrder(ctx context.Context, spec domain.OrderSpec) (domain.OrderResult, error) {
	if spec.Count <= 0 {
		return domain.OrderResult{}, fmt.Errorf("kalshi.PlaceOrder: count %d: %w", spec.Count, domain.ErrRejected)
	}
	body := createOrderRequest{
		Ticker:        spec.Ticker,
		ClientOrderID: spec.ClientOrderID,
		Side:          string(spec.Side),
		Action:        string(spec.Action),
		Count:         spec.Count,
		Type:          string(spec.Type),
	}
	if spec.Side == domain.SideNo {
		body.NoPrice = spec.Price
	} else {
		body.YesPrice = spec.Price
	}

	var resp createOrderResponse
	err := c.do(ctx, request{
		method:  http.MethodPost,
		path:    "/portfolio/orders",
		body:    body,
		limiter: c.writeLimiter,
		authed:  true,
	}, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
			// client_order_id repetido: la orden ya está en el exchange
			return domain.OrderResult{}, fmt.Errorf("kalshi.PlaceOrder %s: client_order_id %s: %w (%s)",
				spec.Ticker, spec.ClientOrderID, domain.ErrOrderExists, apiErr.Body)
		}
		return domain.OrderResult{}, fmt.Errorf("kalshi.PlaceOrder %s: %w", spec.Ticker, err)
	}

	return domain.OrderResult{
		OrderID:        resp.Order.OrderID,
		Status:         domain.OrderStatus(resp.Order.Status),
		FilledCount:    resp.Order.FillCount,
		RequestedCount: spec.Count,
	}, nil
}

// GetAccountBalance devuelve el saldo disponible en centavos.
func (c *Client) GetAccountBalance(ctx context.Context) (domain.Balance, error) {
	var resp balanceResponse
	err := c.do(ctx, request{
		method:  http.MethodGet,
		path:    "/portfolio/balance",
		limiter: c.readLimiter,
		authed:  true,
		retries: maxRetries,
	}, &resp)
	if err != nil {
		return domain.Balance{}, fmt.Errorf("kalshi.GetAccountBalance: %w", err)
	}
	return domain.Balance{Cents: resp.Balance, FetchedAt: time.Now()}, nil
}
