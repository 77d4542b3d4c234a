package kalshi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/copybot/internal/domain"
)

const (
	tradesPageLimit = 100
	tradesMaxPages  = 50
)

type rawTrade struct {
	ID              string      `json:"id"`
	TradeID         string      `json:"trade_id"`
	Ticker          string      `json:"market_ticker"`
	Title           string      `json:"market_title"`
	Side            string      `json:"side"`
	Action          string      `json:"action"`
	TradeType       string      `json:"trade_type"`
	Count           int         `json:"count"`
	YesPrice        json.Number `json:"yes_price"`
	NoPrice         json.Number `json:"no_price"`
	YesPriceDollars string      `json:"yes_price_dollars"`
	NoPriceDollars  string      `json:"no_price_dollars"`
	CreatedTime     string      `json:"created_time"`
	UserID          string      `json:"user_id"`
	IsTaker         bool        `json:"is_taker"`
}

type tradesResponse struct {
	Trades []rawTrade `json:"trades"`
	Cursor string     `json:"cursor"`
}

// ListTradesForUser devuelve los trades recientes de un usuario, tal como
// los entrega la API (más nuevos primero). Pagina con el cursor de la API
// hasta agotar las páginas o alcanzar since. El filtrado fino contra el
// cursor lo hace el poller; since acota la consulta con min_ts.
func (c *Client) ListTradesForUser(ctx context.Context, userID string, since domain.Cursor) ([]domain.Trade, error) {
	var all []domain.Trade
	pageCursor := ""

	for page := 0; page < tradesMaxPages; page++ {
		resp, err := c.fetchTradesPage(ctx, userID, since, pageCursor)
		if err != nil {
			return nil, err
		}

		reachedSince := false
		for _, rt := range resp.Trades {
			t, ok := mapTrade(rt, userID)
			if !ok {
				slog.Debug("kalshi: dropping malformed trade", "id", rt.ID, "ticker", rt.Ticker)
				continue
			}
			all = append(all, t)
			if !since.IsZero() && !since.Admits(t) {
				reachedSince = true
			}
		}

		slog.Debug("kalshi: fetched trades page",
			"user", userID,
			"page", page,
			"count", len(resp.Trades),
			"total", len(all),
		)

		if resp.Cursor == "" || len(resp.Trades) == 0 || reachedSince {
			return all, nil
		}
		pageCursor = resp.Cursor
	}

	// con min_ts esto implica miles de trades entre dos polls
	slog.Warn("kalshi: trade pagination limit reached, oldest trades not fetched",
		"user", userID,
		"pages", tradesMaxPages,
		"total", len(all),
	)
	return all, nil
}

func (c *Client) fetchTradesPage(ctx context.Context, userID string, since domain.Cursor, pageCursor string) (tradesResponse, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(tradesPageLimit))
	if !since.TradeTime.IsZero() {
		q.Set("min_ts", strconv.FormatInt(since.TradeTime.Unix(), 10))
	}
	if pageCursor != "" {
		q.Set("cursor", pageCursor)
	}
	path := fmt.Sprintf("/users/%s/trades?%s", url.PathEscape(userID), q.Encode())

	var resp tradesResponse
	err := c.do(ctx, request{
		method:  http.MethodGet,
		path:    path,
		limiter: c.readLimiter,
		authed:  true,
		retries: maxRetries,
	}, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return resp, fmt.Errorf("kalshi.ListTradesForUser %s: %w", userID, domain.ErrInvalidTarget)
		}
		return resp, fmt.Errorf("kalshi.ListTradesForUser: %w", err)
	}
	return resp, nil
}

// mapTrade convierte un trade crudo. El precio es el del lado operado, en centavos.
func mapTrade(rt rawTrade, userID string) (domain.Trade, bool) {
	id := rt.ID
	if id == "" {
		id = rt.TradeID
	}
	if id == "" || rt.Ticker == "" {
		return domain.Trade{}, false
	}

	side := domain.Side(strings.ToLower(rt.Side))
	action := rt.Action
	if action == "" {
		action = rt.TradeType
	}
	if action == "" {
		action = string(domain.ActionBuy)
	}

	yes := priceCents(rt.YesPrice, rt.YesPriceDollars)
	no := priceCents(rt.NoPrice, rt.NoPriceDollars)
	if no == 0 && yes > 0 {
		no = 100 - yes
	}
	if yes == 0 && no > 0 {
		yes = 100 - no
	}
	price := yes
	if side == domain.SideNo {
		price = no
	}

	user := rt.UserID
	if user == "" {
		user = userID
	}

	return domain.Trade{
		ID:        id,
		Ticker:    rt.Ticker,
		Title:     rt.Title,
		Side:      side,
		Action:    domain.Action(strings.ToLower(action)),
		Price:     price,
		Count:     rt.Count,
		CreatedAt: parseTradeTimestamp(rt.CreatedTime),
		UserID:    user,
		IsTaker:   rt.IsTaker,
	}, true
}

// priceCents prefiere el precio en centavos; si falta, convierte el string en dólares.
func priceCents(cents json.Number, dollars string) int {
	if cents != "" {
		if n, err := cents.Int64(); err == nil {
			return int(n)
		}
		if f, err := decimal.NewFromString(cents.String()); err == nil {
			return int(f.Round(0).IntPart())
		}
	}
	if dollars != "" {
		if d, err := decimal.NewFromString(dollars); err == nil {
			return int(d.Mul(decimal.NewFromInt(100)).Round(0).IntPart())
		}
	}
	return 0
}

// parseTradeTimestamp acepta unix (s o ms) o ISO 8601.
func parseTradeTimestamp(s string) time.Time {
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		if sec > 1e12 {
			return time.UnixMilli(sec).UTC()
		}
		return time.Unix(sec, 0).UTC()
	}
	for _, layout := range []string{
		time.RFC3339Nano, time.RFC3339,
		"2006-01-02T15:04:05.999999", "2006-01-02T15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
