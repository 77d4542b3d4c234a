package mirror

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alejandrodnm/copybot/internal/domain"
	"github.com/alejandrodnm/copybot/internal/ports"
)

const defaultCallTimeout = 10 * time.Second

// Poller obtiene los trades nuevos del usuario objetivo.
type Poller struct {
	exchange ports.Exchange
	timeout  time.Duration
}

// NewPoller crea un Poller. timeout <= 0 usa el default de 10s.
func NewPoller(exchange ports.Exchange, timeout time.Duration) *Poller {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &Poller{exchange: exchange, timeout: timeout}
}

// FetchNew devuelve los trades estrictamente posteriores al cursor,
// sin duplicados y ordenados del más antiguo al más nuevo.
func (p *Poller) FetchNew(ctx context.Context, targetUserID string, cursor domain.Cursor) ([]domain.Trade, error) {
	if strings.TrimSpace(targetUserID) == "" {
		return nil, fmt.Errorf("poller.FetchNew: %w: empty user id", domain.ErrInvalidTarget)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	trades, err := p.exchange.ListTradesForUser(callCtx, targetUserID, cursor)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTarget) {
			return nil, fmt.Errorf("poller.FetchNew: %w", err)
		}
		// todo lo demás (red, auth, timeout) es upstream
		return nil, fmt.Errorf("poller.FetchNew: %w: %w", domain.ErrUpstreamUnavailable, err)
	}

	return selectNew(trades, cursor), nil
}

// selectNew filtra por cursor, deduplica por ID y ordena oldest-first.
func selectNew(trades []domain.Trade, cursor domain.Cursor) []domain.Trade {
	seen := make(map[string]bool, len(trades))
	out := make([]domain.Trade, 0, len(trades))
	for _, t := range trades {
		if t.ID == "" || seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		if !cursor.Admits(t) {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[j].After(out[i])
	})
	return out
}
