package httpapi

import (
	"time"

	"github.com/alejandrodnm/copybot/internal/application/mirror"
	"github.com/alejandrodnm/copybot/internal/domain"
)

type cursorView struct {
	UserID    string     `json:"user_id"`
	TradeID   string     `json:"trade_id,omitempty"`
	TradeTime *time.Time `json:"trade_time,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type orderView struct {
	Ticker        string `json:"ticker"`
	Side          string `json:"side"`
	Action        string `json:"action"`
	Type          string `json:"type"`
	Price         int    `json:"price"`
	Count         int    `json:"count"`
	ClientOrderID string `json:"client_order_id"`
}

type entryView struct {
	ID            string     `json:"id"`
	SourceTradeID string     `json:"source_trade_id"`
	Epoch         int        `json:"epoch"`
	Status        string     `json:"status"`
	Ticker        string     `json:"market_ticker"`
	Title         string     `json:"market_title"`
	Side          string     `json:"side"`
	Action        string     `json:"action"`
	Price         int        `json:"price"`
	Count         int        `json:"count"`
	TradeTime     time.Time  `json:"created_time"`
	AgeCategory   string     `json:"age_category"`
	IsTaker       bool       `json:"is_taker"`
	Decision      string     `json:"decision"`
	Reason        string     `json:"reason,omitempty"`
	Order         *orderView `json:"order,omitempty"`
	OrderID       string     `json:"order_id,omitempty"`
	FilledCount   int        `json:"filled_count"`
	Attempts      int        `json:"attempts"`
	Error         string     `json:"error,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type balanceView struct {
	Cents     int64     `json:"cents"`
	Dollars   float64   `json:"dollars"`
	FetchedAt time.Time `json:"fetched_at"`
}

type statsView struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Copied  int `json:"copied"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Epoch   int `json:"epoch"`
}

type statusView struct {
	State      string          `json:"state"`
	DemoMode   bool            `json:"demo_mode"`
	Settings   domain.Settings `json:"settings"`
	Cursor     cursorView      `json:"cursor"`
	Stats      statsView       `json:"stats"`
	Balance    *balanceView    `json:"balance,omitempty"`
	Entries    []entryView     `json:"entries"`
	StartedAt  time.Time       `json:"started_at"`
	LastTickAt *time.Time      `json:"last_tick_at,omitempty"`
	LastError  string          `json:"last_error,omitempty"`
	Ticks      int64           `json:"ticks"`
}

func toStatusView(st mirror.Status, now time.Time) statusView {
	v := statusView{
		State:      string(st.State),
		DemoMode:   st.DemoMode,
		Settings:   st.Settings,
		Cursor:     toCursorView(st.Cursor),
		Stats:      statsView(st.Stats),
		Entries:    make([]entryView, 0, len(st.Entries)),
		StartedAt:  st.StartedAt,
		LastTickAt: timePtr(st.LastTickAt),
		LastError:  st.LastError,
		Ticks:      st.Ticks,
	}
	if st.Balance != nil {
		v.Balance = &balanceView{Cents: st.Balance.Cents, Dollars: st.Balance.Dollars(), FetchedAt: st.Balance.FetchedAt}
	}
	for _, e := range st.Entries {
		v.Entries = append(v.Entries, toEntryView(e, now))
	}
	return v
}

func toCursorView(c domain.Cursor) cursorView {
	return cursorView{
		UserID:    c.UserID,
		TradeID:   c.TradeID,
		TradeTime: timePtr(c.TradeTime),
		UpdatedAt: timePtr(c.UpdatedAt),
	}
}

func toEntryView(e domain.LedgerEntry, now time.Time) entryView {
	v := entryView{
		ID:            e.ID,
		SourceTradeID: e.SourceTradeID,
		Epoch:         e.Epoch,
		Status:        string(e.Status),
		Ticker:        e.Trade.Ticker,
		Title:         e.Trade.Title,
		Side:          string(e.Trade.Side),
		Action:        string(e.Trade.Action),
		Price:         e.Trade.Price,
		Count:         e.Trade.Count,
		TradeTime:     e.Trade.CreatedAt,
		AgeCategory:   string(domain.AgeOf(e.Trade.CreatedAt, now)),
		IsTaker:       e.Trade.IsTaker,
		Decision:      string(e.Decision.Action),
		Reason:        e.Decision.Reason,
		OrderID:       e.OrderID,
		FilledCount:   e.FilledCount,
		Attempts:      e.Attempts,
		Error:         e.Error,
		UpdatedAt:     e.UpdatedAt,
	}
	if e.Decision.ShouldCopy() {
		o := e.Decision.Order
		v.Order = &orderView{
			Ticker:        o.Ticker,
			Side:          string(o.Side),
			Action:        string(o.Action),
			Type:          string(o.Type),
			Price:         o.Price,
			Count:         o.Count,
			ClientOrderID: o.ClientOrderID,
		}
	}
	return v
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
