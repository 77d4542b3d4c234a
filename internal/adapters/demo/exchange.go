// Package demo implementa un exchange simulado para probar el bot sin
// credenciales ni dinero real.
package demo

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/copybot/internal/domain"
)

const (
	DefaultUserID      = "demo-trader-123"
	defaultSeedTrades  = 15
	defaultNewChance   = 0.1
	startingBalanceCts = 1_000_000
)

var seedMarkets = []string{
	"Will there be a major AI breakthrough announced this year?",
	"Will the incumbent win the presidential election?",
	"Will the Federal Reserve raise interest rates in March?",
	"Will Bitcoin be above $50,000 at the end of the year?",
	"Will the S&P 500 be above 4,500 by December 31st?",
	"Will US inflation be below 3% by end of Q4?",
	"Will Tesla stock be above $200 by end of year?",
	"Will there be a recession declared this year?",
}

var liveMarkets = []string{
	"Will crypto prices surge this week?",
	"Will the market close higher today?",
	"Will there be major news announcement?",
}

// Options configura el feed simulado.
type Options struct {
	SeedTrades int        // trades históricos iniciales por usuario
	NewChance  float64    // probabilidad de un trade nuevo por consulta
	Rand       *rand.Rand // nil → fuente aleatoria
	Now        func() time.Time
}

// Exchange es un exchange en memoria: genera trades para cualquier usuario
// y llena inmediatamente todas las órdenes.
type Exchange struct {
	mu      sync.Mutex
	opts    Options
	rnd     *rand.Rand
	now     func() time.Time
	feeds   map[string][]domain.Trade // userID → trades, más nuevos primero
	seq     int
	balance int64
	orders  []domain.OrderSpec
}

// New crea un exchange demo.
func New(opts Options) *Exchange {
	if opts.SeedTrades <= 0 {
		opts.SeedTrades = defaultSeedTrades
	}
	if opts.NewChance <= 0 {
		opts.NewChance = defaultNewChance
	}
	rnd := opts.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Exchange{
		opts:    opts,
		rnd:     rnd,
		now:     now,
		feeds:   make(map[string][]domain.Trade),
		balance: startingBalanceCts,
	}
}

func (x *Exchange) Authenticate(context.Context) error { return nil }

// ListTradesForUser devuelve el feed del usuario. La primera consulta crea
// el historial; las siguientes pueden añadir un trade nuevo.
func (x *Exchange) ListTradesForUser(ctx context.Context, userID string, _ domain.Cursor) ([]domain.Trade, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("demo.ListTradesForUser: %w: %w", domain.ErrUpstreamUnavailable, err)
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	feed, ok := x.feeds[userID]
	if !ok {
		feed = x.seed(userID)
	} else if x.rnd.Float64() < x.opts.NewChance {
		feed = append([]domain.Trade{x.liveTrade(userID)}, feed...)
	}
	x.feeds[userID] = feed

	out := make([]domain.Trade, len(feed))
	copy(out, feed)
	return out, nil
}

// seed genera trades con edades repartidas entre las cuatro categorías.
func (x *Exchange) seed(userID string) []domain.Trade {
	now := x.now()
	trades := make([]domain.Trade, 0, x.opts.SeedTrades)
	for i := 0; i < x.opts.SeedTrades; i++ {
		var age time.Duration
		switch {
		case i < 3:
			age = time.Duration(1+x.rnd.IntN(4)) * time.Minute
		case i < 7:
			age = time.Duration(10+x.rnd.IntN(41)) * time.Minute
		case i < 12:
			age = time.Duration(2+x.rnd.IntN(9)) * time.Hour
		default:
			age = time.Duration(15+x.rnd.IntN(58)) * time.Hour
		}
		trades = append(trades, domain.Trade{
			ID:        fmt.Sprintf("trade_%03d", i),
			Ticker:    fmt.Sprintf("MARKET-%03d", i),
			Title:     seedMarkets[x.rnd.IntN(len(seedMarkets))],
			Side:      x.side(),
			Action:    domain.ActionBuy,
			Price:     30 + x.rnd.IntN(56),
			Count:     1 + x.rnd.IntN(100),
			CreatedAt: now.Add(-age),
			UserID:    userID,
			IsTaker:   x.rnd.IntN(2) == 0,
		})
	}
	sortNewestFirst(trades)
	return trades
}

func (x *Exchange) liveTrade(userID string) domain.Trade {
	x.seq++
	now := x.now()
	return domain.Trade{
		ID:        fmt.Sprintf("new_trade_%d_%d", x.seq, now.Unix()),
		Ticker:    fmt.Sprintf("NEW-%d", 100+x.rnd.IntN(900)),
		Title:     liveMarkets[x.rnd.IntN(len(liveMarkets))],
		Side:      x.side(),
		Action:    domain.ActionBuy,
		Price:     40 + x.rnd.IntN(41),
		Count:     1 + x.rnd.IntN(50),
		CreatedAt: now,
		UserID:    userID,
		IsTaker:   true,
	}
}

func (x *Exchange) side() domain.Side {
	if x.rnd.IntN(2) == 0 {
		return domain.SideYes
	}
	return domain.SideNo
}

// PlaceOrder llena la orden completa y descuenta el coste del saldo.
// Repetir un client order id devuelve la misma orden sin volver a cobrar.
func (x *Exchange) PlaceOrder(_ context.Context, spec domain.OrderSpec) (domain.OrderResult, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if spec.Count <= 0 || spec.Price < 1 || spec.Price > 99 {
		return domain.OrderResult{}, fmt.Errorf("demo.PlaceOrder: invalid order %d@%d: %w", spec.Count, spec.Price, domain.ErrRejected)
	}
	for _, o := range x.orders {
		if spec.ClientOrderID != "" && o.ClientOrderID == spec.ClientOrderID {
			return filled("demo-"+o.ClientOrderID, o.Count), nil
		}
	}

	cost := int64(spec.Count * spec.Price)
	if cost > x.balance {
		return domain.OrderResult{}, fmt.Errorf("demo.PlaceOrder: insufficient balance: %w", domain.ErrRejected)
	}
	x.balance -= cost
	if spec.ClientOrderID == "" {
		spec.ClientOrderID = uuid.NewString()
	}
	x.orders = append(x.orders, spec)
	return filled("demo-"+spec.ClientOrderID, spec.Count), nil
}

func filled(orderID string, count int) domain.OrderResult {
	return domain.OrderResult{
		OrderID:        orderID,
		Status:         domain.OrderExecuted,
		FilledCount:    count,
		RequestedCount: count,
	}
}

// GetAccountBalance devuelve el saldo simulado.
func (x *Exchange) GetAccountBalance(context.Context) (domain.Balance, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return domain.Balance{Cents: x.balance, FetchedAt: x.now()}, nil
}

// Orders devuelve las órdenes aceptadas.
func (x *Exchange) Orders() []domain.OrderSpec {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]domain.OrderSpec(nil), x.orders...)
}

func sortNewestFirst(trades []domain.Trade) {
	slices.SortFunc(trades, func(a, b domain.Trade) int {
		if a.After(b) {
			return -1
		}
		if b.After(a) {
			return 1
		}
		return 0
	})
}
