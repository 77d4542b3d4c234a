package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alejandrodnm/copybot/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console implementa ports.Notifier.
type Console struct {
	out   io.Writer
	table bool
	now   func() time.Time
}

// NewConsole crea un notificador que escribe a stdout. table=false imprime
// una línea por tick.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table, now: time.Now}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table, now: time.Now}
}

// NotifyTick imprime las entradas procesadas en un tick.
func (c *Console) NotifyTick(_ context.Context, entries []domain.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if c.table {
		fmt.Fprintf(c.out, "\n[%s] %s\n", c.now().Format("15:04:05"), tickSummary(entries))
		c.printEntries(entries)
		return nil
	}
	c.printCompact(entries)
	return nil
}

// printCompact imprime lo esencial en una línea.
func (c *Console) printCompact(entries []domain.LedgerEntry) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", c.now().Format("15:04:05"), tickSummary(entries))

	for i, e := range entries {
		if i >= 4 {
			fmt.Fprintf(&sb, " | +%d more", len(entries)-i)
			break
		}
		fmt.Fprintf(&sb, " | %s %s %s %d@%d¢",
			statusIcon(e.Status), compactName(e.Trade.Ticker, 18), e.Trade.Side,
			orderCount(e), e.Trade.Price)
	}
	fmt.Fprintln(c.out, sb.String())
}

// printEntries imprime la tabla de entradas del ledger.
func (c *Console) printEntries(entries []domain.LedgerEntry) {
	now := c.now()
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Status", "Market", "Side", "Src qty", "Copy qty", "Price", "Age", "Order / reason")

	for i, e := range entries {
		detail := e.OrderID
		if e.Status != domain.StatusCopied {
			detail = e.Error
		}
		table.Append(
			fmt.Sprintf("%d", i+1),
			fmt.Sprintf("%s %s", statusIcon(e.Status), e.Status),
			marketLabel(e.Trade),
			fmt.Sprintf("%s %s", e.Trade.Action, e.Trade.Side),
			fmt.Sprintf("%d", e.Trade.Count),
			fmt.Sprintf("%d", orderCount(e)),
			fmt.Sprintf("%d¢", e.Trade.Price),
			string(domain.AgeOf(e.Trade.CreatedAt, now)),
			truncate(detail, 40),
		)
	}
	table.Render()
}

// LedgerReportInput agrupa los datos del reporte del ledger.
type LedgerReportInput struct {
	Stats   domain.LedgerStats
	Entries []domain.LedgerEntry // más nuevas primero
	Cursor  domain.Cursor
	Balance *domain.Balance
}

// PrintLedgerReport imprime el estado persistido del mirror.
func (c *Console) PrintLedgerReport(in LedgerReportInput) {
	fmt.Fprintf(c.out, "\n╔══════════════════════════════════════════════════════════════╗\n")
	fmt.Fprintf(c.out, "║                     MIRROR LEDGER REPORT                     ║\n")
	fmt.Fprintf(c.out, "╚══════════════════════════════════════════════════════════════╝\n\n")

	st := in.Stats
	fmt.Fprintf(c.out, "  Entries:  %d (epoch %d)\n", st.Total, st.Epoch)
	fmt.Fprintf(c.out, "  Copied:   %d | Failed: %d | Skipped: %d | Pending: %d\n",
		st.Copied, st.Failed, st.Skipped, st.Pending)
	if in.Cursor.IsZero() {
		fmt.Fprintf(c.out, "  Cursor:   (none) user=%q\n", in.Cursor.UserID)
	} else {
		fmt.Fprintf(c.out, "  Cursor:   %s @ %s user=%q\n",
			in.Cursor.TradeID, in.Cursor.TradeTime.Format(time.RFC3339), in.Cursor.UserID)
	}
	if in.Balance != nil {
		fmt.Fprintf(c.out, "  Balance:  $%.2f\n", in.Balance.Dollars())
	}

	fmt.Fprintf(c.out, "\n── COPIED CONTRACTS BY MARKET ──\n")
	byMarket := copiedByMarket(in.Entries)
	if len(byMarket) == 0 {
		fmt.Fprintln(c.out, "  (none)")
	} else {
		tbl := tablewriter.NewWriter(c.out)
		tbl.Header("Market", "Orders", "Filled")
		for _, m := range byMarket {
			tbl.Append(m.ticker, fmt.Sprintf("%d", m.orders), fmt.Sprintf("%d", m.filled))
		}
		tbl.Render()
	}

	fmt.Fprintf(c.out, "\n── RECENT ENTRIES (%d) ──\n", len(in.Entries))
	if len(in.Entries) == 0 {
		fmt.Fprintln(c.out, "  (none)")
	} else {
		c.printEntries(in.Entries)
	}

	if st.Pending > 0 {
		fmt.Fprintf(c.out, "\n  WARNING: %d pending entries; an order may have been sent without a recorded result.\n", st.Pending)
	}
	fmt.Fprintln(c.out)
}

// --- helpers ---

type marketTotal struct {
	ticker string
	orders int
	filled int
}

// copiedByMarket agrega las entradas copied por ticker, en orden de aparición.
func copiedByMarket(entries []domain.LedgerEntry) []marketTotal {
	idx := make(map[string]int)
	var out []marketTotal
	for _, e := range entries {
		if e.Status != domain.StatusCopied {
			continue
		}
		i, ok := idx[e.Trade.Ticker]
		if !ok {
			i = len(out)
			idx[e.Trade.Ticker] = i
			out = append(out, marketTotal{ticker: e.Trade.Ticker})
		}
		out[i].orders++
		out[i].filled += e.FilledCount
	}
	return out
}

func tickSummary(entries []domain.LedgerEntry) string {
	var copied, failed, skipped int
	for _, e := range entries {
		switch e.Status {
		case domain.StatusCopied:
			copied++
		case domain.StatusFailed:
			failed++
		case domain.StatusSkipped:
			skipped++
		}
	}
	return fmt.Sprintf("%d new trades → copied:%d failed:%d skipped:%d", len(entries), copied, failed, skipped)
}

func orderCount(e domain.LedgerEntry) int {
	if e.Decision.ShouldCopy() {
		return e.Decision.Order.Count
	}
	return 0
}

func statusIcon(s domain.LedgerStatus) string {
	switch s {
	case domain.StatusCopied:
		return "✔"
	case domain.StatusFailed:
		return "✘"
	case domain.StatusPending:
		return "…"
	default:
		return "·"
	}
}

func marketLabel(t domain.Trade) string {
	if t.Title == "" {
		return t.Ticker
	}
	return fmt.Sprintf("%s (%s)", truncate(t.Title, 40), t.Ticker)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func compactName(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := s[:maxLen]
	if idx := strings.LastIndex(cut, "-"); idx > maxLen/2 {
		cut = cut[:idx]
	}
	return cut + "…"
}
