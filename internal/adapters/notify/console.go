package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Demonss1309/Polysport/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console implementa ports.Notifier.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// Notify imprime el resumen del ciclo en el modo configurado.
func (c *Console) Notify(_ context.Context, report domain.CycleReport) error {
	c.printCompact(report)
	if c.table && len(report.Tracked) > 0 {
		c.printTable(report.Tracked)
	}
	return nil
}

// printCompact imprime lo esencial del ciclo en una línea.
func (c *Console) printCompact(r domain.CycleReport) {
	now := r.StartedAt.Format("15:04:05")

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] bal:$%.2f | scan:%d adm:%d | entries:+%d recreated:%d fills:%d tp:+%d | live:%d purged:%d | %s",
		now, r.Balance,
		r.MarketsScanned, r.Admitted,
		r.EntriesPlaced, r.Recreated, r.Fills, r.TakeProfits,
		len(r.Tracked), r.Purged,
		r.Duration.Round(time.Millisecond),
	)

	for i, warn := range r.Warnings {
		if i >= 3 {
			fmt.Fprintf(&sb, "\n  !! ... y %d avisos más", len(r.Warnings)-i)
			break
		}
		fmt.Fprintf(&sb, "\n  !! %s", warn)
	}

	fmt.Fprintln(c.out, sb.String())
}

// printTable imprime la tabla de órdenes vivas.
func (c *Console) printTable(records []domain.OrderRecord) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Market", "Role", "Side", "Price", "Size", "Status", "Recr", "Venue ID")

	for _, rec := range records {
		table.Append(
			truncate(rec.MarketID, 32),
			string(rec.Role),
			rec.Side,
			fmt.Sprintf("$%.2f", rec.LimitPrice),
			fmt.Sprintf("%.2f", rec.Size),
			string(rec.Status),
			fmt.Sprintf("%d", rec.RecreateCount),
			truncate(rec.VenueOrderID, 14),
		)
	}

	table.Render()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
