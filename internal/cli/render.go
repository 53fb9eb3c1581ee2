package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"expensetracker/internal/core"
)

const barWidth = 24

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	upStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F44336"))
	downStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50"))
)

// RenderSummary prints the week summary as a small terminal report.
// Colours are dropped automatically when w is not a terminal.
func RenderSummary(w io.Writer, s core.WeekSummary) error {
	var b strings.Builder

	last := s.Window.End.AddDate(0, 0, -1)
	b.WriteString(titleStyle.Render(fmt.Sprintf("Week %s to %s",
		s.Window.Start.Format("Mon 02 Jan"), last.Format("Mon 02 Jan 2006"))))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "%-12s %10s\n", "Today", s.Today)
	fmt.Fprintf(&b, "%-12s %10s\n", "Yesterday", s.Yesterday)
	fmt.Fprintf(&b, "%-12s %10s  %s\n", "This week", s.Total, renderChange(s.PercentChange))
	fmt.Fprintf(&b, "%-12s %10s\n", "Last week", s.PreviousTotal)

	b.WriteString("\n" + headerStyle.Render("Daily") + "\n")
	peak := core.Zero
	for _, d := range s.Daily {
		if d.Total.GreaterThan(peak) {
			peak = d.Total
		}
	}
	for _, d := range s.Daily {
		fmt.Fprintf(&b, "%-4s %10s  %s\n", d.Label, d.Total, bar(d.Total, peak))
	}

	b.WriteString("\n" + headerStyle.Render("By category") + "\n")
	if len(s.ByCategory) == 0 {
		b.WriteString(mutedStyle.Render("No spending this week") + "\n")
	}
	for _, c := range sortedCategories(s.ByCategory) {
		display := c.Display()
		name := lipgloss.NewStyle().Foreground(lipgloss.Color(display.Color)).
			Render(fmt.Sprintf("%-16s", display.Name))
		fmt.Fprintf(&b, "%s %10s\n", name, s.ByCategory[c])
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// RenderTransactions prints one line per transaction, newest first.
func RenderTransactions(w io.Writer, txs []core.Transaction) error {
	var b strings.Builder
	if len(txs) == 0 {
		b.WriteString(mutedStyle.Render("No transactions") + "\n")
	}
	for _, tx := range txs {
		display := tx.Category.Display()
		category := lipgloss.NewStyle().Foreground(lipgloss.Color(display.Color)).
			Render(fmt.Sprintf("%-16s", display.Name))
		fmt.Fprintf(&b, "%s  %s %10s %s  %s  %s\n",
			tx.Timestamp.Format("2006-01-02 15:04"),
			category,
			tx.Amount,
			tx.Currency,
			tx.Description,
			mutedStyle.Render(tx.ID))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// renderChange shows spending going up in red and down in green.
func renderChange(pct decimal.Decimal) string {
	text := pct.StringFixed(2) + "%"
	switch {
	case pct.IsPositive():
		return upStyle.Render("+" + text)
	case pct.IsNegative():
		return downStyle.Render(text)
	default:
		return mutedStyle.Render(text)
	}
}

func bar(v, peak core.Money) string {
	if peak.IsZero() || v.IsZero() {
		return ""
	}
	n := int(v.Decimal().Div(peak.Decimal()).Mul(decimal.NewFromInt(barWidth)).Round(0).IntPart())
	return strings.Repeat("#", max(n, 1))
}

// sortedCategories orders by amount, largest first, then by name.
func sortedCategories(totals core.CategoryTotals) []core.Category {
	out := make([]core.Category, 0, len(totals))
	for c := range totals {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := totals[out[i]], totals[out[j]]
		if !a.Equal(b) {
			return a.GreaterThan(b)
		}
		return out[i].String() < out[j].String()
	})
	return out
}
