package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"southbag/internal/game"
	"southbag/internal/ledger"
	"southbag/internal/money"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"golang.org/x/term"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)

	cardStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("36")).Padding(0, 2)
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(14)
	fineStyle  = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("241"))
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptOptional(label string) (string, error) {
	fmt.Printf("%s: ", label)
	text, err := stdinReader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// promptSecret reads without echo on a terminal and falls back to a plain
// line read when stdin is piped.
func promptSecret(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return promptRequired(label)
	}
	for {
		fmt.Printf("%s: ", label)
		raw, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		if text := strings.TrimSpace(string(raw)); text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func colorizeAmount(v decimal.Decimal) string {
	text := money.FormatMilli(v)
	switch v.Sign() {
	case 1:
		return success.Sprint("+" + text)
	case -1:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func statusColor(s ledger.AccountStatus) *color.Color {
	switch s {
	case ledger.StatusFrozen:
		return danger
	case ledger.StatusSuspicious:
		return warn
	default:
		return success
	}
}

func cardRow(label, value string) string {
	return labelStyle.Render(label) + value
}

func renderAccount(a ledger.Account) {
	rows := []string{
		titleStyle.Render("SOUTHBAG BANKING"),
		"",
		cardRow("Holder", a.Name),
		cardRow("Owner ID", a.OwnerID),
		cardRow("Account", a.AccountNumber),
		cardRow("Tier", game.TierName(a.Tier)),
		cardRow("Status", statusColor(a.Status).Sprint(string(a.Status))),
		cardRow("Balance", colorizeAmount(a.Balance)),
		cardRow("Opened", a.CreatedAt.Local().Format("2006-01-02 15:04")),
		"",
		fineStyle.Render("Viewing this card was free. The API charges $0.01 to ask."),
	}
	fmt.Println(cardStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))
}

func renderStatement(owner string, rows []ledger.Transaction) {
	if len(rows) == 0 {
		printInfo("No transactions. Suspicious.")
		return
	}
	lines := []string{titleStyle.Render("Statement for " + owner), ""}
	for _, tx := range rows {
		lines = append(lines, fmt.Sprintf("%s  %-9s %12s  %-36s %s",
			tx.CreatedAt.Local().Format("01-02 15:04"),
			tx.Kind,
			colorizeAmount(tx.Amount),
			truncate(tx.Description, 36),
			neutral.Sprint(money.FormatMilli(tx.BalanceAfter)),
		))
	}
	fmt.Println(cardStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))
}

func renderPrices(coins []game.CoinQuote) {
	accent.Println("\n== SOUTHBAG CRYPTO DESK ==")
	for _, c := range coins {
		change := c.Change24h.StringFixed(2) + "%"
		if c.Change24h.IsNegative() {
			change = danger.Sprint(change)
		} else {
			change = success.Sprint("+" + change)
		}
		fmt.Printf("  %-6s %-22s %14s  %s\n", c.Symbol, truncate(c.Name, 22), money.FormatMilli(c.Price), change)
	}
	fmt.Println(fineStyle.Render("  Past performance is a fee."))
}

func renderLoan(v game.LoanView) {
	rows := []string{
		titleStyle.Render("LOAN"),
		"",
		cardRow("Principal", money.Format(v.Loan.Principal)),
		cardRow("Rate", v.Loan.Rate.Mul(decimal.NewFromInt(100)).StringFixed(0)+"% per hour"),
		cardRow("Taken", v.Loan.TakenAt.Local().Format("2006-01-02 15:04")),
		cardRow("Elapsed", v.Elapsed.Round(time.Second).String()),
		cardRow("Interest", danger.Sprint(money.Format(v.Interest))),
		cardRow("Owed", warn.Sprint(money.Format(v.Owed))),
	}
	fmt.Println(cardStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len([]rune(s)) <= n {
		return s
	}
	r := []rune(s)
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
