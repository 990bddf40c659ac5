// Package discord is the chat surface of the bank. Commands are parsed from
// "!sb" messages and dispatched to game.Service in-process.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"southbag/internal/game"
	"southbag/internal/money"
	"southbag/internal/ratelimit"

	"github.com/shopspring/decimal"
)

// Sender delivers bot output. Session implements it over the gateway.
type Sender interface {
	Send(channelID, content string) error
	DirectMessage(userID, content string) error
}

type Bot struct {
	svc      *game.Service
	out      Sender
	prefix   string
	channels map[string]bool
	log      *slog.Logger
}

// NewBot listens in channels, or everywhere when channels is empty.
func NewBot(svc *game.Service, out Sender, prefix string, channels []string, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix = strings.TrimSpace(prefix); prefix == "" {
		prefix = "!sb"
	}
	b := &Bot{svc: svc, out: out, prefix: prefix, channels: make(map[string]bool), log: logger}
	for _, ch := range channels {
		b.channels[ch] = true
	}
	return b
}

// notice is a DM owed to someone a command touched.
type notice struct {
	userID string
	text   string
}

// Handle answers one message. Messages outside the watched channels or
// without the prefix are ignored.
func (b *Bot) Handle(ctx context.Context, m Message) error {
	if m.AuthorID == "" {
		return nil
	}
	if len(b.channels) > 0 && !b.channels[m.ChannelID] {
		return nil
	}
	cmd, ok := parse(b.prefix, m.Content)
	if !ok {
		return nil
	}

	reply, dm, err := b.dispatch(ctx, m, cmd)
	if err != nil {
		reply = b.describeError(err, cmd)
	}
	if err := b.out.Send(m.ChannelID, reply); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	if dm != nil {
		b.notify(ctx, *dm)
	}
	return nil
}

// notify DMs the user only if they opted in. Failures are logged, never
// surfaced to the channel.
func (b *Bot) notify(ctx context.Context, n notice) {
	subs, err := b.svc.NotificationSubscribers(ctx, []string{n.userID})
	if err != nil {
		b.log.Warn("notification lookup failed", "user", n.userID, "err", err)
		return
	}
	if len(subs) == 0 {
		return
	}
	if err := b.out.DirectMessage(n.userID, n.text); err != nil {
		b.log.Warn("notification dm failed", "user", n.userID, "err", err)
	}
}

var errUsage = errors.New("usage")

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := money.Parse(s)
	if err != nil {
		return d, game.ErrInvalidAmount
	}
	return d, nil
}

// amt keeps the third decimal when a balance carries one.
func amt(d decimal.Decimal) string {
	if !d.Equal(money.Cents(d)) {
		return money.FormatMilli(d)
	}
	return money.Format(d)
}

func (b *Bot) dispatch(ctx context.Context, m Message, c command) (string, *notice, error) {
	me := m.AuthorID
	switch c.name {
	case "help":
		return helpText, nil, nil

	case "open":
		a, err := b.svc.Open(ctx, me, m.AuthorName)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("Welcome to Southbag. Account `%s`, balance %s (opening fee included).", a.AccountNumber, amt(a.Balance)), nil, nil

	case "balance", "bal":
		v, err := b.svc.BalanceInquiry(ctx, me)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("Account `%s` (%s): %s. That inquiry cost you %s.", v.AccountNumber, v.Status, amt(v.Balance), money.Format(v.Fee)), nil, nil

	case "history":
		n := 10
		if raw := c.arg(0); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				return "", nil, errUsage
			}
			n = parsed
		}
		rows, err := b.svc.History(ctx, me, n)
		if err != nil {
			return "", nil, err
		}
		if len(rows) == 0 {
			return "No transactions. Suspicious.", nil, nil
		}
		var sb strings.Builder
		sb.WriteString("```\n")
		for _, r := range rows {
			fmt.Fprintf(&sb, "%s %10s  %s\n", r.CreatedAt.Format("01-02 15:04"), amt(r.Amount), r.Description)
		}
		sb.WriteString("```")
		return sb.String(), nil, nil

	case "clear":
		n, err := b.svc.ClearHistory(ctx, me)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("Shredded %d records. Your balance remembers everything.", n), nil, nil

	case "notify":
		on, err := b.svc.ToggleNotifications(ctx, me)
		if err != nil {
			return "", nil, err
		}
		if on {
			return "DM notifications on. We will tell you when money leaves.", nil, nil
		}
		return "DM notifications off. Ignorance is bliss.", nil, nil

	case "transfer":
		amount, err := parseAmount(c.arg(0))
		if err != nil {
			return "", nil, err
		}
		recipient := c.rest(1)
		if recipient == "" {
			return "", nil, errUsage
		}
		res, err := b.svc.Transfer(ctx, me, amount, recipient)
		if err != nil {
			return "", nil, err
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "Sent %s to %s.", money.Format(res.Amount), res.Recipient)
		for _, f := range res.Fees {
			fmt.Fprintf(&sb, "\n+ %s: %s", f.Description, money.Format(f.Amount))
		}
		fmt.Fprintf(&sb, "\nTotal debited %s. Balance %s.", money.Format(res.Debited), amt(res.Balance))
		return sb.String(), nil, nil

	case "deposit":
		amount, err := parseAmount(c.arg(0))
		if err != nil {
			return "", nil, err
		}
		res, err := b.svc.Deposit(ctx, me, amount)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("You deposited %s. We credited %s (market conditions) and took a %s convenience fee. Balance %s.",
			money.Format(res.Requested), money.Format(res.Credited), money.Format(res.Fee), amt(res.Balance)), nil, nil

	case "upgrade":
		res, err := b.svc.Upgrade(ctx, me)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("Upgraded from %s to **%s** for %s. Benefits: none. Balance %s.", res.PreviousTier, res.Tier, money.Format(res.Cost), amt(res.Balance)), nil, nil

	case "gift":
		to, ok := target(m, c)
		if !ok {
			return "", nil, errUsage
		}
		amount, err := parseAmount(amountArg(c))
		if err != nil {
			return "", nil, err
		}
		res, err := b.svc.Gift(ctx, me, to, amount)
		if err != nil {
			return "", nil, err
		}
		reply := fmt.Sprintf("Gifted %s to <@%s>. Generosity tax %s. Balance %s.", money.Format(res.Amount), to, money.Format(res.Tax), amt(res.Balance))
		dm := &notice{userID: to, text: fmt.Sprintf("<@%s> gifted you %s. Balance %s.", me, money.Format(res.Amount), amt(res.RecipientBalance))}
		return reply, dm, nil

	case "rob":
		victim, ok := target(m, c)
		if !ok {
			return "", nil, errUsage
		}
		res, err := b.svc.Rob(ctx, me, victim)
		if err != nil {
			return "", nil, err
		}
		if res.Caught {
			return fmt.Sprintf("Caught! Fined %s and flagged as suspicious. Balance %s.", money.Format(res.Fine), amt(res.Balance)), nil, nil
		}
		reply := fmt.Sprintf("You lifted %s from <@%s>. The fence took %s. Balance %s.", money.Format(res.Stolen), victim, money.Format(res.Fence), amt(res.Balance))
		dm := &notice{userID: victim, text: fmt.Sprintf("%s mysteriously disappeared from your account. Balance %s.", money.Format(res.Stolen), amt(res.VictimBalance))}
		return reply, dm, nil

	case "coinflip", "flip":
		bet, err := parseAmount(c.arg(0))
		if err != nil {
			return "", nil, err
		}
		res, err := b.svc.Coinflip(ctx, me, bet, c.arg(1))
		if err != nil {
			return "", nil, err
		}
		return gambleReply(res), nil, nil

	case "slots":
		bet, err := parseAmount(c.arg(0))
		if err != nil {
			return "", nil, err
		}
		res, err := b.svc.Slots(ctx, me, bet)
		if err != nil {
			return "", nil, err
		}
		return gambleReply(res), nil, nil

	case "cards":
		bet, err := parseAmount(c.arg(0))
		if err != nil {
			return "", nil, err
		}
		res, err := b.svc.CardGame(ctx, me, bet)
		if err != nil {
			return "", nil, err
		}
		return gambleReply(res), nil, nil

	case "beg":
		res, err := b.svc.Beg(ctx, me)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%s Balance %s.", res.Message, amt(res.Balance)), nil, nil

	case "daily":
		res, err := b.svc.Daily(ctx, me)
		if err != nil {
			return "", nil, err
		}
		bonus := ""
		if res.Bonus {
			bonus = " BONUS DAY!"
		}
		return fmt.Sprintf("Daily reward %s%s Processing fee %s. Balance %s.", money.Format(res.Reward), bonus, money.FormatMilli(res.Fee), amt(res.Balance)), nil, nil

	case "fee":
		res, err := b.svc.MysteryFee(ctx, me)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("Charged %s for: _%s_. Balance %s. You literally asked for this.", money.Format(res.Amount), res.Description, amt(res.Balance)), nil, nil

	case "home", "me":
		return b.home(ctx, me)

	case "loan":
		return b.loan(ctx, me, c)
	case "crypto":
		return b.crypto(ctx, me, c)
	case "portfolio":
		p, err := b.svc.Portfolio(ctx, me)
		if err != nil {
			return "", nil, err
		}
		return portfolioReply(p), nil, nil
	case "insurance":
		return b.insurance(ctx, me, c)
	case "claim":
		res, err := b.svc.ClaimInsurance(ctx, me, c.rest(0))
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("Claim denied: %s. Processing fee %s. Balance %s.", res.Denial, money.Format(res.Fee), amt(res.Balance)), nil, nil
	case "job":
		return b.job(ctx, me, c)
	case "work":
		res, err := b.svc.Work(ctx, me)
		if err != nil {
			return "", nil, err
		}
		if res.Event == game.WorkIncident {
			return fmt.Sprintf("%s. Fined %s. Balance %s.", game.WorkEventLabel(res.Event), money.Format(res.Fine), amt(res.Balance)), nil, nil
		}
		return fmt.Sprintf("%s as %s: earned %s, taxed %s. Balance %s.", game.WorkEventLabel(res.Event), res.Title, money.Format(res.Gross), money.Format(res.Tax), amt(res.Balance)), nil, nil
	case "heist":
		return b.heist(ctx, m, c)
	}
	return fmt.Sprintf("Unknown command `%s`. Try `%s help`.", c.name, b.prefix), nil, nil
}

func gambleReply(r game.GambleResult) string {
	var head string
	switch r.Game {
	case "coinflip":
		head = fmt.Sprintf("The coin landed on %s.", r.Result)
	case "slots":
		head = fmt.Sprintf("[ %s ]", strings.Join(r.Reels, " | "))
	default:
		head = "You drew: " + r.Outcome + "."
	}
	verdict := "Lost"
	switch {
	case r.Net.IsPositive():
		verdict = "Won"
	case r.Multiplier.IsNegative():
		verdict = "Cursed"
	}
	return fmt.Sprintf("%s %s %s. Balance %s.", head, verdict, money.Format(r.Net), amt(r.Balance))
}

// home summarizes everything an owner has with the bank. Reading it is free.
func (b *Bot) home(ctx context.Context, me string) (string, *notice, error) {
	a, err := b.svc.Account(ctx, me)
	if err != nil {
		return "", nil, err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "**%s** `%s` (%s, %s): %s\n", a.Name, a.AccountNumber, game.TierName(a.Tier), a.Status, amt(a.Balance))

	job, err := b.svc.Job(ctx, me)
	switch {
	case errors.Is(err, game.ErrNoJob):
		sb.WriteString("Job: unemployed\n")
	case err != nil:
		return "", nil, err
	default:
		fmt.Fprintf(&sb, "Job: %s, %s per shift\n", job.Title, money.Format(job.Salary))
	}

	loan, err := b.svc.LoanStatus(ctx, me)
	switch {
	case errors.Is(err, game.ErrNoLoan):
		sb.WriteString("Loan: none\n")
	case err != nil:
		return "", nil, err
	default:
		fmt.Fprintf(&sb, "Loan: owe %s on %s\n", money.Format(loan.Owed), money.Format(loan.Loan.Principal))
	}

	p, err := b.svc.Portfolio(ctx, me)
	if err != nil {
		return "", nil, err
	}
	fmt.Fprintf(&sb, "Crypto: %d positions worth %s\n", len(p.Positions), money.Format(p.Total))

	policy, err := b.svc.Insurance(ctx, me)
	switch {
	case errors.Is(err, game.ErrNoPolicy):
		sb.WriteString("Insurance: uninsured\n")
	case err != nil:
		return "", nil, err
	case policy.Active:
		fmt.Fprintf(&sb, "Insurance: %s until %s\n", policy.PlanName, policy.Policy.CoveredUntil.Format("Jan 2 15:04 MST"))
	default:
		fmt.Fprintf(&sb, "Insurance: %s, expired\n", policy.PlanName)
	}

	rows, err := b.svc.History(ctx, me, 3)
	if err != nil {
		return "", nil, err
	}
	sb.WriteString("Latest:")
	if len(rows) == 0 {
		sb.WriteString(" nothing")
	}
	for _, r := range rows {
		fmt.Fprintf(&sb, "\n  %s %s", amt(r.Amount), r.Description)
	}
	return sb.String(), nil, nil
}

func portfolioReply(p game.Portfolio) string {
	if len(p.Positions) == 0 {
		return "No crypto. Financially, that might be your best decision yet."
	}
	var sb strings.Builder
	for _, pos := range p.Positions {
		fmt.Fprintf(&sb, "%s %s @ %s = %s (%s)\n", pos.Quantity.String(), pos.Coin, money.FormatMilli(pos.Price), money.Format(pos.Value), money.Format(pos.GainLoss))
	}
	fmt.Fprintf(&sb, "Total %s", money.Format(p.Total))
	return sb.String()
}

func (b *Bot) loan(ctx context.Context, me string, c command) (string, *notice, error) {
	switch c.arg(0) {
	case "", "status":
		v, err := b.svc.LoanStatus(ctx, me)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("Loan %s at %s%%/h. You owe %s (interest %s).", money.Format(v.Loan.Principal), v.Loan.Rate.Shift(2).StringFixed(0), money.Format(v.Owed), money.Format(v.Interest)), nil, nil
	case "repay":
		res, err := b.svc.RepayLoan(ctx, me)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("Repaid %s. Balance %s.", money.Format(res.Owed), amt(res.Balance)), nil, nil
	case "default":
		res, err := b.svc.DefaultLoan(ctx, me)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("You walked away from %s. Your account is now frozen.", money.Format(res.Owed)), nil, nil
	}
	amount, err := parseAmount(c.arg(0))
	if err != nil {
		return "", nil, err
	}
	res, err := b.svc.TakeLoan(ctx, me, amount)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("Approved! %s at %s%% per hour. Balance %s.", money.Format(res.Loan.Principal), res.Loan.Rate.Shift(2).StringFixed(0), amt(res.Balance)), nil, nil
}

func (b *Bot) crypto(ctx context.Context, me string, c command) (string, *notice, error) {
	switch c.arg(0) {
	case "", "prices":
		var sb strings.Builder
		for _, q := range b.svc.Prices() {
			fmt.Fprintf(&sb, "%-5s %-10s %s (%s%%)\n", q.Symbol, q.Name, money.FormatMilli(q.Price), q.Change24h.String())
		}
		return "```\n" + sb.String() + "```", nil, nil
	case "buy":
		amount, err := parseAmount(c.arg(2))
		if err != nil {
			return "", nil, err
		}
		res, err := b.svc.BuyCrypto(ctx, me, c.arg(1), amount)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("Bought %s %s @ %s. Blockchain fee %s. Balance %s.", res.Quantity.String(), res.Coin, money.FormatMilli(res.Price), money.Format(res.Fee), amt(res.Balance)), nil, nil
	case "sell":
		res, err := b.svc.SellCrypto(ctx, me, c.arg(1))
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("Sold %s %s @ %s for %s. Capital gains tax %s. Balance %s.", res.Quantity.String(), res.Coin, money.FormatMilli(res.Price), money.Format(res.Gross), money.Format(res.Tax), amt(res.Balance)), nil, nil
	}
	return "", nil, errUsage
}

func (b *Bot) insurance(ctx context.Context, me string, c command) (string, *notice, error) {
	if c.arg(0) == "buy" {
		res, err := b.svc.BuyInsurance(ctx, me, c.arg(1))
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("Insured: %s until %s. Admin fee %s. Balance %s.", res.PlanName, res.Policy.CoveredUntil.Format("Jan 2 15:04 MST"), money.Format(res.AdminFee), amt(res.Balance)), nil, nil
	}
	v, err := b.svc.Insurance(ctx, me)
	if errors.Is(err, game.ErrNoPolicy) {
		var sb strings.Builder
		sb.WriteString("No policy. Plans:")
		for _, id := range game.PlanIDs() {
			p := game.Plans[id]
			fmt.Fprintf(&sb, "\n`%s` %s, %s", id, p.Name, money.Format(p.Premium))
		}
		return sb.String(), nil, nil
	}
	if err != nil {
		return "", nil, err
	}
	state := "expired"
	if v.Active {
		state = "active"
	}
	return fmt.Sprintf("%s, %s (covered until %s).", v.PlanName, state, v.Policy.CoveredUntil.Format("Jan 2 15:04 MST")), nil, nil
}

func (b *Bot) job(ctx context.Context, me string, c command) (string, *notice, error) {
	switch c.arg(0) {
	case "apply":
		res, err := b.svc.ApplyJob(ctx, me)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("Hired as **%s** at %s per shift. Uniform deposit %s.", res.Job.Title, money.Format(res.Job.Salary), money.Format(res.Fee)), nil, nil
	case "quit":
		res, err := b.svc.QuitJob(ctx, me)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("You quit as %s. Exit interview fee %s.", res.Job.Title, money.Format(res.Fee)), nil, nil
	}
	j, err := b.svc.Job(ctx, me)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("You work as %s for %s per shift.", j.Title, money.Format(j.Salary)), nil, nil
}

func (b *Bot) heist(ctx context.Context, m Message, c command) (string, *notice, error) {
	switch c.arg(0) {
	case "start":
		res, err := b.svc.StartHeist(ctx, m.ChannelID, m.AuthorID)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("Heist planning started (fee %s). Crew up with `%s heist join`.", money.Format(res.Fee), b.prefix), nil, nil
	case "join":
		res, err := b.svc.JoinHeist(ctx, m.ChannelID, m.AuthorID)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("You're in. Crew %d/%d. Equipment fee %s.", len(res.Heist.Participants), game.MaxHeistCrew, money.Format(res.Fee)), nil, nil
	case "go", "execute":
		out, err := b.svc.ExecuteHeist(ctx, m.ChannelID, m.AuthorID)
		if err != nil {
			return "", nil, err
		}
		if out.Success {
			return fmt.Sprintf("Heist succeeded! Vault %s, insurance deductible %s, %s each.", money.Format(out.Vault), money.Format(out.Deductible), money.Format(out.Share)), nil, nil
		}
		return "Heist failed. Everyone has been fined.", nil, nil
	}
	h, err := b.svc.ActiveHeist(ctx, m.ChannelID)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("Heist by <@%s> recruiting, crew %d/%d, success chance %s%%.", h.OrganizerID, len(h.Participants), game.MaxHeistCrew, game.HeistChance(len(h.Participants)).Shift(2).StringFixed(0)), nil, nil
}

func (b *Bot) describeError(err error, c command) string {
	if errors.Is(err, errUsage) {
		return fmt.Sprintf("That's not how `%s` works. Try `%s help`.", c.name, b.prefix)
	}
	var rej *game.Error
	if !errors.As(err, &rej) {
		b.log.Error("command failed", "command", c.name, "err", err)
		return "Southbag is experiencing technical difficulties. Your fees are still accruing."
	}
	switch rej.Code {
	case game.CodeNoAccount:
		return fmt.Sprintf("You don't have an account. Open one with `%s open` (fees apply).", b.prefix)
	case game.CodeFrozen:
		return "Your account is frozen. Southbag thanks you for your patience."
	case game.CodeInsufficient:
		return fmt.Sprintf("Insufficient funds. You have %s, that needs %s.", amt(rej.Balance), money.Format(rej.Needed))
	case game.CodeCooldown:
		return "Slow down. Try again in " + ratelimit.Humanize(rej.Remaining) + "."
	case game.CodeMinLoan:
		return "Southbag doesn't lend less than " + money.Format(rej.Needed) + "."
	case game.CodeMaxLoan:
		return "Southbag won't lend more than " + money.Format(rej.Needed) + "."
	case game.CodeInvalidAmount:
		return "That's not an amount of money."
	case game.CodeVictimBroke:
		return "They're broke. Even Southbag couldn't squeeze anything out."
	case game.CodeNoVictim, game.CodeNoRecipient:
		return "They don't bank with Southbag (lucky them)."
	case game.CodeSelfRob:
		return "You can't rob yourself. We already do that for you."
	case game.CodeSelfGift:
		return "Gifting yourself is just called a balance."
	}
	return "Request denied: " + rej.Error()
}
