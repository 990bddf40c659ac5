package game

import (
	"context"
	"slices"
	"strings"
	"testing"
	"time"

	"southbag/internal/ledger"
	"southbag/internal/money"
)

func lastRow(t *testing.T, h *harness, owner string) ledger.Transaction {
	t.Helper()
	rows := h.rows(t, owner)
	if len(rows) == 0 {
		t.Fatalf("%s has no rows", owner)
	}
	return rows[len(rows)-1]
}

func TestCoinflip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fund(t, "u", "5.00")

	h.rng.push(0.1)
	res, err := h.svc.Coinflip(ctx, "u", d("1"), "heads")
	if err != nil {
		t.Fatalf("flip: %v", err)
	}
	if !res.Won || res.Result != Heads || !res.Net.Equal(d("0.80")) {
		t.Fatalf("result=%+v", res)
	}
	expectBalance(t, res.Balance, "5.80")
	if row := lastRow(t, h, "u"); row.Kind != ledger.KindDeposit || row.Description != "Coinflip: Won (heads)" {
		t.Fatalf("row=%+v", row)
	}

	h.rng.push(0.9)
	res, err = h.svc.Coinflip(ctx, "u", d("1"), "h")
	if err != nil {
		t.Fatalf("flip: %v", err)
	}
	if res.Won || !res.Net.Equal(d("-1.00")) {
		t.Fatalf("result=%+v", res)
	}
	expectBalance(t, res.Balance, "4.80")

	_, err = h.svc.Coinflip(ctx, "u", d("1"), "edge")
	expectCode(t, err, CodeInvalidCall)
	_, err = h.svc.Coinflip(ctx, "u", d("100"), "tails")
	expectCode(t, err, CodeInsufficient)
	_, err = h.svc.Coinflip(ctx, "u", d("0"), "tails")
	expectCode(t, err, CodeInvalidAmount)
}

func TestSlotsCurseCanOverdraw(t *testing.T) {
	h := newHarness(t)
	h.fund(t, "u", "3.00")
	skull := 4.0/7 + 0.01
	h.rng.push(skull, skull, skull)

	res, err := h.svc.Slots(context.Background(), "u", d("2"))
	if err != nil {
		t.Fatalf("slots: %v", err)
	}
	if res.Outcome != "Cursed" || !res.Net.Equal(d("-8.00")) {
		t.Fatalf("result=%+v", res)
	}
	expectBalance(t, res.Balance, "-5.00")
	row := lastRow(t, h, "u")
	if row.Kind != ledger.KindWithdrawal || row.Description != "Slots: 💀 💀 💀 - Cursed" {
		t.Fatalf("row=%+v", row)
	}
}

func TestCardGameJackpot(t *testing.T) {
	h := newHarness(t)
	h.fund(t, "u", "1.00")
	h.rng.push(0.005)

	res, err := h.svc.CardGame(context.Background(), "u", d("1"))
	if err != nil {
		t.Fatalf("cards: %v", err)
	}
	if !res.Payout.Equal(d("15.00")) || !res.Net.Equal(d("14.00")) {
		t.Fatalf("result=%+v", res)
	}
	expectBalance(t, res.Balance, "15.00")
}

func TestBegCooldown(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.open(t, "u")

	h.rng.push(0.9, 0)
	res, err := h.svc.Beg(ctx, "u")
	if err != nil {
		t.Fatalf("beg: %v", err)
	}
	if res.Outcome != BegReverse || !res.Amount.Equal(d("-0.01")) {
		t.Fatalf("result=%+v", res)
	}
	expectBalance(t, res.Balance, "1.215")

	h.clock.Advance(20 * time.Second)
	_, err = h.svc.Beg(ctx, "u")
	expectCode(t, err, CodeCooldown)
	if !strings.Contains(err.Error(), "40s") {
		t.Fatalf("message=%q", err.Error())
	}

	h.clock.Advance(41 * time.Second)
	h.rng.push(0.1, 0.3)
	res, err = h.svc.Beg(ctx, "u")
	if err != nil {
		t.Fatalf("beg after cooldown: %v", err)
	}
	if res.Outcome != BegDenied || !res.Amount.IsZero() {
		t.Fatalf("result=%+v", res)
	}
	expectBalance(t, h.balance(t, "u"), "1.215")

	// A denied beg still starts the cooldown.
	_, err = h.svc.Beg(ctx, "u")
	expectCode(t, err, CodeCooldown)
}

func TestDaily(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.open(t, "u")

	h.rng.push(0.5, 0)
	res, err := h.svc.Daily(ctx, "u")
	if err != nil {
		t.Fatalf("daily: %v", err)
	}
	if res.Bonus || !res.Reward.Equal(d("0.01")) || !res.Net.Equal(d("0.005")) {
		t.Fatalf("result=%+v", res)
	}
	expectBalance(t, res.Balance, "1.23")

	h.clock.Advance(23 * time.Hour)
	_, err = h.svc.Daily(ctx, "u")
	expectCode(t, err, CodeCooldown)

	h.clock.Advance(time.Hour)
	h.rng.push(0.01, 0.5)
	res, err = h.svc.Daily(ctx, "u")
	if err != nil {
		t.Fatalf("bonus daily: %v", err)
	}
	// 0.13 * 5
	if !res.Bonus || !res.Reward.Equal(d("0.65")) {
		t.Fatalf("result=%+v", res)
	}
}

func TestHeistSuccess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	crew := []string{"org", "m1", "m2", "m3", "m4"}
	for _, owner := range append(slices.Clone(crew), "late") {
		h.fund(t, owner, "1.00")
	}

	_, err := h.svc.JoinHeist(ctx, "chan", "m1")
	expectCode(t, err, CodeNoHeist)

	start, err := h.svc.StartHeist(ctx, "chan", "org")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	expectBalance(t, start.Balance, "0.95")
	_, err = h.svc.StartHeist(ctx, "chan", "m1")
	expectCode(t, err, CodeHeistActive)

	_, err = h.svc.ExecuteHeist(ctx, "chan", "org")
	expectCode(t, err, CodeNeedMoreParticipants)

	for _, m := range crew[1:] {
		res, err := h.svc.JoinHeist(ctx, "chan", m)
		if err != nil {
			t.Fatalf("join %s: %v", m, err)
		}
		expectBalance(t, res.Balance, "0.97")
	}
	_, err = h.svc.JoinHeist(ctx, "chan", "m1")
	expectCode(t, err, CodeAlreadyJoined)
	_, err = h.svc.JoinHeist(ctx, "chan", "late")
	expectCode(t, err, CodeHeistFull)
	_, err = h.svc.ExecuteHeist(ctx, "chan", "m1")
	expectCode(t, err, CodeNotStarter)

	h.rng.push(0, 0)
	out, err := h.svc.ExecuteHeist(ctx, "chan", "org")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !out.Success || !out.Chance.Equal(d("0.8")) {
		t.Fatalf("outcome=%+v", out)
	}
	// vault 0.50, deductible 0.13, 0.37 split five ways
	if !out.Vault.Equal(d("0.50")) || !out.Deductible.Equal(d("0.13")) || !out.Share.Equal(d("0.07")) {
		t.Fatalf("outcome=%+v", out)
	}
	if len(out.Shares) != len(crew) || out.Heist.Status != ledger.HeistCompleted {
		t.Fatalf("outcome=%+v", out)
	}
	expectBalance(t, h.balance(t, "org"), "1.02")
	expectBalance(t, h.balance(t, "m4"), "1.04")

	_, err = h.svc.ActiveHeist(ctx, "chan")
	expectCode(t, err, CodeNoHeist)
	if _, err := h.svc.StartHeist(ctx, "chan", "m1"); err != nil {
		t.Fatalf("restart after completion: %v", err)
	}
}

func TestHeistFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fund(t, "org", "1.00")
	h.fund(t, "m1", "1.00")

	if _, err := h.svc.StartHeist(ctx, "chan", "org"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := h.svc.JoinHeist(ctx, "chan", "m1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	h.rng.push(0.99)
	out, err := h.svc.ExecuteHeist(ctx, "chan", "org")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.Success || out.Heist.Status != ledger.HeistFailed {
		t.Fatalf("outcome=%+v", out)
	}
	// fines draw 0.5 each: 0.5*0.25+0.05
	expectBalance(t, h.balance(t, "org"), "0.77")
	expectBalance(t, h.balance(t, "m1"), "0.79")
}

func TestHeistFrozenOrganizer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fund(t, "org", "1.00")
	if err := h.svc.Freeze(ctx, "org"); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	_, err := h.svc.StartHeist(ctx, "chan", "org")
	expectCode(t, err, CodeFrozen)
}

func TestLoanRepay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fund(t, "u", "1.00")

	h.rng.push(0.143)
	res, err := h.svc.TakeLoan(ctx, "u", d("5"))
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if !res.Loan.Rate.Equal(d("0.20")) {
		t.Fatalf("rate=%s", res.Loan.Rate)
	}
	expectBalance(t, res.Balance, "6.00")
	if row := lastRow(t, h, "u"); row.Description != "Loan disbursement (20% per hour interest, good luck)" {
		t.Fatalf("row=%q", row.Description)
	}
	_, err = h.svc.TakeLoan(ctx, "u", d("1"))
	expectCode(t, err, CodeExistingLoan)

	h.clock.Advance(time.Hour)
	view, err := h.svc.LoanStatus(ctx, "u")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !view.Owed.Equal(d("6.00")) || !view.Interest.Equal(d("1.00")) {
		t.Fatalf("view=%+v", view)
	}

	paid, err := h.svc.RepayLoan(ctx, "u")
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if paid.Loan.Status != ledger.LoanPaid || !paid.Loan.TotalOwed.Equal(d("6.00")) {
		t.Fatalf("loan=%+v", paid.Loan)
	}
	expectBalance(t, paid.Balance, "0.00")
	_, err = h.svc.LoanStatus(ctx, "u")
	expectCode(t, err, CodeNoLoan)
	_, err = h.svc.RepayLoan(ctx, "u")
	expectCode(t, err, CodeNoLoan)
}

func TestLoanLimits(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fund(t, "u", "1.00")

	_, err := h.svc.TakeLoan(ctx, "u", d("0.05"))
	expectCode(t, err, CodeMinLoan)
	_, err = h.svc.TakeLoan(ctx, "u", d("10.01"))
	expectCode(t, err, CodeMaxLoan)
	_, err = h.svc.TakeLoan(ctx, "ghost", d("1"))
	expectCode(t, err, CodeNoAccount)
}

func TestLoanRepayNeedsFunds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fund(t, "u", "0")
	if _, err := h.svc.TakeLoan(ctx, "u", d("5")); err != nil {
		t.Fatalf("take: %v", err)
	}
	h.clock.Advance(2 * time.Hour)
	_, err := h.svc.RepayLoan(ctx, "u")
	expectCode(t, err, CodeInsufficient)
}

func TestLoanDefaultFreezes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fund(t, "u", "1.00")
	if _, err := h.svc.TakeLoan(ctx, "u", d("2")); err != nil {
		t.Fatalf("take: %v", err)
	}

	res, err := h.svc.DefaultLoan(ctx, "u")
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if res.Loan.Status != ledger.LoanDefaulted || !res.Owed.Equal(d("2.00")) {
		t.Fatalf("result=%+v", res)
	}
	expectBalance(t, h.balance(t, "u"), "3.00")
	row := lastRow(t, h, "u")
	if row.Kind != ledger.KindFee || !row.Amount.Equal(d("-2.00")) || !row.BalanceAfter.Equal(d("3.00")) {
		t.Fatalf("row=%+v", row)
	}
	a, _ := h.svc.Account(ctx, "u")
	if a.Status != ledger.StatusFrozen {
		t.Fatalf("status=%s", a.Status)
	}
	_, err = h.svc.Coinflip(ctx, "u", d("1"), "heads")
	expectCode(t, err, CodeFrozen)
}

func TestCryptoRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fund(t, "u", "10.00")

	_, err := h.svc.BuyCrypto(ctx, "u", "DOGE", d("1"))
	expectCode(t, err, CodeUnknownCoin)
	_, err = h.svc.BuyCrypto(ctx, "u", "SBAG", d("100"))
	expectCode(t, err, CodeInsufficient)
	_, err = h.svc.SellCrypto(ctx, "u", "FEES")
	expectCode(t, err, CodeNoHoldings)

	buy, err := h.svc.BuyCrypto(ctx, "u", "sbag", d("2"))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if buy.Coin != "SBAG" || !buy.Fee.Equal(d("0.10")) {
		t.Fatalf("buy=%+v", buy)
	}
	if !buy.Quantity.Equal(d("2").DivRound(buy.Price, 5)) {
		t.Fatalf("quantity=%s price=%s", buy.Quantity, buy.Price)
	}
	expectBalance(t, buy.Balance, "7.90")

	pf, err := h.svc.Portfolio(ctx, "u")
	if err != nil {
		t.Fatalf("portfolio: %v", err)
	}
	if len(pf.Positions) != 1 || pf.Positions[0].Name != "SouthCoin" {
		t.Fatalf("portfolio=%+v", pf)
	}

	h.clock.Advance(3 * time.Minute)
	sell, err := h.svc.SellCrypto(ctx, "u", "SBAG")
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if !sell.Gross.Equal(money.Cents(buy.Quantity.Mul(sell.Price))) {
		t.Fatalf("sell=%+v", sell)
	}
	if !sell.Tax.Equal(money.Cents(sell.Gross.Mul(d("0.10")))) {
		t.Fatalf("tax=%s gross=%s", sell.Tax, sell.Gross)
	}
	expectBalance(t, sell.Balance, d("7.90").Add(sell.Net).String())

	pf, _ = h.svc.Portfolio(ctx, "u")
	if len(pf.Positions) != 0 || !pf.Total.IsZero() {
		t.Fatalf("portfolio after sell=%+v", pf)
	}
}

func TestPrices(t *testing.T) {
	h := newHarness(t)
	quotes := h.svc.Prices()
	if len(quotes) != 5 {
		t.Fatalf("quotes=%d", len(quotes))
	}
	for _, q := range quotes {
		if !q.Price.IsPositive() {
			t.Fatalf("%s price=%s", q.Symbol, q.Price)
		}
	}
}

func TestInsurance(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fund(t, "u", "2.00")

	_, err := h.svc.Insurance(ctx, "u")
	expectCode(t, err, CodeNoPolicy)
	_, err = h.svc.BuyInsurance(ctx, "u", "platinum")
	expectCode(t, err, CodeUnknownPlan)

	res, err := h.svc.BuyInsurance(ctx, "u", " Gold ")
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	expectBalance(t, res.Balance, "1.47")
	if !res.Policy.CoveredUntil.Equal(h.clock.Now().Add(24 * time.Hour)) {
		t.Fatalf("covered until=%s", res.Policy.CoveredUntil)
	}

	view, err := h.svc.Insurance(ctx, "u")
	if err != nil || !view.Active {
		t.Fatalf("view=%+v err=%v", view, err)
	}
	h.clock.Advance(25 * time.Hour)
	view, _ = h.svc.Insurance(ctx, "u")
	if view.Active {
		t.Fatalf("expired policy reported active")
	}

	claim, err := h.svc.ClaimInsurance(ctx, "u", "my house fell over")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !slices.Contains(denialReasons, claim.Denial) {
		t.Fatalf("denial=%q", claim.Denial)
	}
	expectBalance(t, claim.Balance, "1.45")

	h.fund(t, "poor", "0.10")
	_, err = h.svc.BuyInsurance(ctx, "poor", "basic")
	expectCode(t, err, CodeInsufficient)
}

func TestJobs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.fund(t, "u", "1.00")

	_, err := h.svc.Work(ctx, "u")
	expectCode(t, err, CodeNoJob)
	_, err = h.svc.ApplyJob(ctx, "ghost")
	expectCode(t, err, CodeNoAccount)

	h.rng.push(0)
	hired, err := h.svc.ApplyJob(ctx, "u")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if hired.Job.Title != Listings[0].Title {
		t.Fatalf("job=%+v", hired.Job)
	}
	expectBalance(t, hired.Balance, "0.98")
	_, err = h.svc.ApplyJob(ctx, "u")
	expectCode(t, err, CodeAlreadyEmployed)

	h.rng.push(0.5)
	shift, err := h.svc.Work(ctx, "u")
	if err != nil {
		t.Fatalf("work: %v", err)
	}
	if shift.Event != WorkNormal || !shift.Tax.Equal(d("0.40")) || !shift.Net.Equal(d("0.60")) {
		t.Fatalf("shift=%+v", shift)
	}
	expectBalance(t, shift.Balance, "1.58")
	_, err = h.svc.Work(ctx, "u")
	expectCode(t, err, CodeCooldown)

	h.clock.Advance(31 * time.Second)
	h.rng.push(0.05)
	shift, err = h.svc.Work(ctx, "u")
	if err != nil {
		t.Fatalf("overtime: %v", err)
	}
	if !shift.Gross.Equal(d("2.50")) {
		t.Fatalf("shift=%+v", shift)
	}
	expectBalance(t, shift.Balance, "3.08")

	h.clock.Advance(31 * time.Second)
	h.rng.push(0.2, 0)
	shift, err = h.svc.Work(ctx, "u")
	if err != nil {
		t.Fatalf("incident: %v", err)
	}
	if shift.Event != WorkIncident || !shift.Fine.Equal(d("0.01")) {
		t.Fatalf("shift=%+v", shift)
	}
	expectBalance(t, shift.Balance, "3.07")

	quit, err := h.svc.QuitJob(ctx, "u")
	if err != nil {
		t.Fatalf("quit: %v", err)
	}
	expectBalance(t, quit.Balance, "3.02")
	_, err = h.svc.Job(ctx, "u")
	expectCode(t, err, CodeNoJob)
	_, err = h.svc.QuitJob(ctx, "u")
	expectCode(t, err, CodeNoJob)
}
