package game

import (
	"context"
	"fmt"
	"time"

	"southbag/internal/ledger"
	"southbag/internal/market"
	"southbag/internal/money"

	"github.com/shopspring/decimal"
)

var (
	blockchainRate   = money.MustParse("0.05")
	capitalGainsRate = money.MustParse("0.10")
)

const quantityPlaces = 5

// lockedRandom lets market draw from the service source under its mutex.
type lockedRandom struct{ s *Service }

func (r lockedRandom) Float64() float64 { return r.s.nextFloat() }

func (s *Service) price(c market.Coin, now time.Time) decimal.Decimal {
	return market.Price(c, now, lockedRandom{s})
}

func lookupCoin(symbol string) (market.Coin, error) {
	c, ok := market.Lookup(symbol)
	if !ok {
		return c, rejectf(CodeUnknownCoin, "%q", symbol)
	}
	return c, nil
}

// Prices quotes every coin. Nothing is stored; two calls disagree.
func (s *Service) Prices() []CoinQuote {
	quotes := market.Quotes(s.clock(), lockedRandom{s})
	out := make([]CoinQuote, 0, len(quotes))
	for _, q := range quotes {
		out = append(out, CoinQuote{Symbol: q.Coin.Symbol, Name: q.Coin.Name, Price: q.Price, Change24h: q.Change24h})
	}
	return out
}

// BuyCrypto spends amount on coin at a fresh price plus a 5% fee and books
// a new holding.
func (s *Service) BuyCrypto(ctx context.Context, owner, symbol string, amount decimal.Decimal) (BuyResult, error) {
	var out BuyResult
	amount, err := normalizeAmount(amount)
	if err != nil {
		return out, err
	}
	fee := money.Cents(amount.Mul(blockchainRate))
	err = s.run(ctx, []string{owner}, func(tx ledger.Tx, now time.Time) error {
		j := newJournal(tx, now)
		if _, err := j.mustAccount(ctx, owner); err != nil {
			return err
		}
		coin, err := lookupCoin(symbol)
		if err != nil {
			return err
		}
		if err := j.afford(owner, amount.Add(fee)); err != nil {
			return err
		}

		price := s.price(coin, now)
		qty := amount.DivRound(price, quantityPlaces)
		if _, err := tx.InsertHolding(ctx, ledger.Holding{
			OwnerID:   owner,
			Coin:      coin.Symbol,
			Quantity:  qty,
			BoughtAt:  price,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		desc := fmt.Sprintf("Bought %s %s (%s) @ %s", qty.String(), coin.Symbol, coin.Name, money.FormatMilli(price))
		j.post(owner, ledger.KindWithdrawal, amount.Neg(), desc)
		out = BuyResult{
			Coin:     coin.Symbol,
			Spent:    amount,
			Fee:      fee,
			Price:    price,
			Quantity: qty,
			Balance:  j.post(owner, ledger.KindFee, fee.Neg(), "Blockchain convenience fee (5%)"),
		}
		return j.commit(ctx)
	})
	return out, err
}

// SellCrypto liquidates every holding of coin at one fresh price.
func (s *Service) SellCrypto(ctx context.Context, owner, symbol string) (SellResult, error) {
	var out SellResult
	err := s.run(ctx, []string{owner}, func(tx ledger.Tx, now time.Time) error {
		j := newJournal(tx, now)
		if _, err := j.mustAccount(ctx, owner); err != nil {
			return err
		}
		coin, err := lookupCoin(symbol)
		if err != nil {
			return err
		}
		holdings, err := tx.ListHoldings(ctx, owner)
		if err != nil {
			return err
		}
		qty := money.Zero
		n := 0
		for _, h := range holdings {
			if h.Coin == coin.Symbol {
				qty = qty.Add(h.Quantity)
				n++
			}
		}
		if n == 0 {
			return rejectf(CodeNoHoldings, "no %s", coin.Symbol)
		}

		price := s.price(coin, now)
		gross := money.Cents(qty.Mul(price))
		tax := money.Cents(gross.Mul(capitalGainsRate))
		if _, err := tx.DeleteHoldings(ctx, owner, coin.Symbol); err != nil {
			return err
		}
		desc := fmt.Sprintf("Sold %s %s (%s) @ %s", qty.String(), coin.Symbol, coin.Name, money.FormatMilli(price))
		j.post(owner, ledger.KindDeposit, gross, desc)
		out = SellResult{
			Coin:     coin.Symbol,
			Quantity: qty,
			Price:    price,
			Gross:    gross,
			Tax:      tax,
			Net:      gross.Sub(tax),
			Balance:  j.post(owner, ledger.KindFee, tax.Neg(), "Capital gains tax (10%)"),
		}
		return j.commit(ctx)
	})
	return out, err
}

// Portfolio values each holding at its own fresh price.
func (s *Service) Portfolio(ctx context.Context, owner string) (Portfolio, error) {
	var out Portfolio
	err := s.run(ctx, []string{owner}, func(tx ledger.Tx, now time.Time) error {
		out = Portfolio{Positions: []Position{}, Total: money.Zero}
		holdings, err := tx.ListHoldings(ctx, owner)
		if err != nil {
			return err
		}
		for _, h := range holdings {
			p := Position{Coin: h.Coin, Name: "Unknown", Quantity: h.Quantity, BoughtAt: h.BoughtAt, CreatedAt: h.CreatedAt}
			if c, ok := market.Lookup(h.Coin); ok {
				p.Name = c.Name
				p.Price = s.price(c, now)
				p.Value = money.Cents(h.Quantity.Mul(p.Price))
				p.GainLoss = p.Value.Sub(money.Cents(h.Quantity.Mul(h.BoughtAt)))
			}
			out.Positions = append(out.Positions, p)
			out.Total = out.Total.Add(p.Value)
		}
		return nil
	})
	return out, err
}
