// Package market prices the parody coins. Prices are recomputed from the
// clock and a random draw on every call; nothing is stored.
package market

import (
	"math"
	"strings"
	"time"

	"southbag/internal/money"

	"github.com/shopspring/decimal"
)

type Coin struct {
	Symbol     string
	Name       string
	Base       decimal.Decimal
	Volatility float64
}

var Coins = []Coin{
	{Symbol: "SBAG", Name: "SouthCoin", Base: money.New(1.00), Volatility: 0.8},
	{Symbol: "FEES", Name: "FeeCoin", Base: money.New(0.50), Volatility: 0.6},
	{Symbol: "SCAM", Name: "ScamToken", Base: money.New(0.10), Volatility: 0.95},
	{Symbol: "HODL", Name: "HODLcoin", Base: money.New(2.00), Volatility: 0.4},
	{Symbol: "RUG", Name: "RugPull", Base: money.New(5.00), Volatility: 0.99},
}

var floorPrice = money.MustParse("0.001")

// Random is a uniform source over [0,1).
type Random interface {
	Float64() float64
}

func Lookup(symbol string) (Coin, bool) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	for _, c := range Coins {
		if c.Symbol == symbol {
			return c, true
		}
	}
	return Coin{}, false
}

// Price is base * (1 + sin(minutes*vol)*vol + (u-0.5)*vol*0.5), floored at
// $0.001 and rounded to the tenth of a cent.
func Price(c Coin, now time.Time, rng Random) decimal.Decimal {
	return price(c, now, rng.Float64())
}

func price(c Coin, now time.Time, u float64) decimal.Decimal {
	phase := float64(now.UnixMilli()) / 60000 * c.Volatility
	factor := 1 + math.Sin(phase)*c.Volatility + (u-0.5)*c.Volatility*0.5
	p := money.Milli(c.Base.Mul(decimal.NewFromFloat(factor)))
	if p.LessThan(floorPrice) {
		return floorPrice
	}
	return p
}

type Quote struct {
	Coin      Coin
	Price     decimal.Decimal
	Change24h decimal.Decimal
}

// Quotes prices every coin. Change24h is synthetic, in percent.
func Quotes(now time.Time, rng Random) []Quote {
	out := make([]Quote, 0, len(Coins))
	for _, c := range Coins {
		p := Price(c, now, rng)
		change := math.Round((rng.Float64()-0.5)*c.Volatility*200) / 100
		out = append(out, Quote{Coin: c, Price: p, Change24h: decimal.NewFromFloat(change)})
	}
	return out
}
