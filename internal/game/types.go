package game

import (
	"time"

	"southbag/internal/ledger"

	"github.com/shopspring/decimal"
)

type BalanceView struct {
	AccountNumber string               `json:"account_number"`
	Status        ledger.AccountStatus `json:"status"`
	Fee           decimal.Decimal      `json:"fee"`
	Balance       decimal.Decimal      `json:"balance"`
}

type FeeResult struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Balance     decimal.Decimal `json:"balance"`
}

type FeeLine struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

type TransferResult struct {
	Recipient string          `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
	Fees      []FeeLine       `json:"fees"`
	TotalFees decimal.Decimal `json:"total_fees"`
	Debited   decimal.Decimal `json:"debited"`
	Balance   decimal.Decimal `json:"balance"`
}

type DepositResult struct {
	Requested decimal.Decimal `json:"requested"`
	Credited  decimal.Decimal `json:"credited"`
	Fee       decimal.Decimal `json:"fee"`
	Balance   decimal.Decimal `json:"balance"`
}

type RobResult struct {
	VictimID      string          `json:"victim_id"`
	Caught        bool            `json:"caught"`
	Fine          decimal.Decimal `json:"fine"`
	Stolen        decimal.Decimal `json:"stolen"`
	Fence         decimal.Decimal `json:"fence"`
	Net           decimal.Decimal `json:"net"`
	Balance       decimal.Decimal `json:"balance"`
	VictimBalance decimal.Decimal `json:"victim_balance"`
}

type UpgradeResult struct {
	PreviousTier string          `json:"previous_tier"`
	Tier         string          `json:"tier"`
	Cost         decimal.Decimal `json:"cost"`
	Balance      decimal.Decimal `json:"balance"`
}

type GiftResult struct {
	RecipientID      string          `json:"recipient_id"`
	Amount           decimal.Decimal `json:"amount"`
	Tax              decimal.Decimal `json:"tax"`
	Debited          decimal.Decimal `json:"debited"`
	Balance          decimal.Decimal `json:"balance"`
	RecipientBalance decimal.Decimal `json:"recipient_balance"`
}

type GambleResult struct {
	Game       string          `json:"game"`
	Bet        decimal.Decimal `json:"bet"`
	Call       string          `json:"call,omitempty"`
	Result     string          `json:"result,omitempty"`
	Reels      []string        `json:"reels,omitempty"`
	Outcome    string          `json:"outcome"`
	Won        bool            `json:"won"`
	Multiplier decimal.Decimal `json:"multiplier"`
	Payout     decimal.Decimal `json:"payout"`
	Net        decimal.Decimal `json:"net"`
	Balance    decimal.Decimal `json:"balance"`
}

type BegResult struct {
	Outcome BegOutcome      `json:"outcome"`
	Amount  decimal.Decimal `json:"amount"`
	Message string          `json:"message"`
	Balance decimal.Decimal `json:"balance"`
}

type DailyResult struct {
	Reward  decimal.Decimal `json:"reward"`
	Bonus   bool            `json:"bonus"`
	Fee     decimal.Decimal `json:"fee"`
	Net     decimal.Decimal `json:"net"`
	Balance decimal.Decimal `json:"balance"`
}

type HeistResult struct {
	Heist   ledger.Heist    `json:"heist"`
	Fee     decimal.Decimal `json:"fee"`
	Balance decimal.Decimal `json:"balance"`
}

type HeistShare struct {
	OwnerID string          `json:"owner_id"`
	Amount  decimal.Decimal `json:"amount"`
	Balance decimal.Decimal `json:"balance"`
}

type HeistOutcome struct {
	Heist      ledger.Heist    `json:"heist"`
	Success    bool            `json:"success"`
	Chance     decimal.Decimal `json:"chance"`
	Vault      decimal.Decimal `json:"vault"`
	Deductible decimal.Decimal `json:"deductible"`
	NetPayout  decimal.Decimal `json:"net_payout"`
	Share      decimal.Decimal `json:"share"`
	// Shares holds payouts on success and fines (negative) on failure.
	Shares []HeistShare `json:"shares"`
}

type LoanView struct {
	Loan     ledger.Loan     `json:"loan"`
	Owed     decimal.Decimal `json:"owed"`
	Interest decimal.Decimal `json:"interest"`
	Elapsed  time.Duration   `json:"elapsed_ns"`
}

type LoanResult struct {
	Loan    ledger.Loan     `json:"loan"`
	Owed    decimal.Decimal `json:"owed"`
	Balance decimal.Decimal `json:"balance"`
}

type CoinQuote struct {
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Change24h decimal.Decimal `json:"change_24h"`
}

type BuyResult struct {
	Coin     string          `json:"coin"`
	Spent    decimal.Decimal `json:"spent"`
	Fee      decimal.Decimal `json:"fee"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Balance  decimal.Decimal `json:"balance"`
}

type SellResult struct {
	Coin     string          `json:"coin"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Gross    decimal.Decimal `json:"gross"`
	Tax      decimal.Decimal `json:"tax"`
	Net      decimal.Decimal `json:"net"`
	Balance  decimal.Decimal `json:"balance"`
}

type Position struct {
	Coin      string          `json:"coin"`
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity"`
	BoughtAt  decimal.Decimal `json:"bought_at"`
	Price     decimal.Decimal `json:"price"`
	Value     decimal.Decimal `json:"value"`
	GainLoss  decimal.Decimal `json:"gain_loss"`
	CreatedAt time.Time       `json:"created_at"`
}

type Portfolio struct {
	Positions []Position      `json:"positions"`
	Total     decimal.Decimal `json:"total"`
}

type InsuranceResult struct {
	Policy   ledger.Insurance `json:"policy"`
	PlanName string           `json:"plan_name"`
	AdminFee decimal.Decimal  `json:"admin_fee"`
	Balance  decimal.Decimal  `json:"balance"`
}

type ClaimResult struct {
	Reason  string          `json:"reason"`
	Denial  string          `json:"denial"`
	Fee     decimal.Decimal `json:"fee"`
	Balance decimal.Decimal `json:"balance"`
}

type InsuranceView struct {
	Policy   ledger.Insurance `json:"policy"`
	PlanName string           `json:"plan_name"`
	Active   bool             `json:"active"`
}

type JobResult struct {
	Job     ledger.Job      `json:"job"`
	Fee     decimal.Decimal `json:"fee"`
	Balance decimal.Decimal `json:"balance"`
}

type WorkResult struct {
	Title   string          `json:"title"`
	Event   WorkEvent       `json:"event"`
	Gross   decimal.Decimal `json:"gross"`
	Fine    decimal.Decimal `json:"fine"`
	Tax     decimal.Decimal `json:"tax"`
	Net     decimal.Decimal `json:"net"`
	Balance decimal.Decimal `json:"balance"`
}

type SweepResult struct {
	Charged int             `json:"charged"`
	Total   decimal.Decimal `json:"total"`
}
