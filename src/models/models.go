package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Account types and currencies supported by the journal.
const (
	AccountTypeUS = "US"
	AccountTypeKR = "KR"

	CurrencyUSD = "USD"
	CurrencyKRW = "KRW"
)

// Trade actions. Legacy SHORT/COVER actions are coerced to SELL at the
// normalization boundary; new rows only ever carry BUY or SELL.
const (
	TradeTypeBuy  = "BUY"
	TradeTypeSell = "SELL"
)

// Position lifecycle states.
const (
	PositionActive = "ACTIVE"
	PositionClosed = "CLOSED"
)

// Stop-loss input modes: which field the user edited directly. The other one
// is derived.
const (
	StopInputPercentage = "percentage"
	StopInputQuantity   = "quantity"
)

// PositionID derives a position id from its open timestamp and ticker, the
// journal's globally-unique-per-account convention.
func PositionID(openedAt time.Time, ticker string) string {
	return fmt.Sprintf("%s_%s", openedAt.Format("20060102150405"), ticker)
}

// Account is the root aggregate. Deleting an account cascades to all owned
// trades, positions, plans and equity points.
type Account struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	AccountType    string          `json:"accountType"`
	Currency       string          `json:"currency"`
	InitialBalance decimal.Decimal `json:"initialBalance"`
	CreatedAt      time.Time       `json:"createdAt,omitempty"`
}

// Trade is a single fill. Monetary fields are decimals end to end; the
// storage layer stringifies them, never floats.
type Trade struct {
	ID         string          `json:"id"`
	AccountID  string          `json:"accountId"`
	Ticker     string          `json:"ticker"`
	TradeType  string          `json:"tradeType"`
	Quantity   int64           `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Commission decimal.Decimal `json:"commission"`
	TradeDate  time.Time       `json:"tradeDate"`
	BrokerDate string          `json:"brokerDate,omitempty"`
	BrokerTime string          `json:"brokerTime,omitempty"`
}

// Position aggregates the trades of one run in one ticker.
// Invariants: TotalShares <= MaxShares; CloseDate set iff Status == CLOSED.
type Position struct {
	ID            string           `json:"id"`
	AccountID     string           `json:"accountId"`
	Ticker        string           `json:"ticker"`
	Status        string           `json:"status"`
	OpenDate      time.Time        `json:"openDate"`
	CloseDate     *time.Time       `json:"closeDate,omitempty"`
	AvgBuyPrice   decimal.Decimal  `json:"avgBuyPrice"`
	TotalShares   int64            `json:"totalShares"`
	MaxShares     int64            `json:"maxShares"`
	RealizedPnl   decimal.Decimal  `json:"realizedPnl"`
	MaxRiskAmount *decimal.Decimal `json:"maxRiskAmount,omitempty"`
	SetupType     string           `json:"setupType,omitempty"`
	EntryTime     string           `json:"entryTime,omitempty"`
	Rating        int              `json:"rating,omitempty"`
	Memo          string           `json:"memo,omitempty"`
}

// StopLoss records planned risk for a position. Deactivation is preferred
// over deletion so risk history survives; only active rows count toward live
// risk.
type StopLoss struct {
	ID             string          `json:"id"`
	PositionID     string          `json:"positionId"`
	StopPrice      decimal.Decimal `json:"stopPrice"`
	StopQuantity   int64           `json:"stopQuantity"`
	StopPercentage decimal.Decimal `json:"stopPercentage"`
	InputMode      string          `json:"inputMode"`
	IsActive       bool            `json:"isActive"`
}

// EquityPoint is one day of an account's equity curve, unique per
// (accountId, date).
type EquityPoint struct {
	AccountID  string          `json:"accountId"`
	Date       string          `json:"date"` // yyyy-mm-dd
	TotalValue decimal.Decimal `json:"totalValue"`
	CashValue  decimal.Decimal `json:"cashValue"`
	StockValue decimal.Decimal `json:"stockValue"`
	DailyPnl   decimal.Decimal `json:"dailyPnl"`
}

// ChecklistItem is one entry of a daily plan's checklist.
type ChecklistItem struct {
	Text    string `json:"text"`
	Checked bool   `json:"checked"`
}

// DailyPlan is one plan per account per day; saving upserts.
type DailyPlan struct {
	AccountID      string          `json:"accountId"`
	PlanDate       string          `json:"planDate"` // yyyy-mm-dd
	DailyRiskLimit decimal.Decimal `json:"dailyRiskLimit"`
	Watchlist      []string        `json:"watchlist"`
	Notes          string          `json:"notes"`
	Checklist      []ChecklistItem `json:"checklist"`
}
