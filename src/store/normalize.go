// src/store/normalize.go
package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/BanziSeo/habiOS-sub002/src/models"
	"github.com/shopspring/decimal"
)

// AccountFromRow maps a tagged accounts row into the domain shape.
func AccountFromRow(r Row) (models.Account, error) {
	bal, err := asDecimal(r.Values["initial_balance"])
	if err != nil {
		return models.Account{}, fmt.Errorf("account %s: %w", asString(r.Values["id"]), err)
	}
	var created time.Time
	if r.Has("created_at") {
		created, _ = asDate(r.Values["created_at"])
	}
	return models.Account{
		ID:             asString(r.Values["id"]),
		Name:           asString(r.Values["name"]),
		AccountType:    asString(r.Values["account_type"]),
		Currency:       asString(r.Values["currency"]),
		InitialBalance: bal,
		CreatedAt:      created,
	}, nil
}

// TradeFromRow maps a trades row. Legacy SHORT/COVER actions normalize to
// SELL here, so callers only ever see BUY or SELL.
func TradeFromRow(r Row) (models.Trade, error) {
	price, err := asDecimal(r.Values["price"])
	if err != nil {
		return models.Trade{}, fmt.Errorf("trade %s: %w", asString(r.Values["id"]), err)
	}
	commission, err := asDecimal(r.Values["commission"])
	if err != nil {
		return models.Trade{}, fmt.Errorf("trade %s: %w", asString(r.Values["id"]), err)
	}
	tradeDate, err := asDate(r.Values["trade_date"])
	if err != nil {
		return models.Trade{}, fmt.Errorf("trade %s: invalid trade_date: %w", asString(r.Values["id"]), err)
	}
	return models.Trade{
		ID:         asString(r.Values["id"]),
		AccountID:  asString(r.Values["account_id"]),
		Ticker:     asString(r.Values["ticker"]),
		TradeType:  coerceTradeType(asString(r.Values["trade_type"])),
		Quantity:   asInt(r.Values["quantity"]),
		Price:      price,
		Commission: commission,
		TradeDate:  tradeDate,
		BrokerDate: asString(r.Values["broker_date"]),
		BrokerTime: asString(r.Values["broker_time"]),
	}, nil
}

// PositionFromRow maps a positions row of either shape. Legacy rows carry the
// open quantity in "shares" and predate the high-water mark, so maxShares
// backfills from the open quantity.
func PositionFromRow(r Row) (models.Position, error) {
	id := asString(r.Values["id"])

	var totalShares, maxShares int64
	switch r.Shape {
	case ShapeLegacy:
		totalShares = asInt(r.Values["shares"])
		maxShares = totalShares
	default:
		totalShares = asInt(r.Values["total_shares"])
		maxShares = asInt(r.Values["max_shares"])
	}

	avgBuy, err := asDecimal(r.Values["avg_buy_price"])
	if err != nil {
		return models.Position{}, fmt.Errorf("position %s: %w", id, err)
	}
	realized, err := asDecimal(r.Values["realized_pnl"])
	if err != nil {
		return models.Position{}, fmt.Errorf("position %s: %w", id, err)
	}
	openDate, err := asDate(r.Values["open_date"])
	if err != nil {
		return models.Position{}, fmt.Errorf("position %s: invalid open_date: %w", id, err)
	}

	p := models.Position{
		ID:          id,
		AccountID:   asString(r.Values["account_id"]),
		Ticker:      asString(r.Values["ticker"]),
		Status:      asString(r.Values["status"]),
		OpenDate:    openDate,
		AvgBuyPrice: avgBuy,
		TotalShares: totalShares,
		MaxShares:   maxShares,
		RealizedPnl: realized,
		SetupType:   asString(r.Values["setup_type"]),
		EntryTime:   asString(r.Values["entry_time"]),
		Rating:      int(asInt(r.Values["rating"])),
		Memo:        asString(r.Values["memo"]),
	}

	if r.Has("close_date") {
		cd, err := asDate(r.Values["close_date"])
		if err != nil {
			return models.Position{}, fmt.Errorf("position %s: invalid close_date: %w", id, err)
		}
		if !cd.IsZero() {
			p.CloseDate = &cd
		}
	}
	if v, ok := r.Values["max_risk_amount"]; ok && v != nil {
		risk, err := asDecimal(v)
		if err != nil {
			return models.Position{}, fmt.Errorf("position %s: %w", id, err)
		}
		p.MaxRiskAmount = &risk
	}
	return p, nil
}

// StopLossFromRow maps a stop_losses row.
func StopLossFromRow(r Row) (models.StopLoss, error) {
	id := asString(r.Values["id"])
	price, err := asDecimal(r.Values["stop_price"])
	if err != nil {
		return models.StopLoss{}, fmt.Errorf("stop loss %s: %w", id, err)
	}
	pct, err := asDecimal(r.Values["stop_percentage"])
	if err != nil {
		return models.StopLoss{}, fmt.Errorf("stop loss %s: %w", id, err)
	}
	inputMode := asString(r.Values["input_mode"])
	if inputMode == "" {
		inputMode = models.StopInputPercentage
	}
	return models.StopLoss{
		ID:             id,
		PositionID:     asString(r.Values["position_id"]),
		StopPrice:      price,
		StopQuantity:   asInt(r.Values["stop_quantity"]),
		StopPercentage: pct,
		InputMode:      inputMode,
		IsActive:       asBool(r.Values["is_active"]),
	}, nil
}

// EquityPointFromRow maps an equity_curve row.
func EquityPointFromRow(r Row) (models.EquityPoint, error) {
	var (
		p   models.EquityPoint
		err error
	)
	p.AccountID = asString(r.Values["account_id"])
	p.Date = asString(r.Values["date"])
	if p.TotalValue, err = asDecimal(r.Values["total_value"]); err != nil {
		return p, err
	}
	if p.CashValue, err = asDecimal(r.Values["cash_value"]); err != nil {
		return p, err
	}
	if p.StockValue, err = asDecimal(r.Values["stock_value"]); err != nil {
		return p, err
	}
	if p.DailyPnl, err = asDecimal(r.Values["daily_pnl"]); err != nil {
		return p, err
	}
	return p, nil
}

// DailyPlanFromRow maps a daily_plans row, decoding the JSON-encoded
// watchlist and checklist columns.
func DailyPlanFromRow(r Row) (models.DailyPlan, error) {
	limit, err := asDecimal(r.Values["daily_risk_limit"])
	if err != nil {
		return models.DailyPlan{}, err
	}
	plan := models.DailyPlan{
		AccountID:      asString(r.Values["account_id"]),
		PlanDate:       asString(r.Values["plan_date"]),
		DailyRiskLimit: limit,
		Notes:          asString(r.Values["notes"]),
		Watchlist:      []string{},
		Checklist:      []models.ChecklistItem{},
	}
	if raw := asString(r.Values["watchlist"]); raw != "" {
		if err := json.Unmarshal([]byte(raw), &plan.Watchlist); err != nil {
			return models.DailyPlan{}, fmt.Errorf("daily plan %s/%s: bad watchlist: %w", plan.AccountID, plan.PlanDate, err)
		}
	}
	if raw := asString(r.Values["checklist"]); raw != "" {
		if err := json.Unmarshal([]byte(raw), &plan.Checklist); err != nil {
			return models.DailyPlan{}, fmt.Errorf("daily plan %s/%s: bad checklist: %w", plan.AccountID, plan.PlanDate, err)
		}
	}
	return plan, nil
}

// nullableDecimal renders an optional decimal for a nullable TEXT column.
func nullableDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

// nullableDate renders an optional date for a nullable TEXT column.
func nullableDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

// nullableText renders empty strings as NULL for optional annotation columns.
func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}
