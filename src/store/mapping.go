// src/store/mapping.go
//
// Declarative, bidirectional mapping between the flat string-typed storage
// shape and the camelCase decimal-typed domain shape. Every entity has one
// static mapping table; the converters are the only place a storage value is
// ever interpreted.
package store

import (
	"fmt"
	"strconv"
	"time"

	"github.com/BanziSeo/habiOS-sub002/src/models"
	"github.com/shopspring/decimal"
)

// Kind selects the typed converter for one mapped field.
type Kind int

const (
	KindText Kind = iota
	KindInt
	KindDecimal   // decimal <-> string, arbitrary precision, never float
	KindDate      // time.Time <-> yyyy-mm-dd
	KindDateTime  // time.Time <-> RFC3339
	KindBool      // bool <-> 0/1 integer
	KindTradeType // legacy SHORT/COVER coerce to SELL
)

const (
	dateLayout = "2006-01-02"
)

// FieldMapping binds one storage column to one domain field name.
type FieldMapping struct {
	Column string
	Domain string
	Kind   Kind
}

var accountFields = []FieldMapping{
	{"id", "id", KindText},
	{"name", "name", KindText},
	{"account_type", "accountType", KindText},
	{"currency", "currency", KindText},
	{"initial_balance", "initialBalance", KindDecimal},
}

var tradeFields = []FieldMapping{
	{"id", "id", KindText},
	{"account_id", "accountId", KindText},
	{"ticker", "ticker", KindText},
	{"trade_type", "tradeType", KindTradeType},
	{"quantity", "quantity", KindInt},
	{"price", "price", KindDecimal},
	{"commission", "commission", KindDecimal},
	{"trade_date", "tradeDate", KindDate},
	{"broker_date", "brokerDate", KindText},
	{"broker_time", "brokerTime", KindText},
}

var positionFields = []FieldMapping{
	{"id", "id", KindText},
	{"account_id", "accountId", KindText},
	{"ticker", "ticker", KindText},
	{"status", "status", KindText},
	{"open_date", "openDate", KindDate},
	{"close_date", "closeDate", KindDate},
	{"avg_buy_price", "avgBuyPrice", KindDecimal},
	{"total_shares", "totalShares", KindInt},
	{"max_shares", "maxShares", KindInt},
	{"realized_pnl", "realizedPnl", KindDecimal},
	{"max_risk_amount", "maxRiskAmount", KindDecimal},
	{"setup_type", "setupType", KindText},
	{"entry_time", "entryTime", KindText},
	{"rating", "rating", KindInt},
	{"memo", "memo", KindText},
}

var stopLossFields = []FieldMapping{
	{"id", "id", KindText},
	{"position_id", "positionId", KindText},
	{"stop_price", "stopPrice", KindDecimal},
	{"stop_quantity", "stopQuantity", KindInt},
	{"stop_percentage", "stopPercentage", KindDecimal},
	{"input_mode", "inputMode", KindText},
	{"is_active", "isActive", KindBool},
}

var equityFields = []FieldMapping{
	{"account_id", "accountId", KindText},
	{"date", "date", KindText},
	{"total_value", "totalValue", KindDecimal},
	{"cash_value", "cashValue", KindDecimal},
	{"stock_value", "stockValue", KindDecimal},
	{"daily_pnl", "dailyPnl", KindDecimal},
}

var dailyPlanFields = []FieldMapping{
	{"account_id", "accountId", KindText},
	{"plan_date", "planDate", KindText},
	{"daily_risk_limit", "dailyRiskLimit", KindDecimal},
	{"watchlist", "watchlist", KindText},
	{"notes", "notes", KindText},
	{"checklist", "checklist", KindText},
}

var entityMappings = map[string][]FieldMapping{
	"accounts":     accountFields,
	"trades":       tradeFields,
	"positions":    positionFields,
	"stop_losses":  stopLossFields,
	"equity_curve": equityFields,
	"daily_plans":  dailyPlanFields,
}

// coerceTradeType normalizes the trade-action taxonomy: legacy SHORT and
// COVER rows collapse into SELL.
func coerceTradeType(v string) string {
	switch v {
	case "SHORT", "COVER":
		return models.TradeTypeSell
	default:
		return v
	}
}

// toStorage converts one domain value to its storage representation according
// to the field's kind. Unconvertible values are an error, never a guess.
func toStorage(m FieldMapping, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch m.Kind {
	case KindText:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("field %s: expected string, got %T", m.Domain, v)
		}
		return s, nil
	case KindInt:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		default:
			return nil, fmt.Errorf("field %s: expected integer, got %T", m.Domain, v)
		}
	case KindDecimal:
		switch d := v.(type) {
		case decimal.Decimal:
			return d.String(), nil
		case *decimal.Decimal:
			if d == nil {
				return nil, nil
			}
			return d.String(), nil
		case string:
			parsed, err := decimal.NewFromString(d)
			if err != nil {
				return nil, fmt.Errorf("field %s: invalid decimal %q: %w", m.Domain, d, err)
			}
			return parsed.String(), nil
		default:
			return nil, fmt.Errorf("field %s: expected decimal, got %T", m.Domain, v)
		}
	case KindDate:
		switch t := v.(type) {
		case time.Time:
			return t.Format(dateLayout), nil
		case *time.Time:
			if t == nil {
				return nil, nil
			}
			return t.Format(dateLayout), nil
		case string:
			return t, nil
		default:
			return nil, fmt.Errorf("field %s: expected date, got %T", m.Domain, v)
		}
	case KindDateTime:
		t, ok := v.(time.Time)
		if !ok {
			return nil, fmt.Errorf("field %s: expected time, got %T", m.Domain, v)
		}
		return t.UTC().Format(time.RFC3339), nil
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("field %s: expected bool, got %T", m.Domain, v)
		}
		if b {
			return int64(1), nil
		}
		return int64(0), nil
	case KindTradeType:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("field %s: expected string, got %T", m.Domain, v)
		}
		return coerceTradeType(s), nil
	}
	return nil, fmt.Errorf("field %s: unknown converter kind %d", m.Domain, m.Kind)
}

// Storage value readers. The sqlite driver hands back int64, float64, string
// or []byte depending on column affinity; these accept all of them.

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", s)
	}
}

func asInt(v any) int64 {
	switch n := v.(type) {
	case nil:
		return 0
	case int64:
		return n
	case float64:
		return int64(n)
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	case []byte:
		i, _ := strconv.ParseInt(string(n), 10, 64)
		return i
	default:
		return 0
	}
}

func asBool(v any) bool {
	return asInt(v) != 0
}

func asDecimal(v any) (decimal.Decimal, error) {
	switch d := v.(type) {
	case nil:
		return decimal.Zero, nil
	case string:
		if d == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(d)
	case []byte:
		if len(d) == 0 {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(string(d))
	case int64:
		return decimal.NewFromInt(d), nil
	case float64:
		// Legacy rows written by the old UI stored REAL affinity values.
		return decimal.NewFromFloat(d), nil
	default:
		return decimal.Zero, fmt.Errorf("cannot read %T as decimal", v)
	}
}

func asDate(v any) (time.Time, error) {
	s := asString(v)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
