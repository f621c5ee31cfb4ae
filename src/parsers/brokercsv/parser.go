// src/parsers/brokercsv/parser.go
package brokercsv

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BanziSeo/habiOS-sub002/src/logger"
	"github.com/BanziSeo/habiOS-sub002/src/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RawTrade holds the direct string values from a single CSV row.
type RawTrade struct {
	Date, Time, Ticker, Action, Quantity, Price, Commission string
	RawLine                                                 string
}

// Parser reads generic broker trade exports: one fill per row with
// date, time, ticker, action, quantity, price and commission columns.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func normalizeDecimalString(s string) string {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.Trim(cleaned, "\"")
	// Thousands separators first, then the decimal comma.
	if strings.Contains(cleaned, ",") && strings.Contains(cleaned, ".") {
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	} else {
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	}
	return cleaned
}

var dateLayouts = []string{"2006-01-02", "02-01-2006", "2006/01/02", "01/02/2006"}

func parseTradeDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// Parse converts the CSV into an import batch: trades, the positions they
// compose into, and the position->trade links. Positions are rebuilt by
// replaying fills per ticker in chronological order; a run that empties
// closes its position and the next BUY in that ticker starts a fresh one.
func (p *Parser) Parse(file io.Reader, accountID string) (models.ImportBatch, error) {
	batch := models.ImportBatch{
		AccountID:        accountID,
		PositionTradeMap: map[string][]string{},
	}

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return batch, fmt.Errorf("brokercsv parser: failed to read CSV header: %w", err)
	}
	idx, err := columnIndex(header)
	if err != nil {
		return batch, fmt.Errorf("brokercsv parser: %w", err)
	}

	records, err := reader.ReadAll()
	if err != nil {
		return batch, fmt.Errorf("brokercsv parser: failed to read CSV records: %w", err)
	}

	var raws []RawTrade
	for _, record := range records {
		get := func(col int) string {
			if col < 0 || col >= len(record) {
				return ""
			}
			return record[col]
		}
		raws = append(raws, RawTrade{
			Date:       get(idx["date"]),
			Time:       get(idx["time"]),
			Ticker:     get(idx["ticker"]),
			Action:     get(idx["action"]),
			Quantity:   get(idx["quantity"]),
			Price:      get(idx["price"]),
			Commission: get(idx["commission"]),
			RawLine:    strings.Join(record, ","),
		})
	}

	trades := make([]models.Trade, 0, len(raws))
	for _, raw := range raws {
		date, err := parseTradeDate(raw.Date)
		if err != nil {
			logger.L.Warn("Skipping row with invalid date", "date", raw.Date)
			continue
		}
		action := normalizeAction(raw.Action)
		if action == "" {
			logger.L.Warn("Skipping row with unknown action", "action", raw.Action)
			continue
		}
		qty, err := strconv.ParseInt(strings.TrimSpace(raw.Quantity), 10, 64)
		if err != nil || qty <= 0 {
			logger.L.Warn("Skipping row with invalid quantity", "quantity", raw.Quantity)
			continue
		}
		price, err := decimal.NewFromString(normalizeDecimalString(raw.Price))
		if err != nil {
			logger.L.Warn("Skipping row with invalid price", "price", raw.Price)
			continue
		}
		commission := decimal.Zero
		if c := normalizeDecimalString(raw.Commission); c != "" {
			if parsed, err := decimal.NewFromString(c); err == nil {
				commission = parsed.Abs()
			}
		}

		trades = append(trades, models.Trade{
			ID:         tradeHash(accountID, raw),
			AccountID:  accountID,
			Ticker:     strings.ToUpper(strings.TrimSpace(raw.Ticker)),
			TradeType:  action,
			Quantity:   qty,
			Price:      price,
			Commission: commission,
			TradeDate:  date,
			BrokerDate: strings.TrimSpace(raw.Date),
			BrokerTime: strings.TrimSpace(raw.Time),
		})
	}

	sort.SliceStable(trades, func(i, j int) bool {
		if !trades[i].TradeDate.Equal(trades[j].TradeDate) {
			return trades[i].TradeDate.Before(trades[j].TradeDate)
		}
		return trades[i].BrokerTime < trades[j].BrokerTime
	})

	batch.Trades = trades
	batch.Positions, batch.PositionTradeMap = buildPositions(accountID, trades)
	return batch, nil
}

func columnIndex(header []string) (map[string]int, error) {
	aliases := map[string]string{
		"date": "date", "trade_date": "date", "거래일자": "date",
		"time": "time", "trade_time": "time", "거래시간": "time",
		"ticker": "ticker", "symbol": "ticker", "종목": "ticker",
		"action": "action", "type": "action", "side": "action", "매매구분": "action",
		"quantity": "quantity", "qty": "quantity", "shares": "quantity", "수량": "quantity",
		"price": "price", "단가": "price",
		"commission": "commission", "fee": "commission", "수수료": "commission",
	}
	idx := map[string]int{
		"date": -1, "time": -1, "ticker": -1, "action": -1,
		"quantity": -1, "price": -1, "commission": -1,
	}
	for i, col := range header {
		key := strings.ToLower(strings.TrimSpace(col))
		if canonical, ok := aliases[key]; ok && idx[canonical] == -1 {
			idx[canonical] = i
		}
	}
	for _, required := range []string{"date", "ticker", "action", "quantity", "price"} {
		if idx[required] == -1 {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}
	return idx, nil
}

// normalizeAction folds broker vocabulary into BUY/SELL; legacy short-side
// actions collapse into SELL.
func normalizeAction(s string) string {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "B", "매수":
		return models.TradeTypeBuy
	case "SELL", "S", "SHORT", "COVER", "매도":
		return models.TradeTypeSell
	default:
		return ""
	}
}

// tradeIDNamespace scopes the name-based ids below to this parser.
var tradeIDNamespace = uuid.MustParse("7f0b4f2e-9f1c-4a57-9c38-3a1f6d15c4b2")

// tradeHash derives a stable uuid5 from the row's source data, so
// re-importing the same file skips instead of duplicating.
func tradeHash(accountID string, raw RawTrade) string {
	input := strings.Join([]string{accountID, raw.Date, raw.Time, raw.Ticker, raw.Action, raw.Quantity, raw.Price}, "|")
	return uuid.NewSHA1(tradeIDNamespace, []byte(input)).String()
}

// buildPositions replays fills per ticker and reconstructs position rows with
// running average, realized P&L, share high-water mark and close dates.
func buildPositions(accountID string, trades []models.Trade) ([]models.Position, map[string][]string) {
	type openRun struct {
		pos      models.Position
		tradeIDs []string
	}
	open := map[string]*openRun{} // keyed by ticker
	var positions []models.Position
	links := map[string][]string{}

	finish := func(run *openRun) {
		positions = append(positions, run.pos)
		links[run.pos.ID] = run.tradeIDs
	}

	for _, t := range trades {
		run := open[t.Ticker]
		if run == nil {
			if t.TradeType != models.TradeTypeBuy {
				logger.L.Warn("SELL without an open position, skipping from position rebuild", "ticker", t.Ticker, "tradeID", t.ID)
				continue
			}
			run = &openRun{pos: models.Position{
				ID:          models.PositionID(t.TradeDate, t.Ticker),
				AccountID:   accountID,
				Ticker:      t.Ticker,
				Status:      models.PositionActive,
				OpenDate:    t.TradeDate,
				AvgBuyPrice: t.Price,
				TotalShares: t.Quantity,
				MaxShares:   t.Quantity,
				RealizedPnl: decimal.Zero,
			}}
			run.tradeIDs = append(run.tradeIDs, t.ID)
			open[t.Ticker] = run
			continue
		}

		run.tradeIDs = append(run.tradeIDs, t.ID)
		qty := decimal.NewFromInt(t.Quantity)
		switch t.TradeType {
		case models.TradeTypeBuy:
			oldShares := decimal.NewFromInt(run.pos.TotalShares)
			newTotal := run.pos.TotalShares + t.Quantity
			cost := run.pos.AvgBuyPrice.Mul(oldShares).Add(t.Price.Mul(qty))
			run.pos.AvgBuyPrice = cost.Div(decimal.NewFromInt(newTotal))
			run.pos.TotalShares = newTotal
			if newTotal > run.pos.MaxShares {
				run.pos.MaxShares = newTotal
			}
		default:
			sellQty := t.Quantity
			if sellQty > run.pos.TotalShares {
				sellQty = run.pos.TotalShares
			}
			realized := t.Price.Sub(run.pos.AvgBuyPrice).
				Mul(decimal.NewFromInt(sellQty)).
				Sub(t.Commission)
			run.pos.RealizedPnl = run.pos.RealizedPnl.Add(realized)
			run.pos.TotalShares -= sellQty
			if run.pos.TotalShares == 0 {
				closeDate := t.TradeDate
				run.pos.Status = models.PositionClosed
				run.pos.CloseDate = &closeDate
				finish(run)
				delete(open, t.Ticker)
			}
		}
	}

	// Runs still open at end of file stay ACTIVE.
	for _, run := range open {
		finish(run)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].ID < positions[j].ID })
	return positions, links
}
