// src/store/store.go
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/BanziSeo/habiOS-sub002/src/models"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx. Store functions take it so a
// logical operation composed of several calls flattens naturally into the one
// transaction the write queue hands out.
type DBTX interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// ErrNotFound is returned when a row lookup by key comes back empty.
var ErrNotFound = fmt.Errorf("record not found")

// --- accounts ---

func InsertAccount(q DBTX, a models.Account) error {
	_, err := q.Exec(`
		INSERT INTO accounts (id, name, account_type, currency, initial_balance)
		VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.AccountType, a.Currency, a.InitialBalance.String(),
	)
	if err != nil {
		return fmt.Errorf("inserting account %s: %w", a.ID, err)
	}
	return nil
}

func GetAccount(q DBTX, id string) (models.Account, error) {
	rows, err := q.Query("SELECT * FROM accounts WHERE id = ?", id)
	if err != nil {
		return models.Account{}, err
	}
	defer rows.Close()
	tagged, err := ReadRows(rows)
	if err != nil {
		return models.Account{}, err
	}
	if len(tagged) == 0 {
		return models.Account{}, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	return AccountFromRow(tagged[0])
}

func ListAccounts(q DBTX) ([]models.Account, error) {
	rows, err := q.Query("SELECT * FROM accounts ORDER BY created_at ASC, id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tagged, err := ReadRows(rows)
	if err != nil {
		return nil, err
	}
	out := make([]models.Account, 0, len(tagged))
	for _, r := range tagged {
		a, err := AccountFromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// DeleteAccount removes the account; trades, positions, links, stop losses,
// plans and equity points follow by FK cascade.
func DeleteAccount(q DBTX, id string) error {
	res, err := q.Exec("DELETE FROM accounts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting account %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- trades ---

func InsertTrade(q DBTX, t models.Trade) error {
	_, err := q.Exec(`
		INSERT INTO trades (id, account_id, ticker, trade_type, quantity, price, commission, trade_date, broker_date, broker_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.AccountID, t.Ticker, coerceTradeType(t.TradeType), t.Quantity,
		t.Price.String(), t.Commission.String(), t.TradeDate.Format(dateLayout),
		nullableText(t.BrokerDate), nullableText(t.BrokerTime),
	)
	return err
}

func GetTrade(q DBTX, id string) (models.Trade, error) {
	rows, err := q.Query("SELECT * FROM trades WHERE id = ?", id)
	if err != nil {
		return models.Trade{}, err
	}
	defer rows.Close()
	tagged, err := ReadRows(rows)
	if err != nil {
		return models.Trade{}, err
	}
	if len(tagged) == 0 {
		return models.Trade{}, fmt.Errorf("trade %s: %w", id, ErrNotFound)
	}
	return TradeFromRow(tagged[0])
}

func TradeExists(q DBTX, id string) (bool, error) {
	var one int
	err := q.QueryRow("SELECT 1 FROM trades WHERE id = ?", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func ListTradesByAccount(q DBTX, accountID string) ([]models.Trade, error) {
	rows, err := q.Query("SELECT * FROM trades WHERE account_id = ? ORDER BY trade_date ASC, id ASC", accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tagged, err := ReadRows(rows)
	if err != nil {
		return nil, err
	}
	out := make([]models.Trade, 0, len(tagged))
	for _, r := range tagged {
		t, err := TradeFromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func UpdateTradeFields(q DBTX, id string, patch map[string]any) error {
	query, args, err := NewUpdate("trades").SetAll(patch).Build("id", id)
	if err != nil {
		return err
	}
	_, err = q.Exec(query, args...)
	return err
}

func DeleteTrade(q DBTX, id string) error {
	_, err := q.Exec("DELETE FROM trades WHERE id = ?", id)
	return err
}

// --- positions ---

func InsertPosition(q DBTX, p models.Position) error {
	_, err := q.Exec(`
		INSERT INTO positions (id, account_id, ticker, status, open_date, close_date,
			avg_buy_price, total_shares, max_shares, realized_pnl, max_risk_amount,
			setup_type, entry_time, rating, memo)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.AccountID, p.Ticker, p.Status, p.OpenDate.Format(dateLayout),
		nullableDate(p.CloseDate), p.AvgBuyPrice.String(), p.TotalShares, p.MaxShares,
		p.RealizedPnl.String(), nullableDecimal(p.MaxRiskAmount),
		nullableText(p.SetupType), nullableText(p.EntryTime), p.Rating, nullableText(p.Memo),
	)
	return err
}

func GetPosition(q DBTX, id string) (models.Position, error) {
	rows, err := q.Query("SELECT * FROM positions WHERE id = ?", id)
	if err != nil {
		return models.Position{}, err
	}
	defer rows.Close()
	tagged, err := ReadRows(rows)
	if err != nil {
		return models.Position{}, err
	}
	if len(tagged) == 0 {
		return models.Position{}, fmt.Errorf("position %s: %w", id, ErrNotFound)
	}
	return PositionFromRow(tagged[0])
}

func ListPositionsByAccount(q DBTX, accountID string) ([]models.Position, error) {
	rows, err := q.Query("SELECT * FROM positions WHERE account_id = ? ORDER BY open_date ASC, id ASC", accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tagged, err := ReadRows(rows)
	if err != nil {
		return nil, err
	}
	out := make([]models.Position, 0, len(tagged))
	for _, r := range tagged {
		p, err := PositionFromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func UpdatePositionFields(q DBTX, id string, patch map[string]any) error {
	query, args, err := NewUpdate("positions").SetAll(patch).Build("id", id)
	if err != nil {
		return err
	}
	_, err = q.Exec(query, args...)
	return err
}

func DeletePosition(q DBTX, id string) error {
	_, err := q.Exec("DELETE FROM positions WHERE id = ?", id)
	return err
}

// --- position_trades links ---

func InsertPositionTrade(q DBTX, positionID, tradeID string) error {
	_, err := q.Exec("INSERT INTO position_trades (position_id, trade_id) VALUES (?, ?)", positionID, tradeID)
	return err
}

func LinkExists(q DBTX, positionID, tradeID string) (bool, error) {
	var one int
	err := q.QueryRow("SELECT 1 FROM position_trades WHERE position_id = ? AND trade_id = ?", positionID, tradeID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func DeleteLinksForPosition(q DBTX, positionID string) error {
	_, err := q.Exec("DELETE FROM position_trades WHERE position_id = ?", positionID)
	return err
}

func ListTradeIDsForPosition(q DBTX, positionID string) ([]string, error) {
	rows, err := q.Query(`
		SELECT pt.trade_id FROM position_trades pt
		JOIN trades t ON t.id = pt.trade_id
		WHERE pt.position_id = ?
		ORDER BY t.trade_date ASC, t.id ASC`, positionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- stop losses ---

func InsertStopLoss(q DBTX, s models.StopLoss) error {
	active := 0
	if s.IsActive {
		active = 1
	}
	_, err := q.Exec(`
		INSERT INTO stop_losses (id, position_id, stop_price, stop_quantity, stop_percentage, input_mode, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.PositionID, s.StopPrice.String(), s.StopQuantity,
		s.StopPercentage.String(), s.InputMode, active,
	)
	return err
}

func ListStopLossesByPosition(q DBTX, positionID string, activeOnly bool) ([]models.StopLoss, error) {
	query := "SELECT * FROM stop_losses WHERE position_id = ?"
	if activeOnly {
		query += " AND is_active = 1"
	}
	rows, err := q.Query(query+" ORDER BY id ASC", positionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tagged, err := ReadRows(rows)
	if err != nil {
		return nil, err
	}
	out := make([]models.StopLoss, 0, len(tagged))
	for _, r := range tagged {
		s, err := StopLossFromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func UpdateStopLossFields(q DBTX, id string, patch map[string]any) error {
	query, args, err := NewUpdate("stop_losses").SetAll(patch).Build("id", id)
	if err != nil {
		return err
	}
	_, err = q.Exec(query, args...)
	return err
}

// AccountIDForStopLoss resolves which account a stop level belongs to, via
// its position.
func AccountIDForStopLoss(q DBTX, id string) (string, error) {
	var accountID string
	err := q.QueryRow(`
		SELECT p.account_id FROM stop_losses sl
		JOIN positions p ON p.id = sl.position_id
		WHERE sl.id = ?`, id).Scan(&accountID)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("stop loss %s: %w", id, ErrNotFound)
	}
	return accountID, err
}

// --- equity curve ---

// InsertEquityPoint inserts one day's point. Conflicts on (account_id, date)
// surface to the caller; the import path counts them as skips, the standalone
// upsert path never hits them.
func InsertEquityPoint(q DBTX, p models.EquityPoint) error {
	_, err := q.Exec(`
		INSERT INTO equity_curve (account_id, date, total_value, cash_value, stock_value, daily_pnl)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.AccountID, p.Date, p.TotalValue.String(), p.CashValue.String(),
		p.StockValue.String(), p.DailyPnl.String(),
	)
	return err
}

// UpsertEquityPoint overwrites the day's values if the key already exists.
func UpsertEquityPoint(q DBTX, p models.EquityPoint) error {
	_, err := q.Exec(`
		INSERT INTO equity_curve (account_id, date, total_value, cash_value, stock_value, daily_pnl)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id, date) DO UPDATE SET
			total_value = excluded.total_value,
			cash_value  = excluded.cash_value,
			stock_value = excluded.stock_value,
			daily_pnl   = excluded.daily_pnl`,
		p.AccountID, p.Date, p.TotalValue.String(), p.CashValue.String(),
		p.StockValue.String(), p.DailyPnl.String(),
	)
	return err
}

func ListEquityPoints(q DBTX, accountID string) ([]models.EquityPoint, error) {
	rows, err := q.Query("SELECT * FROM equity_curve WHERE account_id = ? ORDER BY date ASC", accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tagged, err := ReadRows(rows)
	if err != nil {
		return nil, err
	}
	out := make([]models.EquityPoint, 0, len(tagged))
	for _, r := range tagged {
		p, err := EquityPointFromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// --- daily plans ---

// UpsertDailyPlan saves the one plan an account has per day.
func UpsertDailyPlan(q DBTX, plan models.DailyPlan) error {
	watchlist, err := json.Marshal(plan.Watchlist)
	if err != nil {
		return fmt.Errorf("encoding watchlist: %w", err)
	}
	checklist, err := json.Marshal(plan.Checklist)
	if err != nil {
		return fmt.Errorf("encoding checklist: %w", err)
	}
	_, err = q.Exec(`
		INSERT INTO daily_plans (account_id, plan_date, daily_risk_limit, watchlist, notes, checklist)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id, plan_date) DO UPDATE SET
			daily_risk_limit = excluded.daily_risk_limit,
			watchlist        = excluded.watchlist,
			notes            = excluded.notes,
			checklist        = excluded.checklist`,
		plan.AccountID, plan.PlanDate, plan.DailyRiskLimit.String(),
		string(watchlist), plan.Notes, string(checklist),
	)
	return err
}

func GetDailyPlan(q DBTX, accountID, planDate string) (models.DailyPlan, error) {
	rows, err := q.Query("SELECT * FROM daily_plans WHERE account_id = ? AND plan_date = ?", accountID, planDate)
	if err != nil {
		return models.DailyPlan{}, err
	}
	defer rows.Close()
	tagged, err := ReadRows(rows)
	if err != nil {
		return models.DailyPlan{}, err
	}
	if len(tagged) == 0 {
		return models.DailyPlan{}, fmt.Errorf("daily plan %s/%s: %w", accountID, planDate, ErrNotFound)
	}
	return DailyPlanFromRow(tagged[0])
}

// --- account-scoped bulk deletes, in dependency order ---

// DeleteAccountLedger wipes the account's trades, positions, stop losses,
// links and equity points. Order matters: links and stop losses reference
// trades/positions, so they go first even though cascades would also cover
// them.
func DeleteAccountLedger(q DBTX, accountID string) error {
	stmts := []string{
		"DELETE FROM position_trades WHERE position_id IN (SELECT id FROM positions WHERE account_id = ?)",
		"DELETE FROM stop_losses WHERE position_id IN (SELECT id FROM positions WHERE account_id = ?)",
		"DELETE FROM trades WHERE account_id = ?",
		"DELETE FROM positions WHERE account_id = ?",
		"DELETE FROM equity_curve WHERE account_id = ?",
	}
	for _, stmt := range stmts {
		if _, err := q.Exec(stmt, accountID); err != nil {
			return fmt.Errorf("clearing account %s ledger: %w", accountID, err)
		}
	}
	return nil
}
