// src/database/schema.go
package database

import "database/sql"

// JournalMigrations is the ordered schema history of the trading journal.
// New entries are appended with the next version number; existing entries are
// never edited once released.
func JournalMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "initial_schema",
			Apply:   createInitialSchema,
		},
		{
			Version: 2,
			Name:    "add_trade_broker_timestamps",
			Apply: func(tx *sql.Tx) error {
				if err := addColumnIfMissing(tx, "trades", "broker_date", "TEXT"); err != nil {
					return err
				}
				return addColumnIfMissing(tx, "trades", "broker_time", "TEXT")
			},
		},
		{
			Version: 3,
			Name:    "add_risk_tracking",
			Apply: func(tx *sql.Tx) error {
				if err := addColumnIfMissing(tx, "positions", "max_risk_amount", "TEXT"); err != nil {
					return err
				}
				return addColumnIfMissing(tx, "stop_losses", "input_mode", "TEXT NOT NULL DEFAULT 'percentage'")
			},
		},
		{
			Version: 4,
			Name:    "add_daily_plans",
			Apply: func(tx *sql.Tx) error {
				exists, err := tableExists(tx, "daily_plans")
				if err != nil || exists {
					return err
				}
				_, err = tx.Exec(`
					CREATE TABLE daily_plans (
						account_id       TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
						plan_date        TEXT NOT NULL,
						daily_risk_limit TEXT NOT NULL DEFAULT '0',
						watchlist        TEXT NOT NULL DEFAULT '[]',
						notes            TEXT NOT NULL DEFAULT '',
						checklist        TEXT NOT NULL DEFAULT '[]',
						PRIMARY KEY (account_id, plan_date)
					)`)
				return err
			},
			Rollback: func(tx *sql.Tx) error {
				_, err := tx.Exec("DROP TABLE IF EXISTS daily_plans")
				return err
			},
		},
		{
			Version: 5,
			Name:    "add_position_annotations",
			Apply: func(tx *sql.Tx) error {
				for _, col := range []struct{ name, def string }{
					{"setup_type", "TEXT"},
					{"entry_time", "TEXT"},
					{"rating", "INTEGER"},
					{"memo", "TEXT"},
				} {
					if err := addColumnIfMissing(tx, "positions", col.name, col.def); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}

func createInitialSchema(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id              TEXT PRIMARY KEY,
			name            TEXT NOT NULL,
			account_type    TEXT NOT NULL CHECK (account_type IN ('US', 'KR')),
			currency        TEXT NOT NULL CHECK (currency IN ('USD', 'KRW')),
			initial_balance TEXT NOT NULL DEFAULT '0',
			created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS trades (
			id         TEXT PRIMARY KEY,
			account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			ticker     TEXT NOT NULL,
			trade_type TEXT NOT NULL CHECK (trade_type IN ('BUY', 'SELL')),
			quantity   INTEGER NOT NULL CHECK (quantity > 0),
			price      TEXT NOT NULL,
			commission TEXT NOT NULL DEFAULT '0',
			trade_date TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_account ON trades(account_id)`,
		`CREATE TABLE IF NOT EXISTS positions (
			id            TEXT PRIMARY KEY,
			account_id    TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			ticker        TEXT NOT NULL,
			status        TEXT NOT NULL DEFAULT 'ACTIVE' CHECK (status IN ('ACTIVE', 'CLOSED')),
			open_date     TEXT NOT NULL,
			close_date    TEXT,
			avg_buy_price TEXT NOT NULL DEFAULT '0',
			total_shares  INTEGER NOT NULL DEFAULT 0,
			max_shares    INTEGER NOT NULL DEFAULT 0,
			realized_pnl  TEXT NOT NULL DEFAULT '0'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_account ON positions(account_id)`,
		`CREATE TABLE IF NOT EXISTS position_trades (
			position_id TEXT NOT NULL REFERENCES positions(id) ON DELETE CASCADE,
			trade_id    TEXT NOT NULL REFERENCES trades(id) ON DELETE CASCADE,
			PRIMARY KEY (position_id, trade_id)
		)`,
		`CREATE TABLE IF NOT EXISTS stop_losses (
			id              TEXT PRIMARY KEY,
			position_id     TEXT NOT NULL REFERENCES positions(id) ON DELETE CASCADE,
			stop_price      TEXT NOT NULL,
			stop_quantity   INTEGER NOT NULL DEFAULT 0,
			stop_percentage TEXT NOT NULL DEFAULT '0',
			is_active       INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stop_losses_position ON stop_losses(position_id)`,
		`CREATE TABLE IF NOT EXISTS equity_curve (
			account_id  TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			date        TEXT NOT NULL,
			total_value TEXT NOT NULL DEFAULT '0',
			cash_value  TEXT NOT NULL DEFAULT '0',
			stock_value TEXT NOT NULL DEFAULT '0',
			daily_pnl   TEXT NOT NULL DEFAULT '0',
			PRIMARY KEY (account_id, date)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
