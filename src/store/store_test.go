// src/store/store_test.go
package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BanziSeo/habiOS-sub002/src/database"
	"github.com/BanziSeo/habiOS-sub002/src/logger"
	"github.com/BanziSeo/habiOS-sub002/src/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

func openTestDB(t *testing.T) *database.Handle {
	t.Helper()
	h, err := database.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(h.DB(), database.JournalMigrations()))
	t.Cleanup(func() { h.Close() })
	return h
}

func seedAccount(t *testing.T, h *database.Handle, id string) models.Account {
	t.Helper()
	a := models.Account{
		ID:             id,
		Name:           "Main",
		AccountType:    models.AccountTypeUS,
		Currency:       models.CurrencyUSD,
		InitialBalance: decimal.RequireFromString("10000.50"),
	}
	require.NoError(t, InsertAccount(h.DB(), a))
	return a
}

func seedPosition(t *testing.T, h *database.Handle, accountID, ticker string) models.Position {
	t.Helper()
	p := models.Position{
		ID:          models.PositionID(time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC), ticker),
		AccountID:   accountID,
		Ticker:      ticker,
		Status:      models.PositionActive,
		OpenDate:    time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		AvgBuyPrice: decimal.RequireFromString("151.25"),
		TotalShares: 40,
		MaxShares:   60,
		RealizedPnl: decimal.RequireFromString("-12.40"),
	}
	require.NoError(t, InsertPosition(h.DB(), p))
	return p
}

func TestAccountRoundTrip(t *testing.T) {
	h := openTestDB(t)
	want := seedAccount(t, h, "acct-1")

	got, err := GetAccount(h.DB(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Name, got.Name)
	assert.Equal(t, want.AccountType, got.AccountType)
	assert.True(t, want.InitialBalance.Equal(got.InitialBalance),
		"decimal must survive storage exactly: want %s got %s", want.InitialBalance, got.InitialBalance)

	_, err = GetAccount(h.DB(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTradeRoundTripCoercesLegacyActions(t *testing.T) {
	h := openTestDB(t)
	seedAccount(t, h, "acct-1")

	trade := models.Trade{
		ID:         "t-1",
		AccountID:  "acct-1",
		Ticker:     "TSLA",
		TradeType:  "SHORT", // legacy action
		Quantity:   5,
		Price:      decimal.RequireFromString("242.17"),
		Commission: decimal.RequireFromString("0.35"),
		TradeDate:  time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
		BrokerDate: "2025-04-01",
		BrokerTime: "10:15:00",
	}
	require.NoError(t, InsertTrade(h.DB(), trade))

	got, err := GetTrade(h.DB(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, models.TradeTypeSell, got.TradeType)
	assert.True(t, trade.Price.Equal(got.Price))
	assert.Equal(t, trade.TradeDate, got.TradeDate)
	assert.Equal(t, "10:15:00", got.BrokerTime)
}

func TestPositionRoundTripNullables(t *testing.T) {
	h := openTestDB(t)
	seedAccount(t, h, "acct-1")
	seedPosition(t, h, "acct-1", "AAPL")

	got, err := GetPosition(h.DB(), models.PositionID(time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC), "AAPL"))
	require.NoError(t, err)
	assert.Nil(t, got.CloseDate, "open position must have no close date")
	assert.Nil(t, got.MaxRiskAmount, "unset risk mark must stay nil, not zero")
	assert.EqualValues(t, 40, got.TotalShares)
	assert.EqualValues(t, 60, got.MaxShares)

	closeDate := time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC)
	risk := decimal.RequireFromString("120.00")
	require.NoError(t, UpdatePositionFields(h.DB(), got.ID, map[string]any{
		"status":        models.PositionClosed,
		"closeDate":     &closeDate,
		"maxRiskAmount": &risk,
	}))

	got, err = GetPosition(h.DB(), got.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PositionClosed, got.Status)
	require.NotNil(t, got.CloseDate)
	assert.Equal(t, closeDate, *got.CloseDate)
	require.NotNil(t, got.MaxRiskAmount)
	assert.True(t, risk.Equal(*got.MaxRiskAmount))
}

func TestLegacyRowShapeBackfillsMaxShares(t *testing.T) {
	h := openTestDB(t)
	seedAccount(t, h, "acct-1")
	p := seedPosition(t, h, "acct-1", "NVDA")

	// A legacy journal exposes the open quantity as "shares" and has no
	// high-water column at all.
	rows, err := h.DB().Query(`
		SELECT id, account_id, ticker, status, open_date, close_date,
		       avg_buy_price, total_shares AS shares, realized_pnl
		FROM positions WHERE id = ?`, p.ID)
	require.NoError(t, err)
	defer rows.Close()

	tagged, err := ReadRows(rows)
	require.NoError(t, err)
	require.Len(t, tagged, 1)
	assert.Equal(t, ShapeLegacy, tagged[0].Shape)

	got, err := PositionFromRow(tagged[0])
	require.NoError(t, err)
	assert.EqualValues(t, 40, got.TotalShares)
	assert.EqualValues(t, 40, got.MaxShares, "legacy rows backfill the high-water mark from the open quantity")
}

func TestCurrentRowShapeTag(t *testing.T) {
	h := openTestDB(t)
	seedAccount(t, h, "acct-1")
	p := seedPosition(t, h, "acct-1", "MSFT")

	rows, err := h.DB().Query("SELECT * FROM positions WHERE id = ?", p.ID)
	require.NoError(t, err)
	defer rows.Close()

	tagged, err := ReadRows(rows)
	require.NoError(t, err)
	require.Len(t, tagged, 1)
	assert.Equal(t, ShapeCurrent, tagged[0].Shape)
}

func TestUpdateBuilderWhitelist(t *testing.T) {
	// Keys and unknown fields are dropped silently.
	query, args, err := NewUpdate("trades").
		Set("id", "evil").
		Set("accountId", "evil").
		Set("nonsense", 1).
		Set("price", decimal.RequireFromString("9.99")).
		Build("id", "t-1")
	require.NoError(t, err)
	assert.Equal(t, "UPDATE trades SET price = ? WHERE id = ?", query)
	assert.Equal(t, []any{"9.99", "t-1"}, args)
}

func TestUpdateBuilderRefusesEmptyPatch(t *testing.T) {
	_, _, err := NewUpdate("positions").
		Set("id", "evil").
		Set("unknownField", 42).
		Build("id", "p-1")
	require.ErrorIs(t, err, ErrNoValidFields)
}

func TestUpdateBuilderPoisonedByBadValue(t *testing.T) {
	_, _, err := NewUpdate("trades").
		Set("price", struct{}{}).
		Set("ticker", "AAPL").
		Build("id", "t-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoValidFields)
}

func TestUpdateBuilderDeterministicOrder(t *testing.T) {
	patch := map[string]any{
		"ticker":   "AAPL",
		"quantity": 10,
		"price":    "3.50",
	}
	query1, _, err := NewUpdate("trades").SetAll(patch).Build("id", "t-1")
	require.NoError(t, err)
	query2, _, err := NewUpdate("trades").SetAll(patch).Build("id", "t-1")
	require.NoError(t, err)
	assert.Equal(t, query1, query2)
}

func TestEquityInsertConflictVersusUpsert(t *testing.T) {
	h := openTestDB(t)
	seedAccount(t, h, "acct-1")

	point := models.EquityPoint{
		AccountID:  "acct-1",
		Date:       "2025-06-02",
		TotalValue: decimal.RequireFromString("10500"),
		CashValue:  decimal.RequireFromString("2500"),
		StockValue: decimal.RequireFromString("8000"),
		DailyPnl:   decimal.RequireFromString("150"),
	}
	require.NoError(t, InsertEquityPoint(h.DB(), point))

	// Plain insert surfaces the conflict.
	err := InsertEquityPoint(h.DB(), point)
	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err))

	// Upsert overwrites the day's values.
	point.TotalValue = decimal.RequireFromString("11000")
	require.NoError(t, UpsertEquityPoint(h.DB(), point))

	points, err := ListEquityPoints(h.DB(), "acct-1")
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.True(t, points[0].TotalValue.Equal(decimal.RequireFromString("11000")))
}

func TestDailyPlanRoundTrip(t *testing.T) {
	h := openTestDB(t)
	seedAccount(t, h, "acct-1")

	plan := models.DailyPlan{
		AccountID:      "acct-1",
		PlanDate:       "2025-06-02",
		DailyRiskLimit: decimal.RequireFromString("200"),
		Watchlist:      []string{"AAPL", "NVDA"},
		Notes:          "fade the open",
		Checklist:      []models.ChecklistItem{{Text: "check futures", Checked: true}},
	}
	require.NoError(t, UpsertDailyPlan(h.DB(), plan))

	got, err := GetDailyPlan(h.DB(), "acct-1", "2025-06-02")
	require.NoError(t, err)
	assert.Equal(t, plan.Watchlist, got.Watchlist)
	assert.Equal(t, plan.Checklist, got.Checklist)
	assert.True(t, plan.DailyRiskLimit.Equal(got.DailyRiskLimit))

	// Same day saves replace, never duplicate.
	plan.Notes = "sit out the first 15m"
	require.NoError(t, UpsertDailyPlan(h.DB(), plan))
	got, err = GetDailyPlan(h.DB(), "acct-1", "2025-06-02")
	require.NoError(t, err)
	assert.Equal(t, "sit out the first 15m", got.Notes)
}

func TestStopLossEmptyInputModeDefaults(t *testing.T) {
	h := openTestDB(t)
	seedAccount(t, h, "acct-1")
	p := seedPosition(t, h, "acct-1", "AMD")

	s := models.StopLoss{
		ID:             "sl-1",
		PositionID:     p.ID,
		StopPrice:      decimal.RequireFromString("140"),
		StopQuantity:   40,
		StopPercentage: decimal.RequireFromString("100"),
		IsActive:       true,
	}
	require.NoError(t, InsertStopLoss(h.DB(), s))

	stops, err := ListStopLossesByPosition(h.DB(), p.ID, true)
	require.NoError(t, err)
	require.Len(t, stops, 1)
	assert.Equal(t, models.StopInputPercentage, stops[0].InputMode)
	assert.True(t, stops[0].IsActive)
}

func TestDeleteAccountLedgerLeavesAccount(t *testing.T) {
	h := openTestDB(t)
	seedAccount(t, h, "acct-1")
	p := seedPosition(t, h, "acct-1", "AAPL")

	trade := models.Trade{
		ID: "t-1", AccountID: "acct-1", Ticker: "AAPL", TradeType: models.TradeTypeBuy,
		Quantity: 10, Price: decimal.RequireFromString("150"),
		Commission: decimal.Zero, TradeDate: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, InsertTrade(h.DB(), trade))
	require.NoError(t, InsertPositionTrade(h.DB(), p.ID, trade.ID))
	require.NoError(t, InsertEquityPoint(h.DB(), models.EquityPoint{
		AccountID: "acct-1", Date: "2025-03-10",
		TotalValue: decimal.Zero, CashValue: decimal.Zero, StockValue: decimal.Zero, DailyPnl: decimal.Zero,
	}))

	require.NoError(t, DeleteAccountLedger(h.DB(), "acct-1"))

	trades, err := ListTradesByAccount(h.DB(), "acct-1")
	require.NoError(t, err)
	assert.Empty(t, trades)
	positions, err := ListPositionsByAccount(h.DB(), "acct-1")
	require.NoError(t, err)
	assert.Empty(t, positions)
	points, err := ListEquityPoints(h.DB(), "acct-1")
	require.NoError(t, err)
	assert.Empty(t, points)

	_, err = GetAccount(h.DB(), "acct-1")
	assert.NoError(t, err, "the account row itself survives a ledger wipe")
}
