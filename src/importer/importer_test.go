// src/importer/importer_test.go
package importer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BanziSeo/habiOS-sub002/src/database"
	"github.com/BanziSeo/habiOS-sub002/src/logger"
	"github.com/BanziSeo/habiOS-sub002/src/models"
	"github.com/BanziSeo/habiOS-sub002/src/store"
	"github.com/BanziSeo/habiOS-sub002/src/writequeue"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

type fixture struct {
	handle *database.Handle
	queue  *writequeue.Queue
	engine *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	h, err := database.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(h.DB(), database.JournalMigrations()))
	q := writequeue.New(h, 100)
	t.Cleanup(func() {
		q.Shutdown(2 * time.Second)
		h.Close()
	})

	require.NoError(t, store.InsertAccount(h.DB(), models.Account{
		ID: "acct-1", Name: "Main", AccountType: models.AccountTypeUS,
		Currency: models.CurrencyUSD, InitialBalance: decimal.NewFromInt(10000),
	}))
	return &fixture{handle: h, queue: q, engine: New(q, nil)}
}

func mkTrade(id, ticker, tradeType string, qty int64, price string, day int) models.Trade {
	return models.Trade{
		ID: id, AccountID: "acct-1", Ticker: ticker, TradeType: tradeType,
		Quantity: qty, Price: decimal.RequireFromString(price),
		Commission: decimal.Zero,
		TradeDate:  time.Date(2025, 3, day, 0, 0, 0, 0, time.UTC),
	}
}

func mkPosition(id, ticker string, total, max int64) models.Position {
	return models.Position{
		ID: id, AccountID: "acct-1", Ticker: ticker, Status: models.PositionActive,
		OpenDate:    time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		AvgBuyPrice: decimal.RequireFromString("100"),
		TotalShares: total, MaxShares: max, RealizedPnl: decimal.Zero,
	}
}

func TestImportRejectsUnknownMode(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Import(context.Background(), models.ImportBatch{Mode: "UPSERT", AccountID: "acct-1"})
	require.ErrorIs(t, err, ErrInvalidMode)
}

func TestImportRequiresAccountID(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Import(context.Background(), models.ImportBatch{Mode: models.ImportModeAppend})
	require.Error(t, err)
}

func TestReplaceWipesExistingLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := models.ImportBatch{
		Mode: models.ImportModeReplace, AccountID: "acct-1",
		Trades:           []models.Trade{mkTrade("old-1", "AAPL", "BUY", 10, "100", 1)},
		Positions:        []models.Position{mkPosition("p-old", "AAPL", 10, 10)},
		PositionTradeMap: map[string][]string{"p-old": {"old-1"}},
	}
	res, err := f.engine.Import(ctx, first)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.SavedTradesCount)

	second := models.ImportBatch{
		Mode: models.ImportModeReplace, AccountID: "acct-1",
		Trades:    []models.Trade{mkTrade("new-1", "NVDA", "BUY", 5, "500", 2)},
		Positions: []models.Position{mkPosition("p-new", "NVDA", 5, 5)},
	}
	res, err = f.engine.Import(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, 1, res.SavedTradesCount)
	assert.Equal(t, 0, res.SkippedTradesCount, "a wiped ledger has nothing to collide with")

	trades, err := store.ListTradesByAccount(f.handle.DB(), "acct-1")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "new-1", trades[0].ID)

	positions, err := store.ListPositionsByAccount(f.handle.DB(), "acct-1")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "p-new", positions[0].ID)
}

func TestFullModeBehavesLikeReplace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Import(ctx, models.ImportBatch{
		Mode: models.ImportModeReplace, AccountID: "acct-1",
		Trades: []models.Trade{mkTrade("t-1", "AAPL", "BUY", 10, "100", 1)},
	})
	require.NoError(t, err)

	res, err := f.engine.Import(ctx, models.ImportBatch{
		Mode: models.ImportModeFull, AccountID: "acct-1",
		Trades: []models.Trade{mkTrade("t-2", "AAPL", "BUY", 10, "100", 2)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.SavedTradesCount)

	trades, err := store.ListTradesByAccount(f.handle.DB(), "acct-1")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "t-2", trades[0].ID)
}

func TestAppendSkipsDuplicateTrades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	batch := models.ImportBatch{
		Mode: models.ImportModeAppend, AccountID: "acct-1",
		Trades: []models.Trade{
			mkTrade("t-1", "AAPL", "BUY", 10, "100", 1),
			mkTrade("t-2", "AAPL", "SELL", 5, "110", 2),
		},
	}
	res, err := f.engine.Import(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, res.SavedTradesCount)

	batch.Trades = append(batch.Trades, mkTrade("t-3", "AAPL", "BUY", 3, "105", 3))
	res, err = f.engine.Import(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 1, res.SavedTradesCount)
	assert.Equal(t, 2, res.SkippedTradesCount)

	trades, err := store.ListTradesByAccount(f.handle.DB(), "acct-1")
	require.NoError(t, err)
	assert.Len(t, trades, 3)
}

func TestAppendMergeKeepsMaxSharesMonotonic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Import(ctx, models.ImportBatch{
		Mode: models.ImportModeAppend, AccountID: "acct-1",
		Positions: []models.Position{mkPosition("p-1", "AAPL", 50, 80)},
	})
	require.NoError(t, err)

	// The re-imported file reports a smaller historical peak.
	incoming := mkPosition("p-1", "AAPL", 20, 60)
	res, err := f.engine.Import(ctx, models.ImportBatch{
		Mode: models.ImportModeAppend, AccountID: "acct-1",
		Positions: []models.Position{incoming},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.SavedPositionsCount)
	assert.Equal(t, 1, res.SkippedPositionsCount)

	got, err := store.GetPosition(f.handle.DB(), "p-1")
	require.NoError(t, err)
	assert.EqualValues(t, 20, got.TotalShares, "open quantity follows the incoming row")
	assert.EqualValues(t, 80, got.MaxShares, "high-water mark never shrinks")
}

func TestAppendMergeClampsMaxSharesToOpenShares(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Import(ctx, models.ImportBatch{
		Mode: models.ImportModeAppend, AccountID: "acct-1",
		Positions: []models.Position{mkPosition("p-1", "AAPL", 50, 80)},
	})
	require.NoError(t, err)

	// A malformed source row claims more open shares than any high-water
	// mark on record; the merged row must still satisfy total <= max.
	incoming := mkPosition("p-1", "AAPL", 90, 10)
	_, err = f.engine.Import(ctx, models.ImportBatch{
		Mode: models.ImportModeAppend, AccountID: "acct-1",
		Positions: []models.Position{incoming},
	})
	require.NoError(t, err)

	got, err := store.GetPosition(f.handle.DB(), "p-1")
	require.NoError(t, err)
	assert.EqualValues(t, 90, got.TotalShares)
	assert.EqualValues(t, 90, got.MaxShares, "maxShares rises to cover the open quantity")
}

func TestAppendMergeSetsCloseDateOnlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	closed := mkPosition("p-1", "AAPL", 0, 80)
	closed.Status = models.PositionClosed
	firstClose := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	closed.CloseDate = &firstClose

	_, err := f.engine.Import(ctx, models.ImportBatch{
		Mode: models.ImportModeAppend, AccountID: "acct-1",
		Positions: []models.Position{closed},
	})
	require.NoError(t, err)

	laterClose := time.Date(2025, 5, 9, 0, 0, 0, 0, time.UTC)
	closed.CloseDate = &laterClose
	_, err = f.engine.Import(ctx, models.ImportBatch{
		Mode: models.ImportModeAppend, AccountID: "acct-1",
		Positions: []models.Position{closed},
	})
	require.NoError(t, err)

	got, err := store.GetPosition(f.handle.DB(), "p-1")
	require.NoError(t, err)
	require.NotNil(t, got.CloseDate)
	assert.Equal(t, firstClose, *got.CloseDate, "an established close date is never overwritten")
}

func TestAppendRebuildsLinksForKnownPositions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Import(ctx, models.ImportBatch{
		Mode: models.ImportModeAppend, AccountID: "acct-1",
		Trades:           []models.Trade{mkTrade("t-1", "AAPL", "BUY", 10, "100", 1)},
		Positions:        []models.Position{mkPosition("p-1", "AAPL", 10, 10)},
		PositionTradeMap: map[string][]string{"p-1": {"t-1"}},
	})
	require.NoError(t, err)

	// Re-import with a recalculated composition: t-1 plus a new fill.
	_, err = f.engine.Import(ctx, models.ImportBatch{
		Mode: models.ImportModeAppend, AccountID: "acct-1",
		Trades:    []models.Trade{mkTrade("t-1", "AAPL", "BUY", 10, "100", 1), mkTrade("t-2", "AAPL", "BUY", 5, "102", 2)},
		Positions: []models.Position{mkPosition("p-1", "AAPL", 15, 15)},
		PositionTradeMap: map[string][]string{
			"p-1":     {"t-1", "t-2"},
			"ghost-p": {"t-1"}, // unknown position: links silently skipped
		},
	})
	require.NoError(t, err)

	ids, err := store.ListTradeIDsForPosition(f.handle.DB(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"t-1", "t-2"}, ids)
}

func TestLinksToUnknownTradesAreSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.engine.Import(ctx, models.ImportBatch{
		Mode: models.ImportModeReplace, AccountID: "acct-1",
		Trades:    []models.Trade{mkTrade("t-1", "AAPL", "BUY", 10, "100", 1)},
		Positions: []models.Position{mkPosition("p-1", "AAPL", 10, 10)},
		// ghost-t never appears in the batch's trades; the link is dropped
		// instead of failing the whole batch on referential checks.
		PositionTradeMap: map[string][]string{"p-1": {"t-1", "ghost-t"}},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)

	ids, err := store.ListTradeIDsForPosition(f.handle.DB(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"t-1"}, ids)
}

func TestImportNotifiesAfterCommitOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var notified []string
	f.engine = New(f.queue, func(accountID string) { notified = append(notified, accountID) })

	_, err := f.engine.Import(ctx, models.ImportBatch{
		Mode: models.ImportModeReplace, AccountID: "acct-1",
		Trades: []models.Trade{mkTrade("t-1", "AAPL", "BUY", 10, "100", 1)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"acct-1"}, notified)

	bad := mkTrade("bad-1", "NVDA", "BUY", 10, "500", 2)
	bad.Quantity = -10
	_, err = f.engine.Import(ctx, models.ImportBatch{
		Mode: models.ImportModeReplace, AccountID: "acct-1",
		Trades: []models.Trade{bad},
	})
	require.Error(t, err)
	assert.Len(t, notified, 1, "a rolled-back batch leaves cached reports alone")
}

func TestImportFailureRollsBackEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seed := models.ImportBatch{
		Mode: models.ImportModeReplace, AccountID: "acct-1",
		Trades: []models.Trade{mkTrade("keep-1", "AAPL", "BUY", 10, "100", 1)},
	}
	_, err := f.engine.Import(ctx, seed)
	require.NoError(t, err)

	// A trade violating the quantity CHECK poisons the whole batch.
	bad := mkTrade("bad-1", "NVDA", "BUY", 10, "500", 2)
	bad.Quantity = -10
	res, err := f.engine.Import(ctx, models.ImportBatch{
		Mode: models.ImportModeReplace, AccountID: "acct-1",
		Trades:    []models.Trade{mkTrade("good-1", "NVDA", "BUY", 5, "500", 2), bad},
		Positions: []models.Position{mkPosition("p-1", "NVDA", 5, 5)},
	})
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Zero(t, res.SavedTradesCount, "a rolled-back import reports zero counts")
	assert.Zero(t, res.SavedPositionsCount)

	// The wipe that preceded the failed insert rolled back too.
	trades, err := store.ListTradesByAccount(f.handle.DB(), "acct-1")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "keep-1", trades[0].ID)
}

func TestImportEquityKeepsExistingDays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mkPoint := func(date, total string) models.EquityPoint {
		return models.EquityPoint{
			AccountID: "acct-1", Date: date,
			TotalValue: decimal.RequireFromString(total),
			CashValue:  decimal.Zero, StockValue: decimal.Zero, DailyPnl: decimal.Zero,
		}
	}

	res, err := f.engine.Import(ctx, models.ImportBatch{
		Mode: models.ImportModeAppend, AccountID: "acct-1",
		EquityCurveData: []models.EquityPoint{mkPoint("2025-03-01", "10000")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.SavedEquityPoints)

	res, err = f.engine.Import(ctx, models.ImportBatch{
		Mode: models.ImportModeAppend, AccountID: "acct-1",
		EquityCurveData: []models.EquityPoint{mkPoint("2025-03-01", "99999"), mkPoint("2025-03-02", "10100")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.SavedEquityPoints)
	assert.Equal(t, 1, res.SkippedEquityPoints)

	points, err := store.ListEquityPoints(f.handle.DB(), "acct-1")
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.True(t, points[0].TotalValue.Equal(decimal.RequireFromString("10000")),
		"an import never overwrites an existing day's equity")
}
