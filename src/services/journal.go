// src/services/journal.go
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/BanziSeo/habiOS-sub002/src/database"
	"github.com/BanziSeo/habiOS-sub002/src/logger"
	"github.com/BanziSeo/habiOS-sub002/src/models"
	"github.com/BanziSeo/habiOS-sub002/src/store"
	"github.com/BanziSeo/habiOS-sub002/src/validation"
	"github.com/BanziSeo/habiOS-sub002/src/writequeue"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
)

const (
	ckDashboardMetrics = "dashboard_metrics_%s"
	ckEquityCurve      = "equity_curve_%s"

	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrPositionNotFound = errors.New("position not found")
	ErrDuplicateTrade   = errors.New("trade already exists")
)

// JournalService is the single entry point for journal mutations and reads.
// Mutations go through the write queue; reads hit the handle directly.
type JournalService struct {
	handle      *database.Handle
	queue       *writequeue.Queue
	reportCache *cache.Cache
}

func NewJournalService(handle *database.Handle, queue *writequeue.Queue, reportCache *cache.Cache) *JournalService {
	return &JournalService{handle: handle, queue: queue, reportCache: reportCache}
}

// --- accounts ---

func (s *JournalService) CreateAccount(ctx context.Context, a models.Account) (models.Account, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.Name = validation.SanitizeText(a.Name)
	if a.Name == "" {
		return models.Account{}, errors.New("account name is required")
	}
	switch a.AccountType {
	case models.AccountTypeUS, models.AccountTypeKR:
	default:
		return models.Account{}, fmt.Errorf("unknown account type %q", a.AccountType)
	}
	err := s.queue.Submit(ctx, "account:create", func(tx *sql.Tx) error {
		return store.InsertAccount(tx, a)
	})
	if err != nil {
		return models.Account{}, err
	}
	return a, nil
}

func (s *JournalService) ListAccounts() ([]models.Account, error) {
	return store.ListAccounts(s.handle.DB())
}

func (s *JournalService) GetAccount(id string) (models.Account, error) {
	a, err := store.GetAccount(s.handle.DB(), id)
	if errors.Is(err, store.ErrNotFound) {
		return models.Account{}, ErrAccountNotFound
	}
	return a, err
}

// DeleteAccount removes the account and everything it owns.
func (s *JournalService) DeleteAccount(ctx context.Context, id string) error {
	err := s.queue.Submit(ctx, "account:delete", func(tx *sql.Tx) error {
		// Cascades cover children, but the explicit ledger wipe keeps the
		// delete order deterministic for foreign-key enforcement.
		if err := store.DeleteAccountLedger(tx, id); err != nil {
			return err
		}
		if _, err := tx.Exec("DELETE FROM daily_plans WHERE account_id = ?", id); err != nil {
			return err
		}
		return store.DeleteAccount(tx, id)
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrAccountNotFound
	}
	if err == nil {
		s.InvalidateAccountCache(id)
	}
	return err
}

// --- trades ---

// AddTrade records a fill and folds it into its position in one transaction:
// insert, link, then recompute the position's aggregates. A BUY moves the
// average buy price and the share high-water mark; a SELL realizes P&L
// against the average and closes the position when it empties.
func (s *JournalService) AddTrade(ctx context.Context, t models.Trade, positionID string) (models.Trade, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Ticker = validation.SanitizeTicker(t.Ticker)
	if t.Ticker == "" {
		return models.Trade{}, errors.New("ticker is required")
	}
	if t.Quantity <= 0 {
		return models.Trade{}, errors.New("quantity must be positive")
	}
	if t.Price.IsNegative() || t.Commission.IsNegative() {
		return models.Trade{}, errors.New("price and commission must not be negative")
	}

	err := s.queue.Submit(ctx, "trade:add", func(tx *sql.Tx) error {
		if err := store.InsertTrade(tx, t); err != nil {
			if database.IsUniqueViolation(err) {
				return ErrDuplicateTrade
			}
			return err
		}
		if positionID == "" {
			return nil
		}
		pos, err := store.GetPosition(tx, positionID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrPositionNotFound
			}
			return err
		}
		if err := store.InsertPositionTrade(tx, positionID, t.ID); err != nil {
			return err
		}
		return applyTradeToPosition(tx, pos, t)
	})
	if err != nil {
		return models.Trade{}, err
	}
	s.InvalidateAccountCache(t.AccountID)
	return t, nil
}

// applyTradeToPosition folds one fill into the position row.
func applyTradeToPosition(tx store.DBTX, pos models.Position, t models.Trade) error {
	patch := map[string]any{}
	qty := decimal.NewFromInt(t.Quantity)

	switch coerced := t.TradeType; coerced {
	case models.TradeTypeBuy:
		oldShares := decimal.NewFromInt(pos.TotalShares)
		newTotal := pos.TotalShares + t.Quantity
		// Weighted average; commissions stay out of the basis.
		cost := pos.AvgBuyPrice.Mul(oldShares).Add(t.Price.Mul(qty))
		patch["avgBuyPrice"] = cost.Div(decimal.NewFromInt(newTotal))
		patch["totalShares"] = newTotal
		if newTotal > pos.MaxShares {
			patch["maxShares"] = newTotal
		}
	default: // SELL (legacy SHORT/COVER already coerced)
		if t.Quantity > pos.TotalShares {
			return fmt.Errorf("cannot sell %d shares from position %s holding %d", t.Quantity, pos.ID, pos.TotalShares)
		}
		realized := t.Price.Sub(pos.AvgBuyPrice).Mul(qty).Sub(t.Commission)
		patch["realizedPnl"] = pos.RealizedPnl.Add(realized)
		newTotal := pos.TotalShares - t.Quantity
		patch["totalShares"] = newTotal
		if newTotal == 0 {
			patch["status"] = models.PositionClosed
			patch["closeDate"] = t.TradeDate
		}
	}
	return store.UpdatePositionFields(tx, pos.ID, patch)
}

// AmendTrade applies a partial update to a trade. Only whitelisted fields
// survive; an empty surviving set is an error, never a silent no-op.
func (s *JournalService) AmendTrade(ctx context.Context, id string, patch map[string]any) error {
	var accountID string
	err := s.queue.Submit(ctx, "trade:amend", func(tx *sql.Tx) error {
		t, err := store.GetTrade(tx, id)
		if err != nil {
			return err
		}
		accountID = t.AccountID
		return store.UpdateTradeFields(tx, id, patch)
	})
	if err == nil {
		s.InvalidateAccountCache(accountID)
	}
	return err
}

// DeleteTrade removes a fill outright; its position links follow by cascade.
// Position aggregates are not recomputed here, that is the caller's call to
// make through UpdatePosition.
func (s *JournalService) DeleteTrade(ctx context.Context, id string) error {
	var accountID string
	err := s.queue.Submit(ctx, "trade:delete", func(tx *sql.Tx) error {
		t, err := store.GetTrade(tx, id)
		if err != nil {
			return err
		}
		accountID = t.AccountID
		return store.DeleteTrade(tx, id)
	})
	if err == nil {
		s.InvalidateAccountCache(accountID)
	}
	return err
}

func (s *JournalService) ListTrades(accountID string) ([]models.Trade, error) {
	return store.ListTradesByAccount(s.handle.DB(), accountID)
}

// --- positions ---

// OpenPosition creates a position from its first BUY fill.
func (s *JournalService) OpenPosition(ctx context.Context, accountID string, t models.Trade) (models.Position, error) {
	t.Ticker = validation.SanitizeTicker(t.Ticker)
	if t.TradeType != models.TradeTypeBuy {
		return models.Position{}, errors.New("a position opens with a BUY trade")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.AccountID = accountID

	pos := models.Position{
		ID:          models.PositionID(t.TradeDate, t.Ticker),
		AccountID:   accountID,
		Ticker:      t.Ticker,
		Status:      models.PositionActive,
		OpenDate:    t.TradeDate,
		AvgBuyPrice: t.Price,
		TotalShares: t.Quantity,
		MaxShares:   t.Quantity,
		RealizedPnl: decimal.Zero,
	}

	err := s.queue.Submit(ctx, "position:open", func(tx *sql.Tx) error {
		if err := store.InsertPosition(tx, pos); err != nil {
			return err
		}
		if err := store.InsertTrade(tx, t); err != nil {
			return err
		}
		return store.InsertPositionTrade(tx, pos.ID, t.ID)
	})
	if err != nil {
		return models.Position{}, err
	}
	s.InvalidateAccountCache(accountID)
	return pos, nil
}

// UpdatePosition applies a partial update; free-text annotations are
// sanitized before they reach the builder.
func (s *JournalService) UpdatePosition(ctx context.Context, id string, patch map[string]any) error {
	if memo, ok := patch["memo"].(string); ok {
		patch["memo"] = validation.SanitizeText(memo)
	}
	if setup, ok := patch["setupType"].(string); ok {
		patch["setupType"] = validation.SanitizeText(setup)
	}
	var accountID string
	err := s.queue.Submit(ctx, "position:update", func(tx *sql.Tx) error {
		pos, err := store.GetPosition(tx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrPositionNotFound
			}
			return err
		}
		accountID = pos.AccountID
		return store.UpdatePositionFields(tx, id, patch)
	})
	if err == nil {
		s.InvalidateAccountCache(accountID)
	}
	return err
}

// DeletePosition removes a position; links and stop levels follow by cascade.
// The fills themselves stay in the trade ledger.
func (s *JournalService) DeletePosition(ctx context.Context, id string) error {
	var accountID string
	err := s.queue.Submit(ctx, "position:delete", func(tx *sql.Tx) error {
		pos, err := store.GetPosition(tx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrPositionNotFound
			}
			return err
		}
		accountID = pos.AccountID
		return store.DeletePosition(tx, id)
	})
	if err == nil {
		s.InvalidateAccountCache(accountID)
	}
	return err
}

func (s *JournalService) GetPosition(id string) (models.Position, error) {
	p, err := store.GetPosition(s.handle.DB(), id)
	if errors.Is(err, store.ErrNotFound) {
		return models.Position{}, ErrPositionNotFound
	}
	return p, err
}

func (s *JournalService) ListPositions(accountID string) ([]models.Position, error) {
	return store.ListPositionsByAccount(s.handle.DB(), accountID)
}

// PositionTrades returns the fills linked to a position, oldest first.
func (s *JournalService) PositionTrades(positionID string) ([]models.Trade, error) {
	db := s.handle.DB()
	ids, err := store.ListTradeIDsForPosition(db, positionID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Trade, 0, len(ids))
	for _, id := range ids {
		t, err := store.GetTrade(db, id)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// --- daily plans ---

func (s *JournalService) SaveDailyPlan(ctx context.Context, plan models.DailyPlan) error {
	plan.Notes = validation.SanitizeText(plan.Notes)
	for i, ticker := range plan.Watchlist {
		plan.Watchlist[i] = validation.SanitizeTicker(ticker)
	}
	for i, item := range plan.Checklist {
		plan.Checklist[i].Text = validation.SanitizeText(item.Text)
	}
	err := s.queue.Submit(ctx, "plan:save", func(tx *sql.Tx) error {
		return store.UpsertDailyPlan(tx, plan)
	})
	return err
}

func (s *JournalService) GetDailyPlan(accountID, planDate string) (models.DailyPlan, error) {
	return store.GetDailyPlan(s.handle.DB(), accountID, planDate)
}

// --- cache ---

func (s *JournalService) InvalidateAccountCache(accountID string) {
	s.reportCache.Delete(fmt.Sprintf(ckDashboardMetrics, accountID))
	s.reportCache.Delete(fmt.Sprintf(ckEquityCurve, accountID))
}

func (s *JournalService) logSlowOp(name string, started time.Time) {
	if d := time.Since(started); d > time.Second {
		logger.L.Warn("Slow journal operation", "op", name, "duration", d)
	}
}
