// src/importer/importer.go
//
// Merges an externally parsed batch of trades, positions, links and equity
// points into one account's ledger. The whole batch is a single write-queue
// task, so it is one transaction: row-level duplicates are expected and
// counted, anything unrecognized rolls everything back.
package importer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/BanziSeo/habiOS-sub002/src/database"
	"github.com/BanziSeo/habiOS-sub002/src/logger"
	"github.com/BanziSeo/habiOS-sub002/src/models"
	"github.com/BanziSeo/habiOS-sub002/src/store"
	"github.com/BanziSeo/habiOS-sub002/src/writequeue"
)

// ErrInvalidMode is returned for a mode outside REPLACE/APPEND/FULL.
var ErrInvalidMode = errors.New("invalid import mode")

// Engine drives batched imports through the write queue. The invalidate hook
// runs after a committed batch so cached reports for the account are rebuilt;
// nil is allowed.
type Engine struct {
	queue      *writequeue.Queue
	invalidate func(accountID string)
}

func New(queue *writequeue.Queue, invalidate func(accountID string)) *Engine {
	return &Engine{queue: queue, invalidate: invalidate}
}

// Import reconciles the batch under its mode. On any unrecognized failure the
// transaction rolls back and every count reports zero, even for sub-steps
// that had succeeded inside the doomed transaction.
func (e *Engine) Import(ctx context.Context, batch models.ImportBatch) (models.ImportResult, error) {
	switch batch.Mode {
	case models.ImportModeReplace, models.ImportModeAppend, models.ImportModeFull:
	default:
		return models.ImportResult{Message: fmt.Sprintf("unknown import mode %q", batch.Mode)},
			fmt.Errorf("%w: %q", ErrInvalidMode, batch.Mode)
	}
	if batch.AccountID == "" {
		return models.ImportResult{Message: "import batch is missing an account id"},
			errors.New("import batch missing accountId")
	}

	var counts models.ImportResult
	err := e.queue.Submit(ctx, "import:"+batch.AccountID, func(tx *sql.Tx) error {
		return runBatch(tx, batch, &counts)
	})
	if err != nil {
		logger.L.Error("Import batch failed, transaction rolled back",
			"accountID", batch.AccountID, "mode", batch.Mode, "error", err)
		return models.ImportResult{Success: false, Message: "import failed; no changes were applied"}, err
	}

	if e.invalidate != nil {
		e.invalidate(batch.AccountID)
	}
	counts.Success = true
	logger.L.Info("Import batch committed",
		"accountID", batch.AccountID, "mode", batch.Mode,
		"savedTrades", counts.SavedTradesCount, "skippedTrades", counts.SkippedTradesCount,
		"savedPositions", counts.SavedPositionsCount, "skippedPositions", counts.SkippedPositionsCount)
	return counts, nil
}

func runBatch(tx store.DBTX, batch models.ImportBatch, counts *models.ImportResult) error {
	replace := batch.Mode != models.ImportModeAppend

	// REPLACE/FULL wipes the account's ledger in dependency order before any
	// insert: links -> stop losses -> trades -> positions -> equity points.
	if replace {
		if err := store.DeleteAccountLedger(tx, batch.AccountID); err != nil {
			return err
		}
	}

	if err := reconcilePositions(tx, batch, replace, counts); err != nil {
		return err
	}
	if err := reconcileTrades(tx, batch, counts); err != nil {
		return err
	}
	// Links run after both parents are in the pending transaction so the
	// referential checks see them.
	if err := reconcileLinks(tx, batch, replace); err != nil {
		return err
	}
	return reconcileEquity(tx, batch, counts)
}

func reconcilePositions(tx store.DBTX, batch models.ImportBatch, replace bool, counts *models.ImportResult) error {
	for _, incoming := range batch.Positions {
		if incoming.AccountID == "" {
			incoming.AccountID = batch.AccountID
		}

		if !replace {
			existing, err := store.GetPosition(tx, incoming.ID)
			switch {
			case err == nil:
				if err := mergePosition(tx, existing, incoming); err != nil {
					return err
				}
				counts.SkippedPositionsCount++
				continue
			case errors.Is(err, store.ErrNotFound):
				// fall through to insert
			default:
				return err
			}
		}

		if err := store.InsertPosition(tx, incoming); err != nil {
			if database.IsUniqueViolation(err) {
				counts.SkippedPositionsCount++
				continue
			}
			return fmt.Errorf("inserting position %s: %w", incoming.ID, err)
		}
		counts.SavedPositionsCount++
	}
	return nil
}

// mergePosition applies APPEND semantics to a position present on both sides:
// mutable fields follow the incoming row, maxShares never shrinks, and
// closeDate is only set when not already set.
func mergePosition(tx store.DBTX, existing, incoming models.Position) error {
	maxShares := existing.MaxShares
	if incoming.MaxShares > maxShares {
		maxShares = incoming.MaxShares
	}
	// A malformed source row may claim more open shares than its own
	// high-water mark; the merged row must still hold totalShares <= maxShares.
	if incoming.TotalShares > maxShares {
		maxShares = incoming.TotalShares
	}
	patch := map[string]any{
		"status":      incoming.Status,
		"totalShares": incoming.TotalShares,
		"maxShares":   maxShares,
		"realizedPnl": incoming.RealizedPnl,
		"avgBuyPrice": incoming.AvgBuyPrice,
	}
	if existing.CloseDate == nil && incoming.CloseDate != nil {
		patch["closeDate"] = incoming.CloseDate
	}
	return store.UpdatePositionFields(tx, existing.ID, patch)
}

func reconcileTrades(tx store.DBTX, batch models.ImportBatch, counts *models.ImportResult) error {
	for _, t := range batch.Trades {
		if t.AccountID == "" {
			t.AccountID = batch.AccountID
		}
		if err := store.InsertTrade(tx, t); err != nil {
			// An existing trade is never overwritten; the duplicate is
			// counted and the batch moves on.
			if database.IsUniqueViolation(err) {
				counts.SkippedTradesCount++
				continue
			}
			return fmt.Errorf("inserting trade %s: %w", t.ID, err)
		}
		counts.SavedTradesCount++
	}
	return nil
}

func reconcileLinks(tx store.DBTX, batch models.ImportBatch, replace bool) error {
	for positionID, tradeIDs := range batch.PositionTradeMap {
		if _, err := store.GetPosition(tx, positionID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				logger.L.Debug("Skipping links for unknown position", "positionID", positionID)
				continue
			}
			return err
		}

		// Under APPEND the position's composition may have been recalculated
		// by the source, so its links are rebuilt from scratch.
		if !replace {
			if err := store.DeleteLinksForPosition(tx, positionID); err != nil {
				return err
			}
		}

		for _, tradeID := range tradeIDs {
			known, err := store.TradeExists(tx, tradeID)
			if err != nil {
				return err
			}
			if !known {
				logger.L.Debug("Skipping link to unknown trade", "positionID", positionID, "tradeID", tradeID)
				continue
			}
			if replace {
				exists, err := store.LinkExists(tx, positionID, tradeID)
				if err != nil {
					return err
				}
				if exists {
					continue
				}
			}
			if err := store.InsertPositionTrade(tx, positionID, tradeID); err != nil {
				if database.IsUniqueViolation(err) {
					continue
				}
				return fmt.Errorf("linking position %s to trade %s: %w", positionID, tradeID, err)
			}
		}
	}
	return nil
}

func reconcileEquity(tx store.DBTX, batch models.ImportBatch, counts *models.ImportResult) error {
	for _, p := range batch.EquityCurveData {
		if p.AccountID == "" {
			p.AccountID = batch.AccountID
		}
		if err := store.InsertEquityPoint(tx, p); err != nil {
			// Already have this day's data; keep it and continue.
			if database.IsUniqueViolation(err) {
				counts.SkippedEquityPoints++
				continue
			}
			return fmt.Errorf("inserting equity point %s/%s: %w", p.AccountID, p.Date, err)
		}
		counts.SavedEquityPoints++
	}
	return nil
}
