// src/services/risk.go
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/BanziSeo/habiOS-sub002/src/models"
	"github.com/BanziSeo/habiOS-sub002/src/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StopLossInput is one stop level as the user entered it. InputMode records
// which of quantity/percentage was typed; the other is derived against the
// position's current open shares.
type StopLossInput struct {
	StopPrice      decimal.Decimal `json:"stopPrice"`
	StopQuantity   int64           `json:"stopQuantity"`
	StopPercentage decimal.Decimal `json:"stopPercentage"`
	InputMode      string          `json:"inputMode"`
}

var hundred = decimal.NewFromInt(100)

// SaveStopLosses replaces a position's active stop set. Old rows are
// deactivated, not deleted, so risk history survives. After the new set is
// in place the position's risk high-water mark is re-evaluated.
//
// The mark only ratchets upward: a recomputed risk below the stored maximum
// leaves it untouched unless overrideRatchet is set. Historical risk
// reporting depends on this; do not turn it into a plain overwrite.
func (s *JournalService) SaveStopLosses(ctx context.Context, positionID string, inputs []StopLossInput, overrideRatchet bool) ([]models.StopLoss, error) {
	var saved []models.StopLoss
	var accountID string
	err := s.queue.Submit(ctx, "stoploss:save", func(tx *sql.Tx) error {
		pos, err := store.GetPosition(tx, positionID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrPositionNotFound
			}
			return err
		}
		accountID = pos.AccountID

		if _, err := tx.Exec("UPDATE stop_losses SET is_active = 0 WHERE position_id = ?", positionID); err != nil {
			return err
		}

		saved = saved[:0]
		for _, in := range inputs {
			sl, err := deriveStopLoss(pos, in)
			if err != nil {
				return err
			}
			sl.ID = uuid.NewString()
			sl.PositionID = positionID
			sl.IsActive = true
			if err := store.InsertStopLoss(tx, sl); err != nil {
				return err
			}
			saved = append(saved, sl)
		}

		return ratchetMaxRisk(tx, pos, saved, overrideRatchet)
	})
	if err != nil {
		return nil, err
	}
	s.InvalidateAccountCache(accountID)
	return saved, nil
}

// deriveStopLoss completes the field the user did not type.
func deriveStopLoss(pos models.Position, in StopLossInput) (models.StopLoss, error) {
	sl := models.StopLoss{
		StopPrice:      in.StopPrice,
		StopQuantity:   in.StopQuantity,
		StopPercentage: in.StopPercentage,
		InputMode:      in.InputMode,
	}
	totalShares := decimal.NewFromInt(pos.TotalShares)
	switch in.InputMode {
	case models.StopInputPercentage:
		sl.StopQuantity = in.StopPercentage.Mul(totalShares).Div(hundred).Round(0).IntPart()
	case models.StopInputQuantity:
		if pos.TotalShares > 0 {
			sl.StopPercentage = decimal.NewFromInt(in.StopQuantity).Mul(hundred).Div(totalShares).Round(2)
		} else {
			sl.StopPercentage = decimal.Zero
		}
	default:
		return models.StopLoss{}, fmt.Errorf("unknown stop-loss input mode %q", in.InputMode)
	}
	return sl, nil
}

// CurrentTotalRisk sums, over active stops, the loss taken if each level
// fills: (avg buy price - stop price) * stop quantity, floored at zero per
// stop (a stop above the average protects profit, it does not add risk).
func CurrentTotalRisk(pos models.Position, stops []models.StopLoss) decimal.Decimal {
	total := decimal.Zero
	for _, sl := range stops {
		if !sl.IsActive {
			continue
		}
		perShare := pos.AvgBuyPrice.Sub(sl.StopPrice)
		if perShare.IsNegative() {
			continue
		}
		total = total.Add(perShare.Mul(decimal.NewFromInt(sl.StopQuantity)))
	}
	return total
}

func ratchetMaxRisk(tx store.DBTX, pos models.Position, stops []models.StopLoss, override bool) error {
	risk := CurrentTotalRisk(pos, stops)
	if !override && pos.MaxRiskAmount != nil && risk.LessThanOrEqual(*pos.MaxRiskAmount) {
		return nil
	}
	return store.UpdatePositionFields(tx, pos.ID, map[string]any{"maxRiskAmount": risk})
}

// ListStopLosses returns a position's stop levels; activeOnly limits to the
// ones that count toward live risk.
func (s *JournalService) ListStopLosses(positionID string, activeOnly bool) ([]models.StopLoss, error) {
	return store.ListStopLossesByPosition(s.handle.DB(), positionID, activeOnly)
}

// DeactivateStopLoss soft-deletes one stop level and re-evaluates nothing:
// the ratchet only moves on save.
func (s *JournalService) DeactivateStopLoss(ctx context.Context, id string) error {
	var accountID string
	err := s.queue.Submit(ctx, "stoploss:deactivate", func(tx *sql.Tx) error {
		acct, err := store.AccountIDForStopLoss(tx, id)
		if err != nil {
			return err
		}
		accountID = acct
		return store.UpdateStopLossFields(tx, id, map[string]any{"isActive": false})
	})
	if err == nil {
		s.InvalidateAccountCache(accountID)
	}
	return err
}
