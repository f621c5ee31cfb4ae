// src/services/metrics.go
package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/BanziSeo/habiOS-sub002/src/models"
	"github.com/BanziSeo/habiOS-sub002/src/store"
	"github.com/shopspring/decimal"
)

// DashboardMetrics is the aggregate the GUI's dashboard widgets render.
type DashboardMetrics struct {
	AccountID       string          `json:"accountId"`
	TotalRealized   decimal.Decimal `json:"totalRealized"`
	OpenPositions   int             `json:"openPositions"`
	ClosedPositions int             `json:"closedPositions"`
	WinCount        int             `json:"winCount"`
	LossCount       int             `json:"lossCount"`
	WinRate         decimal.Decimal `json:"winRate"` // percent, closed positions only
	OpenRisk        decimal.Decimal `json:"openRisk"`
	LastUpdated     string          `json:"lastUpdated"`
}

// GetDashboardMetrics aggregates realized P&L, win rate and live risk for one
// account. Results are cached until the next mutation invalidates them.
func (s *JournalService) GetDashboardMetrics(accountID string) (DashboardMetrics, error) {
	started := time.Now()
	defer s.logSlowOp("dashboard-metrics", started)

	cacheKey := fmt.Sprintf(ckDashboardMetrics, accountID)
	if cached, found := s.reportCache.Get(cacheKey); found {
		return cached.(DashboardMetrics), nil
	}

	db := s.handle.DB()
	positions, err := store.ListPositionsByAccount(db, accountID)
	if err != nil {
		return DashboardMetrics{}, err
	}

	m := DashboardMetrics{
		AccountID:     accountID,
		TotalRealized: decimal.Zero,
		OpenRisk:      decimal.Zero,
		WinRate:       decimal.Zero,
		LastUpdated:   time.Now().Format(time.RFC3339),
	}
	for _, p := range positions {
		m.TotalRealized = m.TotalRealized.Add(p.RealizedPnl)
		if p.Status == models.PositionClosed {
			m.ClosedPositions++
			if p.RealizedPnl.IsPositive() {
				m.WinCount++
			} else {
				m.LossCount++
			}
			continue
		}
		m.OpenPositions++
		stops, err := store.ListStopLossesByPosition(db, p.ID, true)
		if err != nil {
			return DashboardMetrics{}, err
		}
		m.OpenRisk = m.OpenRisk.Add(CurrentTotalRisk(p, stops))
	}
	if m.ClosedPositions > 0 {
		m.WinRate = decimal.NewFromInt(int64(m.WinCount)).
			Mul(hundred).
			Div(decimal.NewFromInt(int64(m.ClosedPositions))).
			Round(2)
	}

	s.reportCache.Set(cacheKey, m, DefaultCacheExpiration)
	return m, nil
}

// SaveEquityPoint is the standalone equity upsert: re-saving a day replaces
// that day's values.
func (s *JournalService) SaveEquityPoint(ctx context.Context, p models.EquityPoint) error {
	err := s.queue.Submit(ctx, "equity:upsert", func(tx *sql.Tx) error {
		return store.UpsertEquityPoint(tx, p)
	})
	if err == nil {
		s.InvalidateAccountCache(p.AccountID)
	}
	return err
}

// GetEquityCurve returns the account's curve oldest-first, cached.
func (s *JournalService) GetEquityCurve(accountID string) ([]models.EquityPoint, error) {
	cacheKey := fmt.Sprintf(ckEquityCurve, accountID)
	if cached, found := s.reportCache.Get(cacheKey); found {
		return cached.([]models.EquityPoint), nil
	}
	points, err := store.ListEquityPoints(s.handle.DB(), accountID)
	if err != nil {
		return nil, err
	}
	s.reportCache.Set(cacheKey, points, DefaultCacheExpiration)
	return points, nil
}
