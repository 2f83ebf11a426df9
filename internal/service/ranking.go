package service

import (
	"context"
	"fmt"
	"time"

	"drive-ledger/internal/model"
	"drive-ledger/internal/repository"
)

// StatsService handles earnings leaderboards.
type StatsService struct {
	ledger   *repository.LedgerRepository
	timezone *time.Location
}

// NewStatsService creates a new StatsService instance.
func NewStatsService(ledger *repository.LedgerRepository, timezone *time.Location) *StatsService {
	if timezone == nil {
		timezone = time.UTC
	}
	return &StatsService{
		ledger:   ledger,
		timezone: timezone,
	}
}

// TodayTopEarners ranks today's drive and referral income.
func (s *StatsService) TodayTopEarners(ctx context.Context, limit int) ([]*model.DailyEarner, error) {
	return s.DailyTopEarners(ctx, time.Now(), limit)
}

// DailyTopEarners ranks the income of the day containing date, in the
// service timezone.
func (s *StatsService) DailyTopEarners(ctx context.Context, date time.Time, limit int) ([]*model.DailyEarner, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	earners, err := s.ledger.GetDailyEarners(ctx, date.In(s.timezone), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	return earners, nil
}
