package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v3"

	"drive-ledger/internal/model"
)

// EarnerRanking ranks today's earnings.
type EarnerRanking interface {
	TodayTopEarners(ctx context.Context, limit int) ([]*model.DailyEarner, error)
}

// RankingHandler handles ranking-related commands.
type RankingHandler struct {
	stats EarnerRanking
}

// NewRankingHandler creates a new RankingHandler.
func NewRankingHandler(stats EarnerRanking) *RankingHandler {
	return &RankingHandler{stats: stats}
}

// HandleDailyTop handles the /daily_top command.
// Displays today's top earners from drive commissions and referral bonuses.
func (h *RankingHandler) HandleDailyTop(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	earners, err := h.stats.TodayTopEarners(ctx, 10)
	if err != nil {
		return c.Reply(failure(err))
	}
	return c.Reply(formatDailyTop(earners))
}

func formatDailyTop(earners []*model.DailyEarner) string {
	var b strings.Builder
	b.WriteString("📊 Today's earners\n")
	b.WriteString("━━━━━━━━━━━━━━━\n")

	if len(earners) == 0 {
		b.WriteString("No data yet\n")
	} else {
		medals := []string{"🥇", "🥈", "🥉"}
		for i, earner := range earners {
			rank := fmt.Sprintf("%d.", i+1)
			if i < len(medals) {
				rank = medals[i]
			}

			displayName := earner.Username
			if displayName == "" {
				displayName = fmt.Sprintf("User%d", earner.UserID)
			}

			sign := ""
			if earner.Earned.GreaterThan(decimal.Zero) {
				sign = "+"
			}
			fmt.Fprintf(&b, "%s %s: %s%s\n", rank, displayName, sign, earner.Earned.StringFixed(2))
		}
	}

	b.WriteString("━━━━━━━━━━━━━━━")
	return b.String()
}
