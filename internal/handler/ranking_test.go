package handler

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"drive-ledger/internal/model"
)

func TestFormatDailyTop(t *testing.T) {
	earners := []*model.DailyEarner{
		{UserID: 1, Username: "alice", Earned: decimal.RequireFromString("12.5")},
		{UserID: 2, Username: "", Earned: decimal.RequireFromString("3")},
		{UserID: 3, Username: "carol", Earned: decimal.RequireFromString("1")},
		{UserID: 4, Username: "dave", Earned: decimal.RequireFromString("-0.4")},
	}

	lines := strings.Split(formatDailyTop(earners), "\n")
	assert.Equal(t, "🥇 alice: +12.50", lines[2])
	assert.Equal(t, "🥈 User2: +3.00", lines[3])
	assert.Equal(t, "🥉 carol: +1.00", lines[4])
	assert.Equal(t, "4. dave: -0.40", lines[5])
}

func TestFormatDailyTop_Empty(t *testing.T) {
	assert.Contains(t, formatDailyTop(nil), "No data yet")
}
