package ledger

import (
	"testing"
	"time"

	"trading-agent-ledger/internal/database"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

const testAccount = "agent.near"

var baseTime = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

// setupStore creates a GormStore on a fresh in-memory database.
func setupStore(t *testing.T) (*GormStore, *gorm.DB) {
	t.Helper()
	db, err := database.NewDatabase("file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewGormStore(db), db
}

// setupLedger creates a Ledger with an observed logger and a clock that advances a minute per call.
func setupLedger(t *testing.T) (*Ledger, *GormStore, *observer.ObservedLogs) {
	t.Helper()
	store, _ := setupStore(t)
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewLedger(store, nil, zap.New(core))
	l.now = steppingClock(baseTime, time.Minute)
	return l, store, logs
}

func steppingClock(start time.Time, step time.Duration) func() time.Time {
	current := start.Add(-step)
	return func() time.Time {
		current = current.Add(step)
		return current
	}
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
