package ledger

import (
	"context"
	"strings"
	"testing"
	"time"

	"trading-agent-ledger/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func strPtr(s string) *string { return &s }

func TestCleanReasoning(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
		want *string
	}{
		{name: "plain text", raw: "  Holding SOL.  ", want: strPtr("Holding SOL.")},
		{name: "json fence", raw: "```json\n{\"action\":\"HOLD\"}\n```", want: strPtr("{\"action\":\"HOLD\"}")},
		{name: "bare fence", raw: "```\nsell ETH\n```", want: strPtr("sell ETH")},
		{name: "empty", raw: "", want: nil},
		{name: "only fences", raw: "```json\n```", want: nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CleanReasoning(tc.raw))
		})
	}
}

func TestReasoningText(t *testing.T) {
	long := strings.Repeat("a", 250)

	testCases := []struct {
		name string
		data models.SnapshotData
		want string
	}{
		{
			name: "plain reasoning wins",
			data: models.SnapshotData{Reasoning: strPtr("Rotating into SOL"), RawAIResponse: strPtr("Rotating into SOL")},
			want: "Rotating into SOL",
		},
		{
			name: "reasoning field from fenced json",
			data: models.SnapshotData{
				Reasoning:     strPtr("{\"reasoning\":\"Momentum is strong\",\"action\":\"BUY\"}"),
				RawAIResponse: strPtr("```json\n{\"reasoning\":\"Momentum is strong\",\"action\":\"BUY\"}\n```"),
			},
			want: "Momentum is strong",
		},
		{
			name: "action when reasoning missing",
			data: models.SnapshotData{RawAIResponse: strPtr("{\"action\":\"HOLD\"}")},
			want: "HOLD",
		},
		{
			name: "default for json without text",
			data: models.SnapshotData{RawAIResponse: strPtr("{\"confidence\":0.4}")},
			want: DefaultDecisionText,
		},
		{
			name: "unparseable raw is truncated",
			data: models.SnapshotData{RawAIResponse: strPtr(long)},
			want: strings.Repeat("a", 200) + "...",
		},
		{
			name: "short raw kept whole",
			data: models.SnapshotData{RawAIResponse: strPtr("not json")},
			want: "not json",
		},
		{
			name: "nothing recorded",
			data: models.SnapshotData{},
			want: "fallback",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ReasoningText(tc.data, "fallback", 200))
		})
	}
}

func TestRecorder_Record(t *testing.T) {
	// Arrange
	ctx := context.Background()
	store, _ := setupStore(t)
	recorder := NewRecorder(store, zap.NewNop())
	recorder.now = steppingClock(baseTime, time.Minute)
	positions := []models.PositionWithPnL{{Symbol: "SOL", Quantity: 5, CurrentPrice: 150, USDValue: 750}}

	// Act
	snapshot := recorder.Record(ctx, SnapshotInput{
		AccountID:      testAccount,
		Positions:      positions,
		TotalUSD:       1100,
		PreviousUSD:    1000,
		Reasoning:      "```json\n{\"reasoning\":\"hold\"}\n```",
		MarketAnalysis: "BTC flat",
	})

	// Assert
	require.NotNil(t, snapshot)
	assert.Equal(t, "100.00", snapshot.PnlUSD.StringFixed(2))
	assert.Equal(t, "10.0000", snapshot.PnlPercent.StringFixed(4))

	stored, err := store.QuerySnapshots(ctx, testAccount)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	data := stored[0].Data.Data()
	require.Len(t, data.Positions, 1)
	assert.Equal(t, "SOL", data.Positions[0].Symbol)
	assert.Equal(t, "{\"reasoning\":\"hold\"}", *data.Reasoning)
	assert.Equal(t, "```json\n{\"reasoning\":\"hold\"}\n```", *data.RawAIResponse)
	assert.Equal(t, "BTC flat", *data.MarketAnalysis)
	assert.Equal(t, "hold", ReasoningText(data, "", 200))
}

func TestRecorder_FirstSnapshotHasNoPercent(t *testing.T) {
	store, _ := setupStore(t)
	recorder := NewRecorder(store, zap.NewNop())

	snapshot := recorder.Record(context.Background(), SnapshotInput{AccountID: testAccount, TotalUSD: 500})

	require.NotNil(t, snapshot)
	assert.Equal(t, "500.00", snapshot.PnlUSD.StringFixed(2))
	assert.True(t, snapshot.PnlPercent.IsZero())
	assert.Nil(t, snapshot.Data.Data().Reasoning)
	assert.NotNil(t, snapshot.Data.Data().Positions)
}

func TestRecorder_WriteFailureIsSwallowed(t *testing.T) {
	// Arrange
	store, db := setupStore(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	core, logs := observer.New(zapcore.InfoLevel)
	recorder := NewRecorder(store, zap.New(core))

	// Act
	snapshot := recorder.Record(context.Background(), SnapshotInput{AccountID: testAccount, TotalUSD: 10})

	// Assert
	assert.Nil(t, snapshot)
	entries := logs.FilterMessage("Failed to record portfolio snapshot").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
}
