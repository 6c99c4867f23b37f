package ledger

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"trading-agent-ledger/internal/metrics"
	"trading-agent-ledger/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// SnapshotInput is the point-in-time portfolio view to persist.
type SnapshotInput struct {
	AccountID      string
	Positions      []models.PositionWithPnL
	TotalUSD       float64
	PreviousUSD    float64
	Reasoning      string
	MarketAnalysis string
}

// Recorder persists portfolio snapshots. It never fails the caller:
// write errors are logged and counted.
type Recorder struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewRecorder creates a snapshot recorder over store.
func NewRecorder(store Store, logger *zap.Logger) *Recorder {
	return &Recorder{
		store:  store,
		logger: logger.Named("snapshots"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Record computes the change against the previous total and stores the snapshot.
// It returns nil when the snapshot could not be written.
func (r *Recorder) Record(ctx context.Context, in SnapshotInput) *models.Snapshot {
	total := decimal.NewFromFloat(in.TotalUSD)
	previous := decimal.NewFromFloat(in.PreviousUSD)
	pnl := total.Sub(previous)
	pnlPercent := decimal.Zero
	if previous.IsPositive() {
		pnlPercent = pnl.Div(previous).Mul(decimal.NewFromInt(100))
	}

	now := r.now()
	positions := in.Positions
	if positions == nil {
		positions = []models.PositionWithPnL{}
	}
	data := models.SnapshotData{
		Positions: positions,
		Timestamp: now,
		Reasoning: CleanReasoning(in.Reasoning),
	}
	if in.Reasoning != "" {
		raw := in.Reasoning
		data.RawAIResponse = &raw
	}
	if in.MarketAnalysis != "" {
		analysis := in.MarketAnalysis
		data.MarketAnalysis = &analysis
	}

	snapshot := &models.Snapshot{
		CreatedAt:     now,
		AccountID:     in.AccountID,
		Data:          datatypes.NewJSONType(data),
		TotalUSDValue: total.Round(2),
		PnlUSD:        pnl.Round(2),
		PnlPercent:    pnlPercent.Round(4),
	}

	if err := r.store.InsertSnapshot(ctx, snapshot); err != nil {
		metrics.SnapshotWriteFailures.Inc()
		r.logger.Error("Failed to record portfolio snapshot",
			zap.String("account_id", in.AccountID),
			zap.Float64("total_usd", in.TotalUSD),
			zap.Error(err),
		)
		return nil
	}

	r.logger.Info("Recorded portfolio snapshot",
		zap.String("account_id", in.AccountID),
		zap.Uint("snapshot_id", snapshot.ID),
		zap.String("total_usd", snapshot.TotalUSDValue.StringFixed(2)),
		zap.String("pnl_usd", snapshot.PnlUSD.StringFixed(2)),
	)
	return snapshot
}

var codeFences = []*regexp.Regexp{
	regexp.MustCompile("```json\\n?"),
	regexp.MustCompile("\\n```"),
	regexp.MustCompile("```\\n?"),
}

// CleanReasoning strips markdown code fences from agent output.
// It returns nil when nothing but whitespace remains.
func CleanReasoning(raw string) *string {
	cleaned := raw
	for _, re := range codeFences {
		cleaned = re.ReplaceAllString(cleaned, "")
	}
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}

// DefaultDecisionText is shown when the agent output is JSON without reasoning.
const DefaultDecisionText = "Agent decision recorded"

// ReasoningText picks the display text for a snapshot: the cleaned reasoning, then
// the reasoning or action of a JSON raw response, then the raw response truncated
// to maxLen characters. fallback is used when the snapshot carries no text at all.
func ReasoningText(data models.SnapshotData, fallback string, maxLen int) string {
	if data.Reasoning != nil && strings.TrimSpace(*data.Reasoning) != "" && !looksLikeJSON(*data.Reasoning) {
		return *data.Reasoning
	}
	if data.RawAIResponse == nil || strings.TrimSpace(*data.RawAIResponse) == "" {
		return fallback
	}

	raw := *data.RawAIResponse
	body := raw
	if cleaned := CleanReasoning(raw); cleaned != nil {
		body = *cleaned
	}

	var decision struct {
		Reasoning string `json:"reasoning"`
		Action    string `json:"action"`
	}
	if err := json.Unmarshal([]byte(body), &decision); err != nil {
		return truncate(raw, maxLen)
	}
	switch {
	case decision.Reasoning != "":
		return decision.Reasoning
	case decision.Action != "":
		return decision.Action
	default:
		return DefaultDecisionText
	}
}

func looksLikeJSON(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "{") && json.Valid([]byte(s))
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if maxLen <= 0 || len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
