package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// SnapshotData is the structured payload stored with every portfolio snapshot.
type SnapshotData struct {
	Positions      []PositionWithPnL `json:"positions"`
	Timestamp      time.Time         `json:"timestamp"`
	Reasoning      *string           `json:"reasoning,omitempty"`
	RawAIResponse  *string           `json:"raw_ai_response,omitempty"`
	MarketAnalysis *string           `json:"market_analysis,omitempty"`
}

// Snapshot is an immutable point-in-time record of portfolio value and agent reasoning.
type Snapshot struct {
	ID            uint                             `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time                        `gorm:"not null;index:idx_portfolio_snapshots_created_at,sort:desc;index:idx_portfolio_snapshots_account_created,priority:2" json:"created_at"`
	AccountID     string                           `gorm:"size:255;not null;index:idx_portfolio_snapshots_account_id;index:idx_portfolio_snapshots_account_created,priority:1" json:"account_id"`
	Data          datatypes.JSONType[SnapshotData] `gorm:"column:snapshot_data;not null" json:"snapshot_data"`
	TotalUSDValue decimal.Decimal                  `gorm:"column:total_usd_value;type:numeric(20,2);not null" json:"total_usd_value"`
	PnlUSD        decimal.Decimal                  `gorm:"column:pnl_usd;type:numeric(20,2);not null;default:0" json:"pnl_usd"`
	PnlPercent    decimal.Decimal                  `gorm:"column:pnl_percent;type:numeric(10,4);not null;default:0" json:"pnl_percent"`
}

// TableName pins the snapshot table name.
func (Snapshot) TableName() string {
	return "portfolio_snapshots"
}
