package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeType is the side of a ledger row.
type TradeType string

const (
	TradeTypeBuy  TradeType = "BUY"
	TradeTypeSell TradeType = "SELL"
)

// Trade represents an executed swap recorded in the ledger.
// BUY rows are lots: RemainingQuantity is decremented as later sells consume them.
// SELL rows carry the weighted entry price of the lots they consumed and the realized P&L.
type Trade struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	Timestamp         time.Time       `gorm:"not null;index:idx_actual_trades_timestamp,sort:desc;index:idx_actual_trades_open_lots,priority:3" json:"timestamp"`
	AccountID         string          `gorm:"size:255;not null;index:idx_actual_trades_account_id;index:idx_actual_trades_open_lots,priority:1,where:remaining_quantity > 0" json:"account_id"`
	Asset             string          `gorm:"size:50;not null;index:idx_actual_trades_asset_type,priority:1;index:idx_actual_trades_open_lots,priority:2" json:"asset"`
	Type              TradeType       `gorm:"size:4;not null;check:chk_actual_trades_type,type IN ('BUY','SELL');index:idx_actual_trades_asset_type,priority:2" json:"type"`
	Quantity          decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"quantity"`
	EntryPrice        decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"entry_price"`
	AmountUSD         decimal.Decimal `gorm:"column:amount_usd;type:numeric(20,2);not null" json:"amount_usd"`
	RemainingQuantity decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"remaining_quantity"`
	RealizedPnl       decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"realized_pnl"`
}

// TableName pins the ledger table name.
func (Trade) TableName() string {
	return "actual_trades"
}

// IsBuy reports whether the row is an inventory lot.
func (t Trade) IsBuy() bool {
	return t.Type == TradeTypeBuy
}
