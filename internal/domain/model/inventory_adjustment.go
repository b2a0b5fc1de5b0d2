package model

import "time"

//在庫の増減履歴（注文での確保・キャンセルでの戻し）

type InventoryAdjustment struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ItemKind  ItemKind  `gorm:"type:varchar(10);not null;index:idx_inv_adj_item" json:"item_kind"`
	ItemID    string    `gorm:"type:varchar(36);not null;index:idx_inv_adj_item" json:"item_id"`
	OrderID   string    `gorm:"type:varchar(36);not null;index" json:"order_id"`
	Delta     int64     `gorm:"not null" json:"delta"`
	Reason    string    `gorm:"type:varchar(255);not null" json:"reason"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

const (
	AdjustmentReasonOrderReserve = "order_reserve"
	AdjustmentReasonOrderCancel  = "order_cancel"
)
