package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 注文明細。product_id / pack_id はどちらか一方だけ入る。
// 名前と価格は注文時点のスナップショット。
type OrderItem struct {
	ID           string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	OrderID      string          `gorm:"type:varchar(36);not null;index" json:"order_id"`
	ProductID    *string         `gorm:"type:varchar(36);index" json:"product_id"`
	PackID       *string         `gorm:"type:varchar(36);index" json:"pack_id"`
	ProductName  string          `gorm:"type:varchar(255);not null" json:"product_name"`
	ProductPrice decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"product_price"`
	Quantity     int64           `gorm:"not null" json:"quantity"`
	// カート上の行番号（1始まり）。明細はこの順で返す
	LineNo       int             `gorm:"not null;default:0" json:"line_no"`
	CreatedAt    time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
}

// Ref は明細が指すカタログ品目を返す。
func (it OrderItem) Ref() (ItemKind, string) {
	if it.PackID != nil {
		return ItemKindPack, *it.PackID
	}
	if it.ProductID != nil {
		return ItemKindProduct, *it.ProductID
	}
	return "", ""
}
