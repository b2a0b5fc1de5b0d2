package model

import "time"

// カートの明細。同じ品目は1行にまとめる
type CartItem struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	CartID      string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_cart_item_ref" json:"cart_id"`
	Kind        ItemKind  `gorm:"type:varchar(10);not null;uniqueIndex:idx_cart_item_ref" json:"kind"`
	ReferenceID string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_cart_item_ref" json:"reference_id"`
	Quantity    int64     `gorm:"not null" json:"quantity"`
	CreatedAt   time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (it CartItem) Line() CartLine {
	return CartLine{Kind: it.Kind, ReferenceID: it.ReferenceID, Quantity: it.Quantity}
}
