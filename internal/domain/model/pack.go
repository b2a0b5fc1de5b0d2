package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Pack は複数商品をまとめて1つの価格で売るセット。
// stock_quantityがNULLなら在庫制限なし。
type Pack struct {
	ID            string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name          string          `gorm:"type:varchar(255);not null" json:"name"`
	Description   string          `gorm:"type:text" json:"description"`
	Price         decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	StockQuantity *int64          `json:"stock_quantity"`
	IsActive      bool            `gorm:"not null;default:false" json:"is_active"`
	Items         []PackItem      `gorm:"foreignKey:PackID" json:"items,omitempty"`
	CreatedAt     time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt  `gorm:"index" json:"-"`
}

// パックの中身
type PackItem struct {
	ID        string `gorm:"type:varchar(36);primaryKey" json:"id"`
	PackID    string `gorm:"type:varchar(36);not null;index" json:"pack_id"`
	ProductID string `gorm:"type:varchar(36);not null;index" json:"product_id"`
	Quantity  int64  `gorm:"not null;default:1" json:"quantity"`
}

func (p Pack) CatalogItem() CatalogItem {
	var stock *int64
	if p.StockQuantity != nil {
		v := *p.StockQuantity
		stock = &v
	}
	return CatalogItem{
		Kind:          ItemKindPack,
		ID:            p.ID,
		Name:          p.Name,
		UnitPrice:     p.Price,
		IsActive:      p.IsActive,
		StockQuantity: stock,
	}
}
