package model

import "github.com/shopspring/decimal"

type ItemKind string

const (
	ItemKindProduct ItemKind = "product"
	ItemKindPack    ItemKind = "pack"
)

func (k ItemKind) Valid() bool {
	return k == ItemKindProduct || k == ItemKindPack
}

// CatalogItem は価格計算用の読み取り専用ビュー（商品・パック共通）。
type CatalogItem struct {
	Kind          ItemKind
	ID            string
	Name          string
	UnitPrice     decimal.Decimal
	IsActive      bool
	StockQuantity *int64 // nilなら在庫チェックしない
}

// CartLine はクライアントから来たカート1行を検証済みの形にしたもの。
type CartLine struct {
	Kind        ItemKind `json:"kind"`
	ReferenceID string   `json:"reference_id"`
	Quantity    int64    `json:"quantity"`
}
