package repository

import (
	"context"

	"storefront/internal/domain/model"
)

type InventoryRepository interface {
	// 在庫が足りるときだけ減算（在庫なし制限の品目は常にtrue）
	DecreaseStockIfEnough(ctx context.Context, kind model.ItemKind, itemID string, qty int64) (bool, error)

	// 在庫戻し（キャンセルなど）
	IncreaseStock(ctx context.Context, kind model.ItemKind, itemID string, qty int64) error

	// 増減履歴作成
	CreateAdjustment(ctx context.Context, adjustment model.InventoryAdjustment) error

	// 注文ごとの増減履歴（キャンセル時に戻す量を決める）
	ListAdjustmentsByOrder(ctx context.Context, orderID string) ([]model.InventoryAdjustment, error)
}
