package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// 価格計算用のカタログ読み取り窓口（書き込みはしない）。
// 存在するものだけ返す。見つからないIDは呼び出し側で「購入不可」として扱う。
type CatalogReader interface {
	GetProducts(ctx context.Context, ids []string) ([]model.CatalogItem, error)
	GetPacks(ctx context.Context, ids []string) ([]model.CatalogItem, error)
}
