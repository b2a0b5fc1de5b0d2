package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// カートの保存先。ログインユーザー用(DB)とゲスト用(Redis)の2実装がある。
// ownerはユーザーIDまたはゲストのカートトークン。
type CartStore interface {
	Lines(ctx context.Context, owner string) ([]model.CartLine, error)
	// 同じ品目なら数量を加算
	Add(ctx context.Context, owner string, line model.CartLine) error
	SetQuantity(ctx context.Context, owner string, kind model.ItemKind, refID string, qty int64) error
	Remove(ctx context.Context, owner string, kind model.ItemKind, refID string) error
	Clear(ctx context.Context, owner string) error
}
