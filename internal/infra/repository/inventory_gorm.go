package repository

import (
	"context"
	"fmt"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

type InventoryGormRepository struct {
	db *gorm.DB
}

func NewInventoryGormRepository(db *gorm.DB) *InventoryGormRepository {
	return &InventoryGormRepository{db: db}
}

var _ repo.InventoryRepository = (*InventoryGormRepository)(nil)

func stockModel(kind model.ItemKind) (interface{}, error) {
	switch kind {
	case model.ItemKindProduct:
		return &model.Product{}, nil
	case model.ItemKindPack:
		return &model.Pack{}, nil
	default:
		return nil, fmt.Errorf("unknown item kind %q", kind)
	}
}

// 在庫が足りるときだけ減らす。stock_quantityがNULL（制限なし）ならNULLのまま
func (r *InventoryGormRepository) DecreaseStockIfEnough(ctx context.Context, kind model.ItemKind, itemID string, qty int64) (bool, error) {
	m, err := stockModel(kind)
	if err != nil {
		return false, err
	}

	res := r.db.WithContext(ctx).
		Model(m).
		Where("id = ? AND (stock_quantity IS NULL OR stock_quantity >= ?)", itemID, qty).
		Update("stock_quantity", gorm.Expr("stock_quantity - ?", qty))

	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	return true, nil
}

// 在庫戻し（キャンセル）
func (r *InventoryGormRepository) IncreaseStock(ctx context.Context, kind model.ItemKind, itemID string, qty int64) error {
	m, err := stockModel(kind)
	if err != nil {
		return err
	}

	res := r.db.WithContext(ctx).
		Model(m).
		Where("id = ?", itemID).
		Update("stock_quantity", gorm.Expr("stock_quantity + ?", qty))

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 増減履歴作成
func (r *InventoryGormRepository) CreateAdjustment(ctx context.Context, adj model.InventoryAdjustment) error {
	if err := r.db.WithContext(ctx).Create(&adj).Error; err != nil {
		return err
	}
	return nil
}

func (r *InventoryGormRepository) ListAdjustmentsByOrder(ctx context.Context, orderID string) ([]model.InventoryAdjustment, error) {
	var adjs []model.InventoryAdjustment
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&adjs).Error; err != nil {
		return nil, err
	}
	return adjs, nil
}
