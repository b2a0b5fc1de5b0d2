package repository

import (
	"context"
	"errors"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ログインユーザーのカート（ownerはユーザーID）
type CartGormRepository struct {
	db *gorm.DB
}

// DI
func NewCartGormRepository(db *gorm.DB) *CartGormRepository {
	return &CartGormRepository{db: db}
}

var _ repo.CartStore = (*CartGormRepository)(nil)

// ユーザーのACTIVEカートを取得し、無ければ作成
func (r *CartGormRepository) getOrCreateActive(tx *gorm.DB, userID string) (model.Cart, error) {
	var cart model.Cart

	findErr := tx.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND status = ?", userID, model.CartStatusActive).
		Order("created_at desc").
		First(&cart).Error
	if findErr == nil {
		return cart, nil
	}
	if !errors.Is(findErr, gorm.ErrRecordNotFound) {
		return model.Cart{}, findErr
	}

	// 無ければ作る
	now := time.Now()
	cart = model.Cart{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    model.CartStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.Create(&cart).Error; err != nil {
		return model.Cart{}, err
	}
	return cart, nil
}

// ACTIVEカートを取得（無ければErrNotFound）
func (r *CartGormRepository) findActive(tx *gorm.DB, userID string) (model.Cart, error) {
	var cart model.Cart
	err := tx.
		Where("user_id = ? AND status = ?", userID, model.CartStatusActive).
		Order("created_at desc").
		First(&cart).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Cart{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Cart{}, err
	}
	return cart, nil
}

func (r *CartGormRepository) Lines(ctx context.Context, userID string) ([]model.CartLine, error) {
	db := r.db.WithContext(ctx)
	cart, err := r.findActive(db, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return []model.CartLine{}, nil
	}
	if err != nil {
		return nil, err
	}

	var items []model.CartItem
	if err := db.Where("cart_id = ?", cart.ID).Order("created_at asc").Find(&items).Error; err != nil {
		return nil, err
	}

	lines := make([]model.CartLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, it.Line())
	}
	return lines, nil
}

// 同一品目は数量加算
func (r *CartGormRepository) Add(ctx context.Context, userID string, line model.CartLine) error {
	if line.Quantity <= 0 {
		return errors.New("invalid quantity")
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart, err := r.getOrCreateActive(tx, userID)
		if err != nil {
			return err
		}

		var item model.CartItem
		err = tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("cart_id = ? AND kind = ? AND reference_id = ?", cart.ID, line.Kind, line.ReferenceID).
			First(&item).Error

		if err == nil {
			// 既存ありだったら数量を増やす
			return tx.Model(&model.CartItem{}).
				Where("id = ?", item.ID).
				Update("quantity", item.Quantity+line.Quantity).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		//無い場合は新規作成
		now := time.Now()
		return tx.Create(&model.CartItem{
			ID:          uuid.NewString(),
			CartID:      cart.ID,
			Kind:        line.Kind,
			ReferenceID: line.ReferenceID,
			Quantity:    line.Quantity,
			CreatedAt:   now,
			UpdatedAt:   now,
		}).Error
	})
}

// 明細の数量を更新
func (r *CartGormRepository) SetQuantity(ctx context.Context, userID string, kind model.ItemKind, refID string, qty int64) error {
	db := r.db.WithContext(ctx)
	cart, err := r.findActive(db, userID)
	if err != nil {
		return err
	}

	res := db.Model(&model.CartItem{}).
		Where("cart_id = ? AND kind = ? AND reference_id = ?", cart.ID, kind, refID).
		Update("quantity", qty)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 明細を削除
func (r *CartGormRepository) Remove(ctx context.Context, userID string, kind model.ItemKind, refID string) error {
	db := r.db.WithContext(ctx)
	cart, err := r.findActive(db, userID)
	if err != nil {
		return err
	}

	res := db.Where("cart_id = ? AND kind = ? AND reference_id = ?", cart.ID, kind, refID).
		Delete(&model.CartItem{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 明細を全削除
func (r *CartGormRepository) Clear(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart, err := r.findActive(tx, userID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return tx.Where("cart_id = ?", cart.ID).Delete(&model.CartItem{}).Error
	})
}
