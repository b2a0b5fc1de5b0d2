package repository

import (
	"context"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

type CatalogGormRepository struct {
	db *gorm.DB
}

// DI
func NewCatalogGormRepository(db *gorm.DB) *CatalogGormRepository {
	return &CatalogGormRepository{db: db}
}

var _ repo.CatalogReader = (*CatalogGormRepository)(nil)

// IDで商品をまとめて取得（削除済みは返らない）
func (r *CatalogGormRepository) GetProducts(ctx context.Context, ids []string) ([]model.CatalogItem, error) {
	if len(ids) == 0 {
		return []model.CatalogItem{}, nil
	}

	var products []model.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}

	items := make([]model.CatalogItem, 0, len(products))
	for _, p := range products {
		items = append(items, p.CatalogItem())
	}
	return items, nil
}

// IDでパックをまとめて取得
func (r *CatalogGormRepository) GetPacks(ctx context.Context, ids []string) ([]model.CatalogItem, error) {
	if len(ids) == 0 {
		return []model.CatalogItem{}, nil
	}

	var packs []model.Pack
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&packs).Error; err != nil {
		return nil, err
	}

	items := make([]model.CatalogItem, 0, len(packs))
	for _, p := range packs {
		items = append(items, p.CatalogItem())
	}
	return items, nil
}
