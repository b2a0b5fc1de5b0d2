package repository

import (
	"context"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

const maxAuditTrail = 200

type auditLogGormRepository struct {
	db *gorm.DB
}

func NewAuditLogGormRepository(db *gorm.DB) repo.AuditLogRepository {
	return &auditLogGormRepository{db: db}
}

func (r *auditLogGormRepository) Create(ctx context.Context, log model.AuditLog) error {
	return r.db.WithContext(ctx).Create(&log).Error
}

func (r *auditLogGormRepository) List(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	q := r.db.WithContext(ctx).
		Where("resource_type = ? AND resource_id = ?", f.ResourceType, f.ResourceID)

	if f.Actor != nil {
		q = q.Where("actor = ?", *f.Actor)
	}
	if f.Action != nil {
		q = q.Where("action = ?", *f.Action)
	}

	limit := f.Limit
	if limit <= 0 || limit > maxAuditTrail {
		limit = maxAuditTrail
	}

	// 同時刻はid順
	logs := []model.AuditLog{}
	if err := q.Order("created_at asc").Order("id asc").Limit(limit).Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
