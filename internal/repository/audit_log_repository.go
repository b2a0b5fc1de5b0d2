package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// 監査ログの絞り込み条件。nilは条件なし
type AuditLogFilter struct {
	ResourceType model.AuditResourceType
	ResourceID   string
	Actor        *string
	Action       *model.AuditAction
	Limit        int
}

// 監査ログの保存・一覧取得の約束。
type AuditLogRepository interface {
	Create(ctx context.Context, log model.AuditLog) error
	// 対象リソースの履歴を古い順に返す
	List(ctx context.Context, filter AuditLogFilter) ([]model.AuditLog, error)
}
