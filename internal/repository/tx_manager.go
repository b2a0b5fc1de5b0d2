package repository

import "context"

// トランザクション内で使う約束
type TxRepos interface {
	Orders() OrderRepository
	OrderItems() OrderItemRepository
	Inventory() InventoryRepository
	AuditLogs() AuditLogRepository
}

// UsecaseからTxの開始/commit/rollbackを隠す。
type TransactionManager interface {
	WithinTx(ctx context.Context, fn func(r TxRepos) error) error
}

// fnがエラーを返せば中の書き込みがすべて戻るTransactionManager（DBトランザクション）
type AtomicTransactionManager interface {
	TransactionManager
	RollsBackOnError() bool
}
