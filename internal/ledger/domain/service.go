package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	// Record writes txn on tx. A replay of the same settlement key is a no-op
	// and reports false.
	Record(ctx context.Context, tx *gorm.DB, txn Transaction) (bool, error)
	// SumTx totals the order's rows of one type as seen on tx.
	SumTx(ctx context.Context, tx *gorm.DB, orderID snowflake.ID, typ TransactionType) (int64, error)
	ListByOrder(ctx context.Context, orderID snowflake.ID) ([]Transaction, error)
	ListByUser(ctx context.Context, userID snowflake.ID, limit, offset int) ([]Transaction, error)
}
