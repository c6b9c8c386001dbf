package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/joshsymonds/inboxledger/internal/models"
)

// TransactionRepository stores extracted transactions.
type TransactionRepository interface {
	// InsertAll stores each transaction on its own and reports which message
	// IDs were inserted and which already had a transaction.
	InsertAll(ctx context.Context, txns []models.Transaction) (inserted, skipped []string, err error)
	ListByExecution(ctx context.Context, executionID string) ([]models.Transaction, error)
}

type transactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) InsertAll(ctx context.Context, txns []models.Transaction) ([]string, []string, error) {
	var inserted, skipped []string
	for i := range txns {
		txn := &txns[i]
		if txn.MessageID == "" {
			return inserted, skipped, fmt.Errorf("insert transaction: %w", ErrInvalidInput)
		}
		result := r.db.WithContext(ctx).Create(txn)
		if result.Error != nil {
			if isDuplicateKeyError(result.Error) {
				skipped = append(skipped, txn.MessageID)
				continue
			}
			return inserted, skipped, fmt.Errorf("insert transaction %s: %w", txn.MessageID, result.Error)
		}
		inserted = append(inserted, txn.MessageID)
	}
	return inserted, skipped, nil
}

func (r *transactionRepository) ListByExecution(ctx context.Context, executionID string) ([]models.Transaction, error) {
	var txns []models.Transaction
	err := r.db.WithContext(ctx).Where("execution_id = ?", executionID).Order("id").Find(&txns).Error
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txns, nil
}
