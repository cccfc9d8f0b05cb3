package database

import (
	"fmt"

	"purchase-api/internal/models"
)

// SaveTransactionRecord persists a terminal transaction. Duplicate
// transaction ids are rejected by the unique index; the caller treats that as
// an already-recorded outcome.
func SaveTransactionRecord(record *models.TransactionRecord) error {
	if err := DB.Create(record).Error; err != nil {
		return fmt.Errorf("failed to save transaction record: %w", err)
	}
	return nil
}

// GetTransactionHistory returns the most recent terminal transactions.
func GetTransactionHistory(limit int) ([]models.TransactionRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var records []models.TransactionRecord
	err := DB.Order("completed_at DESC").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction history: %w", err)
	}
	return records, nil
}

// GetTransactionsByProduct returns terminal transactions for one product.
func GetTransactionsByProduct(productID string, limit int) ([]models.TransactionRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var records []models.TransactionRecord
	err := DB.Where("product_id = ?", productID).
		Order("completed_at DESC").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions for product %s: %w", productID, err)
	}
	return records, nil
}
