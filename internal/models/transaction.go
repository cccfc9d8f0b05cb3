package models

import (
	"time"
)

// TransactionRecord is the persisted audit row for a terminal purchase
// transaction. In-flight transactions are never persisted; the registry is
// in-memory and scoped to the process lifetime.
type TransactionRecord struct {
	BaseModel

	// Transaction identity
	TransactionID string `json:"transaction_id" gorm:"not null;size:100;uniqueIndex"`

	// Product information
	ProductID string `json:"product_id" gorm:"not null;size:100;index"`
	StoreID   string `json:"store_id" gorm:"not null;size:100;index"`
	Kind      string `json:"kind" gorm:"size:20"` // consumable, non_consumable or subscription

	// Outcome
	State       string `json:"state" gorm:"not null;size:20;index"` // successful, failed or canceled
	ErrorDetail string `json:"error_detail" gorm:"size:255"`

	// Price snapshot at resolution time
	PriceValue string `json:"price_value" gorm:"size:50"`
	Currency   string `json:"currency" gorm:"size:10"`

	// Environment
	Platform    string    `json:"platform" gorm:"size:20"`
	CompletedAt time.Time `json:"completed_at" gorm:"index"`
}

// TableName specifies the table name
func (TransactionRecord) TableName() string {
	return "transactions"
}
