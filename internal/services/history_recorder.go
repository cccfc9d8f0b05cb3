package services

import (
	"time"

	"purchase-api/internal/database"
	"purchase-api/internal/models"
	"purchase-api/internal/purchasing"
	"purchase-api/pkg/logging"
)

// HistoryRecorder subscribes to the purchase event stream and persists every
// terminal transaction as an audit record.
type HistoryRecorder struct {
	platform string
}

// NewHistoryRecorder creates a history recorder for the given platform label.
func NewHistoryRecorder(platform string) *HistoryRecorder {
	return &HistoryRecorder{platform: platform}
}

// Attach subscribes the recorder to the dispatcher.
func (h *HistoryRecorder) Attach(events *purchasing.Dispatcher) {
	events.Subscribe(func(e purchasing.Event) {
		if e.Type != purchasing.EventTransactionCompleted || e.Transaction == nil {
			return
		}
		h.record(e.Transaction)
	})
}

func (h *HistoryRecorder) record(tx *purchasing.Transaction) {
	product := tx.Product()
	price := product.Price()

	record := &models.TransactionRecord{
		TransactionID: tx.ID(),
		ProductID:     product.ID(),
		StoreID:       product.StoreID(),
		Kind:          string(product.Kind()),
		State:         string(tx.State()),
		ErrorDetail:   tx.Err(),
		PriceValue:    price.Value,
		Currency:      price.Currency,
		Platform:      h.platform,
		CompletedAt:   time.Now(),
	}

	if err := database.SaveTransactionRecord(record); err != nil {
		logging.Errorf("Failed to record transaction %s: %v", tx.ID(), err)
		return
	}
	logging.Infof("Recorded transaction %s (%s) for product %s", tx.ID(), tx.State(), product.ID())
}
