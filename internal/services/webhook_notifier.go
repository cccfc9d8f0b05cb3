package services

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"purchase-api/internal/purchasing"
	"purchase-api/pkg/logging"
)

// WebhookNotifier pushes completed-transaction notifications to the app
// backend.
type WebhookNotifier struct {
	callbackURL string
	secret      string
	httpClient  *http.Client
}

// NewWebhookNotifier creates a new webhook notifier
func NewWebhookNotifier(callbackURL, secret string) *WebhookNotifier {
	return &WebhookNotifier{
		callbackURL: callbackURL,
		secret:      secret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// WebhookPayload represents the payload sent to the app backend
type WebhookPayload struct {
	Event         string `json:"event"` // "transaction.completed"
	TransactionID string `json:"transaction_id"`
	ProductID     string `json:"product_id"`
	StoreID       string `json:"store_id"`
	State         string `json:"state"` // successful, failed or canceled
	ErrorDetail   string `json:"error_detail,omitempty"`
	Timestamp     string `json:"timestamp"` // ISO 8601 format
}

// Attach subscribes the notifier to the dispatcher. Deliveries run in a
// goroutine so event dispatch is never blocked on the backend.
func (wn *WebhookNotifier) Attach(events *purchasing.Dispatcher) {
	events.Subscribe(func(e purchasing.Event) {
		if e.Type != purchasing.EventTransactionCompleted || e.Transaction == nil {
			return
		}
		go wn.notify(e.Transaction)
	})
}

func (wn *WebhookNotifier) notify(tx *purchasing.Transaction) {
	if wn.callbackURL == "" {
		return
	}

	payload := WebhookPayload{
		Event:         "transaction.completed",
		TransactionID: tx.ID(),
		ProductID:     tx.Product().ID(),
		StoreID:       tx.Product().StoreID(),
		State:         string(tx.State()),
		ErrorDetail:   tx.Err(),
		Timestamp:     time.Now().Format(time.RFC3339),
	}

	wn.sendWithRetry(payload)
}

// sendWithRetry sends webhook with retry mechanism
// Retry schedule: 1s, 5s, 30s (3 attempts total)
func (wn *WebhookNotifier) sendWithRetry(payload WebhookPayload) {
	retryDelays := []time.Duration{1 * time.Second, 5 * time.Second, 30 * time.Second}
	maxRetries := len(retryDelays)

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := wn.send(payload)
		if err == nil {
			logging.Infof("Webhook notification sent - transaction: %s, attempt: %d",
				payload.TransactionID, attempt+1)
			return
		}

		logging.Errorf("Webhook notification failed - transaction: %s, attempt: %d, error: %v",
			payload.TransactionID, attempt+1, err)

		if attempt < maxRetries-1 {
			time.Sleep(retryDelays[attempt])
		}
	}

	logging.Errorf("Webhook notification failed after %d attempts - transaction: %s",
		maxRetries, payload.TransactionID)
}

func (wn *WebhookNotifier) send(payload WebhookPayload) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, wn.callbackURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "PurchaseAPI-Webhook/1.0")

	if wn.secret != "" {
		signature := wn.generateSignature(jsonData)
		req.Header.Set("X-Purchase-Signature", signature)
	}

	resp, err := wn.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil
}

// generateSignature generates HMAC-SHA256 signature for webhook payload
func (wn *WebhookNotifier) generateSignature(payload []byte) string {
	h := hmac.New(sha256.New, []byte(wn.secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
