// Package billing bridges the orchestrator to a remote billing backend over
// HTTP. Product metadata is fetched at initialization, purchases and
// confirmations are submitted as POSTs, and purchase outcomes arrive through
// the backend's webhook, ingested by the API layer into the notification
// channel.
package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"purchase-api/internal/purchasing"
	"purchase-api/pkg/logging"
)

// Store is the purchasing.StoreAdapter backed by a remote billing service.
type Store struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	mu   sync.RWMutex
	meta map[string]purchasing.ProductMetadata

	notifications chan purchasing.Notification
	closeOnce     sync.Once
}

// New creates a billing store client for the given backend base URL.
func New(baseURL, apiKey string) *Store {
	return &Store{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		meta:          make(map[string]purchasing.ProductMetadata),
		notifications: make(chan purchasing.Notification, 64),
	}
}

type productQueryRequest struct {
	StoreIDs []string `json:"store_ids"`
}

type productMetadataPayload struct {
	StoreID             string `json:"store_id"`
	LocalizedPrice      string `json:"localized_price"`
	CurrencyCode        string `json:"currency_code"`
	DisplayPrice        string `json:"display_price"`
	AvailableToPurchase bool   `json:"available_to_purchase"`
	HasReceipt          bool   `json:"has_receipt"`
	ReceiptDeferred     bool   `json:"receipt_deferred"`
}

type productQueryResponse struct {
	Products []productMetadataPayload `json:"products"`
}

// Initialize registers the product set with the billing backend and caches
// the returned metadata.
func (s *Store) Initialize(ctx context.Context, products []purchasing.ProductDescriptor) error {
	storeIDs := make([]string, 0, len(products))
	for _, p := range products {
		storeIDs = append(storeIDs, p.StoreID)
	}

	body, err := s.post(ctx, "/v1/products/query", productQueryRequest{StoreIDs: storeIDs})
	if err != nil {
		return fmt.Errorf("query products: %w", err)
	}

	var resp productQueryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("parse products response: %w", err)
	}

	s.mu.Lock()
	for _, p := range resp.Products {
		s.meta[p.StoreID] = purchasing.ProductMetadata{
			StoreID:             p.StoreID,
			LocalizedPrice:      p.LocalizedPrice,
			CurrencyCode:        p.CurrencyCode,
			DisplayPrice:        p.DisplayPrice,
			AvailableToPurchase: p.AvailableToPurchase,
			HasReceipt:          p.HasReceipt,
			ReceiptDeferred:     p.ReceiptDeferred,
		}
	}
	s.mu.Unlock()

	logging.Infof("billing backend ready with %d products", len(resp.Products))
	return nil
}

type purchaseRequest struct {
	StoreID string `json:"store_id"`
}

func (s *Store) InitiatePurchase(storeID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.post(ctx, "/v1/purchases", purchaseRequest{StoreID: storeID}); err != nil {
		return fmt.Errorf("initiate purchase: %w", err)
	}
	return nil
}

func (s *Store) ConfirmPendingPurchase(storeID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.post(ctx, "/v1/purchases/confirm", purchaseRequest{StoreID: storeID}); err != nil {
		return fmt.Errorf("confirm purchase: %w", err)
	}
	return nil
}

func (s *Store) Restore(ctx context.Context) error {
	if _, err := s.post(ctx, "/v1/restore", struct{}{}); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	return nil
}

func (s *Store) Metadata(storeID string) (purchasing.ProductMetadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meta[storeID]
	return m, ok
}

func (s *Store) Notifications() <-chan purchasing.Notification {
	return s.notifications
}

// Ingest delivers a webhook-received notification to the orchestrator. It
// never blocks the webhook handler: a full buffer is an error so the backend
// retries the delivery.
func (s *Store) Ingest(n purchasing.Notification) error {
	select {
	case s.notifications <- n:
		return nil
	default:
		return fmt.Errorf("notification buffer full")
	}
}

// Close shuts the notification stream down.
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.notifications) })
}

func (s *Store) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("X-API-Key", s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("billing API error: status %d", resp.StatusCode)
	}
	return body, nil
}
