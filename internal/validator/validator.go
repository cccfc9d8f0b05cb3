// Package validator provides receipt validator implementations for the
// purchase orchestrator.
package validator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// AcceptAll accepts every receipt. It is the validator used when no
// server-side verification endpoint is configured.
type AcceptAll struct{}

func (AcceptAll) Validate(ctx context.Context, receipt string) (bool, error) {
	return true, nil
}

// Remote validates receipts against a server-side verification endpoint.
// The endpoint receives the raw receipt data and answers with a numeric
// status, zero meaning the receipt is genuine.
type Remote struct {
	url        string
	httpClient *http.Client
}

// NewRemote creates a remote validator for the given verification URL.
func NewRemote(url string) *Remote {
	return &Remote{
		url: url,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type verifyRequest struct {
	ReceiptData string `json:"receipt-data"`
}

type verifyResponse struct {
	Status int `json:"status"`
}

// Validate returns (false, nil) for receipts the endpoint rejects and an
// error for transport or protocol failures.
func (r *Remote) Validate(ctx context.Context, receipt string) (bool, error) {
	jsonData, err := json.Marshal(verifyRequest{ReceiptData: receipt})
	if err != nil {
		return false, fmt.Errorf("marshal verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return false, fmt.Errorf("create verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("verify receipt: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("read verify response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("verification endpoint error: status %d", resp.StatusCode)
	}

	var vr verifyResponse
	if err := json.Unmarshal(body, &vr); err != nil {
		return false, fmt.Errorf("parse verify response: %w", err)
	}

	return vr.Status == 0, nil
}
