package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"purchase-api/internal/purchasing"
	"purchase-api/pkg/logging"
)

// ReceiptMailer emails a purchase receipt through the Brevo API whenever a
// product purchase resolves successfully. It is optional: without an API key
// and recipient it stays inert.
type ReceiptMailer struct {
	apiKey    string
	fromEmail string
	fromName  string
	toEmail   string
}

// NewReceiptMailer creates a new receipt mailer
func NewReceiptMailer(apiKey, fromEmail, fromName, toEmail string) *ReceiptMailer {
	return &ReceiptMailer{
		apiKey:    apiKey,
		fromEmail: fromEmail,
		fromName:  fromName,
		toEmail:   toEmail,
	}
}

// EmailRequest represents Brevo email request structure
type EmailRequest struct {
	Sender      EmailSender `json:"sender"`
	To          []EmailTo   `json:"to"`
	Subject     string      `json:"subject"`
	HTMLContent string      `json:"htmlContent"`
	TextContent string      `json:"textContent"`
}

type EmailSender struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type EmailTo struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Attach subscribes the mailer to the dispatcher. Sending runs in a goroutine
// so event dispatch is never blocked on the mail API.
func (m *ReceiptMailer) Attach(events *purchasing.Dispatcher) {
	if m.apiKey == "" || m.toEmail == "" {
		return
	}
	events.Subscribe(func(e purchasing.Event) {
		if e.Type != purchasing.EventProductPurchased || e.Product == nil {
			return
		}
		go m.sendReceipt(e.Product)
	})
}

func (m *ReceiptMailer) sendReceipt(product *purchasing.Product) {
	price := product.Price()
	display := price.Display
	if display == "" {
		display = fmt.Sprintf("%s %s", price.Value, price.Currency)
	}

	subject := fmt.Sprintf("Purchase receipt - %s", product.ID())
	htmlContent := fmt.Sprintf(`
		<!DOCTYPE html>
		<html>
		<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
			<div style="background-color: #f8f9fa; padding: 30px; border-radius: 10px;">
				<h1 style="color: #333;">Thank you for your purchase</h1>
				<p style="color: #666; font-size: 16px;">Product: <b>%s</b></p>
				<p style="color: #666; font-size: 16px;">Price: <b>%s</b></p>
				<p style="color: #999; font-size: 12px; margin-top: 30px;">Purchased at %s.</p>
			</div>
		</body>
		</html>
	`, product.ID(), display, time.Now().Format(time.RFC1123))

	textContent := fmt.Sprintf("Thank you for your purchase.\n\nProduct: %s\nPrice: %s\n",
		product.ID(), display)

	emailReq := EmailRequest{
		Sender: EmailSender{
			Name:  m.fromName,
			Email: m.fromEmail,
		},
		To: []EmailTo{
			{Email: m.toEmail},
		},
		Subject:     subject,
		HTMLContent: htmlContent,
		TextContent: textContent,
	}

	if err := m.sendEmail(emailReq); err != nil {
		logging.Errorf("Failed to send receipt email for %s: %v", product.ID(), err)
		return
	}
	logging.Infof("Receipt email sent for product %s", product.ID())
}

// sendEmail sends email via Brevo API
func (m *ReceiptMailer) sendEmail(req EmailRequest) error {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal email request: %w", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, "https://api.brevo.com/v3/smtp/email", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-key", m.apiKey)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("brevo API error: status %d", resp.StatusCode)
	}

	return nil
}
