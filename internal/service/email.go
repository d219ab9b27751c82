package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"tabletap/internal/model"
)

// MailerClient talks to the email collaborator service. It renders and
// delivers nothing itself.
type MailerClient struct {
	baseURL string
	client  *http.Client
}

func NewMailerClient(baseURL string) *MailerClient {
	return &MailerClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

type statusEmailRequest struct {
	Order  model.Order       `json:"order"`
	Status model.OrderStatus `json:"status"`
}

func (c *MailerClient) SendStatusEmail(ctx context.Context, order model.Order, status model.OrderStatus) error {
	body, err := json.Marshal(statusEmailRequest{Order: order, Status: status})
	if err != nil {
		return fmt.Errorf("marshal email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails/order-status", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("mailer returned status %d", resp.StatusCode)
	}
	return nil
}
