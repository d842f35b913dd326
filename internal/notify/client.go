package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the external notification service over HTTP. The service
// fronts the actual email and voice providers; this side only sees the
// success/failure result shape.
type Client struct {
	baseURL    string
	adminEmail string
	adminPhone string
	httpClient *http.Client
}

func NewClient(baseURL, adminEmail, adminPhone string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		adminEmail: adminEmail,
		adminPhone: adminPhone,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) SendAdminNotification(ctx context.Context, n AdminNotification) (SendResult, error) {
	n.AdminEmail = c.adminEmail
	return c.post(ctx, "/notifications/admin", n)
}

func (c *Client) SendCustomerNotification(ctx context.Context, n CustomerNotification) (SendResult, error) {
	return c.post(ctx, "/notifications/customer", n)
}

func (c *Client) SendVoiceNotification(ctx context.Context, n VoiceNotification) (SendResult, error) {
	n.AdminPhone = c.adminPhone
	return c.post(ctx, "/notifications/voice", n)
}

func (c *Client) post(ctx context.Context, endpoint string, body any) (SendResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return SendResult{}, fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return SendResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return SendResult{}, fmt.Errorf("read notification response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return SendResult{}, fmt.Errorf("notifier error: %s (status: %d)", string(respBody), resp.StatusCode)
	}

	var result SendResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return SendResult{}, fmt.Errorf("unmarshal notification response: %w", err)
	}
	return result, nil
}
