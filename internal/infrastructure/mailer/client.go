// Package mailer talks to the outbound mail service that sends supplier
// follow-ups on the engine's behalf.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type followUpRequest struct {
	QuoteRequestID string `json:"quote_request_id"`
}

// SendFollowUp posts to <base>/follow-ups. Any non-2xx reply is an error.
func (c *Client) SendFollowUp(ctx context.Context, quoteRequestID string) error {
	body, err := json.Marshal(followUpRequest{QuoteRequestID: quoteRequestID})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/follow-ups", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build follow-up request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("mailer unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mailer rejected follow-up for %s: %s %s", quoteRequestID, resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}
