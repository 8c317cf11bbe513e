// Package instagram sends direct messages through the Instagram Graph API.
package instagram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/himanstore/dmpilot/internal/providers"
)

const defaultAPIBase = "https://graph.instagram.com/v21.0"

// Client is a Graph API messaging client. One client serves one shop account;
// the limiter smooths sends across all conversations to stay inside the
// platform's messaging quota.
type Client struct {
	accessToken string
	apiBase     string
	httpClient  *http.Client
	limiter     *rate.Limiter
	retryConfig providers.RetryConfig
}

// New builds a client. messagesPerSecond bounds the outbound send rate;
// values <= 0 fall back to one message per second.
func New(accessToken, apiBase string, messagesPerSecond float64) *Client {
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	if messagesPerSecond <= 0 {
		messagesPerSecond = 1
	}
	return &Client{
		accessToken: accessToken,
		apiBase:     strings.TrimRight(apiBase, "/"),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(messagesPerSecond), 1),
		retryConfig: providers.DefaultRetryConfig(),
	}
}

// Send delivers one text unit and its attached images to the recipient.
// Each image is a separate platform message; returned ids cover everything
// actually delivered, even when a later unit fails.
func (c *Client) Send(ctx context.Context, recipientRef, text string, imageURLs []string) ([]string, error) {
	var ids []string
	if strings.TrimSpace(text) != "" {
		id, err := c.sendPayload(ctx, recipientRef, map[string]any{"text": text})
		if err != nil {
			return ids, fmt.Errorf("send text: %w", err)
		}
		ids = append(ids, id)
	}
	for _, url := range imageURLs {
		payload := map[string]any{
			"attachment": map[string]any{
				"type":    "image",
				"payload": map[string]any{"url": url},
			},
		}
		id, err := c.sendPayload(ctx, recipientRef, payload)
		if err != nil {
			return ids, fmt.Errorf("send image: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (c *Client) sendPayload(ctx context.Context, recipientRef string, message map[string]any) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	body := map[string]any{
		"recipient": map[string]any{"id": recipientRef},
		"message":   message,
	}

	return providers.RetryDo(ctx, c.retryConfig, func() (string, error) {
		data, err := json.Marshal(body)
		if err != nil {
			return "", fmt.Errorf("marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.apiBase+"/me/messages", bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.accessToken)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			return "", &providers.HTTPError{
				Status:     resp.StatusCode,
				Body:       "instagram: " + string(respBody),
				RetryAfter: providers.ParseRetryAfter(resp.Header.Get("Retry-After")),
			}
		}

		var parsed struct {
			MessageID string `json:"message_id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		if parsed.MessageID == "" {
			return "", fmt.Errorf("response missing message_id")
		}
		return parsed.MessageID, nil
	})
}
