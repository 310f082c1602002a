package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SlackWebhook posts plain text messages to an incoming webhook.
type SlackWebhook struct {
	url    string
	client *http.Client
}

func NewSlackWebhook(url string, client *http.Client) *SlackWebhook {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &SlackWebhook{url: url, client: client}
}

func (s *SlackWebhook) Post(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack webhook: status %d: %s", resp.StatusCode, bytes.TrimSpace(b))
	}
	return nil
}
