package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrUnreachable wraps transport failures talking to the webhook.
var ErrUnreachable = errors.New("chat webhook unreachable")

// RejectedError is returned when the webhook answers with a non-2xx status.
type RejectedError struct {
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("chat webhook rejected post: %d %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// WebhookClient posts text messages to an incoming chat webhook.
type WebhookClient struct {
	client *resty.Client
	url    string
}

// NewWebhookClient returns a client for url. Posts time out after timeout.
func NewWebhookClient(url string, timeout time.Duration) *WebhookClient {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json; charset=UTF-8")
	return &WebhookClient{client: client, url: url}
}

// Post sends {"text": text}.
func (w *WebhookClient) Post(ctx context.Context, text string) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"text": text}).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	if resp.IsError() {
		return &RejectedError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}
