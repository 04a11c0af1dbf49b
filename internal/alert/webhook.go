package alert

import (
	"context"
	"time"

	pkghttp "market_maker/pkg/http"
)

// WebhookChannel posts alerts to a generic incoming-webhook URL (Slack- and
// Discord-compatible payload shape), optionally prefixing the message with
// a keyword so routing rules on the receiving end can filter on it.
type WebhookChannel struct {
	client  *pkghttp.Client
	keyword string
}

// NewWebhookChannel builds a channel posting to the given webhook URL.
func NewWebhookChannel(webhookURL, keyword string) *WebhookChannel {
	return &WebhookChannel{
		client:  pkghttp.NewClient(webhookURL, 10*time.Second, nil),
		keyword: keyword,
	}
}

func (w *WebhookChannel) Name() string { return "webhook" }

func (w *WebhookChannel) Send(ctx context.Context, alert AlertPayload) error {
	text := alert.Title + ": " + alert.Message
	if w.keyword != "" {
		text = "[" + w.keyword + "] " + text
	}

	body := map[string]interface{}{
		"text":   text,
		"level":  string(alert.Level),
		"fields": alert.Fields,
	}

	_, err := w.client.Post(ctx, "", body)
	return err
}
