package alert

import (
	"context"
	"fmt"
	"time"

	pkghttp "market_maker/pkg/http"
)

// SlackChannel posts alerts as a Slack incoming-webhook attachment, colored
// by severity.
type SlackChannel struct {
	enabled bool
	client  *pkghttp.Client
}

func NewSlackChannel(webhookURL string) *SlackChannel {
	return &SlackChannel{
		enabled: webhookURL != "",
		client:  pkghttp.NewClient(webhookURL, 5*time.Second, nil),
	}
}

func (s *SlackChannel) Name() string {
	return "slack"
}

func (s *SlackChannel) Send(ctx context.Context, alert AlertPayload) error {
	if !s.enabled {
		return nil
	}

	color := "#36a64f" // Green (Info)
	switch alert.Level {
	case Warning:
		color = "#ffcc00" // Yellow
	case Error:
		color = "#ff0000" // Red
	case Critical:
		color = "#8b0000" // Dark Red
	}

	// Format fields
	var fields []map[string]interface{}
	for k, v := range alert.Fields {
		fields = append(fields, map[string]interface{}{
			"title": k,
			"value": v,
			"short": true,
		})
	}

	payload := map[string]interface{}{
		"attachments": []map[string]interface{}{
			{
				"color":   color,
				"pretext": fmt.Sprintf("[%s] %s", alert.Level, alert.Title),
				"text":    alert.Message,
				"fields":  fields,
				"ts":      alert.Timestamp.Unix(),
				"footer":  "OpenSQT Market Maker",
			},
		},
	}

	_, err := s.client.Post(ctx, "", payload)
	if err != nil {
		return fmt.Errorf("slack webhook failed: %w", err)
	}
	return nil
}
