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

// SeverityColor maps a severity to its Slack attachment color.
var SeverityColor = map[string]string{
	"low":      "#8ea6c9",
	"medium":   "#f2c744",
	"high":     "#f29f05",
	"critical": "#d73a49",
}

// Slack posts to an incoming webhook.
type Slack struct {
	WebhookURL string
	Client     *http.Client
	Timeout    time.Duration // per call; default 10s
}

type slackAttachment struct {
	Color     string `json:"color"`
	Title     string `json:"title"`
	TitleLink string `json:"title_link"`
	Text      string `json:"text"`
}

type slackPayload struct {
	Attachments []slackAttachment `json:"attachments"`
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Notify(ctx context.Context, n Notification) error {
	if s.WebhookURL == "" {
		return ErrNotConfigured
	}
	color, ok := SeverityColor[n.Severity]
	if !ok {
		color = SeverityColor["low"]
	}
	body, err := json.Marshal(slackPayload{Attachments: []slackAttachment{{
		Color:     color,
		Title:     n.Title,
		TitleLink: n.URL,
		Text:      n.Summary,
	}}})
	if err != nil {
		return &SendError{Notifier: s.Name(), Cause: fmt.Errorf("marshal payload: %w", err)}
	}
	return post(ctx, s.Name(), s.Client, timeoutOr(s.Timeout, 10*time.Second), s.WebhookURL, body, nil)
}

func timeoutOr(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// post sends a JSON body and treats any non-2xx answer as a failure.
func post(ctx context.Context, name string, client *http.Client, timeout time.Duration, url string, body []byte, header http.Header) error {
	if client == nil {
		client = http.DefaultClient
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &SendError{Notifier: name, Cause: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return &SendError{Notifier: name, Cause: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &SendError{Notifier: name, StatusCode: resp.StatusCode, Cause: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	return nil
}
