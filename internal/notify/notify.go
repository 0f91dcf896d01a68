package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const slackEndpoint = "https://slack.com/api/chat.postMessage"

type Notifier interface {
	Notify(ctx context.Context, text string) error
}

var (
	_ Notifier = (*slack)(nil)
	_ Notifier = nop{}
)

type SlackConfig struct {
	Token   string
	Channel string

	// Endpoint overrides the chat.postMessage URL.
	Endpoint string
	Client   *http.Client
}

type slack struct {
	token    string
	channel  string
	endpoint string
	client   *http.Client
}

func NewSlack(cfg *SlackConfig) Notifier {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = slackEndpoint
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &slack{
		token:    cfg.Token,
		channel:  cfg.Channel,
		endpoint: endpoint,
		client:   client,
	}
}

type slackMessage struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

type slackResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (s *slack) Notify(ctx context.Context, text string) error {
	body, err := json.Marshal(slackMessage{Channel: s.channel, Text: text})
	if err != nil {
		return fmt.Errorf("failed to marshal slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+s.token)

	res, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post slack message: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected slack status code: %d", res.StatusCode)
	}

	// slack answers 200 for application errors too
	var out slackResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return fmt.Errorf("failed to decode slack response: %w", err)
	}
	if !out.OK {
		return fmt.Errorf("slack rejected message: %s", out.Error)
	}

	return nil
}

type nop struct{}

// NewNop returns a Notifier that discards every message.
func NewNop() Notifier {
	return nop{}
}

func (nop) Notify(context.Context, string) error {
	return nil
}
