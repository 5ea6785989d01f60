package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/clinio/clinio/httpx"
)

// PushOptions configures the push-gateway client.
type PushOptions struct {
	BaseURL string
	AppID   string
	Key     string
	Secret  string
	Timeout time.Duration
}

func (o PushOptions) withDefaults() PushOptions {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	return o
}

// PushClient triggers real-time events on the push gateway (a Pusher-style
// HTTP API). Failures surface to the caller so the job queue's retry policy
// applies.
type PushClient struct {
	http  *httpx.Client
	appID string
}

// NewPushClient builds a client for the configured gateway.
func NewPushClient(opts PushOptions) *PushClient {
	cfg := opts.withDefaults()
	return &PushClient{
		http: httpx.NewClient(
			httpx.WithBaseURL(cfg.BaseURL),
			httpx.WithClientTimeout(cfg.Timeout),
			httpx.WithHeaders(map[string]string{
				"Content-Type": "application/json",
				"X-App-Key":    cfg.Key,
				"X-App-Secret": cfg.Secret,
			}),
		),
		appID: cfg.AppID,
	}
}

type triggerRequest struct {
	Name    string `json:"name"`
	Channel string `json:"channel"`
	Data    any    `json:"data"`
}

// Trigger publishes one event on a channel.
func (p *PushClient) Trigger(ctx context.Context, channel, event string, data any) error {
	path := fmt.Sprintf("/apps/%s/events", p.appID)
	if _, err := p.http.Post(ctx, path, triggerRequest{Name: event, Channel: channel, Data: data}, nil); err != nil {
		return fmt.Errorf("push trigger %s/%s: %w", channel, event, err)
	}
	return nil
}
