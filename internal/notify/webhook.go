package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bookline/internal/config"
)

const defaultWebhookTimeout = 5 * time.Second

// WebhookGateway posts JSON payloads to the configured endpoints with a
// shared-secret header.
type WebhookGateway struct {
	ArtistHook     config.WebhookConfig
	SendOptions    config.WebhookConfig
	NoAvailability config.WebhookConfig
	client         *http.Client
}

func NewWebhookGateway(cfg *config.Config) *WebhookGateway {
	return &WebhookGateway{
		ArtistHook:     cfg.Notifications.ArtistWebhook,
		SendOptions:    cfg.Automations.SendOptions,
		NoAvailability: cfg.Automations.NoAvailability,
		client:         &http.Client{Timeout: defaultWebhookTimeout},
	}
}

type artistMessage struct {
	ArtistIDs []string `json:"artist_ids"`
	Offer     Offer    `json:"offer"`
}

func (g *WebhookGateway) NotifyArtists(ctx context.Context, artistIDs []string, offer Offer) error {
	if !g.ArtistHook.On() {
		return nil
	}
	if len(artistIDs) == 0 {
		return nil
	}
	return g.post(ctx, g.ArtistHook, "offer", artistMessage{ArtistIDs: artistIDs, Offer: offer})
}

func (g *WebhookGateway) TriggerAutomation(ctx context.Context, kind string, res Resolution) error {
	var hook config.WebhookConfig
	switch kind {
	case AutomationSendOptions:
		hook = g.SendOptions
	case AutomationNoAvailability:
		hook = g.NoAvailability
	default:
		return fmt.Errorf("unknown automation kind %s", kind)
	}
	if !hook.On() {
		return nil
	}
	return g.post(ctx, hook, kind, res)
}

func (g *WebhookGateway) post(ctx context.Context, hook config.WebhookConfig, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	client := g.client
	if client == nil {
		client = &http.Client{Timeout: defaultWebhookTimeout}
	}
	if hook.TimeoutSeconds > 0 {
		timeout := time.Duration(hook.TimeoutSeconds) * time.Second
		if timeout != client.Timeout {
			client = &http.Client{Timeout: timeout}
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Bookline-Event", event)
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Bookline-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
