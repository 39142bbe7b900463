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

	"github.com/ignite/loyalty-rewards/internal/pkg/httpretry"
	"github.com/ignite/loyalty-rewards/internal/pkg/logger"
)

// EvolutionConfig holds the gateway connection settings.
type EvolutionConfig struct {
	Endpoint string
	Instance string
	APIKey   string
	Timeout  time.Duration
}

// EvolutionNotifier sends WhatsApp text messages through an Evolution API
// instance.
type EvolutionNotifier struct {
	endpoint   string
	instance   string
	apiKey     string
	httpClient httpretry.HTTPDoer
}

type sendTextRequest struct {
	Number      string         `json:"number"`
	TextMessage textMessage    `json:"textMessage"`
	Options     sendTextOption `json:"options"`
}

type textMessage struct {
	Text string `json:"text"`
}

type sendTextOption struct {
	Delay       int    `json:"delay"`
	Presence    string `json:"presence"`
	LinkPreview bool   `json:"linkPreview"`
}

// NewEvolutionNotifier creates a notifier for the configured instance.
func NewEvolutionNotifier(cfg EvolutionConfig) *EvolutionNotifier {
	return &EvolutionNotifier{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		instance:   cfg.Instance,
		apiKey:     cfg.APIKey,
		httpClient: httpretry.New(nil, httpretry.Options{Timeout: cfg.Timeout}),
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (n *EvolutionNotifier) SetHTTPClient(client httpretry.HTTPDoer) {
	n.httpClient = client
}

// Send posts msg.Text to msg.Phone. An empty phone returns ErrNoAddress.
func (n *EvolutionNotifier) Send(ctx context.Context, msg Message) error {
	if msg.Phone == "" {
		return ErrNoAddress
	}

	payload, err := json.Marshal(sendTextRequest{
		Number:      msg.Phone,
		TextMessage: textMessage{Text: msg.Text},
		Options: sendTextOption{
			Delay:       1000,
			Presence:    "composing",
			LinkPreview: true,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	url := fmt.Sprintf("%s/message/sendText/%s", n.endpoint, n.instance)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", n.apiKey)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("whatsapp send failed (status %d): %s", resp.StatusCode, string(body))
	}

	logger.Info("whatsapp message sent", "phone", msg.Phone, "status", resp.StatusCode)
	return nil
}
