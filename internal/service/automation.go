package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"wagate/internal/constants"
	"wagate/internal/models"
	"wagate/internal/retry"

	"github.com/sirupsen/logrus"
)

// SettingsStore is the key-value settings surface the automation layer
// reads its webhook bindings from.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (value string, found bool, err error)
	SetSetting(ctx context.Context, key, value string) error
}

// AutomationConfig is the webhook binding resolved for one client.
type AutomationConfig struct {
	WebhookURL string `json:"webhookUrl,omitempty"`
	Secret     string `json:"secret,omitempty"`
}

// InboundEvent is the payload posted to an automation webhook for every
// inbound message.
type InboundEvent struct {
	Event    string                `json:"event"`
	ClientID string                `json:"clientId"`
	Message  models.InboundMessage `json:"message"`
}

// Automation forwards inbound messages to per-client webhooks configured in
// the settings store. Forwarding is fire-and-forget: delivery failures are
// logged and never influence message persistence or acknowledgement.
type Automation struct {
	store   SettingsStore
	client  *http.Client
	logger  *logrus.Logger
	timeout time.Duration
	backoff *retry.Backoff
}

// NewAutomation creates an automation forwarder. A nil httpClient gets a
// default client with the forward timeout applied.
func NewAutomation(store SettingsStore, httpClient *http.Client, logger *logrus.Logger) *Automation {
	timeout := constants.DefaultWebhookTimeoutSec * time.Second
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Automation{
		store:   store,
		client:  httpClient,
		logger:  logger,
		timeout: timeout,
		backoff: retry.NewBackoff(retry.BackoffConfig{
			InitialDelay: constants.DefaultWebhookRetryDelayMs * time.Millisecond,
			MaxDelay:     constants.DefaultWebhookRetryDelayMs * 4 * time.Millisecond,
			Multiplier:   2.0,
			MaxAttempts:  constants.DefaultWebhookRetryAttempts,
		}),
	}
}

func webhookKey(clientID string) string {
	return constants.SettingAutomationWebhookPrefix + clientID
}

func secretKey(clientID string) string {
	return constants.SettingAutomationSecretPrefix + clientID
}

// Config resolves the webhook binding for clientID. A per-client binding
// wins; otherwise the global binding applies. Each field falls back
// independently.
func (a *Automation) Config(ctx context.Context, clientID string) (AutomationConfig, error) {
	var cfg AutomationConfig

	url, found, err := a.store.GetSetting(ctx, webhookKey(clientID))
	if err != nil {
		return cfg, err
	}
	if !found {
		url, _, err = a.store.GetSetting(ctx, constants.SettingAutomationWebhook)
		if err != nil {
			return cfg, err
		}
	}
	cfg.WebhookURL = url

	secret, found, err := a.store.GetSetting(ctx, secretKey(clientID))
	if err != nil {
		return cfg, err
	}
	if !found {
		secret, _, err = a.store.GetSetting(ctx, constants.SettingAutomationSecret)
		if err != nil {
			return cfg, err
		}
	}
	cfg.Secret = secret
	return cfg, nil
}

// SetConfig stores a webhook binding. An empty clientID updates the global
// binding. Nil fields are left untouched.
func (a *Automation) SetConfig(ctx context.Context, clientID string, webhookURL, secret *string) (AutomationConfig, error) {
	urlKey := constants.SettingAutomationWebhook
	secKey := constants.SettingAutomationSecret
	if clientID != "" {
		urlKey = webhookKey(clientID)
		secKey = secretKey(clientID)
	}

	if webhookURL != nil {
		if err := a.store.SetSetting(ctx, urlKey, *webhookURL); err != nil {
			return AutomationConfig{}, err
		}
	}
	if secret != nil {
		if err := a.store.SetSetting(ctx, secKey, *secret); err != nil {
			return AutomationConfig{}, err
		}
	}
	return a.Config(ctx, clientID)
}

// ForwardInbound posts msg to the webhook bound for clientID, if any. The
// post happens on its own goroutine with a bounded timeout and retry.
func (a *Automation) ForwardInbound(clientID string, msg models.InboundMessage) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		log := a.logger.WithField("client_id", clientID)

		cfg, err := a.Config(ctx, clientID)
		if err != nil {
			log.WithError(err).Warn("Failed to resolve automation webhook")
			return
		}
		if cfg.WebhookURL == "" {
			return
		}

		event := InboundEvent{
			Event:    constants.AutomationInboundEvent,
			ClientID: clientID,
			Message:  msg,
		}
		if err := a.backoff.Retry(ctx, func() error {
			return a.post(ctx, cfg, event)
		}); err != nil {
			log.WithError(err).WithField("webhook_url", cfg.WebhookURL).Warn("Automation webhook delivery failed")
			return
		}
		log.Debug("Inbound message forwarded to automation webhook")
	}()
}

func (a *Automation) post(ctx context.Context, cfg AutomationConfig, event InboundEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal automation event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.Secret != "" {
		req.Header.Set(constants.AutomationSecretHeader, cfg.Secret)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
