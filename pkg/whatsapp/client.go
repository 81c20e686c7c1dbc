package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"wagate/pkg/whatsapp/types"
)

// EngineConfig holds settings for the chat-engine HTTP API.
type EngineConfig struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	LaunchTimeout time.Duration
}

// EngineClient talks to the chat-engine HTTP API and acts as the session
// factory for the lifecycle manager. Lifecycle events flow back through the
// webhook URL configured per session.
type EngineClient struct {
	cfg    EngineConfig
	client *http.Client
}

func NewEngineClient(cfg EngineConfig) *EngineClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.LaunchTimeout <= 0 {
		cfg.LaunchTimeout = 60 * time.Second
	}
	return &EngineClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// NewSession constructs a session handle bound to one client identifier.
func (c *EngineClient) NewSession(cfg types.SessionConfig) (types.Session, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client identifier is required")
	}
	return &engineSession{client: c, cfg: cfg}, nil
}

type engineSession struct {
	client *EngineClient
	cfg    types.SessionConfig
}

type engineErrorResponse struct {
	Error string          `json:"error,omitempty"`
	Code  types.FaultCode `json:"code,omitempty"`
}

func (s *engineSession) Initialize(ctx context.Context) error {
	// The engine launch can take considerably longer than a normal API
	// call; use the configured launch timeout for the whole handshake.
	launchCtx, cancel := context.WithTimeout(ctx, s.client.cfg.LaunchTimeout)
	defer cancel()

	payload := map[string]interface{}{
		"name": s.cfg.ClientID,
		"config": map[string]interface{}{
			"dataPath": s.cfg.DataPath,
			"webhook":  s.cfg.WebhookURL,
		},
	}
	if err := s.client.post(launchCtx, "/api/sessions", payload, nil); err != nil {
		return err
	}
	return s.client.post(launchCtx, fmt.Sprintf("/api/sessions/%s/start", url.PathEscape(s.cfg.ClientID)), nil, nil)
}

func (s *engineSession) Destroy(ctx context.Context) error {
	path := fmt.Sprintf("/api/sessions/%s", url.PathEscape(s.cfg.ClientID))
	if err := s.client.post(ctx, path+"/stop", nil, nil); err != nil && !isNotFound(err) {
		return err
	}
	if err := s.client.delete(ctx, path); err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func (s *engineSession) SendText(ctx context.Context, chatID, text string) error {
	payload := map[string]interface{}{
		"session": s.cfg.ClientID,
		"chatId":  chatID,
		"text":    text,
	}
	return s.client.post(ctx, "/api/sendText", payload, nil)
}

func (s *engineSession) GetState(ctx context.Context) (types.ConnectionState, error) {
	var result struct {
		State types.ConnectionState `json:"state"`
	}
	path := fmt.Sprintf("/api/sessions/%s/state", url.PathEscape(s.cfg.ClientID))
	if err := s.client.get(ctx, path, &result); err != nil {
		return "", err
	}
	return result.State, nil
}

func (s *engineSession) GetNumberID(ctx context.Context, number string) (string, error) {
	var result struct {
		NumberExists bool   `json:"numberExists"`
		ChatID       string `json:"chatId"`
	}
	path := fmt.Sprintf("/api/contacts/check-exists?phone=%s&session=%s",
		url.QueryEscape(number), url.QueryEscape(s.cfg.ClientID))
	err := s.client.get(ctx, path, &result)
	if isNotFound(err) {
		return "", types.ErrLookupUnsupported
	}
	if err != nil {
		return "", err
	}
	if !result.NumberExists {
		return "", nil
	}
	return result.ChatID, nil
}

// IsRegisteredUser is the secondary registration-check capability, used when
// the primary lookup endpoint is absent on the engine.
func (s *engineSession) IsRegisteredUser(ctx context.Context, chatID string) (bool, error) {
	var result struct {
		Registered bool `json:"registered"`
	}
	payload := map[string]interface{}{
		"session": s.cfg.ClientID,
		"chatId":  chatID,
	}
	if err := s.client.post(ctx, "/api/contacts/is-registered", payload, &result); err != nil {
		return false, err
	}
	return result.Registered, nil
}

func (c *EngineClient) get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *EngineClient) post(ctx context.Context, path string, payload, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, payload, out)
}

func (c *EngineClient) delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *EngineClient) do(ctx context.Context, method, path string, payload, out interface{}) error {
	body := bytes.NewBuffer(nil)
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-Api-Key", c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &types.FaultError{Code: types.FaultEngineUnavailable, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return classifyEngineError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// statusError preserves the HTTP status for plain (non-fault) engine errors.
type statusError struct {
	status  int
	message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("engine request failed with status %d: %s", e.status, e.message)
}

func isNotFound(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.status == http.StatusNotFound
}

// classifyEngineError turns an engine error response into a structured fault
// when the engine reported a known fault code, or a plain status error
// otherwise. Callers never match on message text.
func classifyEngineError(resp *http.Response) error {
	var engineErr engineErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&engineErr)

	if engineErr.Code != "" {
		return &types.FaultError{Code: engineErr.Code, Message: engineErr.Error}
	}
	return &statusError{status: resp.StatusCode, message: engineErr.Error}
}
