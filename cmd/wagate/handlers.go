package main

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"wagate/internal/constants"
	apperrors "wagate/internal/errors"
	"wagate/internal/models"
	"wagate/internal/service"
	"wagate/pkg/whatsapp/types"

	"github.com/gorilla/mux"
)

const (
	defaultInboundListLimit = 50
	maxInboundListLimit     = 200
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			s.logger.WithError(err).Error("Failed to encode response")
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// writeError maps typed application errors onto HTTP status codes; anything
// unclassified is a 500 with a generic message.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"
	code := apperrors.GetCode(err)

	switch code {
	case apperrors.ErrCodeInvalidInput, apperrors.ErrCodeValidationFailed:
		status = http.StatusBadRequest
	case apperrors.ErrCodeNotFound:
		status = http.StatusNotFound
	case apperrors.ErrCodeSessionDisconnected:
		status = http.StatusConflict
	case apperrors.ErrCodeAuthentication, apperrors.ErrCodeAuthorization:
		status = http.StatusUnauthorized
	case apperrors.ErrCodeTransportInit, apperrors.ErrCodeSendFailure:
		status = http.StatusBadGateway
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if appErr.UserMessage != "" {
			message = appErr.UserMessage
		} else {
			message = appErr.Message
		}
	}
	if status == http.StatusInternalServerError {
		s.logger.WithError(err).Error("Request failed")
		message = "internal server error"
	}

	s.writeJSON(w, status, errorResponse{Error: message, Code: string(code)})
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return false
	}
	return true
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"version": Version,
		})
	}
}

func (s *Server) handleEngineEvent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID := mux.Vars(r)["clientId"]

		var event types.Event
		if !s.decodeBody(w, r, &event) {
			return
		}
		if event.Type == "" {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "event type is required"})
			return
		}

		if err := s.manager.HandleEvent(r.Context(), clientID, event); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
	}
}

type accountResponse struct {
	models.Account
	Live bool `json:"live"`
}

func (s *Server) accountView(account *models.Account) accountResponse {
	return accountResponse{
		Account: *account,
		Live:    s.manager.LiveSession(account.ClientID) != nil,
	}
}

func (s *Server) handleListAccounts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accounts, err := s.db.ListAccounts(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		views := make([]accountResponse, 0, len(accounts))
		for i := range accounts {
			views = append(views, s.accountView(&accounts[i]))
		}
		s.writeJSON(w, http.StatusOK, views)
	}
}

func (s *Server) handleCreateAccount() http.HandlerFunc {
	type request struct {
		ClientID string `json:"clientId"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if !s.decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.ClientID) == "" {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "clientId is required"})
			return
		}
		s.startAccount(w, r, req.ClientID)
	}
}

func (s *Server) handleStartAccount() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.startAccount(w, r, mux.Vars(r)["clientId"])
	}
}

func (s *Server) startAccount(w http.ResponseWriter, r *http.Request, clientID string) {
	if _, err := s.manager.Start(r.Context(), clientID, service.StartOptions{}); err != nil {
		s.writeError(w, err)
		return
	}
	account, err := s.db.GetAccount(r.Context(), clientID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if account == nil {
		s.writeError(w, apperrors.NewNotFoundError("account", clientID))
		return
	}
	s.writeJSON(w, http.StatusAccepted, s.accountView(account))
}

func (s *Server) handleGetAccount() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID := mux.Vars(r)["clientId"]
		account, err := s.db.GetAccount(r.Context(), clientID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if account == nil {
			s.writeError(w, apperrors.NewNotFoundError("account", clientID))
			return
		}
		s.writeJSON(w, http.StatusOK, s.accountView(account))
	}
}

func (s *Server) handleReconnectAccount() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID := mux.Vars(r)["clientId"]
		account, err := s.manager.Reconnect(r.Context(), clientID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusAccepted, s.accountView(account))
	}
}

func (s *Server) handlePurgeAccount() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID := mux.Vars(r)["clientId"]
		if err := s.manager.Purge(r.Context(), clientID); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "purged"})
	}
}

func (s *Server) handleGetQR() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID := mux.Vars(r)["clientId"]
		account, err := s.db.GetAccount(r.Context(), clientID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if account == nil {
			s.writeError(w, apperrors.NewNotFoundError("account", clientID))
			return
		}
		if account.LastQR == nil || *account.LastQR == "" {
			s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "no QR code available; session may already be paired"})
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{
			"clientId": clientID,
			"qr":       *account.LastQR,
			"status":   string(account.Status),
		})
	}
}

func (s *Server) handleValidateNumber() http.HandlerFunc {
	type request struct {
		Number string `json:"number"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		clientID := mux.Vars(r)["clientId"]
		var req request
		if !s.decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Number) == "" {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "number is required"})
			return
		}
		result, err := s.manager.ValidateNumber(r.Context(), clientID, req.Number)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) handleSendMessage() http.HandlerFunc {
	type request struct {
		ClientID    string `json:"clientId"`
		To          string `json:"to"`
		Text        string `json:"text"`
		MaxAttempts int    `json:"maxAttempts,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if !s.decodeBody(w, r, &req) {
			return
		}
		job, err := s.messenger.EnqueueMessage(r.Context(), req.ClientID, req.To, req.Text, req.MaxAttempts)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusAccepted, job)
	}
}

func (s *Server) handleGetJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid job ID"})
			return
		}
		job, err := s.messenger.GetJob(r.Context(), id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, job)
	}
}

func (s *Server) handleCreateBroadcast() http.HandlerFunc {
	type request struct {
		ClientID    string   `json:"clientId"`
		Name        string   `json:"name,omitempty"`
		Text        string   `json:"text"`
		Recipients  []string `json:"recipients"`
		MaxAttempts int      `json:"maxAttempts,omitempty"`
	}
	type response struct {
		Broadcast *models.Broadcast `json:"broadcast"`
		JobIDs    []int64           `json:"jobIds"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if !s.decodeBody(w, r, &req) {
			return
		}
		broadcast, jobIDs, err := s.messenger.EnqueueBroadcast(r.Context(), req.ClientID, req.Name, req.Text, req.Recipients, req.MaxAttempts)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusAccepted, response{Broadcast: broadcast, JobIDs: jobIDs})
	}
}

func (s *Server) handleGetBroadcast() http.HandlerFunc {
	type response struct {
		*models.Broadcast
		Stats models.BroadcastStats `json:"stats"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid broadcast ID"})
			return
		}
		broadcast, stats, err := s.messenger.BroadcastStatus(r.Context(), id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, response{Broadcast: broadcast, Stats: stats})
	}
}

func (s *Server) handleListInbound() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID := r.URL.Query().Get("clientId")
		limit := defaultInboundListLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				limit = n
			}
		}
		if limit > maxInboundListLimit {
			limit = maxInboundListLimit
		}
		messages, err := s.db.ListInboundMessages(r.Context(), clientID, limit)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, messages)
	}
}

// handleSimulateInbound injects an inbound message through the same event
// path the engine webhook uses, which makes automation flows testable
// without a paired device.
func (s *Server) handleSimulateInbound() http.HandlerFunc {
	type request struct {
		ClientID string `json:"clientId"`
		From     string `json:"from"`
		Body     string `json:"body"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if !s.decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.ClientID) == "" || strings.TrimSpace(req.From) == "" {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "clientId and from are required"})
			return
		}
		event := types.Event{
			Type: types.EventMessage,
			Message: &types.MessagePayload{
				From:      req.From,
				Body:      req.Body,
				Timestamp: time.Now().Unix(),
			},
		}
		if err := s.manager.HandleEvent(r.Context(), req.ClientID, event); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	}
}

type runtimeConfigResponse struct {
	SchedulerBaseDelayMs int  `json:"schedulerBaseDelayMs"`
	SchedulerMaxAttempts int  `json:"schedulerMaxAttempts"`
	APIKeySet            bool `json:"apiKeySet"`
}

func (s *Server) handleGetConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		baseDelay, err := s.db.GetIntSetting(r.Context(), constants.SettingSchedulerBaseDelayMs, s.cfg.Scheduler.BaseDelayMs)
		if err != nil {
			s.writeError(w, err)
			return
		}
		maxAttempts, err := s.db.GetIntSetting(r.Context(), constants.SettingSchedulerMaxAttempts, s.cfg.Scheduler.MaxAttempts)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, runtimeConfigResponse{
			SchedulerBaseDelayMs: baseDelay,
			SchedulerMaxAttempts: maxAttempts,
			APIKeySet:            s.resolveAPIKey(r.Context()) != "",
		})
	}
}

func (s *Server) handleUpdateConfig() http.HandlerFunc {
	type request struct {
		SchedulerBaseDelayMs *int    `json:"schedulerBaseDelayMs,omitempty"`
		SchedulerMaxAttempts *int    `json:"schedulerMaxAttempts,omitempty"`
		APIKey               *string `json:"apiKey,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if !s.decodeBody(w, r, &req) {
			return
		}
		if req.SchedulerBaseDelayMs != nil {
			if *req.SchedulerBaseDelayMs < 0 {
				s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "schedulerBaseDelayMs must not be negative"})
				return
			}
			if err := s.db.SetSetting(r.Context(), constants.SettingSchedulerBaseDelayMs, strconv.Itoa(*req.SchedulerBaseDelayMs)); err != nil {
				s.writeError(w, err)
				return
			}
		}
		if req.SchedulerMaxAttempts != nil {
			if *req.SchedulerMaxAttempts < 1 {
				s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "schedulerMaxAttempts must be at least 1"})
				return
			}
			if err := s.db.SetSetting(r.Context(), constants.SettingSchedulerMaxAttempts, strconv.Itoa(*req.SchedulerMaxAttempts)); err != nil {
				s.writeError(w, err)
				return
			}
		}
		if req.APIKey != nil {
			if err := s.db.SetSetting(r.Context(), constants.SettingAPIKey, *req.APIKey); err != nil {
				s.writeError(w, err)
				return
			}
		}
		s.handleGetConfig()(w, r)
	}
}

func (s *Server) handleGetAutomationConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := s.automation.Config(r.Context(), r.URL.Query().Get("clientId"))
		if err != nil {
			s.writeError(w, err)
			return
		}
		// The secret itself never leaves the gateway.
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"webhookUrl": cfg.WebhookURL,
			"secretSet":  cfg.Secret != "",
		})
	}
}

func (s *Server) handleSetAutomationConfig() http.HandlerFunc {
	type request struct {
		ClientID   string  `json:"clientId,omitempty"`
		WebhookURL *string `json:"webhookUrl,omitempty"`
		Secret     *string `json:"secret,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if !s.decodeBody(w, r, &req) {
			return
		}
		cfg, err := s.automation.SetConfig(r.Context(), req.ClientID, req.WebhookURL, req.Secret)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"webhookUrl": cfg.WebhookURL,
			"secretSet":  cfg.Secret != "",
		})
	}
}

// handleAutomationReply lets an automation system send a reply back through
// the gateway. It authenticates with the automation shared secret instead
// of the API key.
func (s *Server) handleAutomationReply() http.HandlerFunc {
	type request struct {
		ClientID string `json:"clientId"`
		To       string `json:"to"`
		Text     string `json:"text"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if !s.decodeBody(w, r, &req) {
			return
		}

		cfg, err := s.automation.Config(r.Context(), req.ClientID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if cfg.Secret == "" {
			s.writeJSON(w, http.StatusForbidden, errorResponse{Error: "automation secret is not configured"})
			return
		}
		provided := r.Header.Get(constants.AutomationSecretHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(cfg.Secret)) != 1 {
			s.writeError(w, apperrors.NewAuthError("invalid automation secret"))
			return
		}

		job, err := s.messenger.EnqueueMessage(r.Context(), req.ClientID, req.To, req.Text, 0)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusAccepted, job)
	}
}
