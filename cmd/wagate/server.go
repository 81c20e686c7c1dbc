package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"wagate/internal/constants"
	"wagate/internal/database"
	"wagate/internal/middleware"
	"wagate/internal/models"
	"wagate/internal/service"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type Server struct {
	cfg        *models.Config
	router     *mux.Router
	logger     *logrus.Logger
	db         *database.Database
	manager    *service.SessionManager
	messenger  *service.Messenger
	automation *service.Automation
	server     *http.Server
}

func NewServer(cfg *models.Config, db *database.Database, manager *service.SessionManager, messenger *service.Messenger, automation *service.Automation, logger *logrus.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		router:     mux.NewRouter(),
		logger:     logger,
		db:         db,
		manager:    manager,
		messenger:  messenger,
		automation: automation,
	}

	s.setupRoutes()
	return s
}

// resolveAPIKey returns the active gateway API key: the settings table wins
// over the configured value so key rotation survives restarts.
func (s *Server) resolveAPIKey(ctx context.Context) string {
	if key, found, err := s.db.GetSetting(ctx, constants.SettingAPIKey); err == nil && found && key != "" {
		return key
	}
	return s.cfg.Server.APIKey
}

// authExempt matches routes that skip API key auth: the health probe, the
// engine event webhook and the automation reply endpoint, which carries its
// own shared secret.
func authExempt(r *http.Request) bool {
	path := r.URL.Path
	return path == "/health" ||
		path == "/automation/reply" ||
		strings.HasPrefix(path, "/events/")
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger))
	s.router.Use(middleware.APIKeyAuth(s.resolveAPIKey, authExempt, s.logger))

	// Health check
	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)

	// Engine event webhook
	s.router.HandleFunc("/events/{clientId}", s.handleEngineEvent()).Methods(http.MethodPost)

	// Session lifecycle; /sessions is an alias kept for older deployments
	for _, prefix := range []string{"/accounts", "/sessions"} {
		r := s.router.PathPrefix(prefix).Subrouter()
		r.HandleFunc("", s.handleListAccounts()).Methods(http.MethodGet)
		r.HandleFunc("", s.handleCreateAccount()).Methods(http.MethodPost)
		r.HandleFunc("/{clientId}", s.handleGetAccount()).Methods(http.MethodGet)
		r.HandleFunc("/{clientId}", s.handlePurgeAccount()).Methods(http.MethodDelete)
		r.HandleFunc("/{clientId}/start", s.handleStartAccount()).Methods(http.MethodPost)
		r.HandleFunc("/{clientId}/reconnect", s.handleReconnectAccount()).Methods(http.MethodPost)
		r.HandleFunc("/{clientId}/qr", s.handleGetQR()).Methods(http.MethodGet)
		r.HandleFunc("/{clientId}/qr/stream", s.handleQRStream()).Methods(http.MethodGet)
		r.HandleFunc("/{clientId}/validate-number", s.handleValidateNumber()).Methods(http.MethodPost)
	}

	// Delivery
	s.router.HandleFunc("/messages", s.handleSendMessage()).Methods(http.MethodPost)
	s.router.HandleFunc("/jobs/{id}", s.handleGetJob()).Methods(http.MethodGet)
	s.router.HandleFunc("/broadcasts", s.handleCreateBroadcast()).Methods(http.MethodPost)
	s.router.HandleFunc("/broadcasts/{id}", s.handleGetBroadcast()).Methods(http.MethodGet)

	// Inbound audit trail
	s.router.HandleFunc("/inbound", s.handleListInbound()).Methods(http.MethodGet)
	s.router.HandleFunc("/inbound", s.handleSimulateInbound()).Methods(http.MethodPost)

	// Runtime settings
	s.router.HandleFunc("/config", s.handleGetConfig()).Methods(http.MethodGet)
	s.router.HandleFunc("/config", s.handleUpdateConfig()).Methods(http.MethodPut)

	// Automation webhooks
	s.router.HandleFunc("/automation/config", s.handleGetAutomationConfig()).Methods(http.MethodGet)
	s.router.HandleFunc("/automation/config", s.handleSetAutomationConfig()).Methods(http.MethodPut)
	s.router.HandleFunc("/automation/reply", s.handleAutomationReply()).Methods(http.MethodPost)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%s", s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  constants.DefaultServerReadTimeoutSec * time.Second,
		WriteTimeout: constants.DefaultServerWriteTimeoutSec * time.Second,
		IdleTimeout:  constants.DefaultServerIdleTimeoutSec * time.Second,
	}

	s.logger.Infof("Starting server on port %s", s.cfg.Server.Port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
