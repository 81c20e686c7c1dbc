package main

import (
	"context"
	"net/http"
	"time"

	"wagate/internal/constants"
	"wagate/pkg/whatsapp/types"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gorilla/mux"
)

// qrStreamFrame is one message pushed over the QR websocket.
type qrStreamFrame struct {
	Type     string `json:"type"`
	ClientID string `json:"clientId"`
	QR       string `json:"qr,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// handleQRStream upgrades to a websocket and pushes QR codes and pairing
// outcomes for one client as they arrive. The last stored QR is replayed
// immediately so a client that connects late still gets a code to render.
func (s *Server) handleQRStream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID := mux.Vars(r)["clientId"]

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			s.logger.WithError(err).WithField("client_id", clientID).Warn("Failed to accept QR stream websocket")
			return
		}
		defer conn.Close(websocket.StatusInternalError, "stream closed")

		ctx := r.Context()
		events, cancel := s.manager.Subscribe(clientID)
		defer cancel()

		if account, err := s.db.GetAccount(ctx, clientID); err == nil && account != nil && account.LastQR != nil && *account.LastQR != "" {
			frame := qrStreamFrame{Type: string(types.EventQR), ClientID: clientID, QR: *account.LastQR}
			if err := wsjson.Write(ctx, conn, frame); err != nil {
				return
			}
		}

		pingInterval := constants.DefaultQRStreamPingIntervalSec * time.Second
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				conn.Close(websocket.StatusNormalClosure, "server shutting down")
				return

			case <-ticker.C:
				pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
				err := conn.Ping(pingCtx)
				pingCancel()
				if err != nil {
					return
				}

			case ev, ok := <-events:
				if !ok {
					conn.Close(websocket.StatusNormalClosure, "stream ended")
					return
				}
				frame, done := streamFrame(clientID, ev)
				if frame == nil {
					continue
				}
				if err := wsjson.Write(ctx, conn, *frame); err != nil {
					return
				}
				if done {
					conn.Close(websocket.StatusNormalClosure, "pairing finished")
					return
				}
			}
		}
	}
}

// streamFrame converts a session event into a websocket frame. Message
// events are not part of the pairing stream; ready and auth_failure end it.
func streamFrame(clientID string, ev types.Event) (*qrStreamFrame, bool) {
	switch ev.Type {
	case types.EventQR:
		return &qrStreamFrame{Type: string(ev.Type), ClientID: clientID, QR: ev.QR}, false
	case types.EventAuthenticated:
		return &qrStreamFrame{Type: string(ev.Type), ClientID: clientID}, false
	case types.EventReady:
		return &qrStreamFrame{Type: string(ev.Type), ClientID: clientID}, true
	case types.EventAuthFailure, types.EventDisconnected:
		return &qrStreamFrame{Type: string(ev.Type), ClientID: clientID, Reason: ev.Reason}, true
	default:
		return nil, false
	}
}
