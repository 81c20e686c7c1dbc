package models

import "time"

// InboundMessage is an append-only audit record of a received message.
type InboundMessage struct {
	ID        int64     `json:"id"`
	ClientID  string    `json:"clientId"`
	From      string    `json:"from"`
	To        *string   `json:"to,omitempty"`
	Body      string    `json:"body"`
	FromMe    bool      `json:"fromMe"`
	Timestamp *int64    `json:"ts,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
