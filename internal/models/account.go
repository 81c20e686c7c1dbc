package models

import "time"

// AccountStatus is the persisted lifecycle state of one client session.
type AccountStatus string

const (
	AccountStatusInitializing  AccountStatus = "INITIALIZING"
	AccountStatusQR            AccountStatus = "QR"
	AccountStatusAuthenticated AccountStatus = "AUTHENTICATED"
	AccountStatusReady         AccountStatus = "READY"
	AccountStatusAuthFailure   AccountStatus = "AUTH_FAILURE"
	AccountStatusDisconnected  AccountStatus = "DISCONNECTED"
)

// Account is the durable record for one client identifier. It is created on the
// first start attempt, mutated by lifecycle events and the connection monitor,
// and deleted when the session is purged.
type Account struct {
	ID                 int64         `json:"id"`
	ClientID           string        `json:"clientId"`
	Status             AccountStatus `json:"status"`
	LastConnectedAt    *time.Time    `json:"lastConnectedAt,omitempty"`
	LastDisconnectedAt *time.Time    `json:"lastDisconnectedAt,omitempty"`
	LastMessageAt      *time.Time    `json:"lastMessageAt,omitempty"`
	LastQR             *string       `json:"lastQr,omitempty"`
	CreatedAt          time.Time     `json:"createdAt"`
	UpdatedAt          time.Time     `json:"updatedAt"`
}
