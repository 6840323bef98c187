package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationStatus string

const (
	NotificationStatusPending  NotificationStatus = "pending"
	NotificationStatusSent     NotificationStatus = "sent"
	NotificationStatusFailed   NotificationStatus = "failed"
	NotificationStatusRetrying NotificationStatus = "retrying"
)

// Notification is an alert about a patient session sent to clinical staff.
type Notification struct {
	ID         uuid.UUID          `json:"id"`
	SessionID  string             `json:"session_id"`
	Channel    string             `json:"channel"`
	Priority   Priority           `json:"priority"`
	Subject    string             `json:"subject"`
	Content    string             `json:"content"`
	Recipient  string             `json:"recipient"`
	Status     NotificationStatus `json:"status"`
	RetryCount int                `json:"retry_count"`
	LastError  string             `json:"last_error,omitempty"`
	SentAt     time.Time          `json:"sent_at,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

// NotificationEvent is the in-app copy published on the broker.
type NotificationEvent struct {
	ID             uuid.UUID `json:"id"`
	NotificationID uuid.UUID `json:"notification_id"`
	SessionID      string    `json:"session_id"`
	Type           string    `json:"type"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}
