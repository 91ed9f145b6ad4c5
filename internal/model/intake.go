package model

import (
	"time"
)

// IntakeMessage is one inbound chat message handed over by the
// transport layer. The transport has already verified the sender; the
// handle here is still external and must be normalized before use.
type IntakeMessage struct {
	ReceivedAt        time.Time `json:"received_at"`
	UserHandle        string    `json:"user_handle"`
	ExternalMessageID string    `json:"external_message_id,omitempty"`
	Text              string    `json:"text"`
}
