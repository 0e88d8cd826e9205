package models

import "time"

type ChannelKind string

const (
	ChannelTelegram ChannelKind = "telegram"
	ChannelWhatsApp ChannelKind = "whatsapp"
)

func (c ChannelKind) Valid() bool {
	return c == ChannelTelegram || c == ChannelWhatsApp
}

type VerificationRequest struct {
	Nonce     string      `json:"nonce" dynamodbav:"Nonce"`
	UserID    string      `json:"user_id" dynamodbav:"UserID"`
	Channel   ChannelKind `json:"channel" dynamodbav:"Channel"`
	CreatedAt time.Time   `json:"created_at" dynamodbav:"CreatedAt"`
	ExpiresAt time.Time   `json:"expires_at" dynamodbav:"ExpiresAt"`
}

func (v *VerificationRequest) Expired(now time.Time) bool {
	return now.After(v.ExpiresAt)
}

// ConfirmedChannelLink is written when a bot integration validates a nonce
// out-of-band. Nonce may be empty for rows written directly to the store by
// older bot versions; when present it correlates the row to the exact
// verification attempt.
type ConfirmedChannelLink struct {
	UserID     string      `json:"user_id" dynamodbav:"UserID"`
	Channel    ChannelKind `json:"channel" dynamodbav:"Channel"`
	Link       string      `json:"link" dynamodbav:"Link"`
	Nonce      string      `json:"nonce,omitempty" dynamodbav:"Nonce,omitempty"`
	VerifiedAt time.Time   `json:"verified_at" dynamodbav:"VerifiedAt"`
}
