package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

type MessageType string

const (
	MessageTypeNotification   MessageType = "notification"
	MessageTypeUnreadCount    MessageType = "unread_count"
	MessageTypeCampaignStatus MessageType = "campaign_status_update"
)

var (
	ErrBadEnvelope        = errors.New("malformed push envelope")
	ErrUnknownMessageType = errors.New("unknown push message type")
)

// envelope is the raw wire shape; Data stays opaque until the type tag has
// been inspected.
type envelope struct {
	Type  MessageType     `json:"type"`
	Data  json.RawMessage `json:"data,omitempty"`
	Count *int            `json:"count,omitempty"`
}

// Message is the decoded form of one push frame. Exactly one payload field is
// set, selected by Type.
type Message struct {
	Type           MessageType
	Notification   *Notification
	UnreadCount    int
	CampaignStatus *CampaignStatusUpdate
}

// DecodeMessage parses one push frame into a typed Message. Frames that do
// not match a known variant are rejected here so downstream code never sees
// untyped payloads.
func DecodeMessage(raw []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}

	switch env.Type {
	case MessageTypeNotification:
		if len(env.Data) == 0 {
			return Message{}, fmt.Errorf("%w: notification without data", ErrBadEnvelope)
		}
		var n Notification
		if err := json.Unmarshal(env.Data, &n); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
		}
		if n.ID == "" {
			return Message{}, fmt.Errorf("%w: notification without id", ErrBadEnvelope)
		}
		return Message{Type: env.Type, Notification: &n}, nil

	case MessageTypeUnreadCount:
		if env.Count == nil {
			return Message{}, fmt.Errorf("%w: unread_count without count", ErrBadEnvelope)
		}
		if *env.Count < 0 {
			return Message{}, fmt.Errorf("%w: negative unread count", ErrBadEnvelope)
		}
		return Message{Type: env.Type, UnreadCount: *env.Count}, nil

	case MessageTypeCampaignStatus:
		if len(env.Data) == 0 {
			return Message{}, fmt.Errorf("%w: campaign_status_update without data", ErrBadEnvelope)
		}
		var u CampaignStatusUpdate
		if err := json.Unmarshal(env.Data, &u); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
		}
		if u.ID == "" {
			return Message{}, fmt.Errorf("%w: campaign update without id", ErrBadEnvelope)
		}
		return Message{Type: env.Type, CampaignStatus: &u}, nil

	case "":
		return Message{}, fmt.Errorf("%w: missing type tag", ErrBadEnvelope)
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
	}
}
