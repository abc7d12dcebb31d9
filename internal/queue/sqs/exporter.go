package sqsqueue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"dashfeed/internal/domain"
)

// Exporter republishes decoded push messages to an SQS queue so downstream
// consumers (alerting, analytics) can ride the same stream the dashboard
// sees. Export failures are the caller's to count; they never affect the
// push connection.
type Exporter struct {
	SQS      *sqs.Client
	QueueURL string
}

// PushEvent is the exported wire shape. Exactly one payload field is set.
type PushEvent struct {
	Type           string                       `json:"type"`
	ReceivedAt     time.Time                    `json:"received_at"`
	Notification   *domain.Notification         `json:"notification,omitempty"`
	UnreadCount    *int                         `json:"unread_count,omitempty"`
	CampaignStatus *domain.CampaignStatusUpdate `json:"campaign_status,omitempty"`
}

func (e *Exporter) Export(ctx context.Context, msg domain.Message, receivedAt time.Time) error {
	ev := PushEvent{Type: string(msg.Type), ReceivedAt: receivedAt}
	switch msg.Type {
	case domain.MessageTypeNotification:
		ev.Notification = msg.Notification
	case domain.MessageTypeUnreadCount:
		n := msg.UnreadCount
		ev.UnreadCount = &n
	case domain.MessageTypeCampaignStatus:
		ev.CampaignStatus = msg.CampaignStatus
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	groupID := GroupID(msg)
	_, err = e.SQS.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:       &e.QueueURL,
		MessageBody:    str(string(body)),
		MessageGroupId: str(groupID),
	})
	return err
}

// GroupID keeps FIFO ordering per campaign, with a shared lane for
// everything that is not campaign-scoped.
func GroupID(msg domain.Message) string {
	if msg.Type == domain.MessageTypeCampaignStatus && msg.CampaignStatus != nil {
		return "campaign:" + msg.CampaignStatus.ID
	}
	return "feed"
}

func str(s string) *string { return &s }
