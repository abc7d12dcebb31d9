package domain

import "time"

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignSent      CampaignStatus = "sent"
	CampaignPaused    CampaignStatus = "paused"
	CampaignFailed    CampaignStatus = "failed"
)

// Notification is a single dashboard notification as delivered by the
// platform, either in bulk over REST or one at a time over the push channel.
type Notification struct {
	ID                string            `json:"id"`
	Organization      string            `json:"organization"`
	User              string            `json:"user,omitempty"`
	NotificationType  string            `json:"notification_type"`
	Title             string            `json:"title"`
	Message           string            `json:"message"`
	RelatedObjectType string            `json:"related_object_type,omitempty"`
	RelatedObjectID   string            `json:"related_object_id,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	IsRead            bool              `json:"is_read"`
	ReadAt            *time.Time        `json:"read_at,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Campaign is the locally tracked view of a campaign. Only the status,
// counter and timestamp fields are touched by push updates; everything else
// keeps whatever the initial fetch supplied.
type Campaign struct {
	ID                   string         `json:"id"`
	Name                 string         `json:"name"`
	Subject              string         `json:"subject,omitempty"`
	Status               CampaignStatus `json:"status"`
	StatsSent            int            `json:"stats_sent"`
	StatsDelivered       int            `json:"stats_delivered"`
	StatsOpened          int            `json:"stats_opened"`
	StatsClicked         int            `json:"stats_clicked"`
	StatsTotalRecipients int            `json:"stats_total_recipients"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// CampaignStatusUpdate is the push-channel delta for one campaign.
type CampaignStatusUpdate struct {
	ID                   string         `json:"id"`
	Name                 string         `json:"name"`
	Status               CampaignStatus `json:"status"`
	OldStatus            CampaignStatus `json:"old_status"`
	StatsSent            int            `json:"stats_sent"`
	StatsDelivered       int            `json:"stats_delivered"`
	StatsOpened          int            `json:"stats_opened"`
	StatsClicked         int            `json:"stats_clicked"`
	StatsTotalRecipients int            `json:"stats_total_recipients"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// Apply merges the update into c in place, leaving all other fields alone.
func (u CampaignStatusUpdate) Apply(c *Campaign) {
	c.Status = u.Status
	c.StatsSent = u.StatsSent
	c.StatsDelivered = u.StatsDelivered
	c.StatsOpened = u.StatsOpened
	c.StatsClicked = u.StatsClicked
	c.StatsTotalRecipients = u.StatsTotalRecipients
	c.UpdatedAt = u.UpdatedAt
}
