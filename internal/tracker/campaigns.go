package tracker

import (
	"sync"

	"dashfeed/internal/domain"
	"dashfeed/internal/realtime"
)

// PushSource is the slice of the realtime client the campaign tracker
// needs: one wildcard subscription for its whole lifetime.
type PushSource interface {
	SubscribeAll(fn realtime.CampaignFunc)
	UnsubscribeAll()
}

// Campaigns keeps an externally supplied list of campaigns current as push
// updates arrive. Updates for untracked ids are dropped silently; the
// OnApplied callback fires exactly once per applied update with the fully
// merged record.
type Campaigns struct {
	source    PushSource
	onApplied func(domain.Campaign)

	mu    sync.Mutex
	items []domain.Campaign
}

func NewCampaigns(source PushSource, onApplied func(domain.Campaign)) *Campaigns {
	t := &Campaigns{source: source, onApplied: onApplied}
	if source != nil {
		source.SubscribeAll(t.Apply)
	}
	return t
}

// Close drops the wildcard subscription. The tracker keeps its state but
// stops receiving push updates.
func (t *Campaigns) Close() {
	if t.source != nil {
		t.source.UnsubscribeAll()
	}
}

// Reset replaces the tracked list wholesale, e.g. after a fresh page fetch.
func (t *Campaigns) Reset(items []domain.Campaign) {
	t.mu.Lock()
	t.items = make([]domain.Campaign, len(items))
	copy(t.items, items)
	t.mu.Unlock()
}

// Apply merges a status update into the tracked campaign with the matching
// id. Fields outside the update are left untouched.
func (t *Campaigns) Apply(upd domain.CampaignStatusUpdate) {
	t.mu.Lock()
	var merged *domain.Campaign
	for i := range t.items {
		if t.items[i].ID == upd.ID {
			upd.Apply(&t.items[i])
			c := t.items[i]
			merged = &c
			break
		}
	}
	t.mu.Unlock()

	if merged != nil && t.onApplied != nil {
		t.onApplied(*merged)
	}
}

// Patch applies a caller-supplied partial edit to one tracked campaign,
// outside the push channel. Returns false when the id is not tracked.
func (t *Campaigns) Patch(id string, fn func(*domain.Campaign)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.items {
		if t.items[i].ID == id {
			fn(&t.items[i])
			return true
		}
	}
	return false
}

func (t *Campaigns) Get(id string) (domain.Campaign, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.items {
		if c.ID == id {
			return c, true
		}
	}
	return domain.Campaign{}, false
}

// Snapshot returns a copy of the tracked list in its current order.
func (t *Campaigns) Snapshot() []domain.Campaign {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Campaign, len(t.items))
	copy(out, t.items)
	return out
}
