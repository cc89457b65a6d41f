// Package notify delivers messages to artists and triggers external
// automations. Delivery is best-effort: callers run these after their
// transaction commits and treat failures as log-and-continue.
package notify

import "context"

// Automation kinds triggered when a batch expires.
const (
	AutomationSendOptions    = "send_options"
	AutomationNoAvailability = "no_availability"
)

// Offer is the payload sent to artists when a batch opens.
type Offer struct {
	ProposalID string `json:"proposal_id"`
	BatchID    string `json:"batch_id"`
	Mode       string `json:"mode"`
	Deadline   string `json:"deadline"`
	ClientName string `json:"client_name,omitempty"`
	EventDate  string `json:"event_date,omitempty"`
	Venue      string `json:"venue,omitempty"`
}

// Resolution is the payload for an automation trigger.
type Resolution struct {
	BatchID     string `json:"batch_id"`
	RecordID    string `json:"record_id"`
	BoardItemID string `json:"board_item_id"`
	Category    string `json:"category"`
	ClientName  string `json:"client_name,omitempty"`
	Yes         int    `json:"yes"`
	No          int    `json:"no"`
	Pending     int    `json:"pending"`
}

// Gateway is the outbound side of the engine.
type Gateway interface {
	NotifyArtists(ctx context.Context, artistIDs []string, offer Offer) error
	TriggerAutomation(ctx context.Context, kind string, res Resolution) error
}

// Noop discards everything. Used by the CLI paths that only touch local
// state and by tests that do not assert on delivery.
type Noop struct{}

func (Noop) NotifyArtists(ctx context.Context, artistIDs []string, offer Offer) error { return nil }
func (Noop) TriggerAutomation(ctx context.Context, kind string, res Resolution) error { return nil }
