package domain

// Service categories. An artist belongs to exactly one.
const (
	CategoryMakeup = "makeup"
	CategoryHair   = "hair"
)

// Batch modes.
const (
	ModeSingle    = "single"
	ModeBroadcast = "broadcast"
)

// Batch states. completed and expired_no_action are terminal.
const (
	BatchOpen      = "open"
	BatchCompleted = "completed"
	BatchExpired   = "expired_no_action"
)

// Batch start reasons.
const (
	ReasonInitialUndecided   = "initial_undecided"
	ReasonPriorBatchDeclined = "prior_batch_declined"
	ReasonManual             = "manual"
)

// Proposal responses. Unset is stored as NULL.
const (
	ResponseYes = "yes"
	ResponseNo  = "no"
)

type Artist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	BoardItemID string `json:"board_item_id,omitempty"`
	Category    string `json:"category" enum:"makeup,hair"`
	Tier        int    `json:"tier" minimum:"1" maximum:"3"`
	Active      bool   `json:"active"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type ClientServiceRecord struct {
	ID          string `json:"id"`
	BoardItemID string `json:"board_item_id"`
	Category    string `json:"category" enum:"makeup,hair"`
	ClientName  string `json:"client_name,omitempty"`
	EventDate   string `json:"event_date,omitempty"`
	Venue       string `json:"venue,omitempty"`
	Details     string `json:"details,omitempty"`
	Status      string `json:"status,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type ProposalBatch struct {
	ID              string  `json:"id"`
	ClientServiceID string  `json:"client_service_id"`
	Mode            string  `json:"mode" enum:"single,broadcast"`
	State           string  `json:"state" enum:"open,completed,expired_no_action"`
	StartReason     string  `json:"start_reason"`
	Deadline        string  `json:"deadline" format:"date-time"`
	CreatedAt       string  `json:"created_at" format:"date-time"`
	CompletedAt     *string `json:"completed_at,omitempty" format:"date-time"`
}

type Proposal struct {
	ID              string  `json:"id"`
	BatchID         string  `json:"batch_id"`
	ArtistID        string  `json:"artist_id"`
	ClientServiceID string  `json:"client_service_id"`
	Response        *string `json:"response,omitempty" enum:"yes,no"`
	RespondedAt     *string `json:"responded_at,omitempty" format:"date-time"`
	CreatedAt       string  `json:"created_at" format:"date-time"`
}

type AuditEntry struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Action     string `json:"action"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Role      string `json:"role,omitempty"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// OpenProposalView is one row of the artist-facing availability list.
type OpenProposalView struct {
	ProposalID string `json:"proposal_id"`
	BatchID    string `json:"batch_id"`
	Mode       string `json:"mode" enum:"single,broadcast"`
	Deadline   string `json:"deadline" format:"date-time"`
	RecordID   string `json:"record_id"`
	ClientName string `json:"client_name,omitempty"`
	EventDate  string `json:"event_date,omitempty"`
	Venue      string `json:"venue,omitempty"`
	Details    string `json:"details,omitempty"`
}

// ProposalWithArtist is one proposal joined with artist display fields.
type ProposalWithArtist struct {
	Proposal
	ArtistName     string `json:"artist_name"`
	ArtistTier     int    `json:"artist_tier"`
	ArtistCategory string `json:"artist_category" enum:"makeup,hair"`
}

// BatchView renders one batch with its proposals for a client service.
type BatchView struct {
	ProposalBatch
	Proposals []ProposalWithArtist `json:"proposals"`
}

// ArtistStats aggregates an artist's proposal history.
type ArtistStats struct {
	ArtistID string `json:"artist_id"`
	Total    int    `json:"total"`
	Accepted int    `json:"accepted"`
	Declined int    `json:"declined"`
	Pending  int    `json:"pending"`
}
