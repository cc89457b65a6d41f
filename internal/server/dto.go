package server

// Request payloads for the Bookline API. Responses reuse the domain
// types directly; they carry the schema tags already.

type CreateArtistRequest struct {
	Name        string `json:"name" example:"Jana K."`
	Category    string `json:"category" enum:"makeup,hair"`
	Tier        int    `json:"tier,omitempty" minimum:"1" maximum:"3"`
	BoardItemID string `json:"board_item_id,omitempty"`
}

type UpdateArtistRequest struct {
	Name   *string `json:"name,omitempty"`
	Tier   *int    `json:"tier,omitempty" minimum:"1" maximum:"3"`
	Active *bool   `json:"active,omitempty"`
}

type SyncArtistsRequest struct {
	BoardID string `json:"board_id,omitempty"`
}

type SyncArtistsResponse struct {
	Synced int `json:"synced"`
}

type SyncRecordRequest struct {
	BoardItemID string `json:"board_item_id"`
	Category    string `json:"category" enum:"makeup,hair"`
}

type CreateBatchRequest struct {
	ClientServiceID string `json:"client_service_id"`
	Mode            string `json:"mode" enum:"single,broadcast"`
	StartReason     string `json:"start_reason,omitempty" enum:"initial_undecided,prior_batch_declined,manual"`
	TargetCount     int    `json:"target_count,omitempty" minimum:"0"`
}

type BatchCreatedResponse struct {
	BatchID       string `json:"batch_id"`
	Mode          string `json:"mode" enum:"single,broadcast"`
	Deadline      string `json:"deadline" format:"date-time"`
	ProposalCount int    `json:"proposal_count"`
}

type RespondRequest struct {
	Response string `json:"response" enum:"yes,no"`
}
