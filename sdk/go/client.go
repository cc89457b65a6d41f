package booklinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Bookline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Proposal represents one offer to one artist.
type Proposal struct {
	ID              string  `json:"id"`
	BatchID         string  `json:"batch_id"`
	ArtistID        string  `json:"artist_id"`
	ClientServiceID string  `json:"client_service_id"`
	Response        *string `json:"response,omitempty"`
	RespondedAt     *string `json:"responded_at,omitempty"`
	CreatedAt       string  `json:"created_at"`
}

// OpenProposal is one row of the artist availability list.
type OpenProposal struct {
	ProposalID string `json:"proposal_id"`
	BatchID    string `json:"batch_id"`
	Mode       string `json:"mode"`
	Deadline   string `json:"deadline"`
	RecordID   string `json:"record_id"`
	ClientName string `json:"client_name,omitempty"`
	EventDate  string `json:"event_date,omitempty"`
	Venue      string `json:"venue,omitempty"`
	Details    string `json:"details,omitempty"`
}

// BatchCreated is the create-batch result.
type BatchCreated struct {
	BatchID       string `json:"batch_id"`
	Mode          string `json:"mode"`
	Deadline      string `json:"deadline"`
	ProposalCount int    `json:"proposal_count"`
}

// ArtistStats aggregates an artist's proposal history.
type ArtistStats struct {
	ArtistID string `json:"artist_id"`
	Total    int    `json:"total"`
	Accepted int    `json:"accepted"`
	Declined int    `json:"declined"`
	Pending  int    `json:"pending"`
}

// SweepResult summarizes one deadline pass.
type SweepResult struct {
	Processed      int      `json:"processed"`
	Escalated      int      `json:"escalated"`
	OptionsSent    int      `json:"options_sent"`
	NoAvailability int      `json:"no_availability"`
	Errors         []string `json:"errors,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// OpenProposals lists the still-answerable offers for an artist.
func (c *Client) OpenProposals(ctx context.Context, artistID string) ([]OpenProposal, error) {
	var resp []OpenProposal
	endpoint := fmt.Sprintf("v0/artists/%s/proposals", url.PathEscape(artistID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Respond records a yes or no on a proposal.
func (c *Client) Respond(ctx context.Context, proposalID, response string) (Proposal, error) {
	var resp Proposal
	endpoint := fmt.Sprintf("v0/proposals/%s/respond", url.PathEscape(proposalID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"response": response}, &resp)
	return resp, err
}

// CreateBatch opens a proposal batch for a client service.
func (c *Client) CreateBatch(ctx context.Context, clientServiceID, mode string) (BatchCreated, error) {
	body := map[string]any{
		"client_service_id": clientServiceID,
		"mode":              mode,
	}
	var resp BatchCreated
	err := c.do(ctx, http.MethodPost, "v0/batches", body, &resp)
	return resp, err
}

// Stats returns an artist's response history.
func (c *Client) Stats(ctx context.Context, artistID string) (ArtistStats, error) {
	var resp ArtistStats
	endpoint := fmt.Sprintf("v0/artists/%s/stats", url.PathEscape(artistID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Sweep runs one deadline pass.
func (c *Client) Sweep(ctx context.Context) (SweepResult, error) {
	var resp SweepResult
	err := c.do(ctx, http.MethodPost, "v0/sweep", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	u := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
