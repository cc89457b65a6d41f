package repo

import (
	"context"
	"database/sql"

	"bookline/internal/domain"
)

// OpenProposalsForArtist lists an artist's unanswered proposals in open
// batches. A client service the artist has ever answered, under any
// batch, is excluded so nobody is re-offered a booking they already
// accepted or declined.
func (r Repo) OpenProposalsForArtist(ctx context.Context, artistID string) ([]domain.OpenProposalView, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT p.id, b.id, b.mode, b.deadline, c.id,
       COALESCE(c.client_name,''), COALESCE(c.event_date,''), COALESCE(c.venue,''), COALESCE(c.details,'')
FROM proposals p
JOIN batches b ON b.id = p.batch_id
JOIN client_services c ON c.id = p.client_service_id
WHERE p.artist_id = ?
  AND p.response IS NULL
  AND b.state = ?
  AND NOT EXISTS (
      SELECT 1 FROM proposals prev
      WHERE prev.artist_id = p.artist_id
        AND prev.client_service_id = p.client_service_id
        AND prev.response IS NOT NULL
  )
ORDER BY b.deadline ASC, p.created_at ASC, p.id ASC`, artistID, domain.BatchOpen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.OpenProposalView
	for rows.Next() {
		var v domain.OpenProposalView
		if err := rows.Scan(&v.ProposalID, &v.BatchID, &v.Mode, &v.Deadline, &v.RecordID, &v.ClientName, &v.EventDate, &v.Venue, &v.Details); err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

// ArtistStats aggregates an artist's proposals for reporting.
func (r Repo) ArtistStats(ctx context.Context, artistID string) (domain.ArtistStats, error) {
	stats := domain.ArtistStats{ArtistID: artistID}
	rows, err := r.DB.QueryContext(ctx, `SELECT COALESCE(response,''), count(*) FROM proposals WHERE artist_id=? GROUP BY response`, artistID)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var response string
		var count int
		if err := rows.Scan(&response, &count); err != nil {
			return stats, err
		}
		switch response {
		case domain.ResponseYes:
			stats.Accepted = count
		case domain.ResponseNo:
			stats.Declined = count
		default:
			stats.Pending = count
		}
		stats.Total += count
	}
	return stats, rows.Err()
}

// BatchesForClientService returns the full batch history for a record,
// most recent batch first, each with its proposals and artist display
// fields.
func (r Repo) BatchesForClientService(ctx context.Context, clientServiceID string) ([]domain.BatchView, error) {
	rows, err := r.DB.QueryContext(ctx, batchSelect+` WHERE client_service_id=? ORDER BY created_at DESC, id DESC`, clientServiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var batches []domain.BatchView
	for rows.Next() {
		var b domain.ProposalBatch
		var completedAt sql.NullString
		if err := rows.Scan(&b.ID, &b.ClientServiceID, &b.Mode, &b.State, &b.StartReason, &b.Deadline, &b.CreatedAt, &completedAt); err != nil {
			return nil, err
		}
		if completedAt.Valid {
			b.CompletedAt = &completedAt.String
		}
		batches = append(batches, domain.BatchView{ProposalBatch: b})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range batches {
		proposals, err := r.proposalsWithArtists(ctx, batches[i].ID)
		if err != nil {
			return nil, err
		}
		batches[i].Proposals = proposals
	}
	return batches, nil
}

func (r Repo) proposalsWithArtists(ctx context.Context, batchID string) ([]domain.ProposalWithArtist, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT p.id, p.batch_id, p.artist_id, p.client_service_id, p.response, p.responded_at, p.created_at,
       a.name, a.tier, a.category
FROM proposals p
JOIN artists a ON a.id = p.artist_id
WHERE p.batch_id = ?
ORDER BY a.tier ASC, a.created_at ASC, p.id ASC`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ProposalWithArtist
	for rows.Next() {
		var p domain.ProposalWithArtist
		var response, respondedAt sql.NullString
		if err := rows.Scan(&p.ID, &p.BatchID, &p.ArtistID, &p.ClientServiceID, &response, &respondedAt, &p.CreatedAt,
			&p.ArtistName, &p.ArtistTier, &p.ArtistCategory); err != nil {
			return nil, err
		}
		if response.Valid {
			p.Response = &response.String
		}
		if respondedAt.Valid {
			p.RespondedAt = &respondedAt.String
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
