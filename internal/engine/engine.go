package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"bookline/internal/audit"
	"bookline/internal/board"
	"bookline/internal/config"
	"bookline/internal/domain"
	"bookline/internal/norm"
	"bookline/internal/notify"
	"bookline/internal/repo"
)

// Conflict errors surfaced to callers. The engine never retries; the
// calling surface decides what to show.
var (
	ErrAlreadyResponded = errors.New("proposal already responded")
	ErrBatchNotOpen     = errors.New("batch is not open")
	ErrOpenBatchExists  = errors.New("client service already has an open batch")
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Audit  audit.Writer
	Board  board.Client
	Notify notify.Gateway
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Audit:  audit.Writer{DB: db},
		Notify: notify.Noop{},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) window() time.Duration {
	hours := 24
	if e.Config != nil {
		hours = e.Config.WindowHours()
	}
	return time.Duration(hours) * time.Hour
}

// auditWriter shares the engine clock so audit timestamps line up with
// the rows they describe.
func (e Engine) auditWriter() audit.Writer {
	w := e.Audit
	if w.Now == nil {
		w.Now = e.now
	}
	return w
}

// CreateArtist provisions a directory entry.
func (e Engine) CreateArtist(ctx context.Context, a domain.Artist, actorID string) (domain.Artist, error) {
	if a.Name == "" {
		return a, errors.New("name is required")
	}
	if a.Category != domain.CategoryMakeup && a.Category != domain.CategoryHair {
		return a, fmt.Errorf("invalid category %s", a.Category)
	}
	if a.Tier == 0 {
		a.Tier = 2
	}
	if a.Tier < 1 || a.Tier > 3 {
		return a, fmt.Errorf("invalid tier %d", a.Tier)
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.Active = true
	a.CreatedAt = e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertArtistTx(ctx, tx, a); err != nil {
		return a, err
	}
	if err := e.auditWriter().Append(ctx, tx, "artist.created", "artist", a.ID, actorID, audit.Payload{
		"name": a.Name, "category": a.Category, "tier": a.Tier,
	}); err != nil {
		return a, err
	}
	return a, tx.Commit()
}

// CreateBatchOptions are parameters for opening a proposal batch.
type CreateBatchOptions struct {
	ClientServiceID string
	Mode            string
	StartReason     string
	TargetCount     int
	ActorID         string
}

// CreateBatch opens a batch and records one proposal per selected
// artist, atomically. Zero eligible artists still creates the batch;
// the sweeper escalates it at the deadline.
func (e Engine) CreateBatch(ctx context.Context, opts CreateBatchOptions) (domain.ProposalBatch, int, error) {
	if opts.Mode != domain.ModeSingle && opts.Mode != domain.ModeBroadcast {
		return domain.ProposalBatch{}, 0, fmt.Errorf("invalid mode %s", opts.Mode)
	}
	if opts.StartReason == "" {
		opts.StartReason = domain.ReasonInitialUndecided
	}
	record, err := e.Repo.GetClientService(ctx, opts.ClientServiceID)
	if err != nil {
		return domain.ProposalBatch{}, 0, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ProposalBatch{}, 0, err
	}
	defer tx.Rollback()

	batch, proposals, err := e.openBatchTx(ctx, tx, record, opts.Mode, opts.StartReason, opts.TargetCount, opts.ActorID)
	if err != nil {
		return domain.ProposalBatch{}, 0, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ProposalBatch{}, 0, err
	}
	e.notifyOffers(ctx, record, batch, proposals)
	return batch, len(proposals), nil
}

// openBatchTx does batch creation inside the caller's transaction so the
// sweeper can couple escalation with the expiry of the prior batch.
func (e Engine) openBatchTx(ctx context.Context, tx *sql.Tx, record domain.ClientServiceRecord, mode, reason string, targetCount int, actorID string) (domain.ProposalBatch, []domain.Proposal, error) {
	if _, err := e.Repo.OpenBatchTx(ctx, tx, record.ID); err == nil {
		return domain.ProposalBatch{}, nil, ErrOpenBatchExists
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.ProposalBatch{}, nil, err
	}

	limit := 0
	if mode == domain.ModeSingle {
		limit = targetCount
		if limit <= 0 {
			limit = 1
		}
	}
	artists, err := e.Repo.EligibleArtistsTx(ctx, tx, record.Category, limit)
	if err != nil {
		return domain.ProposalBatch{}, nil, err
	}

	now := e.now().UTC()
	nowStr := now.Format(time.RFC3339)
	batch := domain.ProposalBatch{
		ID:              uuid.New().String(),
		ClientServiceID: record.ID,
		Mode:            mode,
		State:           domain.BatchOpen,
		StartReason:     reason,
		Deadline:        now.Add(e.window()).Format(time.RFC3339),
		CreatedAt:       nowStr,
	}
	if err := e.Repo.InsertBatchTx(ctx, tx, batch); err != nil {
		return domain.ProposalBatch{}, nil, fmt.Errorf("insert batch: %w", err)
	}
	proposals := make([]domain.Proposal, 0, len(artists))
	for _, a := range artists {
		p := domain.Proposal{
			ID:              uuid.New().String(),
			BatchID:         batch.ID,
			ArtistID:        a.ID,
			ClientServiceID: record.ID,
			CreatedAt:       nowStr,
		}
		if err := e.Repo.InsertProposalTx(ctx, tx, p); err != nil {
			return domain.ProposalBatch{}, nil, fmt.Errorf("insert proposal for artist %s: %w", a.ID, err)
		}
		proposals = append(proposals, p)
	}
	if err := e.auditWriter().Append(ctx, tx, "batch.created", "batch", batch.ID, actorID, audit.Payload{
		"client_service_id": record.ID,
		"client_name":       record.ClientName,
		"mode":              mode,
		"start_reason":      reason,
		"proposal_count":    len(proposals),
		"deadline":          batch.Deadline,
	}); err != nil {
		return domain.ProposalBatch{}, nil, err
	}
	return batch, proposals, nil
}

// notifyOffers tells the offered artists about the new batch. Runs after
// commit; a delivery failure never unwinds the batch.
func (e Engine) notifyOffers(ctx context.Context, record domain.ClientServiceRecord, batch domain.ProposalBatch, proposals []domain.Proposal) {
	if len(proposals) == 0 {
		return
	}
	offer := notify.Offer{
		BatchID:    batch.ID,
		Mode:       batch.Mode,
		Deadline:   batch.Deadline,
		ClientName: record.ClientName,
		EventDate:  record.EventDate,
		Venue:      record.Venue,
	}
	if len(proposals) == 1 {
		offer.ProposalID = proposals[0].ID
	}
	artistIDs := make([]string, len(proposals))
	for i, p := range proposals {
		artistIDs[i] = p.ArtistID
	}
	if err := e.Notify.NotifyArtists(ctx, artistIDs, offer); err != nil {
		log.Printf("notify: offer delivery for batch %s failed: %v", batch.ID, err)
	}
}

// Respond records an artist's answer. Responses are write-once; a SINGLE
// acceptance completes the batch and auto-declines the pending siblings,
// and any fully-answered batch completes.
func (e Engine) Respond(ctx context.Context, proposalID, response, actorID string) error {
	if response != domain.ResponseYes && response != domain.ResponseNo {
		return fmt.Errorf("invalid response %s", response)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProposalTx(ctx, tx, proposalID)
	if err != nil {
		return err
	}
	if p.Response != nil {
		return ErrAlreadyResponded
	}
	batch, err := e.Repo.GetBatchTx(ctx, tx, p.BatchID)
	if err != nil {
		return err
	}
	if batch.State != domain.BatchOpen {
		return ErrBatchNotOpen
	}
	nowStr := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.SetResponseTx(ctx, tx, p.ID, response, nowStr); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrAlreadyResponded
		}
		return err
	}
	record, err := e.Repo.GetClientServiceTx(ctx, tx, p.ClientServiceID)
	if err != nil {
		return err
	}
	if err := e.auditWriter().Append(ctx, tx, "proposal.responded", "proposal", p.ID, actorID, audit.Payload{
		"batch_id":    batch.ID,
		"artist_id":   p.ArtistID,
		"response":    response,
		"client_name": record.ClientName,
	}); err != nil {
		return err
	}

	if batch.Mode == domain.ModeSingle && response == domain.ResponseYes {
		if err := e.Repo.CloseBatchTx(ctx, tx, batch.ID, domain.BatchCompleted, nowStr); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrBatchNotOpen
			}
			return err
		}
		declined, err := e.Repo.AutoDeclineSiblingsTx(ctx, tx, batch.ID, p.ID, nowStr)
		if err != nil {
			return err
		}
		if err := e.auditWriter().Append(ctx, tx, "batch.completed", "batch", batch.ID, actorID, audit.Payload{
			"winner_proposal_id": p.ID,
			"auto_declined":      declined,
			"client_name":        record.ClientName,
		}); err != nil {
			return err
		}
		return tx.Commit()
	}

	tally, err := e.Repo.TallyBatchTx(ctx, tx, batch.ID)
	if err != nil {
		return err
	}
	if tally.Pending == 0 {
		if err := e.Repo.CloseBatchTx(ctx, tx, batch.ID, domain.BatchCompleted, nowStr); err != nil {
			if !errors.Is(err, repo.ErrNotFound) {
				return err
			}
		} else if err := e.auditWriter().Append(ctx, tx, "batch.completed", "batch", batch.ID, actorID, audit.Payload{
			"yes":         tally.Yes,
			"no":          tally.No,
			"client_name": record.ClientName,
		}); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SyncClientService mirrors one board item into the local store for a
// category, upserting so repeated syncs with changed board data refresh
// rather than duplicate. A board read failure is fatal to the call.
func (e Engine) SyncClientService(ctx context.Context, boardItemID, category, actorID string) (domain.ClientServiceRecord, error) {
	if category != domain.CategoryMakeup && category != domain.CategoryHair {
		return domain.ClientServiceRecord{}, fmt.Errorf("invalid category %s", category)
	}
	if e.Board == nil {
		return domain.ClientServiceRecord{}, errors.New("board client not configured")
	}
	item, err := e.Board.GetItem(ctx, boardItemID)
	if err != nil {
		return domain.ClientServiceRecord{}, fmt.Errorf("fetch board item %s: %w", boardItemID, err)
	}
	fields := e.Config.Board.Fields
	catFields := e.Config.Board.Categories[category]
	nowStr := e.now().UTC().Format(time.RFC3339)
	record := domain.ClientServiceRecord{
		ID:          uuid.New().String(),
		BoardItemID: boardItemID,
		Category:    category,
		ClientName:  firstNonEmpty(item.Fields[fields.ClientName], item.Name),
		EventDate:   item.Fields[fields.EventDate],
		Venue:       item.Fields[fields.Venue],
		Details:     item.Fields[fields.Details],
		Status:      item.Fields[catFields.StatusField],
		CreatedAt:   nowStr,
		UpdatedAt:   nowStr,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return record, err
	}
	defer tx.Rollback()
	record, err = e.Repo.UpsertClientServiceTx(ctx, tx, record)
	if err != nil {
		return record, err
	}
	if err := e.auditWriter().Append(ctx, tx, "client_service.synced", "client_service", record.ID, actorID, audit.Payload{
		"board_item_id": boardItemID,
		"category":      category,
		"status":        record.Status,
	}); err != nil {
		return record, err
	}
	return record, tx.Commit()
}

// QualifiesForDispatch reports whether a record's status snapshot matches
// a configured qualifying phrase.
func (e Engine) QualifiesForDispatch(record domain.ClientServiceRecord) bool {
	if e.Config == nil {
		return false
	}
	return norm.NewMatcher(e.Config.Phrases.Qualifying).Match(record.Status)
}

// SyncArtists refreshes the artist directory from a board enumeration.
// Existing artists keep their category and active flag; sync never
// deactivates anyone.
func (e Engine) SyncArtists(ctx context.Context, boardID, actorID string) (int, error) {
	if e.Board == nil {
		return 0, errors.New("board client not configured")
	}
	aliases := map[string]string{}
	if e.Config != nil {
		aliases = e.Config.Board.ArtistAliases
	}
	// Enumerate first; board I/O never runs inside the transaction.
	var roster []domain.Artist
	cursor := ""
	for {
		page, err := e.Board.GetBoardItems(ctx, boardID, cursor)
		if err != nil {
			return 0, fmt.Errorf("enumerate board %s: %w", boardID, err)
		}
		for _, item := range page.Items {
			category := item.Fields["category"]
			if category != domain.CategoryMakeup && category != domain.CategoryHair {
				continue
			}
			tier := 2
			if t, err := parseTier(item.Fields["tier"]); err == nil {
				tier = t
			}
			boardItemID := item.ID
			if alias, ok := aliases[item.Name]; ok {
				boardItemID = alias
			}
			roster = append(roster, domain.Artist{
				ID:          uuid.NewSHA1(uuid.NameSpaceOID, []byte("artist|"+item.ID)).String(),
				Name:        item.Name,
				BoardItemID: boardItemID,
				Category:    category,
				Tier:        tier,
				Active:      true,
				CreatedAt:   e.now().UTC().Format(time.RFC3339),
			})
		}
		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	for _, a := range roster {
		if err := e.Repo.UpsertArtistByBoardItemTx(ctx, tx, a); err != nil {
			return 0, err
		}
	}
	if err := e.auditWriter().Append(ctx, tx, "artists.synced", "board", boardID, actorID, audit.Payload{"count": len(roster)}); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(roster), nil
}

func parseTier(s string) (int, error) {
	var t int
	if _, err := fmt.Sscanf(s, "%d", &t); err != nil {
		return 0, err
	}
	if t < 1 || t > 3 {
		return 0, fmt.Errorf("tier out of range: %d", t)
	}
	return t, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
