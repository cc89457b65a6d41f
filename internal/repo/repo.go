package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"bookline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// --- artists ---

const insertArtistSQL = `INSERT INTO artists(id,name,board_item_id,category,tier,active,created_at) VALUES (?,?,?,?,?,?,?)`

func (r Repo) InsertArtist(ctx context.Context, a domain.Artist) error {
	_, err := r.DB.ExecContext(ctx, insertArtistSQL,
		a.ID, a.Name, nullable(a.BoardItemID), a.Category, a.Tier, boolInt(a.Active), a.CreatedAt)
	return err
}

func (r Repo) InsertArtistTx(ctx context.Context, tx *sql.Tx, a domain.Artist) error {
	_, err := tx.ExecContext(ctx, insertArtistSQL,
		a.ID, a.Name, nullable(a.BoardItemID), a.Category, a.Tier, boolInt(a.Active), a.CreatedAt)
	return err
}

// UpsertArtistByBoardItemTx refreshes a directory entry from a board sync.
// Category and active flag are never changed by sync; deactivation and
// specialty corrections are explicit admin actions.
func (r Repo) UpsertArtistByBoardItemTx(ctx context.Context, tx *sql.Tx, a domain.Artist) error {
	_, err := tx.ExecContext(ctx, insertArtistSQL+`
ON CONFLICT(id) DO UPDATE SET name=excluded.name, board_item_id=excluded.board_item_id, tier=excluded.tier`,
		a.ID, a.Name, nullable(a.BoardItemID), a.Category, a.Tier, boolInt(a.Active), a.CreatedAt)
	return err
}

func (r Repo) GetArtist(ctx context.Context, id string) (domain.Artist, error) {
	return scanArtist(r.DB.QueryRowContext(ctx, `SELECT id,name,COALESCE(board_item_id,''),category,tier,active,created_at FROM artists WHERE id=?`, id))
}

func scanArtist(row *sql.Row) (domain.Artist, error) {
	var a domain.Artist
	var active int
	err := row.Scan(&a.ID, &a.Name, &a.BoardItemID, &a.Category, &a.Tier, &active, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	a.Active = active != 0
	return a, err
}

type ArtistFilters struct {
	Category   string
	ActiveOnly bool
}

func (r Repo) ListArtists(ctx context.Context, f ArtistFilters) ([]domain.Artist, error) {
	var clauses []string
	var args []any
	if f.Category != "" {
		clauses = append(clauses, "category=?")
		args = append(args, f.Category)
	}
	if f.ActiveOnly {
		clauses = append(clauses, "active=1")
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(board_item_id,''),category,tier,active,created_at FROM artists `+where+` ORDER BY tier ASC, created_at ASC, id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Artist
	for rows.Next() {
		var a domain.Artist
		var active int
		if err := rows.Scan(&a.ID, &a.Name, &a.BoardItemID, &a.Category, &a.Tier, &active, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Active = active != 0
		res = append(res, a)
	}
	return res, rows.Err()
}

type ArtistUpdate struct {
	Name   *string
	Tier   *int
	Active *bool
}

func (r Repo) UpdateArtist(ctx context.Context, id string, u ArtistUpdate) error {
	var fields []string
	var args []any
	if u.Name != nil {
		fields = append(fields, "name=?")
		args = append(args, *u.Name)
	}
	if u.Tier != nil {
		fields = append(fields, "tier=?")
		args = append(args, *u.Tier)
	}
	if u.Active != nil {
		fields = append(fields, "active=?")
		args = append(args, boolInt(*u.Active))
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE artists SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// EligibleArtistsTx selects active artists of a category ordered by tier
// then age, oldest first. limit <= 0 returns all.
func (r Repo) EligibleArtistsTx(ctx context.Context, tx *sql.Tx, category string, limit int) ([]domain.Artist, error) {
	query := `SELECT id,name,COALESCE(board_item_id,''),category,tier,active,created_at FROM artists WHERE category=? AND active=1 ORDER BY tier ASC, created_at ASC, id ASC`
	args := []any{category}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Artist
	for rows.Next() {
		var a domain.Artist
		var active int
		if err := rows.Scan(&a.ID, &a.Name, &a.BoardItemID, &a.Category, &a.Tier, &active, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Active = active != 0
		res = append(res, a)
	}
	return res, rows.Err()
}

// --- client service records ---

const upsertClientServiceSQL = `INSERT INTO client_services(id,board_item_id,category,client_name,event_date,venue,details,status,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(board_item_id,category) DO UPDATE SET
  client_name=excluded.client_name, event_date=excluded.event_date, venue=excluded.venue,
  details=excluded.details, status=excluded.status, updated_at=excluded.updated_at`

func (r Repo) UpsertClientService(ctx context.Context, c domain.ClientServiceRecord) (domain.ClientServiceRecord, error) {
	_, err := r.DB.ExecContext(ctx, upsertClientServiceSQL,
		c.ID, c.BoardItemID, c.Category, nullable(c.ClientName), nullable(c.EventDate), nullable(c.Venue),
		nullable(c.Details), nullable(c.Status), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return c, err
	}
	return r.GetClientServiceByBoardItem(ctx, c.BoardItemID, c.Category)
}

func (r Repo) UpsertClientServiceTx(ctx context.Context, tx *sql.Tx, c domain.ClientServiceRecord) (domain.ClientServiceRecord, error) {
	_, err := tx.ExecContext(ctx, upsertClientServiceSQL,
		c.ID, c.BoardItemID, c.Category, nullable(c.ClientName), nullable(c.EventDate), nullable(c.Venue),
		nullable(c.Details), nullable(c.Status), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return c, err
	}
	return scanClientService(tx.QueryRowContext(ctx, clientServiceSelect+` WHERE board_item_id=? AND category=?`, c.BoardItemID, c.Category))
}

func (r Repo) GetClientService(ctx context.Context, id string) (domain.ClientServiceRecord, error) {
	return scanClientService(r.DB.QueryRowContext(ctx, clientServiceSelect+` WHERE id=?`, id))
}

func (r Repo) GetClientServiceTx(ctx context.Context, tx *sql.Tx, id string) (domain.ClientServiceRecord, error) {
	return scanClientService(tx.QueryRowContext(ctx, clientServiceSelect+` WHERE id=?`, id))
}

func (r Repo) GetClientServiceByBoardItem(ctx context.Context, boardItemID, category string) (domain.ClientServiceRecord, error) {
	return scanClientService(r.DB.QueryRowContext(ctx, clientServiceSelect+` WHERE board_item_id=? AND category=?`, boardItemID, category))
}

const clientServiceSelect = `SELECT id,board_item_id,category,COALESCE(client_name,''),COALESCE(event_date,''),COALESCE(venue,''),COALESCE(details,''),COALESCE(status,''),created_at,updated_at FROM client_services`

func scanClientService(row *sql.Row) (domain.ClientServiceRecord, error) {
	var c domain.ClientServiceRecord
	err := row.Scan(&c.ID, &c.BoardItemID, &c.Category, &c.ClientName, &c.EventDate, &c.Venue, &c.Details, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) ListClientServices(ctx context.Context, category string) ([]domain.ClientServiceRecord, error) {
	query := clientServiceSelect + ` ORDER BY created_at DESC, id DESC`
	var args []any
	if category != "" {
		query = clientServiceSelect + ` WHERE category=? ORDER BY created_at DESC, id DESC`
		args = append(args, category)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ClientServiceRecord
	for rows.Next() {
		var c domain.ClientServiceRecord
		if err := rows.Scan(&c.ID, &c.BoardItemID, &c.Category, &c.ClientName, &c.EventDate, &c.Venue, &c.Details, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// --- batches ---

func (r Repo) InsertBatchTx(ctx context.Context, tx *sql.Tx, b domain.ProposalBatch) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO batches(id,client_service_id,mode,state,start_reason,deadline,created_at,completed_at) VALUES (?,?,?,?,?,?,?,?)`,
		b.ID, b.ClientServiceID, b.Mode, b.State, b.StartReason, b.Deadline, b.CreatedAt, nullableStringPtr(b.CompletedAt))
	return err
}

const batchSelect = `SELECT id,client_service_id,mode,state,start_reason,deadline,created_at,completed_at FROM batches`

func scanBatch(row *sql.Row) (domain.ProposalBatch, error) {
	var b domain.ProposalBatch
	var completedAt sql.NullString
	err := row.Scan(&b.ID, &b.ClientServiceID, &b.Mode, &b.State, &b.StartReason, &b.Deadline, &b.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	if completedAt.Valid {
		b.CompletedAt = &completedAt.String
	}
	return b, err
}

func (r Repo) GetBatch(ctx context.Context, id string) (domain.ProposalBatch, error) {
	return scanBatch(r.DB.QueryRowContext(ctx, batchSelect+` WHERE id=?`, id))
}

func (r Repo) GetBatchTx(ctx context.Context, tx *sql.Tx, id string) (domain.ProposalBatch, error) {
	return scanBatch(tx.QueryRowContext(ctx, batchSelect+` WHERE id=?`, id))
}

// OpenBatchTx returns the open batch for a client service, if any.
func (r Repo) OpenBatchTx(ctx context.Context, tx *sql.Tx, clientServiceID string) (domain.ProposalBatch, error) {
	return scanBatch(tx.QueryRowContext(ctx, batchSelect+` WHERE client_service_id=? AND state=?`, clientServiceID, domain.BatchOpen))
}

// CloseBatchTx transitions an open batch to a terminal state. Returns
// ErrNotFound when the batch is no longer open, so a racing respond and
// sweep cannot both win.
func (r Repo) CloseBatchTx(ctx context.Context, tx *sql.Tx, id, state, completedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE batches SET state=?, completed_at=? WHERE id=? AND state=?`,
		state, completedAt, id, domain.BatchOpen)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ExpiredOpenBatchIDs lists batches still open past their deadline.
func (r Repo) ExpiredOpenBatchIDs(ctx context.Context, now string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM batches WHERE state=? AND deadline<=? ORDER BY deadline ASC, id ASC`, domain.BatchOpen, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- proposals ---

func (r Repo) InsertProposalTx(ctx context.Context, tx *sql.Tx, p domain.Proposal) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO proposals(id,batch_id,artist_id,client_service_id,response,responded_at,created_at) VALUES (?,?,?,?,?,?,?)`,
		p.ID, p.BatchID, p.ArtistID, p.ClientServiceID, nullableStringPtr(p.Response), nullableStringPtr(p.RespondedAt), p.CreatedAt)
	return err
}

const proposalSelect = `SELECT id,batch_id,artist_id,client_service_id,response,responded_at,created_at FROM proposals`

func scanProposal(row *sql.Row) (domain.Proposal, error) {
	var p domain.Proposal
	var response, respondedAt sql.NullString
	err := row.Scan(&p.ID, &p.BatchID, &p.ArtistID, &p.ClientServiceID, &response, &respondedAt, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if response.Valid {
		p.Response = &response.String
	}
	if respondedAt.Valid {
		p.RespondedAt = &respondedAt.String
	}
	return p, err
}

func (r Repo) GetProposal(ctx context.Context, id string) (domain.Proposal, error) {
	return scanProposal(r.DB.QueryRowContext(ctx, proposalSelect+` WHERE id=?`, id))
}

func (r Repo) GetProposalTx(ctx context.Context, tx *sql.Tx, id string) (domain.Proposal, error) {
	return scanProposal(tx.QueryRowContext(ctx, proposalSelect+` WHERE id=?`, id))
}

// SetResponseTx records a response on an unanswered proposal. Returns
// ErrNotFound when the row was already answered; responses are write-once.
func (r Repo) SetResponseTx(ctx context.Context, tx *sql.Tx, id, response, respondedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE proposals SET response=?, responded_at=? WHERE id=? AND response IS NULL`,
		response, respondedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AutoDeclineSiblingsTx force-declines every still-pending proposal in a
// batch except the winner. Returns the number of declined rows.
func (r Repo) AutoDeclineSiblingsTx(ctx context.Context, tx *sql.Tx, batchID, winnerID, respondedAt string) (int64, error) {
	res, err := tx.ExecContext(ctx, `UPDATE proposals SET response=?, responded_at=? WHERE batch_id=? AND id<>? AND response IS NULL`,
		domain.ResponseNo, respondedAt, batchID, winnerID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ResponseTally counts a batch's responses by outcome.
type ResponseTally struct {
	Yes     int
	No      int
	Pending int
}

func (t ResponseTally) Total() int { return t.Yes + t.No + t.Pending }

func (r Repo) TallyBatchTx(ctx context.Context, tx *sql.Tx, batchID string) (ResponseTally, error) {
	var t ResponseTally
	rows, err := tx.QueryContext(ctx, `SELECT COALESCE(response,''), count(*) FROM proposals WHERE batch_id=? GROUP BY response`, batchID)
	if err != nil {
		return t, err
	}
	defer rows.Close()
	for rows.Next() {
		var response string
		var count int
		if err := rows.Scan(&response, &count); err != nil {
			return t, err
		}
		switch response {
		case domain.ResponseYes:
			t.Yes = count
		case domain.ResponseNo:
			t.No = count
		default:
			t.Pending = count
		}
	}
	return t, rows.Err()
}

func (r Repo) ListProposalsForBatch(ctx context.Context, batchID string) ([]domain.Proposal, error) {
	rows, err := r.DB.QueryContext(ctx, proposalSelect+` WHERE batch_id=? ORDER BY created_at ASC, id ASC`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Proposal
	for rows.Next() {
		var p domain.Proposal
		var response, respondedAt sql.NullString
		if err := rows.Scan(&p.ID, &p.BatchID, &p.ArtistID, &p.ClientServiceID, &response, &respondedAt, &p.CreatedAt); err != nil {
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

// --- audit ---

type AuditFilters struct {
	Action     string
	EntityKind string
	EntityID   string
	Limit      int
	Cursor     int64
}

func (r Repo) ListAudit(ctx context.Context, f AuditFilters) ([]domain.AuditEntry, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Action != "" {
		clauses = append(clauses, "action=?")
		args = append(args, f.Action)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.Cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Cursor)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,action,entity_kind,entity_id,actor_id,payload_json FROM audit_log %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var entityID sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Action, &e.EntityKind, &entityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// --- helpers ---

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
