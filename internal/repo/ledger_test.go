package repo_test

import (
	"context"
	"testing"
	"time"

	"bookline/internal/db"
	"bookline/internal/domain"
	"bookline/internal/migrate"
	"bookline/internal/repo"
)

func newTestRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}
}

func ts(offset time.Duration) string {
	return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC).Add(offset).Format(time.RFC3339)
}

func seedArtist(t *testing.T, r repo.Repo, id, category string, tier int, created time.Duration) {
	t.Helper()
	err := r.InsertArtist(context.Background(), domain.Artist{
		ID: id, Name: id, Category: category, Tier: tier, Active: true, CreatedAt: ts(created),
	})
	if err != nil {
		t.Fatalf("seed artist %s: %v", id, err)
	}
}

func seedRecord(t *testing.T, r repo.Repo, id, category string) {
	t.Helper()
	_, err := r.UpsertClientService(context.Background(), domain.ClientServiceRecord{
		ID: id, BoardItemID: "item-" + id, Category: category, ClientName: "client " + id,
		CreatedAt: ts(0), UpdatedAt: ts(0),
	})
	if err != nil {
		t.Fatalf("seed record %s: %v", id, err)
	}
}

func seedBatch(t *testing.T, r repo.Repo, id, recordID, mode string, deadline time.Duration, artistIDs ...string) {
	t.Helper()
	ctx := context.Background()
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	err = r.InsertBatchTx(ctx, tx, domain.ProposalBatch{
		ID: id, ClientServiceID: recordID, Mode: mode, State: domain.BatchOpen,
		StartReason: domain.ReasonManual, Deadline: ts(deadline), CreatedAt: ts(0),
	})
	if err != nil {
		t.Fatalf("seed batch %s: %v", id, err)
	}
	for i, artistID := range artistIDs {
		err := r.InsertProposalTx(ctx, tx, domain.Proposal{
			ID: id + "-p" + artistID, BatchID: id, ArtistID: artistID,
			ClientServiceID: recordID, CreatedAt: ts(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("seed proposal for %s: %v", artistID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

func respond(t *testing.T, r repo.Repo, proposalID, response string) {
	t.Helper()
	ctx := context.Background()
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	if err := r.SetResponseTx(ctx, tx, proposalID, response, ts(time.Hour)); err != nil {
		t.Fatalf("respond %s: %v", proposalID, err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

func TestOpenProposalsExcludeAnsweredRecords(t *testing.T) {
	r := newTestRepo(t)
	seedArtist(t, r, "lena", domain.CategoryMakeup, 1, 0)
	seedRecord(t, r, "rec-1", domain.CategoryMakeup)
	seedRecord(t, r, "rec-2", domain.CategoryMakeup)

	seedBatch(t, r, "b1", "rec-1", domain.ModeSingle, 24*time.Hour, "lena")
	seedBatch(t, r, "b2", "rec-2", domain.ModeBroadcast, 24*time.Hour, "lena")

	open, err := r.OpenProposalsForArtist(context.Background(), "lena")
	if err != nil {
		t.Fatalf("open proposals: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("open = %d, want 2", len(open))
	}

	// Declining rec-1 hides it, even from later batches for the same record.
	respond(t, r, "b1-plena", domain.ResponseNo)
	closeBatch(t, r, "b1")
	seedBatch(t, r, "b3", "rec-1", domain.ModeBroadcast, 48*time.Hour, "lena")

	open, err = r.OpenProposalsForArtist(context.Background(), "lena")
	if err != nil {
		t.Fatalf("open proposals: %v", err)
	}
	if len(open) != 1 || open[0].RecordID != "rec-2" {
		t.Fatalf("open = %+v, want only rec-2", open)
	}
}

func closeBatch(t *testing.T, r repo.Repo, id string) {
	t.Helper()
	ctx := context.Background()
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	if err := r.CloseBatchTx(ctx, tx, id, domain.BatchCompleted, ts(time.Hour)); err != nil {
		t.Fatalf("close %s: %v", id, err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

func TestOpenProposalsOnlyFromOpenBatches(t *testing.T) {
	r := newTestRepo(t)
	seedArtist(t, r, "vera", domain.CategoryHair, 2, 0)
	seedRecord(t, r, "rec-1", domain.CategoryHair)
	seedBatch(t, r, "b1", "rec-1", domain.ModeBroadcast, 24*time.Hour, "vera")
	closeBatch(t, r, "b1")

	open, err := r.OpenProposalsForArtist(context.Background(), "vera")
	if err != nil {
		t.Fatalf("open proposals: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("open = %+v, want none", open)
	}
}

func TestArtistStats(t *testing.T) {
	r := newTestRepo(t)
	seedArtist(t, r, "mia", domain.CategoryMakeup, 1, 0)
	for i, record := range []string{"rec-1", "rec-2", "rec-3"} {
		seedRecord(t, r, record, domain.CategoryMakeup)
		seedBatch(t, r, "b"+record, record, domain.ModeSingle, time.Duration(i+1)*24*time.Hour, "mia")
	}
	respond(t, r, "brec-1-pmia", domain.ResponseYes)
	respond(t, r, "brec-2-pmia", domain.ResponseNo)

	stats, err := r.ArtistStats(context.Background(), "mia")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := domain.ArtistStats{ArtistID: "mia", Total: 3, Accepted: 1, Declined: 1, Pending: 1}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}
}

func TestCloseBatchIsGuarded(t *testing.T) {
	r := newTestRepo(t)
	seedRecord(t, r, "rec-1", domain.CategoryMakeup)
	seedBatch(t, r, "b1", "rec-1", domain.ModeSingle, 24*time.Hour)
	closeBatch(t, r, "b1")

	ctx := context.Background()
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	err = r.CloseBatchTx(ctx, tx, "b1", domain.BatchExpired, ts(2*time.Hour))
	if err != repo.ErrNotFound {
		t.Fatalf("second close err = %v, want ErrNotFound", err)
	}
}

func TestInsertArtistTxHonorsRollback(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	a := domain.Artist{ID: "lena", Name: "lena", Category: domain.CategoryMakeup, Tier: 1, Active: true, CreatedAt: ts(0)}
	if err := r.InsertArtistTx(ctx, tx, a); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatal(err)
	}
	if _, err := r.GetArtist(ctx, "lena"); err != repo.ErrNotFound {
		t.Fatalf("after rollback err = %v, want ErrNotFound", err)
	}
}

func TestUpsertClientServiceTxHonorsRollback(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	record := domain.ClientServiceRecord{
		ID: "rec-1", BoardItemID: "item-rec-1", Category: domain.CategoryHair,
		ClientName: "client rec-1", CreatedAt: ts(0), UpdatedAt: ts(0),
	}
	got, err := r.UpsertClientServiceTx(ctx, tx, record)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if got.ID != "rec-1" {
		t.Fatalf("upsert returned %+v", got)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatal(err)
	}
	if _, err := r.GetClientService(ctx, "rec-1"); err != repo.ErrNotFound {
		t.Fatalf("after rollback err = %v, want ErrNotFound", err)
	}
}

func TestSetResponseIsGuarded(t *testing.T) {
	r := newTestRepo(t)
	seedArtist(t, r, "ada", domain.CategoryHair, 2, 0)
	seedRecord(t, r, "rec-1", domain.CategoryHair)
	seedBatch(t, r, "b1", "rec-1", domain.ModeBroadcast, 24*time.Hour, "ada")
	respond(t, r, "b1-pada", domain.ResponseYes)

	ctx := context.Background()
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	err = r.SetResponseTx(ctx, tx, "b1-pada", domain.ResponseNo, ts(2*time.Hour))
	if err != repo.ErrNotFound {
		t.Fatalf("overwrite err = %v, want ErrNotFound", err)
	}
}
