package engine_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"bookline/internal/domain"
	"bookline/internal/engine"
	"bookline/internal/notify"
)

func TestSweepEscalatesSilentSingle(t *testing.T) {
	env := newTestEnv(t)
	picked := env.addArtist(t, "Lena", domain.CategoryMakeup, 1)
	env.addArtist(t, "Mia", domain.CategoryMakeup, 2)
	env.addArtist(t, "Vera", domain.CategoryMakeup, 2)
	record := env.addRecord(t, "s-1", domain.CategoryMakeup, "Novak wedding")
	gw := &fakeGateway{}
	env.Engine.Notify = gw

	batch, _, err := env.Engine.CreateBatch(env.Ctx, engine.CreateBatchOptions{
		ClientServiceID: record.ID,
		Mode:            domain.ModeSingle,
		ActorID:         "tester",
	})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	env.advance(25 * time.Hour)

	res, err := env.Engine.Sweep(env.Ctx, "sweeper")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Processed != 1 || res.Escalated != 1 || len(res.Errors) != 0 {
		t.Fatalf("result = %+v", res)
	}
	old, _ := env.Engine.Repo.GetBatch(env.Ctx, batch.ID)
	if old.State != domain.BatchExpired {
		t.Fatalf("old state = %s, want expired_no_action", old.State)
	}
	views, err := env.Engine.Repo.BatchesForClientService(env.Ctx, record.ID)
	if err != nil {
		t.Fatalf("batch history: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("batches = %d, want 2", len(views))
	}
	var escalation *domain.BatchView
	for i := range views {
		if views[i].ID != batch.ID {
			escalation = &views[i]
		}
	}
	if escalation == nil {
		t.Fatalf("no escalation batch")
	}
	if escalation.Mode != domain.ModeBroadcast || escalation.State != domain.BatchOpen {
		t.Fatalf("escalation = %+v", escalation.ProposalBatch)
	}
	if escalation.StartReason != domain.ReasonPriorBatchDeclined {
		t.Fatalf("start reason = %s", escalation.StartReason)
	}
	if len(escalation.Proposals) != 3 {
		t.Fatalf("escalation proposals = %d, want all 3 makeup artists", len(escalation.Proposals))
	}
	// The silent artist gets another chance in the broadcast round.
	found := false
	for _, p := range escalation.Proposals {
		if p.ArtistID == picked.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("tier-1 artist missing from escalation")
	}
	if len(gw.offers) != 2 {
		t.Fatalf("offer notifications = %d, want 2", len(gw.offers))
	}

	// A second pass finds nothing; the escalation deadline is fresh.
	res, err = env.Engine.Sweep(env.Ctx, "sweeper")
	if err != nil || res.Processed != 0 {
		t.Fatalf("re-sweep = %+v err=%v", res, err)
	}
}

func TestSweepTriggersSendOptions(t *testing.T) {
	env := newTestEnv(t)
	for _, name := range []string{"A", "B", "C"} {
		env.addArtist(t, name, domain.CategoryHair, 2)
	}
	record := env.addRecord(t, "s-2", domain.CategoryHair, "Horak wedding")
	fb := newFakeBoard()
	gw := &fakeGateway{}
	env.Engine.Board = fb
	env.Engine.Notify = gw

	batch, _, err := env.Engine.CreateBatch(env.Ctx, engine.CreateBatchOptions{
		ClientServiceID: record.ID,
		Mode:            domain.ModeBroadcast,
		ActorID:         "tester",
	})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	proposals, _ := env.Engine.Repo.ListProposalsForBatch(env.Ctx, batch.ID)
	if err := env.Engine.Respond(env.Ctx, proposals[0].ID, domain.ResponseYes, proposals[0].ArtistID); err != nil {
		t.Fatalf("respond: %v", err)
	}
	env.advance(25 * time.Hour)

	res, err := env.Engine.Sweep(env.Ctx, "sweeper")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Processed != 1 || res.OptionsSent != 1 || res.Escalated != 0 {
		t.Fatalf("result = %+v", res)
	}
	if len(gw.automations) != 1 || gw.automations[0] != notify.AutomationSendOptions {
		t.Fatalf("automations = %v", gw.automations)
	}
	if gw.resolutions[0].Yes != 1 || gw.resolutions[0].Pending != 2 {
		t.Fatalf("resolution = %+v", gw.resolutions[0])
	}
	statusField := env.Engine.Config.Board.Categories[domain.CategoryHair].StatusField
	if got := fb.fields[record.BoardItemID][statusField]; got != env.Engine.Config.Phrases.OptionsSent {
		t.Fatalf("board status = %q, want %q", got, env.Engine.Config.Phrases.OptionsSent)
	}
	if len(fb.notes[record.BoardItemID]) != 1 {
		t.Fatalf("board notes = %v", fb.notes[record.BoardItemID])
	}

	// Pending proposals are dead once the batch expired.
	err = env.Engine.Respond(env.Ctx, proposals[1].ID, domain.ResponseYes, proposals[1].ArtistID)
	if !errors.Is(err, engine.ErrBatchNotOpen) {
		t.Fatalf("late respond err = %v, want ErrBatchNotOpen", err)
	}

	// Idempotent: the expired batch is not picked up again.
	res, err = env.Engine.Sweep(env.Ctx, "sweeper")
	if err != nil || res.Processed != 0 {
		t.Fatalf("re-sweep = %+v err=%v", res, err)
	}
	if len(gw.automations) != 1 {
		t.Fatalf("automation fired twice: %v", gw.automations)
	}
}

func TestSweepTriggersNoAvailability(t *testing.T) {
	env := newTestEnv(t)
	env.addArtist(t, "A", domain.CategoryMakeup, 1)
	env.addArtist(t, "B", domain.CategoryMakeup, 1)
	record := env.addRecord(t, "s-3", domain.CategoryMakeup, "Kral wedding")
	gw := &fakeGateway{}
	env.Engine.Notify = gw

	batch, _, err := env.Engine.CreateBatch(env.Ctx, engine.CreateBatchOptions{
		ClientServiceID: record.ID,
		Mode:            domain.ModeBroadcast,
		ActorID:         "tester",
	})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	proposals, _ := env.Engine.Repo.ListProposalsForBatch(env.Ctx, batch.ID)
	if err := env.Engine.Respond(env.Ctx, proposals[0].ID, domain.ResponseNo, proposals[0].ArtistID); err != nil {
		t.Fatalf("respond: %v", err)
	}
	env.advance(25 * time.Hour)

	res, err := env.Engine.Sweep(env.Ctx, "sweeper")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.NoAvailability != 1 || res.OptionsSent != 0 {
		t.Fatalf("result = %+v", res)
	}
	if len(gw.automations) != 1 || gw.automations[0] != notify.AutomationNoAvailability {
		t.Fatalf("automations = %v", gw.automations)
	}
}

func TestSweepGatewayFailureStillExpires(t *testing.T) {
	env := newTestEnv(t)
	env.addArtist(t, "A", domain.CategoryHair, 1)
	record := env.addRecord(t, "s-4", domain.CategoryHair, "Benes wedding")
	gw := &fakeGateway{fail: errors.New("webhook down")}
	env.Engine.Notify = gw

	batch, _, err := env.Engine.CreateBatch(env.Ctx, engine.CreateBatchOptions{
		ClientServiceID: record.ID,
		Mode:            domain.ModeBroadcast,
		ActorID:         "tester",
	})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	env.advance(25 * time.Hour)

	res, err := env.Engine.Sweep(env.Ctx, "sweeper")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Processed != 1 {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Errors) == 0 {
		t.Fatalf("expected delivery error in result")
	}
	got, _ := env.Engine.Repo.GetBatch(env.Ctx, batch.ID)
	if got.State != domain.BatchExpired {
		t.Fatalf("state = %s, want expired_no_action", got.State)
	}
}

func TestSweepBoardNoteFailureIsRecorded(t *testing.T) {
	env := newTestEnv(t)
	env.addArtist(t, "A", domain.CategoryHair, 1)
	env.addArtist(t, "B", domain.CategoryHair, 2)
	record := env.addRecord(t, "s-6", domain.CategoryHair, "Dvorak wedding")
	fb := newFakeBoard()
	fb.noteErr = errors.New("board down")
	gw := &fakeGateway{}
	env.Engine.Board = fb
	env.Engine.Notify = gw

	batch, _, err := env.Engine.CreateBatch(env.Ctx, engine.CreateBatchOptions{
		ClientServiceID: record.ID,
		Mode:            domain.ModeBroadcast,
		ActorID:         "tester",
	})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	proposals, _ := env.Engine.Repo.ListProposalsForBatch(env.Ctx, batch.ID)
	if err := env.Engine.Respond(env.Ctx, proposals[0].ID, domain.ResponseYes, proposals[0].ArtistID); err != nil {
		t.Fatalf("respond: %v", err)
	}
	env.advance(25 * time.Hour)

	res, err := env.Engine.Sweep(env.Ctx, "sweeper")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.OptionsSent != 1 {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "board note") {
		t.Fatalf("errors = %v, want the note failure recorded", res.Errors)
	}
	// The status field write is independent of the note.
	statusField := env.Engine.Config.Board.Categories[domain.CategoryHair].StatusField
	if fb.fields[record.BoardItemID][statusField] != env.Engine.Config.Phrases.OptionsSent {
		t.Fatalf("board status = %q", fb.fields[record.BoardItemID][statusField])
	}
}

func TestSweepZeroProposalSingleEscalates(t *testing.T) {
	env := newTestEnv(t)
	record := env.addRecord(t, "s-5", domain.CategoryMakeup, "Urban wedding")
	batch, count, err := env.Engine.CreateBatch(env.Ctx, engine.CreateBatchOptions{
		ClientServiceID: record.ID,
		Mode:            domain.ModeSingle,
		ActorID:         "tester",
	})
	if err != nil || count != 0 {
		t.Fatalf("create batch: count=%d err=%v", count, err)
	}
	// An artist joins before the deadline passes.
	env.addArtist(t, "Late", domain.CategoryMakeup, 1)
	env.advance(25 * time.Hour)

	res, err := env.Engine.Sweep(env.Ctx, "sweeper")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Escalated != 1 {
		t.Fatalf("result = %+v", res)
	}
	views, _ := env.Engine.Repo.BatchesForClientService(env.Ctx, record.ID)
	if len(views) != 2 {
		t.Fatalf("batches = %d, want 2", len(views))
	}
	for _, v := range views {
		if v.ID == batch.ID {
			continue
		}
		if len(v.Proposals) != 1 {
			t.Fatalf("escalation proposals = %d, want 1", len(v.Proposals))
		}
	}
}
