package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bookline/internal/audit"
	"bookline/internal/domain"
	"bookline/internal/notify"
	"bookline/internal/repo"
)

// SweepResult summarizes one deadline pass.
type SweepResult struct {
	Processed      int      `json:"processed"`
	Escalated      int      `json:"escalated"`
	OptionsSent    int      `json:"options_sent"`
	NoAvailability int      `json:"no_availability"`
	Errors         []string `json:"errors,omitempty"`
}

// Sweep expires every open batch past its deadline. Each batch is its
// own transaction, so one bad row never blocks the rest of the pass.
// A SINGLE batch with zero responses escalates to a BROADCAST batch in
// the same transaction as its expiry; other expiries trigger the
// options-sent or no-availability automation after commit.
func (e Engine) Sweep(ctx context.Context, actorID string) (SweepResult, error) {
	var result SweepResult
	nowStr := e.now().UTC().Format(time.RFC3339)
	ids, err := e.Repo.ExpiredOpenBatchIDs(ctx, nowStr)
	if err != nil {
		return result, err
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := e.sweepBatch(ctx, id, actorID, &result); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("batch %s: %v", id, err))
		}
	}
	return result, nil
}

func (e Engine) sweepBatch(ctx context.Context, batchID, actorID string, result *SweepResult) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	batch, err := e.Repo.GetBatchTx(ctx, tx, batchID)
	if err != nil {
		return err
	}
	if batch.State != domain.BatchOpen {
		// Answered between the listing and here. Nothing to do.
		return nil
	}
	tally, err := e.Repo.TallyBatchTx(ctx, tx, batch.ID)
	if err != nil {
		return err
	}
	record, err := e.Repo.GetClientServiceTx(ctx, tx, batch.ClientServiceID)
	if err != nil {
		return err
	}
	nowStr := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.CloseBatchTx(ctx, tx, batch.ID, domain.BatchExpired, nowStr); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		return err
	}

	payload := audit.Payload{
		"mode":        batch.Mode,
		"yes":         tally.Yes,
		"no":          tally.No,
		"pending":     tally.Pending,
		"client_name": record.ClientName,
	}

	if batch.Mode == domain.ModeSingle && tally.Pending == tally.Total() {
		escalation, proposals, err := e.openBatchTx(ctx, tx, record, domain.ModeBroadcast, domain.ReasonPriorBatchDeclined, 0, actorID)
		if err != nil {
			return fmt.Errorf("escalate: %w", err)
		}
		payload["escalated_to"] = escalation.ID
		if err := e.auditWriter().Append(ctx, tx, "batch.expired", "batch", batch.ID, actorID, payload); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		result.Processed++
		result.Escalated++
		e.notifyOffers(ctx, record, escalation, proposals)
		return nil
	}

	if err := e.auditWriter().Append(ctx, tx, "batch.expired", "batch", batch.ID, actorID, payload); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	result.Processed++
	e.resolveExpired(ctx, batch, record, tally, result)
	return nil
}

// resolveExpired runs the post-commit side of an expiry: automation
// trigger, board status write, and a board note. All best-effort; the
// local transition already committed.
func (e Engine) resolveExpired(ctx context.Context, batch domain.ProposalBatch, record domain.ClientServiceRecord, tally repo.ResponseTally, result *SweepResult) {
	kind := notify.AutomationNoAvailability
	phrase := ""
	if e.Config != nil {
		phrase = e.Config.Phrases.NoAvailability
	}
	if tally.Yes > 0 {
		kind = notify.AutomationSendOptions
		if e.Config != nil {
			phrase = e.Config.Phrases.OptionsSent
		}
	}
	res := notify.Resolution{
		BatchID:     batch.ID,
		RecordID:    record.ID,
		BoardItemID: record.BoardItemID,
		Category:    record.Category,
		ClientName:  record.ClientName,
		Yes:         tally.Yes,
		No:          tally.No,
		Pending:     tally.Pending,
	}
	if err := e.Notify.TriggerAutomation(ctx, kind, res); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("batch %s: automation %s: %v", batch.ID, kind, err))
	} else if kind == notify.AutomationSendOptions {
		result.OptionsSent++
	} else {
		result.NoAvailability++
	}
	if e.Board == nil || record.BoardItemID == "" {
		return
	}
	if phrase != "" && e.Config != nil {
		statusField := e.Config.Board.Categories[record.Category].StatusField
		if statusField != "" {
			if err := e.Board.SetField(ctx, record.BoardItemID, statusField, phrase); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("batch %s: board status: %v", batch.ID, err))
			}
		}
	}
	note := fmt.Sprintf("Availability window closed for %s: %d yes, %d no, %d unanswered.", record.Category, tally.Yes, tally.No, tally.Pending)
	if err := e.Board.AppendNote(ctx, record.BoardItemID, note); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("batch %s: board note: %v", batch.ID, err))
	}
}
