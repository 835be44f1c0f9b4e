package database

import (
	"context"
	"fmt"
)

// ListLookup resolves which lists contain a word. Satisfied by the remote
// store; narrowed here so backfill can run against a fake in tests.
type ListLookup interface {
	ListsForWord(ctx context.Context, wordID string) ([]string, error)
}

// BackfillResult summarizes one backfill pass over attempts missing their
// list reference.
type BackfillResult struct {
	Filled      int // list inferred and written
	Quarantined int // zero or multiple candidate lists; marked failed
	Deferred    int // lookup itself failed; record stays pending for retry
}

// BackfillAttemptLists resolves the owning list for every pending attempt
// that lacks one. Outcomes are strictly three-way:
//
//   - exactly one list contains the word: the attempt is patched in place;
//   - zero or multiple lists match: the attempt is quarantined with a
//     descriptive error, never silently guessed;
//   - the lookup itself fails (network, backend): the attempt stays
//     pending with the error noted, to be retried on a later pass. The
//     retry counter is not touched, since no remote write was attempted.
func (q *Queue) BackfillAttemptLists(ctx context.Context, lookup ListLookup) (BackfillResult, error) {
	var result BackfillResult

	attempts, err := q.PendingAttempts()
	if err != nil {
		return result, err
	}

	for _, attempt := range attempts {
		if attempt.ListID != nil && *attempt.ListID != "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		lists, err := lookup.ListsForWord(ctx, attempt.WordID)
		if err != nil {
			msg := fmt.Sprintf("list lookup failed: %v", err)
			if uerr := q.RecordAttemptError(attempt.ID, msg, false); uerr != nil {
				return result, uerr
			}
			result.Deferred++
			continue
		}

		switch len(lists) {
		case 1:
			if err := q.SetAttemptListID(attempt.ID, lists[0]); err != nil {
				return result, err
			}
			result.Filled++
		case 0:
			msg := fmt.Sprintf("word %s belongs to no list; cannot assign attempt", attempt.WordID)
			if err := q.MarkAttemptFailed(attempt.ID, msg); err != nil {
				return result, err
			}
			result.Quarantined++
		default:
			msg := fmt.Sprintf("word %s belongs to %d lists; ambiguous, needs manual assignment", attempt.WordID, len(lists))
			if err := q.MarkAttemptFailed(attempt.ID, msg); err != nil {
				return result, err
			}
			result.Quarantined++
		}
	}

	return result, nil
}
