package database

import (
	"fmt"

	"github.com/currentsmms-kd/spelling-stars-sub000/pkg/models"
)

// PendingCounts reports the actual number of not-yet-synced, not-failed
// records per category, plus the quarantined breakdown. The sync indicator
// renders these numbers directly; collapsing them to a boolean would make
// users close the app believing their progress is saved when it is not.
func (q *Queue) PendingCounts() (models.PendingCounts, error) {
	var counts models.PendingCounts

	pending := func(table string) (int, error) {
		var n int
		err := q.db.Get(&n,
			fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE synced = 0 AND failed = 0", table))
		return n, err
	}
	failed := func(table string) (int, error) {
		var n int
		err := q.db.Get(&n, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE failed = 1", table))
		return n, err
	}

	var err error
	if counts.Attempts, err = pending(tableAttempts); err != nil {
		return counts, fmt.Errorf("failed to count pending attempts: %w", err)
	}
	if counts.Audio, err = pending(tableAudioClips); err != nil {
		return counts, fmt.Errorf("failed to count pending audio clips: %w", err)
	}
	if counts.DifficultyUpdates, err = pending(tableDifficultyUpdates); err != nil {
		return counts, fmt.Errorf("failed to count pending difficulty updates: %w", err)
	}
	if counts.RewardTransactions, err = pending(tableRewardTxs); err != nil {
		return counts, fmt.Errorf("failed to count pending reward transactions: %w", err)
	}
	counts.Total = counts.Attempts + counts.Audio + counts.DifficultyUpdates + counts.RewardTransactions

	if counts.Failed.Attempts, err = failed(tableAttempts); err != nil {
		return counts, fmt.Errorf("failed to count failed attempts: %w", err)
	}
	if counts.Failed.Audio, err = failed(tableAudioClips); err != nil {
		return counts, fmt.Errorf("failed to count failed audio clips: %w", err)
	}
	if counts.Failed.DifficultyUpdates, err = failed(tableDifficultyUpdates); err != nil {
		return counts, fmt.Errorf("failed to count failed difficulty updates: %w", err)
	}
	if counts.Failed.RewardTransactions, err = failed(tableRewardTxs); err != nil {
		return counts, fmt.Errorf("failed to count failed reward transactions: %w", err)
	}

	return counts, nil
}
