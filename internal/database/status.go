package database

import "fmt"

// Queue tables share the synced/retry_count/last_error/failed columns, so
// the state transitions are implemented once and exposed per category. The
// table name is always one of the compile-time constants below, never user
// input.
const (
	tableAttempts          = "queued_attempts"
	tableDifficultyUpdates = "queued_difficulty_updates"
	tableRewardTxs         = "queued_reward_transactions"
	tableAudioClips        = "queued_audio_clips"
)

// markSynced transitions a record to synced, making it eligible for pruning.
func (q *Queue) markSynced(table string, id int64) error {
	_, err := q.db.Exec(
		fmt.Sprintf("UPDATE %s SET synced = 1, last_error = NULL WHERE id = $1", table), id)
	if err != nil {
		return fmt.Errorf("failed to mark %s record %d synced: %w", table, id, err)
	}
	return nil
}

// markFailed quarantines a record permanently. Nothing retries it until a
// manual resolution clears the flag.
func (q *Queue) markFailed(table string, id int64, reason string) error {
	_, err := q.db.Exec(
		fmt.Sprintf("UPDATE %s SET failed = 1, last_error = $1 WHERE id = $2", table), reason, id)
	if err != nil {
		return fmt.Errorf("failed to quarantine %s record %d: %w", table, id, err)
	}
	return nil
}

// recordError notes a transient failure. The record stays pending; the
// retry counter is bumped only when the remote write itself failed, not
// when a pre-write lookup did.
func (q *Queue) recordError(table string, id int64, message string, bumpRetry bool) error {
	var stmt string
	if bumpRetry {
		stmt = fmt.Sprintf("UPDATE %s SET retry_count = retry_count + 1, last_error = $1 WHERE id = $2", table)
	} else {
		stmt = fmt.Sprintf("UPDATE %s SET last_error = $1 WHERE id = $2", table)
	}
	if _, err := q.db.Exec(stmt, message, id); err != nil {
		return fmt.Errorf("failed to record error on %s record %d: %w", table, id, err)
	}
	return nil
}

// PruneSynced deletes confirmed records from every category and returns how
// many rows were removed. Failed and pending records are never touched.
func (q *Queue) PruneSynced() (int64, error) {
	var total int64
	for _, table := range []string{tableAttempts, tableDifficultyUpdates, tableRewardTxs, tableAudioClips} {
		res, err := q.db.Exec(fmt.Sprintf("DELETE FROM %s WHERE synced = 1", table))
		if err != nil {
			return total, fmt.Errorf("failed to prune %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}
