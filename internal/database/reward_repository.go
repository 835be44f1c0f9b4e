package database

import (
	"fmt"

	"github.com/currentsmms-kd/spelling-stars-sub000/pkg/models"
)

// EnqueueRewardTransaction appends a pending point award.
func (q *Queue) EnqueueRewardTransaction(tx *models.QueuedRewardTransaction) error {
	if tx.ClientKey == "" {
		return fmt.Errorf("reward transaction is missing a client key")
	}
	res, err := q.db.Exec(`
		INSERT INTO queued_reward_transactions (client_key, user_id, amount, reason)
		VALUES ($1, $2, $3, $4)
	`, tx.ClientKey, tx.UserID, tx.Amount, tx.Reason)
	if err != nil {
		return fmt.Errorf("failed to enqueue reward transaction: %w", err)
	}
	tx.ID, _ = res.LastInsertId()
	return nil
}

// PendingRewardTransactions returns unsynced transactions in enqueue order.
func (q *Queue) PendingRewardTransactions() ([]models.QueuedRewardTransaction, error) {
	var txs []models.QueuedRewardTransaction
	err := q.db.Select(&txs,
		"SELECT * FROM queued_reward_transactions WHERE synced = 0 AND failed = 0 ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to load pending reward transactions: %w", err)
	}
	return txs, nil
}

// FailedRewardTransactions returns quarantined transactions.
func (q *Queue) FailedRewardTransactions() ([]models.QueuedRewardTransaction, error) {
	var txs []models.QueuedRewardTransaction
	err := q.db.Select(&txs,
		"SELECT * FROM queued_reward_transactions WHERE failed = 1 ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to load failed reward transactions: %w", err)
	}
	return txs, nil
}

// MarkRewardTransactionSynced transitions a transaction to synced.
func (q *Queue) MarkRewardTransactionSynced(id int64) error {
	return q.markSynced(tableRewardTxs, id)
}

// MarkRewardTransactionFailed quarantines a transaction permanently.
func (q *Queue) MarkRewardTransactionFailed(id int64, reason string) error {
	return q.markFailed(tableRewardTxs, id, reason)
}

// RecordRewardTransactionError notes a transient failure on a transaction.
func (q *Queue) RecordRewardTransactionError(id int64, message string, bumpRetry bool) error {
	return q.recordError(tableRewardTxs, id, message, bumpRetry)
}
