package remote

import (
	"context"
	"database/sql"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/currentsmms-kd/spelling-stars-sub000/pkg/models"
)

// DefaultCallTimeout bounds every remote call so a dead network can never
// block the caller indefinitely.
const DefaultCallTimeout = 5 * time.Second

// PostgresStore talks to the hosted backend's Postgres database. The schema
// (words, list_words, difficulty_entries, attempts, reward accounts) is
// owned by the backend; this client only reads and upserts.
type PostgresStore struct {
	db          *sqlx.DB
	callTimeout time.Duration
}

// NewPostgresStore connects to the remote database. The connection itself
// is lazy; the first call reports ErrUnavailable if the backend is down.
func NewPostgresStore(databaseURL string, callTimeout time.Duration) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "open remote database")
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &PostgresStore{db: db, callTimeout: callTimeout}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.callTimeout)
}

// unavailable folds any driver/network error into ErrUnavailable so callers
// can classify it with errors.Is.
func unavailable(err error, op string) error {
	return errors.Wrapf(ErrUnavailable, "%s: %v", op, err)
}

// Ping checks connectivity with a short deadline.
func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := s.callCtx(ctx)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable(err, "ping")
	}
	return nil
}

// GetDifficultyEntry returns the learner's state for one word.
func (s *PostgresStore) GetDifficultyEntry(ctx context.Context, learnerID, wordID string) (models.DifficultyEntry, error) {
	ctx, cancel := s.callCtx(ctx)
	defer cancel()

	var entry models.DifficultyEntry
	err := s.db.GetContext(ctx, &entry, `
		SELECT learner_id, word_id, ease, interval_days, due_date, reps, lapses, updated_at
		FROM difficulty_entries
		WHERE learner_id = $1 AND word_id = $2
	`, learnerID, wordID)
	if err == sql.ErrNoRows {
		return models.DifficultyEntry{}, ErrNotFound
	}
	if err != nil {
		return models.DifficultyEntry{}, unavailable(err, "get difficulty entry")
	}
	return entry, nil
}

// UpsertDifficultyEntry writes the entry keyed on learner+word.
func (s *PostgresStore) UpsertDifficultyEntry(ctx context.Context, entry models.DifficultyEntry) error {
	ctx, cancel := s.callCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO difficulty_entries (
			learner_id, word_id, ease, interval_days, due_date, reps, lapses, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (learner_id, word_id) DO UPDATE SET
			ease = EXCLUDED.ease,
			interval_days = EXCLUDED.interval_days,
			due_date = EXCLUDED.due_date,
			reps = EXCLUDED.reps,
			lapses = EXCLUDED.lapses,
			updated_at = EXCLUDED.updated_at
	`,
		entry.LearnerID, entry.WordID, entry.Ease, entry.IntervalDays,
		entry.DueDate, entry.Reps, entry.Lapses, entry.UpdatedAt,
	)
	if err != nil {
		return unavailable(err, "upsert difficulty entry")
	}
	return nil
}

// wordStateRow is the flattened join of a list word and its difficulty state.
type wordStateRow struct {
	WordID       string    `db:"word_id"`
	ListID       string    `db:"list_id"`
	Text         string    `db:"text"`
	Position     int       `db:"position"`
	Ease         float64   `db:"ease"`
	IntervalDays int       `db:"interval_days"`
	DueDate      time.Time `db:"due_date"`
	Reps         int       `db:"reps"`
	Lapses       int       `db:"lapses"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// EntriesForLearner returns every word the learner has difficulty state
// for, optionally scoped to one list. A word shared by several lists is
// reported once.
func (s *PostgresStore) EntriesForLearner(ctx context.Context, learnerID string, listID *string) ([]WordState, error) {
	ctx, cancel := s.callCtx(ctx)
	defer cancel()

	query := `
		SELECT DISTINCT ON (w.id)
			w.id AS word_id, lw.list_id, w.text, lw.position,
			d.ease, d.interval_days, d.due_date, d.reps, d.lapses, d.updated_at
		FROM difficulty_entries d
		JOIN words w ON w.id = d.word_id
		JOIN list_words lw ON lw.word_id = w.id
		WHERE d.learner_id = $1
	`
	args := []interface{}{learnerID}
	if listID != nil {
		query += " AND lw.list_id = $2"
		args = append(args, *listID)
	}
	query += " ORDER BY w.id, lw.list_id"

	var rows []wordStateRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, unavailable(err, "entries for learner")
	}

	states := make([]WordState, 0, len(rows))
	for _, r := range rows {
		states = append(states, WordState{
			Word: models.Word{ID: r.WordID, ListID: r.ListID, Text: r.Text, Position: r.Position},
			Entry: models.DifficultyEntry{
				LearnerID:    learnerID,
				WordID:       r.WordID,
				Ease:         r.Ease,
				IntervalDays: r.IntervalDays,
				DueDate:      r.DueDate,
				Reps:         r.Reps,
				Lapses:       r.Lapses,
				UpdatedAt:    r.UpdatedAt,
			},
		})
	}
	return states, nil
}

// UnseenWords returns in-scope words the learner has never attempted,
// preserving list order.
func (s *PostgresStore) UnseenWords(ctx context.Context, learnerID string, listID *string) ([]models.Word, error) {
	ctx, cancel := s.callCtx(ctx)
	defer cancel()

	query := `
		SELECT w.id, lw.list_id, w.text, lw.position, w.created_at
		FROM list_words lw
		JOIN words w ON w.id = lw.word_id
		WHERE NOT EXISTS (
			SELECT 1 FROM difficulty_entries d
			WHERE d.learner_id = $1 AND d.word_id = w.id
		)
	`
	args := []interface{}{learnerID}
	if listID != nil {
		query += " AND lw.list_id = $2"
		args = append(args, *listID)
	}
	query += " ORDER BY lw.list_id, lw.position"

	var words []models.Word
	if err := s.db.SelectContext(ctx, &words, query, args...); err != nil {
		return nil, unavailable(err, "unseen words")
	}
	return words, nil
}

// ListsForWord returns the ids of every list containing the word.
func (s *PostgresStore) ListsForWord(ctx context.Context, wordID string) ([]string, error) {
	ctx, cancel := s.callCtx(ctx)
	defer cancel()

	var ids []string
	err := s.db.SelectContext(ctx, &ids,
		"SELECT list_id FROM list_words WHERE word_id = $1 ORDER BY list_id", wordID)
	if err != nil {
		return nil, unavailable(err, "lists for word")
	}
	return ids, nil
}

// InsertAttempt records a practice attempt. The unique index on client_key
// makes re-submission after a lost acknowledgement a no-op.
func (s *PostgresStore) InsertAttempt(ctx context.Context, attempt models.QueuedAttempt) error {
	ctx, cancel := s.callCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attempts (
			client_key, learner_id, word_id, list_id, mode, correct,
			typed_answer, audio_ref, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (client_key) DO NOTHING
	`,
		attempt.ClientKey, attempt.LearnerID, attempt.WordID, attempt.ListID,
		attempt.Mode, attempt.Correct, attempt.TypedAnswer, attempt.AudioRef,
		attempt.StartedAt,
	)
	if err != nil {
		return unavailable(err, "insert attempt")
	}
	return nil
}

// AwardRewardPoints applies a point transaction and returns the new balance.
// The transaction row and the balance update commit together; a replayed
// client key inserts nothing and leaves the balance untouched.
func (s *PostgresStore) AwardRewardPoints(ctx context.Context, award models.QueuedRewardTransaction) (int, error) {
	ctx, cancel := s.callCtx(ctx)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, unavailable(err, "award points: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `
		INSERT INTO reward_transactions (client_key, user_id, amount, reason, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (client_key) DO NOTHING
	`, award.ClientKey, award.UserID, award.Amount, award.Reason)
	if err != nil {
		return 0, unavailable(err, "award points: insert transaction")
	}

	var balance int
	if applied, _ := res.RowsAffected(); applied == 0 {
		// Duplicate submission; report the current balance.
		err = tx.QueryRowxContext(ctx,
			"SELECT balance FROM reward_accounts WHERE user_id = $1", award.UserID).Scan(&balance)
		if err != nil && err != sql.ErrNoRows {
			return 0, unavailable(err, "award points: read balance")
		}
	} else {
		err = tx.QueryRowxContext(ctx, `
			INSERT INTO reward_accounts (user_id, balance)
			VALUES ($1, $2)
			ON CONFLICT (user_id) DO UPDATE SET balance = reward_accounts.balance + EXCLUDED.balance
			RETURNING balance
		`, award.UserID, award.Amount).Scan(&balance)
		if err != nil {
			return 0, unavailable(err, "award points: update balance")
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, unavailable(err, "award points: commit")
	}
	return balance, nil
}

// UploadAudio pushes a recorded clip. A missing local file is a data
// problem, not a connectivity one, so it is returned unwrapped.
func (s *PostgresStore) UploadAudio(ctx context.Context, clip models.QueuedAudioClip) error {
	data, err := os.ReadFile(clip.LocalPath)
	if err != nil {
		return errors.Wrapf(err, "read audio clip %s", clip.LocalPath)
	}

	ctx, cancel := s.callCtx(ctx)
	defer cancel()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audio_clips (attempt_key, learner_id, word_id, recording)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (attempt_key) DO NOTHING
	`, clip.AttemptKey, clip.LearnerID, clip.WordID, data)
	if err != nil {
		return unavailable(err, "upload audio")
	}
	return nil
}
