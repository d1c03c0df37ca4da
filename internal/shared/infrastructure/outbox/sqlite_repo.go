package outbox

import (
	"context"
	"database/sql"
	"time"

	sharedPersistence "github.com/eshields/caseplan/internal/shared/infrastructure/persistence"
)

const sqliteInsertOutboxSQL = `
	INSERT INTO outbox (
		event_id, aggregate_type, aggregate_id, event_type, routing_key,
		payload, metadata, created_at, next_retry_at, dead_lettered_at, dead_letter_reason
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// SQLiteRepository implements Repository using SQLite (local mode).
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite outbox repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) insert(ctx context.Context, q sharedPersistence.SQLiteQuerier, msg *Message) error {
	var nextRetryAt, deadLetteredAt any
	if msg.NextRetryAt != nil {
		nextRetryAt = msg.NextRetryAt.UTC().Format(time.RFC3339Nano)
	}
	if msg.DeadLetteredAt != nil {
		deadLetteredAt = msg.DeadLetteredAt.UTC().Format(time.RFC3339Nano)
	}

	result, err := q.ExecContext(ctx, sqliteInsertOutboxSQL,
		msg.EventID.String(),
		msg.AggregateType,
		msg.AggregateID.String(),
		msg.EventType,
		msg.RoutingKey,
		string(msg.Payload),
		string(msg.Metadata),
		msg.CreatedAt.UTC().Format(time.RFC3339Nano),
		nextRetryAt,
		deadLetteredAt,
		msg.DeadLetterReason,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	msg.ID = id
	return nil
}

// Save stores a new outbox message.
func (r *SQLiteRepository) Save(ctx context.Context, msg *Message) error {
	return r.insert(ctx, sharedPersistence.SQLiteExecutor(ctx, r.db), msg)
}

// SaveBatch stores multiple outbox messages atomically.
func (r *SQLiteRepository) SaveBatch(ctx context.Context, msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}

	if info, ok := sharedPersistence.SQLiteTxInfoFromContext(ctx); ok {
		for _, msg := range msgs {
			if err := r.insert(ctx, info.Tx, msg); err != nil {
				return err
			}
		}
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, msg := range msgs {
		if err := r.insert(ctx, tx, msg); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetUnpublished retrieves unpublished messages ordered by creation time.
func (r *SQLiteRepository) GetUnpublished(ctx context.Context, limit int) ([]*Message, error) {
	query := `
		SELECT id, event_id, aggregate_type, aggregate_id, event_type, routing_key,
		       payload, metadata, created_at, published_at, next_retry_at, retry_count,
		       last_error, dead_lettered_at, dead_letter_reason
		FROM outbox
		WHERE published_at IS NULL
		  AND dead_lettered_at IS NULL
		  AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY created_at
		LIMIT ?
	`

	q := sharedPersistence.SQLiteExecutor(ctx, r.db)
	rows, err := q.QueryContext(ctx, query, time.Now().UTC().Format(time.RFC3339Nano), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanSQLiteMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// MarkPublished marks a message as successfully published.
func (r *SQLiteRepository) MarkPublished(ctx context.Context, id int64) error {
	q := sharedPersistence.SQLiteExecutor(ctx, r.db)
	_, err := q.ExecContext(ctx,
		`UPDATE outbox SET published_at = ?, last_error = NULL WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), id)
	return err
}

// MarkFailed records a publish failure with error message.
func (r *SQLiteRepository) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	q := sharedPersistence.SQLiteExecutor(ctx, r.db)
	_, err := q.ExecContext(ctx, `
		UPDATE outbox
		SET retry_count = retry_count + 1, last_error = ?, next_retry_at = ?
		WHERE id = ?
	`, errMsg, nextRetryAt.UTC().Format(time.RFC3339Nano), id)
	return err
}

// MarkDead marks a message as dead-lettered.
func (r *SQLiteRepository) MarkDead(ctx context.Context, id int64, reason string) error {
	q := sharedPersistence.SQLiteExecutor(ctx, r.db)
	_, err := q.ExecContext(ctx, `
		UPDATE outbox
		SET dead_lettered_at = ?, dead_letter_reason = ?, retry_count = retry_count + 1
		WHERE id = ?
	`, time.Now().UTC().Format(time.RFC3339Nano), reason, id)
	return err
}

// DeleteOld removes successfully published messages older than the retention period.
func (r *SQLiteRepository) DeleteOld(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays).Format(time.RFC3339Nano)

	q := sharedPersistence.SQLiteExecutor(ctx, r.db)
	result, err := q.ExecContext(ctx, `
		DELETE FROM outbox
		WHERE published_at IS NOT NULL AND published_at < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanSQLiteMessage(rows *sql.Rows) (*Message, error) {
	var (
		msg                      Message
		eventID, aggregateID     string
		payload, metadata        string
		createdAt                string
		publishedAt, nextRetryAt sql.NullString
		lastError, deadReason    sql.NullString
		deadLetteredAt           sql.NullString
	)

	err := rows.Scan(
		&msg.ID, &eventID, &msg.AggregateType, &aggregateID, &msg.EventType,
		&msg.RoutingKey, &payload, &metadata, &createdAt, &publishedAt,
		&nextRetryAt, &msg.RetryCount, &lastError, &deadLetteredAt, &deadReason,
	)
	if err != nil {
		return nil, err
	}

	if msg.EventID, err = parseUUID(eventID); err != nil {
		return nil, err
	}
	if msg.AggregateID, err = parseUUID(aggregateID); err != nil {
		return nil, err
	}
	msg.Payload = []byte(payload)
	msg.Metadata = []byte(metadata)
	if msg.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
		return nil, err
	}
	if msg.PublishedAt, err = parseOptionalSQLiteTime(publishedAt); err != nil {
		return nil, err
	}
	if msg.NextRetryAt, err = parseOptionalSQLiteTime(nextRetryAt); err != nil {
		return nil, err
	}
	if msg.DeadLetteredAt, err = parseOptionalSQLiteTime(deadLetteredAt); err != nil {
		return nil, err
	}
	if lastError.Valid {
		msg.LastError = &lastError.String
	}
	if deadReason.Valid {
		msg.DeadLetterReason = &deadReason.String
	}

	return &msg, nil
}
