package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/josh-kwaku/fund-ledger/internal/domain"
)

const eventColumns = `id, seq, action, date, value,
	source_role, source_sub_identity, source_account_id,
	destination_role, destination_sub_identity, destination_account_id,
	used_for, note, reversal_of, created_by, created_at`

// TransferEventRepository is the append-only event log. Writes go through a
// transaction; reads use sqlx struct scanning.
type TransferEventRepository struct {
	db *sqlx.DB
}

func NewTransferEventRepository(db *sql.DB) *TransferEventRepository {
	return &TransferEventRepository{db: sqlx.NewDb(db, "postgres")}
}

type eventRow struct {
	ID                     uuid.UUID      `db:"id"`
	Seq                    int64          `db:"seq"`
	Action                 string         `db:"action"`
	Date                   time.Time      `db:"date"`
	Value                  int64          `db:"value"`
	SourceRole             sql.NullString `db:"source_role"`
	SourceSubIdentity      sql.NullString `db:"source_sub_identity"`
	SourceAccountID        uuid.NullUUID  `db:"source_account_id"`
	DestinationRole        sql.NullString `db:"destination_role"`
	DestinationSubIdentity sql.NullString `db:"destination_sub_identity"`
	DestinationAccountID   uuid.NullUUID  `db:"destination_account_id"`
	UsedFor                string         `db:"used_for"`
	Note                   string         `db:"note"`
	ReversalOf             uuid.NullUUID  `db:"reversal_of"`
	CreatedBy              string         `db:"created_by"`
	CreatedAt              time.Time      `db:"created_at"`
}

func (r eventRow) toDomain() domain.TransferEvent {
	return domain.TransferEvent{
		ID:                     r.ID,
		Seq:                    r.Seq,
		Action:                 domain.Action(r.Action),
		Date:                   r.Date,
		Value:                  r.Value,
		SourceRole:             domain.Role(r.SourceRole.String),
		SourceSubIdentity:      r.SourceSubIdentity.String,
		SourceAccountID:        optionalUUID(r.SourceAccountID),
		DestinationRole:        domain.Role(r.DestinationRole.String),
		DestinationSubIdentity: r.DestinationSubIdentity.String,
		DestinationAccountID:   optionalUUID(r.DestinationAccountID),
		UsedFor:                r.UsedFor,
		Note:                   r.Note,
		ReversalOf:             optionalUUID(r.ReversalOf),
		CreatedBy:              r.CreatedBy,
		CreatedAt:              r.CreatedAt,
	}
}

// Create assigns the next sequence number and inserts the event. The sequence
// row stays locked until tx ends, which is what keeps seq order equal to
// commit order.
func (r *TransferEventRepository) Create(ctx context.Context, tx *sql.Tx, event *domain.TransferEvent) error {
	var seq int64
	err := tx.QueryRowContext(ctx,
		`UPDATE ledger_sequence SET current_seq = current_seq + 1 WHERE id RETURNING current_seq`,
	).Scan(&seq)
	if err != nil {
		if pqCode(err) == pqLockNotAvailable {
			return fmt.Errorf("Create: sequence: %w", domain.ErrTransferTimeout)
		}
		return fmt.Errorf("Create: sequence: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO transfer_events (`+eventColumns+`) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)`,
		event.ID, seq, event.Action, event.Date, event.Value,
		nullString(string(event.SourceRole)), nullString(event.SourceSubIdentity), event.SourceAccountID,
		nullString(string(event.DestinationRole)), nullString(event.DestinationSubIdentity), event.DestinationAccountID,
		event.UsedFor, event.Note, event.ReversalOf, event.CreatedBy, event.CreatedAt,
	)
	if err != nil {
		if pqCode(err) == pqUniqueViolation && event.ReversalOf != nil {
			return fmt.Errorf("Create: %w", domain.ErrAlreadyReversed)
		}
		return fmt.Errorf("Create: %w", err)
	}

	event.Seq = seq
	return nil
}

func (r *TransferEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.TransferEvent, error) {
	var row eventRow
	err := r.db.GetContext(ctx, &row, `SELECT `+eventColumns+` FROM transfer_events WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	ev := row.toDomain()
	return &ev, nil
}

// GetReversal returns the event whose reversal_of is id.
func (r *TransferEventRepository) GetReversal(ctx context.Context, id uuid.UUID) (*domain.TransferEvent, error) {
	var row eventRow
	err := r.db.GetContext(ctx, &row, `SELECT `+eventColumns+` FROM transfer_events WHERE reversal_of = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetReversal: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetReversal: %w", err)
	}
	ev := row.toDomain()
	return &ev, nil
}

// ListSince returns up to limit events with seq greater than afterSeq, in seq
// order.
func (r *TransferEventRepository) ListSince(ctx context.Context, afterSeq int64, limit int) ([]domain.TransferEvent, error) {
	var rows []eventRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+eventColumns+` FROM transfer_events WHERE seq > $1 ORDER BY seq LIMIT $2`,
		afterSeq, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ListSince: %w", err)
	}

	events := make([]domain.TransferEvent, len(rows))
	for i := range rows {
		events[i] = rows[i].toDomain()
	}
	return events, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func optionalUUID(n uuid.NullUUID) *uuid.UUID {
	if !n.Valid {
		return nil
	}
	id := n.UUID
	return &id
}
