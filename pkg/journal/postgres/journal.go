// Package postgres keeps a journal of import attempts in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/natserract/onboarding/pkg/onboarding"
	"go.uber.org/zap"
)

// Schema creates the journal table.
const Schema = `
CREATE TABLE IF NOT EXISTS import_journal (
    id             UUID PRIMARY KEY,
    data_source    TEXT        NOT NULL,
    correlation_id UUID,
    entity_count   INTEGER     NOT NULL,
    status_code    INTEGER,
    message        TEXT,
    batch_id       TEXT,
    error          TEXT,
    recorded_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_import_journal_data_source
    ON import_journal (data_source, recorded_at DESC);
`

const insertEntry = `
INSERT INTO import_journal
    (id, data_source, correlation_id, entity_count, status_code, message, batch_id, error, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// ErrDuplicateEntry is returned by Record when an entry with the same ID exists.
var ErrDuplicateEntry = errors.New("journal entry already recorded")

// Execer is the subset of a pgx pool the journal needs. *DB and
// *pgxpool.Pool both satisfy it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Entry is one journaled import attempt. StatusCode is zero when no response
// was received; Error holds the failure in that case.
type Entry struct {
	ID            uuid.UUID
	DataSource    string
	CorrelationID *uuid.UUID
	Entities      int
	StatusCode    int
	Message       string
	BatchID       string
	Error         string
	RecordedAt    time.Time
}

// NewEntry describes the result of importing entities batch into dataSource.
func NewEntry(dataSource string, correlationID *uuid.UUID, entities int, outcome *onboarding.ImportOutcome, err error) Entry {
	e := Entry{
		DataSource:    dataSource,
		CorrelationID: correlationID,
		Entities:      entities,
	}
	if outcome != nil {
		e.StatusCode = outcome.StatusCode
		e.Message = outcome.Message
		if outcome.Result != nil {
			e.BatchID = outcome.Result.BatchID
		}
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// Journal records import attempts.
type Journal struct {
	db     Execer
	logger *zap.Logger
	now    func() time.Time
}

// NewJournal creates a Journal writing through db.
func NewJournal(db Execer, logger *zap.Logger) *Journal {
	return &Journal{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// EnsureSchema creates the journal table if it does not exist.
func (j *Journal) EnsureSchema(ctx context.Context) error {
	if _, err := j.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	j.logger.Debug("Import journal schema ready")
	return nil
}

// Record inserts e. A zero ID or RecordedAt is filled in.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = j.now().UTC()
	}

	correlation := pgtype.UUID{}
	if e.CorrelationID != nil {
		correlation = pgtype.UUID{Bytes: *e.CorrelationID, Valid: true}
	}

	_, err := j.db.Exec(ctx, insertEntry,
		pgtype.UUID{Bytes: e.ID, Valid: true},
		e.DataSource,
		correlation,
		e.Entities,
		pgtype.Int4{Int32: int32(e.StatusCode), Valid: e.StatusCode != 0},
		optionalText(e.Message),
		optionalText(e.BatchID),
		optionalText(e.Error),
		e.RecordedAt,
	)
	if isUniqueViolation(err) {
		j.logger.Warn("Import already journaled", zap.String("id", e.ID.String()))
		return fmt.Errorf("%w: %s", ErrDuplicateEntry, e.ID)
	}
	if err != nil {
		j.logger.Error("Failed to record import",
			zap.String("data_source", e.DataSource),
			zap.Error(err))
		return fmt.Errorf("failed to record import: %w", err)
	}

	j.logger.Debug("Recorded import",
		zap.String("id", e.ID.String()),
		zap.String("data_source", e.DataSource),
		zap.Int("status_code", e.StatusCode))
	return nil
}

func optionalText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

// isUniqueViolation reports a PostgreSQL unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
