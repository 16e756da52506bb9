package postgres

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/natserract/onboarding/pkg/onboarding"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type execCall struct {
	sql  string
	args []any
}

type fakeExecer struct {
	mu    sync.Mutex
	calls []execCall
	err   error
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestJournalEnsureSchema(t *testing.T) {
	t.Parallel()

	db := &fakeExecer{}
	j := NewJournal(db, zaptest.NewLogger(t))

	require.NoError(t, j.EnsureSchema(context.Background()))
	require.Len(t, db.calls, 1)
	require.Contains(t, db.calls[0].sql, "CREATE TABLE IF NOT EXISTS import_journal")

	db.err = errors.New("permission denied")
	require.ErrorContains(t, j.EnsureSchema(context.Background()), "permission denied")
}

func TestJournalRecord(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	t.Run("full entry", func(t *testing.T) {
		db := &fakeExecer{}
		j := NewJournal(db, zaptest.NewLogger(t))
		j.now = func() time.Time { return now }

		correlation := uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e")
		entry := NewEntry("products", &correlation, 3, &onboarding.ImportOutcome{
			StatusCode: http.StatusAccepted,
			Message:    "Accepted",
			Result:     &onboarding.ImportBatchResult{BatchID: "batch-9"},
		}, nil)
		require.NoError(t, j.Record(context.Background(), entry))

		require.Len(t, db.calls, 1)
		args := db.calls[0].args
		require.Len(t, args, 9)

		id := args[0].(pgtype.UUID)
		require.True(t, id.Valid)
		require.NotEqual(t, uuid.Nil, uuid.UUID(id.Bytes))
		require.Equal(t, "products", args[1])
		require.Equal(t, pgtype.UUID{Bytes: correlation, Valid: true}, args[2])
		require.Equal(t, 3, args[3])
		require.Equal(t, pgtype.Int4{Int32: http.StatusAccepted, Valid: true}, args[4])
		require.Equal(t, pgtype.Text{String: "Accepted", Valid: true}, args[5])
		require.Equal(t, pgtype.Text{String: "batch-9", Valid: true}, args[6])
		require.Equal(t, pgtype.Text{}, args[7])
		require.Equal(t, now, args[8])
	})

	t.Run("failed import", func(t *testing.T) {
		db := &fakeExecer{}
		j := NewJournal(db, zaptest.NewLogger(t))

		entry := NewEntry("products", nil, 2, nil, &onboarding.AuthorizationError{StatusCode: http.StatusForbidden})
		entry.RecordedAt = now
		require.NoError(t, j.Record(context.Background(), entry))

		args := db.calls[0].args
		require.Equal(t, pgtype.UUID{}, args[2])
		require.Equal(t, pgtype.Int4{}, args[4])
		require.Equal(t, pgtype.Text{}, args[6])
		errText := args[7].(pgtype.Text)
		require.True(t, errText.Valid)
		require.Contains(t, errText.String, "403")
		require.Equal(t, now, args[8])
	})

	t.Run("duplicate id", func(t *testing.T) {
		db := &fakeExecer{err: &pgconn.PgError{Code: "23505", Message: "duplicate key value"}}
		j := NewJournal(db, zaptest.NewLogger(t))

		id := uuid.New()
		err := j.Record(context.Background(), Entry{ID: id, DataSource: "products"})
		require.ErrorIs(t, err, ErrDuplicateEntry)
		require.Contains(t, err.Error(), id.String())
		require.Equal(t, pgtype.UUID{Bytes: id, Valid: true}, db.calls[0].args[0])
	})

	t.Run("database error", func(t *testing.T) {
		db := &fakeExecer{err: errors.New("connection reset")}
		j := NewJournal(db, zaptest.NewLogger(t))

		err := j.Record(context.Background(), Entry{DataSource: "products"})
		require.ErrorContains(t, err, "failed to record import")
		require.ErrorContains(t, err, "connection reset")
	})
}

func TestNewConfig(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_NAME", "")

	cfg := NewConfig()
	require.Equal(t, "db.internal", cfg.Host)
	require.Equal(t, 6543, cfg.Port)
	require.Equal(t, "onboarding", cfg.Database)
	require.Equal(t, "disable", cfg.SSLMode)
	require.Contains(t, cfg.DSN(), "@db.internal:6543/onboarding")

	t.Setenv("DB_PORT", "not-a-port")
	require.Equal(t, 5432, NewConfig().Port)
}

func TestConfigDSNEscapesValues(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Host:     "db.internal",
		Port:     5432,
		User:     "jour nal",
		Password: `p@ss w'rd/"?#`,
		Database: "onboarding",
		SSLMode:  "require",
	}

	parsed, err := pgxpool.ParseConfig(cfg.DSN())
	require.NoError(t, err)
	require.Equal(t, "db.internal", parsed.ConnConfig.Host)
	require.Equal(t, uint16(5432), parsed.ConnConfig.Port)
	require.Equal(t, "jour nal", parsed.ConnConfig.User)
	require.Equal(t, `p@ss w'rd/"?#`, parsed.ConnConfig.Password)
	require.Equal(t, "onboarding", parsed.ConnConfig.Database)
}
