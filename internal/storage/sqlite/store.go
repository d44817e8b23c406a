// Package sqlite provides the SQLite-backed conference store. Each
// conference is one row: indexed columns for lookups plus the full aggregate
// as a deterministic CBOR record.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dkeye/Meet/internal/codec"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists conferences in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ core.Store = (*Store)(nil)

func toMillis(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().UnixMilli()
}

// Open opens a SQLite store at path and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer connection; sqlite serializes writes anyway.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Save upserts the whole aggregate in one statement.
func (s *Store) Save(ctx context.Context, conf *domain.Conference) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if conf == nil || conf.ID == "" {
		return fmt.Errorf("conference id is required")
	}
	record, err := codec.Marshal(conf)
	if err != nil {
		return fmt.Errorf("encode conference %s: %w", conf.ID, err)
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO conferences (
		   id, join_code, host_user_id, status, seq, created_at, updated_at, ended_at, record
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   join_code = excluded.join_code,
		   host_user_id = excluded.host_user_id,
		   status = excluded.status,
		   seq = excluded.seq,
		   updated_at = excluded.updated_at,
		   ended_at = excluded.ended_at,
		   record = excluded.record`,
		string(conf.ID),
		conf.JoinCode,
		string(conf.HostUserID),
		string(conf.Status),
		int64(conf.Seq),
		toMillis(conf.CreatedAt),
		toMillis(conf.UpdatedAt),
		toMillis(conf.EndedAt),
		record,
	)
	if err != nil {
		return fmt.Errorf("save conference %s: %w", conf.ID, err)
	}
	return nil
}

// Load returns one conference or core.ErrRecordNotFound.
func (s *Store) Load(ctx context.Context, id domain.ConferenceID) (*domain.Conference, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var record []byte
	err := s.sqlDB.QueryRowContext(ctx, `SELECT record FROM conferences WHERE id = ?`, string(id)).Scan(&record)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrRecordNotFound
		}
		return nil, fmt.Errorf("load conference %s: %w", id, err)
	}
	return decode(record)
}

// LoadActive returns every Scheduled, Started or Locked conference, oldest first.
func (s *Store) LoadActive(ctx context.Context) ([]*domain.Conference, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT record FROM conferences WHERE status IN (?, ?, ?) ORDER BY created_at, id`,
		string(domain.StatusScheduled), string(domain.StatusStarted), string(domain.StatusLocked),
	)
	if err != nil {
		return nil, fmt.Errorf("list active conferences: %w", err)
	}
	defer rows.Close()

	var out []*domain.Conference
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("scan conference: %w", err)
		}
		conf, err := decode(record)
		if err != nil {
			return nil, err
		}
		out = append(out, conf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conferences: %w", err)
	}
	return out, nil
}

// Delete removes one conference.
func (s *Store) Delete(ctx context.Context, id domain.ConferenceID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM conferences WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("delete conference %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrRecordNotFound
	}
	return nil
}

func decode(record []byte) (*domain.Conference, error) {
	var conf domain.Conference
	if err := codec.Unmarshal(record, &conf); err != nil {
		return nil, fmt.Errorf("decode conference: %w", err)
	}
	if conf.Participants == nil {
		conf.Participants = make(map[domain.ParticipantID]*domain.Participant)
	}
	if conf.Rooms == nil {
		conf.Rooms = make(map[domain.RoomID]*domain.BreakoutRoom)
	}
	return &conf, nil
}
