package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Table is the name of the audit table.
const Table = "crudkit_audit"

// timeLayout has a fixed width so stored times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Log with a SQLite backend.
type SQLiteStore struct {
	db     *sql.DB
	buffer chan Entry
	flush  chan chan error
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
	logger zerolog.Logger

	batchSize     int
	flushInterval time.Duration
}

// Config configures the SQLite store.
type Config struct {
	// BatchSize is the number of entries written per transaction.
	BatchSize int

	// FlushInterval is the maximum time an entry waits in memory.
	FlushInterval time.Duration

	// BufferSize bounds the in-memory queue. Entries beyond it are dropped.
	BufferSize int

	Logger zerolog.Logger
}

// DefaultConfig returns the store defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     100,
		FlushInterval: time.Second,
		BufferSize:    10000,
		Logger:        zerolog.Nop(),
	}
}

// NewSQLiteStore creates the audit table when needed and starts the
// background writer.
func NewSQLiteStore(db *sql.DB, cfg Config) (*SQLiteStore, error) {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}

	s := &SQLiteStore{
		db:            db,
		buffer:        make(chan Entry, cfg.BufferSize),
		flush:         make(chan chan error),
		done:          make(chan struct{}),
		logger:        cfg.Logger,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
	}

	if err := s.createTable(); err != nil {
		return nil, fmt.Errorf("create audit table: %w", err)
	}

	s.wg.Add(1)
	go s.writer()

	return s, nil
}

func (s *SQLiteStore) createTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS ` + Table + ` (
			id TEXT PRIMARY KEY,
			at TEXT NOT NULL,
			event TEXT NOT NULL,
			resource TEXT NOT NULL,
			operation TEXT NOT NULL,
			record_key TEXT,
			changed TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_` + Table + `_at ON ` + Table + `(at);
		CREATE INDEX IF NOT EXISTS idx_` + Table + `_resource ON ` + Table + `(resource, record_key);
	`)
	return err
}

// Record queues an entry without blocking. A full queue drops it.
func (s *SQLiteStore) Record(entry Entry) {
	select {
	case s.buffer <- entry:
	default:
		s.logger.Warn().
			Str("event", entry.Event).
			Msg("audit buffer full, entry dropped")
	}
}

// Flush writes every queued entry.
func (s *SQLiteStore) Flush(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case s.flush <- reply:
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteStore) drain(batch []Entry) []Entry {
	for {
		select {
		case e := <-s.buffer:
			batch = append(batch, e)
		default:
			return batch
		}
	}
}

// writer owns the pending batch.
func (s *SQLiteStore) writer() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	var batch []Entry
	write := func() error {
		err := s.Write(context.Background(), batch)
		if err != nil {
			s.logger.Error().Err(err).Int("entries", len(batch)).Msg("audit write failed")
		}
		batch = nil
		return err
	}

	for {
		select {
		case <-s.done:
			batch = s.drain(batch)
			write()
			return

		case reply := <-s.flush:
			batch = s.drain(batch)
			reply <- write()

		case e := <-s.buffer:
			batch = append(batch, e)
			if len(batch) >= s.batchSize {
				write()
			}

		case <-ticker.C:
			if len(batch) > 0 {
				write()
			}
		}
	}
}

// Write stores entries in one transaction.
func (s *SQLiteStore) Write(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO `+Table+` (id, at, event, resource, operation, record_key, changed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.At.IsZero() {
			e.At = time.Now()
		}

		_, err := stmt.ExecContext(ctx,
			e.ID, e.At.UTC().Format(timeLayout),
			e.Event, e.Resource, e.Operation,
			nullable(e.RecordKey), nullable(strings.Join(e.Changed, ",")),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Query returns matching entries, newest first, and the total number of
// matches.
func (s *SQLiteStore) Query(ctx context.Context, opts QueryOptions) ([]Entry, int64, error) {
	var conditions []string
	var args []any

	if !opts.Since.IsZero() {
		conditions = append(conditions, "at >= ?")
		args = append(args, opts.Since.UTC().Format(timeLayout))
	}
	if !opts.Until.IsZero() {
		conditions = append(conditions, "at <= ?")
		args = append(args, opts.Until.UTC().Format(timeLayout))
	}
	if opts.Resource != "" {
		conditions = append(conditions, "resource = ?")
		args = append(args, opts.Resource)
	}
	if opts.Operation != "" {
		conditions = append(conditions, "operation = ?")
		args = append(args, opts.Operation)
	}
	if opts.RecordKey != "" {
		conditions = append(conditions, "record_key = ?")
		args = append(args, opts.RecordKey)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+Table+" "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := 100
	if opts.Limit > 0 {
		limit = opts.Limit
	}

	query := fmt.Sprintf(`
		SELECT id, at, event, resource, operation, record_key, changed
		FROM %s %s
		ORDER BY at DESC, rowid DESC
		LIMIT ? OFFSET ?
	`, Table, where)
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var at string
		var key, changed sql.NullString
		if err := rows.Scan(&e.ID, &at, &e.Event, &e.Resource, &e.Operation, &key, &changed); err != nil {
			return nil, 0, err
		}
		e.At, _ = time.Parse(timeLayout, at)
		e.RecordKey = key.String
		if changed.String != "" {
			e.Changed = strings.Split(changed.String, ",")
		}
		entries = append(entries, e)
	}

	return entries, total, rows.Err()
}

// Counts groups entries since the given time by resource and operation.
func (s *SQLiteStore) Counts(ctx context.Context, since time.Time) ([]Count, error) {
	query := "SELECT resource, operation, COUNT(*) FROM " + Table
	var args []any
	if !since.IsZero() {
		query += " WHERE at >= ?"
		args = append(args, since.UTC().Format(timeLayout))
	}
	query += " GROUP BY resource, operation ORDER BY resource, operation"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []Count
	for rows.Next() {
		var c Count
		if err := rows.Scan(&c.Resource, &c.Operation, &c.Total); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// Delete removes entries older than before.
func (s *SQLiteStore) Delete(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM "+Table+" WHERE at < ?",
		before.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Close writes the queued entries and stops the writer. It does not close
// the database.
func (s *SQLiteStore) Close() error {
	s.once.Do(func() { close(s.done) })
	s.wg.Wait()
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
