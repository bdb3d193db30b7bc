package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/artpar/crudkit/core/convention"
	"github.com/artpar/crudkit/core/query"
	"github.com/artpar/crudkit/core/record"
	"github.com/artpar/crudkit/core/schema"
	"github.com/artpar/crudkit/core/validation"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// queryer is satisfied by *sql.DB and *sql.Tx. Every statement issued
// while a transaction is open must go through the transaction.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// txn is a transaction with callbacks run after commit or rollback.
type txn struct {
	*sql.Tx
	after []func()
	undo  []func()
}

func (w *txn) onCommit(fn func())   { w.after = append(w.after, fn) }
func (w *txn) onRollback(fn func()) { w.undo = append(w.undo, fn) }

func (w *txn) rollback() {
	_ = w.Tx.Rollback()
	for i := len(w.undo) - 1; i >= 0; i-- {
		w.undo[i]()
	}
}

func (w *txn) commit() error {
	if err := w.Tx.Commit(); err != nil {
		w.rollback()
		return fmt.Errorf("commit: %w", err)
	}
	for _, fn := range w.after {
		fn()
	}
	return nil
}

// SQLiteStore implements Engine with SQLite.
type SQLiteStore struct {
	db         *sql.DB
	catalog    Catalog
	logger     zerolog.Logger
	bcryptCost int
	now        func() time.Time
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithLogger sets the logger used for statement tracing.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *SQLiteStore) { s.logger = logger }
}

// WithBcryptCost sets the cost used to hash secret fields.
func WithBcryptCost(cost int) Option {
	return func(s *SQLiteStore) { s.bcryptCost = cost }
}

// WithClock sets the time source for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) { s.now = now }
}

// NewSQLiteStore opens a SQLite database at path.
func NewSQLiteStore(path string, catalog Catalog, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// An in-memory database exists per connection.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	return NewSQLiteStoreFromDB(db, catalog, opts...), nil
}

// NewSQLiteStoreFromDB creates a store over an existing connection.
func NewSQLiteStoreFromDB(db *sql.DB, catalog Catalog, opts ...Option) *SQLiteStore {
	s := &SQLiteStore{
		db:         db,
		catalog:    catalog,
		logger:     zerolog.Nop(),
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateTable creates the table and indexes for a resource.
func (s *SQLiteStore) CreateTable(ctx context.Context, mod convention.Derived) error {
	createSQL := BuildCreateTableSQL(mod, s.tableOf)
	if _, err := s.db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("create table %s: %w", mod.Table, err)
	}

	for _, indexSQL := range BuildIndexSQL(mod) {
		if _, err := s.db.ExecContext(ctx, indexSQL); err != nil {
			return fmt.Errorf("create index on %s: %w", mod.Table, err)
		}
	}

	s.logger.Debug().Str("resource", mod.Name).Str("table", mod.Table).Msg("table ready")
	return nil
}

// Migrate creates tables for every resource.
func (s *SQLiteStore) Migrate(ctx context.Context, resources []convention.Derived) error {
	for _, mod := range resources {
		if err := s.CreateTable(ctx, mod); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// CheckSecret reports whether plain matches the hashed secret field of r.
func (s *SQLiteStore) CheckSecret(r *record.Record, field, plain string) bool {
	hash, ok := r.Get(field).([]byte)
	if !ok || len(hash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(plain)) == nil
}

func (s *SQLiteStore) tableOf(name string) string {
	if mod, ok := s.catalog.Get(name); ok {
		return mod.Table
	}
	return convention.Pluralize(name)
}

func (s *SQLiteStore) resource(name string) (convention.Derived, error) {
	mod, ok := s.catalog.Get(name)
	if !ok {
		return mod, fmt.Errorf("resource %q not registered", name)
	}
	return mod, nil
}

// Query returns an unrestricted query over a resource.
func (s *SQLiteStore) Query(resource string) *query.Query {
	return query.New(resource)
}

// All executes q.
func (s *SQLiteStore) All(ctx context.Context, q *query.Query) ([]*record.Record, error) {
	return s.all(ctx, s.db, q)
}

func (s *SQLiteStore) all(ctx context.Context, ex queryer, q *query.Query) ([]*record.Record, error) {
	mod, err := s.resource(q.Resource())
	if err != nil {
		return nil, err
	}

	b := sqlBuilder{catalog: s.catalog, mod: mod}
	stmt, args, fields, err := b.selectSQL(q)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Str("sql", stmt).Msg("query")

	rows, err := ex.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", mod.Name, err)
	}

	var records []*record.Record
	for rows.Next() {
		values := make([]any, len(fields))
		dest := make([]any, len(fields))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan %s: %w", mod.Name, err)
		}

		attrs := make(map[string]any, len(fields))
		for i, f := range fields {
			attrs[f.Name] = convertFromDB(values[i], f)
		}
		records = append(records, record.Load(mod.Name, attrs))
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", mod.Name, err)
	}

	if err := s.preload(ctx, ex, mod, records, q.Preloads()); err != nil {
		return nil, err
	}
	return records, nil
}

// Count returns the number of rows q matches.
func (s *SQLiteStore) Count(ctx context.Context, q *query.Query) (int64, error) {
	return s.count(ctx, s.db, q)
}

func (s *SQLiteStore) count(ctx context.Context, ex queryer, q *query.Query) (int64, error) {
	mod, err := s.resource(q.Resource())
	if err != nil {
		return 0, err
	}
	stmt, args, err := sqlBuilder{catalog: s.catalog, mod: mod}.countSQL(q)
	if err != nil {
		return 0, err
	}

	var n int64
	if err := ex.QueryRowContext(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", mod.Name, err)
	}
	return n, nil
}

// Find returns the record within q whose id, or failing that one of its
// lookup fields, equals key.
func (s *SQLiteStore) Find(ctx context.Context, q *query.Query, key any) (*record.Record, error) {
	return s.find(ctx, s.db, q, key)
}

func (s *SQLiteStore) find(ctx context.Context, ex queryer, q *query.Query, key any) (*record.Record, error) {
	mod, err := s.resource(q.Resource())
	if err != nil {
		return nil, err
	}
	if key == nil || key == "" {
		return nil, &record.NotFoundError{Resource: mod.Name, Key: key}
	}

	base := q.Unbounded()
	for _, lookup := range mod.Lookups {
		found, err := s.all(ctx, ex, base.WhereEq(lookup, key).Limit(1))
		if err != nil {
			return nil, err
		}
		if len(found) > 0 {
			return found[0], nil
		}
	}
	return nil, &record.NotFoundError{Resource: mod.Name, Key: key}
}

// Build returns an unsaved record with field defaults applied.
func (s *SQLiteStore) Build(resource string, attrs map[string]any) (*record.Record, error) {
	mod, err := s.resource(resource)
	if err != nil {
		return nil, err
	}
	return build(mod, attrs), nil
}

func build(mod convention.Derived, attrs map[string]any) *record.Record {
	r := record.New(mod.Name, nil)
	for _, f := range mod.Fields {
		if f.Implicit || f.Default == nil {
			continue
		}
		if _, ok := attrs[f.Name]; !ok {
			r.Set(f.Name, f.Default)
		}
	}
	r.Assign(attrs)
	return r
}

// Save validates and writes r with its nested attributes in one
// transaction. The record is only marked persisted once the transaction
// commits.
func (s *SQLiteStore) Save(ctx context.Context, r *record.Record) (bool, error) {
	mod, err := s.resource(r.Resource())
	if err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	w := &txn{Tx: tx}

	ok, err := s.save(ctx, w, mod, r)
	if err != nil || !ok {
		w.rollback()
		return false, err
	}
	if err := w.commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) save(ctx context.Context, w *txn, mod convention.Derived, r *record.Record) (bool, error) {
	r.Errors().Clear()
	payloads := takeNested(mod, r, w)

	// Owners a record belongs to are written first so their keys exist.
	for _, p := range payloads {
		if !p.assoc.OwnsKey() {
			continue
		}
		if ok, err := s.writeNested(ctx, w, mod, r, p); err != nil || !ok {
			return false, err
		}
	}

	if !validation.Validate(mod, r) {
		return false, nil
	}
	if err := s.checkReferences(ctx, w, mod, r); err != nil {
		return false, err
	}
	if err := s.checkUnique(ctx, w, mod, r); err != nil {
		return false, err
	}
	if !r.Valid() {
		return false, nil
	}

	var ok bool
	var err error
	if r.Persisted() {
		ok, err = s.update(ctx, w, mod, r)
	} else {
		ok, err = s.insert(ctx, w, mod, r)
	}
	if err != nil || !ok {
		return false, err
	}

	for _, p := range payloads {
		if p.assoc.OwnsKey() {
			continue
		}
		if ok, err := s.writeNested(ctx, w, mod, r, p); err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// columnValue converts an attribute for writing. Secrets are hashed.
func (s *SQLiteStore) columnValue(f convention.DerivedField, v any) (any, error) {
	if f.Type != schema.FieldTypeSecret || v == nil {
		return convertValue(v, f), nil
	}
	var plain []byte
	switch p := v.(type) {
	case string:
		plain = []byte(p)
	case []byte:
		plain = p
	default:
		return nil, fmt.Errorf("field %s: secret must be a string", f.Name)
	}
	if _, err := bcrypt.Cost(plain); err == nil {
		return plain, nil
	}
	hash, err := bcrypt.GenerateFromPassword(plain, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash %s: %w", f.Name, err)
	}
	return hash, nil
}

func (s *SQLiteStore) insert(ctx context.Context, w *txn, mod convention.Derived, r *record.Record) (bool, error) {
	id, _ := r.ID().(string)
	if id == "" {
		id = uuid.NewString()
		prev, had := r.ID(), r.Has(record.IDField)
		r.Set(record.IDField, id)
		w.onRollback(func() { restore(r, record.IDField, prev, had) })
	}
	now := s.now().UTC()

	var columns []string
	var values []any
	stored := map[string]any{}
	for _, f := range mod.Fields {
		var v any
		switch {
		case f.Name == record.IDField:
			v = id
		case f.Name == "created_at" || f.Name == "updated_at":
			stored[f.Name] = now
			v = convertValue(now, f)
		case r.Has(f.Name):
			cv, err := s.columnValue(f, r.Get(f.Name))
			if err != nil {
				return false, err
			}
			if f.Type == schema.FieldTypeSecret {
				stored[f.Name] = cv
			}
			v = cv
		default:
			continue
		}
		columns = append(columns, f.Name)
		values = append(values, v)
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		mod.Table, strings.Join(columns, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", "))
	s.logger.Debug().Str("sql", stmt).Msg("exec")

	if _, err := w.ExecContext(ctx, stmt, values...); err != nil {
		if constraintFailed(err, mod, r) {
			return false, nil
		}
		return false, fmt.Errorf("insert %s: %w", mod.Name, err)
	}

	w.onCommit(func() {
		r.Assign(stored)
		r.MarkPersisted()
	})
	return true, nil
}

func (s *SQLiteStore) update(ctx context.Context, w *txn, mod convention.Derived, r *record.Record) (bool, error) {
	var sets []string
	var values []any
	stored := map[string]any{}
	for _, name := range r.Changed() {
		f, ok := mod.Field(name)
		if !ok || f.Implicit {
			continue
		}
		cv, err := s.columnValue(f, r.Get(name))
		if err != nil {
			return false, err
		}
		if f.Type == schema.FieldTypeSecret {
			stored[name] = cv
		}
		sets = append(sets, name+" = ?")
		values = append(values, cv)
	}
	if len(sets) == 0 {
		w.onCommit(r.MarkPersisted)
		return true, nil
	}

	now := s.now().UTC()
	updatedAt, _ := mod.Field("updated_at")
	stored["updated_at"] = now
	sets = append(sets, "updated_at = ?")
	values = append(values, convertValue(now, updatedAt), r.ID())

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", mod.Table, strings.Join(sets, ", "))
	s.logger.Debug().Str("sql", stmt).Msg("exec")

	res, err := w.ExecContext(ctx, stmt, values...)
	if err != nil {
		if constraintFailed(err, mod, r) {
			return false, nil
		}
		return false, fmt.Errorf("update %s: %w", mod.Name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, &record.NotFoundError{Resource: mod.Name, Key: r.ID()}
	}

	w.onCommit(func() {
		r.Assign(stored)
		r.MarkPersisted()
	})
	return true, nil
}

// checkReferences attaches an error for every changed reference whose
// target row does not exist.
func (s *SQLiteStore) checkReferences(ctx context.Context, ex queryer, mod convention.Derived, r *record.Record) error {
	refs := map[string]string{}
	for _, f := range mod.Fields {
		if f.Ref != "" {
			refs[f.Name] = f.Ref
		}
	}
	for _, a := range mod.Associations {
		if a.OwnsKey() {
			refs[a.ForeignKey] = a.Target
		}
	}

	for _, name := range r.Changed() {
		target, ok := refs[name]
		if !ok {
			continue
		}
		v := r.Get(name)
		if v == nil || v == "" {
			continue
		}
		refMod, err := s.resource(target)
		if err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}

		var n int
		stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE id = ?", refMod.Table)
		if err := ex.QueryRowContext(ctx, stmt, fmt.Sprint(v)).Scan(&n); err != nil {
			return fmt.Errorf("check reference %s: %w", name, err)
		}
		if n == 0 {
			r.Errors().Add(name, validation.CodeInvalid, "must exist")
		}
	}
	return nil
}

// checkUnique attaches an error for every changed unique field whose value
// another row already holds.
func (s *SQLiteStore) checkUnique(ctx context.Context, ex queryer, mod convention.Derived, r *record.Record) error {
	for _, name := range r.Changed() {
		f, ok := mod.Field(name)
		if !ok || !f.Unique || f.Implicit || r.Get(name) == nil || len(r.Errors().On(name)) > 0 {
			continue
		}

		stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ? AND id IS NOT ?", mod.Table, name)
		var n int
		if err := ex.QueryRowContext(ctx, stmt, convertValue(r.Get(name), f), r.ID()).Scan(&n); err != nil {
			return fmt.Errorf("check unique %s: %w", name, err)
		}
		if n > 0 {
			r.Errors().Add(name, validation.CodeTaken, "has already been taken")
		}
	}
	return nil
}

// Destroy deletes r and its dependents in one transaction.
func (s *SQLiteStore) Destroy(ctx context.Context, r *record.Record) (bool, error) {
	mod, err := s.resource(r.Resource())
	if err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	w := &txn{Tx: tx}

	ok, err := s.destroy(ctx, w, mod, r)
	if err != nil || !ok {
		w.rollback()
		return false, err
	}
	if err := w.commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) destroy(ctx context.Context, w *txn, mod convention.Derived, r *record.Record) (bool, error) {
	r.Errors().Clear()
	if r.NewRecord() {
		return false, &record.NotFoundError{Resource: mod.Name, Key: r.ID()}
	}

	dependents := func(a convention.DerivedAssociation) (*query.Query, error) {
		if _, err := s.resource(a.Target); err != nil {
			return nil, err
		}
		return query.New(a.Target).WhereEq(a.ForeignKey, r.ID()), nil
	}

	for _, a := range mod.Associations {
		if a.OwnsKey() || a.Dependent != schema.DependentRestrict {
			continue
		}
		q, err := dependents(a)
		if err != nil {
			return false, err
		}
		n, err := s.count(ctx, w, q)
		if err != nil {
			return false, err
		}
		if n > 0 {
			r.Errors().Add(record.Base, "restrict_dependent_destroy",
				fmt.Sprintf("cannot delete record because dependent %s exist", convention.Humanize(a.Name)))
			return false, nil
		}
	}

	for _, a := range mod.Associations {
		if a.OwnsKey() || a.Dependent != schema.DependentDestroy {
			continue
		}
		q, err := dependents(a)
		if err != nil {
			return false, err
		}
		children, err := s.all(ctx, w, q)
		if err != nil {
			return false, err
		}
		target, _ := s.resource(a.Target)
		for _, child := range children {
			ok, err := s.destroy(ctx, w, target, child)
			if err != nil {
				return false, err
			}
			if !ok {
				propagate(r, a.Name, child)
				return false, nil
			}
		}
	}

	stmt := fmt.Sprintf("DELETE FROM %s WHERE id = ?", mod.Table)
	s.logger.Debug().Str("sql", stmt).Msg("exec")
	res, err := w.ExecContext(ctx, stmt, r.ID())
	if err != nil {
		if constraintFailed(err, mod, r) {
			return false, nil
		}
		return false, fmt.Errorf("delete %s: %w", mod.Name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, &record.NotFoundError{Resource: mod.Name, Key: r.ID()}
	}

	w.onCommit(r.MarkDestroyed)
	return true, nil
}

// constraintFailed attaches an error to r for a SQLite constraint
// violation and reports whether err was one.
func constraintFailed(err error, mod convention.Derived, r *record.Record) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		field := record.Base
		if _, cols, ok := strings.Cut(se.Error(), "failed: "); ok {
			first, _, _ := strings.Cut(cols, ",")
			if _, col, ok := strings.Cut(first, mod.Table+"."); ok {
				field = strings.TrimSpace(col)
			}
		}
		r.Errors().Add(field, validation.CodeTaken, "has already been taken")
	case sqlite3.ErrConstraintForeignKey:
		r.Errors().Add(record.Base, validation.CodeInvalid, "violates a reference to or from another record")
	case sqlite3.ErrConstraintCheck:
		r.Errors().Add(record.Base, validation.CodeInvalid, "violates a check constraint")
	default:
		return false
	}
	return true
}

// restore sets an attribute back to a previous value.
func restore(r *record.Record, name string, prev any, had bool) {
	if had {
		r.Set(name, prev)
	} else {
		r.Take(name)
	}
}
