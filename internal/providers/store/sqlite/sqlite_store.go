package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/crmarques/remotable/debugctx"
	"github.com/crmarques/remotable/faults"
	"github.com/crmarques/remotable/record"
	"github.com/crmarques/remotable/store"
	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var _ store.Store = (*Store)(nil)

const driverName = "sqlite"

// Store keeps local records in SQLite tables, one per record type. Attribute
// values are stored as JSON text so that every normalized value round-trips
// and equality lookups compare encoded forms.
type Store struct {
	db *sql.DB

	mu     sync.RWMutex
	tables map[string]store.TableSpec
}

type txKey struct{}

type txState struct {
	owner *Store
	tx    *sql.Tx
}

type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Open opens dsn with the pure-Go SQLite driver. ":memory:" gives a private
// in-memory database. The pool is limited to a single connection, which keeps
// in-memory databases shared and serializes writers.
func Open(ctx context.Context, dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, faults.NewTypedError(faults.ConfigurationError, "sqlite dsn is required", nil)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, faults.NewTypedError(faults.ConfigurationError, "failed to open sqlite database", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, faults.NewTypedError(faults.UnavailableError, "failed to connect to sqlite database", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, faults.NewTypedError(faults.InternalError, "failed to configure sqlite database", err)
	}

	return &Store{db: db, tables: map[string]store.TableSpec{}}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) EnsureTable(ctx context.Context, spec store.TableSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}

	definitions := []string{quote(store.ColumnID) + " INTEGER PRIMARY KEY AUTOINCREMENT"}
	for _, column := range spec.Columns {
		definitions = append(definitions, quote(column)+" TEXT")
	}
	for _, column := range metadataColumns() {
		definitions = append(definitions, quote(column)+" TEXT")
	}

	exec := s.executor(ctx)
	createTable := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quote(spec.Name), strings.Join(definitions, ", "))
	if _, err := exec.ExecContext(ctx, createTable); err != nil {
		return internalError(fmt.Sprintf("failed to create table %q", spec.Name), err)
	}

	existing, err := s.tableColumns(ctx, exec, spec.Name)
	if err != nil {
		return err
	}
	for _, column := range append(append([]string(nil), spec.Columns...), metadataColumns()...) {
		if _, found := existing[column]; found {
			continue
		}
		alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT", quote(spec.Name), quote(column))
		if _, err := exec.ExecContext(ctx, alter); err != nil {
			return internalError(fmt.Sprintf("failed to add column %q to table %q", column, spec.Name), err)
		}
		debugctx.Printf(ctx, "sqlite added column table=%q column=%q", spec.Name, column)
	}

	for _, key := range spec.UniqueKeys {
		quoted := make([]string, len(key))
		for idx, column := range key {
			quoted[idx] = quote(column)
		}
		index := fmt.Sprintf(
			"CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s)",
			quote("ux_"+spec.Name+"_"+strings.Join(key, "_")),
			quote(spec.Name),
			strings.Join(quoted, ", "),
		)
		if _, err := exec.ExecContext(ctx, index); err != nil {
			return internalError(fmt.Sprintf("failed to create unique index on table %q", spec.Name), err)
		}
	}

	s.mu.Lock()
	s.tables[spec.Name] = cloneSpec(spec)
	s.mu.Unlock()
	return nil
}

func (s *Store) FindBy(ctx context.Context, table string, where map[string]any) (*record.Record, error) {
	spec, err := s.spec(table)
	if err != nil {
		return nil, err
	}
	if len(where) == 0 {
		return nil, validationError("find requires at least one condition")
	}

	names := make([]string, 0, len(where))
	for name := range where {
		names = append(names, name)
	}
	sort.Strings(names)

	conditions := make([]string, 0, len(names))
	args := make([]any, 0, len(names))
	for _, name := range names {
		value := where[name]
		if name == store.ColumnID {
			conditions = append(conditions, quote(store.ColumnID)+" = ?")
			args = append(args, value)
			continue
		}
		if !hasColumn(spec, name) {
			return nil, validationError(fmt.Sprintf("table %q has no column %q", table, name))
		}
		if value == nil {
			conditions = append(conditions, quote(name)+" IS NULL")
			continue
		}
		encoded, err := encodeValue(value)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, quote(name)+" = ?")
		args = append(args, encoded)
	}

	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s ORDER BY %s LIMIT 1",
		selectList(spec), quote(table), strings.Join(conditions, " AND "), quote(store.ColumnID),
	)
	records, err := s.query(ctx, spec, query, args...)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

func (s *Store) All(ctx context.Context, table string) ([]*record.Record, error) {
	spec, err := s.spec(table)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", selectList(spec), quote(table), quote(store.ColumnID))
	return s.query(ctx, spec, query)
}

func (s *Store) Create(ctx context.Context, table string, rec *record.Record) (store.CreateOutcome, error) {
	if rec == nil {
		return store.Created, validationError("record must not be nil")
	}
	spec, err := s.spec(table)
	if err != nil {
		return store.Created, err
	}

	columns, values, err := rowValues(spec, rec)
	if err != nil {
		return store.Created, err
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	quoted := make([]string, len(columns))
	for idx, column := range columns {
		quoted[idx] = quote(column)
	}

	statement := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quote(table), strings.Join(quoted, ", "), placeholders)
	result, err := s.executor(ctx).ExecContext(ctx, statement, values...)
	if err != nil {
		if isUniqueViolation(err) {
			debugctx.Printf(ctx, "sqlite create table=%q outcome=%s", table, store.AlreadyExists)
			return store.AlreadyExists, nil
		}
		return store.Created, internalError(fmt.Sprintf("failed to insert into %q", table), err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return store.Created, internalError(fmt.Sprintf("failed to read id inserted into %q", table), err)
	}
	rec.MarkPersisted(id)
	debugctx.Printf(ctx, "sqlite create table=%q id=%d outcome=%s", table, id, store.Created)
	return store.Created, nil
}

func (s *Store) Update(ctx context.Context, table string, rec *record.Record) error {
	if rec == nil || rec.ID == 0 {
		return validationError("update requires a persisted record")
	}
	spec, err := s.spec(table)
	if err != nil {
		return err
	}

	columns, values, err := rowValues(spec, rec)
	if err != nil {
		return err
	}
	assignments := make([]string, len(columns))
	for idx, column := range columns {
		assignments[idx] = quote(column) + " = ?"
	}

	statement := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", quote(table), strings.Join(assignments, ", "), quote(store.ColumnID))
	result, err := s.executor(ctx).ExecContext(ctx, statement, append(values, rec.ID)...)
	if err != nil {
		if isUniqueViolation(err) {
			return faults.NewTypedError(faults.ConflictError, fmt.Sprintf("update of %q id %d violates a unique key", table, rec.ID), err)
		}
		return internalError(fmt.Sprintf("failed to update %q", table), err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return faults.NewTypedError(faults.NotFoundError, fmt.Sprintf("%s id %d not found", table, rec.ID), nil)
	}

	rec.MarkPersisted(0)
	debugctx.Printf(ctx, "sqlite update table=%q id=%d", table, rec.ID)
	return nil
}

func (s *Store) Destroy(ctx context.Context, table string, rec *record.Record) error {
	if rec == nil {
		return validationError("record must not be nil")
	}
	if _, err := s.spec(table); err != nil {
		return err
	}
	if rec.ID != 0 {
		statement := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quote(table), quote(store.ColumnID))
		if _, err := s.executor(ctx).ExecContext(ctx, statement, rec.ID); err != nil {
			return internalError(fmt.Sprintf("failed to delete from %q", table), err)
		}
		debugctx.Printf(ctx, "sqlite destroy table=%q id=%d", table, rec.ID)
	}
	rec.MarkDestroyed()
	return nil
}

func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if fn == nil {
		return nil
	}
	if state, ok := ctx.Value(txKey{}).(*txState); ok && state.owner == s {
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return internalError("failed to begin transaction", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			debugctx.Printf(ctx, "sqlite rollback failed: %v", rollbackErr)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, &txState{owner: s, tx: tx})); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return internalError("failed to commit transaction", err)
	}
	committed = true
	return nil
}

func (s *Store) executor(ctx context.Context) executor {
	if ctx != nil {
		if state, ok := ctx.Value(txKey{}).(*txState); ok && state.owner == s {
			return state.tx
		}
	}
	return s.db
}

func (s *Store) spec(table string) (store.TableSpec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	spec, found := s.tables[table]
	if !found {
		return store.TableSpec{}, faults.NewTypedError(faults.ConfigurationError, fmt.Sprintf("table %q is not registered", table), nil)
	}
	return spec, nil
}

func (s *Store) tableColumns(ctx context.Context, exec executor, table string) (map[string]struct{}, error) {
	rows, err := exec.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quote(table)))
	if err != nil {
		return nil, internalError(fmt.Sprintf("failed to inspect table %q", table), err)
	}
	defer rows.Close()

	columns := map[string]struct{}{}
	for rows.Next() {
		var (
			cid          int
			name         string
			columnType   string
			notNull      int
			defaultValue sql.NullString
			primaryKey   int
		)
		if err := rows.Scan(&cid, &name, &columnType, &notNull, &defaultValue, &primaryKey); err != nil {
			return nil, internalError(fmt.Sprintf("failed to inspect table %q", table), err)
		}
		columns[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, internalError(fmt.Sprintf("failed to inspect table %q", table), err)
	}
	return columns, nil
}

func (s *Store) query(ctx context.Context, spec store.TableSpec, query string, args ...any) ([]*record.Record, error) {
	rows, err := s.executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, internalError(fmt.Sprintf("failed to query %q", spec.Name), err)
	}
	defer rows.Close()

	var records []*record.Record
	for rows.Next() {
		rec, err := scanRecord(spec, rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, internalError(fmt.Sprintf("failed to query %q", spec.Name), err)
	}
	return records, nil
}

func scanRecord(spec store.TableSpec, rows *sql.Rows) (*record.Record, error) {
	var (
		id              int64
		expiresAt       sql.NullString
		remoteUpdatedAt sql.NullString
		remoteETag      sql.NullString
	)
	attributes := make([]sql.NullString, len(spec.Columns))
	targets := []any{&id, &expiresAt, &remoteUpdatedAt, &remoteETag}
	for idx := range attributes {
		targets = append(targets, &attributes[idx])
	}
	if err := rows.Scan(targets...); err != nil {
		return nil, internalError(fmt.Sprintf("failed to read row of %q", spec.Name), err)
	}

	values := make(map[string]any, len(spec.Columns))
	for idx, column := range spec.Columns {
		if !attributes[idx].Valid {
			values[column] = nil
			continue
		}
		decoded, err := decodeValue(attributes[idx].String)
		if err != nil {
			return nil, internalError(fmt.Sprintf("failed to decode %s.%s", spec.Name, column), err)
		}
		values[column] = decoded
	}

	rec := record.Load(spec.RecordType, id, values)
	var err error
	if rec.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, internalError(fmt.Sprintf("failed to decode %s.%s", spec.Name, store.ColumnExpiresAt), err)
	}
	if rec.RemoteUpdatedAt, err = parseTime(remoteUpdatedAt); err != nil {
		return nil, internalError(fmt.Sprintf("failed to decode %s.%s", spec.Name, store.ColumnRemoteUpdatedAt), err)
	}
	rec.RemoteETag = remoteETag.String
	return rec, nil
}

func rowValues(spec store.TableSpec, rec *record.Record) ([]string, []any, error) {
	for _, name := range rec.AttributeNames() {
		if !hasColumn(spec, name) {
			return nil, nil, validationError(fmt.Sprintf("table %q has no column %q", spec.Name, name))
		}
	}

	columns := make([]string, 0, len(spec.Columns)+3)
	values := make([]any, 0, len(spec.Columns)+3)
	for _, column := range spec.Columns {
		encoded, err := encodeValue(rec.Get(column))
		if err != nil {
			return nil, nil, err
		}
		columns = append(columns, column)
		values = append(values, encoded)
	}
	columns = append(columns, metadataColumns()...)
	values = append(values, formatTime(rec.ExpiresAt), formatTime(rec.RemoteUpdatedAt), nullableString(rec.RemoteETag))
	return columns, values, nil
}

func selectList(spec store.TableSpec) string {
	columns := []string{quote(store.ColumnID)}
	for _, column := range metadataColumns() {
		columns = append(columns, quote(column))
	}
	for _, column := range spec.Columns {
		columns = append(columns, quote(column))
	}
	return strings.Join(columns, ", ")
}

func metadataColumns() []string {
	return []string{store.ColumnExpiresAt, store.ColumnRemoteUpdatedAt, store.ColumnRemoteETag}
}

func hasColumn(spec store.TableSpec, name string) bool {
	for _, column := range spec.Columns {
		if column == name {
			return true
		}
	}
	return false
}

func cloneSpec(spec store.TableSpec) store.TableSpec {
	cloned := spec
	cloned.Columns = append([]string(nil), spec.Columns...)
	cloned.UniqueKeys = make([][]string, len(spec.UniqueKeys))
	for idx, key := range spec.UniqueKeys {
		cloned.UniqueKeys[idx] = append([]string(nil), key...)
	}
	return cloned
}

func quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

func formatTime(value *time.Time) any {
	if value == nil || value.IsZero() {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTime(value sql.NullString) (*time.Time, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, value.String)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func isUniqueViolation(err error) bool {
	var sqliteErr *moderncsqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	default:
		return false
	}
}

func validationError(message string) error {
	return faults.NewTypedError(faults.ValidationError, message, nil)
}

func internalError(message string, cause error) error {
	return faults.NewTypedError(faults.InternalError, message, cause)
}
