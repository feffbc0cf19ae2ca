// Package postgres is migrex's reference MetadataStore + ScriptExecutor
// backend: a create-or-upgrade metadata table, advisory-lock based
// locking keyed by the configured metadata table name so two engines
// against different tables in the same database never contend on one
// lock, and script execution wrapped in its own transaction.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/cromanozero/migrex/pkg/migrex"
)

// Backend implements migrex.MetadataStore and migrex.ScriptExecutor
// over a single *sql.DB connection.
type Backend struct {
	db    *sql.DB
	table string
	owned bool
}

// Open открывает новое подключение к Postgres.
// Вход: dsn подключения, имя таблицы метаданных.
// Выход: *Backend или error.
// Назначение: создать Backend, владеющий своим подключением.
// Open opens a new Postgres connection for dsn and wraps it in a
// Backend that owns (and will Close) that connection.
// Input: connection dsn, metadata table name.
// Output: *Backend or error.
// Purpose: construct a Backend that owns its own connection.
func Open(dsn, table string) (*Backend, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Backend{db: db, table: table, owned: true}, nil
}

// New wraps an existing, caller-owned *sql.DB. Close is a no-op for a
// Backend built this way; the caller retains ownership.
func New(db *sql.DB, table string) *Backend {
	return &Backend{db: db, table: table}
}

// Close closes the underlying connection if this Backend opened it.
func (b *Backend) Close() error {
	if !b.owned {
		return nil
	}
	return b.db.Close()
}

func (b *Backend) Exists(ctx context.Context) (bool, error) {
	var exists bool
	err := b.db.QueryRowContext(ctx, `SELECT EXISTS (
		SELECT 1 FROM information_schema.tables WHERE table_name = $1
	)`, b.table).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (b *Backend) CreateIfAbsent(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	installed_rank  BIGSERIAL PRIMARY KEY,
	version         TEXT,
	description     TEXT NOT NULL,
	type            TEXT NOT NULL,
	script          TEXT NOT NULL,
	checksum        INTEGER,
	installed_by    TEXT NOT NULL,
	installed_on    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	execution_time  INTEGER NOT NULL DEFAULT 0,
	success         BOOLEAN NOT NULL
);`, quoteIdent(b.table))
	if _, err := b.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create metadata table: %w", err)
	}
	indexQuery := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s ON %s (installed_rank)`,
		quoteIdent(b.table+"_rank_idx"), quoteIdent(b.table))
	if _, err := b.db.ExecContext(ctx, indexQuery); err != nil {
		return fmt.Errorf("create metadata index: %w", err)
	}
	return nil
}

// UpgradeIfNecessary runs a conservative ADD COLUMN IF NOT EXISTS per
// column a legacy table layout is missing, reporting whether any
// column had to be added.
func (b *Backend) UpgradeIfNecessary(ctx context.Context) (bool, error) {
	columns := []struct{ name, ddl string }{
		{"execution_time", "INTEGER NOT NULL DEFAULT 0"},
		{"success", "BOOLEAN NOT NULL DEFAULT TRUE"},
		{"installed_by", "TEXT NOT NULL DEFAULT CURRENT_USER"},
	}

	upgraded := false
	for _, col := range columns {
		var exists bool
		err := b.db.QueryRowContext(ctx, `SELECT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_name = $1 AND column_name = $2
		)`, b.table, col.name).Scan(&exists)
		if err != nil {
			return upgraded, err
		}
		if exists {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s",
			quoteIdent(b.table), quoteIdent(col.name), col.ddl)
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return upgraded, fmt.Errorf("add column %s: %w", col.name, err)
		}
		upgraded = true
	}
	return upgraded, nil
}

// Lock захватывает advisory lock на уровне сессии, привязанный к имени
// таблицы метаданных.
// Вход: ctx, action для выполнения под блокировкой.
// Выход: error от action или от самой блокировки.
// Назначение: гарантировать одного активного исполнителя на таблицу.
// Lock acquires a Postgres session-level advisory lock keyed by the
// metadata table name, runs action, and always releases the lock
// afterward regardless of how action returns.
// Input: ctx, action to run while holding the lock.
// Output: error from action or from acquiring the lock itself.
// Purpose: guarantee a single active executor per metadata table.
func (b *Backend) Lock(ctx context.Context, action func(ctx context.Context) error) error {
	key := lockKey(b.table)
	// A session-level advisory lock belongs to one connection, so lock
	// and unlock run on the same pinned connection.
	conn, err := b.db.Conn(ctx)
	if err != nil {
		return &migrex.Error{Kind: migrex.KindLockTimeout, Message: "acquire advisory lock", Cause: err}
	}
	defer conn.Close()
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, key); err != nil {
		return &migrex.Error{Kind: migrex.KindLockTimeout, Message: "acquire advisory lock", Cause: err}
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, key)
	}()
	return action(ctx)
}

func lockKey(table string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("migrex:" + table))
	return int64(h.Sum64())
}

func (b *Backend) AllApplied(ctx context.Context) ([]migrex.AppliedEntry, error) {
	query := fmt.Sprintf(`SELECT installed_rank, version, description, type, script,
		checksum, installed_by, installed_on, execution_time, success
		FROM %s ORDER BY installed_rank ASC`, quoteIdent(b.table))

	rows, err := b.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []migrex.AppliedEntry
	for rows.Next() {
		var (
			rank          int64
			version       sql.NullString
			description   string
			kind          string
			script        string
			checksum      sql.NullInt32
			installedBy   string
			installedOn   time.Time
			executionTime int32
			success       bool
		)
		if err := rows.Scan(&rank, &version, &description, &kind, &script,
			&checksum, &installedBy, &installedOn, &executionTime, &success); err != nil {
			return nil, err
		}

		entry := migrex.AppliedEntry{
			InstallRank:   rank,
			Description:   description,
			Kind:          migrex.MigrationKind(kind),
			ScriptID:      script,
			InstalledBy:   installedBy,
			InstalledAt:   installedOn,
			ExecutionTime: time.Duration(executionTime) * time.Millisecond,
			Success:       success,
		}
		if version.Valid {
			v, err := migrex.ParseVersion(version.String)
			if err != nil {
				return nil, fmt.Errorf("stored version %q: %w", version.String, err)
			}
			entry.Version = v
		} else {
			entry.Version = migrex.EmptyVersion
		}
		if checksum.Valid {
			c := checksum.Int32
			entry.Checksum = &c
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// queryRower is satisfied by both *sql.DB and *sql.Tx, letting
// appendVia run the same conflict-check-then-insert either as a
// standalone statement or as part of a caller-held transaction.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (b *Backend) Append(ctx context.Context, entry migrex.AppliedEntry) (migrex.AppliedEntry, error) {
	return b.appendVia(ctx, b.db, entry)
}

func (b *Backend) appendVia(ctx context.Context, q queryRower, entry migrex.AppliedEntry) (migrex.AppliedEntry, error) {
	if entry.Kind == migrex.KindVersioned {
		var exists bool
		err := q.QueryRowContext(ctx, fmt.Sprintf(
			`SELECT EXISTS (SELECT 1 FROM %s WHERE type = $1 AND version = $2 AND description = $3 AND success)`,
			quoteIdent(b.table)), string(entry.Kind), entry.Version.String(), entry.Description).Scan(&exists)
		if err != nil {
			return migrex.AppliedEntry{}, err
		}
		if exists {
			return migrex.AppliedEntry{}, &migrex.Error{Kind: migrex.KindConflict, Message: "migration already applied"}
		}
	}

	var version any
	if entry.Version.IsReal() {
		version = entry.Version.String()
	}
	var checksum any
	if entry.Checksum != nil {
		checksum = *entry.Checksum
	}

	query := fmt.Sprintf(`INSERT INTO %s
		(version, description, type, script, checksum, installed_by, installed_on, execution_time, success)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), $7, $8)
		RETURNING installed_rank, installed_on`, quoteIdent(b.table))

	err := q.QueryRowContext(ctx, query,
		version, entry.Description, string(entry.Kind), entry.ScriptID, checksum,
		entry.InstalledBy, int32(entry.ExecutionTime/time.Millisecond), entry.Success,
	).Scan(&entry.InstallRank, &entry.InstalledAt)
	if err != nil {
		return migrex.AppliedEntry{}, err
	}
	return entry, nil
}

func (b *Backend) AddSchemaMarker(ctx context.Context, schemas []string) error {
	query := fmt.Sprintf(`INSERT INTO %s
		(version, description, type, script, installed_by, installed_on, execution_time, success)
		VALUES (NULL, $1, $2, '', CURRENT_USER, NOW(), 0, TRUE)`, quoteIdent(b.table))
	_, err := b.db.ExecContext(ctx, query, strings.Join(schemas, ","), string(migrex.KindSchemaMarker))
	return err
}

// SchemaMarkerSchemas returns the schemas recorded across every
// SCHEMA_MARKER row, each of which stores its schema list as a single
// comma-joined description.
func (b *Backend) SchemaMarkerSchemas(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT description FROM %s WHERE type = $1`, quoteIdent(b.table)), string(migrex.KindSchemaMarker))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schemas []string
	for rows.Next() {
		var description string
		if err := rows.Scan(&description); err != nil {
			return nil, err
		}
		if description == "" {
			continue
		}
		schemas = append(schemas, strings.Split(description, ",")...)
	}
	return schemas, rows.Err()
}

func (b *Backend) AddBaselineMarker(ctx context.Context, version migrex.VersionKey, description string) error {
	var hasBaseline bool
	if err := b.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT EXISTS (SELECT 1 FROM %s WHERE type = $1)`, quoteIdent(b.table)),
		string(migrex.KindBaseline)).Scan(&hasBaseline); err != nil {
		return err
	}
	if hasBaseline {
		return &migrex.Error{Kind: migrex.KindAlreadyBaselined, Message: "baseline marker already present"}
	}

	var hasHistory bool
	if err := b.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT EXISTS (SELECT 1 FROM %s WHERE success AND type != $1)`, quoteIdent(b.table)),
		string(migrex.KindBaseline)).Scan(&hasHistory); err != nil {
		return err
	}
	if hasHistory {
		return &migrex.Error{Kind: migrex.KindNonEmptyHistory, Message: "history is not empty"}
	}

	query := fmt.Sprintf(`INSERT INTO %s
		(version, description, type, script, installed_by, installed_on, execution_time, success)
		VALUES ($1, $2, $3, '', CURRENT_USER, NOW(), 0, TRUE)`, quoteIdent(b.table))
	_, err := b.db.ExecContext(ctx, query, version.String(), description, string(migrex.KindBaseline))
	return err
}

func (b *Backend) RemoveFailed(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE NOT success`, quoteIdent(b.table)))
	return err
}

// ClearHistory drops the metadata table outright. CreateIfAbsent must
// be called afterward to rebuild it before the backend is used again.
func (b *Backend) ClearHistory(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, quoteIdent(b.table)))
	return err
}

func (b *Backend) UpdateChecksum(ctx context.Context, version migrex.VersionKey, description string, checksum int32) error {
	var versionArg any
	if version.IsReal() {
		versionArg = version.String()
	}
	query := fmt.Sprintf(`UPDATE %s SET checksum = $1 WHERE description = $2 AND (version = $3 OR ($3 IS NULL AND version IS NULL))`,
		quoteIdent(b.table))
	_, err := b.db.ExecContext(ctx, query, checksum, description, versionArg)
	return err
}

func (b *Backend) HasSchemaMarker(ctx context.Context) (bool, error) {
	return b.hasType(ctx, migrex.KindSchemaMarker)
}

func (b *Backend) HasBaselineMarker(ctx context.Context) (bool, error) {
	return b.hasType(ctx, migrex.KindBaseline)
}

func (b *Backend) hasType(ctx context.Context, kind migrex.MigrationKind) (bool, error) {
	var exists bool
	err := b.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT EXISTS (SELECT 1 FROM %s WHERE type = $1)`, quoteIdent(b.table)), string(kind)).Scan(&exists)
	return exists, err
}

func (b *Backend) HasAppliedMigrations(ctx context.Context) (bool, error) {
	var exists bool
	err := b.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT EXISTS (SELECT 1 FROM %s WHERE success AND type NOT IN ($1, $2))`, quoteIdent(b.table)),
		string(migrex.KindBaseline), string(migrex.KindSchemaMarker)).Scan(&exists)
	return exists, err
}

// ExecuteScript runs body in its own transaction, independent of any
// metadata row. Callers that also need the applied entry written
// atomically with the script should use ExecuteScriptAndAppend
// instead; this method exists to satisfy migrex.ScriptExecutor for
// callers that only run scripts (e.g. a future non-atomic backend
// wrapping this one).
func (b *Backend) ExecuteScript(ctx context.Context, body []byte) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ExecuteScriptAndAppend implements migrex.AtomicExecutor: it runs
// body and appends entry in one *sql.Tx, so a committed script is
// never left without its metadata row and a failed one never leaves a
// partial row behind. The Executor prefers this over ExecuteScript +
// MetadataStore.Append whenever Exec implements AtomicExecutor.
func (b *Backend) ExecuteScriptAndAppend(ctx context.Context, body []byte, entry migrex.AppliedEntry) (migrex.AppliedEntry, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return migrex.AppliedEntry{}, err
	}
	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		_ = tx.Rollback()
		return migrex.AppliedEntry{}, err
	}

	appended, err := b.appendVia(ctx, tx, entry)
	if err != nil {
		_ = tx.Rollback()
		return migrex.AppliedEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return migrex.AppliedEntry{}, err
	}
	return appended, nil
}

func (b *Backend) EnumerateSchemas(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT schema_name FROM information_schema.schemata
		WHERE schema_name NOT IN ('pg_catalog', 'information_schema', 'public')
		  AND schema_name NOT LIKE 'pg_%'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schemas []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		schemas = append(schemas, name)
	}
	return schemas, rows.Err()
}

func (b *Backend) DropSchema(ctx context.Context, schema string) error {
	_, err := b.db.ExecContext(ctx, fmt.Sprintf(`DROP SCHEMA IF EXISTS %s CASCADE`, quoteIdent(schema)))
	return err
}

func (b *Backend) IsEmpty(ctx context.Context) (bool, error) {
	var exists bool
	err := b.db.QueryRowContext(ctx, `SELECT EXISTS (
		SELECT 1 FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name <> $1
	)`, b.table).Scan(&exists)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

func (b *Backend) Transactional() bool {
	return true
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
