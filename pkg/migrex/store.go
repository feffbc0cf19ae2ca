package migrex

import "context"

// MetadataStore is the persistent, ordered log of applied migrations
// plus the markers and lock primitive that protect it. Concrete
// implementations (backend/postgres, pkg/migrex/memstore) own the
// backing storage; the core depends only on this contract.
type MetadataStore interface {
	// Exists reports whether the backing collection/table is present.
	Exists(ctx context.Context) (bool, error)

	// CreateIfAbsent creates the collection and any backing indexes.
	// Idempotent: Exists is true after it returns without error.
	CreateIfAbsent(ctx context.Context) error

	// UpgradeIfNecessary migrates rows from a legacy layout to the
	// current one, returning whether an upgrade ran.
	UpgradeIfNecessary(ctx context.Context) (bool, error)

	// Lock acquires an exclusive advisory lock scoped to this store,
	// runs action, and releases the lock on every exit path (including
	// action panicking or returning an error). A failure to acquire the
	// lock is returned as a KindLockTimeout *Error. The lock is not
	// reentrant: a nested Lock call from inside action is not granted
	// (memstore fails it at once; backend/postgres waits until ctx
	// ends), and no timeout is passed in.
	Lock(ctx context.Context, action func(ctx context.Context) error) error

	// AllApplied returns every AppliedEntry ordered by InstallRank.
	AllApplied(ctx context.Context) ([]AppliedEntry, error)

	// Append atomically appends entry, assigning InstallRank. Fails
	// with KindConflict if identity would duplicate an existing
	// successful VERSIONED entry.
	Append(ctx context.Context, entry AppliedEntry) (AppliedEntry, error)

	// AddSchemaMarker records the schemas that already existed before
	// the engine's first action against this database — not the
	// schemas it goes on to create. Clean consults SchemaMarkerSchemas
	// to avoid dropping them.
	AddSchemaMarker(ctx context.Context, schemas []string) error

	// SchemaMarkerSchemas returns the schemas recorded by
	// AddSchemaMarker, or an empty result if none has been recorded yet.
	SchemaMarkerSchemas(ctx context.Context) ([]string, error)

	// AddBaselineMarker appends a BaselineMarker. Fails with
	// KindAlreadyBaselined if one exists, KindNonEmptyHistory if any
	// successful non-baseline entry already exists.
	AddBaselineMarker(ctx context.Context, version VersionKey, description string) error

	// RemoveFailed deletes every entry with Success == false.
	RemoveFailed(ctx context.Context) error

	// ClearHistory drops the backing metadata collection/table and every
	// entry and marker it held, mirroring clean's drop of the
	// schema-history table alongside the schemas it created. Callers
	// must call CreateIfAbsent afterward before the store is usable
	// again.
	ClearHistory(ctx context.Context) error

	// UpdateChecksum rewrites a single entry's checksum in place.
	UpdateChecksum(ctx context.Context, version VersionKey, description string, checksum int32) error

	HasSchemaMarker(ctx context.Context) (bool, error)
	HasBaselineMarker(ctx context.Context) (bool, error)
	HasAppliedMigrations(ctx context.Context) (bool, error)
}

// ScriptExecutor is the capability set the Executor needs from the
// target backend beyond the metadata log itself: running a script
// body, and the handful of operations clean/baseline detection need.
// Per design note §9, different backend kinds (Postgres here, any
// future backend) are variants of this interface, not subclasses of a
// shared base.
type ScriptExecutor interface {
	// ExecuteScript runs body against the target database and writes
	// no metadata row. A backend that can run a script and its
	// MetadataStore.Append in one transaction does so through
	// AtomicExecutor, which the Executor prefers; otherwise the
	// Executor calls ExecuteScript and then Append separately.
	ExecuteScript(ctx context.Context, body []byte) error

	// EnumerateSchemas lists the schemas/collections visible to the
	// backend. Clean drops every one of these except the schemas
	// MetadataStore.SchemaMarkerSchemas says predate the engine.
	EnumerateSchemas(ctx context.Context) ([]string, error)

	// DropSchema drops one schema/collection by name.
	DropSchema(ctx context.Context, schema string) error

	// IsEmpty reports whether the target database has no user-created
	// objects, used by migrate's baseline-on-migrate detection.
	IsEmpty(ctx context.Context) (bool, error)

	// Transactional reports whether a failed ExecuteScript is rolled
	// back, leaving no partial changes. When Exec is not an
	// AtomicExecutor, the Executor appends a failed entry for a failed
	// script only if Transactional is false; this governs its
	// append-then-raise vs no-append failure handling (spec §9 Open
	// Question 1).
	Transactional() bool
}

// AtomicExecutor is an optional capability a ScriptExecutor can also
// implement when its backend can run a migration script and append
// its metadata row in one transaction. The Executor detects it with a
// type assertion on Exec and, when present, uses it in place of the
// separate ExecuteScript + MetadataStore.Append calls, so a committed
// script is never left without its metadata row (see
// backend/postgres.Backend.ExecuteScriptAndAppend).
type AtomicExecutor interface {
	ExecuteScriptAndAppend(ctx context.Context, body []byte, entry AppliedEntry) (AppliedEntry, error)
}
