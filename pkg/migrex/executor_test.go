package migrex_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cromanozero/migrex/pkg/migrex"
	"github.com/cromanozero/migrex/pkg/migrex/memstore"
)

func newExecutor(t *testing.T, opts ...migrex.Option) (*migrex.Executor, *memstore.Store, *memstore.FakeExecutor) {
	t.Helper()
	base := []migrex.Option{migrex.WithLocations("testdata/migrations")}
	cfg, err := migrex.NewConfiguration(append(base, opts...)...)
	require.NoError(t, err)

	store := memstore.New()
	exec := memstore.NewFakeExecutor()
	executor, err := migrex.NewExecutor(cfg, store, exec)
	require.NoError(t, err)
	return executor, store, exec
}

// S1: a fresh, empty database with three resolvable scripts migrates
// cleanly and applies every one of them in order.
func TestMigrateAppliesAllPendingOnEmptyDatabase(t *testing.T) {
	executor, store, exec := newExecutor(t)
	ctx := context.Background()

	applied, err := executor.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, applied)
	assert.Len(t, exec.Executed(), 3)

	entries, err := store.AllApplied(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

// S2: running migrate a second time against an already-migrated
// database is a no-op.
func TestMigrateIsIdempotent(t *testing.T) {
	executor, _, exec := newExecutor(t)
	ctx := context.Background()

	_, err := executor.Migrate(ctx)
	require.NoError(t, err)

	second, err := executor.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second)
	assert.Len(t, exec.Executed(), 3)
}

// S3: a checksum drift on an already-applied VERSIONED migration fails
// validate_on_migrate and aborts before anything new is applied.
func TestMigrateFailsOnChecksumDrift(t *testing.T) {
	executor, store, _ := newExecutor(t)
	ctx := context.Background()

	_, err := executor.Migrate(ctx)
	require.NoError(t, err)

	entries, err := store.AllApplied(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	drifted := int32(123456789)
	require.NoError(t, store.UpdateChecksum(ctx, entries[0].Version, entries[0].Description, drifted))

	_, err = executor.Migrate(ctx)
	require.Error(t, err)
	assert.Equal(t, migrex.KindChecksumMismatch, err.(*migrex.Error).Kind)
}

// S4: clean_on_validation_error reroutes a checksum-drift failure into
// a clean instead of propagating the validation error. Clean also
// clears the metadata history, so the migrate that triggered it
// continues past the clean and re-applies every descriptor as PENDING
// rather than leaving the drift in place and applying nothing.
func TestMigrateCleansOnValidationErrorWhenConfigured(t *testing.T) {
	executor, store, exec := newExecutor(t, migrex.WithCleanOnValidationError(true))
	ctx := context.Background()

	first, err := executor.Migrate(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, first)

	entries, err := store.AllApplied(ctx)
	require.NoError(t, err)
	require.NoError(t, store.UpdateChecksum(ctx, entries[0].Version, entries[0].Description, 999))
	exec.SetSchemas("app")

	second, err := executor.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, second)
	assert.Len(t, exec.Executed(), 6)

	remainingSchemas, err := exec.EnumerateSchemas(ctx)
	require.NoError(t, err)
	assert.Empty(t, remainingSchemas)

	rebuilt, err := store.AllApplied(ctx)
	require.NoError(t, err)
	require.Len(t, rebuilt, 3)
	for _, e := range rebuilt {
		assert.True(t, e.Success)
	}
}

// S5: a failing migration against a transactional backend never leaves
// a failed entry behind in the metadata store.
func TestMigrateDoesNotRecordFailureOnTransactionalBackend(t *testing.T) {
	executor, store, exec := newExecutor(t)
	ctx := context.Background()

	exec.FailOn(func(body []byte) error {
		if containsSummaryView(body) {
			return assert.AnError
		}
		return nil
	})

	_, err := executor.Migrate(ctx)
	require.Error(t, err)
	assert.Equal(t, migrex.KindMigrationFailed, err.(*migrex.Error).Kind)

	entries, err := store.AllApplied(ctx)
	require.NoError(t, err)
	for _, e := range entries {
		assert.True(t, e.Success)
	}
}

// S6: a non-empty target database with no metadata and
// baseline_on_migrate disabled fails fast instead of silently
// replaying every script against live data.
func TestMigrateFailsOnNonEmptyDatabaseWithoutBaseline(t *testing.T) {
	executor, _, exec := newExecutor(t)
	ctx := context.Background()
	exec.SetEmpty(false)

	_, err := executor.Migrate(ctx)
	require.Error(t, err)
	assert.Equal(t, migrex.KindNonEmptyNoMetadata, err.(*migrex.Error).Kind)
}

func TestMigrateAutoBaselinesNonEmptyDatabaseWhenConfigured(t *testing.T) {
	executor, store, exec := newExecutor(t, migrex.WithBaselineOnMigrate(true))
	ctx := context.Background()
	exec.SetEmpty(false)

	applied, err := executor.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, applied) // V1 is covered by the baseline; V2 and the repeatable still apply

	hasBaseline, err := store.HasBaselineMarker(ctx)
	require.NoError(t, err)
	assert.True(t, hasBaseline)
}

func TestInstallRankIsMonotonic(t *testing.T) {
	executor, store, _ := newExecutor(t)
	ctx := context.Background()

	_, err := executor.Migrate(ctx)
	require.NoError(t, err)

	entries, err := store.AllApplied(ctx)
	require.NoError(t, err)
	for i := 1; i < len(entries); i++ {
		assert.Less(t, entries[i-1].InstallRank, entries[i].InstallRank)
	}
}

func TestValidateFailsWhenPendingExists(t *testing.T) {
	executor, _, _ := newExecutor(t)
	ctx := context.Background()

	err := executor.Validate(ctx)
	require.Error(t, err)
	assert.Equal(t, migrex.KindValidationFailed, err.(*migrex.Error).Kind)
}

func TestCleanFailsWhenDisabled(t *testing.T) {
	executor, _, _ := newExecutor(t, migrex.WithCleanDisabled(true))
	ctx := context.Background()

	err := executor.Clean(ctx)
	require.Error(t, err)
	assert.Equal(t, migrex.KindCleanDisabled, err.(*migrex.Error).Kind)
}

func TestBaselineFailsWhenAlreadyBaselined(t *testing.T) {
	executor, _, _ := newExecutor(t)
	ctx := context.Background()

	require.NoError(t, executor.Baseline(ctx))
	err := executor.Baseline(ctx)
	require.Error(t, err)
	assert.Equal(t, migrex.KindAlreadyBaselined, err.(*migrex.Error).Kind)
}

func TestInfoReportsResolvedRows(t *testing.T) {
	executor, _, _ := newExecutor(t)
	ctx := context.Background()

	rows, err := executor.Info(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

// Clean drops schemas the engine created but honors the SchemaMarker
// recorded on the first migrate against an empty database: a
// pre-existing schema ("public") must survive while a
// since-created one ("app") does not.
func TestCleanPreservesSchemaMarkerSchemas(t *testing.T) {
	executor, store, exec := newExecutor(t)
	ctx := context.Background()

	exec.SetSchemas("public")
	_, err := executor.Migrate(ctx)
	require.NoError(t, err)

	marked, err := store.SchemaMarkerSchemas(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"public"}, marked)

	exec.SetSchemas("public", "app")
	require.NoError(t, executor.Clean(ctx))

	remaining, err := exec.EnumerateSchemas(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"public"}, remaining)
}

func containsSummaryView(body []byte) bool {
	for i := 0; i+len("widgets_summary") <= len(body); i++ {
		if string(body[i:i+len("widgets_summary")]) == "widgets_summary" {
			return true
		}
	}
	return false
}
