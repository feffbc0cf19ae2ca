package migrex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatorPassesOnSuccessRows(t *testing.T) {
	cfg := testConfig(t)
	d := descV(t, "1", "create", 10)
	a := appliedV(t, "1", "create", 10, 1, true)
	rows := []InfoRow{{Descriptor: &d, Applied: &a, State: StateSuccess}}
	assert.NoError(t, NewValidator().Validate(rows, cfg, false))
}

func TestValidatorFailsOnChecksumMismatch(t *testing.T) {
	cfg := testConfig(t)
	d := descV(t, "1", "create", 99)
	a := appliedV(t, "1", "create", 10, 1, true)
	rows := []InfoRow{{Descriptor: &d, Applied: &a, State: StateOutdated}}
	err := NewValidator().Validate(rows, cfg, false)
	require.Error(t, err)
	assert.Equal(t, KindChecksumMismatch, err.(*Error).Kind)
}

func TestValidatorFailsOnMissingAppliedScript(t *testing.T) {
	cfg := testConfig(t)
	a := appliedV(t, "1", "create", 10, 1, true)
	rows := []InfoRow{{Applied: &a, State: StateMissingSuccess}}
	err := NewValidator().Validate(rows, cfg, false)
	require.Error(t, err)
	assert.Equal(t, KindMissingAppliedFile, err.(*Error).Kind)
}

func TestValidatorIgnoresFutureByDefault(t *testing.T) {
	cfg := testConfig(t)
	a := appliedV(t, "99", "from the future", 10, 1, true)
	rows := []InfoRow{{Applied: &a, State: StateFuture}}
	assert.NoError(t, NewValidator().Validate(rows, cfg, false))
}

func TestValidatorFailsOnFutureWhenNotIgnored(t *testing.T) {
	cfg := testConfig(t, WithIgnoreFuture(false))
	a := appliedV(t, "99", "from the future", 10, 1, true)
	rows := []InfoRow{{Applied: &a, State: StateFuture}}
	err := NewValidator().Validate(rows, cfg, false)
	require.Error(t, err)
	assert.Equal(t, KindFutureMigration, err.(*Error).Kind)
}

func TestValidatorPendingOnlyFailsWhenRequested(t *testing.T) {
	cfg := testConfig(t)
	d := descV(t, "1", "create", 10)
	rows := []InfoRow{{Descriptor: &d, State: StatePending}}

	assert.NoError(t, NewValidator().Validate(rows, cfg, false))

	err := NewValidator().Validate(rows, cfg, true)
	require.Error(t, err)
	assert.Equal(t, KindValidationFailed, err.(*Error).Kind)
}
