package migrex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func descV(t *testing.T, version, desc string, checksum int32) MigrationDescriptor {
	t.Helper()
	cs := checksum
	return MigrationDescriptor{
		Version:     mustVersion(t, version),
		Description: desc,
		Kind:        KindVersioned,
		Checksum:    &cs,
	}
}

func appliedV(t *testing.T, version, desc string, checksum int32, rank int64, success bool) AppliedEntry {
	t.Helper()
	cs := checksum
	return AppliedEntry{
		InstallRank: rank,
		Version:     mustVersion(t, version),
		Description: desc,
		Kind:        KindVersioned,
		Checksum:    &cs,
		Success:     success,
	}
}

func TestInfoBuildPendingWhenUnapplied(t *testing.T) {
	cfg := testConfig(t)
	descs := []MigrationDescriptor{descV(t, "1", "create", 10)}
	rows, err := NewInfoService().Build(descs, nil, cfg)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, StatePending, rows[0].State)
}

func TestInfoBuildSuccessWhenChecksumMatches(t *testing.T) {
	cfg := testConfig(t)
	descs := []MigrationDescriptor{descV(t, "1", "create", 10)}
	applied := []AppliedEntry{appliedV(t, "1", "create", 10, 1, true)}
	rows, err := NewInfoService().Build(descs, applied, cfg)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, StateSuccess, rows[0].State)
}

func TestInfoBuildOutdatedOnChecksumDrift(t *testing.T) {
	cfg := testConfig(t)
	descs := []MigrationDescriptor{descV(t, "1", "create", 99)}
	applied := []AppliedEntry{appliedV(t, "1", "create", 10, 1, true)}
	rows, err := NewInfoService().Build(descs, applied, cfg)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, StateOutdated, rows[0].State)
}

func TestInfoBuildFailedWhenLastAttemptFailed(t *testing.T) {
	cfg := testConfig(t)
	descs := []MigrationDescriptor{descV(t, "1", "create", 10)}
	applied := []AppliedEntry{appliedV(t, "1", "create", 10, 1, false)}
	rows, err := NewInfoService().Build(descs, applied, cfg)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, StateFailed, rows[0].State)
}

func TestInfoBuildOutOfOrderBelowMaxApplied(t *testing.T) {
	cfg := testConfig(t, WithOutOfOrder(true))
	descs := []MigrationDescriptor{
		descV(t, "1", "create", 10),
		descV(t, "2", "add column", 20),
	}
	applied := []AppliedEntry{appliedV(t, "2", "add column", 20, 1, true)}
	rows, err := NewInfoService().Build(descs, applied, cfg)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byVersion := map[string]InfoRow{}
	for _, r := range rows {
		byVersion[r.Version().String()] = r
	}
	assert.Equal(t, StateOutOfOrder, byVersion["1"].State)
	assert.Equal(t, StateSuccess, byVersion["2"].State)
}

func TestInfoBuildIgnoredBelowMaxAppliedWithoutOutOfOrder(t *testing.T) {
	cfg := testConfig(t, WithOutOfOrder(false))
	descs := []MigrationDescriptor{
		descV(t, "1", "create", 10),
		descV(t, "2", "add column", 20),
	}
	applied := []AppliedEntry{appliedV(t, "2", "add column", 20, 1, true)}
	rows, err := NewInfoService().Build(descs, applied, cfg)
	require.NoError(t, err)

	byVersion := map[string]InfoRow{}
	for _, r := range rows {
		byVersion[r.Version().String()] = r
	}
	assert.Equal(t, StateIgnored, byVersion["1"].State)
}

func TestInfoBuildMissingSuccessForOrphanApplied(t *testing.T) {
	cfg := testConfig(t)
	applied := []AppliedEntry{appliedV(t, "1", "create", 10, 1, true)}
	rows, err := NewInfoService().Build(nil, applied, cfg)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, StateMissingSuccess, rows[0].State)
}

func TestInfoBuildIgnoresDescriptorsAtOrBelowBaseline(t *testing.T) {
	cfg := testConfig(t)
	descs := []MigrationDescriptor{descV(t, "1", "create", 10)}
	baselineCS := int32(0)
	applied := []AppliedEntry{{
		InstallRank: 1,
		Version:     mustVersion(t, "1"),
		Description: "<< Baseline >>",
		Kind:        KindBaseline,
		Checksum:    &baselineCS,
		Success:     true,
	}}
	rows, err := NewInfoService().Build(descs, applied, cfg)
	require.NoError(t, err)

	var sawIgnored, sawBaseline bool
	for _, r := range rows {
		if r.State == StateIgnored {
			sawIgnored = true
		}
		if r.State == StateBaseline {
			sawBaseline = true
		}
	}
	assert.True(t, sawIgnored)
	assert.True(t, sawBaseline)
}
