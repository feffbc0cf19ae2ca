package migrex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigurationDefaults(t *testing.T) {
	cfg, err := NewConfiguration(WithLocations("testdata"))
	require.NoError(t, err)
	assert.Equal(t, "migrex_schema_history", cfg.MetadataTable)
	assert.Equal(t, "__", cfg.Separator)
	assert.Equal(t, "V", cfg.VersionedPrefix)
	assert.Equal(t, "R", cfg.RepeatablePrefix)
	assert.True(t, cfg.IgnoreFuture)
	assert.True(t, cfg.ValidateOnMigrate)
}

func TestNewConfigurationRequiresLocationsUnlessSkipped(t *testing.T) {
	_, err := NewConfiguration()
	require.Error(t, err)
	assert.Equal(t, KindInvalidConfig, err.(*Error).Kind)

	cfg, err := NewConfiguration(WithSkipDefaultResolvers(true))
	require.NoError(t, err)
	assert.Empty(t, cfg.Locations)
}

func TestNewConfigurationRejectsEmptySeparator(t *testing.T) {
	_, err := NewConfiguration(WithLocations("testdata"), WithSeparator(""))
	require.Error(t, err)
	assert.Equal(t, KindInvalidConfig, err.(*Error).Kind)
}

func TestNewConfigurationRejectsIdenticalPrefixes(t *testing.T) {
	_, err := NewConfiguration(WithLocations("testdata"), WithPrefixes("X", "X"))
	require.Error(t, err)
	assert.Equal(t, KindInvalidConfig, err.(*Error).Kind)
}

func TestWithBaselineOverridesDefaults(t *testing.T) {
	version, err := ParseVersion("5")
	require.NoError(t, err)
	cfg, err := NewConfiguration(WithLocations("testdata"), WithBaseline(version, "init"))
	require.NoError(t, err)
	assert.True(t, Equal(version, cfg.BaselineVersion))
	assert.Equal(t, "init", cfg.BaselineDescription)
}
