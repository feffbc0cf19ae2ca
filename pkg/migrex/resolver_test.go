package migrex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, opts ...Option) Configuration {
	t.Helper()
	base := []Option{WithLocations("testdata/migrations")}
	cfg, err := NewConfiguration(append(base, opts...)...)
	require.NoError(t, err)
	return cfg
}

func TestCompositeResolverResolvesAndSorts(t *testing.T) {
	cfg := testConfig(t)
	resolver := NewCompositeResolver(cfg)

	descs, err := resolver.Resolve(context.Background())
	require.NoError(t, err)
	require.Len(t, descs, 3)

	assert.Equal(t, KindVersioned, descs[0].Kind)
	assert.Equal(t, "1", descs[0].Version.String())
	assert.Equal(t, "create widgets", descs[0].Description)

	assert.Equal(t, KindVersioned, descs[1].Kind)
	assert.Equal(t, "2", descs[1].Version.String())

	assert.Equal(t, KindRepeatable, descs[2].Kind)
	assert.Equal(t, "widgets summary view", descs[2].Description)
}

func TestCompositeResolverFailsOnDuplicateIdentity(t *testing.T) {
	dup := &fixedResolver{descs: []MigrationDescriptor{
		{Version: mustVersion(t, "1"), Description: "create widgets", Kind: KindVersioned},
	}}
	cfg := testConfig(t, WithCustomResolvers(dup))
	resolver := NewCompositeResolver(cfg)

	_, err := resolver.Resolve(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindDuplicateMigration, err.(*Error).Kind)
}

func TestFileResolverRejectsUnreadableLocation(t *testing.T) {
	cfg := testConfig(t, WithLocations("testdata/does-not-exist"))
	resolver := NewCompositeResolver(cfg)

	_, err := resolver.Resolve(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindLocationUnreadable, err.(*Error).Kind)
}

func TestReadScriptReturnsBody(t *testing.T) {
	cfg := testConfig(t)
	descs, err := NewCompositeResolver(cfg).Resolve(context.Background())
	require.NoError(t, err)

	body, err := ReadScript(descs[0].PhysicalLocation, cfg.Encoding)
	require.NoError(t, err)
	assert.Contains(t, string(body), "CREATE TABLE widgets")
}

func TestReadScriptTranscodesConfiguredEncoding(t *testing.T) {
	cfg := testConfig(t, WithLocations("testdata/encoding"), WithEncoding("ISO-8859-1"))
	descs, err := NewCompositeResolver(cfg).Resolve(context.Background())
	require.NoError(t, err)
	require.Len(t, descs, 1)

	body, err := ReadScript(descs[0].PhysicalLocation, cfg.Encoding)
	require.NoError(t, err)
	assert.Contains(t, string(body), "café")
}

func mustVersion(t *testing.T, s string) VersionKey {
	t.Helper()
	v, err := ParseVersion(s)
	require.NoError(t, err)
	return v
}

type fixedResolver struct {
	descs []MigrationDescriptor
}

func (f *fixedResolver) Resolve(ctx context.Context) ([]MigrationDescriptor, error) {
	return f.descs, nil
}
