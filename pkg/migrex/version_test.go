package migrex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("1.2.3")
	require.NoError(t, err)
	assert.True(t, v.IsReal())
	assert.Equal(t, "1.2.3", v.String())
}

func TestParseVersionRejectsEmptySegment(t *testing.T) {
	_, err := ParseVersion("1..2")
	require.Error(t, err)
	assert.Equal(t, KindInvalidVersion, err.(*Error).Kind)
}

func TestParseVersionRejectsNegative(t *testing.T) {
	_, err := ParseVersion("1.-2")
	require.Error(t, err)
	assert.Equal(t, KindInvalidVersion, err.(*Error).Kind)
}

func TestParseVersionRejectsNonInteger(t *testing.T) {
	_, err := ParseVersion("1.a")
	require.Error(t, err)
	assert.Equal(t, KindInvalidVersion, err.(*Error).Kind)
}

func TestVersionStringTrimsTrailingZeros(t *testing.T) {
	v, err := ParseVersion("1.0")
	require.NoError(t, err)
	assert.Equal(t, "1", v.String())
}

func TestCompareZeroPads(t *testing.T) {
	a, _ := ParseVersion("1")
	b, _ := ParseVersion("1.0.0")
	assert.Equal(t, 0, Compare(a, b))
	assert.True(t, Equal(a, b))
}

func TestCompareOrdering(t *testing.T) {
	a, _ := ParseVersion("1.2")
	b, _ := ParseVersion("1.10")
	assert.Equal(t, -1, Compare(a, b))
	assert.Equal(t, 1, Compare(b, a))
}

func TestLatestGreaterThanAnyReal(t *testing.T) {
	a, _ := ParseVersion("999.999")
	assert.Equal(t, 1, Compare(Latest, a))
	assert.Equal(t, -1, Compare(a, Latest))
	assert.Equal(t, 0, Compare(Latest, Latest))
}

func TestEmptyVersionNotReal(t *testing.T) {
	assert.False(t, EmptyVersion.IsReal())
	assert.True(t, EmptyVersion.IsEmpty())
	assert.Equal(t, "", EmptyVersion.String())
}
