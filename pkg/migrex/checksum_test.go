package migrex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChecksumStableAcrossTrailingNewline(t *testing.T) {
	a := Checksum([]byte("CREATE TABLE foo (id INT);\n"))
	b := Checksum([]byte("CREATE TABLE foo (id INT);"))
	assert.Equal(t, a, b)
}

func TestChecksumStripsBOM(t *testing.T) {
	withBOM := append([]byte{0xEF, 0xBB, 0xBF}, []byte("SELECT 1;")...)
	assert.Equal(t, Checksum([]byte("SELECT 1;")), Checksum(withBOM))
}

func TestChecksumDiffersOnContentChange(t *testing.T) {
	a := Checksum([]byte("SELECT 1;"))
	b := Checksum([]byte("SELECT 2;"))
	assert.NotEqual(t, a, b)
}
