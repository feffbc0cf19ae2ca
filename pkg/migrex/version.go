package migrex

import (
	"strconv"
	"strings"
)

// versionKind discriminates a VersionKey's special sentinels from a
// real, parsed version. Real versions compare by Parts; the sentinels
// compare by their own fixed rules.
type versionKind int

const (
	versionKindReal versionKind = iota
	versionKindLatest
	versionKindCurrent
	versionKindEmpty
)

// VersionKey is an ordered migration version identifier: a sequence of
// non-negative integers compared lexicographically, with padding by
// zero for unequal lengths ("1" == "1.0").
type VersionKey struct {
	kind  versionKind
	Parts []uint64
}

// Latest is greater than any real parsed version. It is the default
// migration target.
var Latest = VersionKey{kind: versionKindLatest}

// Current resolves, at InfoService build time, to the greatest
// successfully applied version. It has no meaning outside that
// resolution step.
var Current = VersionKey{kind: versionKindCurrent}

// EmptyVersion is the unordered version carried by REPEATABLE
// descriptors and entries.
var EmptyVersion = VersionKey{kind: versionKindEmpty}

// ParseVersion splits s on '.' into non-negative integer parts.
// Empty parts and negative numbers are rejected with KindInvalidVersion.
func ParseVersion(s string) (VersionKey, error) {
	if s == "" {
		return VersionKey{}, newErr(KindInvalidVersion, "version string is empty")
	}
	rawParts := strings.Split(s, ".")
	parts := make([]uint64, 0, len(rawParts))
	for _, raw := range rawParts {
		if raw == "" {
			return VersionKey{}, newErr(KindInvalidVersion, "version %q has an empty segment", s)
		}
		if strings.HasPrefix(raw, "-") {
			return VersionKey{}, newErr(KindInvalidVersion, "version %q has a negative segment", s)
		}
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return VersionKey{}, wrapErr(KindInvalidVersion, err, "version %q has a non-integer segment %q", s, raw)
		}
		parts = append(parts, n)
	}
	return VersionKey{kind: versionKindReal, Parts: parts}, nil
}

// IsReal reports whether v is a parsed, concrete version (as opposed
// to one of the Latest/Current/EmptyVersion sentinels).
func (v VersionKey) IsReal() bool {
	return v.kind == versionKindReal
}

// IsEmpty reports whether v is the REPEATABLE sentinel.
func (v VersionKey) IsEmpty() bool {
	return v.kind == versionKindEmpty
}

// Compare returns -1, 0, or 1 according to a < b, a == b, a > b.
// Latest compares greater than every other version and equal to
// itself. Current and EmptyVersion are not meaningfully comparable:
// Compare returns 0 whenever either side is one of them and the other
// is not Latest; callers must resolve Current before calling Compare
// (see InfoService).
func Compare(a, b VersionKey) int {
	if a.kind == versionKindLatest && b.kind == versionKindLatest {
		return 0
	}
	if a.kind == versionKindLatest {
		return 1
	}
	if b.kind == versionKindLatest {
		return -1
	}
	if a.kind != versionKindReal || b.kind != versionKindReal {
		if a.kind == b.kind {
			return 0
		}
		// Undefined ordering between unresolved sentinels; treat as equal
		// rather than panic, callers are expected not to rely on this.
		return 0
	}

	n := len(a.Parts)
	if len(b.Parts) > n {
		n = len(b.Parts)
	}
	for i := 0; i < n; i++ {
		var av, bv uint64
		if i < len(a.Parts) {
			av = a.Parts[i]
		}
		if i < len(b.Parts) {
			bv = b.Parts[i]
		}
		if av < bv {
			return -1
		}
		if av > bv {
			return 1
		}
	}
	return 0
}

// Equal reports whether a and b denote the same canonical version.
func Equal(a, b VersionKey) bool {
	if a.kind != b.kind {
		return false
	}
	if a.kind != versionKindReal {
		return true
	}
	return Compare(a, b) == 0
}

// String renders the canonical form of v, trimming trailing
// zero-only extensions so "1.0" and "1" both render "1".
func (v VersionKey) String() string {
	switch v.kind {
	case versionKindLatest:
		return "LATEST"
	case versionKindCurrent:
		return "CURRENT"
	case versionKindEmpty:
		return ""
	}
	end := len(v.Parts)
	for end > 1 && v.Parts[end-1] == 0 {
		end--
	}
	strs := make([]string, end)
	for i := 0; i < end; i++ {
		strs[i] = strconv.FormatUint(v.Parts[i], 10)
	}
	return strings.Join(strs, ".")
}
