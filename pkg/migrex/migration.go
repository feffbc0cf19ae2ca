package migrex

import "time"

// MigrationKind identifies what role a descriptor or applied entry plays.
type MigrationKind string

const (
	KindVersioned    MigrationKind = "VERSIONED"
	KindRepeatable   MigrationKind = "REPEATABLE"
	KindBaseline     MigrationKind = "BASELINE"
	KindSchemaMarker MigrationKind = "SCHEMA_MARKER"
)

// MigrationDescriptor is a resolved, not-yet-applied migration script.
// Identity is (Version, Description) for VERSIONED, Description alone
// for REPEATABLE.
type MigrationDescriptor struct {
	Version          VersionKey
	Description      string
	Kind             MigrationKind
	ScriptID         string
	Checksum         *int32
	PhysicalLocation string
	ExecutorTag      string
}

// Identity returns the tuple used to match this descriptor against an
// AppliedEntry.
func (d MigrationDescriptor) Identity() (VersionKey, string) {
	if d.Kind == KindRepeatable {
		return EmptyVersion, d.Description
	}
	return d.Version, d.Description
}

// AppliedEntry is a row recorded in the MetadataStore.
type AppliedEntry struct {
	InstallRank   int64
	Version       VersionKey
	Description   string
	Kind          MigrationKind
	ScriptID      string
	Checksum      *int32
	InstalledBy   string
	InstalledAt   time.Time
	ExecutionTime time.Duration
	Success       bool
}

// Identity mirrors MigrationDescriptor.Identity for AppliedEntry.
func (a AppliedEntry) Identity() (VersionKey, string) {
	if a.Kind == KindRepeatable {
		return EmptyVersion, a.Description
	}
	return a.Version, a.Description
}

// InfoState enumerates the per-row states an InfoRow can be in.
type InfoState string

const (
	StatePending        InfoState = "PENDING"
	StateAboveTarget    InfoState = "ABOVE_TARGET"
	StateIgnored        InfoState = "IGNORED"
	StateFuture         InfoState = "FUTURE"
	StateOutdated       InfoState = "OUTDATED"
	StateSuperseded     InfoState = "SUPERSEDED"
	StateSuccess        InfoState = "SUCCESS"
	StateFailed         InfoState = "FAILED"
	StateMissingSuccess InfoState = "MISSING_SUCCESS"
	StateMissingFailed  InfoState = "MISSING_FAILED"
	StateOutOfOrder     InfoState = "OUT_OF_ORDER"
	StateBaseline       InfoState = "BASELINE"
)

// InfoRow is the ephemeral join of a resolved descriptor with its
// applied history, rebuilt by InfoService on every command.
type InfoRow struct {
	Descriptor *MigrationDescriptor
	Applied    *AppliedEntry
	State      InfoState
}

// Version returns the row's version, preferring the descriptor's when
// present.
func (r InfoRow) Version() VersionKey {
	if r.Descriptor != nil {
		return r.Descriptor.Version
	}
	if r.Applied != nil {
		return r.Applied.Version
	}
	return EmptyVersion
}

// Description returns the row's description, preferring the
// descriptor's when present.
func (r InfoRow) Description() string {
	if r.Descriptor != nil {
		return r.Descriptor.Description
	}
	if r.Applied != nil {
		return r.Applied.Description
	}
	return ""
}
