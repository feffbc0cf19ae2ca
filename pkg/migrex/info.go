package migrex

import "sort"

// InfoService joins resolved descriptors with stored history into
// InfoRows and applies the target/out-of-order policy. It holds no
// state of its own; Build is re-run fresh on every command.
type InfoService struct{}

// NewInfoService constructs an InfoService. It is stateless; the
// constructor exists only so callers have a single type to wire
// through the Executor.
func NewInfoService() *InfoService {
	return &InfoService{}
}

// Build joins descriptors (resolver output) with applied (store
// contents) per cfg and returns the InfoRows, evaluated against the
// state-assignment rules below.
func (s *InfoService) Build(descriptors []MigrationDescriptor, applied []AppliedEntry, cfg Configuration) ([]InfoRow, error) {
	target, err := resolveTarget(cfg.Target, descriptors, applied)
	if err != nil {
		return nil, err
	}

	var baselineVersion VersionKey
	hasBaseline := false
	for _, a := range applied {
		if a.Kind == KindBaseline {
			baselineVersion = a.Version
			hasBaseline = true
			break
		}
	}

	maxAppliedVersion := maxSuccessfulVersionedVersion(applied)
	maxResolvedVersion := maxVersionedDescriptorVersion(descriptors)

	byIdentity := make(map[string][]AppliedEntry)
	var markers []AppliedEntry
	for _, a := range applied {
		if a.Kind == KindBaseline || a.Kind == KindSchemaMarker {
			markers = append(markers, a)
			continue
		}
		v, desc := a.Identity()
		byIdentity[identityKey(a.Kind, v, desc)] = append(byIdentity[identityKey(a.Kind, v, desc)], a)
	}
	for key := range byIdentity {
		group := byIdentity[key]
		sort.Slice(group, func(i, j int) bool { return group[i].InstallRank < group[j].InstallRank })
		byIdentity[key] = group
	}

	consumed := make(map[string]bool)
	var rows []InfoRow

	for i := range descriptors {
		d := descriptors[i]
		v, desc := d.Identity()
		key := identityKey(d.Kind, v, desc)
		group := byIdentity[key]
		consumed[key] = true

		if hasBaseline && d.Kind == KindVersioned && d.Version.IsReal() && Compare(d.Version, baselineVersion) <= 0 {
			rows = append(rows, InfoRow{Descriptor: &d, State: StateIgnored})
			continue
		}

		if len(group) == 0 {
			rows = append(rows, s.rowForUnapplied(&d, target, maxAppliedVersion, cfg))
			continue
		}

		latest := group[len(group)-1]
		for _, older := range group[:len(group)-1] {
			o := older
			rows = append(rows, InfoRow{Descriptor: &d, Applied: &o, State: StateOutdated})
		}
		rows = append(rows, s.rowForApplied(&d, &latest, cfg))
	}

	for key, group := range byIdentity {
		if consumed[key] {
			continue
		}
		for i := range group {
			a := group[i]
			rows = append(rows, s.rowForOrphan(&a, maxResolvedVersion, hasBaseline, baselineVersion))
		}
	}

	for i := range markers {
		m := markers[i]
		if m.Kind == KindBaseline {
			rows = append(rows, InfoRow{Applied: &m, State: StateBaseline})
		}
	}

	return rows, nil
}

func (s *InfoService) rowForUnapplied(d *MigrationDescriptor, target, maxAppliedVersion VersionKey, cfg Configuration) InfoRow {
	if d.Kind == KindVersioned && d.Version.IsReal() && target.IsReal() && Compare(d.Version, target) > 0 {
		return InfoRow{Descriptor: d, State: StateAboveTarget}
	}
	if d.Kind == KindVersioned && maxAppliedVersion.IsReal() && d.Version.IsReal() && Compare(d.Version, maxAppliedVersion) < 0 {
		if cfg.OutOfOrder {
			return InfoRow{Descriptor: d, State: StateOutOfOrder}
		}
		return InfoRow{Descriptor: d, State: StateIgnored}
	}
	return InfoRow{Descriptor: d, State: StatePending}
}

func (s *InfoService) rowForApplied(d *MigrationDescriptor, a *AppliedEntry, cfg Configuration) InfoRow {
	if !a.Success {
		return InfoRow{Descriptor: d, Applied: a, State: StateFailed}
	}
	if checksumsEqual(d.Checksum, a.Checksum) {
		return InfoRow{Descriptor: d, Applied: a, State: StateSuccess}
	}
	// Checksum drift, VERSIONED or REPEATABLE alike, is surfaced as
	// OUTDATED here; Validator turns a VERSIONED OUTDATED row into a
	// CHECKSUM_MISMATCH error, while a REPEATABLE one is simply pending
	// re-application.
	return InfoRow{Descriptor: d, Applied: a, State: StateOutdated}
}

func (s *InfoService) rowForOrphan(a *AppliedEntry, maxResolvedVersion VersionKey, hasBaseline bool, baselineVersion VersionKey) InfoRow {
	if hasBaseline && a.Version.IsReal() && Compare(a.Version, baselineVersion) <= 0 {
		return InfoRow{Applied: a, State: StateSuperseded}
	}
	if a.Version.IsReal() && maxResolvedVersion.IsReal() && Compare(a.Version, maxResolvedVersion) > 0 {
		return InfoRow{Applied: a, State: StateFuture}
	}
	if !a.Success {
		return InfoRow{Applied: a, State: StateMissingFailed}
	}
	return InfoRow{Applied: a, State: StateMissingSuccess}
}

func identityKey(kind MigrationKind, v VersionKey, description string) string {
	return string(kind) + "|" + v.String() + "|" + description
}

func checksumsEqual(a, b *int32) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func maxSuccessfulVersionedVersion(applied []AppliedEntry) VersionKey {
	result := VersionKey{}
	found := false
	for _, a := range applied {
		if a.Kind != KindVersioned || !a.Success || !a.Version.IsReal() {
			continue
		}
		if !found || Compare(a.Version, result) > 0 {
			result = a.Version
			found = true
		}
	}
	if !found {
		return EmptyVersion
	}
	return result
}

func maxVersionedDescriptorVersion(descriptors []MigrationDescriptor) VersionKey {
	result := VersionKey{}
	found := false
	for _, d := range descriptors {
		if d.Kind != KindVersioned || !d.Version.IsReal() {
			continue
		}
		if !found || Compare(d.Version, result) > 0 {
			result = d.Version
			found = true
		}
	}
	if !found {
		return EmptyVersion
	}
	return result
}

// resolveTarget resolves the configured target: LATEST to the
// greatest resolved version, CURRENT to the greatest successfully
// applied version, anything else is taken literally.
func resolveTarget(target VersionKey, descriptors []MigrationDescriptor, applied []AppliedEntry) (VersionKey, error) {
	switch {
	case target.kind == versionKindLatest:
		v := maxVersionedDescriptorVersion(descriptors)
		if !v.IsReal() {
			return Latest, nil
		}
		return v, nil
	case target.kind == versionKindCurrent:
		v := maxSuccessfulVersionedVersion(applied)
		if !v.IsReal() {
			return Latest, nil
		}
		return v, nil
	default:
		return target, nil
	}
}
