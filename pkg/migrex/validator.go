package migrex

import "fmt"

// Validator compares InfoRows built by InfoService and yields either
// OK or the first offending row, checked in a fixed order.
type Validator struct{}

// NewValidator constructs a stateless Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate walks rows in order and returns the first validation
// error found, or nil if none. pendingNotOk is set by the validate
// command, not by a validate-before-migrate pass.
func (v *Validator) Validate(rows []InfoRow, cfg Configuration, pendingNotOk bool) error {
	for _, row := range rows {
		if err := v.checkRow(row, cfg, pendingNotOk); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) checkRow(row InfoRow, cfg Configuration, pendingNotOk bool) error {
	switch row.State {
	case StateOutdated:
		if row.Descriptor != nil && row.Descriptor.Kind == KindVersioned {
			return newErr(KindChecksumMismatch, "checksum mismatch for %s %q", row.Version(), row.Description())
		}
	case StateMissingSuccess, StateMissingFailed:
		return newErr(KindMissingAppliedFile, "applied migration %s %q is no longer resolvable", row.Version(), row.Description())
	case StateFuture:
		if !cfg.IgnoreFuture {
			return newErr(KindFutureMigration, "applied migration %s %q is not resolvable and is newer than any resolved migration", row.Version(), row.Description())
		}
	case StatePending:
		if pendingNotOk {
			return newErr(KindValidationFailed, "migration %s %q is pending", row.Version(), row.Description())
		}
	}

	if row.Descriptor != nil && row.Applied != nil {
		if row.Descriptor.Kind != row.Applied.Kind {
			return newErr(KindValidationFailed, fmt.Sprintf("type mismatch for %s %q: resolved as %s, applied as %s",
				row.Version(), row.Description(), row.Descriptor.Kind, row.Applied.Kind))
		}
		dv, dd := row.Descriptor.Identity()
		av, ad := row.Applied.Identity()
		if Equal(dv, av) && dd != ad {
			return newErr(KindValidationFailed, fmt.Sprintf("description mismatch for %s: resolved %q, applied %q", dv, dd, ad))
		}
	}

	return nil
}
