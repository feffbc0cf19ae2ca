package migrex

import (
	"context"
	"os/user"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/cromanozero/migrex/pkg/migrex/logging"
)

// Executor dispatches the lifecycle commands: migrate, validate,
// info, baseline, clean, repair. It owns no resources itself: Store
// and Exec are supplied by the caller, who
// remains responsible for closing a backend it created (the Executor
// never closes either).
type Executor struct {
	Config Configuration
	Store  MetadataStore
	Exec   ScriptExecutor

	resolver  Resolver
	callbacks *CallbackBus
	info      *InfoService
	validator *Validator
}

// NewExecutor validates cfg, wires the default (or skipped) resolvers
// and callbacks, and returns an Executor ready to run commands. It
// fails with KindNotConfigured if store or exec is nil.
func NewExecutor(cfg Configuration, store MetadataStore, exec ScriptExecutor) (*Executor, error) {
	if store == nil || exec == nil {
		return nil, newErr(KindNotConfigured, "no backend configured")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	resolver := NewCompositeResolver(cfg)
	for _, r := range cfg.CustomResolvers {
		if aware, ok := r.(ConfigAware); ok {
			aware.SetConfiguration(cfg)
		}
	}

	return &Executor{
		Config:    cfg,
		Store:     store,
		Exec:      exec,
		resolver:  resolver,
		callbacks: NewCallbackBus(cfg),
		info:      NewInfoService(),
		validator: NewValidator(),
	}, nil
}

// Banner is the version string logged at the start of every command.
const Banner = "migrex"

func (e *Executor) runID() string {
	return uuid.New().String()
}

func (e *Executor) installedBy() string {
	if e.Config.InstalledByOverride != "" {
		return e.Config.InstalledByOverride
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "migrex"
}

// prepare runs the common envelope every command shares: banner,
// ensure the metadata collection exists, and run a schema upgrade +
// repair pass if the store is in a legacy layout.
func (e *Executor) prepare(ctx context.Context) error {
	runID := e.runID()
	logging.Infof("%s: run %s starting against table %s", Banner, runID, e.Config.MetadataTable)

	if err := e.Store.CreateIfAbsent(ctx); err != nil {
		return wrapErr(KindBackendError, err, "create metadata table")
	}

	upgraded, err := e.Store.UpgradeIfNecessary(ctx)
	if err != nil {
		return wrapErr(KindBackendError, err, "upgrade metadata table")
	}
	if upgraded {
		logging.Warnf("%s: metadata table was upgraded from a legacy layout, repairing checksums", Banner)
		if err := e.repairChecksums(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) buildInfoRows(ctx context.Context) ([]InfoRow, error) {
	descriptors, err := e.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	if err := populateChecksums(descriptors, e.Config.Encoding); err != nil {
		return nil, err
	}
	applied, err := e.Store.AllApplied(ctx)
	if err != nil {
		return nil, wrapErr(KindBackendError, err, "read applied migrations")
	}
	return e.info.Build(descriptors, applied, e.Config)
}

// populateChecksums fills in the Checksum field of every descriptor
// that doesn't already carry one, by reading its script body.
// Resolvers leave Checksum nil (see FileResolver.parseFilename); this
// is the one point where the scan step's output pays for a file read,
// since every InfoRow computation needs it for drift detection.
func populateChecksums(descriptors []MigrationDescriptor, encoding string) error {
	for i := range descriptors {
		if descriptors[i].Checksum != nil {
			continue
		}
		body, err := ReadScript(descriptors[i].PhysicalLocation, encoding)
		if err != nil {
			return wrapErr(KindBackendError, err, "read script for %s %q", descriptors[i].Version, descriptors[i].Description)
		}
		checksum := Checksum(body)
		descriptors[i].Checksum = &checksum
	}
	return nil
}

// Migrate applies every pending/out-of-order descriptor in order and
// returns the count successfully applied.
func (e *Executor) Migrate(ctx context.Context) (int, error) {
	if err := e.prepare(ctx); err != nil {
		return 0, err
	}

	applied := 0
	err := e.Store.Lock(ctx, func(ctx context.Context) error {
		n, err := e.migrateLocked(ctx)
		applied = n
		return err
	})
	return applied, err
}

func (e *Executor) migrateLocked(ctx context.Context) (int, error) {
	e.callbacks.BeforeMigrate()

	if e.Config.ValidateOnMigrate {
		rows, err := e.buildInfoRows(ctx)
		if err != nil {
			return 0, err
		}
		if verr := e.validator.Validate(rows, e.Config, false); verr != nil {
			if e.Config.CleanOnValidationError {
				if err := e.cleanLocked(ctx); err != nil {
					return 0, err
				}
			} else {
				return 0, verr
			}
		}
	}

	if err := e.ensureBaselineOrEmpty(ctx); err != nil {
		return 0, err
	}

	rows, err := e.buildInfoRows(ctx)
	if err != nil {
		return 0, err
	}

	pending := pendingDescriptors(rows)
	installedBy := e.installedBy()

	atomicExec, _ := e.Exec.(AtomicExecutor)

	count := 0
	for _, d := range pending {
		desc := d
		e.callbacks.BeforeEachMigrate(desc)

		body, err := ReadScript(desc.PhysicalLocation, e.Config.Encoding)
		if err != nil {
			return count, wrapErr(KindBackendError, err, "read script for %s %q", desc.Version, desc.Description)
		}
		checksum := Checksum(body)

		entry := AppliedEntry{
			Version:     desc.Version,
			Description: desc.Description,
			Kind:        desc.Kind,
			ScriptID:    desc.ScriptID,
			Checksum:    &checksum,
			InstalledBy: installedBy,
			InstalledAt: time.Now(),
			Success:     true,
		}

		var execErr error
		if atomicExec != nil {
			start := time.Now()
			recorded, err := atomicExec.ExecuteScriptAndAppend(ctx, body, entry)
			entry.ExecutionTime = time.Since(start)
			if err != nil {
				execErr = err
			} else {
				entry = recorded
			}
		} else {
			start := time.Now()
			execErr = e.Exec.ExecuteScript(ctx, body)
			entry.ExecutionTime = time.Since(start)
			entry.Success = execErr == nil

			if execErr != nil {
				if !e.Exec.Transactional() {
					if _, appendErr := e.Store.Append(ctx, entry); appendErr != nil {
						logging.Errorf("%s: failed to record failed migration %s %q: %v", Banner, desc.Version, desc.Description, appendErr)
					}
				}
			} else if _, appendErr := e.Store.Append(ctx, entry); appendErr != nil {
				e.callbacks.AfterEachMigrate(desc, false)
				return count, wrapErr(KindBackendError, appendErr, "record applied migration %s %q", desc.Version, desc.Description)
			}
		}

		if execErr != nil {
			e.callbacks.AfterEachMigrate(desc, false)
			return count, wrapErr(KindMigrationFailed, execErr, "apply %s %q", desc.Version, desc.Description)
		}

		e.callbacks.AfterEachMigrate(desc, true)
		count++
	}

	e.callbacks.AfterMigrate(count)
	return count, nil
}

// ensureBaselineOrEmpty runs the migrate preamble: if there is no
// SchemaMarker, BaselineMarker, or applied entries yet, either
// auto-baseline a non-empty database (if configured) or require the
// database be empty, else fail NON_EMPTY_NO_METADATA.
func (e *Executor) ensureBaselineOrEmpty(ctx context.Context) error {
	hasSchema, err := e.Store.HasSchemaMarker(ctx)
	if err != nil {
		return wrapErr(KindBackendError, err, "check schema marker")
	}
	hasBaseline, err := e.Store.HasBaselineMarker(ctx)
	if err != nil {
		return wrapErr(KindBackendError, err, "check baseline marker")
	}
	hasApplied, err := e.Store.HasAppliedMigrations(ctx)
	if err != nil {
		return wrapErr(KindBackendError, err, "check applied migrations")
	}
	if hasSchema || hasBaseline || hasApplied {
		return nil
	}

	schemas, err := e.Exec.EnumerateSchemas(ctx)
	if err != nil {
		return wrapErr(KindBackendError, err, "enumerate schemas")
	}

	empty, err := e.Exec.IsEmpty(ctx)
	if err != nil {
		return wrapErr(KindBackendError, err, "check whether target database is empty")
	}
	if empty {
		return e.Store.AddSchemaMarker(ctx, schemas)
	}
	if e.Config.BaselineOnMigrate {
		if err := e.Store.AddBaselineMarker(ctx, e.Config.BaselineVersion, e.Config.BaselineDescription); err != nil {
			return err
		}
		return e.Store.AddSchemaMarker(ctx, schemas)
	}
	// Deliberately no AddSchemaMarker here: this path fails without
	// recording anything, so a retry (e.g. after enabling
	// baseline_on_migrate) still sees hasSchema == false.
	return newErr(KindNonEmptyNoMetadata, "target database is not empty and has no migrex metadata; enable baseline_on_migrate or run baseline")
}

func pendingDescriptors(rows []InfoRow) []MigrationDescriptor {
	var versioned, repeatable []MigrationDescriptor
	// InfoService emits a REPEATABLE descriptor's older history rows
	// before the row for its latest entry, so the last row seen per
	// description decides whether it is applied again.
	latestRepeatable := make(map[string]InfoRow)
	for _, row := range rows {
		if row.Descriptor == nil {
			continue
		}
		switch row.Descriptor.Kind {
		case KindVersioned:
			if row.State == StatePending || row.State == StateOutOfOrder {
				versioned = append(versioned, *row.Descriptor)
			}
		case KindRepeatable:
			latestRepeatable[row.Descriptor.Description] = row
		}
	}
	for _, row := range latestRepeatable {
		if row.State == StatePending || row.State == StateOutdated {
			repeatable = append(repeatable, *row.Descriptor)
		}
	}
	sort.Slice(versioned, func(i, j int) bool { return Compare(versioned[i].Version, versioned[j].Version) < 0 })
	sort.Slice(repeatable, func(i, j int) bool { return repeatable[i].Description < repeatable[j].Description })
	return append(versioned, repeatable...)
}

// Validate runs the validator with pendingNotOk set, treating a
// still-pending migration as a validation failure.
func (e *Executor) Validate(ctx context.Context) error {
	if err := e.prepare(ctx); err != nil {
		return err
	}
	return e.Store.Lock(ctx, func(ctx context.Context) error {
		e.callbacks.BeforeValidate()
		rows, err := e.buildInfoRows(ctx)
		if err != nil {
			return err
		}
		if verr := e.validator.Validate(rows, e.Config, true); verr != nil {
			if e.Config.CleanOnValidationError {
				return e.cleanLocked(ctx)
			}
			return wrapErr(KindValidationFailed, verr, "validation failed")
		}
		e.callbacks.AfterValidate()
		return nil
	})
}

// Info builds and returns the current InfoRow view.
func (e *Executor) Info(ctx context.Context) ([]InfoRow, error) {
	if err := e.prepare(ctx); err != nil {
		return nil, err
	}
	var rows []InfoRow
	err := e.Store.Lock(ctx, func(ctx context.Context) error {
		e.callbacks.BeforeInfo()
		r, err := e.buildInfoRows(ctx)
		if err != nil {
			return err
		}
		rows = r
		e.callbacks.AfterInfo()
		return nil
	})
	return rows, err
}

// Baseline appends a BaselineMarker at the configured baseline
// version/description.
func (e *Executor) Baseline(ctx context.Context) error {
	if err := e.prepare(ctx); err != nil {
		return err
	}
	return e.Store.Lock(ctx, func(ctx context.Context) error {
		e.callbacks.BeforeBaseline()
		if err := e.Store.AddBaselineMarker(ctx, e.Config.BaselineVersion, e.Config.BaselineDescription); err != nil {
			return err
		}
		e.callbacks.AfterBaseline()
		return nil
	})
}

// Clean drops every schema/collection the engine created. Fails
// KindCleanDisabled if configured off.
func (e *Executor) Clean(ctx context.Context) error {
	if e.Config.CleanDisabled {
		return newErr(KindCleanDisabled, "clean is disabled by configuration")
	}
	if err := e.prepare(ctx); err != nil {
		return err
	}
	return e.Store.Lock(ctx, func(ctx context.Context) error {
		return e.cleanLocked(ctx)
	})
}

func (e *Executor) cleanLocked(ctx context.Context) error {
	if e.Config.CleanDisabled {
		return newErr(KindCleanDisabled, "clean is disabled by configuration")
	}
	e.callbacks.BeforeClean()

	preexisting, err := e.Store.SchemaMarkerSchemas(ctx)
	if err != nil {
		return wrapErr(KindBackendError, err, "read schema marker")
	}
	keep := make(map[string]bool, len(preexisting))
	for _, schema := range preexisting {
		keep[schema] = true
	}

	schemas, err := e.Exec.EnumerateSchemas(ctx)
	if err != nil {
		return wrapErr(KindBackendError, err, "enumerate schemas")
	}
	for _, schema := range schemas {
		if keep[schema] {
			continue
		}
		if err := e.Exec.DropSchema(ctx, schema); err != nil {
			return wrapErr(KindBackendError, err, "drop schema %q", schema)
		}
	}

	// Flyway's clean drops the schema-history table along with every
	// object it enumerates; without this, migrate run right after would
	// rebuild applied history against objects clean just removed and
	// re-derive stale OUTDATED/SUCCESS rows instead of PENDING ones.
	if err := e.Store.ClearHistory(ctx); err != nil {
		return wrapErr(KindBackendError, err, "clear metadata history")
	}
	if err := e.Store.CreateIfAbsent(ctx); err != nil {
		return wrapErr(KindBackendError, err, "recreate metadata table")
	}

	e.callbacks.AfterClean()
	return nil
}

// Repair removes failed entries and recomputes checksums of the
// remaining entries from current resolver output.
func (e *Executor) Repair(ctx context.Context) error {
	if err := e.prepare(ctx); err != nil {
		return err
	}
	return e.Store.Lock(ctx, func(ctx context.Context) error {
		e.callbacks.BeforeRepair()
		if err := e.repairChecksums(ctx); err != nil {
			return err
		}
		e.callbacks.AfterRepair()
		return nil
	})
}

func (e *Executor) repairChecksums(ctx context.Context) error {
	if err := e.Store.RemoveFailed(ctx); err != nil {
		return wrapErr(KindBackendError, err, "remove failed entries")
	}

	descriptors, err := e.resolver.Resolve(ctx)
	if err != nil {
		return err
	}
	byIdentity := make(map[string]MigrationDescriptor, len(descriptors))
	for _, d := range descriptors {
		v, desc := d.Identity()
		byIdentity[identityKey(d.Kind, v, desc)] = d
	}

	applied, err := e.Store.AllApplied(ctx)
	if err != nil {
		return wrapErr(KindBackendError, err, "read applied migrations")
	}
	for _, a := range applied {
		v, desc := a.Identity()
		d, ok := byIdentity[identityKey(a.Kind, v, desc)]
		if !ok {
			continue
		}
		body, err := ReadScript(d.PhysicalLocation, e.Config.Encoding)
		if err != nil {
			continue
		}
		checksum := Checksum(body)
		if checksumsEqual(a.Checksum, &checksum) {
			continue
		}
		if err := e.Store.UpdateChecksum(ctx, a.Version, a.Description, checksum); err != nil {
			return wrapErr(KindBackendError, err, "update checksum for %s %q", a.Version, a.Description)
		}
	}
	return nil
}
