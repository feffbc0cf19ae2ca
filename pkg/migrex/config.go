package migrex

// Configuration is the immutable parameter bundle every other
// component reads but never mutates. Built once per engine instance
// via NewConfiguration.
type Configuration struct {
	Locations              []string
	Encoding               string
	MetadataTable          string
	Target                 VersionKey
	VersionedPrefix        string
	RepeatablePrefix       string
	Separator              string
	VersionedSuffix        string
	RepeatableSuffix       string
	IgnoreFuture           bool
	ValidateOnMigrate      bool
	CleanOnValidationError bool
	CleanDisabled          bool
	BaselineVersion        VersionKey
	BaselineDescription    string
	BaselineOnMigrate      bool
	OutOfOrder             bool
	AllowMixed             bool
	SkipDefaultCallbacks   bool
	SkipDefaultResolvers   bool
	CustomResolvers        []Resolver
	CustomCallbacks        []Callback
	InstalledByOverride    string
	LockTimeoutSeconds     int
}

// Option mutates a Configuration under construction. Applied in order
// by NewConfiguration.
type Option func(*Configuration)

// WithLocations sets the migration source locations.
func WithLocations(locations ...string) Option {
	return func(c *Configuration) { c.Locations = locations }
}

// WithMetadataTable sets the metadata collection/table name.
func WithMetadataTable(name string) Option {
	return func(c *Configuration) { c.MetadataTable = name }
}

// WithTarget sets the migrate/info target version.
func WithTarget(v VersionKey) Option {
	return func(c *Configuration) { c.Target = v }
}

// WithSeparator overrides the filename separator (default "__").
func WithSeparator(sep string) Option {
	return func(c *Configuration) { c.Separator = sep }
}

// WithPrefixes overrides the versioned/repeatable filename prefixes.
func WithPrefixes(versioned, repeatable string) Option {
	return func(c *Configuration) {
		c.VersionedPrefix = versioned
		c.RepeatablePrefix = repeatable
	}
}

// WithSuffixes overrides the versioned/repeatable filename suffixes.
func WithSuffixes(versioned, repeatable string) Option {
	return func(c *Configuration) {
		c.VersionedSuffix = versioned
		c.RepeatableSuffix = repeatable
	}
}

// WithOutOfOrder enables applying VERSIONED descriptors below the
// highest applied version.
func WithOutOfOrder(v bool) Option {
	return func(c *Configuration) { c.OutOfOrder = v }
}

// WithIgnoreFuture controls whether FUTURE applied entries are a
// warning (true, default) or a validation error (false).
func WithIgnoreFuture(v bool) Option {
	return func(c *Configuration) { c.IgnoreFuture = v }
}

// WithValidateOnMigrate controls whether migrate runs validation first.
func WithValidateOnMigrate(v bool) Option {
	return func(c *Configuration) { c.ValidateOnMigrate = v }
}

// WithCleanOnValidationError controls whether a validation failure
// during migrate triggers clean instead of propagating.
func WithCleanOnValidationError(v bool) Option {
	return func(c *Configuration) { c.CleanOnValidationError = v }
}

// WithCleanDisabled disables the clean command entirely.
func WithCleanDisabled(v bool) Option {
	return func(c *Configuration) { c.CleanDisabled = v }
}

// WithBaseline sets the baseline version/description used by the
// baseline command and by baseline-on-migrate.
func WithBaseline(version VersionKey, description string) Option {
	return func(c *Configuration) {
		c.BaselineVersion = version
		c.BaselineDescription = description
	}
}

// WithBaselineOnMigrate enables auto-baselining a non-empty database
// with no metadata on migrate.
func WithBaselineOnMigrate(v bool) Option {
	return func(c *Configuration) { c.BaselineOnMigrate = v }
}

// WithAllowMixed controls whether a migration script may mix
// transactional and non-transactional statements. Recognized for
// configuration compatibility; see DESIGN.md for why no component
// currently enforces it.
func WithAllowMixed(v bool) Option {
	return func(c *Configuration) { c.AllowMixed = v }
}

// WithSkipDefaultCallbacks disables the default LoggingCallback.
func WithSkipDefaultCallbacks(v bool) Option {
	return func(c *Configuration) { c.SkipDefaultCallbacks = v }
}

// WithSkipDefaultResolvers disables the built-in file resolvers.
func WithSkipDefaultResolvers(v bool) Option {
	return func(c *Configuration) { c.SkipDefaultResolvers = v }
}

// WithCustomResolvers appends user-supplied resolvers, run in addition
// to (or, with WithSkipDefaultResolvers, instead of) the file resolvers.
func WithCustomResolvers(resolvers ...Resolver) Option {
	return func(c *Configuration) { c.CustomResolvers = resolvers }
}

// WithCustomCallbacks appends user-supplied callbacks, run after the
// default LoggingCallback.
func WithCustomCallbacks(callbacks ...Callback) Option {
	return func(c *Configuration) { c.CustomCallbacks = callbacks }
}

// WithInstalledByOverride fixes the InstalledBy value stamped on every
// AppliedEntry, bypassing OS-user resolution.
func WithInstalledByOverride(v string) Option {
	return func(c *Configuration) { c.InstalledByOverride = v }
}

// WithLockTimeoutSeconds records a lock timeout in the Configuration.
// No component reads it: MetadataStore.Lock takes no timeout, the
// Postgres backend waits in pg_advisory_lock until ctx ends, and
// memstore fails at once with KindLockTimeout when the lock is held.
func WithLockTimeoutSeconds(seconds int) Option {
	return func(c *Configuration) { c.LockTimeoutSeconds = seconds }
}

// WithEncoding sets the encoding migration files are read with.
func WithEncoding(encoding string) Option {
	return func(c *Configuration) { c.Encoding = encoding }
}

func defaultConfiguration() Configuration {
	baselineVersion, _ := ParseVersion("1")
	return Configuration{
		Encoding:            "UTF-8",
		MetadataTable:       "migrex_schema_history",
		Target:              Latest,
		VersionedPrefix:     "V",
		RepeatablePrefix:    "R",
		Separator:           "__",
		VersionedSuffix:     ".sql",
		RepeatableSuffix:    ".sql",
		IgnoreFuture:        true,
		ValidateOnMigrate:   true,
		BaselineVersion:     baselineVersion,
		BaselineDescription: "<< Baseline >>",
	}
}

// NewConfiguration builds a Configuration from defaults plus the given
// options, applied in order, then validates it. An empty Separator is
// rejected as KindInvalidConfig.
func NewConfiguration(opts ...Option) (Configuration, error) {
	cfg := defaultConfiguration()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return Configuration{}, err
	}
	return cfg, nil
}

func (c Configuration) validate() error {
	if c.Separator == "" {
		return newErr(KindInvalidConfig, "separator must be non-empty")
	}
	if c.MetadataTable == "" {
		return newErr(KindInvalidConfig, "metadata_table must be non-empty")
	}
	if c.VersionedPrefix == "" {
		return newErr(KindInvalidConfig, "versioned_prefix must be non-empty")
	}
	if c.RepeatablePrefix == "" {
		return newErr(KindInvalidConfig, "repeatable_prefix must be non-empty")
	}
	if c.VersionedPrefix == c.RepeatablePrefix {
		return newErr(KindInvalidConfig, "versioned_prefix and repeatable_prefix must differ")
	}
	if !c.SkipDefaultResolvers && len(c.Locations) == 0 {
		return newErr(KindInvalidConfig, "locations must be non-empty unless skip_default_resolvers is set")
	}
	return nil
}
