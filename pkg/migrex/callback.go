package migrex

import "github.com/cromanozero/migrex/pkg/migrex/logging"

// Callback is the typed lifecycle event bus every engine command
// dispatches through. Implementations embed BaseCallback to get
// no-op defaults for hooks they don't care about.
type Callback interface {
	BeforeMigrate()
	AfterMigrate(applied int)
	BeforeEachMigrate(desc MigrationDescriptor)
	AfterEachMigrate(desc MigrationDescriptor, success bool)
	BeforeValidate()
	AfterValidate()
	BeforeInfo()
	AfterInfo()
	BeforeBaseline()
	AfterBaseline()
	BeforeClean()
	AfterClean()
	BeforeRepair()
	AfterRepair()
}

// ConfigAware is implemented by callbacks and resolvers that need the
// engine's Configuration. SetConfiguration is called once, at
// registration time, never per invocation — this is what resolves the
// engine↔callback cyclic reference into a one-way dependency.
type ConfigAware interface {
	SetConfiguration(cfg Configuration)
}

// BaseCallback is a no-op Callback. Embed it and override only the
// hooks you need.
type BaseCallback struct{}

func (BaseCallback) BeforeMigrate()                                     {}
func (BaseCallback) AfterMigrate(applied int)                           {}
func (BaseCallback) BeforeEachMigrate(desc MigrationDescriptor)         {}
func (BaseCallback) AfterEachMigrate(desc MigrationDescriptor, ok bool) {}
func (BaseCallback) BeforeValidate()                                    {}
func (BaseCallback) AfterValidate()                                     {}
func (BaseCallback) BeforeInfo()                                        {}
func (BaseCallback) AfterInfo()                                         {}
func (BaseCallback) BeforeBaseline()                                    {}
func (BaseCallback) AfterBaseline()                                     {}
func (BaseCallback) BeforeClean()                                       {}
func (BaseCallback) AfterClean()                                        {}
func (BaseCallback) BeforeRepair()                                      {}
func (BaseCallback) AfterRepair()                                       {}

// CallbackBus dispatches each lifecycle hook to every registered
// Callback in registration order. A callback that panics or whose
// hook method needs to fail should be expressed by recording an error
// reachable to the caller; the bus itself does not swallow panics.
type CallbackBus struct {
	callbacks []Callback
}

// NewCallbackBus builds the bus per cfg: a default LoggingCallback
// unless SkipDefaultCallbacks, then cfg.CustomCallbacks in order. Every
// ConfigAware callback receives cfg immediately.
func NewCallbackBus(cfg Configuration) *CallbackBus {
	var callbacks []Callback
	if !cfg.SkipDefaultCallbacks {
		callbacks = append(callbacks, &LoggingCallback{})
	}
	callbacks = append(callbacks, cfg.CustomCallbacks...)

	for _, cb := range callbacks {
		if aware, ok := cb.(ConfigAware); ok {
			aware.SetConfiguration(cfg)
		}
	}

	return &CallbackBus{callbacks: callbacks}
}

func (b *CallbackBus) BeforeMigrate() {
	for _, cb := range b.callbacks {
		cb.BeforeMigrate()
	}
}

func (b *CallbackBus) AfterMigrate(applied int) {
	for _, cb := range b.callbacks {
		cb.AfterMigrate(applied)
	}
}

func (b *CallbackBus) BeforeEachMigrate(desc MigrationDescriptor) {
	for _, cb := range b.callbacks {
		cb.BeforeEachMigrate(desc)
	}
}

func (b *CallbackBus) AfterEachMigrate(desc MigrationDescriptor, success bool) {
	for _, cb := range b.callbacks {
		cb.AfterEachMigrate(desc, success)
	}
}

func (b *CallbackBus) BeforeValidate() {
	for _, cb := range b.callbacks {
		cb.BeforeValidate()
	}
}

func (b *CallbackBus) AfterValidate() {
	for _, cb := range b.callbacks {
		cb.AfterValidate()
	}
}

func (b *CallbackBus) BeforeInfo() {
	for _, cb := range b.callbacks {
		cb.BeforeInfo()
	}
}

func (b *CallbackBus) AfterInfo() {
	for _, cb := range b.callbacks {
		cb.AfterInfo()
	}
}

func (b *CallbackBus) BeforeBaseline() {
	for _, cb := range b.callbacks {
		cb.BeforeBaseline()
	}
}

func (b *CallbackBus) AfterBaseline() {
	for _, cb := range b.callbacks {
		cb.AfterBaseline()
	}
}

func (b *CallbackBus) BeforeClean() {
	for _, cb := range b.callbacks {
		cb.BeforeClean()
	}
}

func (b *CallbackBus) AfterClean() {
	for _, cb := range b.callbacks {
		cb.AfterClean()
	}
}

func (b *CallbackBus) BeforeRepair() {
	for _, cb := range b.callbacks {
		cb.BeforeRepair()
	}
}

func (b *CallbackBus) AfterRepair() {
	for _, cb := range b.callbacks {
		cb.AfterRepair()
	}
}

// LoggingCallback is the default callback registered unless the
// engine is configured with SkipDefaultCallbacks. It logs each hook at
// INFO/DEBUG via pkg/migrex/logging, and a failed migration at ERROR.
type LoggingCallback struct {
	BaseCallback
	cfg Configuration
}

func (l *LoggingCallback) SetConfiguration(cfg Configuration) {
	l.cfg = cfg
}

func (l *LoggingCallback) BeforeMigrate() {
	logging.Infof("migrate: starting against table %s", l.cfg.MetadataTable)
}

func (l *LoggingCallback) AfterMigrate(applied int) {
	logging.Infof("migrate: applied %d migration(s)", applied)
}

func (l *LoggingCallback) BeforeEachMigrate(desc MigrationDescriptor) {
	logging.Debugf("migrate: applying %s %s", desc.Kind, desc.Description)
}

func (l *LoggingCallback) AfterEachMigrate(desc MigrationDescriptor, success bool) {
	if success {
		logging.Debugf("migrate: applied %s %s", desc.Kind, desc.Description)
		return
	}
	logging.Errorf("migrate: failed to apply %s %s", desc.Kind, desc.Description)
}

func (l *LoggingCallback) BeforeValidate() { logging.Debugf("validate: starting") }
func (l *LoggingCallback) AfterValidate()  { logging.Debugf("validate: done") }
func (l *LoggingCallback) BeforeInfo()     { logging.Debugf("info: starting") }
func (l *LoggingCallback) AfterInfo()      { logging.Debugf("info: done") }
func (l *LoggingCallback) BeforeBaseline() { logging.Infof("baseline: starting") }
func (l *LoggingCallback) AfterBaseline()  { logging.Infof("baseline: done") }
func (l *LoggingCallback) BeforeClean()    { logging.Infof("clean: starting") }
func (l *LoggingCallback) AfterClean()     { logging.Infof("clean: done") }
func (l *LoggingCallback) BeforeRepair()   { logging.Infof("repair: starting") }
func (l *LoggingCallback) AfterRepair()    { logging.Infof("repair: done") }
