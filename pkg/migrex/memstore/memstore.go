// Package memstore is an in-memory MetadataStore + ScriptExecutor used
// by migrex's own tests and usable standalone for dry runs. It is
// grounded on the mutex-protected map store idiom of
// getpup-pupsourcing-orchestrator/store/memory, generalized from a
// worker/generation map pair to an append-only AppliedEntry log plus
// the schema/baseline marker fields a MetadataStore needs.
package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/cromanozero/migrex/pkg/migrex"
)

// Store is a thread-safe, in-memory MetadataStore.
type Store struct {
	mu sync.Mutex

	created bool
	entries []migrex.AppliedEntry
	rank    int64

	schemaMarker   bool
	schemaNames    []string
	baselineMarker *migrex.AppliedEntry

	lockHolder string
}

// New returns an empty Store.
func New() *Store {
	return &Store{}
}

func (s *Store) Exists(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created, nil
}

func (s *Store) CreateIfAbsent(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = true
	return nil
}

func (s *Store) UpgradeIfNecessary(ctx context.Context) (bool, error) {
	return false, nil
}

func (s *Store) Lock(ctx context.Context, action func(ctx context.Context) error) error {
	s.mu.Lock()
	if s.lockHolder != "" {
		s.mu.Unlock()
		return &migrex.Error{Kind: migrex.KindLockTimeout, Message: "store already locked"}
	}
	token := uuid.New().String()
	s.lockHolder = token
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.lockHolder = ""
		s.mu.Unlock()
	}()

	return action(ctx)
}

func (s *Store) AllApplied(ctx context.Context) ([]migrex.AppliedEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]migrex.AppliedEntry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

func (s *Store) Append(ctx context.Context, entry migrex.AppliedEntry) (migrex.AppliedEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.Kind == migrex.KindVersioned {
		for _, e := range s.entries {
			if e.Kind != migrex.KindVersioned || !e.Success {
				continue
			}
			ev, ed := e.Identity()
			nv, nd := entry.Identity()
			if migrex.Equal(ev, nv) && ed == nd {
				return migrex.AppliedEntry{}, &migrex.Error{Kind: migrex.KindConflict, Message: "migration already applied"}
			}
		}
	}

	s.rank++
	entry.InstallRank = s.rank
	s.entries = append(s.entries, entry)
	return entry, nil
}

func (s *Store) AddSchemaMarker(ctx context.Context, schemas []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemaMarker = true
	s.schemaNames = append(s.schemaNames, schemas...)
	return nil
}

func (s *Store) AddBaselineMarker(ctx context.Context, version migrex.VersionKey, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.baselineMarker != nil {
		return &migrex.Error{Kind: migrex.KindAlreadyBaselined, Message: "baseline marker already present"}
	}
	for _, e := range s.entries {
		if e.Success && e.Kind != migrex.KindBaseline {
			return &migrex.Error{Kind: migrex.KindNonEmptyHistory, Message: "history is not empty"}
		}
	}

	s.rank++
	marker := migrex.AppliedEntry{
		InstallRank: s.rank,
		Version:     version,
		Description: description,
		Kind:        migrex.KindBaseline,
		Success:     true,
	}
	s.entries = append(s.entries, marker)
	s.baselineMarker = &marker
	return nil
}

func (s *Store) RemoveFailed(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0:0]
	for _, e := range s.entries {
		if !e.Success {
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return nil
}

func (s *Store) UpdateChecksum(ctx context.Context, version migrex.VersionKey, description string, checksum int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		v, d := s.entries[i].Identity()
		if migrex.Equal(v, version) && d == description {
			cs := checksum
			s.entries[i].Checksum = &cs
		}
	}
	return nil
}

func (s *Store) ClearHistory(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = false
	s.entries = nil
	s.rank = 0
	s.schemaMarker = false
	s.schemaNames = nil
	s.baselineMarker = nil
	return nil
}

func (s *Store) SchemaMarkerSchemas(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.schemaNames))
	copy(out, s.schemaNames)
	return out, nil
}

func (s *Store) HasSchemaMarker(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schemaMarker, nil
}

func (s *Store) HasBaselineMarker(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baselineMarker != nil, nil
}

func (s *Store) HasAppliedMigrations(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.Success && e.Kind != migrex.KindBaseline && e.Kind != migrex.KindSchemaMarker {
			return true, nil
		}
	}
	return false, nil
}
