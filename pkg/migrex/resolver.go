package migrex

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

// Resolver enumerates available migration descriptors from one
// source. The file resolvers built into migrex and any
// CustomResolvers configured by the caller all implement this.
type Resolver interface {
	Resolve(ctx context.Context) ([]MigrationDescriptor, error)
}

// CompositeResolver merges the output of the default file resolvers
// (unless skipped) with any custom resolvers, then checks for
// duplicate identities across all of them.
type CompositeResolver struct {
	resolvers []Resolver
}

// NewCompositeResolver builds the merged resolver per cfg: the built-in
// file resolvers (one per kind) unless SkipDefaultResolvers, then
// cfg.CustomResolvers in order.
func NewCompositeResolver(cfg Configuration) *CompositeResolver {
	var resolvers []Resolver
	if !cfg.SkipDefaultResolvers {
		for _, loc := range cfg.Locations {
			resolvers = append(resolvers,
				&FileResolver{Location: loc, Config: cfg, Kind: KindVersioned},
				&FileResolver{Location: loc, Config: cfg, Kind: KindRepeatable},
			)
		}
	}
	resolvers = append(resolvers, cfg.CustomResolvers...)
	return &CompositeResolver{resolvers: resolvers}
}

// Resolve runs every constituent resolver, merges their output, sorts
// it VERSIONED-ascending then REPEATABLE-ascending-by-description, and
// fails on duplicate identities.
func (c *CompositeResolver) Resolve(ctx context.Context) ([]MigrationDescriptor, error) {
	var all []MigrationDescriptor
	for _, r := range c.resolvers {
		descs, err := r.Resolve(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, descs...)
	}

	seen := make(map[string]MigrationDescriptor, len(all))
	for _, d := range all {
		v, desc := d.Identity()
		key := string(d.Kind) + "|" + v.String() + "|" + desc
		if _, dup := seen[key]; dup {
			return nil, newErr(KindDuplicateMigration, "duplicate migration %s %q", d.Kind, desc)
		}
		seen[key] = d
	}

	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		aRepeatable := a.Kind == KindRepeatable
		bRepeatable := b.Kind == KindRepeatable
		if aRepeatable != bRepeatable {
			return !aRepeatable // VERSIONED before REPEATABLE
		}
		if aRepeatable {
			return a.Description < b.Description
		}
		return Compare(a.Version, b.Version) < 0
	})

	return all, nil
}

// FileResolver scans a single location for scripts of one Kind,
// matching the configured prefix/separator/suffix grammar.
//
// Location syntax is "[<scheme>:]<path>"; the "filesystem" scheme (and
// the absence of a scheme) reads path as a directory on the local
// filesystem. The "classpath" scheme is accepted for configuration
// compatibility but, with no JVM classpath equivalent in Go, is
// resolved the same way as "filesystem" — relative to the process's
// working directory.
type FileResolver struct {
	Location string
	Config   Configuration
	Kind     MigrationKind
}

// Resolve читает директорию и парсит файлы в дескрипторы миграций.
// Вход: ctx (не используется для локальной файловой системы), f.Location.
// Выход: список MigrationDescriptor или error при IO/валидации имени.
// Назначение: получить детерминированный список файлов для Migrate/Info.
// Resolve reads the directory and parses its files into descriptors.
// Input: ctx (unused for the local filesystem), f.Location.
// Output: a list of MigrationDescriptor, or error on IO/name validation.
// Purpose: produce a deterministic file list for Migrate/Info.
func (f *FileResolver) Resolve(ctx context.Context) ([]MigrationDescriptor, error) {
	_, path := parseLocation(f.Location)

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, wrapErr(KindLocationUnreadable, err, "cannot read location %q", f.Location)
	}

	pattern, err := f.buildPattern()
	if err != nil {
		return nil, err
	}

	var descs []MigrationDescriptor
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		desc, matched, err := f.parseFilename(entry.Name(), pattern)
		if err != nil {
			return nil, err
		}
		if !matched {
			continue
		}
		desc.PhysicalLocation = path + "/" + entry.Name()
		descs = append(descs, desc)
	}
	return descs, nil
}

func (f *FileResolver) buildPattern() (*regexp.Regexp, error) {
	sep := regexp.QuoteMeta(f.Config.Separator)
	switch f.Kind {
	case KindVersioned:
		prefix := regexp.QuoteMeta(f.Config.VersionedPrefix)
		suffix := regexp.QuoteMeta(f.Config.VersionedSuffix)
		return regexp.Compile("^" + prefix + `([0-9][0-9.]*)` + sep + `(.+)` + suffix + "$")
	case KindRepeatable:
		prefix := regexp.QuoteMeta(f.Config.RepeatablePrefix)
		suffix := regexp.QuoteMeta(f.Config.RepeatableSuffix)
		return regexp.Compile("^" + prefix + sep + `(.+)` + suffix + "$")
	default:
		return nil, fmt.Errorf("file resolver does not support kind %s", f.Kind)
	}
}

func (f *FileResolver) parseFilename(name string, pattern *regexp.Regexp) (MigrationDescriptor, bool, error) {
	match := pattern.FindStringSubmatch(name)
	if match == nil {
		return MigrationDescriptor{}, false, nil
	}

	if f.Kind == KindVersioned {
		version, err := ParseVersion(match[1])
		if err != nil {
			return MigrationDescriptor{}, false, err
		}
		description := descriptionFromSegment(match[2])
		if description == "" {
			return MigrationDescriptor{}, false, newErr(KindInvalidDescription, "migration file %q has an empty description", name)
		}
		if strings.Contains(description, f.Config.Separator) {
			return MigrationDescriptor{}, false, newErr(KindInvalidDescription, "migration file %q description contains the separator", name)
		}
		return MigrationDescriptor{
			Version:     version,
			Description: description,
			Kind:        KindVersioned,
			ScriptID:    name,
		}, true, nil
	}

	description := descriptionFromSegment(match[1])
	if description == "" {
		return MigrationDescriptor{}, false, newErr(KindInvalidDescription, "migration file %q has an empty description", name)
	}
	return MigrationDescriptor{
		Version:     EmptyVersion,
		Description: description,
		Kind:        KindRepeatable,
		ScriptID:    name,
	}, true, nil
}

func descriptionFromSegment(segment string) string {
	return strings.ReplaceAll(segment, "_", " ")
}

func parseLocation(raw string) (scheme, path string) {
	if idx := strings.Index(raw, ":"); idx >= 0 {
		candidate := raw[:idx]
		if candidate == "classpath" || candidate == "filesystem" {
			return candidate, raw[idx+1:]
		}
	}
	return "filesystem", raw
}

// ReadScript reads the body of a resolved descriptor's script for
// checksum computation / execution, transcoding it from encoding to
// UTF-8 when encoding names anything other than UTF-8. Kept separate
// from FileResolver.Resolve so the scan step never needs the full file
// body.
func ReadScript(physicalLocation, encoding string) ([]byte, error) {
	body, err := os.ReadFile(physicalLocation)
	if err != nil {
		return nil, err
	}
	if encoding == "" || strings.EqualFold(encoding, "UTF-8") || strings.EqualFold(encoding, "UTF8") {
		return body, nil
	}
	enc, err := htmlindex.Get(encoding)
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding %q: %w", encoding, err)
	}
	return enc.NewDecoder().Bytes(body)
}
