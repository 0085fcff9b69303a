package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"regexp"
	"slices"
	"strconv"
	"strings"

	syndication "github.com/goliatone/go-syndication"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	// SourceLabel is the label passed to every RegisterFunc call.
	SourceLabel = "go-syndication"

	rootPath = "data/sql/migrations"
)

// migrationFile matches 00001_syndication_core.up.sql and its down twin.
var migrationFile = regexp.MustCompile(`^(\d{5})_syndication_([a-z0-9_]+)\.(up|down)\.sql$`)

// FilesystemSpec is one dialect's migration directory.
type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
	// Migrations lists the versioned names without direction, in order.
	Migrations []string
}

type Registration struct {
	ValidationTargets []string
	Filesystems       []FilesystemSpec
}

type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*options)

type options struct {
	targets []string
	source  fs.FS
}

// WithValidationTargets limits registration to the given dialects.
func WithValidationTargets(targets ...string) Option {
	return func(o *options) {
		next := make([]string, 0, len(targets))
		for _, target := range targets {
			trimmed := strings.TrimSpace(strings.ToLower(target))
			if trimmed != "" && !slices.Contains(next, trimmed) {
				next = append(next, trimmed)
			}
		}
		if len(next) > 0 {
			o.targets = next
		}
	}
}

// WithSource replaces the embedded migration tree.
func WithSource(source fs.FS) Option {
	return func(o *options) {
		if source != nil {
			o.source = source
		}
	}
}

// Filesystems resolves the postgres and sqlite migration directories and
// checks that both ship the same ordered set of up/down pairs.
func Filesystems(sources ...fs.FS) ([]FilesystemSpec, error) {
	root := syndication.GetMigrationsFS()
	if len(sources) > 0 && sources[0] != nil {
		root = sources[0]
	}

	base, err := fs.Sub(root, rootPath)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", rootPath, err)
	}
	sqliteFS, err := fs.Sub(base, DialectSQLite)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite filesystem: %w", err)
	}

	filesystems := []FilesystemSpec{
		{Dialect: DialectPostgres, Path: rootPath, FS: base},
		{Dialect: DialectSQLite, Path: rootPath + "/" + DialectSQLite, FS: sqliteFS},
	}
	for i := range filesystems {
		names, err := migrationSet(filesystems[i].FS)
		if err != nil {
			return nil, fmt.Errorf("migrations: %s (%s): %w", filesystems[i].Dialect, filesystems[i].Path, err)
		}
		filesystems[i].Migrations = names
	}

	postgres, sqlite := filesystems[0].Migrations, filesystems[1].Migrations
	if !slices.Equal(postgres, sqlite) {
		return nil, fmt.Errorf("migrations: dialects diverge: postgres %v, sqlite %v", postgres, sqlite)
	}
	return filesystems, nil
}

// migrationSet returns the migration names in fsys, requiring an up and a
// down file for each and versions numbered 1..n without gaps.
func migrationSet(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}
	directions := map[string][]string{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		match := migrationFile.FindStringSubmatch(entry.Name())
		if match == nil {
			return nil, fmt.Errorf("unexpected migration file %q", entry.Name())
		}
		name := match[1] + "_syndication_" + match[2]
		directions[name] = append(directions[name], match[3])
	}
	if len(directions) == 0 {
		return nil, fmt.Errorf("no syndication migrations found")
	}

	names := make([]string, 0, len(directions))
	for name := range directions {
		names = append(names, name)
	}
	slices.Sort(names)

	for i, name := range names {
		version, _ := strconv.Atoi(name[:5])
		if version != i+1 {
			return nil, fmt.Errorf("migration %s out of sequence, expected version %05d", name, i+1)
		}
		got := directions[name]
		if !slices.Contains(got, "up") {
			return nil, fmt.Errorf("migration %s has no up file", name)
		}
		if !slices.Contains(got, "down") {
			return nil, fmt.Errorf("migration %s has no down file", name)
		}
	}
	return names, nil
}

// Register validates the migration tree and hands each targeted dialect
// directory to registerFn.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	cfg := options{targets: []string{DialectPostgres, DialectSQLite}}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	reg := Registration{ValidationTargets: cfg.targets}
	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}

	filesystems, err := Filesystems(cfg.source)
	if err != nil {
		return reg, err
	}
	reg.Filesystems = filesystems

	for _, target := range reg.ValidationTargets {
		if target != DialectPostgres && target != DialectSQLite {
			return reg, fmt.Errorf("migrations: unsupported dialect %q", target)
		}
	}
	for _, fsys := range reg.Filesystems {
		if !slices.Contains(reg.ValidationTargets, fsys.Dialect) {
			continue
		}
		if err := registerFn(ctx, fsys.Dialect, SourceLabel, fsys.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s (%s): %w", fsys.Dialect, fsys.Path, err)
		}
	}
	return reg, nil
}
