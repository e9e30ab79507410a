package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"
)

// SourceDir is where new migration files are written during development.
const SourceDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Schema returns the marketplace migrations compiled into the binary.
func Schema() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(fmt.Sprintf("migrate: embedded schema: %v", err))
	}
	return sub
}

// Step is one migration applied or rolled back by a Migrator call.
type Step struct {
	Version   int64
	File      string
	Direction string
	Duration  time.Duration
}

// State describes whether a migration has been applied to the database.
type State struct {
	Version   int64
	File      string
	Applied   bool
	AppliedAt time.Time
}

// Migrator moves a Postgres database along the marketplace schema.
type Migrator struct {
	provider *goose.Provider
}

// New builds a Migrator over schema, defaulting to the embedded migrations.
func New(db *sql.DB, schema fs.FS) (*Migrator, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if schema == nil {
		schema = Schema()
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, schema)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Migrator{provider: provider}, nil
}

// Up applies every pending migration.
func (m *Migrator) Up(ctx context.Context) ([]Step, error) {
	results, err := m.provider.Up(ctx)
	if err != nil {
		return steps(results), fmt.Errorf("goose up: %w", err)
	}
	return steps(results), nil
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context) (*Step, error) {
	result, err := m.provider.Down(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose down: %w", err)
	}
	if result == nil {
		return nil, nil
	}
	out := steps([]*goose.MigrationResult{result})
	return &out[0], nil
}

// Version reports the highest applied migration version.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	version, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("goose version: %w", err)
	}
	return version, nil
}

// Status lists every known migration and whether it is applied.
func (m *Migrator) Status(ctx context.Context) ([]State, error) {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose status: %w", err)
	}
	out := make([]State, 0, len(statuses))
	for _, st := range statuses {
		if st == nil || st.Source == nil {
			continue
		}
		out = append(out, State{
			Version:   st.Source.Version,
			File:      st.Source.Path,
			Applied:   st.State == goose.StateApplied,
			AppliedAt: st.AppliedAt,
		})
	}
	return out, nil
}

// To moves the schema up or down until target is the current version.
func (m *Migrator) To(ctx context.Context, target int64) ([]Step, error) {
	current, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	switch {
	case current == target:
		return nil, nil
	case current < target:
		results, err := m.provider.UpTo(ctx, target)
		if err != nil {
			return steps(results), fmt.Errorf("goose up-to %d: %w", target, err)
		}
		return steps(results), nil
	default:
		results, err := m.provider.DownTo(ctx, target)
		if err != nil {
			return steps(results), fmt.Errorf("goose down-to %d: %w", target, err)
		}
		return steps(results), nil
	}
}

func steps(results []*goose.MigrationResult) []Step {
	out := make([]Step, 0, len(results))
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		out = append(out, Step{
			Version:   res.Source.Version,
			File:      res.Source.Path,
			Direction: res.Direction,
			Duration:  res.Duration,
		})
	}
	return out
}
