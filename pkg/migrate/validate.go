package migrate

import (
	"fmt"
	"io/fs"
	"regexp"
	"strings"

	"go.uber.org/multierr"
)

const versionLayout = "20060102150405"

var fileNameRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// Lint checks every .sql file in schema for a versioned name, a unique
// version and both goose Up and Down sections. All problems are reported.
func Lint(schema fs.FS) error {
	entries, err := fs.ReadDir(schema, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	var errs error
	versions := make(map[string]string, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		match := fileNameRe.FindStringSubmatch(name)
		if match == nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: expected <%s>_<name>.sql", name, versionLayout))
			continue
		}
		if other, dup := versions[match[1]]; dup {
			errs = multierr.Append(errs, fmt.Errorf("%s: version %s already used by %s", name, match[1], other))
		}
		versions[match[1]] = name

		body, err := fs.ReadFile(schema, name)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		up := strings.Index(string(body), "-- +goose Up")
		down := strings.Index(string(body), "-- +goose Down")
		switch {
		case up < 0:
			errs = multierr.Append(errs, fmt.Errorf("%s: missing -- +goose Up", name))
		case down < 0:
			errs = multierr.Append(errs, fmt.Errorf("%s: missing -- +goose Down", name))
		case down < up:
			errs = multierr.Append(errs, fmt.Errorf("%s: Down section precedes Up", name))
		}
	}
	return errs
}
