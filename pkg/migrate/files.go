package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var (
	migrationNameRe = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)
	unsafeNameRe    = regexp.MustCompile(`[^a-z0-9]+`)
)

const sqlTemplate = `-- +goose Up
-- +goose StatementBegin
-- %[1]s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- rollback %[1]s
-- +goose StatementEnd
`

// slug turns a free-form migration name into its file suffix: "Add Order Notes!" -> "add_order_notes".
func slug(name string) string {
	return strings.Trim(unsafeNameRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
}

// CreateSQLMigration writes <dir>/<YYYYMMDDHHMMSS>_<slug>.sql with empty up and down sections.
func CreateSQLMigration(dir string, name string) (string, error) {
	if dir == "" || strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("dir and name are required")
	}
	suffix := slug(name)
	if suffix == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %q: %w", dir, err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", time.Now().UTC().Format(versionLayout), suffix))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create migration %q: %w", path, err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, sqlTemplate, suffix); err != nil {
		return "", fmt.Errorf("write migration %q: %w", path, err)
	}
	return path, nil
}

// ValidateDir checks that every .sql file in dir is named <version>_<slug>.sql, that versions are
// unique, and that each file carries both goose sections.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read %q: %w", dir, err)
	}

	versions := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".sql" {
			continue
		}
		match := migrationNameRe.FindStringSubmatch(name)
		if match == nil {
			return fmt.Errorf("migration %q must be named YYYYMMDDHHMMSS_name.sql", name)
		}
		if _, err := time.Parse(versionLayout, match[1]); err != nil {
			return fmt.Errorf("migration %q has an invalid timestamp: %w", name, err)
		}
		if prev, dup := versions[match[1]]; dup {
			return fmt.Errorf("migrations %q and %q share version %s", prev, name, match[1])
		}
		versions[match[1]] = name

		body, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %q: %w", name, err)
		}
		for _, marker := range []string{"-- +goose Up", "-- +goose Down"} {
			if !strings.Contains(string(body), marker) {
				return fmt.Errorf("migration %q is missing %q", name, marker)
			}
		}
	}
	if len(versions) == 0 {
		return fmt.Errorf("no migrations in %q", dir)
	}
	return nil
}
