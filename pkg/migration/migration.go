// pkg/migration/migration.go
package migration

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	markerUp   = "-- +migrate Up"
	markerDown = "-- +migrate Down"

	// idLayout is the timestamp prefix of every migration file name.
	idLayout = "20060102150405"
)

// Migration is one migration discovered in the migration directory. Either
// the SQL sections or Go are set.
type Migration struct {
	ID   string
	Name string
	Path string
	Up   []string
	Down []string
	Go   GoMigration
}

// Kind reports "go" or "sql".
func (m Migration) Kind() string {
	if m.Go != nil {
		return "go"
	}
	return "sql"
}

// Status describes a migration relative to the history table.
type Status struct {
	ID        string
	Name      string
	Applied   bool
	AppliedAt time.Time
	// Missing marks a history row whose migration file no longer exists.
	Missing bool
}

// splitName splits "20240102150405_add_users.sql" into its ID and name.
func splitName(file string) (id, name string, ok bool) {
	base := strings.TrimSuffix(file, filepath.Ext(file))
	id, name, _ = strings.Cut(base, "_")
	if len(id) != len(idLayout) {
		return "", "", false
	}
	if _, err := time.Parse(idLayout, id); err != nil {
		return "", "", false
	}
	return id, name, true
}

// load reads every .sql and .go migration in dir ordered by ID. A missing
// directory yields no migrations.
func load(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read migration directory '%s': %w", dir, err)
	}

	seen := make(map[string]string)
	var out []Migration
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".sql" && ext != ".go") || strings.HasSuffix(entry.Name(), "_test.go") {
			continue
		}
		id, name, ok := splitName(entry.Name())
		if !ok {
			continue
		}
		if prev, dup := seen[id]; dup {
			return nil, fmt.Errorf("duplicate migration ID %s ('%s' and '%s')", id, prev, entry.Name())
		}
		seen[id] = entry.Name()

		m := Migration{ID: id, Name: name, Path: filepath.Join(dir, entry.Name())}
		if ext == ".go" {
			gm, found := getGoMigration(id)
			if !found {
				return nil, fmt.Errorf("migration %s: no Go migration registered for '%s'", id, entry.Name())
			}
			m.Go = gm
		} else {
			content, err := os.ReadFile(m.Path)
			if err != nil {
				return nil, fmt.Errorf("failed to read migration file '%s': %w", m.Path, err)
			}
			if m.Up, m.Down, err = parseSQL(string(content)); err != nil {
				return nil, fmt.Errorf("migration %s: %w", id, err)
			}
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// parseSQL splits a migration file into the statements of its Up and Down
// sections.
func parseSQL(content string) (up, down []string, err error) {
	var section *[]string
	var found bool
	var b strings.Builder
	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" && section != nil {
			*section = append(*section, s)
		}
		b.Reset()
	}
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, markerUp):
			flush()
			section, found = &up, true
			continue
		case strings.HasPrefix(trimmed, markerDown):
			flush()
			section = &down
			continue
		case trimmed == "" || strings.HasPrefix(trimmed, "--"):
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
		// Statements end at a semicolon closing a line.
		if strings.HasSuffix(trimmed, ";") {
			flush()
		}
	}
	flush()
	if !found {
		return nil, nil, fmt.Errorf("missing '%s' marker", markerUp)
	}
	return up, down, nil
}
