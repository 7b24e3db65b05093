// Package migrations embeds the schema scripts so the migrate command and
// integration tests apply the same SQL.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed *.sql
var files embed.FS

// Direction selects up or down scripts
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Script is one migration file
type Script struct {
	Name string
	SQL  string
}

// Scripts returns the scripts for d in execution order: ascending for up, descending for down
func Scripts(d Direction) ([]Script, error) {
	if d != Up && d != Down {
		return nil, fmt.Errorf("unknown migration direction %q", d)
	}

	names, err := fs.Glob(files, "*."+string(d)+".sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	if d == Down {
		sort.Sort(sort.Reverse(sort.StringSlice(names)))
	}

	scripts := make([]Script, 0, len(names))
	for _, name := range names {
		body, err := files.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		scripts = append(scripts, Script{Name: strings.TrimSuffix(name, ".sql"), SQL: string(body)})
	}
	return scripts, nil
}
