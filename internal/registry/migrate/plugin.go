package migrate

import (
	"context"
	"fmt"
	"sort"

	"github.com/charmbracelet/log"
)

// Migrator applies one plugin's schema migrations.
type Migrator interface {
	Name() string
	Migrate(ctx context.Context) error
}

// Plugin wraps a Migrator with an order so store schemas land before
// anything that depends on them.
type Plugin struct {
	Order    int
	Migrator Migrator
}

var plugins []Plugin

// Register adds a migration plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// RunAll executes every registered migrator in order. Stops at the first
// failure so a half-migrated schema is never served.
func RunAll(ctx context.Context) error {
	ordered := make([]Plugin, len(plugins))
	copy(ordered, plugins)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	for _, p := range ordered {
		log.Debug("running migration", "name", p.Migrator.Name())
		if err := p.Migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("migration %s failed: %w", p.Migrator.Name(), err)
		}
	}
	return nil
}
