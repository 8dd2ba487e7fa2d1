package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Event is a notification fanned out to planet members when a message
// arrives. Payload is small and JSON-serializable; delivery transports decide
// how much of it to surface.
type Event struct {
	Kind      string                 `json:"kind"`
	PlanetID  uuid.UUID              `json:"planetId"`
	UserID    int64                  `json:"userId"`
	MessageID int64                  `json:"messageId"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// Notifier delivers events to users. Implementations must be safe for
// concurrent use; delivery is best-effort and must not block message writes.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Loader creates a Notifier from config.
type Loader func(ctx context.Context) (Notifier, error)

// Plugin represents a notifier plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a notifier plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered notifier plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named notifier plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown notifier %q; valid: %v", name, Names())
}
