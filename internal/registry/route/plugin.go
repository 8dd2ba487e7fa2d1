package route

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gin-gonic/gin"
)

// RouterLoader initializes routes on the gin engine.
type RouterLoader func(r *gin.Engine) error

// RouteType distinguishes which listener a plugin's routes belong to.
type RouteType int

const (
	// RouteTypeMain registers routes on the main API listener.
	RouteTypeMain RouteType = iota
	// RouteTypeManagement registers routes on the management listener
	// (health, readiness, metrics). Without a dedicated management port
	// they are mounted on the main listener instead.
	RouteTypeManagement
)

// Plugin wraps a RouterLoader with an order for a deterministic mount
// sequence.
type Plugin struct {
	Order  int
	Type   RouteType
	Loader RouterLoader
}

var (
	plugins  []Plugin
	sortOnce sync.Once
)

// Register adds a route plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

func byOrder() []Plugin {
	sortOnce.Do(func() {
		sort.Slice(plugins, func(i, j int) bool { return plugins[i].Order < plugins[j].Order })
	})
	return plugins
}

// Mount runs every registered loader of the given type against the engine,
// in order.
func Mount(r *gin.Engine, t RouteType) error {
	for _, p := range byOrder() {
		if p.Type != t {
			continue
		}
		if err := p.Loader(r); err != nil {
			return fmt.Errorf("failed to mount routes: %w", err)
		}
	}
	return nil
}
