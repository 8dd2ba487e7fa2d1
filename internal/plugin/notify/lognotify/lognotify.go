package lognotify

import (
	"context"

	"github.com/charmbracelet/log"
	registrynotify "github.com/planetrip/planet-chat/internal/registry/notify"
)

func init() {
	registrynotify.Register(registrynotify.Plugin{
		Name: "log",
		Loader: func(ctx context.Context) (registrynotify.Notifier, error) {
			return &logNotifier{}, nil
		},
	})
}

// logNotifier writes deliveries to the structured log. Useful in development
// and as the fallback when no push transport is configured.
type logNotifier struct{}

func (n *logNotifier) Notify(ctx context.Context, ev registrynotify.Event) error {
	log.Info("notify",
		"kind", ev.Kind,
		"planet", ev.PlanetID,
		"user", ev.UserID,
		"message", ev.MessageID)
	return nil
}

var _ registrynotify.Notifier = (*logNotifier)(nil)
