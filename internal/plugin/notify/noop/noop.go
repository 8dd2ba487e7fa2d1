package noop

import (
	"context"

	registrynotify "github.com/planetrip/planet-chat/internal/registry/notify"
)

func init() {
	registrynotify.Register(registrynotify.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (registrynotify.Notifier, error) {
			return &noopNotifier{}, nil
		},
	})
}

type noopNotifier struct{}

func (n *noopNotifier) Notify(ctx context.Context, ev registrynotify.Event) error {
	return nil
}

var _ registrynotify.Notifier = (*noopNotifier)(nil)
