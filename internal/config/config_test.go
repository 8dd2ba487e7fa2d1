package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromContext_NilWhenUnset(t *testing.T) {
	require.Nil(t, FromContext(context.Background()))
}

func TestWithContext_RoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DBURL = "postgres://localhost/planetchat"
	ctx := WithContext(context.Background(), &cfg)
	require.Same(t, &cfg, FromContext(ctx))
}

func TestDefaultConfig_PageSizes(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 50, cfg.PageSizeDefault)
	require.Equal(t, 200, cfg.PageSizeMax)
	require.Greater(t, cfg.PageSizeMax, cfg.PageSizeDefault)
}
