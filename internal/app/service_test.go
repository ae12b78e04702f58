package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamvault/streamvault-go/internal/config"
	"github.com/streamvault/streamvault-go/internal/logging"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Storage: config.StorageConfig{
			Paths: []config.StoragePathConfig{
				{Name: "primary", Root: dir, Enabled: true, Priority: 0},
			},
		},
		Recording: config.RecordingConfig{BaseDir: dir},
	}
}

func TestNewServiceWiresComponents(t *testing.T) {
	svc, err := NewService(testConfig(t), logging.NewLogger("test"))
	require.NoError(t, err)
	assert.NotNil(t, svc.Recovery)
	assert.NotNil(t, svc.Selector)
	assert.NotNil(t, svc.Rotation)
	assert.NotNil(t, svc.Health)
	assert.NotNil(t, svc.Streams)
	assert.Equal(t, 1, len(svc.Selector.Paths()))
}

func TestServiceStartStopWithNoStreams(t *testing.T) {
	svc, err := NewService(testConfig(t), logging.NewLogger("test"))
	require.NoError(t, err)

	require.NoError(t, svc.Start(context.Background()))
	require.Error(t, svc.Start(context.Background()), "starting twice must fail")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, svc.Stop(ctx))
	require.Error(t, svc.Stop(ctx), "stopping twice must fail")
}
