package natsclient

import (
	"testing"

	"github.com/sifan077/linkgate/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// unreachable points at a port nothing listens on.
var unreachable = config.NATSConfig{Host: "127.0.0.1", Port: 1}

func TestURL(t *testing.T) {
	assert.Equal(t, "nats://localhost:4222", URL(config.NATSConfig{}))
	assert.Equal(t, "nats://bus:5222", URL(config.NATSConfig{Host: "bus", Port: 5222}))
}

func TestConnectOptional_ToleratesOutageWithoutExport(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)

	conn, js, err := ConnectOptional(unreachable, zap.New(core))
	require.NoError(t, err)
	assert.Nil(t, conn)
	assert.Nil(t, js)
	assert.Equal(t, 1, logs.FilterMessage("NATS unavailable, cache invalidation events disabled").Len())
}

func TestConnectOptional_RequiresNATSWhenExporting(t *testing.T) {
	cfg := unreachable
	cfg.ExportClicks = true

	conn, js, err := ConnectOptional(cfg, nil)
	require.Error(t, err)
	assert.Nil(t, conn)
	assert.Nil(t, js)
}
