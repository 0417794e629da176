package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-msgbus/msgbus/pkg/msgbus/definition"
)

func TestLoadDefaultsWhenNothingConfigured(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"inprocess:bus"}, cfg.RouterAddresses)
	assert.Empty(t, cfg.RouterPassword)
	assert.Equal(t, definition.DefaultNoIDTimeout, cfg.NoIDTimeout)
	assert.Equal(t, definition.DefaultAliveNotifyPeriod, cfg.AliveNotifyPeriod)
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "msgbus.yaml")
	contents := `
msgbus:
  router:
    address:
      - "0.0.0.0:34912"
      - "ipc:/tmp/msgbus.sock"
    password: "hunter2"
  endpoint:
    no_id_timeout: 5s
    alive_notify_period: 45s
  bridge:
    mqtt_broker: "tcp://broker.local:1883"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"0.0.0.0:34912", "ipc:/tmp/msgbus.sock"}, cfg.RouterAddresses)
	assert.Equal(t, "hunter2", cfg.RouterPassword)
	assert.Equal(t, 5*time.Second, cfg.NoIDTimeout)
	assert.Equal(t, 45*time.Second, cfg.AliveNotifyPeriod)
	assert.Equal(t, "tcp://broker.local:1883", cfg.MQTTBroker)
}
