package config

import (
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/xiaonanln/gostream/engine/gwlog"
)

func init() {
	SetConfigFile("../../gostream.ini.sample")
}

func TestLoad(t *testing.T) {
	config := Get()
	gwlog.Debugf("gostream config: \n%s", DumpPretty(config))
	if config == nil {
		t.FailNow()
	}
	if config.Server.ListenAddr == "" {
		t.Errorf("listen addr not found")
	}
	assert.Equal(t, 2, config.Streaming.StreamerThreadCount)
	assert.Equal(t, float32(150), config.Streaming.MigrationDistance)
	assert.Equal(t, 200*time.Millisecond, config.Streaming.ColShapeTickRate)
	assert.T(t, config.EventProtection.Enabled, "event protection should be enabled")
	assert.Equal(t, 5, config.EventProtection.CustomEventMax["chat_message"])
	assert.Equal(t, config, Get())
	assert.T(t, Reload() != config, "reload should re-read the file")
}

func TestLoadBytesDefaults(t *testing.T) {
	cfg, err := LoadBytes([]byte("[streaming]\nstreaming_distance = 250.5\n"))
	assert.Equal(t, nil, err)
	assert.Equal(t, float32(250.5), cfg.Streaming.StreamingDistance)
	assert.Equal(t, 128, cfg.Streaming.MaxStreamingVehicles)
	assert.Equal(t, 10*time.Second, cfg.RPC.Timeout)
	assert.Equal(t, 5*time.Second, cfg.EventProtection.CleanupInterval)
}

func TestLoadBytesErrors(t *testing.T) {
	_, err := LoadBytes([]byte("[streaming]\nbogus = 1\n"))
	assert.T(t, err != nil, "unknown key should fail")

	_, err = LoadBytes([]byte("[streaming]\nstreamer_thread_count = 0\n"))
	assert.T(t, err != nil, "zero workers should fail")

	_, err = LoadBytes([]byte("[rpc]\ntimeout_ms = -1\n"))
	assert.T(t, err != nil, "negative timeout should fail")
}
