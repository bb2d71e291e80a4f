package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"HTTP_PORT", "GRPC_PORT", "CAPTURE_FPS", "CAPTURE_WINDOW", "CAPTURE_WINDOWS",
		"SCAN_DEFAULT_MODE", "SCAN_DEFAULT_SOURCE", "NATS_URL", "MQTT_BROKER", "MQTT_QOS",
		"SESSION_DATA_TTL_SECONDS", "STREAK_TIMEZONE", "REDIS_ADDR", "REDIS_DB",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg := Load()

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "50051", cfg.GRPCPort)
	assert.Equal(t, 30, cfg.CaptureFPS)
	assert.Equal(t, 5*time.Second, cfg.CaptureWindow)
	assert.Equal(t, 6, cfg.CaptureWindows)
	assert.Equal(t, "face", cfg.DefaultMode)
	assert.Empty(t, cfg.NATSURL)
	assert.Empty(t, cfg.MQTTBroker)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL())
	assert.Equal(t, time.UTC, cfg.Location())
	require.NoError(t, cfg.Validate())
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("CAPTURE_FPS", "60")
	t.Setenv("CAPTURE_WINDOW", "2500") // milliseconds
	t.Setenv("CAPTURE_WINDOWS", "4")
	t.Setenv("SCAN_DEFAULT_MODE", "fingertip")
	t.Setenv("POSTGRES_MIGRATE", "false")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("HEALTH_CHECK_INTERVAL", "30s")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := Load()

	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, 60, cfg.CaptureFPS)
	assert.Equal(t, 2500*time.Millisecond, cfg.CaptureWindow)
	assert.Equal(t, 4, cfg.CaptureWindows)
	assert.Equal(t, "fingertip", cfg.DefaultMode)
	assert.False(t, cfg.MigrateOnStart)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, 30*time.Second, cfg.HealthCheckInterval)
	assert.Equal(t, 0, cfg.RedisDB, "unparsable values fall back to the default")
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"fps", func(c *Config) { c.CaptureFPS = 0 }, "CAPTURE_FPS"},
		{"window", func(c *Config) { c.CaptureWindow = 100 * time.Millisecond }, "CAPTURE_WINDOW"},
		{"windows", func(c *Config) { c.CaptureWindows = 0 }, "CAPTURE_WINDOWS"},
		{"mode", func(c *Config) { c.DefaultMode = "thermal" }, "SCAN_DEFAULT_MODE"},
		{"source", func(c *Config) { c.DefaultSource = "usb" }, "SCAN_DEFAULT_SOURCE"},
		{"qos", func(c *Config) { c.MQTTQoS = 3 }, "MQTT_QOS"},
		{"ttl", func(c *Config) { c.SessionDataTTLSeconds = 0 }, "SESSION_DATA_TTL_SECONDS"},
		{"timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "STREAK_TIMEZONE"},
		{"redis", func(c *Config) { c.RedisAddr = "" }, "REDIS_ADDR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			cfg := Load()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	clearEnv(t)
	cfg := Load()
	cfg.CaptureFPS = -1
	cfg.MQTTQoS = 9

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CAPTURE_FPS")
	assert.Contains(t, err.Error(), "MQTT_QOS")
}
