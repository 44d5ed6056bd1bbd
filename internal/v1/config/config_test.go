package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func newTestViper() *viper.Viper {
	return viper.New()
}

func TestLoadAppliesDefaultsWithNoFileOrEnv(t *testing.T) {
	cfg, err := Load(newTestViper(), "")
	require.NoError(t, err)

	require.Equal(t, 5555, cfg.DealerPort)
	require.Equal(t, 5556, cfg.PubPort)
	require.Equal(t, 9999, cfg.ServerDiscoveryPort)
	require.Equal(t, "STYLY-NetSync-Server", cfg.ServerName)
	require.True(t, cfg.EnableServerDiscovery)
	require.Equal(t, 200, cfg.NVMonitorThreshold)
	require.Equal(t, "info", cfg.LogLevel)
	require.False(t, cfg.Development)
	require.False(t, cfg.RedisEnabled)
}

func TestLoadParsesDurationDefaults(t *testing.T) {
	cfg, err := Load(newTestViper(), "")
	require.NoError(t, err)

	require.Equal(t, 100*time.Millisecond, cfg.BaseBroadcastInterval)
	require.Equal(t, 500*time.Millisecond, cfg.IdleBroadcastInterval)
	require.Equal(t, 50*time.Millisecond, cfg.DirtyThreshold)
	require.Equal(t, time.Second, cfg.ClientTimeout)
	require.Equal(t, 300*time.Second, cfg.DeviceIDExpiryTime)
	require.Equal(t, 86400*time.Second, cfg.EmptyRoomExpiry)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	t.Setenv("NETSYNC_DEALER_PORT", "7000")
	t.Setenv("NETSYNC_SERVER_NAME", "custom-server")

	cfg, err := Load(newTestViper(), "")
	require.NoError(t, err)

	require.Equal(t, 7000, cfg.DealerPort)
	require.Equal(t, "custom-server", cfg.ServerName)
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	t.Setenv("NETSYNC_DEALER_PORT", "70000")

	_, err := Load(newTestViper(), "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "dealer_port")
}

func TestLoadRequiresRedisAddrWhenRedisEnabled(t *testing.T) {
	t.Setenv("NETSYNC_REDIS_ENABLED", "true")

	_, err := Load(newTestViper(), "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "redis_addr is required")
}

func TestLoadAcceptsRedisEnabledWithAddr(t *testing.T) {
	t.Setenv("NETSYNC_REDIS_ENABLED", "true")
	t.Setenv("NETSYNC_REDIS_ADDR", "localhost:6379")

	cfg, err := Load(newTestViper(), "")
	require.NoError(t, err)
	require.True(t, cfg.RedisEnabled)
	require.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestLoadReadsTOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/hub.toml"
	contents := "dealer_port = 6001\nserver_name = \"from-toml\"\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(newTestViper(), path)
	require.NoError(t, err)
	require.Equal(t, 6001, cfg.DealerPort)
	require.Equal(t, "from-toml", cfg.ServerName)
}

func TestLoadEnvOverridesTOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/hub.toml"
	require.NoError(t, os.WriteFile(path, []byte("dealer_port = 6001\n"), 0o600))
	t.Setenv("NETSYNC_DEALER_PORT", "6002")

	cfg, err := Load(newTestViper(), path)
	require.NoError(t, err)
	require.Equal(t, 6002, cfg.DealerPort)
}

func TestRedactSecret(t *testing.T) {
	tests := []struct {
		name     string
		secret   string
		expected string
	}{
		{"long secret", "this-is-a-very-long-secret-key", "this-is-***"},
		{"short secret", "short", "***"},
		{"exactly 8 chars", "12345678", "***"},
		{"9 chars", "123456789", "12345678***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, RedactSecret(tt.secret))
		})
	}
}
