// Package config loads hub settings from a TOML file, environment
// variables, and CLI flags, in that increasing order of precedence, per
// the settings table. Grounded on the teacher's config.go for the
// validate-then-log shape (secrets redacted in the startup log line) and
// on dittofs's cobra+viper CLI wiring for the layering itself.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every layered setting the hub reads at startup.
type Config struct {
	DealerPort           int
	PubPort              int
	ServerDiscoveryPort  int
	ServerName           string
	EnableServerDiscovery bool
	AllowedAppIDs        []string

	BaseBroadcastInterval time.Duration
	IdleBroadcastInterval time.Duration
	DirtyThreshold        time.Duration

	ClientTimeout       time.Duration
	DeviceIDExpiryTime  time.Duration
	EmptyRoomExpiry     time.Duration

	NVFlushInterval    time.Duration
	NVMonitorThreshold int

	MaxGlobalVars       int
	MaxClientVars       int
	MaxVarNameLength    int
	MaxVarValueLength   int
	MaxVirtualTransforms int

	PubQueueMaxSize int
	DeltaRingSize   int

	DeviceIDCleanupInterval time.Duration

	RedisAddr     string
	RedisPassword string
	RedisEnabled  bool

	HandshakeRate      string
	DiscoveryProbeRate string

	RestBridgeAddr  string
	RestBridgeToken string

	LogLevel    string
	Development bool

	TracingOTLPEndpoint string
}

// defaults matches the §6.3 settings table.
func defaults() map[string]any {
	return map[string]any{
		"dealer_port":              5555,
		"pub_port":                 5556,
		"server_discovery_port":    9999,
		"server_name":              "STYLY-NetSync-Server",
		"enable_server_discovery":  true,
		"allowed_app_ids":          []string{},
		"base_broadcast_interval":  "0.1s",
		"idle_broadcast_interval":  "0.5s",
		"dirty_threshold":          "0.05s",
		"client_timeout":           "1s",
		"device_id_expiry_time":    "300s",
		"empty_room_expiry":        "86400s",
		"device_id_cleanup_interval": "60s",
		"nv_flush_interval":       "0.05s",
		"nv_monitor_threshold":    200,
		"max_global_vars":         100,
		"max_client_vars":         100,
		"max_var_name_length":     64,
		"max_var_value_length":    1024,
		"max_virtual_transforms":  50,
		"pub_queue_maxsize":       10000,
		"delta_ring_size":         10000,
		"redis_enabled":           false,
		"handshake_rate":          "10-S",
		"discovery_probe_rate":    "20-S",
		"rest_bridge_addr":        ":8090",
		"log_level":               "info",
		"development":             false,
	}
}

// Load layers defaults < TOML file (if present) < environment (NETSYNC_*)
// < already-bound CLI flags on v, and returns a validated Config.
func Load(v *viper.Viper, tomlPath string) (*Config, error) {
	for key, val := range defaults() {
		v.SetDefault(key, val)
	}

	if tomlPath != "" {
		v.SetConfigFile(tomlPath)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", tomlPath, err)
		}
	}

	v.SetEnvPrefix("NETSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		DealerPort:              v.GetInt("dealer_port"),
		PubPort:                 v.GetInt("pub_port"),
		ServerDiscoveryPort:     v.GetInt("server_discovery_port"),
		ServerName:              v.GetString("server_name"),
		EnableServerDiscovery:   v.GetBool("enable_server_discovery"),
		AllowedAppIDs:           v.GetStringSlice("allowed_app_ids"),
		BaseBroadcastInterval:   v.GetDuration("base_broadcast_interval"),
		IdleBroadcastInterval:   v.GetDuration("idle_broadcast_interval"),
		DirtyThreshold:          v.GetDuration("dirty_threshold"),
		ClientTimeout:           v.GetDuration("client_timeout"),
		DeviceIDExpiryTime:      v.GetDuration("device_id_expiry_time"),
		EmptyRoomExpiry:         v.GetDuration("empty_room_expiry"),
		DeviceIDCleanupInterval: v.GetDuration("device_id_cleanup_interval"),
		NVFlushInterval:         v.GetDuration("nv_flush_interval"),
		NVMonitorThreshold:      v.GetInt("nv_monitor_threshold"),
		MaxGlobalVars:           v.GetInt("max_global_vars"),
		MaxClientVars:           v.GetInt("max_client_vars"),
		MaxVarNameLength:        v.GetInt("max_var_name_length"),
		MaxVarValueLength:       v.GetInt("max_var_value_length"),
		MaxVirtualTransforms:    v.GetInt("max_virtual_transforms"),
		PubQueueMaxSize:         v.GetInt("pub_queue_maxsize"),
		DeltaRingSize:           v.GetInt("delta_ring_size"),
		RedisAddr:               v.GetString("redis_addr"),
		RedisPassword:           v.GetString("redis_password"),
		RedisEnabled:            v.GetBool("redis_enabled"),
		HandshakeRate:           v.GetString("handshake_rate"),
		DiscoveryProbeRate:      v.GetString("discovery_probe_rate"),
		RestBridgeAddr:          v.GetString("rest_bridge_addr"),
		RestBridgeToken:         v.GetString("rest_bridge_token"),
		LogLevel:                v.GetString("log_level"),
		Development:             v.GetBool("development"),
		TracingOTLPEndpoint:     v.GetString("tracing_otlp_endpoint"),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	var errs []string
	if cfg.DealerPort < 1 || cfg.DealerPort > 65535 {
		errs = append(errs, fmt.Sprintf("dealer_port must be a valid port (got %d)", cfg.DealerPort))
	}
	if cfg.PubPort < 1 || cfg.PubPort > 65535 {
		errs = append(errs, fmt.Sprintf("pub_port must be a valid port (got %d)", cfg.PubPort))
	}
	if cfg.ServerDiscoveryPort < 1 || cfg.ServerDiscoveryPort > 65535 {
		errs = append(errs, fmt.Sprintf("server_discovery_port must be a valid port (got %d)", cfg.ServerDiscoveryPort))
	}
	if cfg.RedisEnabled && cfg.RedisAddr == "" {
		errs = append(errs, "redis_addr is required when redis_enabled is true")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// RedactSecret shows only the first 8 characters of a secret, for logging.
func RedactSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}
