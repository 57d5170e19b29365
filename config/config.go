package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	coretypes "github.com/projecteru2/core/types"
)

// Config holds global vmsentinel configuration. It is constructed once at
// startup and passed by value reference into every component constructor —
// nothing mutates it after the CLI layer finishes resolution.
type Config struct {
	// StateDir holds the presence flag and the status DB.
	StateDir string `json:"state_dir"`
	// RunDir holds instance locks, PID files and the STOP signal socket.
	RunDir string `json:"run_dir"`
	// LockDir is the hypervisor-owned directory that contains the lock
	// resource. Never created by vmsentinel; only observed.
	LockDir string `json:"lock_dir"`
	// VMName names the managed VM; it keys the flag, the lock resource and
	// the status record.
	VMName string `json:"vm_name"`

	// DebounceMS is the quiescence window: filesystem activity must be
	// silent this long before the lock resource is re-evaluated.
	DebounceMS int `json:"debounce_ms"`
	// HeartbeatSeconds is the watcher liveness log interval.
	HeartbeatSeconds int `json:"heartbeat_seconds"`
	// HoldRetrySeconds is the re-check interval while the lock directory
	// does not exist yet (storage not mounted, hypervisor not installed).
	HoldRetrySeconds int `json:"hold_retry_seconds"`

	// SignalName is the authoritative STOP signal name; aliases are extra
	// names kept for older external signalers. All resolve to one signal.
	SignalName    string   `json:"signal_name"`
	SignalAliases []string `json:"signal_aliases"`

	// Shutdown actors, each an argv array run with no stdin and a hard
	// per-actor timeout enforced by the guard.
	SmoothCmd               []string `json:"smooth_cmd"`
	SmoothTimeoutSeconds    int      `json:"smooth_timeout_seconds"`
	DelegatedCmd            []string `json:"delegated_cmd"`
	DelegatedTimeoutSeconds int      `json:"delegated_timeout_seconds"`
	FallbackCmd             []string `json:"fallback_cmd"`
	FallbackTimeoutSeconds  int      `json:"fallback_timeout_seconds"`

	// Log configuration, uses eru core's ServerLogConfig.
	Log coretypes.ServerLogConfig `json:"log"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		StateDir:                "/var/lib/vmsentinel",
		RunDir:                  "/run/vmsentinel",
		LockDir:                 "/var/run/hypervisor/locks",
		VMName:                  "primary",
		DebounceMS:              1500,
		HeartbeatSeconds:        60,
		HoldRetrySeconds:        30,
		SignalName:              "vmsentinel-stop",
		SignalAliases:           []string{"vmguard-stop"},
		SmoothTimeoutSeconds:    20,
		DelegatedTimeoutSeconds: 30,
		FallbackTimeoutSeconds:  20,
		Log: coretypes.ServerLogConfig{
			Level:      "info",
			MaxSize:    500,
			MaxAge:     28,
			MaxBackups: 3,
		},
	}
}

// LoadConfig loads configuration from file, falling back to defaults.
func LoadConfig(path string) (*Config, error) {
	conf := DefaultConfig()
	if path == "" {
		return conf, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // config path from CLI flag
	if err != nil {
		if os.IsNotExist(err) {
			return conf, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	conf.Normalize()
	return conf, nil
}

// Normalize resets non-positive timings and empty names back to defaults so a
// sparse config file cannot produce a zero debounce window or an unnamed signal.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.DebounceMS <= 0 {
		c.DebounceMS = def.DebounceMS
	}
	if c.HeartbeatSeconds <= 0 {
		c.HeartbeatSeconds = def.HeartbeatSeconds
	}
	if c.HoldRetrySeconds <= 0 {
		c.HoldRetrySeconds = def.HoldRetrySeconds
	}
	if c.SmoothTimeoutSeconds <= 0 {
		c.SmoothTimeoutSeconds = def.SmoothTimeoutSeconds
	}
	if c.DelegatedTimeoutSeconds <= 0 {
		c.DelegatedTimeoutSeconds = def.DelegatedTimeoutSeconds
	}
	if c.FallbackTimeoutSeconds <= 0 {
		c.FallbackTimeoutSeconds = def.FallbackTimeoutSeconds
	}
	if c.SignalName == "" {
		c.SignalName = def.SignalName
	}
	if c.VMName == "" {
		c.VMName = def.VMName
	}
}

// Validate rejects configs that cannot identify their VM or directories.
func (c *Config) Validate() error {
	if c.VMName == "" {
		return fmt.Errorf("vm_name must not be empty")
	}
	for name, dir := range map[string]string{
		"state_dir": c.StateDir,
		"run_dir":   c.RunDir,
		"lock_dir":  c.LockDir,
	} {
		if dir == "" {
			return fmt.Errorf("%s must not be empty", name)
		}
	}
	return nil
}

// EnsureDirs creates the directories vmsentinel owns. LockDir is deliberately
// excluded — it belongs to the hypervisor and its absence is handled by the
// watcher's HOLD state instead.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.StateDir, c.RunDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Durations.

func (c *Config) Debounce() time.Duration  { return time.Duration(c.DebounceMS) * time.Millisecond }
func (c *Config) Heartbeat() time.Duration { return time.Duration(c.HeartbeatSeconds) * time.Second }
func (c *Config) HoldRetry() time.Duration { return time.Duration(c.HoldRetrySeconds) * time.Second }
func (c *Config) SmoothTimeout() time.Duration {
	return time.Duration(c.SmoothTimeoutSeconds) * time.Second
}
func (c *Config) DelegatedTimeout() time.Duration {
	return time.Duration(c.DelegatedTimeoutSeconds) * time.Second
}
func (c *Config) FallbackTimeout() time.Duration {
	return time.Duration(c.FallbackTimeoutSeconds) * time.Second
}

// Paths.

// LockResourcePath is the hypervisor-owned directory whose existence means
// "VM is running". Observed only, never created or removed.
func (c *Config) LockResourcePath() string {
	return filepath.Join(c.LockDir, c.VMName+".lock")
}

// FlagPath is the presence flag: existence mirrors the lock resource.
func (c *Config) FlagPath() string {
	return filepath.Join(c.StateDir, c.VMName+"_running.flag")
}

// StatusDBPath and StatusLockPath locate the flock-protected status record DB.
func (c *Config) StatusDBPath() string   { return filepath.Join(c.StateDir, "status.json") }
func (c *Config) StatusLockPath() string { return filepath.Join(c.RunDir, "status.lock") }

// WatcherLockPath and GuardLockPath are the per-role instance locks.
func (c *Config) WatcherLockPath() string { return filepath.Join(c.RunDir, "watcher.lock") }
func (c *Config) GuardLockPath() string   { return filepath.Join(c.RunDir, "guard.lock") }

// WatcherPIDPath is where the watcher records its own PID for diagnostics.
func (c *Config) WatcherPIDPath() string { return filepath.Join(c.RunDir, "watcher.pid") }

// SignalPath is the authoritative STOP signal endpoint.
func (c *Config) SignalPath() string {
	return filepath.Join(c.RunDir, c.SignalName+".sock")
}

// SignalAliasPaths are the alias endpoints, all resolving to the same signal.
func (c *Config) SignalAliasPaths() []string {
	paths := make([]string, 0, len(c.SignalAliases))
	for _, alias := range c.SignalAliases {
		paths = append(paths, filepath.Join(c.RunDir, alias+".sock"))
	}
	return paths
}
