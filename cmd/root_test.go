package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projecteru2/vmsentinel/config"
)

func TestInitConfigAppliesFileKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"vm_name": "db01",
		"state_dir": "/srv/vmsentinel-state",
		"debounce_ms": 700,
		"delegated_cmd": ["systemctl", "stop", "db01-vm"]
	}`), 0o600))

	cfgFile = path
	t.Cleanup(func() { cfgFile = "" })

	require.NoError(t, initConfig(context.Background()))
	assert.Equal(t, "db01", conf.VMName)
	assert.Equal(t, "/srv/vmsentinel-state", conf.StateDir)
	assert.Equal(t, 700, conf.DebounceMS)
	assert.Equal(t, []string{"systemctl", "stop", "db01-vm"}, conf.DelegatedCmd)
	assert.Equal(t, config.DefaultConfig().RunDir, conf.RunDir, "unset keys keep their defaults")
}

func TestInitConfigAppliesEnv(t *testing.T) {
	t.Setenv("VMSENTINEL_VM_NAME", "envvm")
	t.Setenv("VMSENTINEL_DEBOUNCE_MS", "900")

	require.NoError(t, initConfig(context.Background()))
	assert.Equal(t, "envvm", conf.VMName)
	assert.Equal(t, 900, conf.DebounceMS)
}
