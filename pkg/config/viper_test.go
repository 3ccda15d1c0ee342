package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/JakeFAU/prerender/internal/config"
)

func TestNewViperFlagsOverrideFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "site.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 5000\noutput:\n  dir: build\n"), 0o600))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 4173, "")
	flags.Duration("settle-delay", 2*time.Second, "")
	flags.StringSlice("route", nil, "")
	require.NoError(t, flags.Parse([]string{"--port=6000", "--route=/", "--route=/pricing"}))

	v, used, err := NewViper(path, flags)
	require.NoError(t, err)
	assert.Equal(t, path, used)

	cfg, err := appconfig.FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 6000, cfg.Server.Port, "changed flag wins over file")
	assert.Equal(t, "build", cfg.Output.Dir, "file wins over default")
	assert.Equal(t, 2*time.Second, cfg.Browser.SettleDelay, "unchanged flag keeps default")
	assert.Equal(t, []string{"/", "/pricing"}, cfg.Routes)
}

func TestNewViperExplicitFileMustExist(t *testing.T) {
	t.Parallel()

	_, _, err := NewViper(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
}

func TestNewViperWithoutFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	v, used, err := NewViper("", nil)
	require.NoError(t, err)
	assert.Empty(t, used)

	cfg, err := appconfig.FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 4173, cfg.Server.Port)
}
