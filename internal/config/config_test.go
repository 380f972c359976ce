package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsInheritEverywhere(t *testing.T) {
	cfg := Default()
	require.Equal(t, Inherit, cfg.Stdio.Stdin.Kind)
	require.Equal(t, Inherit, cfg.Stdio.Stdout.Kind)
	require.Equal(t, Inherit, cfg.Stdio.Stderr.Kind)
}

func TestLoadEmptyDefaultsToInherit(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadMissingKeysDefaultToInherit(t *testing.T) {
	cfg, err := Load([]byte("stdio:\n  stdout:\n    file: out.txt\n"))
	require.NoError(t, err)
	require.Equal(t, Inherit, cfg.Stdio.Stdin.Kind)
	require.Equal(t, File, cfg.Stdio.Stdout.Kind)
	require.Equal(t, "out.txt", cfg.Stdio.Stdout.Path)
	require.Equal(t, Inherit, cfg.Stdio.Stderr.Kind)
}

func TestLoadBundleStdin(t *testing.T) {
	cfg, err := Load([]byte("stdio:\n  stdin:\n    bundle: data/stdin.txt\n"))
	require.NoError(t, err)
	require.Equal(t, Bundle, cfg.Stdio.Stdin.Kind)
	require.Equal(t, "data/stdin.txt", cfg.Stdio.Stdin.Path)
}

func TestLoadNullVariant(t *testing.T) {
	cfg, err := Load([]byte("stdio:\n  stdin: null\n  stdout: null\n"))
	require.NoError(t, err)
	require.Equal(t, Null, cfg.Stdio.Stdin.Kind)
	require.Equal(t, Null, cfg.Stdio.Stdout.Kind)
}

func TestLoadRejectsUnknownVariant(t *testing.T) {
	_, err := Load([]byte("stdio:\n  stdin: bogus\n"))
	require.Error(t, err)
}
