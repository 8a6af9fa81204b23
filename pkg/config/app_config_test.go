package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestAppConfig(t *testing.T) *AppConfig {
	t.Helper()
	t.Setenv("FORGE_HOME", t.TempDir())
	conf, err := NewAppConfig("forge", "v0.0.0-test", "deadbeef", "2026-07-29", "source", false, t.TempDir())
	require.NoError(t, err)
	return conf
}

func TestNewAppConfigAppliesBuiltInDefaults(t *testing.T) {
	conf := newTestAppConfig(t)
	require.Equal(t, "dev", conf.UserConfig.Build.Profile)
	require.Equal(t, 3, conf.UserConfig.Net.RetryCount)
}

func TestFORGE_TARGET_DIROverridesBuildConfig(t *testing.T) {
	t.Setenv("FORGE_HOME", t.TempDir())
	t.Setenv("FORGE_TARGET_DIR", "/tmp/custom-target")
	conf, err := NewAppConfig("forge", "v0.0.0-test", "", "", "", false, t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "/tmp/custom-target", conf.UserConfig.Build.TargetDir)
}

func TestFORGE_INCREMENTALOverrideParsesBooleanish(t *testing.T) {
	t.Setenv("FORGE_HOME", t.TempDir())
	t.Setenv("FORGE_INCREMENTAL", "0")
	conf, err := NewAppConfig("forge", "", "", "", "", false, t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, conf.UserConfig.Build.Incremental)
	require.False(t, *conf.UserConfig.Build.Incremental)
}

func TestWritingToConfigFilePersistsAcrossLoads(t *testing.T) {
	conf := newTestAppConfig(t)

	err := conf.WriteToUserConfig(func(uc *UserConfig) error {
		uc.Build.Jobs = 4
		return nil
	})
	require.NoError(t, err)

	reloaded, err := loadUserConfig(conf.ConfigDir, &UserConfig{})
	require.NoError(t, err)
	require.Equal(t, 4, reloaded.Build.Jobs)
}
