package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/HMasataka/clientserve/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func writeConfig(t *testing.T, data string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "clientserve.toml")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	baseDir := filepath.Join(t.TempDir(), "bin")

	t.Run("デフォルトのルートはプログラムディレクトリ基準", func(t *testing.T) {
		cfg, err := loadConfig(nil, envMap(nil), baseDir)
		require.NoError(t, err)

		assert.Equal(t, filepath.Join(filepath.Dir(baseDir), "client"), cfg.Static.Root)
		assert.Equal(t, config.DefaultAddr, cfg.Server.Addr)
		assert.True(t, cfg.Server.Debug)
	})

	t.Run("環境変数はファイルより優先", func(t *testing.T) {
		path := writeConfig(t, "[server]\naddr = \"0.0.0.0:8000\"\n")

		cfg, err := loadConfig([]string{"-config", path}, envMap(map[string]string{"LISTEN": "0.0.0.0:9000"}), baseDir)
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	})

	t.Run("フラグは環境変数より優先", func(t *testing.T) {
		path := writeConfig(t, "[server]\naddr = \"0.0.0.0:8000\"\ndebug = true\n")
		env := envMap(map[string]string{
			"LISTEN":      "0.0.0.0:9000",
			"STATIC_ROOT": "/srv/env",
			"DEBUG":       "true",
		})

		cfg, err := loadConfig([]string{"-config", path, "-addr", "127.0.0.1:7000", "-root", "/srv/flag", "-debug=false"}, env, baseDir)
		require.NoError(t, err)

		assert.Equal(t, "127.0.0.1:7000", cfg.Server.Addr)
		assert.Equal(t, "/srv/flag", cfg.Static.Root)
		assert.False(t, cfg.Server.Debug)
	})

	t.Run("指定しないフラグは下位の値を上書きしない", func(t *testing.T) {
		path := writeConfig(t, "[server]\ndebug = false\n\n[livereload]\nenabled = false\n")

		cfg, err := loadConfig([]string{"-config", path}, envMap(nil), baseDir)
		require.NoError(t, err)

		assert.False(t, cfg.Server.Debug)
		assert.False(t, cfg.LiveReload.Enabled)
	})

	t.Run("相対パスはプログラムディレクトリ基準で解決", func(t *testing.T) {
		env := envMap(map[string]string{"RECORDINGS_DIR": "recordings"})

		cfg, err := loadConfig([]string{"-root", "public"}, env, baseDir)
		require.NoError(t, err)

		assert.Equal(t, filepath.Join(baseDir, "public"), cfg.Static.Root)
		require.Len(t, cfg.Static.Mounts, 1)
		assert.Equal(t, config.RecordingsPrefix, cfg.Static.Mounts[0].Prefix)
		assert.Equal(t, filepath.Join(baseDir, "recordings"), cfg.Static.Mounts[0].Dir)
	})

	t.Run("不正な環境変数はエラー", func(t *testing.T) {
		_, err := loadConfig(nil, envMap(map[string]string{"DEBUG": "maybe"}), baseDir)

		assert.Error(t, err)
	})

	t.Run("未知のフラグはエラー", func(t *testing.T) {
		_, err := loadConfig([]string{"-port", "1"}, envMap(nil), baseDir)

		assert.Error(t, err)
	})
}

func TestIsTempDir(t *testing.T) {
	t.Run("一時ディレクトリ配下", func(t *testing.T) {
		dir, err := filepath.EvalSymlinks(t.TempDir())
		require.NoError(t, err)

		assert.True(t, isTempDir(dir))
	})

	t.Run("一時ディレクトリ外", func(t *testing.T) {
		assert.False(t, isTempDir("/nonexistent-clientserve/bin"))
	})
}
