package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/config"
)

type testConfig struct {
	URL     string        `env:"CFGTEST_URL" yaml:"url"`
	Timeout time.Duration `env:"CFGTEST_TIMEOUT" envDefault:"10s" yaml:"timeout"`
	Retries int           `env:"CFGTEST_RETRIES" envDefault:"3" yaml:"retries"`
	Tags    []string      `env:"CFGTEST_TAGS" envSeparator:"," yaml:"tags"`
}

type requiredConfig struct {
	Token string `env:"CFGTEST_REQUIRED,required"`
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		var cfg testConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, 10*time.Second, cfg.Timeout)
		assert.Equal(t, 3, cfg.Retries)
	})

	t.Run("environment values", func(t *testing.T) {
		t.Setenv("CFGTEST_URL", "http://example.test")
		t.Setenv("CFGTEST_TAGS", "a,b")
		var cfg testConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "http://example.test", cfg.URL)
		assert.Equal(t, []string{"a", "b"}, cfg.Tags)
	})

	t.Run("missing required", func(t *testing.T) {
		var cfg requiredConfig
		err := config.Load(&cfg)
		require.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("invalid value", func(t *testing.T) {
		t.Setenv("CFGTEST_TIMEOUT", "soon")
		var cfg testConfig
		require.ErrorIs(t, config.Load(&cfg), config.ErrParsingConfig)
	})

	t.Run("nil pointer", func(t *testing.T) {
		require.ErrorIs(t, config.Load[testConfig](nil), config.ErrNilPointer)
	})

	t.Run("must load panics", func(t *testing.T) {
		assert.Panics(t, func() {
			var cfg requiredConfig
			config.MustLoad(&cfg)
		})
	})
}

func TestLoadFile(t *testing.T) {
	t.Run("file overrides defaults", func(t *testing.T) {
		path := writeFile(t, "cfg.yaml", "url: http://file.test\nretries: 7\n")
		var cfg testConfig
		require.NoError(t, config.LoadFile(path, &cfg))
		assert.Equal(t, "http://file.test", cfg.URL)
		assert.Equal(t, 7, cfg.Retries)
		assert.Equal(t, 10*time.Second, cfg.Timeout)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("CFGTEST_RETRIES", "9")
		path := writeFile(t, "cfg.yaml", "url: http://file.test\nretries: 7\n")
		var cfg testConfig
		require.NoError(t, config.LoadFile(path, &cfg))
		assert.Equal(t, "http://file.test", cfg.URL)
		assert.Equal(t, 9, cfg.Retries)
	})

	t.Run("empty path", func(t *testing.T) {
		var cfg testConfig
		require.NoError(t, config.LoadFile("", &cfg))
		assert.Equal(t, 3, cfg.Retries)
	})

	t.Run("missing file", func(t *testing.T) {
		var cfg testConfig
		err := config.LoadFile(filepath.Join(t.TempDir(), "absent.yaml"), &cfg)
		require.ErrorIs(t, err, config.ErrReadingFile)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := writeFile(t, "cfg.yaml", "retries: [oops\n")
		var cfg testConfig
		require.ErrorIs(t, config.LoadFile(path, &cfg), config.ErrReadingFile)
	})
}

func TestLoadEnv(t *testing.T) {
	t.Run("loads file without overriding", func(t *testing.T) {
		t.Setenv("CFGTEST_URL", "from-env")
		// Registers cleanup so variables set by the file are restored.
		t.Setenv("CFGTEST_TAGS", "")
		require.NoError(t, os.Unsetenv("CFGTEST_TAGS"))

		path := writeFile(t, ".env.test", "CFGTEST_URL=from-file\nCFGTEST_TAGS=x,y\n")
		require.NoError(t, config.LoadEnv(path))

		var cfg testConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "from-env", cfg.URL)
		assert.Equal(t, []string{"x", "y"}, cfg.Tags)
	})

	t.Run("missing file", func(t *testing.T) {
		require.Error(t, config.LoadEnv(filepath.Join(t.TempDir(), "nope.env")))
		assert.Panics(t, func() {
			config.MustLoadEnv(filepath.Join(t.TempDir(), "nope.env"))
		})
	})
}
