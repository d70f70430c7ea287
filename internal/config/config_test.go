package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mautops/results-gin/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "file", cfg.Directory.Source)
	assert.Equal(t, 600, cfg.Directory.CacheTTL)
	assert.Equal(t, 4, cfg.Notification.Workers)
	assert.False(t, cfg.Grading.WeightByCredits)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, "results-gin", cfg.Tracing.ServiceName)
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  driver: sqlite
  dbname: ":memory:"
grading:
  weight_by_credits: true
directory:
  source: file
  file_path: /tmp/directory.yaml
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.True(t, cfg.Grading.WeightByCredits)
	assert.Equal(t, "/tmp/directory.yaml", cfg.Directory.FilePath)
	// 未出现在文件中的字段使用默认值
	assert.Equal(t, 4, cfg.Notification.Workers)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("APP_SERVER_PORT", "7070")
	t.Setenv("APP_DATABASE_DRIVER", "sqlite")

	path := writeConfig(t, "server:\n  port: 9090\n")
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*config.Config) {}},
		{
			name:    "unknown driver",
			mutate:  func(c *config.Config) { c.Database.Driver = "mysql" },
			wantErr: "unsupported database driver",
		},
		{
			name:    "unknown directory source",
			mutate:  func(c *config.Config) { c.Directory.Source = "ldap" },
			wantErr: "unsupported directory source",
		},
		{
			name: "http directory without base url",
			mutate: func(c *config.Config) {
				c.Directory.Source = "http"
				c.Directory.BaseURL = ""
			},
			wantErr: "directory.base_url is required",
		},
		{
			name: "production without keycloak",
			mutate: func(c *config.Config) {
				c.Env = "production"
				c.Keycloak.Issuer = ""
			},
			wantErr: "keycloak.issuer is required in production",
		},
		{
			name: "production with keycloak",
			mutate: func(c *config.Config) {
				c.Env = "production"
				c.Keycloak.Issuer = "https://sso.example.ac.ke/realms/university"
			},
		},
		{
			name:    "no notification workers",
			mutate:  func(c *config.Config) { c.Notification.Workers = 0 },
			wantErr: "notification.workers must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_ProductionRequiresKeycloak(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	_, err := config.Load(writeConfig(t, "server:\n  port: 8080\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keycloak.issuer")

	t.Setenv("APP_KEYCLOAK_ISSUER", "https://sso.example.ac.ke/realms/university")
	cfg, err := config.Load(writeConfig(t, "server:\n  port: 8080\n"))
	require.NoError(t, err)
	assert.True(t, config.IsProduction(cfg))
}

func TestIsProduction(t *testing.T) {
	assert.False(t, config.IsProduction(nil))
	assert.False(t, config.IsProduction(&config.Config{Env: "development"}))
	assert.True(t, config.IsProduction(&config.Config{Env: "production"}))
}

func TestConfigWatcher_ReloadsLogLevel(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n")
	cfg, err := config.Load(path)
	require.NoError(t, err)

	watcher := config.NewConfigWatcher(cfg, path)
	var mu sync.Mutex
	var got *config.Config
	watcher.OnConfigChange(func(c *config.Config) {
		mu.Lock()
		defer mu.Unlock()
		got = c
	})
	require.NoError(t, watcher.Start())
	defer watcher.Stop()

	// 等待一下，确保监听器启动
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: error\n"), 0644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got != nil && got.Log.Level == "error"
	}, 3*time.Second, 50*time.Millisecond)
	assert.Equal(t, "error", watcher.GetConfig().Log.Level)
}

func TestConfigWatcher_InvalidReloadKeepsPrevious(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n")
	cfg, err := config.Load(path)
	require.NoError(t, err)

	watcher := config.NewConfigWatcher(cfg, path)
	errCh := make(chan error, 4)
	watcher.OnError(func(err error) { errCh <- err })
	require.NoError(t, watcher.Start())
	defer watcher.Stop()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("database:\n  driver: oracle\n"), 0644))

	select {
	case err := <-errCh:
		assert.Contains(t, err.Error(), "unsupported database driver")
	case <-time.After(3 * time.Second):
		t.Fatal("expected reload error")
	}
	assert.Equal(t, "postgres", watcher.GetConfig().Database.Driver)
}

func TestConfigWatcher_StartWithoutFile(t *testing.T) {
	watcher := config.NewConfigWatcher(config.Default(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, watcher.Start())
}
