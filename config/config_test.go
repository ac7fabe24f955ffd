package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/presence-service/config"
)

const minimal = `
http:
  addr: ":8080"
grpc:
  addr: ":9090"
auth:
  jwt:
    publicKeyPath: /tmp/pub.pem
    issuer: test
`

func TestParse_AppliesDefaults(t *testing.T) {
	cfg, err := config.Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Presence.WatchdogPeriod)
	assert.Equal(t, 60*time.Second, cfg.Presence.WatchdogTimeout)
	assert.Equal(t, 30*time.Second, cfg.Presence.PingEvery)
	assert.Equal(t, 10*time.Second, cfg.Presence.ConnectTimeout)
	assert.Equal(t, time.Second, cfg.Presence.SSERetry)
	assert.Equal(t, 60*time.Second, cfg.Presence.SSELifetime)
	assert.Equal(t, int64(128<<10), cfg.Presence.MaxMessageBytes)
	assert.Equal(t, "memory", cfg.Backends.Store)
	assert.Equal(t, "memory", cfg.Backends.Cache)
	assert.Equal(t, "none", cfg.Backends.Relay)
	assert.Equal(t, "presence-service", cfg.Logging.Service)
	assert.Equal(t, "std", cfg.Logging.Backend)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name    string
		extra   string
		wantErr string
	}{
		{
			name:    "postgres store needs dsn",
			extra:   "backends:\n  store: postgres\n",
			wantErr: "postgres.dsn",
		},
		{
			name:    "redis cache needs addr",
			extra:   "backends:\n  cache: redis\n",
			wantErr: "redis.addr",
		},
		{
			name:    "nats relay needs url",
			extra:   "backends:\n  relay: nats\n",
			wantErr: "nats.url",
		},
		{
			name:    "unknown store",
			extra:   "backends:\n  store: mongo\n",
			wantErr: "backends.store",
		},
		{
			name:    "timeout must exceed period",
			extra:   "presence:\n  watchdogPeriod: 10s\n  watchdogTimeout: 5s\n",
			wantErr: "watchdogTimeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Parse([]byte(minimal + tt.extra))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParse_MissingRequired(t *testing.T) {
	_, err := config.Parse([]byte("grpc:\n  addr: \":9090\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http.addr")
}

func TestLoadConfig_FromEnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o600))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "test", cfg.Auth.JWT.Issuer)
}

func TestLoadConfig_SampleFileIsValid(t *testing.T) {
	t.Setenv("CONFIG_PATH", "config.yaml")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Backends.Store)
	assert.True(t, cfg.Postgres.Migrate)
}
