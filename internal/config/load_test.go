package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "levante-dashboard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func newFlagSet(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	registerFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(newFlagSet(t), writeConfigFile(t, "docstore:\n  project_id: demo\n"))
	require.NoError(t, err)

	assert.Equal(t, "demo", cfg.DocStore.ProjectID)
	assert.Equal(t, "(default)", cfg.DocStore.DatabaseID)
	assert.Equal(t, "https://firestore.googleapis.com", cfg.DocStore.BaseURL)
	assert.Equal(t, "google", cfg.DocStore.Credentials)
	assert.Equal(t, 100, cfg.DocStore.BatchSize)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "oidc", cfg.Server.Auth.Mode)
	assert.Equal(t, "super_admin", cfg.Server.Auth.SuperAdminClaim)
	assert.Equal(t, "admin_orgs", cfg.Server.Auth.AdminOrgsClaim)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, []string{"districts", "schools", "classes", "groups", "families"}, cfg.Cache.Collections)
	assert.Equal(t, "levante-dashboard", cfg.Observability.ServiceName)
}

func TestLoad_Precedence(t *testing.T) {
	path := writeConfigFile(t, `
docstore:
  project_id: from-file
  batch_size: 50
server:
  port: 7000
cache:
  ttl: 1m
`)
	t.Setenv("LEVANTE_DOCSTORE_PROJECT_ID", "from-env")
	t.Setenv("LEVANTE_SERVER_PORT", "7100")
	t.Setenv("LEVANTE_CACHE_COLLECTIONS", "schools, classes")

	cfg, err := load(newFlagSet(t, "--server.port=7200"), path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.DocStore.ProjectID)
	assert.Equal(t, 50, cfg.DocStore.BatchSize)
	assert.Equal(t, 7200, cfg.Server.Port)
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
	assert.Equal(t, []string{"schools", "classes"}, cfg.Cache.Collections)
}

func TestLoad_SecretsFromFiles(t *testing.T) {
	dir := t.TempDir()
	tokenPath := filepath.Join(dir, "token")
	secretPath := filepath.Join(dir, "secret")
	require.NoError(t, os.WriteFile(tokenPath, []byte("ya29.token\n"), 0o600))
	require.NoError(t, os.WriteFile(secretPath, []byte("  shared-secret  \n"), 0o600))

	path := writeConfigFile(t, `
docstore:
  project_id: demo
  credentials: token
  access_token_file: `+tokenPath+`
server:
  auth:
    mode: hs256
    hs256_secret_file: `+secretPath+`
`)
	cfg, err := load(newFlagSet(t), path)
	require.NoError(t, err)
	assert.Equal(t, "ya29.token", cfg.DocStore.AccessToken)
	assert.Equal(t, "shared-secret", cfg.Server.Auth.HS256Secret)
}

func TestLoad_EmptySecretFileRejected(t *testing.T) {
	secretPath := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(secretPath, []byte("\n"), 0o600))

	_, err := load(newFlagSet(t), writeConfigFile(t, "server:\n  auth:\n    hs256_secret_file: "+secretPath+"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is empty")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := load(newFlagSet(t), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestUnmarshalExact_RejectsUnknownKeys(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
server:
  auth:
    mode: oidc
    db_role_enabled: true
`)))

	var cfg Config
	err := v.UnmarshalExact(&cfg, viper.DecodeHook(decodeHook()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db_role_enabled")
}
