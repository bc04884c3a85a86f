package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks the override variables so ambient settings cannot leak
// into the assertions. t.Setenv restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"MONGODB_URI", "MONGODB_ATLAS_URI", "MONGODB_LOCAL_URI",
		"CODE_READER_DB", "CODE_READER_PORT", "OPENAI_API_KEY",
		"OPENAI_BASE_URL", "LOG_LEVEL", "APP_ENV",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))
	t.Setenv("CODE_READER_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "production", cfg.Server.Env)
	assert.Equal(t, "code_reader", cfg.Mongo.Database)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Mongo.LocalURI)
	assert.Equal(t, "https://api.openai.com/v1", cfg.OpenAI.BaseURL)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 8080
mongo:
  database: from_file
logging:
  level: debug
`), 0o644))
	t.Setenv("CODE_READER_CONFIG", path)
	t.Setenv("CODE_READER_DB", "from_env")
	t.Setenv("CODE_READER_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	// Environment wins over the file, which wins over defaults
	assert.Equal(t, "from_env", cfg.Mongo.Database)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_NoURIConfigured(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mongo:\n  local_uri: \"\"\n"), 0o644))
	t.Setenv("CODE_READER_CONFIG", path)

	_, err := Load()
	assert.Error(t, err)
}

func TestCandidateURIs(t *testing.T) {
	tests := []struct {
		name string
		cfg  MongoConfig
		want []string
	}{
		{"single uri wins", MongoConfig{URI: "mongodb://one", AtlasURI: "mongodb://atlas"}, []string{"uri"}},
		{"atlas before local", MongoConfig{AtlasURI: "mongodb://atlas", LocalURI: "mongodb://local"}, []string{"atlas", "local"}},
		{"local only", MongoConfig{LocalURI: "mongodb://local"}, []string{"local"}},
		{"nothing", MongoConfig{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidates := tt.cfg.CandidateURIs()
			var labels []string
			for _, c := range candidates {
				labels = append(labels, c.Label)
			}
			assert.Equal(t, tt.want, labels)
		})
	}
}
