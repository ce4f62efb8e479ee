package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTempConfig creates a minimal configuration file required for LoadConfig
// and returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalConfig = `oddsflow:
  name: "TestApp"
  version: "1.0"
stream:
  url: "https://example.test/api/v3/stream/odds"
  sport: football
  api_key: secret
  sportsbooks: ["DraftKings", "Pinnacle"]
  leagues: ["NFL"]
backoff:
  min: 500ms
  max: 8s
consumer:
  interval: 2s
  filter: all
`

func TestLoadConfig(t *testing.T) {
	t.Setenv("ODDS_API_KEY", "")
	path := writeTempConfig(t, minimalConfig)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "TestApp", cfg.Oddsflow.Name)
	assert.Equal(t, "football", cfg.Stream.Sport)
	assert.Len(t, cfg.Stream.Sportsbooks, 2)
	assert.Equal(t, 500*time.Millisecond, cfg.Backoff.Min)
	assert.Equal(t, 8*time.Second, cfg.Backoff.Max)
	assert.EqualValues(t, 2, cfg.Backoff.Factor, "default factor not applied")
	assert.EqualValues(t, 15, cfg.Backfill.Workers)
	assert.EqualValues(t, 100, cfg.Backfill.Quota)
	assert.Equal(t, "secret", cfg.Rest.APIKey, "rest api key should fall back to the stream key")
	assert.Equal(t, AuthModeQuery, cfg.Stream.AuthMode)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("ODDS_API_KEY", "from-env")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	path := writeTempConfig(t, minimalConfig)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Stream.APIKey)
	assert.Equal(t, "from-env", cfg.Rest.APIKey)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Storage.Kafka.Brokers)
}

func TestLoadConfigMissingAPIKey(t *testing.T) {
	t.Setenv("ODDS_API_KEY", "")
	content := `oddsflow:
  name: "TestApp"
  version: "1.0"
stream:
  sport: football
  sportsbooks: ["DraftKings"]
`
	_, err := LoadConfig(writeTempConfig(t, content))
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr), "expected ConfigurationError, got %v", err)
	assert.Equal(t, "stream.api_key", cfgErr.Field)
}

func TestStreamValidate(t *testing.T) {
	valid := StreamConfig{
		URL:         "https://example.test/stream",
		Sport:       "football",
		APIKey:      "k",
		Sportsbooks: []string{"DraftKings"},
	}
	require.NoError(t, valid.Validate())

	cases := map[string]func(*StreamConfig){
		"stream.url":         func(s *StreamConfig) { s.URL = "ftp://example.test" },
		"stream.sport":       func(s *StreamConfig) { s.Sport = " " },
		"stream.auth_mode":   func(s *StreamConfig) { s.AuthMode = "cookie" },
		"stream.sportsbooks": func(s *StreamConfig) { s.Sportsbooks = nil },
		"stream.leagues":     func(s *StreamConfig) { s.Leagues = []string{"NFL", ""} },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			cfg := valid
			mutate(&cfg)
			err := cfg.Validate()

			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "expected ConfigurationError, got %v", err)
			assert.Equal(t, field, cfgErr.Field)
			assert.True(t, IsConfigurationError(err))
		})
	}
}

func TestLoadFixtureSet(t *testing.T) {
	content := `fixtures: ["F1", " F2 ", "", "F1"]
sportsbooks: ["Pinnacle"]
`
	set, err := LoadFixtureSet(writeTempConfig(t, content))
	require.NoError(t, err)

	assert.Equal(t, []string{"F1", "F2"}, set.Fixtures)
	assert.Len(t, set.Sportsbooks, 1)
}

func TestAppEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	assert.Equal(t, EnvironmentProduction, AppEnvironment())
	assert.True(t, IsProductionLike(AppEnvironment()), "production should be production-like")

	envPaths := map[string]string{EnvironmentProduction: "config/config.prod.yml"}
	assert.Equal(t, "config/config.prod.yml", resolveEnvSpecificPath("", "config/config.yml", envPaths))
	assert.Equal(t, "custom.yml", resolveEnvSpecificPath("custom.yml", "config/config.yml", envPaths),
		"explicit path should win")
}

func TestIsValidS3Bucket(t *testing.T) {
	cases := []struct {
		name  string
		valid bool
	}{
		{"valid-bucket", true},
		{"Invalid", false},
		{"ab", false},
		{"my..bucket", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.valid, isValidS3Bucket(c.name), c.name)
	}
}
